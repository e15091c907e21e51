// Package transcript merges assistant text deltas and user utterances into a
// single ordered conversation log and forwards batches to the persistence
// endpoint.
package transcript

// Role attributes an utterance to one side of the conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// FallbackText is logged in place of an empty transcription result. The user
// must see that they were heard even when nothing was recognized.
const FallbackText = "(no speech detected)"

// Utterance is one attributed turn. Timestamps are milliseconds relative to
// session start and are only set for user turns, which are bounded by
// detected speech boundaries.
type Utterance struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	StartMs int64  `json:"start_ms,omitempty"`
	EndMs   int64  `json:"end_ms,omitempty"`
}

// SaveRequest is the persistence wire format.
type SaveRequest struct {
	ConversationID string      `json:"conversationId"`
	Messages       []Utterance `json:"messages"`
	End            bool        `json:"end,omitempty"`
}
