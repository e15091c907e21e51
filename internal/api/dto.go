package api

import "github.com/voicebridge/voicebridge/pkg/transcript"

// SessionResponse is the credential payload returned to a starting client.
type SessionResponse struct {
	SessionToken   string `json:"sessionToken"`
	ModelID        string `json:"modelId"`
	Voice          string `json:"voice"`
	Instructions   string `json:"instructions,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// TranscriptionResponse carries a recognized clip's text. An empty string
// means no speech was recognized; it is not an error.
type TranscriptionResponse struct {
	Text string `json:"text"`
}

// SaveResponse acknowledges a persisted batch.
type SaveResponse struct {
	OK bool `json:"ok"`
}

// ConversationResponse is the stored transcript for one conversation.
type ConversationResponse struct {
	ID       string                 `json:"id"`
	EndedAt  string                 `json:"ended_at,omitempty"`
	Messages []transcript.Utterance `json:"messages"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
