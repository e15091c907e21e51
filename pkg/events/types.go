package events

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event flowing through the system.
type EventType string

const (
	CallStarted       EventType = "call.started"
	CallEnded         EventType = "call.ended"
	UtteranceLogged   EventType = "utterance.logged"
	ConversationEnded EventType = "conversation.ended"
	SessionMinted     EventType = "session.minted"
)

// Envelope is the standard event wrapper published to the event bus.
type Envelope struct {
	ID             string          `json:"id"`
	Type           EventType       `json:"type"`
	Source         string          `json:"source"`
	ConversationID string          `json:"conversation_id"`
	Timestamp      time.Time       `json:"timestamp"`
	Data           json.RawMessage `json:"data"`
}

// CallStartedData is the payload for call.started events.
type CallStartedData struct {
	Model string `json:"model"`
	Voice string `json:"voice"`
}

// CallEndedData is the payload for call.ended events.
type CallEndedData struct {
	Reason     string `json:"reason"`
	DurationMs int64  `json:"duration_ms"`
	Utterances int    `json:"utterances"`
}

// UtteranceLoggedData is the payload for utterance.logged events.
type UtteranceLoggedData struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	StartMs int64  `json:"start_ms,omitempty"`
	EndMs   int64  `json:"end_ms,omitempty"`
}

// SessionMintedData is the payload for session.minted events.
type SessionMintedData struct {
	Model  string `json:"model"`
	Voice  string `json:"voice"`
	Prompt string `json:"prompt"`
}
