package store

import (
	"database/sql"

	"github.com/pitabwire/frame/data"

	"github.com/voicebridge/voicebridge/pkg/transcript"
)

// Conversation is one persisted voice-chat conversation.
type Conversation struct {
	data.BaseModel

	PromptName string       `gorm:"type:varchar(255)"          json:"prompt_name,omitempty"`
	Model      string       `gorm:"type:varchar(255)"          json:"model,omitempty"`
	Voice      string       `gorm:"type:varchar(64)"           json:"voice,omitempty"`
	EndedAt    sql.NullTime `json:"ended_at,omitempty"`
}

func (Conversation) TableName() string { return "conversations" }

// Message is one persisted utterance. Seq preserves arrival order within a
// conversation; batch inserts share a creation timestamp.
type Message struct {
	data.BaseModel

	ConversationID string        `gorm:"type:varchar(64);index;not null" json:"conversation_id"`
	Seq            int           `gorm:"not null;index"                  json:"seq"`
	Role           string        `gorm:"type:varchar(16);not null"       json:"role"`
	Content        string        `gorm:"type:text;not null"              json:"content"`
	StartMs        sql.NullInt64 `json:"start_ms,omitempty"`
	EndMs          sql.NullInt64 `json:"end_ms,omitempty"`
}

func (Message) TableName() string { return "messages" }

// Utterance converts a stored message back to the wire shape.
func (m *Message) Utterance() transcript.Utterance {
	u := transcript.Utterance{
		Role:    transcript.Role(m.Role),
		Content: m.Content,
	}
	if m.StartMs.Valid {
		u.StartMs = m.StartMs.Int64
	}
	if m.EndMs.Valid {
		u.EndMs = m.EndMs.Int64
	}
	return u
}
