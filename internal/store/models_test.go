package store

import (
	"database/sql"
	"testing"

	"github.com/voicebridge/voicebridge/pkg/transcript"
)

func TestMessageUtterance(t *testing.T) {
	m := &Message{
		ConversationID: "conv_1",
		Seq:            3,
		Role:           "user",
		Content:        "hello there",
		StartMs:        sql.NullInt64{Int64: 1200, Valid: true},
		EndMs:          sql.NullInt64{Int64: 2600, Valid: true},
	}

	u := m.Utterance()
	if u.Role != transcript.RoleUser {
		t.Fatalf("Role = %q, want %q", u.Role, transcript.RoleUser)
	}
	if u.Content != "hello there" {
		t.Fatalf("Content = %q, want %q", u.Content, "hello there")
	}
	if u.StartMs != 1200 || u.EndMs != 2600 {
		t.Fatalf("timestamps = %d..%d, want 1200..2600", u.StartMs, u.EndMs)
	}
}

func TestMessageUtteranceNoTimestamps(t *testing.T) {
	m := &Message{Role: "assistant", Content: "reply"}

	u := m.Utterance()
	if u.StartMs != 0 || u.EndMs != 0 {
		t.Fatalf("timestamps = %d..%d, want zero values", u.StartMs, u.EndMs)
	}
}
