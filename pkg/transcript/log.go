package transcript

import (
	"context"
	"log/slog"
	"sync"
)

// Saver persists message batches for a conversation. *Client implements it.
type Saver interface {
	Save(ctx context.Context, conversationID string, messages []Utterance, end bool) error
}

// Log is the ordered conversation record. Assistant text arrives as
// fragments and is concatenated into the trailing assistant entry until a
// user entry intervenes; user text arrives as whole-clip results and is
// always appended as a discrete entry.
//
// Persistence is an at-least-once best-effort side channel: failures are
// logged and never affect the local record.
type Log struct {
	mu             sync.Mutex
	conversationID string
	entries        []Utterance
	saver          Saver
	onUpdate       func([]Utterance)
}

// NewLog creates a log for the given conversation. saver may be nil, in
// which case nothing is persisted.
func NewLog(conversationID string, saver Saver) *Log {
	return &Log{conversationID: conversationID, saver: saver}
}

// OnUpdate registers a callback invoked with a snapshot of the entries after
// every mutation. Used for rendering the running transcript.
func (l *Log) OnUpdate(fn func([]Utterance)) {
	l.mu.Lock()
	l.onUpdate = fn
	l.mu.Unlock()
}

// ConversationID returns the server-assigned (or locally generated)
// conversation identifier.
func (l *Log) ConversationID() string { return l.conversationID }

// AppendAssistantDelta merges an assistant text fragment into the log.
func (l *Log) AppendAssistantDelta(ctx context.Context, delta string) {
	if delta == "" {
		return
	}

	l.mu.Lock()
	n := len(l.entries)
	if n > 0 && l.entries[n-1].Role == RoleAssistant {
		l.entries[n-1].Content += delta
	} else {
		l.entries = append(l.entries, Utterance{Role: RoleAssistant, Content: delta})
	}
	update, snapshot := l.onUpdate, l.snapshotLocked()
	l.mu.Unlock()

	if update != nil {
		update(snapshot)
	}
}

// AppendUser logs one whole-clip user utterance. Empty text is replaced with
// the fallback placeholder, never dropped. The completed entry is persisted
// as a partial batch.
func (l *Log) AppendUser(ctx context.Context, text string, startMs, endMs int64) {
	if text == "" {
		text = FallbackText
	}

	entry := Utterance{Role: RoleUser, Content: text, StartMs: startMs, EndMs: endMs}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	update, snapshot := l.onUpdate, l.snapshotLocked()
	l.mu.Unlock()

	if update != nil {
		update(snapshot)
	}

	l.persist(ctx, []Utterance{entry}, false)
}

// Entries returns a snapshot of the reconciled log.
func (l *Log) Entries() []Utterance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Log) snapshotLocked() []Utterance {
	return append([]Utterance(nil), l.entries...)
}

// Flush persists the entire accumulated transcript with the end-of-
// conversation marker. The returned error is advisory; the session stops
// regardless.
func (l *Log) Flush(ctx context.Context) error {
	if l.saver == nil {
		return nil
	}
	return l.saver.Save(ctx, l.conversationID, l.Entries(), true)
}

func (l *Log) persist(ctx context.Context, batch []Utterance, end bool) {
	if l.saver == nil {
		return
	}
	go func() {
		if err := l.saver.Save(ctx, l.conversationID, batch, end); err != nil {
			slog.WarnContext(ctx, "transcript: partial save failed",
				slog.String("conversation_id", l.conversationID),
				slog.String("error", err.Error()))
		}
	}()
}
