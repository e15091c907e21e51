package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/pitabwire/frame/queue"
	"github.com/pitabwire/util"
	"github.com/rs/xid"
)

// Publisher wraps frame's queue manager to emit typed events. It also fans
// every event out to local in-process subscribers for live streaming. A nil
// Publisher is valid and drops everything, so callers never need to guard.
type Publisher struct {
	queueMgr queue.Manager
	source   string
	queueRef string

	subMu       sync.RWMutex
	subscribers map[string]chan Envelope
}

// NewPublisher creates a publisher that emits events to the given queue
// reference.
func NewPublisher(queueMgr queue.Manager, source, queueRef string) *Publisher {
	return &Publisher{
		queueMgr:    queueMgr,
		source:      source,
		queueRef:    queueRef,
		subscribers: make(map[string]chan Envelope),
	}
}

// Emit publishes a typed event to the event bus and fans out to local
// subscribers. A missing queue manager keeps the local fan-out working.
func (p *Publisher) Emit(ctx context.Context, eventType EventType, conversationID string, data any) error {
	if p == nil {
		return nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	env := Envelope{
		ID:             xid.New().String(),
		Type:           eventType,
		Source:         p.source,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
		Data:           raw,
	}

	// Local fan-out never blocks the emitter; a full subscriber loses the
	// event.
	p.subMu.RLock()
	for id, ch := range p.subscribers {
		select {
		case ch <- env:
		default:
			slog.Warn("event dropped: subscriber buffer full",
				slog.String("subscriber", id), slog.String("event_type", string(eventType)))
		}
	}
	p.subMu.RUnlock()

	if p.queueMgr == nil {
		return nil
	}
	return p.queueMgr.Publish(ctx, p.queueRef, env)
}

// Subscribe creates a local in-process subscription. The caller must call
// Unsubscribe with the same id to clean up.
func (p *Publisher) Subscribe(id string, bufSize int) <-chan Envelope {
	if bufSize <= 0 {
		bufSize = 64
	}
	ch := make(chan Envelope, bufSize)
	p.subMu.Lock()
	p.subscribers[id] = ch
	p.subMu.Unlock()
	return ch
}

// Unsubscribe removes a local subscription and closes its channel.
func (p *Publisher) Unsubscribe(id string) {
	p.subMu.Lock()
	if ch, ok := p.subscribers[id]; ok {
		close(ch)
		delete(p.subscribers, id)
	}
	p.subMu.Unlock()
}

// AuditSubscriber implements queue.SubscribeWorker and writes every call
// event to the structured log, giving operators a trail of session and
// transcript activity without a dashboard.
type AuditSubscriber struct{}

// Handle is called by frame's pub/sub for each event message.
func (AuditSubscriber) Handle(ctx context.Context, _ map[string]string, message []byte) error {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		util.Log(ctx).WithError(err).Error("events: unmarshal envelope")
		return err
	}

	slog.InfoContext(ctx, "call event",
		slog.String("event_type", string(env.Type)),
		slog.String("conversation_id", env.ConversationID),
		slog.String("source", env.Source))
	return nil
}
