package notify

import (
	"context"
	"encoding/json"

	"github.com/pitabwire/frame/workerpool"
	"github.com/pitabwire/util"

	"github.com/voicebridge/voicebridge/pkg/events"
)

// Subscriber implements queue.SubscribeWorker and fans each event out to the
// endpoints subscribed to its type.
type Subscriber struct {
	Repo      *Repository
	Deliverer *Deliverer
	Pool      workerpool.WorkerPool
}

// Handle is called by frame's pub/sub for each event message.
func (s *Subscriber) Handle(ctx context.Context, _ map[string]string, message []byte) error {
	var env events.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		util.Log(ctx).WithError(err).Error("notify: unmarshal envelope")
		return err
	}

	endpoints, err := s.Repo.ListForEventType(ctx, env.Type)
	if err != nil {
		util.Log(ctx).WithError(err).Error("notify: list endpoints")
		return err
	}

	for _, e := range endpoints {
		e := e
		deliver := func() { s.Deliverer.Deliver(ctx, e, env) }
		if s.Pool != nil {
			if err := s.Pool.Submit(ctx, deliver); err != nil {
				go deliver()
			}
		} else {
			go deliver()
		}
	}
	return nil
}
