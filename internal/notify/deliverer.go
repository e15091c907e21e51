package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pitabwire/frame/workerpool"

	"github.com/voicebridge/voicebridge/pkg/events"
)

const maxBreakers = 10000

// DelivererConfig holds delivery tuning.
type DelivererConfig struct {
	MaxRetries        int
	TimeoutSec        int
	BackoffInitialSec int
	BackoffMaxSec     int
	CBFailThreshold   int
	CBResetTimeoutSec int
}

// Deliverer pushes event envelopes to registered endpoints with retry,
// per-endpoint circuit breaking, and HMAC-signed payloads.
type Deliverer struct {
	repo         *Repository
	httpClient   *http.Client
	cfg          DelivererConfig
	pool         workerpool.WorkerPool
	validateOpts []ValidateOption

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewDeliverer creates a deliverer.
func NewDeliverer(repo *Repository, cfg DelivererConfig, pool workerpool.WorkerPool, validateOpts ...ValidateOption) *Deliverer {
	return &Deliverer{
		repo: repo,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cfg:          cfg,
		pool:         pool,
		validateOpts: validateOpts,
		breakers:     make(map[string]*Breaker),
	}
}

func (d *Deliverer) breaker(endpointID string) *Breaker {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.breakers[endpointID]
	if ok {
		return b
	}
	if len(d.breakers) >= maxBreakers {
		for k := range d.breakers {
			delete(d.breakers, k)
			break
		}
	}
	b = NewBreaker(d.cfg.CBFailThreshold, time.Duration(d.cfg.CBResetTimeoutSec)*time.Second)
	d.breakers[endpointID] = b
	return b
}

// Deliver posts one event envelope to an endpoint, retrying on failure.
func (d *Deliverer) Deliver(ctx context.Context, e Endpoint, env events.Envelope) {
	d.attempt(ctx, e, env, 1)
}

func (d *Deliverer) attempt(ctx context.Context, e Endpoint, env events.Envelope, attempt int) {
	// The URL is validated on registration too; re-checking here guards
	// against records written before the rule or DNS now pointing inward.
	if err := ValidateURL(e.URL, d.validateOpts...); err != nil {
		slog.ErrorContext(ctx, "notify: endpoint URL rejected",
			slog.String("endpoint_id", e.ID),
			slog.String("error", err.Error()))
		return
	}

	b := d.breaker(e.ID)
	if !b.Allow() {
		d.retryOrDrop(ctx, e, env, attempt, "circuit open")
		return
	}

	body, err := json.Marshal(env)
	if err != nil {
		slog.ErrorContext(ctx, "notify: marshal envelope", slog.String("error", err.Error()))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(body))
	if err != nil {
		d.retryOrDrop(ctx, e, env, attempt, fmt.Sprintf("create request: %v", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(e.Secret, body))
	req.Header.Set("X-Voicebridge-Event", string(env.Type))
	req.Header.Set("X-Voicebridge-Delivery", env.ID)

	start := time.Now()
	resp, err := d.httpClient.Do(req)

	rec := &Delivery{
		EndpointID: e.ID,
		EventID:    env.ID,
		EventType:  string(env.Type),
		Attempt:    attempt,
		DurationMs: time.Since(start).Milliseconds(),
	}

	if err != nil {
		b.RecordFailure()
		rec.Status = DeliveryFailed
		rec.Error = err.Error()
		d.record(ctx, rec)
		d.retryOrDrop(ctx, e, env, attempt, rec.Error)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	rec.ResponseCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		b.RecordSuccess()
		rec.Status = DeliverySuccess
		d.record(ctx, rec)
		return
	}

	b.RecordFailure()
	rec.Status = DeliveryFailed
	rec.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	d.record(ctx, rec)
	d.retryOrDrop(ctx, e, env, attempt, rec.Error)
}

func (d *Deliverer) record(ctx context.Context, rec *Delivery) {
	if d.repo == nil {
		return
	}
	if err := d.repo.RecordDelivery(ctx, rec); err != nil {
		slog.ErrorContext(ctx, "notify: record delivery", slog.String("error", err.Error()))
	}
}

func (d *Deliverer) retryOrDrop(ctx context.Context, e Endpoint, env events.Envelope, attempt int, reason string) {
	if attempt >= d.cfg.MaxRetries {
		slog.WarnContext(ctx, "notify: delivery abandoned",
			slog.String("endpoint_id", e.ID),
			slog.String("event_id", env.ID),
			slog.Int("attempts", attempt),
			slog.String("reason", reason))
		return
	}

	backoff := d.cfg.BackoffInitialSec * (1 << (attempt - 1))
	if backoff > d.cfg.BackoffMaxSec {
		backoff = d.cfg.BackoffMaxSec
	}
	wait := time.Duration(backoff) * time.Second

	retry := func() {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			d.attempt(ctx, e, env, attempt+1)
		}
	}

	if d.pool != nil {
		if err := d.pool.Submit(ctx, retry); err == nil {
			return
		}
	}
	time.AfterFunc(wait, func() { d.attempt(ctx, e, env, attempt+1) })
}
