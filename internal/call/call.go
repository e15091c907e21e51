package call

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pitabwire/frame/workerpool"
	"github.com/rs/xid"

	"github.com/voicebridge/voicebridge/pkg/audio"
	"github.com/voicebridge/voicebridge/pkg/events"
	"github.com/voicebridge/voicebridge/pkg/realtime"
	"github.com/voicebridge/voicebridge/pkg/segment"
	"github.com/voicebridge/voicebridge/pkg/transcript"
)

// Session is the realtime connection surface a call depends on.
// *realtime.Session implements it.
type Session interface {
	State() realtime.State
	Stop()
}

// Options configures one call.
type Options struct {
	BridgeURL       string
	RealtimeBaseURL string

	Segmentation segment.Config

	Mic       realtime.MicOpener
	AudioSink io.Writer // optional sink for remote assistant audio

	// OnTranscript receives a snapshot of the reconciled log after every
	// change.
	OnTranscript func([]transcript.Utterance)

	// Pool runs clip transcriptions off the audio path. Optional; clips run
	// on their own goroutines when nil.
	Pool workerpool.WorkerPool

	// Publisher emits call lifecycle events. Optional; nil drops them.
	Publisher *events.Publisher
}

// Call is one live voice conversation. It owns the session, the segmenter,
// and the conversation log for its lifetime.
type Call struct {
	bridge    *BridgeClient
	session   Session
	seg       *segment.Segmenter
	log       *transcript.Log
	pool      workerpool.WorkerPool
	publisher *events.Publisher
	rate      int

	active  atomic.Bool
	started time.Time
}

// Start mints credentials, connects the realtime session, and begins
// segmenting local audio. The returned call is live until Stop or a
// transport failure.
func Start(ctx context.Context, mgr *realtime.Manager, opts Options) (*Call, error) {
	if opts.Segmentation.SampleRate <= 0 {
		opts.Segmentation.SampleRate = audio.DefaultSampleRate
	}
	bridge := NewBridgeClient(opts.BridgeURL)

	creds, err := bridge.StartSession(ctx)
	if err != nil {
		return nil, err
	}

	// A missing server-side conversation record never blocks the call; the
	// transcript gets a locally generated identifier instead.
	conversationID := creds.ConversationID
	if conversationID == "" {
		conversationID = xid.New().String()
	}

	c := &Call{
		bridge:    bridge,
		log:       transcript.NewLog(conversationID, transcript.NewClient(opts.BridgeURL)),
		pool:      opts.Pool,
		publisher: opts.Publisher,
		rate:      opts.Segmentation.SampleRate,
		started:   time.Now(),
	}
	c.active.Store(true)

	if opts.OnTranscript != nil {
		c.log.OnUpdate(opts.OnTranscript)
	}

	c.seg = segment.New(opts.Segmentation, func(clip segment.Clip) {
		c.submitClip(ctx, clip)
	})

	mic := opts.Mic
	tappedMic := func(ctx context.Context) (audio.Source, error) {
		src, err := mic(ctx)
		if err != nil {
			return nil, err
		}
		return c.seg.Tap(src), nil
	}

	session, err := mgr.Connect(ctx, realtime.Options{
		Token:        creds.SessionToken,
		BaseURL:      opts.RealtimeBaseURL,
		Model:        creds.ModelID,
		Voice:        creds.Voice,
		Instructions: creds.Instructions,
		Mic:          tappedMic,
		AudioSink:    opts.AudioSink,
		Callbacks: realtime.Callbacks{
			OnConnected: func() {
				slog.InfoContext(ctx, "call: connected",
					slog.String("conversation_id", conversationID),
					slog.String("model", creds.ModelID),
					slog.String("voice", creds.Voice))
			},
			OnAssistantText: func(text string) {
				c.log.AppendAssistantDelta(ctx, text)
			},
			OnDisconnected: func() {
				c.shutdown(context.WithoutCancel(ctx), "disconnected")
			},
			OnError: func(err error) {
				slog.ErrorContext(ctx, "call: session failed", slog.String("error", err.Error()))
				c.shutdown(context.WithoutCancel(ctx), "error")
			},
		},
	})
	if err != nil {
		c.seg.Stop()
		c.active.Store(false)
		return nil, fmt.Errorf("connect session: %w", err)
	}
	c.session = session

	if err := c.publisher.Emit(ctx, events.CallStarted, conversationID, events.CallStartedData{
		Model: creds.ModelID,
		Voice: creds.Voice,
	}); err != nil {
		slog.WarnContext(ctx, "call: emit call.started failed", slog.String("error", err.Error()))
	}

	return c, nil
}

// submitClip hands one finalized clip to the transcription pipeline. Results
// arriving after the call stopped are discarded, never logged.
func (c *Call) submitClip(ctx context.Context, clip segment.Clip) {
	work := func() {
		if !c.active.Load() {
			return
		}
		text, err := c.bridge.Transcribe(ctx, clip.PCM, c.rate)
		if err != nil {
			slog.WarnContext(ctx, "call: transcription failed",
				slog.String("error", err.Error()),
				slog.Int64("clip_start_ms", clip.StartMs))
			text = ""
		}
		if !c.active.Load() {
			return
		}
		c.log.AppendUser(ctx, text, clip.StartMs, clip.EndMs)
	}

	if c.pool != nil {
		if err := c.pool.Submit(ctx, work); err != nil {
			go work()
		}
		return
	}
	go work()
}

// Log returns the call's conversation log.
func (c *Call) Log() *transcript.Log { return c.log }

// Session returns the underlying realtime session.
func (c *Call) Session() Session { return c.session }

// Stop ends the call: segmentation halts, the session tears down, and the
// accumulated transcript is flushed with the end-of-conversation marker.
func (c *Call) Stop(ctx context.Context) {
	c.shutdown(ctx, "stopped")
	if c.session != nil {
		c.session.Stop()
	}
}

func (c *Call) shutdown(ctx context.Context, reason string) {
	if !c.active.CompareAndSwap(true, false) {
		return
	}
	c.seg.Stop()

	if err := c.log.Flush(ctx); err != nil {
		slog.WarnContext(ctx, "call: final transcript flush failed",
			slog.String("conversation_id", c.log.ConversationID()),
			slog.String("error", err.Error()))
	}

	utterances := len(c.log.Entries())
	duration := time.Since(c.started)

	slog.InfoContext(ctx, "call: ended",
		slog.String("conversation_id", c.log.ConversationID()),
		slog.String("reason", reason),
		slog.Duration("duration", duration),
		slog.Int("utterances", utterances))

	if err := c.publisher.Emit(ctx, events.CallEnded, c.log.ConversationID(), events.CallEndedData{
		Reason:     reason,
		DurationMs: duration.Milliseconds(),
		Utterances: utterances,
	}); err != nil {
		slog.WarnContext(ctx, "call: emit call.ended failed", slog.String("error", err.Error()))
	}
}
