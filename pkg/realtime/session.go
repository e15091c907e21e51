// Package realtime owns the lifecycle of one real-time connection to a
// remote speech model: media negotiation, the signaling data channel,
// session configuration injection, inbound event decoding, and teardown.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/voicebridge/voicebridge/pkg/audio"
)

// State is the session lifecycle state. stopped and error are terminal.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateStopped    State = "stopped"
	StateError      State = "error"
)

// ErrNoToken is returned by Connect when no session token was supplied.
// Checked synchronously before any media or network action.
var ErrNoToken = errors.New("realtime: session token required")

// MicOpener acquires the local capture device. A denied device returns
// audio.ErrPermissionDenied, which propagates to the Connect caller.
type MicOpener func(ctx context.Context) (audio.Source, error)

// Callbacks receive steady-state session events. Lifecycle state is always
// updated before a callback fires, so callbacks observe consistent state.
type Callbacks struct {
	OnConnected     func()
	OnDisconnected  func()
	OnError         func(error)
	OnAssistantText func(text string)
}

// Options configures one connection attempt.
type Options struct {
	Token        string // ephemeral session token, required
	BaseURL      string // signaling endpoint base URL
	Model        string
	Voice        string
	Instructions string // server-supplied; never hardcoded client-side

	Mic       MicOpener
	AudioSink io.Writer // optional PCM sink for remote audio

	Callbacks Callbacks
}

// Session is one ephemeral real-time connection. Owned exclusively by its
// Manager and destroyed on stop or unrecoverable transport failure.
type Session struct {
	mu     sync.Mutex
	state  State
	pc     *webrtc.PeerConnection
	dc     *webrtc.DataChannel
	source audio.Source
	cancel context.CancelFunc
	voice  string
	cb     Callbacks
	sendFn func(v any) error // overrides the signaling channel in tests

	openingTurn sync.Once // the begin-response trigger fires at most once
	teardown    sync.Once
}

// Manager enforces the single-live-session rule: connecting while a session
// is active tears the previous one down first. Two sessions never share the
// audio hardware.
type Manager struct {
	mu        sync.Mutex // guards active
	connectMu sync.Mutex // serializes connection attempts
	webrtcCfg webrtc.Configuration
	active    *Session
}

// NewManager creates a session manager with the given transport configuration.
func NewManager(cfg webrtc.Configuration) *Manager {
	return &Manager{webrtcCfg: cfg}
}

// Active returns the current live session, or nil.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Connect establishes a new session. Start-time failures are returned
// directly; steady-state failures surface through Callbacks.OnError.
func (m *Manager) Connect(ctx context.Context, opts Options) (*Session, error) {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	prev := m.active
	m.active = nil
	m.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	s := &Session{state: StateIdle, voice: opts.Voice, cb: opts.Callbacks}
	if err := s.connect(ctx, m.webrtcCfg, opts); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.active = s
	m.mu.Unlock()
	return s, nil
}

func (s *Session) connect(ctx context.Context, cfg webrtc.Configuration, opts Options) error {
	if opts.Token == "" {
		s.setState(StateError)
		return ErrNoToken
	}
	if opts.Mic == nil {
		s.setState(StateError)
		return errors.New("realtime: audio source required")
	}

	s.setState(StateConnecting)

	// 1. Acquire microphone access.
	src, err := opts.Mic(ctx)
	if err != nil {
		s.setState(StateError)
		return fmt.Errorf("acquire audio source: %w", err)
	}

	// 2. Transport connection with local track and remote-audio sink.
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		_ = src.Close()
		s.setState(StateError)
		return fmt.Errorf("create peer connection: %w", err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.pc = pc
	s.source = src
	s.cancel = cancel
	s.mu.Unlock()

	// Start-time failures report through the returned error only; OnError
	// stays reserved for steady-state transport faults.
	fail := func(err error) error {
		s.release()
		s.setState(StateError)
		return err
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: 8000, Channels: 1},
		"audio", "voicebridge",
	)
	if err != nil {
		return fail(fmt.Errorf("create local track: %w", err))
	}
	if _, err := pc.AddTrack(track); err != nil {
		return fail(fmt.Errorf("add local track: %w", err))
	}

	if opts.AudioSink != nil {
		pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			go newOpusSink(opts.AudioSink).consume(pumpCtx, remote)
		})
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
			s.fail(fmt.Errorf("realtime: transport %s", state))
		case webrtc.PeerConnectionStateClosed:
			// Equivalent to a clean disconnection signal.
			s.Stop()
		}
	})

	// 3. Signaling channel.
	dc, err := pc.CreateDataChannel("oai-events", nil)
	if err != nil {
		return fail(fmt.Errorf("create data channel: %w", err))
	}
	s.mu.Lock()
	s.dc = dc
	s.mu.Unlock()

	dc.OnOpen(func() {
		s.handleChannelOpen(opts.Voice, opts.Instructions)
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		ev := DecodeEvent(msg.Data)
		switch ev.Kind {
		case KindTextDelta, KindTextDone, KindGenericDelta:
			if s.cb.OnAssistantText != nil {
				s.cb.OnAssistantText(ev.Text)
			}
		case KindUnknown:
			// Dropped without escalation.
		}
	})

	// 4. Offer/answer exchange over the network boundary.
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fail(fmt.Errorf("create offer: %w", err))
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fail(fmt.Errorf("set local description: %w", err))
	}
	<-webrtc.GatheringCompletePromise(pc)

	answerSDP, err := exchangeSDP(ctx, opts.BaseURL, opts.Model, opts.Token, pc.LocalDescription().SDP)
	if err != nil {
		return fail(err)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answerSDP,
	}); err != nil {
		return fail(fmt.Errorf("set remote description: %w", err))
	}

	go s.pump(pumpCtx, src, track)

	return nil
}

// pump feeds local audio frames into the outbound track until the source
// ends or the session is torn down.
func (s *Session) pump(ctx context.Context, src audio.Source, track *webrtc.TrackLocalStaticSample) {
	buf := make([]byte, audio.FrameBytes(src.SampleRate(), audio.DefaultFrameDuration))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := io.ReadFull(src, buf)
		if n > 0 {
			pcm := buf[:n]
			if src.SampleRate() != 8000 {
				pcm = downsample16to8(pcm)
			}
			_ = track.WriteSample(media.Sample{
				Data:     encodeMuLaw(pcm),
				Duration: audio.DefaultFrameDuration,
			})
		}
		if err != nil {
			// Exhausted source is a clean disconnection.
			s.Stop()
			return
		}
	}
}

// handleChannelOpen runs when the signaling channel reports ready: session
// configuration goes first, then the opening-turn trigger, guarded so it is
// sent at most once per connection even if the open event fires again.
func (s *Session) handleChannelOpen(voice, instructions string) {
	if err := s.sendJSON(newSessionUpdate(voice, instructions)); err != nil {
		s.fail(fmt.Errorf("send session config: %w", err))
		return
	}
	s.openingTurn.Do(func() {
		if err := s.sendJSON(newResponseCreate()); err != nil {
			slog.Warn("realtime: opening turn trigger failed", slog.String("error", err.Error()))
		}
	})
	if s.setState(StateConnected) && s.cb.OnConnected != nil {
		s.cb.OnConnected()
	}
}

func (s *Session) sendJSON(v any) error {
	s.mu.Lock()
	dc, send := s.dc, s.sendFn
	s.mu.Unlock()

	if send != nil {
		return send(v)
	}
	if dc == nil {
		return errors.New("realtime: signaling channel not open")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal signaling message: %w", err)
	}
	return dc.SendText(string(b))
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Voice returns the negotiated voice identifier.
func (s *Session) Voice() string { return s.voice }

// ChannelState reports the signaling channel's readiness.
func (s *Session) ChannelState() webrtc.DataChannelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dc == nil {
		return webrtc.DataChannelStateClosed
	}
	return s.dc.ReadyState()
}

// setState transitions the lifecycle state. Terminal states are sticky;
// state is updated before any external callback observes it.
func (s *Session) setState(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped || s.state == StateError || s.state == next {
		return false
	}
	s.state = next
	return true
}

// Stop tears the session down: signaling channel, transport, local media,
// pump loops. Safe to call repeatedly and when never connected; each
// resource is released independently with errors suppressed.
func (s *Session) Stop() {
	s.release()
	if s.setState(StateStopped) && s.cb.OnDisconnected != nil {
		s.cb.OnDisconnected()
	}
}

// fail marks the session failed after an unrecoverable transport error and
// releases everything it acquired.
func (s *Session) fail(err error) {
	s.release()
	if s.setState(StateError) && s.cb.OnError != nil {
		s.cb.OnError(err)
	}
}

func (s *Session) release() {
	s.teardown.Do(func() {
		s.mu.Lock()
		dc, pc, src, cancel := s.dc, s.pc, s.source, s.cancel
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if dc != nil {
			_ = dc.Close()
		}
		if pc != nil {
			_ = pc.Close()
		}
		if src != nil {
			_ = src.Close()
		}
	})
}
