// Package segment turns a continuous PCM stream into discrete clips bounded
// by detected speech bursts, using energy-based detection.
package segment

import (
	"io"
	"sync"
	"time"

	"github.com/voicebridge/voicebridge/pkg/audio"
)

// Config holds segmentation parameters.
type Config struct {
	Threshold  float64       // normalized energy threshold in [0,1]
	MinSilence time.Duration // trailing silence that closes an open clip
	SampleRate int           // PCM sample rate in Hz
}

// DefaultConfig returns the tuning used by the live pipeline.
func DefaultConfig() Config {
	return Config{
		Threshold:  0.02,
		MinSilence: 800 * time.Millisecond,
		SampleRate: audio.DefaultSampleRate,
	}
}

// Clip is one bounded recording bracketing a speech burst. Timestamps are
// milliseconds relative to the start of the stream.
type Clip struct {
	PCM     []byte
	StartMs int64
	EndMs   int64
}

// ClipFunc receives each finalized clip.
type ClipFunc func(Clip)

// Segmenter detects speech/silence boundaries on a PCM stream. Time is
// derived from sample counts, never from the wall clock, so boundary
// decisions are deterministic for a given input.
type Segmenter struct {
	cfg    Config
	onClip ClipFunc

	mu           sync.Mutex
	stopped      bool
	recording    bool
	clip         []byte
	clipStartMs  int64
	lastSpeechMs int64
	posSamples   int64
}

// New creates a segmenter that invokes onClip for every finalized clip.
func New(cfg Config, onClip ClipFunc) *Segmenter {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}
	return &Segmenter{cfg: cfg, onClip: onClip}
}

// Process analyzes one S16LE mono frame and advances the stream clock.
// Opening and closing are idempotent across repeated threshold crossings.
// The clip callback runs outside the segmenter lock; it may block on a
// transcription round trip without stalling concurrent Stop calls.
func (s *Segmenter) Process(frame []byte) {
	s.mu.Lock()

	if s.stopped {
		s.mu.Unlock()
		return
	}

	nowMs := s.posSamples * 1000 / int64(s.cfg.SampleRate)
	s.posSamples += int64(len(frame) / 2)
	endMs := s.posSamples * 1000 / int64(s.cfg.SampleRate)

	energy := audio.Energy(frame)

	if energy > s.cfg.Threshold {
		s.lastSpeechMs = endMs
		if !s.recording {
			s.recording = true
			s.clip = s.clip[:0]
			s.clipStartMs = nowMs
		}
	}

	if !s.recording {
		s.mu.Unlock()
		return
	}

	s.clip = append(s.clip, frame...)

	// Close only once the trailing silence window has fully elapsed.
	var done *Clip
	if energy <= s.cfg.Threshold && endMs-s.lastSpeechMs >= s.cfg.MinSilence.Milliseconds() {
		s.recording = false
		done = &Clip{
			PCM:     append([]byte(nil), s.clip...),
			StartMs: s.clipStartMs,
			EndMs:   endMs,
		}
		s.clip = s.clip[:0]
	}
	s.mu.Unlock()

	if done != nil && s.onClip != nil {
		s.onClip(*done)
	}
}

// Recording reports whether a clip is currently open.
func (s *Segmenter) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// Stop halts segmentation. Any open clip is discarded and no further clips
// are emitted. Safe to call multiple times.
func (s *Segmenter) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.recording = false
	s.clip = nil
}

// Tap wraps src so that every frame read through it is also analyzed by the
// segmenter. The session owns the stream; the tap never mutates the audio.
func (s *Segmenter) Tap(src audio.Source) audio.Source {
	return &tapSource{Source: src, seg: s}
}

type tapSource struct {
	audio.Source
	seg *Segmenter
}

func (t *tapSource) Read(p []byte) (int, error) {
	n, err := t.Source.Read(p)
	if n > 0 {
		t.seg.Process(p[:n])
	}
	if err != nil && err != io.EOF {
		return n, err
	}
	return n, err
}
