package segment

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/voicebridge/voicebridge/pkg/audio"
)

const (
	testRate     = 16000
	frameSamples = 320 // 20ms at 16kHz
	frameMs      = 20
)

func speechFrame() []byte {
	return constFrame(16384) // energy 0.5, well above threshold
}

func silenceFrame() []byte {
	return constFrame(0)
}

func constFrame(sample int16) []byte {
	out := make([]byte, frameSamples*2)
	for i := 0; i < frameSamples; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}

func newTestSegmenter(onClip ClipFunc) *Segmenter {
	return New(Config{
		Threshold:  0.02,
		MinSilence: 800 * time.Millisecond,
		SampleRate: testRate,
	}, onClip)
}

func TestSegmenterSingleBurst(t *testing.T) {
	var clips []Clip
	seg := newTestSegmenter(func(c Clip) { clips = append(clips, c) })

	// 1000ms of speech followed by enough silence to close the clip.
	for i := 0; i < 1000/frameMs; i++ {
		seg.Process(speechFrame())
	}
	if !seg.Recording() {
		t.Fatal("expected recording after speech onset")
	}
	for i := 0; i < 800/frameMs; i++ {
		seg.Process(silenceFrame())
	}

	if len(clips) != 1 {
		t.Fatalf("clips = %d, want 1", len(clips))
	}
	c := clips[0]
	if c.StartMs != 0 {
		t.Fatalf("StartMs = %d, want 0", c.StartMs)
	}
	if c.EndMs != 1800 {
		t.Fatalf("EndMs = %d, want 1800", c.EndMs)
	}
	// The clip brackets the burst: speech plus the trailing silence window.
	wantBytes := (1000 + 800) / frameMs * frameSamples * 2
	if len(c.PCM) != wantBytes {
		t.Fatalf("clip size = %d, want %d", len(c.PCM), wantBytes)
	}
	if seg.Recording() {
		t.Fatal("expected recording closed after silence window")
	}
}

func TestSegmenterBelowThresholdNeverOpens(t *testing.T) {
	seg := newTestSegmenter(func(Clip) { t.Fatal("unexpected clip") })

	for i := 0; i < 100; i++ {
		seg.Process(silenceFrame())
	}
	if seg.Recording() {
		t.Fatal("recording opened on silence")
	}
}

func TestSegmenterShortPauseDoesNotSplit(t *testing.T) {
	var clips []Clip
	seg := newTestSegmenter(func(c Clip) { clips = append(clips, c) })

	// Speech, a pause shorter than the silence window, more speech.
	for i := 0; i < 500/frameMs; i++ {
		seg.Process(speechFrame())
	}
	for i := 0; i < 400/frameMs; i++ {
		seg.Process(silenceFrame())
	}
	for i := 0; i < 500/frameMs; i++ {
		seg.Process(speechFrame())
	}
	if len(clips) != 0 {
		t.Fatalf("clips = %d, want 0 while still recording", len(clips))
	}

	for i := 0; i < 800/frameMs; i++ {
		seg.Process(silenceFrame())
	}
	if len(clips) != 1 {
		t.Fatalf("clips = %d, want 1", len(clips))
	}
	if clips[0].StartMs != 0 || clips[0].EndMs != 2200 {
		t.Fatalf("clip bounds = [%d,%d], want [0,2200]", clips[0].StartMs, clips[0].EndMs)
	}
}

func TestSegmenterSecondBurstStartsNewClip(t *testing.T) {
	var clips []Clip
	seg := newTestSegmenter(func(c Clip) { clips = append(clips, c) })

	for i := 0; i < 200/frameMs; i++ {
		seg.Process(speechFrame())
	}
	for i := 0; i < 800/frameMs; i++ {
		seg.Process(silenceFrame())
	}
	for i := 0; i < 200/frameMs; i++ {
		seg.Process(speechFrame())
	}
	for i := 0; i < 800/frameMs; i++ {
		seg.Process(silenceFrame())
	}

	if len(clips) != 2 {
		t.Fatalf("clips = %d, want 2", len(clips))
	}
	if clips[1].StartMs != 1000 {
		t.Fatalf("second clip StartMs = %d, want 1000", clips[1].StartMs)
	}
	if clips[1].EndMs != 2000 {
		t.Fatalf("second clip EndMs = %d, want 2000", clips[1].EndMs)
	}
}

func TestSegmenterStopDiscardsOpenClip(t *testing.T) {
	seg := newTestSegmenter(func(Clip) { t.Fatal("clip emitted after stop") })

	for i := 0; i < 10; i++ {
		seg.Process(speechFrame())
	}
	seg.Stop()

	if seg.Recording() {
		t.Fatal("recording after stop")
	}

	// Further input is ignored, including the close condition.
	for i := 0; i < 100; i++ {
		seg.Process(silenceFrame())
	}
	seg.Stop() // idempotent
}

func TestTapPassesAudioThrough(t *testing.T) {
	var clips []Clip
	seg := newTestSegmenter(func(c Clip) { clips = append(clips, c) })

	var stream bytes.Buffer
	for i := 0; i < 200/frameMs; i++ {
		stream.Write(speechFrame())
	}
	for i := 0; i < 800/frameMs; i++ {
		stream.Write(silenceFrame())
	}
	want := append([]byte(nil), stream.Bytes()...)

	src := seg.Tap(audio.NewReaderSource(&stream, testRate))
	if src.SampleRate() != testRate {
		t.Fatalf("SampleRate() = %d, want %d", src.SampleRate(), testRate)
	}

	var passed bytes.Buffer
	buf := make([]byte, frameSamples*2)
	for {
		n, err := io.ReadFull(src, buf)
		passed.Write(buf[:n])
		if err != nil {
			break
		}
	}

	if !bytes.Equal(passed.Bytes(), want) {
		t.Fatalf("tap altered the stream: got %d bytes, want %d", passed.Len(), len(want))
	}
	if len(clips) != 1 {
		t.Fatalf("clips = %d, want 1", len(clips))
	}
}
