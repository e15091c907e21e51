package audio

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
	"time"
)

// pcmConstant builds S16LE mono PCM where every sample has the given value.
func pcmConstant(sample int16, n int) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}

func TestEnergySilence(t *testing.T) {
	if got := Energy(pcmConstant(0, 320)); got != 0 {
		t.Fatalf("Energy(silence) = %v, want 0", got)
	}
}

func TestEnergyHalfScale(t *testing.T) {
	got := Energy(pcmConstant(16384, 320))
	if got < 0.49 || got > 0.51 {
		t.Fatalf("Energy(half-scale) = %v, want ~0.5", got)
	}
}

func TestEnergyNormalized(t *testing.T) {
	got := Energy(pcmConstant(-32768, 320))
	if got < 0.99 || got > 1.01 {
		t.Fatalf("Energy(full-scale) = %v, want ~1.0", got)
	}
}

func TestEnergyEmpty(t *testing.T) {
	if got := Energy(nil); got != 0 {
		t.Fatalf("Energy(nil) = %v, want 0", got)
	}
}

func TestFrameBytes(t *testing.T) {
	if got := FrameBytes(16000, 20*time.Millisecond); got != 640 {
		t.Fatalf("FrameBytes(16000, 20ms) = %d, want 640", got)
	}
	if got := FrameBytes(8000, 20*time.Millisecond); got != 320 {
		t.Fatalf("FrameBytes(8000, 20ms) = %d, want 320", got)
	}
}

func TestWAVFromPCM(t *testing.T) {
	pcm := pcmConstant(100, 160)
	wav := WAVFromPCM(pcm, 16000)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if !bytes.HasPrefix(wav, []byte("RIFF")) {
		t.Fatalf("wav missing RIFF marker: %q", wav[:4])
	}
	if got := string(wav[8:12]); got != "WAVE" {
		t.Fatalf("wav format = %q, want WAVE", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Fatalf("wav sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Fatalf("wav data size = %d, want %d", got, len(pcm))
	}
	if !bytes.Equal(wav[44:], pcm) {
		t.Fatal("wav payload does not match input PCM")
	}
}

func TestReaderSource(t *testing.T) {
	src := NewReaderSource(strings.NewReader("abcd"), 16000)
	defer src.Close()

	if got := src.SampleRate(); got != 16000 {
		t.Fatalf("SampleRate() = %d, want 16000", got)
	}

	buf := make([]byte, 4)
	n, err := src.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 4 || string(buf) != "abcd" {
		t.Fatalf("Read = %d %q, want 4 %q", n, buf, "abcd")
	}
}
