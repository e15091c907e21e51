package audio

import (
	"errors"
	"io"
	"time"
)

// DefaultSampleRate is the PCM sample rate used throughout the pipeline.
const DefaultSampleRate = 16000

// DefaultFrameDuration is the cadence at which sources deliver PCM frames.
const DefaultFrameDuration = 20 * time.Millisecond

// ErrPermissionDenied is returned when the capture device exists but access
// to it was refused. Callers surface this distinctly so a UI can prompt the
// user instead of retrying.
var ErrPermissionDenied = errors.New("audio: capture permission denied")

// Source is a live audio source delivering S16LE mono PCM. Each Read returns
// at most one frame of audio. Close releases the underlying device.
type Source interface {
	io.Reader
	io.Closer

	// SampleRate returns the PCM sample rate in Hz.
	SampleRate() int
}

// FrameBytes returns the byte size of one S16LE mono frame at the given
// sample rate and frame duration.
func FrameBytes(sampleRate int, frame time.Duration) int {
	return int(int64(sampleRate)*frame.Milliseconds()/1000) * 2
}

// readerSource adapts an io.Reader (a capture pipe, a WAV data section) into
// a Source.
type readerSource struct {
	r    io.Reader
	rate int
}

// NewReaderSource wraps r as a Source with the given sample rate. If r
// implements io.Closer it is closed by Close, otherwise Close is a no-op.
func NewReaderSource(r io.Reader, sampleRate int) Source {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &readerSource{r: r, rate: sampleRate}
}

func (s *readerSource) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

func (s *readerSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *readerSource) SampleRate() int { return s.rate }
