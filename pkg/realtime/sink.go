package realtime

import (
	"context"
	"io"
	"log/slog"

	"github.com/pion/opus"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// opusSink pulls RTP packets from the remote audio track, decodes the Opus
// payloads, and writes raw PCM to the caller's sink. Sink write errors are
// logged and the packet dropped; remote audio is best-effort and never
// terminates the session.
type opusSink struct {
	dst     io.Writer
	decoder *opus.Decoder
	pcmBuf  []byte
}

func newOpusSink(dst io.Writer) *opusSink {
	return &opusSink{
		dst:     dst,
		decoder: &opus.Decoder{},
		// 48kHz Opus frame at 20ms = 960 samples, possibly stereo.
		pcmBuf: make([]byte, 960*2*2),
	}
}

// consume runs until the track ends or ctx is cancelled.
func (s *opusSink) consume(ctx context.Context, track *webrtc.TrackRemote) {
	var pkt *rtp.Packet
	var readErr error
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pkt, _, readErr = track.ReadRTP()
		if readErr != nil {
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		if _, _, err := s.decoder.Decode(pkt.Payload, s.pcmBuf); err != nil {
			slog.DebugContext(ctx, "realtime: opus decode failed", slog.String("error", err.Error()))
			continue
		}

		if _, err := s.dst.Write(s.pcmBuf); err != nil {
			slog.WarnContext(ctx, "realtime: audio sink write failed", slog.String("error", err.Error()))
		}
	}
}
