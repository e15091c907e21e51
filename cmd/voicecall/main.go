// Command voicecall is a terminal client for the voicebridge server: it
// starts a session, streams local audio to the speech model, and prints the
// reconciled conversation transcript when the call ends.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pitabwire/frame/config"

	vbconfig "github.com/voicebridge/voicebridge/config"
	"github.com/voicebridge/voicebridge/internal/call"
	"github.com/voicebridge/voicebridge/pkg/audio"
	"github.com/voicebridge/voicebridge/pkg/realtime"
	"github.com/voicebridge/voicebridge/pkg/segment"
	"github.com/voicebridge/voicebridge/pkg/transcript"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWithOIDC[vbconfig.CallConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// Audio comes from a WAV/PCM file argument, or stdin when absent.
	// S16LE mono at the configured sample rate.
	input := os.Stdin
	if len(os.Args) > 1 {
		f, err := os.Open(os.Args[1])
		if err != nil {
			log.Fatalf("opening audio input: %v", err)
		}
		defer f.Close()
		input = f
	}

	mgr := realtime.NewManager(cfg.WebRTCConfig())

	c, err := call.Start(ctx, mgr, call.Options{
		BridgeURL:       cfg.BridgeURL,
		RealtimeBaseURL: cfg.RealtimeBaseURL,
		Segmentation: segment.Config{
			Threshold:  cfg.VADThreshold,
			MinSilence: cfg.MinSilence(),
			SampleRate: cfg.SampleRate,
		},
		Mic: func(ctx context.Context) (audio.Source, error) {
			return openInput(input, cfg.SampleRate)
		},
		AudioSink: io.Discard,
	})
	if err != nil {
		log.Fatalf("starting call: %v", err)
	}

	fmt.Fprintf(os.Stderr, "call started, conversation %s (ctrl-c to end)\n", c.Log().ConversationID())

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			switch c.Session().State() {
			case realtime.StateStopped, realtime.StateError:
				break loop
			}
		}
	}

	c.Stop(context.WithoutCancel(ctx))

	for _, u := range c.Log().Entries() {
		printUtterance(u)
	}
}

// openInput wraps the raw reader as an audio source, skipping a WAV header
// when one is present so files and raw PCM streams both work.
func openInput(r io.Reader, sampleRate int) (audio.Source, error) {
	head := make([]byte, 4)
	n, err := io.ReadFull(r, head)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return audio.NewReaderSource(io.MultiReader(bytes.NewReader(head[:n]), r), sampleRate), nil
		}
		return nil, fmt.Errorf("read audio input: %w", err)
	}

	if string(head) == "RIFF" {
		// Discard the rest of the 44-byte canonical header.
		if _, err := io.CopyN(io.Discard, r, 40); err != nil {
			return nil, fmt.Errorf("skip wav header: %w", err)
		}
		return audio.NewReaderSource(r, sampleRate), nil
	}

	return audio.NewReaderSource(io.MultiReader(bytes.NewReader(head), r), sampleRate), nil
}

func printUtterance(u transcript.Utterance) {
	if u.Role == transcript.RoleUser && u.EndMs > 0 {
		fmt.Printf("[%6.1fs] %s: %s\n", float64(u.StartMs)/1000, u.Role, u.Content)
		return
	}
	fmt.Printf("          %s: %s\n", u.Role, u.Content)
}
