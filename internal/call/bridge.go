// Package call runs one end-to-end voice conversation: it obtains
// credentials from the bridge, drives the realtime session, segments the
// local audio into clips, and reconciles transcription results into the
// conversation log.
package call

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/voicebridge/voicebridge/internal/api"
	"github.com/voicebridge/voicebridge/internal/rest"
	"github.com/voicebridge/voicebridge/pkg/audio"
)

// BridgeClient talks to the voicebridge server's REST surface.
type BridgeClient struct {
	baseURL string
}

// NewBridgeClient creates a client for the given bridge base URL.
func NewBridgeClient(baseURL string) *BridgeClient {
	return &BridgeClient{baseURL: baseURL}
}

// StartSession requests ephemeral realtime credentials and a conversation
// record from the bridge.
func (c *BridgeClient) StartSession(ctx context.Context) (*api.SessionResponse, error) {
	var resp api.SessionResponse
	if err := rest.DoJSON(ctx, http.MethodPost, c.baseURL+"/api/v1/sessions", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	return &resp, nil
}

// Transcribe uploads one PCM clip to the bridge's transcription proxy and
// returns the recognized text. Empty text is a valid result.
func (c *BridgeClient) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio", "clip.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio.WAVFromPCM(pcm, sampleRate)); err != nil {
		return "", fmt.Errorf("write clip: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	body, err := rest.DoRaw(ctx, http.MethodPost, c.baseURL+"/api/v1/transcriptions",
		map[string]string{"Content-Type": mw.FormDataContentType()}, &buf)
	if err != nil {
		return "", fmt.Errorf("transcribe clip: %w", err)
	}
	defer body.Close()

	var result api.TranscriptionResponse
	if err := json.NewDecoder(body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode transcription: %w", err)
	}
	return result.Text, nil
}
