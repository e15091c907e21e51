package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/voicebridge/voicebridge/internal/rest"
)

func init() {
	Register("deepgram", func(config map[string]string) (Transcriber, error) {
		apiKey := config["deepgram_api_key"]
		if apiKey == "" {
			apiKey = config["api_key"]
		}
		if apiKey == "" {
			return nil, fmt.Errorf("deepgram API key required (set deepgram_api_key in config)")
		}
		model := config["deepgram_model"]
		if model == "" {
			model = "nova-2"
		}
		lang := config["language"]
		if lang == "" {
			lang = "en"
		}
		return &DeepgramTranscriber{apiKey: apiKey, model: model, language: lang}, nil
	})
}

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float32 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// DeepgramTranscriber uses the Deepgram REST API with raw linear PCM input.
type DeepgramTranscriber struct {
	apiKey   string
	model    string
	language string
}

func (d *DeepgramTranscriber) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	params := url.Values{}
	params.Set("model", d.model)
	params.Set("language", d.language)
	apiURL := "https://api.deepgram.com/v1/listen?" + params.Encode()

	headers := map[string]string{
		"Authorization": "Token " + d.apiKey,
		"Content-Type":  "audio/l16;rate=16000;channels=1",
	}

	body, err := rest.DoRaw(ctx, "POST", apiURL, headers, bytes.NewReader(pcm))
	if err != nil {
		return "", fmt.Errorf("deepgram transcribe: %w", err)
	}
	defer body.Close()

	var resp deepgramResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", fmt.Errorf("deepgram decode: %w", err)
	}

	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return resp.Results.Channels[0].Alternatives[0].Transcript, nil
}

func (d *DeepgramTranscriber) Close() error { return nil }
