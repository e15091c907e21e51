package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"

	"github.com/voicebridge/voicebridge/internal/rest"
	"github.com/voicebridge/voicebridge/pkg/audio"
)

func init() {
	Register("openai", func(config map[string]string) (Transcriber, error) {
		apiKey := config["openai_api_key"]
		if apiKey == "" {
			apiKey = config["api_key"]
		}
		if apiKey == "" {
			return nil, fmt.Errorf("openai API key required (set openai_api_key in config)")
		}
		baseURL := config["openai_base_url"]
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		model := config["model"]
		if model == "" {
			model = "gpt-4o-mini-transcribe"
		}
		return &OpenAITranscriber{apiKey: apiKey, baseURL: baseURL, model: model}, nil
	})
}

// OpenAITranscriber uses the OpenAI-compatible transcription API.
type OpenAITranscriber struct {
	apiKey  string
	baseURL string
	model   string
}

func (o *OpenAITranscriber) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	// The API requires a file format; wrap raw PCM as WAV.
	wav := audio.WAVFromPCM(pcm, audio.DefaultSampleRate)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("openai transcribe: create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("openai transcribe: write form file: %w", err)
	}
	_ = writer.WriteField("model", o.model)
	_ = writer.WriteField("response_format", "json")
	writer.Close()

	headers := map[string]string{
		"Authorization": "Bearer " + o.apiKey,
		"Content-Type":  writer.FormDataContentType(),
	}

	respBody, err := rest.DoRaw(ctx, "POST", o.baseURL+"/audio/transcriptions", headers, &body)
	if err != nil {
		return "", fmt.Errorf("openai transcribe: %w", err)
	}
	defer respBody.Close()

	var resp struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
		return "", fmt.Errorf("openai transcribe decode: %w", err)
	}

	return resp.Text, nil
}

func (o *OpenAITranscriber) Close() error { return nil }
