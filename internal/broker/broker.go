// Package broker issues ephemeral credentials for real-time sessions. It
// mints a short-lived, single-use token against the upstream speech-model
// API and pairs it with the active server-side instructions prompt.
package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/voicebridge/voicebridge/internal/rest"
)

// ErrNoAPIKey is returned when the upstream key is not configured. Fatal to
// session start, reported before any network action.
var ErrNoAPIKey = errors.New("broker: upstream API key not configured")

// Config holds the upstream realtime API settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
}

// Credentials is everything a client needs for one real-time connection.
type Credentials struct {
	SessionToken string
	ModelID      string
	Voice        string
	Instructions string
	PromptName   string
}

// Broker mints ephemeral sessions.
type Broker struct {
	cfg     Config
	prompts *PromptStore
}

// New creates a broker backed by the given prompt store.
func New(cfg Config, prompts *PromptStore) *Broker {
	return &Broker{cfg: cfg, prompts: prompts}
}

type mintRequest struct {
	Model         string        `json:"model"`
	Voice         string        `json:"voice"`
	TurnDetection turnDetection `json:"turn_detection"`
}

type turnDetection struct {
	Type string `json:"type"`
}

type mintResponse struct {
	ClientSecret struct {
		Value string `json:"value"`
	} `json:"client_secret"`
}

// Mint creates an ephemeral upstream session and returns its credentials
// together with the active instructions. Upstream failures are surfaced
// verbatim for the caller to relay.
func (b *Broker) Mint(ctx context.Context) (*Credentials, error) {
	if b.cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	prompt, err := b.prompts.Active()
	if err != nil {
		return nil, err
	}

	voice := b.cfg.Voice
	if prompt.Voice != "" {
		voice = prompt.Voice
	}

	var resp mintResponse
	err = rest.DoJSON(ctx, "POST", b.cfg.BaseURL+"/realtime/sessions",
		map[string]string{"Authorization": "Bearer " + b.cfg.APIKey},
		mintRequest{
			Model:         b.cfg.Model,
			Voice:         voice,
			TurnDetection: turnDetection{Type: "server_vad"},
		},
		&resp,
	)
	if err != nil {
		return nil, fmt.Errorf("mint realtime session: %w", err)
	}
	if resp.ClientSecret.Value == "" {
		return nil, errors.New("broker: upstream returned no client secret")
	}

	return &Credentials{
		SessionToken: resp.ClientSecret.Value,
		ModelID:      b.cfg.Model,
		Voice:        voice,
		Instructions: prompt.Instructions,
		PromptName:   prompt.Name,
	}, nil
}
