package config

import (
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pitabwire/frame/config"
)

// BridgeConfig holds configuration for the voicebridge server.
type BridgeConfig struct {
	config.ConfigurationDefault

	// Upstream realtime speech model.
	RealtimeAPIKey  string `envDefault:""                                    env:"REALTIME_API_KEY"`
	RealtimeBaseURL string `envDefault:"https://api.openai.com/v1"           env:"REALTIME_BASE_URL"`
	RealtimeModel   string `envDefault:"gpt-4o-realtime-preview-2024-12-17"  env:"REALTIME_MODEL"`
	RealtimeVoice   string `envDefault:"alloy"                               env:"REALTIME_VOICE"`

	// Instructions prompts.
	PromptDir string `envDefault:"./prompts" env:"PROMPT_DIR"`

	// Transcription proxy.
	TranscribeBackend string `envDefault:"openai"                    env:"TRANSCRIBE_BACKEND"`
	TranscribeModel   string `envDefault:"gpt-4o-mini-transcribe"    env:"TRANSCRIBE_MODEL"`
	OpenAIAPIKey      string `envDefault:""                          env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string `envDefault:"https://api.openai.com/v1" env:"OPENAI_BASE_URL"`
	DeepgramAPIKey    string `envDefault:""                          env:"DEEPGRAM_API_KEY"`

	// Outbound event delivery.
	WebhookMaxRetries int `envDefault:"5"   env:"WEBHOOK_MAX_RETRIES"`
	WebhookTimeoutSec int `envDefault:"10"  env:"WEBHOOK_TIMEOUT_SEC"`
	WebhookBackoffSec int `envDefault:"1"   env:"WEBHOOK_BACKOFF_INITIAL_SEC"`
	WebhookBackoffMax int `envDefault:"300" env:"WEBHOOK_BACKOFF_MAX_SEC"`
	CBFailThreshold   int `envDefault:"5"   env:"CB_FAILURE_THRESHOLD"`
	CBResetTimeoutSec int `envDefault:"60"  env:"CB_RESET_TIMEOUT_SEC"`

	// Worker pool shared by event fanout and delivery retries.
	WorkerPoolCount    int `envDefault:"2"   env:"WORKER_POOL_COUNT"`
	WorkerPoolCapacity int `envDefault:"100" env:"WORKER_POOL_CAPACITY"`
}

// TranscriberConfig assembles the backend config map passed to the
// transcriber registry.
func (c *BridgeConfig) TranscriberConfig() map[string]string {
	return map[string]string{
		"model":            c.TranscribeModel,
		"openai_api_key":   c.OpenAIAPIKey,
		"openai_base_url":  c.OpenAIBaseURL,
		"deepgram_api_key": c.DeepgramAPIKey,
	}
}

// CallConfig holds configuration for the voicecall client.
type CallConfig struct {
	config.ConfigurationDefault

	BridgeURL       string `envDefault:"http://localhost:8080"        env:"BRIDGE_URL"`
	RealtimeBaseURL string `envDefault:"https://api.openai.com/v1"    env:"REALTIME_BASE_URL"`
	STUNServers     string `envDefault:"stun:stun.l.google.com:19302" env:"STUN_SERVERS"`
	TURNServers     string `envDefault:""                             env:"TURN_SERVERS"`
	TURNUsername    string `envDefault:""                             env:"TURN_USERNAME"`
	TURNPassword    string `envDefault:""                             env:"TURN_PASSWORD"`

	// Voice activity segmentation. Threshold is normalized RMS in [0,1].
	VADThreshold    float64 `envDefault:"0.02"  env:"VAD_THRESHOLD"`
	VADMinSilenceMs int     `envDefault:"800"   env:"VAD_MIN_SILENCE_MS"`
	SampleRate      int     `envDefault:"16000" env:"SAMPLE_RATE"`
}

// MinSilence returns the trailing-silence window as a duration.
func (c *CallConfig) MinSilence() time.Duration {
	return time.Duration(c.VADMinSilenceMs) * time.Millisecond
}

// WebRTCConfig builds a webrtc.Configuration from the STUN/TURN settings.
func (c *CallConfig) WebRTCConfig() webrtc.Configuration {
	return buildWebRTCConfig(c.STUNServers, c.TURNServers, c.TURNUsername, c.TURNPassword)
}

// buildWebRTCConfig creates a webrtc.Configuration from STUN/TURN server strings.
func buildWebRTCConfig(stunServers, turnServers, turnUsername, turnPassword string) webrtc.Configuration {
	var iceServers []webrtc.ICEServer
	if stunServers != "" {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs: strings.Split(stunServers, ","),
		})
	}
	if turnServers != "" {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:           strings.Split(turnServers, ","),
			Username:       turnUsername,
			Credential:     turnPassword,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}
	return webrtc.Configuration{ICEServers: iceServers}
}
