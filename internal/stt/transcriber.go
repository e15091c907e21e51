// Package stt transcribes bounded audio clips through pluggable REST
// backends. An empty transcript is a valid result, never an error: the
// caller decides how to present an unrecognized clip.
package stt

import (
	"context"
	"fmt"
	"sync"
)

// Transcriber converts one utterance of S16LE 16kHz mono PCM to text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte) (string, error)
	Close() error
}

// Factory creates a Transcriber from a config map.
type Factory func(config map[string]string) (Transcriber, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register adds a named backend factory. Called from backend init functions.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = factory
}

// New instantiates the named backend.
func New(name string, config map[string]string) (Transcriber, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown transcription backend %q", name)
	}
	return factory(config)
}

// Backends returns all registered backend names.
func Backends() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}
