package broker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ErrNoActivePrompt is returned when no prompt in the directory is marked
// active. Session starts fail rather than fall back to a client-side script;
// all conversational instructions originate server-side.
var ErrNoActivePrompt = errors.New("broker: no active prompt found")

// Prompt is a YAML-mappable instructions definition.
type Prompt struct {
	Name         string `yaml:"name"         json:"name"`
	Instructions string `yaml:"instructions" json:"instructions"`
	Voice        string `yaml:"voice"        json:"voice,omitempty"`
	Active       bool   `yaml:"active"       json:"active"`
}

// PromptStore loads and optionally hot-reloads instructions prompts from
// YAML files.
type PromptStore struct {
	dir string

	mu      sync.RWMutex
	prompts map[string]*Prompt
}

// NewPromptStore creates a prompt store for the given directory.
func NewPromptStore(dir string) *PromptStore {
	return &PromptStore{
		dir:     dir,
		prompts: make(map[string]*Prompt),
	}
}

// LoadAll loads all .yaml and .yml files from the configured directory.
func (s *PromptStore) LoadAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read prompt dir %q: %w", s.dir, err)
	}

	result := make(map[string]*Prompt)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		p, err := s.loadFile(path)
		if err != nil {
			return fmt.Errorf("load %q: %w", path, err)
		}
		result[p.Name] = p
	}

	s.mu.Lock()
	s.prompts = result
	s.mu.Unlock()

	return nil
}

func (s *PromptStore) loadFile(path string) (*Prompt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p Prompt
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	if p.Name == "" {
		p.Name = filepath.Base(path)
	}
	if p.Instructions == "" {
		return nil, fmt.Errorf("prompt %q: instructions is required", p.Name)
	}

	return &p, nil
}

// Active returns the active prompt. With several prompts marked active the
// pick is unspecified; deployments are expected to keep exactly one.
func (s *PromptStore) Active() (*Prompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.prompts {
		if p.Active {
			return p, nil
		}
	}
	return nil, ErrNoActivePrompt
}

// Get returns a prompt by name.
func (s *PromptStore) Get(name string) (*Prompt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prompts[name]
	return p, ok
}

// WatchAndReload starts watching the prompt directory for changes and
// reloads. Blocks until the done channel is closed.
func (s *PromptStore) WatchAndReload(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", s.dir, err)
	}

	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				ext := filepath.Ext(event.Name)
				if ext == ".yaml" || ext == ".yml" {
					s.LoadAll()
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
