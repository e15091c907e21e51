package broker

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPromptStoreLoadAll(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "greeter.yaml", `
name: greeter
instructions: "Greet warmly."
active: true
`)
	writePrompt(t, dir, "support.yml", `
name: support
instructions: "Answer support questions."
`)
	writePrompt(t, dir, "notes.txt", "ignored")

	store := NewPromptStore(dir)
	if err := store.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	if _, ok := store.Get("greeter"); !ok {
		t.Fatal("greeter prompt missing")
	}
	if _, ok := store.Get("support"); !ok {
		t.Fatal("support prompt missing")
	}
	if _, ok := store.Get("notes.txt"); ok {
		t.Fatal("non-YAML file loaded as prompt")
	}

	active, err := store.Active()
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if active.Name != "greeter" {
		t.Fatalf("active = %q, want greeter", active.Name)
	}
}

func TestPromptStoreRequiresInstructions(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "empty.yaml", `
name: empty
active: true
`)

	store := NewPromptStore(dir)
	if err := store.LoadAll(); err == nil {
		t.Fatal("expected error for prompt without instructions")
	}
}

func TestPromptStoreNameDefaultsToFilename(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "unnamed.yaml", `
instructions: "something"
`)

	store := NewPromptStore(dir)
	if err := store.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if _, ok := store.Get("unnamed.yaml"); !ok {
		t.Fatal("prompt not keyed by filename")
	}
}

func TestPromptStoreNoActive(t *testing.T) {
	store := NewPromptStore(t.TempDir())
	if err := store.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if _, err := store.Active(); !errors.Is(err, ErrNoActivePrompt) {
		t.Fatalf("err = %v, want ErrNoActivePrompt", err)
	}
}

func TestWatchAndReload(t *testing.T) {
	dir := t.TempDir()
	store := NewPromptStore(dir)
	if err := store.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	done := make(chan struct{})
	watchErr := make(chan error, 1)
	go func() { watchErr <- store.WatchAndReload(done) }()
	defer close(done)

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "live.yaml"), []byte(`
name: live
instructions: "hot reloaded"
active: true
`), 0644); err != nil {
		t.Fatalf("write prompt: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		if p, ok := store.Get("live"); ok {
			if !p.Active {
				t.Fatal("reloaded prompt not active")
			}
			return
		}
		select {
		case err := <-watchErr:
			t.Fatalf("watcher exited: %v", err)
		case <-deadline:
			t.Fatal("prompt not reloaded after write")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
