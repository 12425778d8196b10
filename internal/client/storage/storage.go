// Package storage keeps the couplegram client's local state: the session
// file, interactive prompts and the background feed refresher.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LocalStorage is the JSON state file of the client.
type LocalStorage struct {
	path string

	mu    sync.Mutex
	state State
}

// Open loads the state file at path. A missing file yields an empty state.
func Open(path string) (*LocalStorage, error) {
	ls := &LocalStorage{path: path}
	if err := ls.Load(); err != nil {
		return nil, err
	}
	return ls, nil
}

// Load rereads the state file.
func (ls *LocalStorage) Load() error {
	data, err := os.ReadFile(ls.path)
	if errors.Is(err, os.ErrNotExist) {
		ls.mu.Lock()
		ls.state = State{}
		ls.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode state %s: %w", ls.path, err)
	}
	ls.mu.Lock()
	ls.state = s
	ls.mu.Unlock()
	return nil
}

// Save writes the state file through a temporary file so that a crash
// never leaves a truncated state. The file holds a bearer token and is
// only readable by the owner.
func (ls *LocalStorage) Save() error {
	ls.mu.Lock()
	ls.state.SavedAt = time.Now().UTC()
	data, err := json.MarshalIndent(ls.state, "", "  ")
	ls.mu.Unlock()
	if err != nil {
		return err
	}

	dir := filepath.Dir(ls.path)
	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), ls.path)
}

// State returns a copy of the current state.
func (ls *LocalStorage) State() State {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.state
}

// Update applies fn to the state and saves it.
func (ls *LocalStorage) Update(fn func(*State)) error {
	ls.mu.Lock()
	fn(&ls.state)
	ls.mu.Unlock()
	return ls.Save()
}

// Clear forgets the session and saves.
func (ls *LocalStorage) Clear() error {
	return ls.Update(func(s *State) { *s = State{} })
}
