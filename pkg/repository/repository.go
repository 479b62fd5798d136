// Package repository persists store state by key.
package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

var ErrNotFound = errors.New("repository: key not found")

// Repository saves and loads values of one type by key.
type Repository[T any] interface {
	Save(v T, key string) error
	Load(key string) (T, error)
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// JSONFile stores each key as an indented JSON file under Dir.
type JSONFile[T any] struct {
	Dir string
	mu  sync.Mutex
}

func NewJSONFile[T any](dir string) *JSONFile[T] {
	return &JSONFile[T]{Dir: dir}
}

func (r *JSONFile[T]) path(key string) string {
	name := unsafeKeyChars.ReplaceAllString(key, "_")
	return filepath.Join(r.Dir, name+".json")
}

// Save writes v to a temp file and renames it over the previous value.
func (r *JSONFile[T]) Save(v T, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.Dir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	dest := r.path(key)
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", dest, err)
	}
	return nil
}

func (r *JSONFile[T]) Load(key string) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var v T
	data, err := os.ReadFile(r.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return v, ErrNotFound
		}
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return v, nil
}

// Memory is an in-process Repository.
type Memory[T any] struct {
	mu    sync.RWMutex
	items map[string]T
	// SaveErr, when set, is returned by every Save.
	SaveErr error
}

func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{items: make(map[string]T)}
}

func (m *Memory[T]) Save(v T, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.items[key] = v
	return nil
}

func (m *Memory[T]) Load(key string) (T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	return v, nil
}
