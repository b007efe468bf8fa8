package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Backend loads and persists models
type Backend interface {
	Load(ctx context.Context) (Model, error) // ErrModelNotFound when nothing is stored
	Save(ctx context.Context, m Model) error
}

// FileBackend stores a LogisticModel as JSON
type FileBackend struct {
	path string
}

// NewFileBackend stores the model under <stateDir>/models/distraction.json
func NewFileBackend(stateDir string) *FileBackend {
	return &FileBackend{path: filepath.Join(stateDir, "models", "distraction.json")}
}

// Path returns the model file location
func (b *FileBackend) Path() string { return b.path }

// Load reads the stored model
func (b *FileBackend) Load(ctx context.Context) (Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrModelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}

	var m LogisticModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", b.path, err)
	}
	return &m, nil
}

// Save writes the model atomically. Only LogisticModel is supported.
func (b *FileBackend) Save(ctx context.Context, m Model) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lm, ok := m.(*LogisticModel)
	if !ok {
		return fmt.Errorf("file backend cannot persist %T", m)
	}

	data, err := json.MarshalIndent(lm, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("replace model: %w", err)
	}
	return nil
}
