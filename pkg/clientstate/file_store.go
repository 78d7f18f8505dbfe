package clientstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// FileStore persists State as JSON in a single file.
type FileStore struct {
	mu       sync.RWMutex
	filename string
	state    State
}

// NewFileStore opens filename, creating default state when the file does not
// exist yet.
func NewFileStore(filename string) (*FileStore, error) {
	if filename == "" {
		return nil, errors.New("clientstate: filename is required")
	}
	store := &FileStore{filename: filename, state: Default()}
	if err := store.loadFromFile(); err != nil {
		return nil, err
	}
	return store, nil
}

func (f *FileStore) Load(ctx context.Context) (State, error) {
	var span trace.Span
	_, span = tracer.Start(ctx, "FileStore.Load")
	defer span.End()

	span.AddEvent("RLock")
	f.mu.RLock()
	defer span.AddEvent("RUnlock")
	defer f.mu.RUnlock()

	return f.state, nil
}

func (f *FileStore) Save(ctx context.Context, state State) error {
	var span trace.Span
	ctx, span = tracer.Start(ctx, "FileStore.Save")
	defer span.End()

	span.AddEvent("Lock")
	f.mu.Lock()
	defer span.AddEvent("Unlock")
	defer f.mu.Unlock()

	previous := f.state
	f.state = state
	if err := f.saveToFile(ctx); err != nil {
		f.state = previous
		span.RecordError(err)
		return err
	}
	return nil
}

func (f *FileStore) saveToFile(ctx context.Context) error {
	var span trace.Span
	_, span = tracer.Start(ctx, "SaveToFile")
	defer span.End()

	data, err := json.MarshalIndent(f.state, "", "  ")
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("clientstate: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.filename), 0o700); err != nil {
		span.RecordError(err)
		return fmt.Errorf("clientstate: create dir: %w", err)
	}
	// The token is a credential; keep the file private to the user.
	if err := os.WriteFile(f.filename, data, 0o600); err != nil {
		span.RecordError(err)
		return fmt.Errorf("clientstate: write %s: %w", f.filename, err)
	}
	return nil
}

func (f *FileStore) loadFromFile() error {
	data, err := os.ReadFile(f.filename)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("clientstate: read %s: %w", f.filename, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	state := Default()
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("clientstate: decode %s: %w", f.filename, err)
	}
	f.state = state
	return nil
}
