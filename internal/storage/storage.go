package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kwhitaker/zerogex/internal/ledger"
)

// JSONStorage persists the ledger to a single JSON file. Saves go through a
// temp file plus rename so readers never observe a partial write.
type JSONStorage struct {
	mu   sync.Mutex
	path string
}

// Compile-time interface check.
var _ Interface = (*JSONStorage)(nil)

// NewJSONStorage creates a JSON-backed store at the given path, creating the
// parent directory if needed.
func NewJSONStorage(path string) (*JSONStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("storage path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	return &JSONStorage{path: path}, nil
}

// Path returns the backing file path.
func (s *JSONStorage) Path() string {
	return s.path
}

// Load reads the state file. A missing file is treated as a fresh start.
func (s *JSONStorage) Load() (*ledger.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &ledger.State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var st ledger.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", s.path, err)
	}
	return &st, nil
}

// Save writes the state atomically.
func (s *JSONStorage) Save(st *ledger.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.LastUpdated.IsZero() {
		st.LastUpdated = time.Now().UTC()
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
