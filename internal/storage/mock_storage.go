package storage

import (
	"sync"

	"github.com/kwhitaker/zerogex/internal/ledger"
)

// MockStorage is an in-memory Interface implementation for tests.
type MockStorage struct {
	mu    sync.Mutex
	state *ledger.State

	// LoadErr and SaveErr, when set, are returned by the matching method.
	LoadErr error
	SaveErr error

	// SaveCount tracks how many times Save succeeded.
	SaveCount int
}

var _ Interface = (*MockStorage)(nil)

// NewMockStorage returns an empty in-memory store.
func NewMockStorage() *MockStorage {
	return &MockStorage{}
}

// Load returns the last saved state, or an empty state if nothing was saved.
func (m *MockStorage) Load() (*ledger.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	if m.state == nil {
		return &ledger.State{}, nil
	}
	cp := *m.state
	return &cp, nil
}

// Save retains the given state.
func (m *MockStorage) Save(st *ledger.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	cp := *st
	m.state = &cp
	m.SaveCount++
	return nil
}
