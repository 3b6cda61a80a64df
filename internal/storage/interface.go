// Package storage persists the leg ledger between runs. The JSON
// implementation writes atomically so a crash mid-save never leaves a
// corrupt state file.
package storage

import "github.com/kwhitaker/zerogex/internal/ledger"

// Interface is the persistence contract for ledger state.
//
// Implementations must be safe for concurrent use: the trading loop saves
// while the dashboard reads. JSONStorage serializes access with a mutex.
type Interface interface {
	// Load reads the persisted ledger state. A missing file yields an
	// empty state, not an error.
	Load() (*ledger.State, error)
	// Save writes the ledger state durably.
	Save(st *ledger.State) error
}
