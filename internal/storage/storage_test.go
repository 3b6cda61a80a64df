package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwhitaker/zerogex/internal/ledger"
	"github.com/kwhitaker/zerogex/internal/models"
)

func sampleState() *ledger.State {
	exitPrice := 1.10
	pnl := -0.90
	pct := -45.0
	exitAt := time.Date(2025, 3, 14, 15, 10, 0, 0, time.UTC)
	return &ledger.State{
		ActiveLegs: []models.Leg{{
			ID:              "active-1",
			Type:            models.LegTypeCall,
			Strike:          5900,
			Expiration:      "2025-03-14",
			Contracts:       1,
			EntryTime:       time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
			EntryPrice:      4.20,
			EntryOrderState: models.OrderStateFilled,
		}},
		ClosedLegs: []models.Leg{{
			ID:              "closed-1",
			Type:            models.LegTypePut,
			Strike:          5800,
			Expiration:      "2025-03-14",
			Contracts:       1,
			EntryTime:       time.Date(2025, 3, 14, 10, 5, 0, 0, time.UTC),
			EntryPrice:      2.00,
			EntryOrderState: models.OrderStateFilled,
			ExitTime:        &exitAt,
			ExitPrice:       &exitPrice,
			ExitReason:      models.ExitStopLoss,
			PnL:             &pnl,
			PnLPct:          &pct,
		}},
	}
}

// testInterface exercises the persistence contract shared by every
// implementation.
func testInterface(t *testing.T, store Interface) {
	t.Helper()

	st, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, st.ActiveLegs)
	assert.Empty(t, st.ClosedLegs)

	require.NoError(t, store.Save(sampleState()))

	back, err := store.Load()
	require.NoError(t, err)
	require.Len(t, back.ActiveLegs, 1)
	require.Len(t, back.ClosedLegs, 1)
	assert.Equal(t, "active-1", back.ActiveLegs[0].ID)
	assert.Equal(t, models.ExitStopLoss, back.ClosedLegs[0].ExitReason)
	require.NotNil(t, back.ClosedLegs[0].PnLPct)
	assert.InDelta(t, -45.0, *back.ClosedLegs[0].PnLPct, 1e-9)
	assert.Nil(t, back.ActiveLegs[0].ExitPrice)
	assert.False(t, back.LastUpdated.IsZero())
}

func TestJSONStorage_Interface(t *testing.T) {
	store, err := NewJSONStorage(filepath.Join(t.TempDir(), "legs.json"))
	require.NoError(t, err)
	testInterface(t, store)
}

func TestMockStorage_Interface(t *testing.T) {
	testInterface(t, NewMockStorage())
}

func TestJSONStorage_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state", "legs.json")
	store, err := NewJSONStorage(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(&ledger.State{}))

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestJSONStorage_MissingFileIsEmptyState(t *testing.T) {
	store, err := NewJSONStorage(filepath.Join(t.TempDir(), "never-written.json"))
	require.NoError(t, err)

	st, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, st.ActiveLegs)
}

func TestJSONStorage_CorruptFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store, err := NewJSONStorage(path)
	require.NoError(t, err)
	_, err = store.Load()
	assert.Error(t, err)
}

func TestJSONStorage_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONStorage(filepath.Join(dir, "legs.json"))
	require.NoError(t, err)
	require.NoError(t, store.Save(sampleState()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "legs.json", entries[0].Name())
}

func TestJSONStorage_EmptyPathRejected(t *testing.T) {
	_, err := NewJSONStorage("")
	assert.Error(t, err)
}
