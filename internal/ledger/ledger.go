// Package ledger tracks the bot's open and closed option legs. The ledger is
// owned by a single driver goroutine and does no internal locking; the
// storage layer guards the persisted state instead.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/kwhitaker/zerogex/internal/models"
)

var (
	// ErrLegNotFound means no active leg carries the requested ID.
	ErrLegNotFound = errors.New("leg not found in active set")
	// ErrDuplicateStrike means an active leg already exists for the same
	// side and strike.
	ErrDuplicateStrike = errors.New("active leg already exists at strike")
	// ErrDuplicateID means a leg with the same ID is already active.
	ErrDuplicateID = errors.New("duplicate leg id")
)

// State is the persisted form of the ledger.
type State struct {
	ActiveLegs  []models.Leg `json:"active_legs"`
	ClosedLegs  []models.Leg `json:"closed_legs"`
	LastUpdated time.Time    `json:"last_updated"`
}

// Ledger holds active legs in insertion order so replaying the same input
// always visits them the same way.
type Ledger struct {
	active []*models.Leg
	closed []models.Leg
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// FromState rebuilds a ledger from persisted state.
func FromState(st *State) *Ledger {
	l := New()
	if st == nil {
		return l
	}
	for i := range st.ActiveLegs {
		leg := st.ActiveLegs[i]
		l.active = append(l.active, &leg)
	}
	l.closed = append(l.closed, st.ClosedLegs...)
	return l
}

// State snapshots the ledger for persistence. Legs are copied so later
// mutations do not leak into a saved state.
func (l *Ledger) State() *State {
	st := &State{
		ActiveLegs:  make([]models.Leg, 0, len(l.active)),
		ClosedLegs:  make([]models.Leg, 0, len(l.closed)),
		LastUpdated: time.Now().UTC(),
	}
	for _, leg := range l.active {
		st.ActiveLegs = append(st.ActiveLegs, *leg)
	}
	st.ClosedLegs = append(st.ClosedLegs, l.closed...)
	return st
}

// Add registers a new active leg. It refuses duplicate IDs and a second
// active leg on the same side and strike.
func (l *Ledger) Add(leg *models.Leg) error {
	if !leg.Type.Valid() {
		return fmt.Errorf("invalid leg type %q", leg.Type)
	}
	for _, a := range l.active {
		if a.ID == leg.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateID, leg.ID)
		}
		if a.Type == leg.Type && a.Strike == leg.Strike {
			return fmt.Errorf("%w: %s %.2f", ErrDuplicateStrike, leg.Type, leg.Strike)
		}
	}
	l.active = append(l.active, leg)
	return nil
}

// Close moves an active leg to the closed set. The caller must have stamped
// the exit fields first; a leg without an exit reason is rejected.
func (l *Ledger) Close(id string) error {
	for i, leg := range l.active {
		if leg.ID != id {
			continue
		}
		if leg.ExitReason == "" {
			return fmt.Errorf("leg %s has no exit reason", id)
		}
		l.active = append(l.active[:i], l.active[i+1:]...)
		l.closed = append(l.closed, *leg)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrLegNotFound, id)
}

// Remove drops an active leg without closing it, for entry orders the broker
// rejected or canceled before any fill.
func (l *Ledger) Remove(id string) error {
	for i, leg := range l.active {
		if leg.ID == id {
			l.active = append(l.active[:i], l.active[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrLegNotFound, id)
}

// Get returns the active leg with the given ID.
func (l *Ledger) Get(id string) (*models.Leg, bool) {
	for _, leg := range l.active {
		if leg.ID == id {
			return leg, true
		}
	}
	return nil, false
}

// Active returns the active legs in insertion order. The slice is a copy but
// the legs are shared; mutating them mutates the ledger.
func (l *Ledger) Active() []*models.Leg {
	out := make([]*models.Leg, len(l.active))
	copy(out, l.active)
	return out
}

// Closed returns the closed legs in closing order.
func (l *Ledger) Closed() []models.Leg {
	out := make([]models.Leg, len(l.closed))
	copy(out, l.closed)
	return out
}

// ActiveCount counts active legs of one side, pending entries included so an
// in-flight order still holds its slot against the per-side cap.
func (l *Ledger) ActiveCount(t models.LegType) int {
	n := 0
	for _, leg := range l.active {
		if leg.Type == t {
			n++
		}
	}
	return n
}

// HasFilled reports whether any active leg of the side has a confirmed fill.
// Hedge-balancing entry rules key off filled legs only.
func (l *Ledger) HasFilled(t models.LegType) bool {
	for _, leg := range l.active {
		if leg.Type == t && leg.EntryFilled() {
			return true
		}
	}
	return false
}

// HasActiveAtStrike reports whether a side already holds the given strike.
func (l *Ledger) HasActiveAtStrike(t models.LegType, strike float64) bool {
	for _, leg := range l.active {
		if leg.Type == t && leg.Strike == strike {
			return true
		}
	}
	return false
}
