package backtest

import (
	"context"

	"github.com/google/uuid"

	"github.com/kwhitaker/zerogex/internal/engine"
	"github.com/kwhitaker/zerogex/internal/ledger"
	"github.com/kwhitaker/zerogex/internal/models"
)

// Executor fills every intent instantly at the intent price, which is what a
// replay over historical snapshots amounts to.
type Executor struct{}

var _ engine.Executor = (*Executor)(nil)

// OpenLeg creates a filled leg at the snapshot's effective price.
func (Executor) OpenLeg(_ context.Context, led *ledger.Ledger, intent engine.EntryIntent) error {
	leg := &models.Leg{
		ID:              uuid.New().String(),
		Type:            intent.Type,
		Strike:          intent.Strike,
		Expiration:      intent.Expiration,
		Contracts:       intent.Contracts,
		EntryTime:       intent.Timestamp,
		EntryPrice:      intent.Price,
		EntryUnderlying: intent.Underlying,
		EntryOrderState: models.OrderStateFilled,
	}
	if intent.Signal != nil {
		leg.ZeroGEXAtEntry = intent.Signal.ZeroGEX
		leg.SignalAtEntry = string(intent.Signal.Direction)
	}
	return led.Add(leg)
}

// CloseLeg stamps the exit and moves the leg to the closed set.
func (Executor) CloseLeg(_ context.Context, led *ledger.Ledger, intent engine.CloseIntent) error {
	if intent.Price != nil {
		intent.Leg.CloseAt(intent.Timestamp, *intent.Price, intent.Underlying, intent.Reason)
	} else {
		intent.Leg.CloseUnpriced(intent.Timestamp, intent.Reason)
	}
	return led.Close(intent.Leg.ID)
}
