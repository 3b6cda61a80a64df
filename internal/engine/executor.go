package engine

import (
	"context"
	"time"

	"github.com/kwhitaker/zerogex/internal/gex"
	"github.com/kwhitaker/zerogex/internal/ledger"
	"github.com/kwhitaker/zerogex/internal/models"
)

// EntryIntent describes a leg the engine wants opened.
type EntryIntent struct {
	Type       models.LegType
	Strike     float64
	Expiration string
	Price      float64 // effective premium at decision time
	Underlying float64
	Timestamp  time.Time
	Contracts  int
	Signal     *gex.Signal
}

// CloseIntent describes a leg the engine wants closed. Price is nil when no
// tradable price exists (overnight gaps without data, end-of-run closures):
// the leg is then closed unpriced.
type CloseIntent struct {
	Leg        *models.Leg
	Reason     models.ExitReason
	Timestamp  time.Time
	Price      *float64
	Underlying float64
}

// Executor carries out the engine's decisions against a ledger. The backtest
// executor fills immediately at the intent price; the live executor routes
// orders to the broker and leaves legs pending until fills are confirmed.
type Executor interface {
	OpenLeg(ctx context.Context, led *ledger.Ledger, intent EntryIntent) error
	CloseLeg(ctx context.Context, led *ledger.Ledger, intent CloseIntent) error
}
