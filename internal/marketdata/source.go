// Package marketdata supplies option chain snapshots to the drivers: a
// Postgres store written by the GEX collector for backtests, the broker's
// live chain for paper trading, and a synthetic generator for dry runs.
package marketdata

import (
	"context"
	"time"

	"github.com/kwhitaker/zerogex/internal/models"
)

// Source yields historical snapshots day by day for replay.
type Source interface {
	// TradingDays lists the days (YYYY-MM-DD, market time) with data in
	// the inclusive range.
	TradingDays(ctx context.Context, start, end time.Time) ([]string, error)
	// Snapshots returns a day's snapshots in ascending timestamp order.
	Snapshots(ctx context.Context, day string) ([]*models.Snapshot, error)
}

// LiveSource yields the freshest snapshot for live decision cycles.
type LiveSource interface {
	Latest(ctx context.Context) (*models.Snapshot, error)
}
