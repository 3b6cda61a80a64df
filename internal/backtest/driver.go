// Package backtest replays historical GEX snapshots through the lifecycle
// engine day by day and aggregates the closed legs into a performance
// report.
package backtest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kwhitaker/zerogex/internal/engine"
	"github.com/kwhitaker/zerogex/internal/ledger"
	"github.com/kwhitaker/zerogex/internal/marketdata"
	"github.com/kwhitaker/zerogex/internal/models"
)

// Config controls one backtest run.
type Config struct {
	Start    time.Time
	End      time.Time
	MaxDTE   int
	Location *time.Location
}

// Driver owns the replay loop and the ledger it mutates.
type Driver struct {
	cfg    Config
	source marketdata.Source
	engine *engine.Engine
	logger *log.Logger
}

// NewDriver wires a driver. The engine must have been built with the
// backtest Executor so intents fill against the ledger directly.
func NewDriver(cfg Config, source marketdata.Source, eng *engine.Engine, logger *log.Logger) *Driver {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Driver{cfg: cfg, source: source, engine: eng, logger: logger}
}

// Run replays the configured range and returns the aggregated report.
// The same source data always yields the same report.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	led := ledger.New()

	days, err := d.source.TradingDays(ctx, d.cfg.Start, d.cfg.End)
	if err != nil {
		return nil, fmt.Errorf("list trading days: %w", err)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("no trading days between %s and %s",
			d.cfg.Start.Format("2006-01-02"), d.cfg.End.Format("2006-01-02"))
	}
	d.logger.Printf("backtest: %d trading days from %s to %s", len(days), days[0], days[len(days)-1])

	lastTs := d.cfg.End
	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snaps, err := d.source.Snapshots(ctx, day)
		if err != nil {
			return nil, fmt.Errorf("snapshots for %s: %w", day, err)
		}

		filtered := snaps[:0:0]
		for _, snap := range snaps {
			f := snap.FilterByDTE(d.cfg.MaxDTE, d.cfg.Location)
			if len(f.Quotes) > 0 {
				filtered = append(filtered, f)
			}
		}

		if len(filtered) == 0 {
			d.logger.Printf("%s: no usable snapshots, closing overnights unpriced", day)
			if err := d.engine.Rollover(ctx, led, day, nil); err != nil {
				return nil, err
			}
			continue
		}

		if err := d.engine.Rollover(ctx, led, day, filtered[0]); err != nil {
			return nil, err
		}
		for _, snap := range filtered {
			if err := d.engine.ProcessSnapshot(ctx, led, snap); err != nil {
				return nil, err
			}
			lastTs = snap.Timestamp
		}
		d.logger.Printf("%s: %d snapshots, %d active, %d closed",
			day, len(filtered), len(led.Active()), len(led.Closed()))
	}

	if err := d.engine.CloseAll(ctx, led, lastTs, models.ExitEndOfBacktest); err != nil {
		return nil, err
	}
	return BuildReport(led.Closed()), nil
}
