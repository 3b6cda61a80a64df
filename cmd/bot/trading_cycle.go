package main

import (
	"context"
	"time"
)

// TradingCycle runs one decision pass per tick: market gating, fill
// reconciliation, overnight rollover, then the engine's exit and entry
// rules against the latest snapshot.
type TradingCycle struct {
	bot *Bot
}

// NewTradingCycle creates a new trading cycle handler.
func NewTradingCycle(bot *Bot) *TradingCycle {
	return &TradingCycle{bot: bot}
}

// Run executes one trading cycle.
func (tc *TradingCycle) Run(ctx context.Context) {
	now := time.Now().In(tc.bot.loc)

	if !tc.checkMarketSchedule(ctx, now) {
		return
	}
	if !tc.checkMarketOpen(ctx, now) {
		return
	}

	tc.bot.logger.Println("Starting trading cycle...")

	// Resolve pending orders first so the engine sees confirmed fills.
	tc.bot.orders.CheckFills(ctx, tc.bot.ledger, now)

	snap, err := tc.bot.source.Latest(ctx)
	if err != nil {
		tc.bot.logger.Printf("Failed to get snapshot: %v", err)
		tc.bot.saveState()
		return
	}
	if snap == nil {
		// An empty snapshot store is a no-data cycle, not a failure.
		tc.bot.logger.Println("No snapshot available, skipping cycle")
		tc.bot.saveState()
		return
	}
	snap = snap.FilterByDTE(tc.bot.config.Strategy.MaxDTE, tc.bot.loc)
	if len(snap.Quotes) == 0 {
		tc.bot.logger.Printf("Snapshot has no quotes within %d DTE, skipping cycle", tc.bot.config.Strategy.MaxDTE)
		tc.bot.saveState()
		return
	}

	// Rollover is keyed on each leg's entry day, so calling it every
	// cycle only acts on the first snapshot after an overnight gap.
	if err := tc.bot.engine.Rollover(ctx, tc.bot.ledger, snap.Day(tc.bot.loc), snap); err != nil {
		tc.bot.logger.Printf("Rollover failed: %v", err)
	}
	if err := tc.bot.engine.ProcessSnapshot(ctx, tc.bot.ledger, snap); err != nil {
		tc.bot.logger.Printf("Cycle failed: %v", err)
	}

	tc.bot.saveState()
	tc.bot.logger.Println("Trading cycle complete")
}

// checkMarketSchedule consults the market calendar. Calendar failures
// fall through to the real-time check rather than blocking trading.
func (tc *TradingCycle) checkMarketSchedule(ctx context.Context, now time.Time) bool {
	open, err := tc.bot.broker.IsTradingDay(ctx, now)
	if err != nil {
		tc.bot.logger.Printf("Warning: could not get market calendar: %v", err)
		return true
	}
	if !open {
		tc.bot.logger.Println("Market is closed today, skipping cycle")
		return false
	}
	return true
}

// checkMarketOpen prefers the broker's real-time clock and falls back
// to the configured trading window when the clock is unavailable.
func (tc *TradingCycle) checkMarketOpen(ctx context.Context, now time.Time) bool {
	clock, err := tc.bot.broker.GetMarketClock(ctx, false)
	if err == nil && clock != nil && clock.Clock.State != "" {
		if clock.Clock.State == "open" {
			return true
		}
		tc.bot.logger.Printf("Market state %q, skipping cycle", clock.Clock.State)
		return false
	}

	if err != nil {
		tc.bot.logger.Printf("Warning: could not get market clock: %v, using configured hours", err)
	}
	if !tc.bot.config.IsWithinTradingHours(now) {
		tc.bot.logger.Printf("Outside trading hours (%s - %s), skipping cycle",
			tc.bot.config.Schedule.TradingStart, tc.bot.config.Schedule.TradingEnd)
		return false
	}
	return true
}

// ReconcileStartup resolves orders that were pending when the bot last
// stopped. Runs once before the first cycle so restart state is clean.
func (tc *TradingCycle) ReconcileStartup(ctx context.Context) {
	pending := 0
	for _, leg := range tc.bot.ledger.Active() {
		if !leg.EntryFilled() || leg.ExitPending() {
			pending++
		}
	}
	if pending == 0 {
		return
	}
	tc.bot.logger.Printf("Reconciling %d leg(s) with pending orders from previous run", pending)
	tc.bot.orders.CheckFills(ctx, tc.bot.ledger, time.Now().In(tc.bot.loc))
	tc.bot.saveState()
}
