// Package engine implements the leg lifecycle rules: when GEX signals open
// new legs, when running legs are cut, and how positions roll across trading
// days. The engine itself never touches a broker or a clock; drivers feed it
// snapshots and an Executor carries out its decisions.
package engine

import (
	"context"
	"log"
	"time"

	"github.com/kwhitaker/zerogex/internal/gex"
	"github.com/kwhitaker/zerogex/internal/ledger"
	"github.com/kwhitaker/zerogex/internal/models"
)

// Config holds the lifecycle thresholds. Percentages are of entry
// premium. Zero-valued thresholds mean "use the default"; there is no
// zero setting for any of them.
type Config struct {
	ProfitTargetPct  float64
	StopLossPct      float64
	EODCutoffHour    int
	EODLossPct       float64
	MaxLegsPerType   int
	BlockSameDayExit bool
	Contracts        int
	Location         *time.Location
}

func (c Config) withDefaults() Config {
	if c.ProfitTargetPct == 0 {
		c.ProfitTargetPct = 25
	}
	if c.StopLossPct == 0 {
		c.StopLossPct = 40
	}
	if c.EODCutoffHour == 0 {
		c.EODCutoffHour = 15
	}
	if c.EODLossPct == 0 {
		c.EODLossPct = 10
	}
	if c.MaxLegsPerType == 0 {
		c.MaxLegsPerType = 2
	}
	if c.Contracts == 0 {
		c.Contracts = 1
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

// Engine applies the lifecycle rules to one snapshot at a time. It is not
// goroutine-safe; the owning driver runs decision cycles sequentially.
type Engine struct {
	cfg    Config
	policy EntryPolicy
	exec   Executor
	logger *log.Logger
}

// New creates an engine. A nil logger falls back to the default logger.
func New(cfg Config, policy EntryPolicy, exec Executor, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{cfg: cfg.withDefaults(), policy: policy, exec: exec, logger: logger}
}

// ProcessSnapshot runs one decision cycle: exit checks on every active leg
// first, then entry checks against the walls. Executor failures are logged
// and do not abort the cycle; a later snapshot retries naturally.
func (e *Engine) ProcessSnapshot(ctx context.Context, led *ledger.Ledger, snap *models.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sig := gex.Compute(snap)
	e.checkExits(ctx, led, snap)
	e.checkEntries(ctx, led, snap, sig)
	return nil
}

func (e *Engine) checkExits(ctx context.Context, led *ledger.Ledger, snap *models.Snapshot) {
	day := snap.Day(e.cfg.Location)
	for _, leg := range led.Active() {
		if !leg.EntryFilled() || leg.ExitPending() {
			continue
		}
		if e.cfg.BlockSameDayExit && leg.EntryDay(e.cfg.Location) == day {
			continue
		}
		price, ok := snap.PriceFor(leg.Type, leg.Strike)
		if !ok {
			// No tradable price this snapshot; re-evaluate on the next one.
			continue
		}
		_, pct := leg.PnLAt(price)
		reason := e.exitReason(pct, snap.Timestamp)
		if reason == "" {
			continue
		}
		e.logger.Printf("exit %s: %s pnl %.1f%% at %.2f", reason, leg, pct, price)
		p := price
		intent := CloseIntent{
			Leg:        leg,
			Reason:     reason,
			Timestamp:  snap.Timestamp,
			Price:      &p,
			Underlying: snap.UnderlyingPrice,
		}
		if err := e.exec.CloseLeg(ctx, led, intent); err != nil {
			e.logger.Printf("close leg %s failed: %v", leg.ID, err)
		}
	}
}

// exitReason applies the exit rules in priority order: profit target, stop
// loss, then the late-day risk cut for positions already deep underwater.
func (e *Engine) exitReason(pnlPct float64, at time.Time) models.ExitReason {
	switch {
	case pnlPct >= e.cfg.ProfitTargetPct:
		return models.ExitProfitTarget
	case pnlPct <= -e.cfg.StopLossPct:
		return models.ExitStopLoss
	case at.In(e.cfg.Location).Hour() >= e.cfg.EODCutoffHour && pnlPct < -e.cfg.EODLossPct:
		return models.ExitEODRisk
	}
	return ""
}

func (e *Engine) checkEntries(ctx context.Context, led *ledger.Ledger, snap *models.Snapshot, sig *gex.Signal) {
	e.tryEnter(ctx, led, snap, sig, models.LegTypeCall, sig.CallWall, e.policy.EnterCall)
	e.tryEnter(ctx, led, snap, sig, models.LegTypePut, sig.PutWall, e.policy.EnterPut)
}

func (e *Engine) tryEnter(
	ctx context.Context,
	led *ledger.Ledger,
	snap *models.Snapshot,
	sig *gex.Signal,
	t models.LegType,
	wall *float64,
	allowed func(*gex.Signal, *ledger.Ledger) bool,
) {
	if wall == nil {
		return
	}
	if led.ActiveCount(t) >= e.cfg.MaxLegsPerType {
		return
	}
	if led.HasActiveAtStrike(t, *wall) {
		return
	}
	if !allowed(sig, led) {
		return
	}
	quote, ok := snap.Quote(t, *wall)
	if !ok {
		return
	}
	price, ok := quote.EffectivePrice()
	if !ok || price <= 0 {
		return
	}
	e.logger.Printf("enter %s %.2f exp %s at %.2f (dir %s)", t, *wall, quote.Expiration, price, sig.Direction)
	intent := EntryIntent{
		Type:       t,
		Strike:     *wall,
		Expiration: quote.Expiration,
		Price:      price,
		Underlying: snap.UnderlyingPrice,
		Timestamp:  snap.Timestamp,
		Contracts:  e.cfg.Contracts,
		Signal:     sig,
	}
	if err := e.exec.OpenLeg(ctx, led, intent); err != nil {
		e.logger.Printf("open %s leg failed: %v", t, err)
	}
}

// Rollover force-closes filled legs carried over from earlier days. With a
// first snapshot of the new day, each overnight leg closes at its effective
// price there; a leg with no price stays active for the intraday rules.
// With no snapshot (a day without data) every overnight leg closes unpriced.
func (e *Engine) Rollover(ctx context.Context, led *ledger.Ledger, day string, first *models.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, leg := range led.Active() {
		if !leg.EntryFilled() || leg.ExitPending() {
			continue
		}
		if leg.EntryDay(e.cfg.Location) == day {
			continue
		}
		intent := CloseIntent{Leg: leg}
		if first == nil {
			at, err := time.ParseInLocation("2006-01-02", day, e.cfg.Location)
			if err != nil {
				at = leg.EntryTime
			}
			intent.Reason = models.ExitOvernightNoData
			intent.Timestamp = at
		} else {
			price, ok := first.PriceFor(leg.Type, leg.Strike)
			if !ok {
				e.logger.Printf("overnight %s has no price at first snapshot, leaving active", leg)
				continue
			}
			p := price
			intent.Reason = models.ExitOvernight
			intent.Timestamp = first.Timestamp
			intent.Price = &p
			intent.Underlying = first.UnderlyingPrice
		}
		e.logger.Printf("rollover %s: closing %s", intent.Reason, leg)
		if err := e.exec.CloseLeg(ctx, led, intent); err != nil {
			e.logger.Printf("rollover close %s failed: %v", leg.ID, err)
		}
	}
	return nil
}

// CloseAll closes every remaining active leg unpriced with the given reason,
// for end-of-backtest and shutdown paths.
func (e *Engine) CloseAll(ctx context.Context, led *ledger.Ledger, at time.Time, reason models.ExitReason) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, leg := range led.Active() {
		intent := CloseIntent{Leg: leg, Reason: reason, Timestamp: at}
		if err := e.exec.CloseLeg(ctx, led, intent); err != nil {
			e.logger.Printf("final close %s failed: %v", leg.ID, err)
		}
	}
	return nil
}
