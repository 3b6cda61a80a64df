package engine

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwhitaker/zerogex/internal/ledger"
	"github.com/kwhitaker/zerogex/internal/models"
)

// fillExec fills every intent immediately, the way the backtester does.
type fillExec struct {
	seq      int
	openErr  error
	closeErr error
}

var _ Executor = (*fillExec)(nil)

func (f *fillExec) OpenLeg(_ context.Context, led *ledger.Ledger, intent EntryIntent) error {
	if f.openErr != nil {
		return f.openErr
	}
	f.seq++
	leg := &models.Leg{
		ID:              fmt.Sprintf("leg-%d", f.seq),
		Type:            intent.Type,
		Strike:          intent.Strike,
		Expiration:      intent.Expiration,
		Contracts:       intent.Contracts,
		EntryTime:       intent.Timestamp,
		EntryPrice:      intent.Price,
		EntryUnderlying: intent.Underlying,
		ZeroGEXAtEntry:  intent.Signal.ZeroGEX,
		SignalAtEntry:   string(intent.Signal.Direction),
		EntryOrderState: models.OrderStateFilled,
	}
	return led.Add(leg)
}

func (f *fillExec) CloseLeg(_ context.Context, led *ledger.Ledger, intent CloseIntent) error {
	if f.closeErr != nil {
		return f.closeErr
	}
	if intent.Price != nil {
		intent.Leg.CloseAt(intent.Timestamp, *intent.Price, intent.Underlying, intent.Reason)
	} else {
		intent.Leg.CloseUnpriced(intent.Timestamp, intent.Reason)
	}
	return led.Close(intent.Leg.ID)
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newEngine(policy EntryPolicy, exec Executor) *Engine {
	return New(Config{
		ProfitTargetPct:  25,
		StopLossPct:      40,
		EODCutoffHour:    15,
		EODLossPct:       10,
		MaxLegsPerType:   2,
		BlockSameDayExit: true,
		Contracts:        1,
		Location:         time.UTC,
	}, policy, exec, quietLogger())
}

// marketSnap builds a snapshot whose profile flips sign at 5900:
// puts pile up negative GEX at 5800, calls positive GEX at 5900 and 6000.
// Spot above 5900 reads BUY, below reads SELL.
func marketSnap(ts time.Time, spot float64) *models.Snapshot {
	return &models.Snapshot{
		Timestamp:       ts,
		Symbol:          "SPX",
		UnderlyingPrice: spot,
		Quotes: []models.OptionQuote{
			{Type: models.LegTypePut, Strike: 5800, Expiration: "2025-03-14", Gamma: 0.02, OpenInterest: 100, Last: 2.00},
			{Type: models.LegTypeCall, Strike: 5900, Expiration: "2025-03-14", Gamma: 0.02, OpenInterest: 50, Last: 3.00},
			{Type: models.LegTypeCall, Strike: 6000, Expiration: "2025-03-14", Gamma: 0.02, OpenInterest: 200, Last: 1.50},
		},
	}
}

func TestProcessSnapshot_DirectionalEntersCallOnBuy(t *testing.T) {
	exec := &fillExec{}
	e := newEngine(DirectionalPolicy{}, exec)
	led := ledger.New()
	ts := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	require.NoError(t, e.ProcessSnapshot(context.Background(), led, marketSnap(ts, 5950)))

	active := led.Active()
	require.Len(t, active, 1)
	leg := active[0]
	assert.Equal(t, models.LegTypeCall, leg.Type)
	assert.Equal(t, 6000.0, leg.Strike) // call wall above spot
	assert.Equal(t, 1.50, leg.EntryPrice)
	assert.Equal(t, "BUY", leg.SignalAtEntry)
	require.NotNil(t, leg.ZeroGEXAtEntry)
	assert.Equal(t, 5900.0, *leg.ZeroGEXAtEntry)
	assert.True(t, leg.EntryFilled())
}

func TestProcessSnapshot_DirectionalEntersPutOnSell(t *testing.T) {
	exec := &fillExec{}
	e := newEngine(DirectionalPolicy{}, exec)
	led := ledger.New()
	ts := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	require.NoError(t, e.ProcessSnapshot(context.Background(), led, marketSnap(ts, 5850)))

	active := led.Active()
	require.Len(t, active, 1)
	assert.Equal(t, models.LegTypePut, active[0].Type)
	assert.Equal(t, 5800.0, active[0].Strike)
}

func TestProcessSnapshot_NeutralEntersNothing(t *testing.T) {
	e := newEngine(DirectionalPolicy{}, &fillExec{})
	led := ledger.New()
	ts := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	// Spot exactly on the zero-GEX level.
	require.NoError(t, e.ProcessSnapshot(context.Background(), led, marketSnap(ts, 5900)))
	assert.Empty(t, led.Active())
}

func TestProcessSnapshot_HedgedBalancesOppositeSide(t *testing.T) {
	exec := &fillExec{}
	e := newEngine(HedgedPolicy{}, exec)
	led := ledger.New()
	ts := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	// SELL read: the hedged policy opens the put directionally first.
	require.NoError(t, e.ProcessSnapshot(context.Background(), led, marketSnap(ts, 5850)))
	require.Len(t, led.Active(), 1)
	assert.Equal(t, models.LegTypePut, led.Active()[0].Type)

	// On the next cycle the filled put pulls in the call as its hedge.
	require.NoError(t, e.ProcessSnapshot(context.Background(), led, marketSnap(ts.Add(5*time.Minute), 5850)))
	require.Len(t, led.Active(), 2)

	types := map[models.LegType]bool{}
	for _, leg := range led.Active() {
		types[leg.Type] = true
	}
	assert.True(t, types[models.LegTypeCall])
	assert.True(t, types[models.LegTypePut])
}

func TestProcessSnapshot_RespectsPerSideCap(t *testing.T) {
	exec := &fillExec{}
	e := New(Config{MaxLegsPerType: 1, BlockSameDayExit: true, Location: time.UTC}, DirectionalPolicy{}, exec, quietLogger())
	led := ledger.New()
	ts := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	require.NoError(t, e.ProcessSnapshot(context.Background(), led, marketSnap(ts, 5950)))
	require.Len(t, led.Active(), 1)

	// Same signal again: the cap holds even though the wall is unchanged.
	require.NoError(t, e.ProcessSnapshot(context.Background(), led, marketSnap(ts.Add(5*time.Minute), 5950)))
	assert.Len(t, led.Active(), 1)
}

func TestProcessSnapshot_SkipsDuplicateStrike(t *testing.T) {
	exec := &fillExec{}
	e := newEngine(DirectionalPolicy{}, exec)
	led := ledger.New()
	ts := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	require.NoError(t, e.ProcessSnapshot(context.Background(), led, marketSnap(ts, 5950)))
	require.Len(t, led.Active(), 1)

	// Cap is 2 but the wall strike is already held, so nothing new opens.
	require.NoError(t, e.ProcessSnapshot(context.Background(), led, marketSnap(ts.Add(5*time.Minute), 5950)))
	assert.Len(t, led.Active(), 1)
}

func TestProcessSnapshot_SkipsEntryWithoutPrice(t *testing.T) {
	exec := &fillExec{}
	e := newEngine(DirectionalPolicy{}, exec)
	led := ledger.New()
	ts := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	snap := marketSnap(ts, 5950)
	snap.Quotes[2].Last = 0 // wall strike quote loses its price
	require.NoError(t, e.ProcessSnapshot(context.Background(), led, snap))
	assert.Empty(t, led.Active())
}

// enterYesterday seeds a filled leg dated the prior day so the same-day
// guard does not block exits.
func enterYesterday(t *testing.T, led *ledger.Ledger, legType models.LegType, strike, entryPrice float64) *models.Leg {
	t.Helper()
	leg := &models.Leg{
		ID:              "seed-" + string(legType),
		Type:            legType,
		Strike:          strike,
		Expiration:      "2025-03-14",
		Contracts:       1,
		EntryTime:       time.Date(2025, 3, 13, 10, 0, 0, 0, time.UTC),
		EntryPrice:      entryPrice,
		EntryOrderState: models.OrderStateFilled,
	}
	require.NoError(t, led.Add(leg))
	return leg
}

func withPrice(snap *models.Snapshot, legType models.LegType, strike, last float64) *models.Snapshot {
	snap.Quotes = append(snap.Quotes, models.OptionQuote{
		Type: legType, Strike: strike, Expiration: "2025-03-14", Last: last,
	})
	return snap
}

func TestProcessSnapshot_ProfitTargetExit(t *testing.T) {
	e := newEngine(DirectionalPolicy{}, &fillExec{})
	led := ledger.New()
	enterYesterday(t, led, models.LegTypeCall, 6100, 2.00)

	ts := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	snap := withPrice(marketSnap(ts, 5900), models.LegTypeCall, 6100, 2.50) // +25%

	require.NoError(t, e.ProcessSnapshot(context.Background(), led, snap))

	closed := led.Closed()
	require.Len(t, closed, 1)
	assert.Equal(t, models.ExitProfitTarget, closed[0].ExitReason)
	require.NotNil(t, closed[0].PnLPct)
	assert.InDelta(t, 25.0, *closed[0].PnLPct, 1e-9)
}

func TestProcessSnapshot_StopLossExit(t *testing.T) {
	e := newEngine(DirectionalPolicy{}, &fillExec{})
	led := ledger.New()
	enterYesterday(t, led, models.LegTypeCall, 6100, 2.00)

	ts := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	snap := withPrice(marketSnap(ts, 5900), models.LegTypeCall, 6100, 1.20) // -40%

	require.NoError(t, e.ProcessSnapshot(context.Background(), led, snap))

	closed := led.Closed()
	require.Len(t, closed, 1)
	assert.Equal(t, models.ExitStopLoss, closed[0].ExitReason)
}

func TestProcessSnapshot_EODRiskCut(t *testing.T) {
	mk := func(hour int) (*Engine, *ledger.Ledger, *models.Snapshot) {
		e := newEngine(DirectionalPolicy{}, &fillExec{})
		led := ledger.New()
		enterYesterday(t, led, models.LegTypeCall, 6100, 2.00)
		ts := time.Date(2025, 3, 14, hour, 5, 0, 0, time.UTC)
		snap := withPrice(marketSnap(ts, 5900), models.LegTypeCall, 6100, 1.70) // -15%
		return e, led, snap
	}

	// Before the cutoff a -15% leg rides.
	e, led, snap := mk(14)
	require.NoError(t, e.ProcessSnapshot(context.Background(), led, snap))
	assert.Empty(t, led.Closed())

	// From the cutoff hour on it is cut.
	e, led, snap = mk(15)
	require.NoError(t, e.ProcessSnapshot(context.Background(), led, snap))
	require.Len(t, led.Closed(), 1)
	assert.Equal(t, models.ExitEODRisk, led.Closed()[0].ExitReason)
}

func TestProcessSnapshot_SameDayGuardBlocksExit(t *testing.T) {
	e := newEngine(DirectionalPolicy{}, &fillExec{})
	led := ledger.New()
	leg := enterYesterday(t, led, models.LegTypeCall, 6100, 2.00)
	leg.EntryTime = time.Date(2025, 3, 14, 9, 35, 0, 0, time.UTC) // entered today

	ts := time.Date(2025, 3, 14, 11, 0, 0, 0, time.UTC)
	snap := withPrice(marketSnap(ts, 5900), models.LegTypeCall, 6100, 3.00) // +50%

	require.NoError(t, e.ProcessSnapshot(context.Background(), led, snap))
	assert.Empty(t, led.Closed(), "same-day exit must be blocked")

	// With the guard off the same leg takes profit.
	e2 := New(Config{BlockSameDayExit: false, Location: time.UTC}, DirectionalPolicy{}, &fillExec{}, quietLogger())
	require.NoError(t, e2.ProcessSnapshot(context.Background(), led, snap))
	require.Len(t, led.Closed(), 1)
	assert.Equal(t, models.ExitProfitTarget, led.Closed()[0].ExitReason)
}

func TestProcessSnapshot_MissingPriceSkipsExitEvaluation(t *testing.T) {
	e := newEngine(DirectionalPolicy{}, &fillExec{})
	led := ledger.New()
	enterYesterday(t, led, models.LegTypeCall, 6100, 2.00)

	// No quote for 6100 at all; the leg must stay active unclosed.
	ts := time.Date(2025, 3, 14, 15, 30, 0, 0, time.UTC)
	require.NoError(t, e.ProcessSnapshot(context.Background(), led, marketSnap(ts, 5900)))

	assert.Len(t, led.Active(), 1)
	assert.Empty(t, led.Closed())
}

func TestProcessSnapshot_ExitFreesStrikeForEntrySameCycle(t *testing.T) {
	e := New(Config{MaxLegsPerType: 1, BlockSameDayExit: true, Contracts: 1, Location: time.UTC},
		DirectionalPolicy{}, &fillExec{}, quietLogger())
	led := ledger.New()
	// Yesterday's call sits at the current call wall and is deep underwater.
	enterYesterday(t, led, models.LegTypeCall, 6000, 4.00)

	ts := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	snap := marketSnap(ts, 5950) // BUY, wall 6000 priced at 1.50 (-62.5%)

	require.NoError(t, e.ProcessSnapshot(context.Background(), led, snap))

	require.Len(t, led.Closed(), 1)
	assert.Equal(t, models.ExitStopLoss, led.Closed()[0].ExitReason)
	// Exits ran first, so the freed slot was re-entered at the wall.
	require.Len(t, led.Active(), 1)
	assert.Equal(t, 6000.0, led.Active()[0].Strike)
	assert.Equal(t, 1.50, led.Active()[0].EntryPrice)
}

func TestRollover_ClosesOvernightAtFirstSnapshot(t *testing.T) {
	e := newEngine(DirectionalPolicy{}, &fillExec{})
	led := ledger.New()
	enterYesterday(t, led, models.LegTypeCall, 6100, 2.00)
	today := enterYesterday(t, led, models.LegTypePut, 5800, 1.00)
	today.ID = "today"
	today.EntryTime = time.Date(2025, 3, 14, 9, 31, 0, 0, time.UTC)

	ts := time.Date(2025, 3, 14, 9, 35, 0, 0, time.UTC)
	first := withPrice(marketSnap(ts, 5900), models.LegTypeCall, 6100, 2.20)

	require.NoError(t, e.Rollover(context.Background(), led, "2025-03-14", first))

	closed := led.Closed()
	require.Len(t, closed, 1)
	assert.Equal(t, models.ExitOvernight, closed[0].ExitReason)
	require.NotNil(t, closed[0].ExitPrice)
	assert.Equal(t, 2.20, *closed[0].ExitPrice)
	// Today's leg is untouched.
	require.Len(t, led.Active(), 1)
	assert.Equal(t, "today", led.Active()[0].ID)
}

func TestRollover_NoDataDayClosesUnpriced(t *testing.T) {
	e := newEngine(DirectionalPolicy{}, &fillExec{})
	led := ledger.New()
	enterYesterday(t, led, models.LegTypeCall, 6100, 2.00)

	require.NoError(t, e.Rollover(context.Background(), led, "2025-03-14", nil))

	closed := led.Closed()
	require.Len(t, closed, 1)
	assert.Equal(t, models.ExitOvernightNoData, closed[0].ExitReason)
	assert.Nil(t, closed[0].ExitPrice)
	assert.Nil(t, closed[0].PnL)
}

func TestRollover_UnpricedLegStaysActive(t *testing.T) {
	e := newEngine(DirectionalPolicy{}, &fillExec{})
	led := ledger.New()
	enterYesterday(t, led, models.LegTypeCall, 6100, 2.00)

	ts := time.Date(2025, 3, 14, 9, 35, 0, 0, time.UTC)
	first := marketSnap(ts, 5900) // no 6100 quote

	require.NoError(t, e.Rollover(context.Background(), led, "2025-03-14", first))
	assert.Len(t, led.Active(), 1)
	assert.Empty(t, led.Closed())
}

func TestCloseAll_EndOfRun(t *testing.T) {
	e := newEngine(DirectionalPolicy{}, &fillExec{})
	led := ledger.New()
	enterYesterday(t, led, models.LegTypeCall, 6100, 2.00)
	enterYesterday(t, led, models.LegTypePut, 5800, 1.00)

	at := time.Date(2025, 3, 14, 16, 0, 0, 0, time.UTC)
	require.NoError(t, e.CloseAll(context.Background(), led, at, models.ExitEndOfBacktest))

	assert.Empty(t, led.Active())
	require.Len(t, led.Closed(), 2)
	for _, leg := range led.Closed() {
		assert.Equal(t, models.ExitEndOfBacktest, leg.ExitReason)
		assert.Nil(t, leg.ExitPrice)
	}
}

func TestProcessSnapshot_CanceledContext(t *testing.T) {
	e := newEngine(DirectionalPolicy{}, &fillExec{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.ProcessSnapshot(ctx, ledger.New(), marketSnap(time.Now(), 5950))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPolicyByName(t *testing.T) {
	p, err := PolicyByName("directional")
	require.NoError(t, err)
	assert.Equal(t, "directional", p.Name())

	p, err = PolicyByName("hedged")
	require.NoError(t, err)
	assert.Equal(t, "hedged", p.Name())

	_, err = PolicyByName("nope")
	assert.Error(t, err)
}

// Guard against accidental signature drift between the policies.
var (
	_ EntryPolicy = DirectionalPolicy{}
	_ EntryPolicy = HedgedPolicy{}
)
