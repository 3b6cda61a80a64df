package main

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwhitaker/zerogex/internal/broker"
	"github.com/kwhitaker/zerogex/internal/config"
	"github.com/kwhitaker/zerogex/internal/engine"
	"github.com/kwhitaker/zerogex/internal/ledger"
	"github.com/kwhitaker/zerogex/internal/marketdata"
	"github.com/kwhitaker/zerogex/internal/models"
	"github.com/kwhitaker/zerogex/internal/orders"
	"github.com/kwhitaker/zerogex/internal/storage"
)

// stubSource serves a fixed snapshot, an error, or the empty-store
// (nil, nil) response.
type stubSource struct {
	snap *models.Snapshot
	err  error
}

var _ marketdata.LiveSource = (*stubSource)(nil)

func (s *stubSource) Latest(_ context.Context) (*models.Snapshot, error) {
	return s.snap, s.err
}

// buySignalSnap produces a profile that flips at 5900 with a call wall
// at 6000 while the underlying trades above the flip.
func buySignalSnap(ts time.Time) *models.Snapshot {
	exp := ts.Format("2006-01-02")
	return &models.Snapshot{
		Timestamp:       ts,
		Symbol:          "SPY",
		UnderlyingPrice: 5950,
		Quotes: []models.OptionQuote{
			{Type: models.LegTypePut, Strike: 5800, Expiration: exp, Bid: 1.00, Ask: 1.10, Gamma: 0.02, OpenInterest: 5000},
			{Type: models.LegTypeCall, Strike: 5900, Expiration: exp, Last: 2.10, Gamma: 0.005, OpenInterest: 1000},
			{Type: models.LegTypeCall, Strike: 6000, Expiration: exp, Last: 1.50, Gamma: 0.015, OpenInterest: 4000},
		},
	}
}

func openClock() *broker.MarketClock {
	clock := &broker.MarketClock{}
	clock.Clock.State = "open"
	return clock
}

func newTestBot(t *testing.T, mock *broker.MockBroker, source marketdata.LiveSource) *Bot {
	t.Helper()
	logger := log.New(io.Discard, "", 0)

	cfg := &config.Config{}
	cfg.Environment.Mode = "paper"
	cfg.Strategy.Symbol = "SPY"
	cfg.Strategy.Contracts = 1
	cfg.Strategy.MaxLegsPerType = 2
	cfg.Strategy.MaxDTE = 1
	cfg.Schedule.Timezone = "UTC"
	cfg.Schedule.TradingStart = "09:30"
	cfg.Schedule.TradingEnd = "16:00"
	cfg.Schedule.MarketCheckInterval = "5m"

	led := ledger.New()
	eng := engine.New(engine.Config{
		MaxLegsPerType: 2,
		Contracts:      1,
		Location:       time.UTC,
	}, engine.DirectionalPolicy{}, orders.NewLiveExecutor(mock, "SPY", logger), logger)

	return &Bot{
		config:  cfg,
		broker:  mock,
		storage: storage.NewMockStorage(),
		ledger:  led,
		engine:  eng,
		orders:  orders.NewManager(mock, logger),
		source:  source,
		logger:  logger,
		loc:     time.UTC,
	}
}

func TestCycle_SkipsWhenMarketClosed(t *testing.T) {
	closed := &broker.MarketClock{}
	closed.Clock.State = "closed"
	mock := &broker.MockBroker{TradingDay: true, Clock: closed}

	bot := newTestBot(t, mock, &stubSource{snap: buySignalSnap(time.Now())})
	NewTradingCycle(bot).Run(context.Background())

	assert.Empty(t, mock.PlacedOpen)
	assert.Empty(t, bot.ledger.Active())
}

func TestCycle_SkipsOnMarketHoliday(t *testing.T) {
	mock := &broker.MockBroker{TradingDay: false, Clock: openClock()}

	bot := newTestBot(t, mock, &stubSource{snap: buySignalSnap(time.Now())})
	NewTradingCycle(bot).Run(context.Background())

	assert.Empty(t, mock.PlacedOpen)
}

func TestCycle_OpensLegOnBuySignal(t *testing.T) {
	ts := time.Date(2026, 3, 16, 14, 30, 0, 0, time.UTC)
	mock := &broker.MockBroker{TradingDay: true, Clock: openClock()}

	bot := newTestBot(t, mock, &stubSource{snap: buySignalSnap(ts)})
	NewTradingCycle(bot).Run(context.Background())

	require.Len(t, mock.PlacedOpen, 1)
	assert.Equal(t, "SPY260316C06000000", mock.PlacedOpen[0].OptionSymbol)

	active := bot.ledger.Active()
	require.Len(t, active, 1)
	assert.Equal(t, models.LegTypeCall, active[0].Type)
	assert.False(t, active[0].EntryFilled())

	// State was persisted after the cycle.
	store := bot.storage.(*storage.MockStorage)
	assert.Greater(t, store.SaveCount, 0)
}

func TestCycle_ConfirmsFillOnNextCycle(t *testing.T) {
	ts := time.Date(2026, 3, 16, 14, 30, 0, 0, time.UTC)
	mock := &broker.MockBroker{TradingDay: true, Clock: openClock()}

	bot := newTestBot(t, mock, &stubSource{snap: buySignalSnap(ts)})
	cycle := NewTradingCycle(bot)

	cycle.Run(context.Background())
	require.Len(t, mock.PlacedOpen, 1)
	mock.FillOrder(mock.PlacedOpen[0].OrderID, 1.48)

	cycle.Run(context.Background())

	active := bot.ledger.Active()
	require.Len(t, active, 1)
	assert.True(t, active[0].EntryFilled())
	assert.InDelta(t, 1.48, active[0].EntryPrice, 1e-9)
	// The wall strike is taken, no duplicate entry.
	assert.Len(t, mock.PlacedOpen, 1)
}

func TestCycle_SnapshotErrorSkipsDecisions(t *testing.T) {
	mock := &broker.MockBroker{TradingDay: true, Clock: openClock()}

	bot := newTestBot(t, mock, &stubSource{err: assert.AnError})
	NewTradingCycle(bot).Run(context.Background())

	assert.Empty(t, mock.PlacedOpen)
	store := bot.storage.(*storage.MockStorage)
	assert.Greater(t, store.SaveCount, 0)
}

func TestCycle_EmptySnapshotStoreSkipsDecisions(t *testing.T) {
	mock := &broker.MockBroker{TradingDay: true, Clock: openClock()}

	// A fresh snapshot store yields (nil, nil), same as
	// PostgresSource.Latest with no rows.
	bot := newTestBot(t, mock, &stubSource{})
	require.NotPanics(t, func() {
		NewTradingCycle(bot).Run(context.Background())
	})

	assert.Empty(t, mock.PlacedOpen)
	store := bot.storage.(*storage.MockStorage)
	assert.Greater(t, store.SaveCount, 0)
}

func TestReconcileStartup_ResolvesCarriedOverPendingOrder(t *testing.T) {
	ts := time.Date(2026, 3, 16, 14, 30, 0, 0, time.UTC)
	mock := &broker.MockBroker{TradingDay: true, Clock: openClock()}
	bot := newTestBot(t, mock, &stubSource{snap: buySignalSnap(ts)})
	cycle := NewTradingCycle(bot)

	// A pending entry left behind by a previous run.
	cycle.Run(context.Background())
	require.Len(t, bot.ledger.Active(), 1)
	mock.FillOrder(mock.PlacedOpen[0].OrderID, 1.52)

	cycle.ReconcileStartup(context.Background())

	active := bot.ledger.Active()
	require.Len(t, active, 1)
	assert.True(t, active[0].EntryFilled())
}
