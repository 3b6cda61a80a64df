package orders

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/kwhitaker/zerogex/internal/broker"
	"github.com/kwhitaker/zerogex/internal/ledger"
	"github.com/kwhitaker/zerogex/internal/models"
)

// Config contains configuration for the order manager.
type Config struct {
	// CallTimeout bounds each order status lookup.
	CallTimeout time.Duration
	// EntryTimeout is how long an unfilled entry order may work before
	// it is canceled and its leg dropped.
	EntryTimeout time.Duration
}

// DefaultConfig is the default configuration for the order manager.
var DefaultConfig = Config{
	CallTimeout:  5 * time.Second,
	EntryTimeout: 5 * time.Minute,
}

// Manager reconciles pending ledger legs against broker order state.
// It is called once per trading cycle, before the engine runs, so the
// engine always sees confirmed fills.
type Manager struct {
	broker broker.Broker
	logger *log.Logger
	config Config
}

// NewManager creates a new order manager instance.
func NewManager(b broker.Broker, logger *log.Logger, config ...Config) *Manager {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig.CallTimeout
	}
	if cfg.EntryTimeout <= 0 {
		cfg.EntryTimeout = DefaultConfig.EntryTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{broker: b, logger: logger, config: cfg}
}

// CheckFills walks the active legs and resolves any with pending entry
// or exit orders. Lookup failures are logged and skipped so one flaky
// call does not block the rest of the cycle.
func (m *Manager) CheckFills(ctx context.Context, led *ledger.Ledger, now time.Time) {
	for _, leg := range led.Active() {
		if leg.EntryOrderState == models.OrderStatePending {
			m.checkEntryOrder(ctx, led, leg, now)
			continue
		}
		if leg.ExitPending() {
			m.checkExitOrder(ctx, led, leg, now)
		}
	}
}

func (m *Manager) checkEntryOrder(ctx context.Context, led *ledger.Ledger, leg *models.Leg, now time.Time) {
	order, ok := m.lookupOrder(ctx, leg.EntryOrderID)
	if !ok {
		return
	}

	state := orderStateFromStatus(order.Status)
	switch {
	case state == models.OrderStateFilled:
		leg.EntryOrderState = models.OrderStateFilled
		if order.AvgFillPrice > 0 {
			leg.EntryPrice = order.AvgFillPrice
		}
		m.logger.Printf("Entry filled: %s at %.2f", leg, leg.EntryPrice)

	case state.Terminal():
		m.logger.Printf("Entry order %s %s, dropping leg %s", leg.EntryOrderID, order.Status, leg)
		if err := led.Remove(leg.ID); err != nil {
			m.logger.Printf("Failed to drop leg %s: %v", leg.ID, err)
		}

	case now.Sub(leg.EntryTime) > m.config.EntryTimeout:
		m.logger.Printf("Entry order %s stale after %v, canceling", leg.EntryOrderID, m.config.EntryTimeout)
		orderID, err := strconv.Atoi(leg.EntryOrderID)
		if err != nil {
			m.logger.Printf("Bad entry order ID %q on leg %s: %v", leg.EntryOrderID, leg.ID, err)
			return
		}
		if err := m.broker.CancelOrder(ctx, orderID); err != nil {
			// The order may have just filled; the next cycle resolves it.
			m.logger.Printf("Failed to cancel entry order %d: %v", orderID, err)
			return
		}
		if err := led.Remove(leg.ID); err != nil {
			m.logger.Printf("Failed to drop leg %s after cancel: %v", leg.ID, err)
		}
	}
}

func (m *Manager) checkExitOrder(ctx context.Context, led *ledger.Ledger, leg *models.Leg, now time.Time) {
	order, ok := m.lookupOrder(ctx, leg.ExitOrderID)
	if !ok {
		return
	}

	state := orderStateFromStatus(order.Status)
	switch {
	case state == models.OrderStateFilled:
		price := order.AvgFillPrice
		if price <= 0 {
			price = order.Price
		}
		t := now
		leg.ExitTime = &t
		leg.ExitPrice = &price
		pnl, pct := leg.PnLAt(price)
		leg.PnL = &pnl
		leg.PnLPct = &pct
		leg.ExitOrderState = models.OrderStateFilled
		m.logger.Printf("Exit filled: %s at %.2f, pnl %.2f (%s)", leg, price, pnl, leg.ExitReason)
		if err := led.Close(leg.ID); err != nil {
			m.logger.Printf("Failed to close leg %s: %v", leg.ID, err)
		}

	case state.Terminal():
		// The exit did not go through. Clear it so the engine can try
		// again on the next snapshot.
		m.logger.Printf("Exit order %s %s for leg %s, leg stays active", leg.ExitOrderID, order.Status, leg)
		leg.ExitOrderID = ""
		leg.ExitOrderState = ""
		leg.ExitReason = ""
		leg.ExitUnderlying = nil
	}
}

func (m *Manager) lookupOrder(ctx context.Context, orderIDStr string) (*broker.Order, bool) {
	orderID, err := strconv.Atoi(orderIDStr)
	if err != nil {
		m.logger.Printf("Bad order ID %q: %v", orderIDStr, err)
		return nil, false
	}

	callCtx, cancel := context.WithTimeout(ctx, m.config.CallTimeout)
	defer cancel()

	order, err := m.broker.GetOrderStatus(callCtx, orderID)
	if err != nil {
		m.logger.Printf("Failed to get status for order %d: %v", orderID, err)
		return nil, false
	}
	if order == nil || order.ID == 0 || order.Status == "" {
		m.logger.Printf("Incomplete status payload for order %d", orderID)
		return nil, false
	}
	return order, true
}

// orderStateFromStatus maps a broker status string onto the leg order
// state. Working statuses map to pending.
func orderStateFromStatus(status string) models.OrderState {
	switch strings.ToLower(status) {
	case broker.OrderStatusFilled:
		return models.OrderStateFilled
	case broker.OrderStatusRejected, broker.OrderStatusError:
		return models.OrderStateRejected
	case broker.OrderStatusCanceled, "cancelled":
		return models.OrderStateCanceled
	case broker.OrderStatusExpired:
		return models.OrderStateExpired
	default:
		return models.OrderStatePending
	}
}
