// Package orders routes engine decisions to the broker as limit orders
// and reconciles pending orders against broker fills.
package orders

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kwhitaker/zerogex/internal/broker"
	"github.com/kwhitaker/zerogex/internal/engine"
	"github.com/kwhitaker/zerogex/internal/ledger"
	"github.com/kwhitaker/zerogex/internal/models"
	"github.com/kwhitaker/zerogex/internal/retry"
	"github.com/kwhitaker/zerogex/internal/util"
)

// optionTick is the price increment for option limit orders. Penny
// increments apply to the liquid index products this bot trades.
const optionTick = 0.01

// LiveExecutor implements engine.Executor by placing limit orders at
// the broker. Legs it opens stay pending until Manager.CheckFills
// confirms the fill.
type LiveExecutor struct {
	broker     broker.Broker
	closer     *retry.Client
	underlying string
	logger     *log.Logger
}

var _ engine.Executor = (*LiveExecutor)(nil)

// NewLiveExecutor creates an executor that trades the given underlying.
func NewLiveExecutor(b broker.Broker, underlying string, logger *log.Logger) *LiveExecutor {
	if logger == nil {
		logger = log.Default()
	}
	return &LiveExecutor{
		broker:     b,
		closer:     retry.NewClient(b, logger),
		underlying: underlying,
		logger:     logger,
	}
}

// OpenLeg places a buy-to-open limit order and records the leg as
// pending. The entry price is provisional until the fill confirms; the
// limit is ceiled to the tick so the bid never undercuts the quote.
func (e *LiveExecutor) OpenLeg(ctx context.Context, led *ledger.Ledger, intent engine.EntryIntent) error {
	expiration, err := time.Parse("2006-01-02", intent.Expiration)
	if err != nil {
		return fmt.Errorf("invalid expiration %q: %w", intent.Expiration, err)
	}
	optionSymbol, err := broker.FormatOptionSymbol(e.underlying, expiration, intent.Type, intent.Strike)
	if err != nil {
		return fmt.Errorf("failed to build option symbol: %w", err)
	}

	limit := util.CeilToTick(intent.Price, optionTick)
	tag := orderTag(optionSymbol, intent.Timestamp)

	order, err := e.broker.PlaceBuyToOpenOrder(ctx, optionSymbol, intent.Contracts, limit, "day", tag)
	if err != nil {
		return fmt.Errorf("failed to place entry order for %s: %w", optionSymbol, err)
	}

	leg := &models.Leg{
		ID:              uuid.New().String(),
		Type:            intent.Type,
		Strike:          intent.Strike,
		Expiration:      intent.Expiration,
		OptionSymbol:    optionSymbol,
		Contracts:       intent.Contracts,
		EntryTime:       intent.Timestamp,
		EntryPrice:      limit,
		EntryUnderlying: intent.Underlying,
		EntryOrderID:    strconv.Itoa(order.ID),
		EntryOrderState: models.OrderStatePending,
	}
	if intent.Signal != nil {
		leg.ZeroGEXAtEntry = intent.Signal.ZeroGEX
		leg.SignalAtEntry = string(intent.Signal.Direction)
	}

	if err := led.Add(leg); err != nil {
		// The order is live but the ledger refused the leg. Cancel so
		// the broker and ledger do not diverge.
		if cancelErr := e.broker.CancelOrder(ctx, order.ID); cancelErr != nil {
			e.logger.Printf("Failed to cancel orphaned order %d: %v", order.ID, cancelErr)
		}
		return fmt.Errorf("failed to record leg: %w", err)
	}

	e.logger.Printf("Entry order %d placed: %s x%d limit %.2f", order.ID, optionSymbol, intent.Contracts, limit)
	return nil
}

// CloseLeg places a sell-to-close limit order for the leg and marks the
// exit as pending. Unpriced closes are rejected: a live exit always
// needs a limit price.
func (e *LiveExecutor) CloseLeg(ctx context.Context, led *ledger.Ledger, intent engine.CloseIntent) error {
	leg := intent.Leg
	if intent.Price == nil {
		return fmt.Errorf("cannot close %s without a price", leg.ID)
	}
	if leg.OptionSymbol == "" {
		return fmt.Errorf("leg %s has no option symbol", leg.ID)
	}

	limit := util.FloorToTick(*intent.Price, optionTick)
	if limit < optionTick {
		limit = optionTick
	}
	tag := orderTag(leg.OptionSymbol, intent.Timestamp)

	order, err := e.closer.SellToCloseWithRetry(ctx, leg.OptionSymbol, leg.Contracts, limit, tag)
	if err != nil {
		return fmt.Errorf("failed to place exit order for %s: %w", leg.OptionSymbol, err)
	}

	underlying := intent.Underlying
	leg.ExitReason = intent.Reason
	leg.ExitOrderID = strconv.Itoa(order.ID)
	leg.ExitOrderState = models.OrderStatePending
	leg.ExitUnderlying = &underlying

	e.logger.Printf("Exit order %d placed: %s x%d limit %.2f (%s)", order.ID, leg.OptionSymbol, leg.Contracts, limit, intent.Reason)
	return nil
}

// orderTag builds a short unique client tag for order placement so
// fills can be traced back in the broker's activity log.
func orderTag(optionSymbol string, at time.Time) string {
	nonce := make([]byte, 4)
	if _, err := rand.Read(nonce); err != nil {
		// Fall back to time-only tags; uniqueness suffers but orders
		// still go through.
		nonce = []byte{0, 0, 0, 0}
	}
	sum := sha256.Sum256([]byte(optionSymbol + at.Format(time.RFC3339Nano) + hex.EncodeToString(nonce)))
	return "zgx-" + hex.EncodeToString(sum[:6])
}
