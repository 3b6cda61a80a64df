package broker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// Broker is the brokerage surface the bot depends on. Implementations
// must be safe for concurrent use.
type Broker interface {
	GetQuote(ctx context.Context, symbol string) (*QuoteItem, error)
	GetExpirations(ctx context.Context, symbol string) ([]string, error)
	GetOptionChain(ctx context.Context, symbol, expiration string) ([]Option, error)
	GetBalance(ctx context.Context) (*Balance, error)
	GetMarketClock(ctx context.Context, delayed bool) (*MarketClock, error)
	IsTradingDay(ctx context.Context, now time.Time) (bool, error)
	PlaceBuyToOpenOrder(ctx context.Context, optionSymbol string, quantity int, limitPrice float64, duration, tag string) (*Order, error)
	PlaceSellToCloseOrder(ctx context.Context, optionSymbol string, quantity int, limitPrice float64, duration, tag string) (*Order, error)
	GetOrderStatus(ctx context.Context, orderID int) (*Order, error)
	CancelOrder(ctx context.Context, orderID int) error
}

var _ Broker = (*TradierAPI)(nil)

// isPermanentAPIError reports whether an API error will not succeed on
// retry: any 4xx other than 429 (rate limit).
func isPermanentAPIError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != 429
}

// CircuitBreakerSettings tunes the breaker wrapping a Broker.
type CircuitBreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// DefaultCircuitBreakerSettings returns the settings used in production.
func DefaultCircuitBreakerSettings() CircuitBreakerSettings {
	return CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}

// CircuitBreakerBroker wraps a Broker with a circuit breaker so a
// failing API stops being hammered. Permanent client errors (4xx other
// than 429) pass through without counting toward the failure ratio.
type CircuitBreakerBroker struct {
	broker Broker
	cb     *gobreaker.CircuitBreaker
	logger *log.Logger
}

// NewCircuitBreakerBroker wraps the given broker with default settings.
func NewCircuitBreakerBroker(b Broker, logger *log.Logger) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(b, logger, DefaultCircuitBreakerSettings())
}

// NewCircuitBreakerBrokerWithSettings wraps the given broker with
// explicit breaker settings.
func NewCircuitBreakerBrokerWithSettings(b Broker, logger *log.Logger, s CircuitBreakerSettings) *CircuitBreakerBroker {
	if logger == nil {
		logger = log.Default()
	}
	settings := gobreaker.Settings{
		Name:        "tradier-api",
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= s.MinRequests && failureRatio >= s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Printf("circuit breaker %s: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Client errors are the caller's bug, not API health.
			return err == nil || isPermanentAPIError(err)
		},
	}
	return &CircuitBreakerBroker{
		broker: b,
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: logger,
	}
}

var _ Broker = (*CircuitBreakerBroker)(nil)

// execCircuitBreaker funnels a typed call through the breaker.
func execCircuitBreaker[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	result, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		var zero T
		return zero, errors.New("circuit breaker returned unexpected type")
	}
	return typed, nil
}

func (c *CircuitBreakerBroker) GetQuote(ctx context.Context, symbol string) (*QuoteItem, error) {
	return execCircuitBreaker(c.cb, func() (*QuoteItem, error) {
		return c.broker.GetQuote(ctx, symbol)
	})
}

func (c *CircuitBreakerBroker) GetExpirations(ctx context.Context, symbol string) ([]string, error) {
	return execCircuitBreaker(c.cb, func() ([]string, error) {
		return c.broker.GetExpirations(ctx, symbol)
	})
}

func (c *CircuitBreakerBroker) GetOptionChain(ctx context.Context, symbol, expiration string) ([]Option, error) {
	return execCircuitBreaker(c.cb, func() ([]Option, error) {
		return c.broker.GetOptionChain(ctx, symbol, expiration)
	})
}

func (c *CircuitBreakerBroker) GetBalance(ctx context.Context) (*Balance, error) {
	return execCircuitBreaker(c.cb, func() (*Balance, error) {
		return c.broker.GetBalance(ctx)
	})
}

func (c *CircuitBreakerBroker) GetMarketClock(ctx context.Context, delayed bool) (*MarketClock, error) {
	return execCircuitBreaker(c.cb, func() (*MarketClock, error) {
		return c.broker.GetMarketClock(ctx, delayed)
	})
}

func (c *CircuitBreakerBroker) IsTradingDay(ctx context.Context, now time.Time) (bool, error) {
	return execCircuitBreaker(c.cb, func() (bool, error) {
		return c.broker.IsTradingDay(ctx, now)
	})
}

func (c *CircuitBreakerBroker) PlaceBuyToOpenOrder(ctx context.Context, optionSymbol string, quantity int, limitPrice float64, duration, tag string) (*Order, error) {
	return execCircuitBreaker(c.cb, func() (*Order, error) {
		return c.broker.PlaceBuyToOpenOrder(ctx, optionSymbol, quantity, limitPrice, duration, tag)
	})
}

func (c *CircuitBreakerBroker) PlaceSellToCloseOrder(ctx context.Context, optionSymbol string, quantity int, limitPrice float64, duration, tag string) (*Order, error) {
	return execCircuitBreaker(c.cb, func() (*Order, error) {
		return c.broker.PlaceSellToCloseOrder(ctx, optionSymbol, quantity, limitPrice, duration, tag)
	})
}

func (c *CircuitBreakerBroker) GetOrderStatus(ctx context.Context, orderID int) (*Order, error) {
	return execCircuitBreaker(c.cb, func() (*Order, error) {
		return c.broker.GetOrderStatus(ctx, orderID)
	})
}

func (c *CircuitBreakerBroker) CancelOrder(ctx context.Context, orderID int) error {
	_, err := execCircuitBreaker(c.cb, func() (struct{}, error) {
		return struct{}{}, c.broker.CancelOrder(ctx, orderID)
	})
	return err
}
