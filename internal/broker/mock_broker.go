package broker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockBroker is a configurable in-memory Broker for tests.
type MockBroker struct {
	mu sync.Mutex

	QuoteResult  *QuoteItem
	Expirations  []string
	Chain        []Option
	BalanceValue *Balance
	Clock        *MarketClock
	TradingDay   bool

	// Orders holds order state by ID for GetOrderStatus lookups.
	Orders map[int]*Order

	// Err, when set, is returned by every call.
	Err error

	nextOrderID int
	PlacedOpen  []PlacedOrder
	PlacedClose []PlacedOrder
	Canceled    []int
	CallCount   int
}

// PlacedOrder records the arguments of a placement call.
type PlacedOrder struct {
	OptionSymbol string
	Quantity     int
	LimitPrice   float64
	Duration     string
	Tag          string
	OrderID      int
}

var _ Broker = (*MockBroker)(nil)

func (m *MockBroker) bump() error {
	m.CallCount++
	return m.Err
}

func (m *MockBroker) GetQuote(_ context.Context, symbol string) (*QuoteItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bump(); err != nil {
		return nil, err
	}
	if m.QuoteResult == nil {
		return nil, fmt.Errorf("no quote configured for %s", symbol)
	}
	return m.QuoteResult, nil
}

func (m *MockBroker) GetExpirations(_ context.Context, _ string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bump(); err != nil {
		return nil, err
	}
	return m.Expirations, nil
}

func (m *MockBroker) GetOptionChain(_ context.Context, _, _ string) ([]Option, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bump(); err != nil {
		return nil, err
	}
	return m.Chain, nil
}

func (m *MockBroker) GetBalance(_ context.Context) (*Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bump(); err != nil {
		return nil, err
	}
	if m.BalanceValue == nil {
		return &Balance{TotalEquity: 100000, OptionBP: 50000}, nil
	}
	return m.BalanceValue, nil
}

func (m *MockBroker) GetMarketClock(_ context.Context, _ bool) (*MarketClock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bump(); err != nil {
		return nil, err
	}
	if m.Clock == nil {
		clock := &MarketClock{}
		clock.Clock.State = "open"
		return clock, nil
	}
	return m.Clock, nil
}

func (m *MockBroker) IsTradingDay(_ context.Context, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bump(); err != nil {
		return false, err
	}
	return m.TradingDay, nil
}

func (m *MockBroker) PlaceBuyToOpenOrder(_ context.Context, optionSymbol string, quantity int, limitPrice float64, duration, tag string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bump(); err != nil {
		return nil, err
	}
	order := m.recordOrder(optionSymbol, "buy_to_open", quantity, limitPrice)
	m.PlacedOpen = append(m.PlacedOpen, PlacedOrder{
		OptionSymbol: optionSymbol,
		Quantity:     quantity,
		LimitPrice:   limitPrice,
		Duration:     duration,
		Tag:          tag,
		OrderID:      order.ID,
	})
	return order, nil
}

func (m *MockBroker) PlaceSellToCloseOrder(_ context.Context, optionSymbol string, quantity int, limitPrice float64, duration, tag string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bump(); err != nil {
		return nil, err
	}
	order := m.recordOrder(optionSymbol, "sell_to_close", quantity, limitPrice)
	m.PlacedClose = append(m.PlacedClose, PlacedOrder{
		OptionSymbol: optionSymbol,
		Quantity:     quantity,
		LimitPrice:   limitPrice,
		Duration:     duration,
		Tag:          tag,
		OrderID:      order.ID,
	})
	return order, nil
}

func (m *MockBroker) recordOrder(optionSymbol, side string, quantity int, limitPrice float64) *Order {
	m.nextOrderID++
	order := &Order{
		ID:           m.nextOrderID,
		Status:       OrderStatusPending,
		OptionSymbol: optionSymbol,
		Side:         side,
		Quantity:     float64(quantity),
		Price:        limitPrice,
	}
	if m.Orders == nil {
		m.Orders = make(map[int]*Order)
	}
	m.Orders[order.ID] = order
	return order
}

// FillOrder marks a recorded order as filled at the given price.
func (m *MockBroker) FillOrder(orderID int, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.Orders[orderID]; ok {
		o.Status = OrderStatusFilled
		o.AvgFillPrice = price
		o.ExecQuantity = o.Quantity
	}
}

// SetOrderStatus overrides a recorded order's status.
func (m *MockBroker) SetOrderStatus(orderID int, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.Orders[orderID]; ok {
		o.Status = status
	}
}

func (m *MockBroker) GetOrderStatus(_ context.Context, orderID int) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bump(); err != nil {
		return nil, err
	}
	o, ok := m.Orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %d not found", orderID)
	}
	cp := *o
	return &cp, nil
}

func (m *MockBroker) CancelOrder(_ context.Context, orderID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bump(); err != nil {
		return err
	}
	if o, ok := m.Orders[orderID]; ok {
		o.Status = OrderStatusCanceled
	}
	m.Canceled = append(m.Canceled, orderID)
	return nil
}
