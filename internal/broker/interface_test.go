package broker

import (
	"context"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPermanentAPIError(t *testing.T) {
	assert.True(t, isPermanentAPIError(&APIError{Status: 400}))
	assert.True(t, isPermanentAPIError(&APIError{Status: 404}))
	assert.False(t, isPermanentAPIError(&APIError{Status: 429}))
	assert.False(t, isPermanentAPIError(&APIError{Status: 500}))
	assert.False(t, isPermanentAPIError(errors.New("network down")))
}

func TestCircuitBreaker_PassesThroughSuccess(t *testing.T) {
	mock := &MockBroker{QuoteResult: &QuoteItem{Symbol: "SPY", Last: 586.0}}
	cb := NewCircuitBreakerBroker(mock, log.Default())

	quote, err := cb.GetQuote(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, "SPY", quote.Symbol)
}

func TestCircuitBreaker_OpensAfterRepeatedFailures(t *testing.T) {
	mock := &MockBroker{Err: errors.New("connection refused")}
	settings := DefaultCircuitBreakerSettings()
	settings.MinRequests = 3
	cb := NewCircuitBreakerBrokerWithSettings(mock, log.Default(), settings)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := cb.GetQuote(ctx, "SPY")
		require.Error(t, err)
	}

	// Breaker is now open: the underlying broker stops being called.
	before := mock.CallCount
	_, err := cb.GetQuote(ctx, "SPY")
	require.Error(t, err)
	assert.Equal(t, before, mock.CallCount)
}

func TestCircuitBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	mock := &MockBroker{Err: &APIError{Status: 404, Body: "not found"}}
	settings := DefaultCircuitBreakerSettings()
	settings.MinRequests = 3
	cb := NewCircuitBreakerBrokerWithSettings(mock, log.Default(), settings)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := cb.GetQuote(ctx, "SPY")
		require.Error(t, err)
	}

	// Every call reached the broker: 4xx never opened the breaker.
	assert.Equal(t, 10, mock.CallCount)
}

func TestCircuitBreaker_CancelOrder(t *testing.T) {
	mock := &MockBroker{}
	order, err := mock.PlaceBuyToOpenOrder(context.Background(), "SPY260320C00605000", 1, 1.45, "day", "")
	require.NoError(t, err)

	cb := NewCircuitBreakerBroker(mock, nil)
	require.NoError(t, cb.CancelOrder(context.Background(), order.ID))
	assert.Equal(t, []int{order.ID}, mock.Canceled)
}
