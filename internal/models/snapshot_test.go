package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectivePrice_Fallbacks(t *testing.T) {
	tests := []struct {
		name  string
		quote OptionQuote
		want  float64
		ok    bool
	}{
		{"last trade wins", OptionQuote{Last: 1.50, Bid: 1.00, Ask: 2.00}, 1.50, true},
		{"mid when no last", OptionQuote{Bid: 1.00, Ask: 2.00}, 1.50, true},
		{"mid needs both sides", OptionQuote{Bid: 1.00}, 0, false},
		{"zero bid blocks mid", OptionQuote{Bid: 0, Ask: 2.00}, 0, false},
		{"no prices at all", OptionQuote{}, 0, false},
		{"negative last ignored", OptionQuote{Last: -1, Bid: 0.50, Ask: 0.70}, 0.60, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.quote.EffectivePrice()
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestGEX_SignConvention(t *testing.T) {
	call := OptionQuote{Type: LegTypeCall, Strike: 100, Gamma: 0.02, OpenInterest: 500}
	put := OptionQuote{Type: LegTypePut, Strike: 100, Gamma: 0.02, OpenInterest: 500}

	assert.InDelta(t, 100*0.02*500*100, call.GEX(), 1e-9)
	assert.InDelta(t, -(100 * 0.02 * 500 * 100), put.GEX(), 1e-9)
}

func TestFilterByDTE(t *testing.T) {
	loc := time.UTC
	ts := time.Date(2025, 3, 14, 10, 30, 0, 0, loc)
	snap := &Snapshot{
		Timestamp:       ts,
		UnderlyingPrice: 5900,
		Quotes: []OptionQuote{
			{Type: LegTypeCall, Strike: 5900, Expiration: "2025-03-14"}, // 0 DTE
			{Type: LegTypeCall, Strike: 5910, Expiration: "2025-03-15"}, // 1 DTE
			{Type: LegTypeCall, Strike: 5920, Expiration: "2025-03-21"}, // 7 DTE
			{Type: LegTypePut, Strike: 5890, Expiration: "2025-03-13"},  // expired
			{Type: LegTypePut, Strike: 5880, Expiration: "garbage"},
		},
	}

	got := snap.FilterByDTE(1, loc)
	require.Len(t, got.Quotes, 2)
	assert.Equal(t, 5900.0, got.Quotes[0].Strike)
	assert.Equal(t, 5910.0, got.Quotes[1].Strike)
}

func TestDTE_AcrossDSTTransitions(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name       string
		asOf       time.Time
		expiration string
		want       int
	}{
		{
			// The night into 2026-03-08 is only 23 hours long.
			name:       "next day over spring forward",
			asOf:       time.Date(2026, 3, 7, 15, 0, 0, 0, loc),
			expiration: "2026-03-08",
			want:       1,
		},
		{
			// The night into 2026-11-01 is 25 hours long.
			name:       "next day over fall back",
			asOf:       time.Date(2026, 10, 31, 15, 0, 0, 0, loc),
			expiration: "2026-11-01",
			want:       1,
		},
		{
			name:       "same day",
			asOf:       time.Date(2026, 3, 8, 10, 0, 0, 0, loc),
			expiration: "2026-03-08",
			want:       0,
		},
		{
			name:       "week spanning spring forward",
			asOf:       time.Date(2026, 3, 6, 10, 0, 0, 0, loc),
			expiration: "2026-03-13",
			want:       7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := OptionQuote{Expiration: tt.expiration}
			assert.Equal(t, tt.want, q.DTE(tt.asOf, loc))
		})
	}
}

func TestQuote_PrefersEarliestExpiration(t *testing.T) {
	snap := &Snapshot{Quotes: []OptionQuote{
		{Type: LegTypeCall, Strike: 5900, Expiration: "2025-03-21", Last: 9.0},
		{Type: LegTypeCall, Strike: 5900, Expiration: "2025-03-14", Last: 4.0},
		{Type: LegTypePut, Strike: 5900, Expiration: "2025-03-14", Last: 3.0},
	}}

	q, ok := snap.Quote(LegTypeCall, 5900)
	require.True(t, ok)
	assert.Equal(t, "2025-03-14", q.Expiration)
	assert.Equal(t, 4.0, q.Last)

	price, ok := snap.PriceFor(LegTypePut, 5900)
	require.True(t, ok)
	assert.Equal(t, 3.0, price)

	_, ok = snap.Quote(LegTypePut, 4000)
	assert.False(t, ok)
}
