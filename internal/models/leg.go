// Package models defines the core domain types shared across the bot:
// option legs, market snapshots, and their serialization rules.
package models

import (
	"fmt"
	"time"
)

// LegType identifies the option side of a leg.
type LegType string

const (
	LegTypeCall LegType = "call"
	LegTypePut  LegType = "put"
)

// Valid reports whether the leg type is one of the known sides.
func (t LegType) Valid() bool {
	return t == LegTypeCall || t == LegTypePut
}

// ExitReason records why a leg was closed. Values are stable strings and are
// persisted as-is, so they must never be renamed.
type ExitReason string

const (
	ExitProfitTarget    ExitReason = "profit_target"
	ExitStopLoss        ExitReason = "stop_loss"
	ExitEODRisk         ExitReason = "eod_risk_management"
	ExitOvernight       ExitReason = "overnight_close"
	ExitOvernightNoData ExitReason = "overnight_close_no_data"
	ExitEndOfBacktest   ExitReason = "end_of_backtest"
	ExitManual          ExitReason = "manual"
)

// Valid reports whether the reason is one of the known exit reasons.
func (r ExitReason) Valid() bool {
	switch r {
	case ExitProfitTarget, ExitStopLoss, ExitEODRisk,
		ExitOvernight, ExitOvernightNoData, ExitEndOfBacktest, ExitManual:
		return true
	}
	return false
}

// Priced reports whether legs closed for this reason carry an exit price.
// Overnight closes with no market data and end-of-run closes do not.
func (r ExitReason) Priced() bool {
	return r != ExitOvernightNoData && r != ExitEndOfBacktest
}

// OrderState tracks the lifecycle of a broker order attached to a leg.
// Backtested legs are created directly in OrderStateFilled.
type OrderState string

const (
	OrderStatePending  OrderState = "pending"
	OrderStateFilled   OrderState = "filled"
	OrderStateRejected OrderState = "rejected"
	OrderStateCanceled OrderState = "canceled"
	OrderStateExpired  OrderState = "expired"
)

// Terminal reports whether the order can no longer fill.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateFilled, OrderStateRejected, OrderStateCanceled, OrderStateExpired:
		return true
	}
	return false
}

// Leg is a single long option position. Entry fields are set when the leg is
// opened; exit fields stay unset (omitted from JSON) until the leg closes.
// Prices are per-share option premium; PnL is exit minus entry premium.
type Leg struct {
	ID           string  `json:"id"`
	Type         LegType `json:"type"`
	Strike       float64 `json:"strike"`
	Expiration   string  `json:"expiration"` // YYYY-MM-DD
	OptionSymbol string  `json:"option_symbol,omitempty"`
	Contracts    int     `json:"contracts"`

	EntryTime       time.Time  `json:"entry_time"`
	EntryPrice      float64    `json:"entry_price"`
	EntryUnderlying float64    `json:"entry_underlying,omitempty"`
	ZeroGEXAtEntry  *float64   `json:"zero_gex_at_entry,omitempty"`
	SignalAtEntry   string     `json:"signal_at_entry,omitempty"`
	EntryOrderID    string     `json:"entry_order_id,omitempty"`
	EntryOrderState OrderState `json:"entry_order_state,omitempty"`

	ExitTime       *time.Time `json:"exit_time,omitempty"`
	ExitPrice      *float64   `json:"exit_price,omitempty"`
	ExitUnderlying *float64   `json:"exit_underlying,omitempty"`
	ExitReason     ExitReason `json:"exit_reason,omitempty"`
	ExitOrderID    string     `json:"exit_order_id,omitempty"`
	ExitOrderState OrderState `json:"exit_order_state,omitempty"`

	PnL    *float64 `json:"pnl,omitempty"`
	PnLPct *float64 `json:"pnl_pct,omitempty"`
}

// EntryFilled reports whether the opening order has filled. Legs created by
// the backtester fill immediately; live legs stay pending until the broker
// confirms.
func (l *Leg) EntryFilled() bool {
	return l.EntryOrderState == OrderStateFilled
}

// ExitPending reports whether a closing order is working at the broker.
func (l *Leg) ExitPending() bool {
	return l.ExitOrderID != "" && l.ExitOrderState == OrderStatePending
}

// Closed reports whether the leg has finished its lifecycle.
func (l *Leg) Closed() bool {
	return l.ExitReason != "" && !l.ExitPending()
}

// PnLAt returns the unrealized premium P&L and its percentage of entry
// premium at the given price. A zero entry price yields a zero percentage.
func (l *Leg) PnLAt(price float64) (pnl, pct float64) {
	pnl = price - l.EntryPrice
	if l.EntryPrice > 0 {
		pct = pnl / l.EntryPrice * 100
	}
	return pnl, pct
}

// CloseAt stamps the leg with a priced exit.
func (l *Leg) CloseAt(at time.Time, price, underlying float64, reason ExitReason) {
	t := at
	l.ExitTime = &t
	l.ExitPrice = &price
	l.ExitUnderlying = &underlying
	l.ExitReason = reason
	pnl, pct := l.PnLAt(price)
	l.PnL = &pnl
	l.PnLPct = &pct
}

// CloseUnpriced stamps the leg with an exit that has no observable price,
// such as an overnight close on a day without data. P&L stays unset.
func (l *Leg) CloseUnpriced(at time.Time, reason ExitReason) {
	t := at
	l.ExitTime = &t
	l.ExitReason = reason
}

// EntryDay returns the calendar day of entry in the given location.
func (l *Leg) EntryDay(loc *time.Location) string {
	return l.EntryTime.In(loc).Format("2006-01-02")
}

func (l *Leg) String() string {
	return fmt.Sprintf("%s %s %.2f exp %s @ %.2f", shortID(l.ID), l.Type, l.Strike, l.Expiration, l.EntryPrice)
}

// shortID trims a UUID down to its first group for log lines.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
