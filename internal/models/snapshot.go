package models

import (
	"time"
)

// OptionQuote is one option contract's state inside a snapshot.
type OptionQuote struct {
	Symbol       string  `json:"symbol,omitempty"`
	Type         LegType `json:"type"`
	Strike       float64 `json:"strike"`
	Expiration   string  `json:"expiration"` // YYYY-MM-DD
	Last         float64 `json:"last"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	Gamma        float64 `json:"gamma"`
	OpenInterest int     `json:"open_interest"`
	Volume       int     `json:"volume,omitempty"`
}

// EffectivePrice returns the tradable premium for the quote: the last trade
// when positive, otherwise the bid/ask midpoint when both sides are present.
// ok is false when neither yields a usable price.
func (q *OptionQuote) EffectivePrice() (price float64, ok bool) {
	if q.Last > 0 {
		return q.Last, true
	}
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2, true
	}
	return 0, false
}

// GEX is the contract's gamma exposure contribution:
// strike * gamma * open interest * 100, negated for puts.
func (q *OptionQuote) GEX() float64 {
	gex := q.Strike * q.Gamma * float64(q.OpenInterest) * 100
	if q.Type == LegTypePut {
		return -gex
	}
	return gex
}

// DTE returns whole calendar days from the snapshot day to expiration.
// Expired or unparseable expirations return a negative value.
func (q *OptionQuote) DTE(asOf time.Time, loc *time.Location) int {
	exp, err := time.ParseInLocation("2006-01-02", q.Expiration, loc)
	if err != nil {
		return -1
	}
	return DaysBetween(asOf.In(loc), exp)
}

// DaysBetween counts whole calendar days from a to b, ignoring clock
// time. Both dates are re-anchored in UTC so DST transitions never
// shorten or stretch a day.
func DaysBetween(a, b time.Time) int {
	au := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bu := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au).Hours() / 24)
}

// Snapshot is one observation of an option chain: the underlying price plus
// every option quote captured at the same instant.
type Snapshot struct {
	Timestamp       time.Time     `json:"timestamp"`
	Symbol          string        `json:"symbol"`
	UnderlyingPrice float64       `json:"underlying_price"`
	Quotes          []OptionQuote `json:"quotes"`
}

// Day returns the snapshot's calendar day in the given location.
func (s *Snapshot) Day(loc *time.Location) string {
	return s.Timestamp.In(loc).Format("2006-01-02")
}

// FilterByDTE returns a copy of the snapshot keeping only quotes expiring
// within maxDTE days of the snapshot (and not already expired).
func (s *Snapshot) FilterByDTE(maxDTE int, loc *time.Location) *Snapshot {
	out := &Snapshot{
		Timestamp:       s.Timestamp,
		Symbol:          s.Symbol,
		UnderlyingPrice: s.UnderlyingPrice,
	}
	for _, q := range s.Quotes {
		if dte := q.DTE(s.Timestamp, loc); dte >= 0 && dte <= maxDTE {
			out.Quotes = append(out.Quotes, q)
		}
	}
	return out
}

// Quote finds the quote for a given side and strike. When several
// expirations share a strike the earliest expiration wins.
func (s *Snapshot) Quote(t LegType, strike float64) (*OptionQuote, bool) {
	var best *OptionQuote
	for i := range s.Quotes {
		q := &s.Quotes[i]
		if q.Type != t || q.Strike != strike {
			continue
		}
		if best == nil || q.Expiration < best.Expiration {
			best = q
		}
	}
	return best, best != nil
}

// PriceFor returns the effective tradable price for a side and strike.
func (s *Snapshot) PriceFor(t LegType, strike float64) (float64, bool) {
	q, ok := s.Quote(t, strike)
	if !ok {
		return 0, false
	}
	return q.EffectivePrice()
}
