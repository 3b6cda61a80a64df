package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/kwhitaker/zerogex/internal/broker"
	"github.com/kwhitaker/zerogex/internal/models"
)

// BrokerSource builds live snapshots from the broker's quote and option
// chain endpoints. It only fetches expirations within maxDTE days so a
// snapshot costs one chain request per near-term expiration.
type BrokerSource struct {
	broker broker.Broker
	symbol string
	maxDTE int
	loc    *time.Location
}

var _ LiveSource = (*BrokerSource)(nil)

// NewBrokerSource creates a live source for one underlying.
func NewBrokerSource(b broker.Broker, symbol string, maxDTE int, loc *time.Location) *BrokerSource {
	if loc == nil {
		loc = time.UTC
	}
	return &BrokerSource{broker: b, symbol: symbol, maxDTE: maxDTE, loc: loc}
}

// Latest assembles a snapshot from the current quote and the chains of
// every expiration within the DTE window.
func (s *BrokerSource) Latest(ctx context.Context) (*models.Snapshot, error) {
	quote, err := s.broker.GetQuote(ctx, s.symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying quote: %w", err)
	}
	if quote.Last <= 0 {
		return nil, fmt.Errorf("no usable underlying price for %s", s.symbol)
	}

	expirations, err := s.broker.GetExpirations(ctx, s.symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to get expirations: %w", err)
	}

	now := time.Now().In(s.loc)
	snap := &models.Snapshot{
		Timestamp:       now,
		Symbol:          s.symbol,
		UnderlyingPrice: quote.Last,
	}

	for _, expiration := range expirations {
		dte, ok := s.dte(expiration, now)
		if !ok || dte < 0 || dte > s.maxDTE {
			continue
		}
		chain, err := s.broker.GetOptionChain(ctx, s.symbol, expiration)
		if err != nil {
			return nil, fmt.Errorf("failed to get chain for %s: %w", expiration, err)
		}
		for _, opt := range chain {
			legType := models.LegType(opt.OptionType)
			if !legType.Valid() {
				continue
			}
			q := models.OptionQuote{
				Symbol:       opt.Symbol,
				Type:         legType,
				Strike:       opt.Strike,
				Expiration:   opt.ExpirationDate,
				Last:         opt.Last,
				Bid:          opt.Bid,
				Ask:          opt.Ask,
				OpenInterest: int(opt.OpenInterest),
				Volume:       int(opt.Volume),
			}
			if opt.Greeks != nil {
				q.Gamma = opt.Greeks.Gamma
			}
			snap.Quotes = append(snap.Quotes, q)
		}
	}

	if len(snap.Quotes) == 0 {
		return nil, fmt.Errorf("no option quotes within %d DTE for %s", s.maxDTE, s.symbol)
	}
	return snap, nil
}

func (s *BrokerSource) dte(expiration string, now time.Time) (int, bool) {
	exp, err := time.ParseInLocation("2006-01-02", expiration, s.loc)
	if err != nil {
		return 0, false
	}
	return models.DaysBetween(now.In(s.loc), exp), true
}
