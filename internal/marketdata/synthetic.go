package marketdata

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/kwhitaker/zerogex/internal/models"
)

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// secureInt63n generates a cryptographically secure random int64 between 0 and n-1
func secureInt63n(n int64) int64 {
	r, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return n / 2
	}
	return r.Int64()
}

// SyntheticSource generates plausible chain snapshots for dry runs without a
// snapshot database: a random-walking spot with gamma concentrated near the
// money and open interest piled onto round strikes so walls actually form.
type SyntheticSource struct {
	symbol   string
	loc      *time.Location
	spot     float64
	interval time.Duration
}

var (
	_ Source     = (*SyntheticSource)(nil)
	_ LiveSource = (*SyntheticSource)(nil)
)

// NewSyntheticSource creates a generator starting near an SPX-like level.
func NewSyntheticSource(symbol string, loc *time.Location) *SyntheticSource {
	if loc == nil {
		loc = time.UTC
	}
	return &SyntheticSource{
		symbol:   symbol,
		loc:      loc,
		spot:     5900 + secureFloat64()*100,
		interval: 5 * time.Minute,
	}
}

// TradingDays returns the weekdays in the inclusive range.
func (s *SyntheticSource) TradingDays(_ context.Context, start, end time.Time) ([]string, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("end %s before start %s", end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	var days []string
	for d := start.In(s.loc); !d.After(end.In(s.loc)); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		days = append(days, d.Format("2006-01-02"))
	}
	return days, nil
}

// Snapshots generates a session of snapshots from open to close.
func (s *SyntheticSource) Snapshots(_ context.Context, day string) ([]*models.Snapshot, error) {
	d, err := time.ParseInLocation("2006-01-02", day, s.loc)
	if err != nil {
		return nil, fmt.Errorf("bad day %q: %w", day, err)
	}
	open := time.Date(d.Year(), d.Month(), d.Day(), 9, 30, 0, 0, s.loc)
	sessionEnd := time.Date(d.Year(), d.Month(), d.Day(), 16, 0, 0, 0, s.loc)

	var snaps []*models.Snapshot
	for ts := open; ts.Before(sessionEnd); ts = ts.Add(s.interval) {
		snaps = append(snaps, s.generate(ts))
	}
	return snaps, nil
}

// Latest generates a single fresh snapshot.
func (s *SyntheticSource) Latest(_ context.Context) (*models.Snapshot, error) {
	return s.generate(time.Now().In(s.loc)), nil
}

func (s *SyntheticSource) generate(ts time.Time) *models.Snapshot {
	// Small random walk per step.
	s.spot += (secureFloat64() - 0.5) * 8

	snap := &models.Snapshot{
		Timestamp:       ts,
		Symbol:          s.symbol,
		UnderlyingPrice: s.spot,
	}
	expiration := ts.Format("2006-01-02")

	strikeInterval := 25.0
	atm := math.Round(s.spot/strikeInterval) * strikeInterval
	for strike := atm - 200; strike <= atm+200; strike += strikeInterval {
		distance := math.Abs(strike - s.spot)
		gamma := 0.03 * math.Exp(-distance*distance/(2*75*75))

		// Round hundreds attract open interest, which is what builds walls.
		oi := secureInt63n(2000) + 500
		if math.Mod(strike, 100) == 0 {
			oi += 4000
		}

		premium := math.Max(0.10, gamma*s.spot*2*(0.8+secureFloat64()*0.4))
		spread := math.Max(0.05, premium*0.05)

		for _, side := range []models.LegType{models.LegTypeCall, models.LegTypePut} {
			snap.Quotes = append(snap.Quotes, models.OptionQuote{
				Type:         side,
				Strike:       strike,
				Expiration:   expiration,
				Last:         premium,
				Bid:          premium - spread/2,
				Ask:          premium + spread/2,
				Gamma:        gamma,
				OpenInterest: int(oi),
				Volume:       int(secureInt63n(10000)),
			})
		}
	}
	return snap
}
