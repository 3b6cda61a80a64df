package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/kwhitaker/zerogex/internal/models"
)

// PostgresSource reads chain snapshots the GEX collector writes into the
// gex_snapshots table. One table row is one option contract at one capture
// instant; rows sharing (symbol, updated_at) form a snapshot.
type PostgresSource struct {
	db       *sqlx.DB
	symbol   string
	timezone string
}

var (
	_ Source     = (*PostgresSource)(nil)
	_ LiveSource = (*PostgresSource)(nil)
)

// NewPostgresSource connects to the snapshot store. timezone is the market
// timezone name used to bucket timestamps into trading days; empty defaults
// to America/New_York.
func NewPostgresSource(dsn, symbol, timezone string) (*PostgresSource, error) {
	if timezone == "" {
		timezone = "America/New_York"
	}
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect snapshot store: %w", err)
	}
	db.SetMaxOpenConns(4)
	return &PostgresSource{db: db, symbol: symbol, timezone: timezone}, nil
}

// Close releases the database pool.
func (s *PostgresSource) Close() error {
	return s.db.Close()
}

type chainRow struct {
	UpdatedAt       time.Time       `db:"updated_at"`
	UnderlyingPrice float64         `db:"underlying_price"`
	OptionSymbol    sql.NullString  `db:"option_symbol"`
	OptionType      string          `db:"option_type"`
	Strike          float64         `db:"strike"`
	Expiration      time.Time       `db:"expiration"`
	Last            sql.NullFloat64 `db:"last"`
	Bid             sql.NullFloat64 `db:"bid"`
	Ask             sql.NullFloat64 `db:"ask"`
	Gamma           sql.NullFloat64 `db:"gamma"`
	OpenInterest    sql.NullInt64   `db:"open_interest"`
	Volume          sql.NullInt64   `db:"volume"`
}

const chainColumns = `updated_at, underlying_price, option_symbol, option_type,
	strike, expiration, last, bid, ask, gamma, open_interest, volume`

// TradingDays lists days with captured data in the inclusive range.
func (s *PostgresSource) TradingDays(ctx context.Context, start, end time.Time) ([]string, error) {
	query := `SELECT DISTINCT to_char(updated_at AT TIME ZONE $4, 'YYYY-MM-DD') AS day
		FROM gex_snapshots
		WHERE symbol = $1 AND updated_at >= $2 AND updated_at < $3
		ORDER BY day`
	var days []string
	// End of range is inclusive: extend to the following midnight.
	if err := s.db.SelectContext(ctx, &days, query, s.symbol, start, end.AddDate(0, 0, 1), s.timezone); err != nil {
		return nil, fmt.Errorf("list trading days: %w", err)
	}
	return days, nil
}

// Snapshots returns one day's snapshots in capture order.
func (s *PostgresSource) Snapshots(ctx context.Context, day string) ([]*models.Snapshot, error) {
	query := fmt.Sprintf(`SELECT %s
		FROM gex_snapshots
		WHERE symbol = $1 AND to_char(updated_at AT TIME ZONE $3, 'YYYY-MM-DD') = $2
		ORDER BY updated_at, strike, option_type`, chainColumns)
	var rows []chainRow
	if err := s.db.SelectContext(ctx, &rows, query, s.symbol, day, s.timezone); err != nil {
		return nil, fmt.Errorf("load snapshots for %s: %w", day, err)
	}
	return s.group(rows), nil
}

// Latest returns the most recent snapshot, or nil when the store is empty.
func (s *PostgresSource) Latest(ctx context.Context) (*models.Snapshot, error) {
	query := fmt.Sprintf(`SELECT %s
		FROM gex_snapshots
		WHERE symbol = $1
		  AND updated_at = (SELECT max(updated_at) FROM gex_snapshots WHERE symbol = $1)
		ORDER BY strike, option_type`, chainColumns)
	var rows []chainRow
	if err := s.db.SelectContext(ctx, &rows, query, s.symbol); err != nil {
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}
	snaps := s.group(rows)
	if len(snaps) == 0 {
		return nil, nil
	}
	return snaps[len(snaps)-1], nil
}

// group folds ordered rows into snapshots keyed by capture timestamp.
func (s *PostgresSource) group(rows []chainRow) []*models.Snapshot {
	var snaps []*models.Snapshot
	var cur *models.Snapshot
	for _, r := range rows {
		if cur == nil || !cur.Timestamp.Equal(r.UpdatedAt) {
			cur = &models.Snapshot{
				Timestamp:       r.UpdatedAt,
				Symbol:          s.symbol,
				UnderlyingPrice: r.UnderlyingPrice,
			}
			snaps = append(snaps, cur)
		}
		q := models.OptionQuote{
			Symbol:       r.OptionSymbol.String,
			Type:         models.LegType(r.OptionType),
			Strike:       r.Strike,
			Expiration:   r.Expiration.Format("2006-01-02"),
			Last:         r.Last.Float64,
			Bid:          r.Bid.Float64,
			Ask:          r.Ask.Float64,
			Gamma:        r.Gamma.Float64,
			OpenInterest: int(r.OpenInterest.Int64),
			Volume:       int(r.Volume.Int64),
		}
		if !q.Type.Valid() {
			continue
		}
		cur.Quotes = append(cur.Quotes, q)
	}
	return snaps
}
