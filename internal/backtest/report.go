package backtest

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kwhitaker/zerogex/internal/models"
)

// TypeStats breaks results down per option side.
type TypeStats struct {
	Closed   int     `json:"closed"`
	Priced   int     `json:"priced"`
	Wins     int     `json:"wins"`
	TotalPnL float64 `json:"total_pnl"`
}

// Report aggregates a run's closed legs. Only priced closures contribute to
// the win/loss statistics; unpriced closures (no-data overnights,
// end-of-run) are counted but excluded from P&L math.
type Report struct {
	TotalClosed     int                          `json:"total_closed"`
	PricedClosed    int                          `json:"priced_closed"`
	Wins            int                          `json:"wins"`
	Losses          int                          `json:"losses"`
	WinRate         float64                      `json:"win_rate"` // percent
	TotalPnL        float64                      `json:"total_pnl"`
	AvgWin          float64                      `json:"avg_win"`
	AvgLoss         float64                      `json:"avg_loss"`
	MaxWin          float64                      `json:"max_win"`
	MaxLoss         float64                      `json:"max_loss"`
	ProfitFactor    float64                      `json:"profit_factor"`
	AvgPnLPct       float64                      `json:"avg_pnl_pct"`
	PremiumDeployed float64                      `json:"premium_deployed"`
	MaxDrawdown     float64                      `json:"max_drawdown"`
	ByType          map[models.LegType]TypeStats `json:"by_type"`
	ByReason        map[models.ExitReason]int    `json:"by_reason"`
}

// BuildReport folds closed legs into a report. Drawdown walks the legs in
// exit order, so the input order matters only through exit timestamps.
func BuildReport(closed []models.Leg) *Report {
	r := &Report{
		ByType:   make(map[models.LegType]TypeStats),
		ByReason: make(map[models.ExitReason]int),
	}

	ordered := make([]models.Leg, len(closed))
	copy(ordered, closed)
	sort.SliceStable(ordered, func(i, j int) bool {
		ti, tj := ordered[i].ExitTime, ordered[j].ExitTime
		if ti == nil || tj == nil {
			return tj == nil && ti != nil
		}
		return ti.Before(*tj)
	})

	var grossWin, grossLoss, pctSum, cum, peak float64
	for _, leg := range ordered {
		r.TotalClosed++
		r.ByReason[leg.ExitReason]++
		ts := r.ByType[leg.Type]
		ts.Closed++
		r.PremiumDeployed += leg.EntryPrice * float64(leg.Contracts) * 100

		if leg.PnL == nil {
			r.ByType[leg.Type] = ts
			continue
		}
		pnl := *leg.PnL
		r.PricedClosed++
		ts.Priced++
		ts.TotalPnL += pnl
		r.TotalPnL += pnl
		if leg.PnLPct != nil {
			pctSum += *leg.PnLPct
		}
		if pnl > 0 {
			r.Wins++
			ts.Wins++
			grossWin += pnl
			if pnl > r.MaxWin {
				r.MaxWin = pnl
			}
		} else {
			r.Losses++
			grossLoss += -pnl
			if pnl < r.MaxLoss {
				r.MaxLoss = pnl
			}
		}
		r.ByType[leg.Type] = ts

		cum += pnl
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > r.MaxDrawdown {
			r.MaxDrawdown = dd
		}
	}

	if r.PricedClosed > 0 {
		r.WinRate = float64(r.Wins) / float64(r.PricedClosed) * 100
		r.AvgPnLPct = pctSum / float64(r.PricedClosed)
	}
	if r.Wins > 0 {
		r.AvgWin = grossWin / float64(r.Wins)
	}
	if r.Losses > 0 {
		r.AvgLoss = -grossLoss / float64(r.Losses)
	}
	switch {
	case grossLoss > 0:
		r.ProfitFactor = grossWin / grossLoss
	case grossWin > 0:
		r.ProfitFactor = math.Inf(1)
	}
	return r
}

// String renders the report as the text block the backtest CLI prints.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Closed legs:      %d (%d priced)\n", r.TotalClosed, r.PricedClosed)
	fmt.Fprintf(&b, "Win rate:         %.1f%% (%d W / %d L)\n", r.WinRate, r.Wins, r.Losses)
	fmt.Fprintf(&b, "Total P&L:        %+.2f per share\n", r.TotalPnL)
	fmt.Fprintf(&b, "Avg win / loss:   %+.2f / %+.2f\n", r.AvgWin, r.AvgLoss)
	fmt.Fprintf(&b, "Max win / loss:   %+.2f / %+.2f\n", r.MaxWin, r.MaxLoss)
	if math.IsInf(r.ProfitFactor, 1) {
		b.WriteString("Profit factor:    inf\n")
	} else {
		fmt.Fprintf(&b, "Profit factor:    %.2f\n", r.ProfitFactor)
	}
	fmt.Fprintf(&b, "Avg P&L:          %+.1f%%\n", r.AvgPnLPct)
	fmt.Fprintf(&b, "Premium deployed: %.2f\n", r.PremiumDeployed)
	fmt.Fprintf(&b, "Max drawdown:     %.2f\n", r.MaxDrawdown)
	for _, t := range []models.LegType{models.LegTypeCall, models.LegTypePut} {
		if ts, ok := r.ByType[t]; ok {
			fmt.Fprintf(&b, "  %-5s %d closed, %d wins, %+.2f P&L\n", t+":", ts.Closed, ts.Wins, ts.TotalPnL)
		}
	}
	reasons := make([]string, 0, len(r.ByReason))
	for reason := range r.ByReason {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(&b, "  %-24s %d\n", reason+":", r.ByReason[models.ExitReason(reason)])
	}
	return b.String()
}
