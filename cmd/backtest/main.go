// Command backtest replays historical GEX snapshots through the
// lifecycle engine and prints the aggregated performance report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kwhitaker/zerogex/internal/backtest"
	"github.com/kwhitaker/zerogex/internal/engine"
	"github.com/kwhitaker/zerogex/internal/marketdata"
)

func main() {
	var (
		start     = flag.String("start", "", "First day to replay (YYYY-MM-DD, required)")
		end       = flag.String("end", "", "Last day to replay (YYYY-MM-DD, required)")
		dsn       = flag.String("dsn", os.Getenv("GEX_DATABASE_DSN"), "Postgres DSN of the GEX snapshot store")
		symbol    = flag.String("symbol", "SPY", "Underlying symbol")
		policyStr = flag.String("policy", "directional", "Entry policy: directional or hedged")
		maxDTE    = flag.Int("max-dte", 1, "Maximum days to expiration for tradable contracts")
		contracts = flag.Int("contracts", 1, "Contracts per leg")
		timezone  = flag.String("timezone", "America/New_York", "Market timezone for day boundaries")
		synthetic = flag.Bool("synthetic", false, "Replay generated data instead of the snapshot store")
		asJSON    = flag.Bool("json", false, "Print the report as JSON")

		profitTarget = flag.Float64("profit-target", 25, "Profit target as percent of entry premium")
		stopLoss     = flag.Float64("stop-loss", 40, "Stop loss as percent of entry premium")
		maxLegs      = flag.Int("max-legs", 2, "Maximum concurrent legs per option side")
		sameDayHold  = flag.Bool("block-same-day-exit", true, "Hold legs until the day after entry")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[BACKTEST] ", log.LstdFlags)

	startDay, err := time.Parse("2006-01-02", *start)
	if err != nil {
		logger.Fatalf("Invalid -start: %v", err)
	}
	endDay, err := time.Parse("2006-01-02", *end)
	if err != nil {
		logger.Fatalf("Invalid -end: %v", err)
	}
	if endDay.Before(startDay) {
		logger.Fatalf("-end %s is before -start %s", *end, *start)
	}

	loc, err := time.LoadLocation(*timezone)
	if err != nil {
		logger.Fatalf("Invalid -timezone: %v", err)
	}

	policy, err := engine.PolicyByName(*policyStr)
	if err != nil {
		logger.Fatal(err)
	}

	var source marketdata.Source
	switch {
	case *synthetic:
		source = marketdata.NewSyntheticSource(*symbol, loc)
	case *dsn != "":
		pg, err := marketdata.NewPostgresSource(*dsn, *symbol, *timezone)
		if err != nil {
			logger.Fatalf("Failed to open snapshot store: %v", err)
		}
		defer func() {
			if err := pg.Close(); err != nil {
				logger.Printf("Failed to close snapshot store: %v", err)
			}
		}()
		source = pg
	default:
		logger.Fatal("Either -dsn or -synthetic is required")
	}

	eng := engine.New(engine.Config{
		ProfitTargetPct:  *profitTarget,
		StopLossPct:      *stopLoss,
		MaxLegsPerType:   *maxLegs,
		BlockSameDayExit: *sameDayHold,
		Contracts:        *contracts,
		Location:         loc,
	}, policy, backtest.Executor{}, logger)

	driver := backtest.NewDriver(backtest.Config{
		Start:    startDay,
		End:      endDay,
		MaxDTE:   *maxDTE,
		Location: loc,
	}, source, eng, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := driver.Run(ctx)
	if err != nil {
		logger.Fatalf("Backtest failed: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			logger.Fatalf("Failed to encode report: %v", err)
		}
		return
	}
	fmt.Println(report.String())
}
