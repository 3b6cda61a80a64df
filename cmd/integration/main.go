// Command integration runs a read-only connectivity check against the
// Tradier sandbox: market clock, balance, underlying quote, expirations,
// and one option chain. It places no orders and writes no state.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kwhitaker/zerogex/internal/broker"
	"github.com/kwhitaker/zerogex/internal/config"
	"github.com/kwhitaker/zerogex/internal/marketdata"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	logger := log.New(os.Stdout, "[SMOKE] ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if !cfg.IsPaperTrading() {
		logger.Fatal("Integration checks must run against the sandbox. Set environment.mode: paper")
	}

	api := broker.NewTradierAPI(cfg.Broker.APIKey, cfg.Broker.AccountID, true)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	symbol := cfg.Strategy.Symbol
	logger.Printf("Checking sandbox connectivity for %s", symbol)

	clock, err := api.GetMarketClock(ctx, true)
	if err != nil {
		logger.Fatalf("Market clock: %v", err)
	}
	logger.Printf("Market clock: state=%s", clock.Clock.State)

	balance, err := api.GetBalance(ctx)
	if err != nil {
		logger.Fatalf("Account balance: %v", err)
	}
	logger.Printf("Option buying power: %.2f", balance.OptionBP)

	quote, err := api.GetQuote(ctx, symbol)
	if err != nil {
		logger.Fatalf("Quote: %v", err)
	}
	logger.Printf("%s last=%.2f bid=%.2f ask=%.2f", symbol, quote.Last, quote.Bid, quote.Ask)

	expirations, err := api.GetExpirations(ctx, symbol)
	if err != nil {
		logger.Fatalf("Expirations: %v", err)
	}
	if len(expirations) == 0 {
		logger.Fatalf("No expirations returned for %s", symbol)
	}
	logger.Printf("Expirations: %d (nearest %s)", len(expirations), expirations[0])

	chain, err := api.GetOptionChain(ctx, symbol, expirations[0])
	if err != nil {
		logger.Fatalf("Option chain: %v", err)
	}
	withGamma := 0
	for _, opt := range chain {
		if opt.Greeks != nil && opt.Greeks.Gamma != 0 {
			withGamma++
		}
	}
	logger.Printf("Chain %s: %d contracts, %d with gamma", expirations[0], len(chain), withGamma)

	source := marketdata.NewBrokerSource(api, symbol, cfg.Strategy.MaxDTE, cfg.Location())
	snap, err := source.Latest(ctx)
	if err != nil {
		logger.Fatalf("Snapshot: %v", err)
	}
	logger.Printf("Snapshot: spot=%.2f quotes=%d", snap.UnderlyingPrice, len(snap.Quotes))

	fmt.Println("All sandbox checks passed")
}
