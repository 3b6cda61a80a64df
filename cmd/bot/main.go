// Command bot runs the live GEX trading loop: poll a snapshot source,
// reconcile broker fills, and let the engine manage leg entries and
// exits. State survives restarts through the JSON leg store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kwhitaker/zerogex/internal/broker"
	"github.com/kwhitaker/zerogex/internal/config"
	"github.com/kwhitaker/zerogex/internal/dashboard"
	"github.com/kwhitaker/zerogex/internal/engine"
	"github.com/kwhitaker/zerogex/internal/ledger"
	"github.com/kwhitaker/zerogex/internal/marketdata"
	"github.com/kwhitaker/zerogex/internal/orders"
	"github.com/kwhitaker/zerogex/internal/storage"
)

// Bot wires the live trading dependencies together for the cycle loop.
type Bot struct {
	config  *config.Config
	broker  broker.Broker
	storage storage.Interface
	ledger  *ledger.Ledger
	engine  *engine.Engine
	orders  *orders.Manager
	source  marketdata.LiveSource
	logger  *log.Logger
	loc     *time.Location
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := log.New(os.Stdout, "[BOT] ", log.LstdFlags)

	logger.Printf("Starting zerogex bot in %s mode", cfg.Environment.Mode)
	if cfg.IsPaperTrading() {
		logger.Println("PAPER TRADING MODE - no real money at risk")
	} else {
		logger.Println("LIVE TRADING MODE - real money at risk!")
		logger.Println("Waiting 10 seconds to confirm...")
		time.Sleep(10 * time.Second)
	}

	bot, err := buildBot(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize bot: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Dashboard.Enabled {
		dashLogger := logrus.New()
		srv := dashboard.NewServer(dashboard.Config{
			Listen:    cfg.Dashboard.Listen,
			AuthToken: cfg.Dashboard.AuthToken,
		}, bot.storage, dashLogger)
		g.Go(func() error {
			if err := srv.Start(); err != nil && ctx.Err() == nil {
				return fmt.Errorf("dashboard: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return bot.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatalf("Bot error: %v", err)
	}
	logger.Println("Bot stopped")
}

func buildBot(cfg *config.Config, logger *log.Logger) (*Bot, error) {
	var api *broker.TradierAPI
	if cfg.Broker.APIEndpoint != "" {
		api = broker.NewTradierAPIWithBaseURL(cfg.Broker.APIKey, cfg.Broker.AccountID, cfg.Broker.APIEndpoint)
	} else {
		api = broker.NewTradierAPI(cfg.Broker.APIKey, cfg.Broker.AccountID, cfg.IsPaperTrading())
	}
	brk := broker.NewCircuitBreakerBroker(api, logger)

	store, err := storage.NewJSONStorage(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open leg store: %w", err)
	}
	state, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load leg state: %w", err)
	}
	led := ledger.FromState(state)
	logger.Printf("Loaded %d active, %d closed legs from %s",
		len(led.Active()), len(led.Closed()), cfg.Storage.Path)

	policy, err := engine.PolicyByName(cfg.Strategy.EntryPolicy)
	if err != nil {
		return nil, err
	}

	loc := cfg.Location()
	eng := engine.New(engine.Config{
		ProfitTargetPct:  cfg.Strategy.Exit.ProfitTargetPct,
		StopLossPct:      cfg.Strategy.Exit.StopLossPct,
		EODCutoffHour:    cfg.Strategy.Exit.EODCutoffHour,
		EODLossPct:       cfg.Strategy.Exit.EODLossPct,
		MaxLegsPerType:   cfg.Strategy.MaxLegsPerType,
		BlockSameDayExit: cfg.BlockSameDayExit(),
		Contracts:        cfg.Strategy.Contracts,
		Location:         loc,
	}, policy, orders.NewLiveExecutor(brk, cfg.Strategy.Symbol, logger), logger)

	var source marketdata.LiveSource
	if cfg.Database.DSN != "" {
		pg, err := marketdata.NewPostgresSource(cfg.Database.DSN, cfg.Strategy.Symbol, cfg.Schedule.Timezone)
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot store: %w", err)
		}
		source = pg
	} else {
		source = marketdata.NewBrokerSource(brk, cfg.Strategy.Symbol, cfg.Strategy.MaxDTE, loc)
	}

	return &Bot{
		config:  cfg,
		broker:  brk,
		storage: store,
		ledger:  led,
		engine:  eng,
		orders:  orders.NewManager(brk, logger),
		source:  source,
		logger:  logger,
		loc:     loc,
	}, nil
}

// Run verifies broker connectivity, reconciles any carried-over orders,
// then drives trading cycles until the context is canceled. The ledger
// is saved after every cycle and once more on shutdown.
func (b *Bot) Run(ctx context.Context) error {
	balance, err := b.broker.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	b.logger.Printf("Connected to broker. Equity $%.2f, option BP $%.2f", balance.TotalEquity, balance.OptionBP)

	cycle := NewTradingCycle(b)
	cycle.ReconcileStartup(ctx)

	ticker := time.NewTicker(b.config.GetCheckInterval())
	defer ticker.Stop()

	cycle.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			b.saveState()
			return nil
		case <-ticker.C:
			cycle.Run(ctx)
		}
	}
}

func (b *Bot) saveState() {
	if err := b.storage.Save(b.ledger.State()); err != nil {
		b.logger.Printf("Failed to save leg state: %v", err)
	}
}
