// Package config provides configuration management for the trading bot.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	// defaultProfitTargetPct is used when strategy.exit.profit_target_pct is unset
	defaultProfitTargetPct = 25.0
	// defaultStopLossPct is used when strategy.exit.stop_loss_pct is unset
	defaultStopLossPct = 40.0
	// defaultEODLossPct is used when strategy.exit.eod_loss_pct is unset
	defaultEODLossPct = 10.0
	// defaultEODCutoffHour is the local market hour after which losing legs are cut
	defaultEODCutoffHour = 15
	// defaultMaxLegsPerType caps concurrent legs per option side
	defaultMaxLegsPerType = 2
	// defaultMaxDTE keeps the bot on same-day and next-day expirations
	defaultMaxDTE = 1
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Database    DatabaseConfig    `yaml:"database"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Storage     StorageConfig     `yaml:"storage"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BrokerConfig defines broker API settings.
type BrokerConfig struct {
	Provider    string `yaml:"provider"`
	APIKey      string `yaml:"api_key"`
	APIEndpoint string `yaml:"api_endpoint"`
	AccountID   string `yaml:"account_id"`
}

// DatabaseConfig points at the GEX snapshot store. When the DSN is empty the
// live bot builds snapshots from the broker's option chain instead.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// StrategyConfig defines trading strategy parameters. MaxLegsPerType
// and MaxDTE treat zero as "use the default", not as a literal zero.
type StrategyConfig struct {
	Symbol         string     `yaml:"symbol"`
	EntryPolicy    string     `yaml:"entry_policy"` // directional | hedged
	Contracts      int        `yaml:"contracts"`
	MaxLegsPerType int        `yaml:"max_legs_per_type"`
	MaxDTE         int        `yaml:"max_dte"`
	Exit           ExitConfig `yaml:"exit"`
}

// ExitConfig defines exit criteria for closing legs. Percentages are of
// entry premium. Zero or omitted numeric fields take the package
// defaults; none of them has a meaningful zero setting.
type ExitConfig struct {
	ProfitTargetPct  float64 `yaml:"profit_target_pct"`
	StopLossPct      float64 `yaml:"stop_loss_pct"`
	EODCutoffHour    int     `yaml:"eod_cutoff_hour"`
	EODLossPct       float64 `yaml:"eod_loss_pct"`
	BlockSameDayExit *bool   `yaml:"block_same_day_exit"` // PDT guard, default true
}

// ScheduleConfig defines trading schedule and market hours.
type ScheduleConfig struct {
	MarketCheckInterval string `yaml:"market_check_interval"`
	Timezone            string `yaml:"timezone"`      // e.g., "America/New_York"
	TradingStart        string `yaml:"trading_start"` // "HH:MM"
	TradingEnd          string `yaml:"trading_end"`   // "HH:MM"
}

// StorageConfig defines storage settings for leg state.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig defines the optional status dashboard.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	AuthToken string `yaml:"auth_token"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	// Environment validation
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	// Broker validation
	if c.Broker.APIKey == "" {
		return fmt.Errorf("broker.api_key is required")
	}
	if c.Broker.AccountID == "" {
		return fmt.Errorf("broker.account_id is required")
	}

	// Strategy validation
	if c.Strategy.Symbol == "" {
		return fmt.Errorf("strategy.symbol is required")
	}
	if c.Strategy.EntryPolicy != "directional" && c.Strategy.EntryPolicy != "hedged" {
		return fmt.Errorf("strategy.entry_policy must be 'directional' or 'hedged'")
	}
	if c.Strategy.Contracts <= 0 {
		return fmt.Errorf("strategy.contracts must be > 0")
	}
	if c.Strategy.MaxLegsPerType < 0 {
		return fmt.Errorf("strategy.max_legs_per_type must be >= 0")
	}
	if c.Strategy.MaxDTE < 0 {
		return fmt.Errorf("strategy.max_dte must be >= 0")
	}

	c.normalizeExitConfig()

	if c.Strategy.Exit.ProfitTargetPct <= 0 {
		return fmt.Errorf("strategy.exit.profit_target_pct must be > 0")
	}
	if c.Strategy.Exit.StopLossPct <= 0 {
		return fmt.Errorf("strategy.exit.stop_loss_pct must be > 0")
	}
	if c.Strategy.Exit.EODLossPct <= 0 {
		return fmt.Errorf("strategy.exit.eod_loss_pct must be > 0")
	}
	if c.Strategy.Exit.EODLossPct >= c.Strategy.Exit.StopLossPct {
		return fmt.Errorf("strategy.exit.eod_loss_pct (%.2f) must be < strategy.exit.stop_loss_pct (%.2f)",
			c.Strategy.Exit.EODLossPct, c.Strategy.Exit.StopLossPct)
	}
	if c.Strategy.Exit.EODCutoffHour < 0 || c.Strategy.Exit.EODCutoffHour > 23 {
		return fmt.Errorf("strategy.exit.eod_cutoff_hour must be between 0 and 23")
	}

	// Storage validation
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	// Dashboard validation
	if c.Dashboard.Enabled && c.Dashboard.Listen == "" {
		return fmt.Errorf("dashboard.listen is required when dashboard.enabled")
	}

	// Schedule validation
	if _, err := time.ParseDuration(c.Schedule.MarketCheckInterval); err != nil {
		return fmt.Errorf("schedule.market_check_interval invalid: %w", err)
	}
	loc := c.Location()
	s, err1 := time.ParseInLocation("15:04", c.Schedule.TradingStart, loc)
	e, err2 := time.ParseInLocation("15:04", c.Schedule.TradingEnd, loc)
	if err1 != nil || err2 != nil || (s.Hour() > e.Hour() || (s.Hour() == e.Hour() && s.Minute() >= e.Minute())) {
		return fmt.Errorf("schedule trading window invalid (start/end parse/order)")
	}

	return nil
}

// IsPaperTrading returns true if the bot is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// Location resolves the configured market timezone, falling back to a
// DST-agnostic Eastern zone on minimal containers.
func (c *Config) Location() *time.Location {
	tz := c.Schedule.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		if fallbackLoc, err2 := time.LoadLocation("America/New_York"); err2 == nil {
			return fallbackLoc
		}
		return time.FixedZone("ET", -5*60*60)
	}
	return loc
}

// GetCheckInterval returns the configured market check interval duration.
func (c *Config) GetCheckInterval() time.Duration {
	d, err := time.ParseDuration(c.Schedule.MarketCheckInterval)
	if err != nil {
		return 5 * time.Minute // default
	}
	return d
}

// IsWithinTradingHours checks if the given time falls within configured trading hours.
func (c *Config) IsWithinTradingHours(now time.Time) bool {
	loc := c.Location()
	today := now.In(loc)

	// Only allow Monday–Friday trading
	if today.Weekday() == time.Saturday || today.Weekday() == time.Sunday {
		return false
	}

	startClock, err1 := time.ParseInLocation("15:04", c.Schedule.TradingStart, loc)
	endClock, err2 := time.ParseInLocation("15:04", c.Schedule.TradingEnd, loc)
	if err1 != nil || err2 != nil {
		// Safe defaults if misconfigured
		startClock = time.Date(0, 1, 1, 9, 30, 0, 0, loc)
		endClock = time.Date(0, 1, 1, 16, 0, 0, 0, loc)
	}
	start := time.Date(today.Year(), today.Month(), today.Day(),
		startClock.Hour(), startClock.Minute(), 0, 0, loc)
	end := time.Date(today.Year(), today.Month(), today.Day(),
		endClock.Hour(), endClock.Minute(), 0, 0, loc)

	// Inclusive start, exclusive end
	return !today.Before(start) && today.Before(end)
}

// BlockSameDayExit reports whether the same-day exit guard is on. Unset
// defaults to true.
func (c *Config) BlockSameDayExit() bool {
	if c.Strategy.Exit.BlockSameDayExit == nil {
		return true
	}
	return *c.Strategy.Exit.BlockSameDayExit
}

// normalizeExitConfig replaces zero-valued strategy settings with the
// package defaults. Zero is reserved for "unset" across these fields,
// matching the engine's own Config defaulting.
func (c *Config) normalizeExitConfig() {
	if c.Strategy.Exit.ProfitTargetPct == 0 {
		c.Strategy.Exit.ProfitTargetPct = defaultProfitTargetPct
	}
	if c.Strategy.Exit.StopLossPct == 0 {
		c.Strategy.Exit.StopLossPct = defaultStopLossPct
	}
	if c.Strategy.Exit.EODLossPct == 0 {
		c.Strategy.Exit.EODLossPct = defaultEODLossPct
	}
	if c.Strategy.Exit.EODCutoffHour == 0 {
		c.Strategy.Exit.EODCutoffHour = defaultEODCutoffHour
	}
	if c.Strategy.MaxLegsPerType == 0 {
		c.Strategy.MaxLegsPerType = defaultMaxLegsPerType
	}
	if c.Strategy.MaxDTE == 0 {
		c.Strategy.MaxDTE = defaultMaxDTE
	}
}
