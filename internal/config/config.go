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
	// defaultCycleInterval is used when schedule.cycle_interval is unset.
	defaultCycleInterval = 10 * time.Minute
	// defaultAdvisorTimeout bounds one advisory call; the service may run
	// live data searches, so this is minutes-scale.
	defaultAdvisorTimeout = 3 * time.Minute
	// defaultBrokerTimeout bounds one brokerage call.
	defaultBrokerTimeout = 10 * time.Second
	// defaultMaxAttempts is the advisory retry budget.
	defaultMaxAttempts = 3
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Advisor     AdvisorConfig     `yaml:"advisor"`
	Broker      BrokerConfig      `yaml:"broker"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Risk        RiskConfig        `yaml:"risk"`
	Storage     StorageConfig     `yaml:"storage"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// AdvisorConfig defines advisory-service settings.
type AdvisorConfig struct {
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	Model         string `yaml:"model"`
	Timeout       string `yaml:"timeout"`
	MaxAttempts   int    `yaml:"max_attempts"`
	SearchEnabled bool   `yaml:"search_enabled"`
}

// BrokerConfig defines brokerage API settings. BaseURL and DataURL are
// overrides for testing against a proxy; empty values select the standard
// hosts for the configured mode.
type BrokerConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Timeout   string `yaml:"timeout"`
}

// ScheduleConfig defines the trading schedule and market hours fallback.
type ScheduleConfig struct {
	CycleInterval   string `yaml:"cycle_interval"`
	Timezone        string `yaml:"timezone"`      // e.g., "America/New_York"
	TradingStart    string `yaml:"trading_start"` // "HH:MM"
	TradingEnd      string `yaml:"trading_end"`   // "HH:MM"
	AfterHoursCheck bool   `yaml:"after_hours_check"`
}

// RiskConfig defines position sizing caps. These cap the advisory
// service's sizing; they do not veto its decisions.
type RiskConfig struct {
	MaxPositionPct float64 `yaml:"max_position_pct"`
	MaxPositions   int     `yaml:"max_positions"`
}

// StorageConfig defines where the cycle journal lives.
type StorageConfig struct {
	JournalPath string `yaml:"journal_path"`
}

// DashboardConfig defines the web dashboard settings.
type DashboardConfig struct {
	Port      int    `yaml:"port"`
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

	// Expand environment variables so secrets stay out of the file.
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
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	if c.Advisor.APIKey == "" {
		return fmt.Errorf("advisor.api_key is required")
	}
	if c.Advisor.Timeout != "" {
		if _, err := time.ParseDuration(c.Advisor.Timeout); err != nil {
			return fmt.Errorf("advisor.timeout invalid: %w", err)
		}
	}
	if c.Advisor.MaxAttempts < 0 {
		return fmt.Errorf("advisor.max_attempts must be >= 0")
	}

	if c.Broker.APIKey == "" {
		return fmt.Errorf("broker.api_key is required")
	}
	if c.Broker.APISecret == "" {
		return fmt.Errorf("broker.api_secret is required")
	}
	if c.Broker.Timeout != "" {
		if _, err := time.ParseDuration(c.Broker.Timeout); err != nil {
			return fmt.Errorf("broker.timeout invalid: %w", err)
		}
	}

	if c.Risk.MaxPositionPct < 0 || c.Risk.MaxPositionPct > 1 {
		return fmt.Errorf("risk.max_position_pct must be between 0 and 1")
	}
	if c.Risk.MaxPositions < 0 {
		return fmt.Errorf("risk.max_positions must be >= 0")
	}

	if c.Schedule.CycleInterval != "" {
		if _, err := time.ParseDuration(c.Schedule.CycleInterval); err != nil {
			return fmt.Errorf("schedule.cycle_interval invalid: %w", err)
		}
	}
	tz := c.Schedule.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		// Fallback for minimal containers
		loc = time.FixedZone("ET", -5*60*60)
	}
	if c.Schedule.TradingStart != "" || c.Schedule.TradingEnd != "" {
		s, err1 := time.ParseInLocation("15:04", c.Schedule.TradingStart, loc)
		e, err2 := time.ParseInLocation("15:04", c.Schedule.TradingEnd, loc)
		if err1 != nil || err2 != nil || (s.Hour() > e.Hour() || (s.Hour() == e.Hour() && s.Minute() >= e.Minute())) {
			return fmt.Errorf("schedule trading window invalid (start/end parse/order)")
		}
	}

	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port must be a valid port number")
	}

	return nil
}

// IsPaperTrading returns true if the bot is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// GetCycleInterval returns the configured trading-cycle interval.
func (c *Config) GetCycleInterval() time.Duration {
	d, err := time.ParseDuration(c.Schedule.CycleInterval)
	if err != nil || d <= 0 {
		return defaultCycleInterval
	}
	return d
}

// GetAdvisorTimeout returns the advisory call budget.
func (c *Config) GetAdvisorTimeout() time.Duration {
	d, err := time.ParseDuration(c.Advisor.Timeout)
	if err != nil || d <= 0 {
		return defaultAdvisorTimeout
	}
	return d
}

// GetAdvisorMaxAttempts returns the advisory retry budget.
func (c *Config) GetAdvisorMaxAttempts() int {
	if c.Advisor.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return c.Advisor.MaxAttempts
}

// GetBrokerTimeout returns the brokerage call budget.
func (c *Config) GetBrokerTimeout() time.Duration {
	d, err := time.ParseDuration(c.Broker.Timeout)
	if err != nil || d <= 0 {
		return defaultBrokerTimeout
	}
	return d
}

// GetJournalPath returns the journal file path with a sensible default.
func (c *Config) GetJournalPath() string {
	if c.Storage.JournalPath == "" {
		return "data/journal.json"
	}
	return c.Storage.JournalPath
}

// IsWithinTradingHours checks if the given time falls within the
// configured trading window. Used as a fallback when the market clock
// endpoint is unavailable.
func (c *Config) IsWithinTradingHours(now time.Time) bool {
	tz := c.Schedule.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.FixedZone("ET", -5*60*60)
	}
	today := now.In(loc)

	// Only allow Monday-Friday trading
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
