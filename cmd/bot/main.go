package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dmelton/grokswing/internal/advisor"
	"github.com/dmelton/grokswing/internal/broker"
	"github.com/dmelton/grokswing/internal/config"
	"github.com/dmelton/grokswing/internal/dashboard"
	"github.com/dmelton/grokswing/internal/executor"
	"github.com/dmelton/grokswing/internal/journal"
)

// shutdownGrace bounds how long in-flight work may run after a stop signal.
const shutdownGrace = 10 * time.Second

// Bot wires the trading components together and drives the cycle loop.
type Bot struct {
	config  *config.Config
	broker  broker.Broker
	advisor *advisor.Client
	guard   *executor.Guard
	journal *journal.Journal
	logger  *log.Logger
}

func main() {
	var configPath string
	var port int
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.IntVar(&port, "port", 0, "Dashboard port (overrides config)")
	flag.Parse()

	// Subcommand token: "bot-only" runs the loop without the dashboard.
	mode := "web"
	if args := flag.Args(); len(args) > 0 {
		mode = args[0]
	}
	if mode != "web" && mode != "bot-only" {
		log.Fatalf("Unknown mode %q: must be 'web' or 'bot-only'", mode)
	}

	// Secrets come from the environment; a .env file is optional.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if port > 0 {
		cfg.Dashboard.Port = port
	}
	if cfg.Dashboard.Port == 0 {
		cfg.Dashboard.Port = 8000
	}

	logger := log.New(os.Stdout, "[BOT] ", log.LstdFlags)
	logger.Printf("Starting grokswing in %s mode", cfg.Environment.Mode)
	if cfg.IsPaperTrading() {
		logger.Println("PAPER TRADING MODE - No real money at risk")
	} else {
		logger.Println("LIVE TRADING MODE - Real money at risk!")
		logger.Println("Waiting 10 seconds to confirm...")
		time.Sleep(10 * time.Second)
	}

	bot, err := newBot(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize bot: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bot.Run(gctx)
	})

	if mode == "web" {
		dashLogger := logrus.New()
		if lvl, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
			dashLogger.SetLevel(lvl)
		}
		server := dashboard.NewServer(dashboard.Config{
			Port:      cfg.Dashboard.Port,
			AuthToken: cfg.Dashboard.AuthToken,
		}, bot, bot.journal, bot.broker, dashLogger)

		g.Go(func() error {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("dashboard server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Bot error: %v", err)
	}
	logger.Println("Bot stopped successfully")
}

func newBot(cfg *config.Config, logger *log.Logger) (*Bot, error) {
	api := broker.NewAlpacaAPI(cfg.Broker.APIKey, cfg.Broker.APISecret, cfg.IsPaperTrading()).
		WithBaseURLs(cfg.Broker.BaseURL, cfg.Broker.DataURL).
		WithTimeout(cfg.GetBrokerTimeout())
	b := broker.NewCircuitBreakerBroker(api)

	advClient := advisor.NewClient(advisor.Config{
		APIKey:        cfg.Advisor.APIKey,
		BaseURL:       cfg.Advisor.BaseURL,
		Model:         cfg.Advisor.Model,
		MaxAttempts:   cfg.GetAdvisorMaxAttempts(),
		Timeout:       cfg.GetAdvisorTimeout(),
		SearchEnabled: cfg.Advisor.SearchEnabled,
	}, logger)

	jnl, err := journal.Open(cfg.GetJournalPath())
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	return &Bot{
		config:  cfg,
		broker:  b,
		advisor: advClient,
		guard:   executor.NewGuard(b, logger, cfg.GetBrokerTimeout()),
		journal: jnl,
		logger:  logger,
	}, nil
}

// Run verifies the broker connection and drives the cycle loop until the
// context is canceled. No new cycle begins after cancellation is observed.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Println("Verifying broker connection...")
	connCtx, cancel := context.WithTimeout(ctx, b.config.GetBrokerTimeout())
	account, err := b.broker.GetAccount(connCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	b.logger.Printf("Connected to broker. Account value: $%.2f, buying power: $%.2f",
		float64(account.PortfolioValue), float64(account.BuyingPower))

	cycle := NewTradingCycle(b)

	ticker := time.NewTicker(b.config.GetCycleInterval())
	defer ticker.Stop()

	// Run immediately on start
	cycle.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			b.logger.Println("Stop signal observed, not starting another cycle")
			return nil
		case <-ticker.C:
			cycle.Run(ctx)
		}
	}
}

// Status implements dashboard.StatusProvider.
func (b *Bot) Status(ctx context.Context) (dashboard.Status, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.config.GetBrokerTimeout())
	defer cancel()

	status := dashboard.Status{
		Mode:          b.config.Environment.Mode,
		LastCycle:     b.journal.LastCycle(),
		PendingErrors: b.advisor.Feedback().Drain(),
		Timestamp:     time.Now(),
	}

	account, err := b.broker.GetAccount(callCtx)
	if err != nil {
		return status, fmt.Errorf("fetching account: %w", err)
	}
	status.AccountValue = float64(account.PortfolioValue)
	status.BuyingPower = float64(account.BuyingPower)

	if positions, err := b.broker.GetPositions(callCtx); err == nil {
		status.PositionCount = len(positions)
	}
	if orders, err := b.broker.GetOpenOrders(callCtx); err == nil {
		status.OpenOrderCount = len(orders)
	}
	if clock, err := b.broker.GetClock(callCtx); err == nil {
		status.MarketOpen = clock.IsOpen
	}
	return status, nil
}
