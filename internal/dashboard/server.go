// Package dashboard serves a token-protected JSON view of the bot's state:
// the latest cycle outcome, brokerage positions, executed trades, and the
// trailing execution-error list.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/dmelton/grokswing/internal/broker"
	"github.com/dmelton/grokswing/internal/journal"
	"github.com/dmelton/grokswing/internal/models"
)

// StatusProvider exposes the bot state the dashboard renders. Implemented
// by the trading bot.
type StatusProvider interface {
	Status(ctx context.Context) (Status, error)
}

// Status is the /api/status payload.
type Status struct {
	Mode           string               `json:"mode"`
	AccountValue   float64              `json:"account_value"`
	BuyingPower    float64              `json:"buying_power"`
	PositionCount  int                  `json:"position_count"`
	OpenOrderCount int                  `json:"open_order_count"`
	MarketOpen     bool                 `json:"market_open"`
	LastCycle      *journal.CycleRecord `json:"last_cycle,omitempty"`
	PendingErrors  []models.TradeError  `json:"pending_errors"`
	Timestamp      time.Time            `json:"timestamp"`
}

// Config holds dashboard server settings.
type Config struct {
	Port      int
	AuthToken string
}

// Server is the dashboard HTTP server.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	status    StatusProvider
	journal   *journal.Journal
	broker    broker.Broker
	logger    *logrus.Logger
	port      int
	authToken string
}

// NewServer creates a dashboard server.
func NewServer(cfg Config, status StatusProvider, jnl *journal.Journal, b broker.Broker, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		status:    status,
		journal:   jnl,
		broker:    b,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/", s.handleIndex)
	s.router.Get("/api/status", s.handleStatus)
	s.router.Get("/api/positions", s.handlePositions)
	s.router.Get("/api/history", s.handleHistory)
	s.router.Get("/health", s.handleHealth)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start runs the server until it fails or Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting dashboard server on port %d", s.port)
	return s.server.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.status.Status(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to build status")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, status)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.broker.GetPositions(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to fetch positions")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, positions)
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"cycles": s.journal.Cycles(),
		"trades": s.journal.Trades(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

const indexHTML = `<!DOCTYPE html>
<html>
<head><title>grokswing</title></head>
<body>
<h1>grokswing dashboard</h1>
<ul>
<li><a href="/api/status">status</a></li>
<li><a href="/api/positions">positions</a></li>
<li><a href="/api/history">history</a></li>
</ul>
</body>
</html>
`
