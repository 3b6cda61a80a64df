// Package dashboard serves a read-only web view over the leg ledger:
// active legs, closed legs, and the aggregate performance report.
package dashboard

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/kwhitaker/zerogex/internal/backtest"
	"github.com/kwhitaker/zerogex/internal/ledger"
	"github.com/kwhitaker/zerogex/internal/models"
	"github.com/kwhitaker/zerogex/internal/storage"
)

//go:embed web/templates/*
var templateFS embed.FS

type Config struct {
	Listen    string
	AuthToken string
}

type Server struct {
	router    *chi.Mux
	server    *http.Server
	storage   storage.Interface
	logger    *logrus.Logger
	listen    string
	authToken string
}

// LegView is the row rendered for one leg, active or closed.
type LegView struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Strike     float64    `json:"strike"`
	Expiration string     `json:"expiration"`
	Contracts  int        `json:"contracts"`
	EntryTime  time.Time  `json:"entry_time"`
	EntryPrice float64    `json:"entry_price"`
	Signal     string     `json:"signal,omitempty"`
	ExitTime   *time.Time `json:"exit_time,omitempty"`
	ExitPrice  *float64   `json:"exit_price,omitempty"`
	ExitReason string     `json:"exit_reason,omitempty"`
	PnL        *float64   `json:"pnl,omitempty"`
	PnLPct     *float64   `json:"pnl_pct,omitempty"`
	Pending    bool       `json:"pending"`
}

// HasPnL reports whether the leg closed with an observable price.
func (v LegView) HasPnL() bool { return v.PnL != nil }

// PnLValue returns the realized P&L, zero when unpriced.
func (v LegView) PnLValue() float64 {
	if v.PnL == nil {
		return 0
	}
	return *v.PnL
}

// ExitPriceValue returns the exit price, zero when unpriced.
func (v LegView) ExitPriceValue() float64 {
	if v.ExitPrice == nil {
		return 0
	}
	return *v.ExitPrice
}

type dashboardData struct {
	Active     []LegView
	Closed     []LegView
	Report     *backtest.Report
	LastUpdate time.Time
}

func NewServer(cfg Config, store storage.Interface, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		router:    chi.NewRouter(),
		storage:   store,
		logger:    logger,
		listen:    cfg.Listen,
		authToken: cfg.AuthToken,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/", s.handleDashboard)
	s.router.Get("/api/legs", s.handleGetLegs)
	s.router.Get("/api/legs/{id}", s.handleGetLeg)
	s.router.Get("/api/report", s.handleGetReport)
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

// Start blocks serving HTTP until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.WithField("listen", s.listen).Info("Starting dashboard server")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) loadLedger() (*ledger.Ledger, error) {
	state, err := s.storage.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	return ledger.FromState(state), nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	tmpl, err := template.ParseFS(templateFS, "web/templates/dashboard.html")
	if err != nil {
		s.logger.WithError(err).Error("Failed to parse dashboard template")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	led, err := s.loadLedger()
	if err != nil {
		s.logger.WithError(err).Error("Failed to load ledger")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	report := backtest.BuildReport(led.Closed())
	data := dashboardData{
		Active:     activeViews(led.Active()),
		Closed:     closedViews(led.Closed()),
		Report:     report,
		LastUpdate: time.Now(),
	}
	if err := tmpl.Execute(w, data); err != nil {
		s.logger.WithError(err).Error("Failed to execute dashboard template")
	}
}

func (s *Server) handleGetLegs(w http.ResponseWriter, _ *http.Request) {
	led, err := s.loadLedger()
	if err != nil {
		s.logger.WithError(err).Error("Failed to load ledger")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	payload := map[string][]LegView{
		"active": activeViews(led.Active()),
		"closed": closedViews(led.Closed()),
	}
	s.writeJSON(w, payload)
}

func (s *Server) handleGetLeg(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	led, err := s.loadLedger()
	if err != nil {
		s.logger.WithError(err).Error("Failed to load ledger")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if leg, ok := led.Get(id); ok {
		s.writeJSON(w, legView(leg))
		return
	}
	for _, leg := range led.Closed() {
		if leg.ID == id {
			s.writeJSON(w, legView(&leg))
			return
		}
	}
	http.Error(w, "Not Found", http.StatusNotFound)
}

func (s *Server) handleGetReport(w http.ResponseWriter, _ *http.Request) {
	led, err := s.loadLedger()
	if err != nil {
		s.logger.WithError(err).Error("Failed to load ledger")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, backtest.BuildReport(led.Closed()))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func activeViews(legs []*models.Leg) []LegView {
	views := make([]LegView, 0, len(legs))
	for _, leg := range legs {
		views = append(views, legView(leg))
	}
	return views
}

func closedViews(legs []models.Leg) []LegView {
	views := make([]LegView, 0, len(legs))
	for i := range legs {
		views = append(views, legView(&legs[i]))
	}
	return views
}

func legView(leg *models.Leg) LegView {
	return LegView{
		ID:         leg.ID,
		Type:       string(leg.Type),
		Strike:     leg.Strike,
		Expiration: leg.Expiration,
		Contracts:  leg.Contracts,
		EntryTime:  leg.EntryTime,
		EntryPrice: leg.EntryPrice,
		Signal:     leg.SignalAtEntry,
		ExitTime:   leg.ExitTime,
		ExitPrice:  leg.ExitPrice,
		ExitReason: string(leg.ExitReason),
		PnL:        leg.PnL,
		PnLPct:     leg.PnLPct,
		Pending:    !leg.EntryFilled() || leg.ExitPending(),
	}
}
