// Package api is the poll-only observability HTTP server (spec.md §6:
// "Read-only snapshot accessors... No push callbacks; external reporters
// poll"). Grounded on the pack's gin+gin-contrib/cors server idiom
// (_examples/koshedutech-binance-trading-app/internal/api/server.go) rather
// than the teacher's own dashboard server, since the teacher's is a
// WebSocket push hub (internal/api/stream.go) and spec.md explicitly rules
// out push/WebSocket surfaces and dashboards (spec.md §1 Non-goals).
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"predictioncore/internal/calibration"
	"predictioncore/internal/config"
	"predictioncore/internal/ledger"
	"predictioncore/internal/risk"
	"predictioncore/internal/store"
	"predictioncore/pkg/types"
)

// ThemeFn maps a market to its thematic exposure bucket, the same contract
// internal/engine's own theme lookup uses — exported here so the API
// doesn't have to special-case "no theme assigned".
type ThemeFn func(types.MarketId) string

// Server exposes portfolio summary, per-strategy calibration metrics, and
// active drift alerts over HTTP. It holds no write path: every handler only
// ever reads from the components it's given.
type Server struct {
	cfg     config.APIConfig
	ledger  *ledger.Ledger
	checker *risk.Checker
	cal     *calibration.Engine
	drift   *store.DriftStore
	theme   ThemeFn

	router *gin.Engine
	http   *http.Server
	logger *slog.Logger
}

// New builds the API server and registers its routes. theme may be nil, in
// which case every position reports into the "" (unassigned) bucket.
func New(cfg config.APIConfig, led *ledger.Ledger, checker *risk.Checker, cal *calibration.Engine, drift *store.DriftStore, theme ThemeFn, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = cfg.AllowedOrigins
	corsCfg.AllowMethods = []string{"GET"}
	router.Use(cors.New(corsCfg))

	if theme == nil {
		theme = func(types.MarketId) string { return "" }
	}

	s := &Server{
		cfg:     cfg,
		ledger:  led,
		checker: checker,
		cal:     cal,
		drift:   drift,
		theme:   theme,
		router:  router,
		logger:  logger.With("component", "api"),
	}
	s.registerRoutes()

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/api/portfolio", s.handlePortfolio)
	s.router.GET("/api/strategies/:id/metrics", s.handleStrategyMetrics)
	s.router.GET("/api/drift", s.handleDriftAlerts)
}

// Start runs the HTTP server; blocks until Stop shuts it down or the
// server fails for a reason other than a graceful close.
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	s.logger.Info("api server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
