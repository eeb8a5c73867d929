// Package server exposes the PII engine over HTTP
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/datacloak/internal/audit"
	"github.com/raaihank/datacloak/internal/config"
	"github.com/raaihank/datacloak/internal/logger"
	"github.com/raaihank/datacloak/internal/metrics"
	"github.com/raaihank/datacloak/internal/privacy"
	"github.com/raaihank/datacloak/internal/stats"
	"github.com/raaihank/datacloak/internal/web"
	"github.com/raaihank/datacloak/internal/websocket"
)

// Deps are the optional collaborators of a Server
type Deps struct {
	Stats   stats.Recorder   // nil disables /v1/stats
	Audit   audit.Sink       // nil disables /v1/audit
	Metrics *metrics.Metrics // nil creates a private instance
}

// Server represents the HTTP masking service
type Server struct {
	config atomic.Pointer[config.Config]
	engine atomic.Pointer[privacy.Engine]

	root    *logger.Logger
	logger  *logger.Logger
	router  *mux.Router
	server  *http.Server
	wsHub   *websocket.Hub
	limiter *rateLimiter
	stats   stats.Recorder
	audit   audit.Sink
	metrics *metrics.Metrics

	startedAt time.Time
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger, deps Deps) (*Server, error) {
	engine, err := buildEngine(cfg, log)
	if err != nil {
		return nil, err
	}

	if deps.Metrics == nil {
		deps.Metrics = metrics.New("datacloak")
	}

	s := &Server{
		root:      log,
		logger:    log.WithComponent("server"),
		router:    mux.NewRouter(),
		stats:     deps.Stats,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		startedAt: time.Now(),
	}
	s.config.Store(cfg)
	s.engine.Store(engine)

	if cfg.RateLimit.Enabled {
		s.limiter = newRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	if cfg.WebSocket.Enabled {
		s.wsHub = websocket.NewHub(&websocket.HubConfig{
			BroadcastDetections: cfg.WebSocket.BroadcastDetections,
			BroadcastSystem:     cfg.WebSocket.BroadcastSystem,
			Username:            cfg.WebSocket.Username,
			Password:            cfg.WebSocket.Password,
			OnClientCount:       func(n int) { s.metrics.WSClients.Set(float64(n)) },
		}, log.WithComponent("websocket").Logger)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

func buildEngine(cfg *config.Config, log *logger.Logger) (*privacy.Engine, error) {
	engineConfig, err := cfg.PrivacyEngineConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid engine configuration: %w", err)
	}

	engine, err := privacy.New(engineConfig, log.WithComponent("privacy"))
	if err != nil {
		return nil, fmt.Errorf("failed to create PII engine: %w", err)
	}
	return engine, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	cfg := s.config.Load()

	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")
	s.router.HandleFunc("/version", s.handleVersion).Methods("GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	if s.wsHub != nil {
		s.router.HandleFunc(cfg.WebSocket.Path, s.wsHub.HandleWebSocket).Methods("GET")
		s.router.HandleFunc("/", web.ServeDashboard).Methods("GET")
		s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods("GET")
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	if s.limiter != nil {
		api.Use(s.rateLimitMiddleware)
	}
	api.HandleFunc("/detect", s.handleDetect).Methods("POST")
	api.HandleFunc("/mask", s.handleMask).Methods("POST")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/audit", s.handleAudit).Methods("GET")
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Engine returns the engine currently serving requests
func (s *Server) Engine() *privacy.Engine {
	return s.engine.Load()
}

// ApplyConfig rebuilds the engine from a new configuration and swaps it in.
// Requests in flight finish on the engine they started with. Listener,
// rate limiting and store settings keep their startup values.
func (s *Server) ApplyConfig(cfg *config.Config) error {
	engine, err := buildEngine(cfg, s.root)
	if err != nil {
		s.metrics.EngineReloads.WithLabelValues("error").Inc()
		s.logger.Error("Failed to reload engine", zap.Error(err))
		return err
	}

	s.engine.Store(engine)
	s.config.Store(cfg)
	s.metrics.EngineReloads.WithLabelValues("ok").Inc()

	s.logger.Info("Engine reloaded",
		zap.String("email_validation", cfg.Engine.EmailValidation),
		zap.String("credit_card_validation", cfg.Engine.CreditCardValidation),
		zap.Int("max_text_length", cfg.Engine.MaxTextLength),
	)

	if s.wsHub != nil {
		s.wsHub.BroadcastSystemStatus("engine_reloaded", "engine configuration updated")
	}
	return nil
}

// RunBackground starts the websocket hub and limiter cleanup until ctx is done
func (s *Server) RunBackground(ctx context.Context) {
	if s.wsHub != nil {
		go s.wsHub.Run(ctx)
	}
	if s.limiter != nil {
		go s.limiter.cleanupLoop(ctx, 10*time.Minute)
	}
}

// Start starts background routines and the HTTP listener
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config.Load()
	s.logger.Info("Starting DataCloak server",
		zap.Int("port", cfg.Server.Port),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		zap.Bool("stats", s.stats != nil),
		zap.Bool("audit", s.audit != nil),
		zap.Bool("websocket", s.wsHub != nil),
	)

	s.RunBackground(ctx)

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping DataCloak server")
	return s.server.Shutdown(ctx)
}

// GetWebSocketHub returns the WebSocket hub, nil when disabled
func (s *Server) GetWebSocketHub() *websocket.Hub {
	return s.wsHub
}
