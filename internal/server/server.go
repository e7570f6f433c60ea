// Package server wires the pagewatch HTTP API: middleware, routes, and the
// process lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/pagewatch/internal/analysis"
	"github.com/mbd888/pagewatch/internal/config"
	"github.com/mbd888/pagewatch/internal/eventlog"
	"github.com/mbd888/pagewatch/internal/events"
	"github.com/mbd888/pagewatch/internal/health"
	"github.com/mbd888/pagewatch/internal/logging"
	"github.com/mbd888/pagewatch/internal/metrics"
	"github.com/mbd888/pagewatch/internal/phishing"
	"github.com/mbd888/pagewatch/internal/ratelimit"
	"github.com/mbd888/pagewatch/internal/realtime"
	"github.com/mbd888/pagewatch/internal/security"
	"github.com/mbd888/pagewatch/internal/traces"
	"github.com/mbd888/pagewatch/internal/validation"
)

const (
	shutdownTimeout = 30 * time.Second
	runtimeInterval = 15 * time.Second
)

// Server owns the event log, the phishing lookup and the HTTP listener.
type Server struct {
	cfg          *config.Config
	version      string
	eventLog     *eventlog.Log
	lookup       phishing.Lookup
	analysis     *analysis.Service
	realtimeHub  *realtime.Hub
	healthChecks *health.Registry
	originPolicy *security.OriginPolicy
	rateLimiter  *ratelimit.Limiter
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger

	stopBackground context.CancelFunc
	stopTracing    func(context.Context) error
	drainDelay     time.Duration

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithEventLog injects the event log, mainly for tests.
func WithEventLog(l *eventlog.Log) Option {
	return func(s *Server) { s.eventLog = l }
}

// WithLookup replaces the HTTP phishing client.
func WithLookup(l phishing.Lookup) Option {
	return func(s *Server) { s.lookup = l }
}

// WithVersion sets the version reported by / and /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New builds a server from cfg. Nothing listens until Run.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		version:    "dev",
		drainDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logging.New(cfg.LogLevel, cfg.LogFormat)
	}
	if s.eventLog == nil {
		s.eventLog = eventlog.New()
	}
	if s.lookup == nil {
		client := phishing.NewClient(cfg.PhishingConfig())
		s.logger.Info("phishing analyzer configured", "endpoint", client.Endpoint())
		s.lookup = client
	}
	s.analysis = analysis.NewService(s.lookup)

	policy, err := cfg.OriginPolicy()
	if err != nil {
		return nil, fmt.Errorf("invalid CORS settings: %w", err)
	}
	s.originPolicy = policy
	if policy.Enabled() {
		origins, pattern := cfg.CORSSettings()
		s.logger.Info("CORS enabled", "origins", origins, "origin_pattern", pattern)
	}

	s.realtimeHub = realtime.NewHub(s.logger, realtime.WithOriginCheck(policy.Allowed))
	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimitRPM,
		BurstSize:         cfg.RateLimitBurst,
		CleanupInterval:   time.Minute,
	})

	s.healthChecks = health.NewRegistry()
	s.registerHealthChecks()

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

func (s *Server) registerHealthChecks() {
	s.healthChecks.Register("eventlog", func(_ context.Context) health.Status {
		eventCount, domainCount := s.eventLog.Len()
		eventCap, domainCap := s.eventLog.Capacity()
		return health.Status{
			Healthy: true,
			Detail:  fmt.Sprintf("events %d/%d, domains %d/%d", eventCount, eventCap, domainCount, domainCap),
		}
	})

	s.healthChecks.Register("phishing", func(_ context.Context) health.Status {
		st := health.Status{Healthy: s.lookup != nil}
		if c, ok := s.lookup.(*phishing.Client); ok {
			st.Detail = c.Endpoint()
		}
		return st
	})
}

// setupMiddleware installs the chain outermost first. CORS runs before the
// rate limiter so rejected preflights never consume tokens.
func (s *Server) setupMiddleware() {
	s.router.Use(
		recoverPanics(),
		security.HeadersMiddleware(),
		security.CORSMiddleware(s.originPolicy),
		validation.RequestSizeMiddleware(validation.MaxRequestSize),
		s.rateLimiter.Middleware(),
		metrics.Middleware(),
		requestContext(s.logger),
		accessLog(),
	)
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.infoHandler)
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})
	s.router.GET("/ws/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.realtimeHub.Stats())
	})

	analysis.NewHandler(s.analysis).RegisterRoutes(s.router)
	eventlog.NewHandler(s.eventLog, s.lookup, s.realtimeHub).RegisterRoutes(s.router)

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Route not found",
		})
	})
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ok, report := s.healthChecks.Report(c.Request.Context())

	resp := HealthResponse{
		Status:    "healthy",
		Version:   s.version,
		Checks:    report.Checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK
	if !ok {
		resp.Status = report.Status
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

func (s *Server) livenessHandler(c *gin.Context) {
	if s.healthy.Load() {
		c.JSON(http.StatusOK, gin.H{"status": "alive"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if s.ready.Load() {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "pagewatch",
		"version":     s.version,
		"event_types": events.Types,
	})
}

// Run serves until ctx is cancelled, SIGINT/SIGTERM arrives, or the listener
// fails, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(ctx)
	s.stopBackground = cancel

	stopTracing, err := traces.Init(bgCtx, s.cfg.OTLPEndpoint, s.version, s.logger)
	if err != nil {
		s.logger.Warn("tracing unavailable", "error", err)
	} else {
		s.stopTracing = stopTracing
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	listenErr := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	go s.realtimeHub.Run(bgCtx)
	go metrics.StartRuntimeCollector(bgCtx, runtimeInterval)
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case err := <-listenErr:
		cancel()
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigs:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}
	return s.Shutdown()
}

// Shutdown fails readiness, waits drainDelay, then stops the listener and
// background work. The in-memory log is discarded.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("shutting down", "drain", s.drainDelay.String())

	if s.stopBackground != nil {
		s.stopBackground()
	}
	time.Sleep(s.drainDelay)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("http shutdown failed", "error", err)
			return err
		}
	}

	s.rateLimiter.Stop()

	if s.stopTracing != nil {
		if err := s.stopTracing(ctx); err != nil {
			s.logger.Error("tracing shutdown failed", "error", err)
		}
	}

	eventCount, domainCount := s.eventLog.Len()
	s.logger.Info("server stopped",
		"events_discarded", eventCount,
		"domains_discarded", domainCount,
	)
	return nil
}

// Router returns the gin engine, for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
