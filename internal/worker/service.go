// Package worker exposes the context assembly engine over HTTP.
package worker

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/thebtf/coachctx/internal/assembler"
	"github.com/thebtf/coachctx/internal/budget"
	"github.com/thebtf/coachctx/internal/coachpatterns"
	"github.com/thebtf/coachctx/internal/config"
	dbgorm "github.com/thebtf/coachctx/internal/db/gorm"
	"github.com/thebtf/coachctx/internal/embedding"
	"github.com/thebtf/coachctx/internal/methodology"
	"github.com/thebtf/coachctx/internal/usercontext"
	"github.com/thebtf/coachctx/internal/vector/pgvector"
	"github.com/thebtf/coachctx/pkg/models"
)

// Service configuration constants
const (
	// DefaultHTTPTimeout bounds a whole HTTP request.
	DefaultHTTPTimeout = 30 * time.Second

	// MaxRequestBodyBytes caps request bodies.
	MaxRequestBodyBytes = 64 << 10
)

// ContextEngine assembles enhanced contexts.
type ContextEngine interface {
	Assemble(ctx context.Context, req assembler.Request) *models.EnhancedContext
	Table() budget.Table
}

// HealthChecker reports database health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) *dbgorm.HealthInfo
}

// Service is the HTTP worker. The router is served immediately; the engine
// becomes available once background initialization finishes.
type Service struct {
	startTime time.Time
	initError error
	engine    ContextEngine
	health    HealthChecker
	config    *config.Config
	router    *chi.Mux
	server    *http.Server
	limiter   *PerClientRateLimiter
	auth      *TokenAuth
	ctx       context.Context
	cancel    context.CancelFunc
	version   string
	closers   []func() error
	wg        sync.WaitGroup
	initMu    sync.RWMutex
	ready     atomic.Bool
}

// NewService creates a service with deferred initialization. Health checks
// answer right away while the database and providers are connected in the
// background.
func NewService(version string, cfg *config.Config) *Service {
	svc := newService(version, cfg)
	go svc.initializeAsync()
	return svc
}

func newService(version string, cfg *config.Config) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	svc := &Service{
		version:   version,
		config:    cfg,
		router:    chi.NewRouter(),
		limiter:   NewPerClientRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		auth:      NewTokenAuth(cfg.APIToken),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
	svc.setupMiddleware()
	svc.setupRoutes()
	return svc
}

// initializeAsync connects storage and providers and builds the engine.
func (s *Service) initializeAsync() {
	cfg := s.config

	store, err := dbgorm.NewStore(dbgorm.Config{
		DSN:                 cfg.DatabaseDSN,
		MaxConns:            cfg.MaxConns,
		LogLevel:            logger.Silent,
		EmbeddingDimensions: cfg.EmbeddingDimensions,
	})
	if err != nil {
		s.setInitError(fmt.Errorf("database: %w", err))
		return
	}
	s.addCloser(store.Close)

	searcher, err := pgvector.NewClient(store.GetDB())
	if err != nil {
		s.setInitError(fmt.Errorf("vector search: %w", err))
		return
	}

	var embedder embedding.Embedder = embedding.NewClientFromConfig(cfg)
	if cfg.RedisURL != "" {
		cache := embedding.NewRedisCache(cfg.RedisURL)
		s.addCloser(cache.Close)
		embedder = embedding.NewCachedEmbedder(embedder, cache, time.Duration(cfg.EmbeddingCacheTTLSec)*time.Second)
	}

	athletes := dbgorm.NewAthleteStore(store)
	engine, err := assembler.New(
		usercontext.New(athletes, usercontext.WithWindowDays(cfg.ActivityWindowDays)),
		coachpatterns.New(dbgorm.NewCoachStore(store)),
		methodology.New(embedder, searcher, cfg.SimilarityThreshold),
		athletes,
		assembler.WithBranchTimeout(time.Duration(cfg.BranchTimeoutMS)*time.Millisecond),
		assembler.WithDefaultBudget(cfg.DefaultTotalBudget),
	)
	if err != nil {
		s.setInitError(fmt.Errorf("assembler: %w", err))
		return
	}

	s.initMu.Lock()
	s.engine = engine
	s.health = store
	s.initMu.Unlock()
	s.ready.Store(true)

	log.Info().
		Str("embedding_model", embedder.ModelName()).
		Bool("embedding_cache", cfg.RedisURL != "").
		Msg("Worker initialized")
}

func (s *Service) addCloser(fn func() error) {
	s.initMu.Lock()
	s.closers = append(s.closers, fn)
	s.initMu.Unlock()
}

func (s *Service) setInitError(err error) {
	log.Error().Err(err).Msg("Worker initialization failed")
	s.initMu.Lock()
	s.initError = err
	s.initMu.Unlock()
}

// GetInitError returns the initialization error, if any.
func (s *Service) GetInitError() error {
	s.initMu.RLock()
	defer s.initMu.RUnlock()
	return s.initError
}

func (s *Service) getEngine() ContextEngine {
	s.initMu.RLock()
	defer s.initMu.RUnlock()
	return s.engine
}

func (s *Service) getHealth() HealthChecker {
	s.initMu.RLock()
	defer s.initMu.RUnlock()
	return s.health
}

// setupMiddleware configures HTTP middleware.
func (s *Service) setupMiddleware() {
	s.router.Use(RequestID)
	s.router.Use(RequestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(DefaultHTTPTimeout))
	s.router.Use(middleware.RealIP)
	s.router.Use(SecurityHeaders)
	s.router.Use(MaxBodySize(MaxRequestBodyBytes))
}

// setupRoutes configures HTTP routes.
func (s *Service) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/ready", s.handleReady)

	s.router.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Use(PerClientRateLimitMiddleware(s.limiter))
		r.Use(RequireJSONContentType)

		r.Post("/api/classify", s.handleClassify)
		r.Get("/api/weights", s.handleWeights)
		r.Get("/api/stats", s.handleStats)

		r.Group(func(r chi.Router) {
			r.Use(s.requireReady)
			r.Post("/api/context", s.handleContext)
		})
	})
}

// Handler returns the HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Start starts serving HTTP in the background.
func (s *Service) Start() error {
	addr := net.JoinHostPort(s.config.WorkerHost, strconv.Itoa(s.config.WorkerPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	log.Info().Str("addr", ln.Addr().String()).Str("version", s.version).
		Msg("Worker HTTP server started (initialization in progress)")
	return nil
}

// Shutdown stops the HTTP server and releases connections.
func (s *Service) Shutdown(ctx context.Context) error {
	var shutdownErr error
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
			shutdownErr = err
		}
	}
	s.cancel()
	s.wg.Wait()

	s.initMu.Lock()
	closers := s.closers
	s.closers = nil
	s.initMu.Unlock()
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			log.Error().Err(err).Msg("Close error")
		}
	}

	log.Info().Msg("Worker service shutdown complete")
	return shutdownErr
}
