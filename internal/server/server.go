// Package server wires a token bucket, its snapshot store and metrics into
// an HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vnykmshr/tokova/internal/config"
	"github.com/vnykmshr/tokova/pkg/metrics"
	"github.com/vnykmshr/tokova/pkg/middleware"
	"github.com/vnykmshr/tokova/pkg/persistence"
	"github.com/vnykmshr/tokova/pkg/ratelimit/bucket"
)

// Server is the tokova HTTP service.
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	limiter  bucket.Limiter
	registry *prometheus.Registry
	redis    redis.UniversalClient
	router   *mux.Router
}

// New builds the store, limiter and routes described by cfg.
func New(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}

	store, err := s.newStore()
	if err != nil {
		return nil, err
	}

	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	lc := cfg.Limiter
	s.limiter, err = bucket.NewWithConfigAndMetrics(bucket.Config{
		Limit:             lc.Limit,
		Interval:          lc.Interval,
		TokensPerInterval: lc.TokensPerInterval,
		RefillCron:        lc.RefillCron,
		IsPersistent:      cfg.Persistence.Revive,
		ReviveFromLatest:  cfg.Persistence.ReviveFromLatest,
		SnapshotKey:       cfg.Persistence.SnapshotKey,
		Store:             store,
		PersistTimeout:    cfg.Persistence.Timeout,
		Logger:            logger,
		OnRefillError: func(err error) {
			logger.Warn("refill tick failed", zap.Error(err))
		},
	}, lc.Name, metrics.Config{
		Enabled:   cfg.Metrics.Enabled,
		Registry:  s.registry,
		Namespace: cfg.Metrics.Namespace,
	})
	if err != nil {
		s.closeRedis()
		return nil, fmt.Errorf("failed to create limiter: %w", err)
	}

	s.router = s.routes()
	return s, nil
}

func (s *Server) newStore() (persistence.Store, error) {
	pc := s.cfg.Persistence
	switch pc.Backend {
	case config.BackendMemory:
		return persistence.NewMemoryStore(), nil

	case config.BackendFile:
		return persistence.NewFileStore(pc.Dir), nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     pc.Redis.Addr,
			Password: pc.Redis.Password,
			DB:       pc.Redis.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout())
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", pc.Redis.Addr, err)
		}

		s.redis = client
		return persistence.NewRedisStore(client, persistence.RedisConfig{
			Prefix:  pc.Redis.Prefix,
			TTL:     pc.Redis.TTL,
			Timeout: s.persistTimeout(),
		}), nil

	default:
		return nil, nil
	}
}

func (s *Server) persistTimeout() time.Duration {
	if s.cfg.Persistence.Timeout > 0 {
		return s.cfg.Persistence.Timeout
	}
	return bucket.DefaultPersistTimeout
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	limit := middleware.RateLimit(s.limiter,
		middleware.WithCost(s.cfg.Limiter.Cost),
		middleware.WithRetryAfter(s.cfg.Limiter.Interval),
		middleware.WithLogger(s.logger),
	)
	router.Handle("/", limit(http.HandlerFunc(handleRoot))).Methods(http.MethodGet)

	router.Handle("/status", middleware.StatusHandler(s.limiter)).Methods(http.MethodGet)
	if s.cfg.Server.AdminEnabled {
		router.Handle("/clear", middleware.ClearHandler(s.limiter, s.logger)).Methods(http.MethodGet, http.MethodPost)
	}
	if s.cfg.Metrics.Enabled {
		router.Handle(s.cfg.Metrics.Path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return router
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Hello from Tokova!\n"))
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Limiter returns the bucket guarding the service.
func (s *Server) Limiter() bucket.Limiter {
	return s.limiter
}

// Run serves HTTP until ctx is done, then shuts down gracefully and releases
// the limiter and store.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	srv := &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.cfg.Server.ShutdownTimeout > 0 {
		return s.cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}

// Close stops the limiter and closes the Redis client, if any.
func (s *Server) Close() {
	if s.limiter != nil {
		_ = s.limiter.Close()
	}
	s.closeRedis()
}

func (s *Server) closeRedis() {
	if s.redis != nil {
		_ = s.redis.Close()
		s.redis = nil
	}
}
