package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/api"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/config"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/health"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/mapper"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/metrics"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/poolmanager"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/poolstate"
	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/runtime"

	"github.com/hibiken/asynq"
)

// Server wires PoolManager, Mapper and HealthMonitor together behind the
// admin HTTP surface and the asynq worker that offloads their slow
// supervisor I/O, running the HTTP server, asynq worker, health loop and
// metrics server each on its own goroutine under one shutdown path.
type Server struct {
	cfg         *config.Config
	deps        *Dependency
	httpServer  *http.Server
	asynqServer *asynq.Server
	asynqMux    *asynq.ServeMux
	pool        *poolmanager.Manager
	health      *health.Monitor
	logger      *slog.Logger
}

func NewServer(cfg *config.Config, deps *Dependency) *Server {
	logger := deps.Logger

	rt := runtime.NewDockerDriver(deps.Docker, logger)
	store := poolstate.NewStore(filepath.Join(cfg.Pool.Root, "state.json"), logger)

	pool := poolmanager.NewManager(rt, store, cfg.Pool, logger)
	pool.SetAudit(deps.Audit)

	m := mapper.NewMapper(pool, rt, deps.Redis, cfg.Pool, cfg.Mapper, logger)
	m.SetEnqueuer(poolmanager.NewEnqueuer(deps.AsynqClient))

	mon := health.NewMonitor(pool, rt, cfg.Health, logger)
	mon.SetAudit(deps.Audit)

	worker := poolmanager.NewWorker(pool, logger)
	asynqMux := asynq.NewServeMux()
	poolmanager.RegisterHandlers(asynqMux, worker)

	asynqServer := asynq.NewServer(deps.AsynqRedis, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Logger:      newAsynqLogger(logger),
	})

	router := api.NewRouter(m, pool, mon)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		cfg:         cfg,
		deps:        deps,
		httpServer:  httpServer,
		asynqServer: asynqServer,
		asynqMux:    asynqMux,
		pool:        pool,
		health:      mon,
		logger:      logger,
	}
}

func (s *Server) Start(ctx context.Context) error {
	go func() {
		s.logger.Info("starting asynq worker", "concurrency", s.cfg.Worker.Concurrency)
		if err := s.asynqServer.Start(s.asynqMux); err != nil {
			s.logger.Error("asynq worker failed", "error", err)
		}
	}()

	go s.health.Run(ctx)

	go func() {
		if err := metrics.StartMetricsServer(ctx, s.cfg.Metrics.Addr, s.logger); err != nil {
			s.logger.Error("metrics server failed", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting admin API server", "addr", s.cfg.Server.Addr)
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining...")
	case err := <-errCh:
		return err
	}

	return s.Shutdown()
}

func (s *Server) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.asynqServer.Shutdown()

	s.logger.Info("server stopped gracefully")
	return nil
}

type asynqLogger struct {
	l *slog.Logger
}

func newAsynqLogger(l *slog.Logger) *asynqLogger {
	return &asynqLogger{l: l.With("component", "asynq")}
}

func (a *asynqLogger) Debug(args ...any) { a.l.Debug("", "msg", args) }
func (a *asynqLogger) Info(args ...any)  { a.l.Info("", "msg", args) }
func (a *asynqLogger) Warn(args ...any)  { a.l.Warn("", "msg", args) }
func (a *asynqLogger) Error(args ...any) { a.l.Error("", "msg", args) }
func (a *asynqLogger) Fatal(args ...any) { a.l.Error("FATAL", "msg", args) }
