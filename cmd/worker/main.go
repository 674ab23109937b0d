package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/promo-pricing/internal/audit"
	"github.com/noah-isme/promo-pricing/internal/config"
	"github.com/noah-isme/promo-pricing/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	if cfg.RedisURL == "" || cfg.DatabaseURL == "" {
		logger.Fatal().Msg("worker requires REDIS_URL and DATABASE_URL")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := audit.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("migrate database")
	}
	dbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	pool, err := audit.NewPool(dbCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	processor := audit.Processor{
		Store:   audit.NewStore(pool),
		Logger:  logger,
		Metrics: obs.NewQuoteMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "pricing"), nil),
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{cfg.AuditQueue: 1},
		Logger:      asynqLogger{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task_type", task.Type()).Msg("task failed")
		}),
		ShutdownTimeout: 10 * time.Second,
	})
	if err := srv.Start(audit.NewServeMux(processor)); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	logger.Info().Str("queue", cfg.AuditQueue).Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")

	if addr := envOrDefault("WORKER_METRICS_ADDR", ""); addr != "" {
		metricsSrv := &http.Server{Addr: addr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		defer func() { _ = metricsSrv.Close() }()
	}

	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

// asynqLogger adapts zerolog to asynq.Logger.
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug().Msg(joinArgs(args)) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info().Msg(joinArgs(args)) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn().Msg(joinArgs(args)) }
func (l asynqLogger) Error(args ...any) { l.logger.Error().Msg(joinArgs(args)) }
func (l asynqLogger) Fatal(args ...any) { l.logger.Fatal().Msg(joinArgs(args)) }

func joinArgs(args []any) string {
	return strings.TrimSpace(fmt.Sprint(args...))
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
