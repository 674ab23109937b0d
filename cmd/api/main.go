package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/promo-pricing/internal/audit"
	"github.com/noah-isme/promo-pricing/internal/config"
	"github.com/noah-isme/promo-pricing/internal/health"
	"github.com/noah-isme/promo-pricing/internal/obs"
	"github.com/noah-isme/promo-pricing/internal/pricing"
	"github.com/noah-isme/promo-pricing/internal/quote"
	"github.com/noah-isme/promo-pricing/internal/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "pricing")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "promo-pricing-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	engine, err := pricing.NewEngine(cfg.Pricing)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise pricing engine")
	}
	logger.Info().Str("rules_version", engine.Fingerprint()).Msg("pricing rules loaded")

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient = mustInitRedis(ctx, cfg, logger, metricsEnabled)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
	}

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		if envBool("DB_AUTO_MIGRATE", true) {
			if err := audit.Migrate(cfg.DatabaseURL); err != nil {
				logger.Fatal().Err(err).Msg("migrate database")
			}
		}
		dbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pool, err = audit.NewPool(dbCtx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("connect database")
		}
		defer pool.Close()
	}

	var quoteMetrics *obs.QuoteMetrics
	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		quoteMetrics = obs.NewQuoteMetrics(metricsNamespace, nil)
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", "")), nil)
	}

	quoteService := &quote.Service{
		Engine:           engine,
		Metrics:          quoteMetrics,
		Logger:           logger.With().Str("component", "quote").Logger(),
		Currency:         cfg.CurrencyCode,
		BatchMax:         cfg.QuoteBatchMax,
		BatchConcurrency: cfg.QuoteBatchConcurrency,
	}
	if redisClient != nil {
		quoteService.Cache = quote.NewCache(redisClient, cfg.QuoteCacheTTL)
	}
	if cfg.AuditEnabled {
		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse asynq redis url")
		}
		taskClient := asynq.NewClient(redisOpt)
		defer func() {
			if err := taskClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close task client")
			}
		}()
		quoteService.Audit = audit.Enqueuer{
			Client:   taskClient,
			Queue:    cfg.AuditQueue,
			MaxRetry: cfg.AuditMaxRetry,
		}
	}

	var limiterClient limiterredis.Client
	if redisClient != nil {
		limiterClient = redisClient
	}
	quoteLimiter, err := ratelimit.NewLimiter(cfg.RateLimitQuotes, limiterClient, "pricing:ratelimit:quotes")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}

	var auditStore audit.Lister
	if pool != nil {
		auditStore = audit.NewStore(pool)
	}

	var metricsHandler http.Handler
	if metricsEnabled {
		metricsHandler = promhttp.Handler()
	}

	probes := health.Probes{DB: pool}
	if redisClient != nil {
		probes.Redis = redisClient
	}

	router := newRouter(routerDeps{
		Config:      cfg,
		Logger:      logger,
		Quotes:      quote.NewHandler(quote.HandlerConfig{Service: quoteService}),
		Audits:      audit.AdminHandler{Store: auditStore},
		Limiter:     quoteLimiter,
		HTTPMetrics: httpMetrics,
		Metrics:     metricsHandler,
		Tracing:     tracingEnabled,
		Health: health.Handler{
			Checker:      probes,
			DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
			RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
		},
		AdminUser: envOrDefault("ADMIN_BASIC_AUTH_USER", ""),
		AdminPass: envOrDefault("ADMIN_BASIC_AUTH_PASS", ""),
		Pprof:     envBool("OBS_ENABLE_PPROF", false),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), envDurationMillis("HTTP_SHUTDOWN_TIMEOUT_MS", 10000))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metrics bool) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}
