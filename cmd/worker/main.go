package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kehinde-o/storefront-pay/internal/config"
	"github.com/kehinde-o/storefront-pay/internal/lock"
	"github.com/kehinde-o/storefront-pay/internal/obs"
	"github.com/kehinde-o/storefront-pay/internal/payment"
	"github.com/kehinde-o/storefront-pay/internal/reconcile"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "storefront_pay")
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := mustInitRedis(ctx, redisOpts, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	verifier := &payment.VerifyClient{
		BaseURL: cfg.BackendBaseURL,
		Client:  payment.NewHTTPClient(cfg.BackendTimeout),
		Logger:  logger,
	}
	worker := reconcile.Worker{
		Poller:      payment.Poller{Verifier: verifier, Logger: logger},
		Locker:      lock.Locker{R: redisClient, Prefix: "reconcile"},
		LockTTL:     cfg.ReconcileLockTTL,
		MaxAttempts: cfg.ReconcileMaxAttempts,
		Interval:    cfg.ReconcileInterval,
		Logger:      logger,
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Network:  redisOpts.Network,
			Addr:     redisOpts.Addr,
			Username: redisOpts.Username,
			Password: redisOpts.Password,
			DB:       redisOpts.DB,
		},
		asynq.Config{
			Concurrency: envInt("WORKER_CONCURRENCY", 5),
			Queues:      map[string]int{reconcile.Queue: 1},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(reconcile.TaskTypeReconcile, worker.HandleTask)

	go func() {
		<-ctx.Done()
		srv.Shutdown()
	}()

	logger.Info().Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped with error")
	}
	logger.Info().Msg("worker shutdown complete")
}

func mustInitRedis(ctx context.Context, opts *redis.Options, logger zerolog.Logger) *redis.Client {
	redisClient := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
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

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
