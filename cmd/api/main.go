package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/kehinde-o/storefront-pay/internal/checkout"
	"github.com/kehinde-o/storefront-pay/internal/common"
	"github.com/kehinde-o/storefront-pay/internal/config"
	"github.com/kehinde-o/storefront-pay/internal/events"
	"github.com/kehinde-o/storefront-pay/internal/health"
	"github.com/kehinde-o/storefront-pay/internal/obs"
	"github.com/kehinde-o/storefront-pay/internal/payment"
	"github.com/kehinde-o/storefront-pay/internal/ratelimit"
	"github.com/kehinde-o/storefront-pay/internal/reconcile"
	"github.com/kehinde-o/storefront-pay/internal/resilience"
	"github.com/kehinde-o/storefront-pay/internal/security"
	"github.com/kehinde-o/storefront-pay/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "storefront_pay")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "storefront-pay-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: 1.0,
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	queueClient := asynq.NewClient(asynq.RedisClientOpt{
		Network:  redisOpts.Network,
		Addr:     redisOpts.Addr,
		Username: redisOpts.Username,
		Password: redisOpts.Password,
		DB:       redisOpts.DB,
	})
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close queue client")
		}
	}()

	bus := &events.Bus{
		Scheduler: reconcile.Enqueuer{Client: queueClient, Delay: cfg.ReconcileDelay},
		Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}},
		Logger:    logger,
	}

	verifier := &payment.VerifyClient{
		BaseURL: cfg.BackendBaseURL,
		Client:  payment.NewHTTPClient(cfg.BackendTimeout),
		Logger:  logger,
	}
	confirmBreaker := resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenFor).
		WithTarget("backend_confirm").
		WithLogger(logger)
	confirmer := &payment.ConfirmClient{
		BaseURL: cfg.BackendBaseURL,
		Client: resilience.HTTPClient{
			Client:  payment.NewHTTPClient(cfg.BackendTimeout),
			Breaker: confirmBreaker,
			Timeout: cfg.BackendTimeout,
		},
	}
	poller := payment.Poller{Verifier: verifier, Logger: logger}

	orchestrator := &payment.Orchestrator{
		Verifier:             verifier,
		Confirmer:            confirmer,
		Poller:               poller,
		Redirects:            payment.Redirects{BaseURL: cfg.StorefrontBaseURL},
		Events:               bus,
		Logger:               logger,
		ConfirmMaxAttempts:   cfg.ConfirmMaxAttempts,
		ConfirmRetryBase:     cfg.ConfirmRetryBase,
		ShortPollMaxAttempts: cfg.ShortPollMaxAttempts,
		ShortPollInterval:    cfg.ShortPollInterval,
	}

	checkoutSvc := &checkout.Service{
		Orders: &checkout.OrdersClient{
			BaseURL: cfg.BackendBaseURL,
			Client:  payment.NewHTTPClient(cfg.BackendTimeout),
		},
		Items:        checkout.RedisItemStore{R: redisClient, TTL: cfg.BuyNowTTL},
		Orchestrator: orchestrator,
		SDK:          checkout.SDKBuilder{PublicKey: cfg.PaymentPublicKey, Currency: cfg.CurrencyCode},
		Validate:     validator.New(),
		Events:       bus,
		Logger:       logger,
	}
	checkoutHandler := checkout.Handler{Svc: checkoutSvc, Logger: logger}
	paymentHandler := payment.Handler{Verifier: verifier, Logger: logger}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	limiterStore, err := limiterredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "ratelimit"})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limit store")
	}
	rateLimiter := ratelimit.Handler{
		Limiter: ratelimit.StoreLimiter{Store: limiterStore},
		Config: ratelimit.Config{
			Key:    common.ClientIP,
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("rate limiter unavailable")
		},
	}

	resolver := store.NewResolver(cfg.StoreHeader, cfg.RootDomain, cfg.DefaultStore)

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", cfg.StoreHeader, checkout.SessionHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(security.Headers{Enable: true, EnableHSTS: envBool("SECURE_HSTS", false)}.Middleware)
	r.Use(security.BodyLimit{Max: 1 << 20}.Middleware)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker: readinessChecker{
			redis:      redisClient,
			backendURL: cfg.BackendBaseURL,
			client:     payment.NewHTTPClient(cfg.BackendTimeout),
		},
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(resolver.Middleware)
		v.Use(rateLimiter.Middleware)

		v.With(idem.Middleware).Post("/checkout", checkoutHandler.Checkout)

		v.Route("/payments", func(p chi.Router) {
			p.Post("/complete", checkoutHandler.Complete)
			p.Post("/close", checkoutHandler.Close)
			p.Get("/{reference}/status", paymentHandler.Status)
		})

		v.Route("/buy-now", func(b chi.Router) {
			b.Put("/", checkoutHandler.BuyNowSave)
			b.Get("/", checkoutHandler.BuyNowGet)
			b.Delete("/", checkoutHandler.BuyNowDelete)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-shutdownCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	redis      *redis.Client
	backendURL string
	client     *http.Client
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func (c readinessChecker) PingBackend(ctx context.Context, timeout time.Duration) error {
	if c.client == nil || c.backendURL == "" {
		return errors.New("backend not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.backendURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return errors.New("backend unhealthy: " + resp.Status)
	}
	return nil
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

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}
