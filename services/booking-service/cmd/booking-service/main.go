package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/arifhasnat/bookwell/libs/config"
	"github.com/arifhasnat/bookwell/libs/db"
	"github.com/arifhasnat/bookwell/libs/httpx"
	"github.com/arifhasnat/bookwell/libs/kafkax"
	otelx "github.com/arifhasnat/bookwell/libs/otel"
	"github.com/arifhasnat/bookwell/libs/runtime"
	"github.com/arifhasnat/bookwell/services/booking-service/internal/external"
	"github.com/arifhasnat/bookwell/services/booking-service/internal/facts"
	"github.com/arifhasnat/bookwell/services/booking-service/internal/handlers"
	"github.com/arifhasnat/bookwell/services/booking-service/internal/holds"
	"github.com/arifhasnat/bookwell/services/booking-service/internal/outbox"
	"github.com/arifhasnat/bookwell/services/booking-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	outboxRepo := outbox.NewRepository(pool)
	repo := storage.NewRepository(pool, outboxRepo)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	// Redis backs holds and rate limiting; both fall back to in-memory
	// single-instance implementations when it is not configured.
	var holdStore holds.Store = holds.NewMemoryStore()
	var rateLimit httpx.Middleware
	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if brokers := config.String("KAFKA_BROKERS", ""); strings.TrimSpace(brokers) != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	rateLimitPerMin := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if redisURL := config.String("REDIS_URL", ""); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL; using in-memory fallbacks", "err", err)
		} else {
			rdb := redis.NewClient(opts)
			holdStore = holds.NewRedisStore(rdb)
			rateLimit = httpx.NewRedisRateLimiter(rdb, rateLimitPerMin, time.Minute, service).
				Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
			readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: holds.RedisReadyCheck(rdb)})
		}
	}
	if rateLimit == nil {
		rateLimit = httpx.NewRateLimiter(rateLimitPerMin, time.Minute).Middleware()
	}

	busy := external.NewFreeBusyClient(
		config.String("CALENDAR_API_URL", ""),
		time.Duration(config.Int("CALENDAR_API_TIMEOUT_MS", 3000))*time.Millisecond,
	)
	loader := facts.NewLoader(repo, holdStore)

	availabilityHandler := handlers.NewAvailabilityHandler(repo, loader, busy, logger)
	bookingHandler := handlers.NewBookingHandler(repo, repo, logger)
	holdsHandler := handlers.NewHoldsHandler(holdStore, logger)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.HandleFunc("/api/v1/public/availability", availabilityHandler.Availability)
	mux.HandleFunc("/api/v1/public/book", bookingHandler.Book)
	mux.HandleFunc("/api/v1/public/holds", holdsHandler.Place)
	mux.HandleFunc("/api/v1/appointments", bookingHandler.List)
	mux.HandleFunc("/api/v1/appointments/cancel", bookingHandler.Cancel)

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(config.String("CORS_ALLOWED_ORIGINS", ""), ","),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Idempotency-Key"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		rateLimit,
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
