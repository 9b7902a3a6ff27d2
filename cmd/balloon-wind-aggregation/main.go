package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/time/rate"

	httpapi "github.com/i474232898/balloon-wind-aggregation/internal/api/http"
	"github.com/i474232898/balloon-wind-aggregation/internal/balloon"
	"github.com/i474232898/balloon-wind-aggregation/internal/balloon/providers"
	"github.com/i474232898/balloon-wind-aggregation/internal/config"
	"github.com/i474232898/balloon-wind-aggregation/internal/scheduler"
	"github.com/i474232898/balloon-wind-aggregation/internal/store"
)

func main() {
	// Load configuration (also reads .env when present).
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Shared HTTP client for outbound feed and wind calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Cache store: Redis when configured, otherwise in-memory.
	var cache balloon.Cache
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisStore, err := store.NewRedisStore(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisStore.Close()
		cache = redisStore
		log.Println("INFO: using redis cache store")
	} else {
		cache = store.NewMemoryStore()
		log.Println("INFO: REDIS_URL not set; using in-memory cache store")
	}

	// Upstream clients with resilience (backoff + circuit breaker).
	feed := providers.NewConstellationFeed(httpClient, cfg.FeedBaseURL)
	wind := providers.NewOpenMeteoProvider(
		httpClient,
		cfg.WindBaseURL,
		cfg.WindLevelMeters,
		cfg.ReferenceTimezone,
		rate.NewLimiter(rate.Limit(cfg.WindRateLimit), cfg.WindRateBurst),
	)
	feed.SetCircuitTimeout(cfg.CircuitOpenTimeout)
	wind.SetCircuitTimeout(cfg.CircuitOpenTimeout)

	// Core service orchestrating aggregation and the cache.
	service := balloon.NewService(feed, wind, cache, balloon.Options{
		CacheKey:          cfg.CacheKey,
		TTL:               cfg.CacheTTL,
		HourTimeout:       cfg.HourFetchTimeout,
		BatchSize:         cfg.MaxBatchSize,
		EnrichConcurrency: cfg.EnrichConcurrency,
		PartialEnrichment: cfg.PartialEnrichment,
		Location:          cfg.ReferenceTimezone,
	})

	// Scheduler that periodically refreshes the cached aggregate.
	sched := scheduler.New(service, cfg.RefreshInterval, cfg.StartupDelay, scheduler.RetryPolicy{
		MaxRetries: cfg.RefreshMaxRetries,
		Backoff:    cfg.RefreshBackoff,
	})
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "balloon-wind-aggregation",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// A cold cache runs a full cycle inside the request.
		WriteTimeout: 2 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "balloon-wind-aggregation",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
