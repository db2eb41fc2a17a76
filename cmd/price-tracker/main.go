package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	httpapi "github.com/i474232898/retail-price-tracker/internal/api/http"
	"github.com/i474232898/retail-price-tracker/internal/common"
	"github.com/i474232898/retail-price-tracker/internal/config"
	"github.com/i474232898/retail-price-tracker/internal/metrics"
	"github.com/i474232898/retail-price-tracker/internal/prices"
	"github.com/i474232898/retail-price-tracker/internal/prices/providers"
	"github.com/i474232898/retail-price-tracker/internal/report"
	"github.com/i474232898/retail-price-tracker/internal/scheduler"
	"github.com/i474232898/retail-price-tracker/internal/store"
)

func main() {
	once := flag.Bool("once", false, "run a single collection and exit")
	flag.Parse()

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	common.InitLogger(cfg.LogLevel, cfg.LogPretty)

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	dataStore, err := store.Open(store.Config{
		Driver:      cfg.StoreDriver,
		CSVPath:     cfg.DatasetPath,
		SQLitePath:  cfg.SQLitePath,
		PostgresDSN: cfg.PostgresDSN,
	})
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}
	defer dataStore.Close()

	// Product API with resilience (rate limit + backoff + circuit breaker).
	provider := providers.NewKrogerProvider(httpClient, providers.KrogerConfig{
		BaseURL:       cfg.KrogerBaseURL,
		ClientID:      cfg.KrogerClientID,
		ClientSecret:  cfg.KrogerClientSecret,
		ItemCodes:     cfg.ItemCodes,
		RadiusMiles:   cfg.RadiusMiles,
		LocationLimit: cfg.LocationLimit,
		RatePerSec:    cfg.APIRatePerSec,
	})

	collector := metrics.NewCollector()

	// Core service orchestrating provider, store and publishers.
	service := prices.NewService(dataStore, provider, prices.ServiceConfig{
		Groups:           cfg.Groups,
		WindowDays:       cfg.WindowDays,
		DecimalPrecision: cfg.DecimalPrecision,
		Title:            cfg.ReportTitle,
		Concurrency:      cfg.FetchConcurrency,
	},
		prices.WithPublishers(
			report.NewHTMLPublisher(cfg.OutputDir),
			report.NewJSONPublisher(cfg.OutputDir),
			report.NewXLSXPublisher(cfg.OutputDir),
		),
		prices.WithObserver(collector),
	)

	if *once {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		result, err := service.Collect(ctx)
		if err != nil {
			log.Error().Err(err).Msg("collection failed")
			cancel()
			dataStore.Close()
			os.Exit(1)
		}
		log.Info().
			Str("run_id", result.RunID).
			Int("priced", result.Priced).
			Int("total_rows", result.TotalRows).
			Str("output_dir", cfg.OutputDir).
			Msg("egg prices updated")
		return
	}

	// Scheduler that periodically collects and publishes.
	sched := scheduler.New(cfg.FetchInterval, 10*time.Minute, service)
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "retail-price-tracker",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          2 * time.Minute,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
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
			"service": "retail-price-tracker",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(collector.Handler()))

	// API routes.
	httpapi.RegisterRoutes(app, service)

	// Start server with graceful shutdown
	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("fiber server stopped")
		}
	}()
	log.Info().Str("port", cfg.Port).Int("groups", len(cfg.Groups)).Msg("server started")

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
}
