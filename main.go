// Package main is the entry point for the finance tracker service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gitlab.com/yelinaung/finance-tracker/internal/config"
	"gitlab.com/yelinaung/finance-tracker/internal/database"
	"gitlab.com/yelinaung/finance-tracker/internal/events"
	"gitlab.com/yelinaung/finance-tracker/internal/gemini"
	"gitlab.com/yelinaung/finance-tracker/internal/logger"
	"gitlab.com/yelinaung/finance-tracker/internal/notify"
	"gitlab.com/yelinaung/finance-tracker/internal/pricing"
	"gitlab.com/yelinaung/finance-tracker/internal/processor"
	"gitlab.com/yelinaung/finance-tracker/internal/scheduler"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("finance-tracker %s (commit: %s, built: %s)\n", version, commit, date)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to load config")
	}

	logger.SetLevel(cfg.LogLevel)
	logger.InitHashSalt()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool); err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to run migrations")
	}
	logger.Log.Info().Msg("Database initialized successfully")

	var priceSource pricing.Source
	if cfg.PriceAPIBaseURL != "" {
		priceSource = pricing.NewCachedSource(
			pricing.NewQuoteClient(cfg.PriceAPIBaseURL, cfg.PriceAPITimeout),
			cfg.PriceCacheTTL,
		)
	}

	var notifier notify.Notifier = notify.NewLogNotifier()
	if cfg.TelegramEnabled() {
		tg, err := notify.NewTelegramNotifier(cfg.TelegramBotToken)
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("Failed to create Telegram notifier")
		}
		notifier = tg
	}

	procOpts := []processor.Option{}
	opts := []scheduler.Option{scheduler.WithRunInterval(cfg.SIPRunInterval)}
	if priceSource != nil {
		opts = append(opts, scheduler.WithPriceSource(priceSource))
	}
	if cfg.EventsEnabled() {
		publisher := events.NewKafkaPublisher(cfg.KafkaBrokers)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Log.Warn().Err(err).Msg("Failed to close event publisher")
			}
		}()
		procOpts = append(procOpts, processor.WithPublisher(publisher))
		opts = append(opts, scheduler.WithPublisher(publisher))
	}
	if cfg.GeminiAPIKey != "" {
		suggester, err := gemini.NewClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("Failed to create Gemini client")
		}
		procOpts = append(procOpts, processor.WithCategorySuggester(suggester))
	}

	transactions := processor.New(pool, priceSource, procOpts...)
	opts = append(opts, scheduler.WithProcessor(transactions))

	sipEngine := scheduler.New(pool, notifier, opts...)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Log.Info().Msg("Shutting down...")
		cancel()
	}()

	sipEngine.Run(ctx)
}
