// Package main is the entry point for the ratewatch observability hub.
// It wires the venue adapters, poller fleet, formula monitors, alert
// engine, downsampler and HTTP API, then runs until signalled.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ratewatch/ratewatch/internal/adapters"
	"github.com/ratewatch/ratewatch/internal/config"
	"github.com/ratewatch/ratewatch/internal/database"
	"github.com/ratewatch/ratewatch/internal/downsampler"
	"github.com/ratewatch/ratewatch/internal/modules/alerts"
	"github.com/ratewatch/ratewatch/internal/modules/monitors"
	"github.com/ratewatch/ratewatch/internal/modules/samples"
	"github.com/ratewatch/ratewatch/internal/modules/webhook"
	"github.com/ratewatch/ratewatch/internal/notify"
	"github.com/ratewatch/ratewatch/internal/poller"
	"github.com/ratewatch/ratewatch/internal/scheduler"
	"github.com/ratewatch/ratewatch/internal/server"
	"github.com/ratewatch/ratewatch/internal/snapshot"
	"github.com/ratewatch/ratewatch/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	log.Info().Msg("Starting ratewatch")

	db, err := database.New(database.Config{Path: cfg.DatabasePath})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}
	log.Info().Str("path", cfg.DatabasePath).Msg("Database ready")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repositories and services.
	sampleRepo := samples.NewRepository(db.Conn(), log)
	monitorService := monitors.NewService(
		monitors.NewRepository(db.Conn(), log),
		monitors.NewValueRepository(db.Conn(), log),
		sampleRepo,
		log,
	)

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Pushover.APIToken != "" {
		notifier = notify.NewPushClient(cfg.Pushover.APIURL, cfg.Pushover.APIToken, log)
		log.Info().Msg("Push notifications enabled")
	}

	ruleRepo := alerts.NewRuleRepository(db.Conn(), log)
	stateRepo := alerts.NewStateRepository(db.Conn(), log)
	engine := alerts.NewEngine(
		ruleRepo,
		stateRepo,
		alerts.NewTargetRepository(db.Conn(), log),
		monitorService,
		notifier,
		log,
	)
	heartbeats := alerts.NewHeartbeatChecker(ruleRepo, stateRepo, engine, monitorService, log)

	// Venue adapters and poller fleet.
	registry := adapters.NewRegistry()
	fleet := poller.NewFleet(log)

	if !cfg.DisableFundingPollers {
		for _, source := range registry.FundingSources() {
			fleet.Add(poller.NewPoller(source, sampleRepo, poller.FundingInterval, cfg.TopNLimit, log))
		}
	}
	if !cfg.DisableSpotPollers {
		fleet.Add(poller.NewSpotPoller(registry.Binance(), sampleRepo, poller.SpotInterval, log))
	}

	var accountLabels []string
	if !cfg.DisableAccountPollers {
		for _, account := range cfg.Accounts {
			source := registry.AccountSource(account.Venue)
			if source == nil {
				log.Warn().Str("venue", account.Venue).Msg("No account adapter for venue, skipping")
				continue
			}
			fleet.Add(poller.NewAccountPoller(source, account.Address, account.Label, sampleRepo, poller.AccountInterval, log))
			accountLabels = append(accountLabels, account.Label)
		}
		if len(accountLabels) > 0 {
			fleet.Add(poller.NewHedgeCalculator(sampleRepo, accountLabels, poller.HedgeInterval, log))
		}
	}

	rates := snapshot.NewCache(registry.FundingSources(), registry.Binance(), snapshot.DefaultTTL, log)

	// Background jobs.
	sched := scheduler.New(log)

	registerJob := func(schedule string, job scheduler.Job) {
		if err := sched.AddJob(schedule, job); err != nil {
			log.Fatal().Err(err).Str("job", job.Name()).Msg("Failed to register job")
		}
	}

	registerJob("@every 10s", scheduler.JobFunc("monitor_recompute", func(ctx context.Context) error {
		return monitorService.RecomputeAll(ctx, true)
	}))
	registerJob("@every 30s", scheduler.JobFunc("alert_tick", func(ctx context.Context) error {
		engine.Tick(ctx)
		return nil
	}))
	registerJob("@every 30s", scheduler.JobFunc("heartbeat_tick", func(ctx context.Context) error {
		heartbeats.Tick(ctx)
		return nil
	}))

	if !cfg.DisableDownsampler {
		var uploader *downsampler.S3Uploader
		if cfg.Backup.Bucket != "" {
			uploader, err = downsampler.NewS3Uploader(ctx, cfg.Backup, log)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to configure offsite backups")
			}
			log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Offsite backups enabled")
		}
		job := downsampler.NewJob(db, cfg.ImportantPairs, uploader, log)
		registerJob("@every 2h", scheduler.JobFunc("downsampler", job.Run))
	}

	// HTTP surface.
	srv := server.New(server.Config{
		Log:      log,
		Cfg:      cfg,
		DB:       db,
		Samples:  samples.NewHandler(sampleRepo, log),
		Webhook:  webhook.NewHandler(sampleRepo, monitorService, cfg.WebhookSecret, log),
		Monitors: monitors.NewHandler(monitorService, log),
		Alerts:   alerts.NewHandler(engine, log),
		Rates:    rates,
	})

	fleet.Start(ctx)
	log.Info().Int("pollers", fleet.Size()).Msg("Poller fleet started")
	sched.Start(ctx)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for a shutdown signal or a listener failure.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server failed")
	}

	cancel()
	sched.Stop()
	fleet.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}

	log.Info().Msg("ratewatch stopped")
}
