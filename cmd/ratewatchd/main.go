package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/t77yq/ratewatch/internal/checker"
	"github.com/t77yq/ratewatch/internal/config"
	"github.com/t77yq/ratewatch/internal/notify"
	"github.com/t77yq/ratewatch/internal/provider"
	"github.com/t77yq/ratewatch/internal/scheduler"
	"github.com/t77yq/ratewatch/internal/service"
	"github.com/t77yq/ratewatch/internal/storage"
)

func main() {
	cfgPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Create alert storage
	store, err := storage.NewSQLiteAlertStore(logger, cfg.Storage.Path)
	if err != nil {
		logger.Fatal("Failed to create alert storage", zap.Error(err))
	}
	defer store.Close()

	// Set up rate and price providers
	rates := provider.NewFrankfurterClient(logger, cfg.Providers.Frankfurter.BaseURL, cfg.Providers.Frankfurter.RPS)

	prices := provider.NewRegistry()
	if err := prices.Register(provider.NewCoinGeckoClient(logger, cfg.Providers.CoinGecko.BaseURL, cfg.Providers.CoinGecko.RPS)); err != nil {
		logger.Fatal("Failed to register coingecko provider", zap.Error(err))
	}
	if err := prices.Register(provider.NewCoinCapClient(logger, cfg.Providers.CoinCap.BaseURL, cfg.Providers.CoinCap.APIKey, cfg.Providers.CoinCap.RPS)); err != nil {
		logger.Fatal("Failed to register coincap provider", zap.Error(err))
	}
	if err := prices.SetActive(cfg.Providers.CryptoBackend); err != nil {
		logger.Fatal("Failed to select crypto backend", zap.Error(err))
	}

	// Connect to NATS with more options
	opts := []nats.Option{
		nats.Name(cfg.App.Name),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.ReconnectWait(cfg.NATS.ReconnectWait),
		nats.Timeout(cfg.NATS.ConnectTimeout),
		nats.PingInterval(20 * time.Second),
		nats.MaxPingsOutstanding(5),
		nats.DrainTimeout(30 * time.Second),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("NATS connection error", zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected",
				zap.String("url", nc.ConnectedUrl()))
		}),
	}

	// Connect with retry
	var nc *nats.Conn
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(cfg.NATS.URL, opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
	}
	defer nc.Close()

	logger.Info("Connected to NATS successfully",
		zap.String("url", nc.ConnectedUrl()))

	// Create JetStream context
	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal("Failed to create JetStream context", zap.Error(err))
	}

	// Notification center backed by a JetStream bucket
	center, err := notify.NewNATSCenter(logger, js, cfg.NATS.Bucket, cfg.NATS.GrantOnRequest)
	if err != nil {
		logger.Fatal("Failed to create notification center", zap.Error(err))
	}
	notifier := notify.NewNotifier(logger, center, store)

	// Wire the evaluation pipeline
	chk := checker.New(logger, store, rates, prices)
	app := service.NewApp(logger, store, chk, notifier)

	// Background refresh on the cron runner
	cronSched := scheduler.NewCronScheduler(logger, cfg.Scheduler.Budget)
	background := scheduler.NewBackground(logger, cronSched, app.RunBackgroundRefresh, scheduler.Config{
		JobID:    cfg.Scheduler.JobID,
		Interval: cfg.Scheduler.Interval,
		Budget:   cfg.Scheduler.Budget,
		OnComplete: func(status scheduler.CompletionStatus, err error) {
			if err != nil {
				logger.Warn("Background refresh finished with error",
					zap.String("status", string(status)),
					zap.Error(err))
				return
			}
			logger.Info("Background refresh finished",
				zap.String("status", string(status)))
		},
	})

	if err := background.RegisterJob(); err != nil {
		logger.Fatal("Failed to register background job", zap.Error(err))
	}
	cronSched.Start()

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	// Launch-time pass, bounded like a background invocation
	startupCtx, startupCancel := context.WithTimeout(ctx, cfg.Scheduler.Budget)
	if err := app.RunStartupCheck(startupCtx); err != nil {
		logger.Error("Startup check failed", zap.Error(err))
	}
	startupCancel()

	if err := background.ScheduleNext(); err != nil {
		logger.Error("Failed to schedule background refresh", zap.Error(err))
	}

	logger.Info("ratewatch started",
		zap.String("crypto_backend", prices.Active()),
		zap.Duration("refresh_interval", cfg.Scheduler.Interval))

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("Shutting down...")

	background.CancelAll()
	cronSched.Stop()

	logger.Info("Shutdown complete")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
