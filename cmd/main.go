package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"relief-alert-service/internal/api"
	"relief-alert-service/internal/config"
	"relief-alert-service/internal/db"
	"relief-alert-service/internal/intake"
	"relief-alert-service/internal/kafka"
	"relief-alert-service/internal/logging"
	"relief-alert-service/internal/metrics"
	"relief-alert-service/internal/notification"
	"relief-alert-service/internal/providers"
	"relief-alert-service/internal/ratelimit"
	"relief-alert-service/internal/risk"
	"relief-alert-service/internal/scheduler"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Dir:        cfg.Logging.Dir,
		Level:      cfg.Logging.Level,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Errorf("Failed to open store: %v", err)
		log.Fatalf("Store init failed: %v", err)
	}
	defer closeStore()

	m, err := metrics.New()
	if err != nil {
		logger.Fatalf("Failed to init metrics: %v", err)
	}

	sender := providers.NewExpo(providers.ExpoConfig{
		URL:           cfg.Push.URL,
		AccessToken:   cfg.Push.AccessToken,
		RatePerSecond: cfg.Push.RatePerSecond,
	}, logger)

	hub := api.NewHub(logger, 0)
	observers := []notification.Observer{m, hub}
	if cfg.Telegram.BotToken != "" {
		reporter, err := providers.NewTelegramReporter(providers.TelegramConfig{
			BotToken: cfg.Telegram.BotToken,
			ChatID:   cfg.Telegram.ChatID,
		}, logger)
		if err != nil {
			logger.Fatalf("Failed to init Telegram reporter: %v", err)
		}
		defer reporter.Close()
		observers = append(observers, reporter)
		logger.Infof("Broadcast reports go to Telegram chat %d", cfg.Telegram.ChatID)
	}

	dispatcher := notification.NewDispatcher(
		notification.NewFilter(store),
		sender,
		logger,
		notification.Options{Workers: cfg.Dispatch.Workers, SendTimeout: cfg.Push.Timeout},
		observers...,
	)

	sched, err := scheduler.New(dispatcher, scheduler.Options{
		Interval: cfg.Scheduler.Interval,
		Title:    cfg.Scheduler.Title,
		Body:     cfg.Scheduler.Body,
	}, logger, m)
	if err != nil {
		logger.Fatalf("Failed to init scheduler: %v", err)
	}
	if cfg.Scheduler.Enabled {
		sched.Start()
	}

	var wg sync.WaitGroup
	if cfg.Kafka.Broker != "" {
		consumer := kafka.NewConsumer(kafka.Config{
			Broker:  cfg.Kafka.Broker,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, dispatcher, logger)
		consumer.Start(ctx, &wg)
		defer consumer.Close()
		logger.Infof("Kafka consumer initialized with topic: %s", cfg.Kafka.Topic)
	}

	classifier := risk.NewClassifier(store, cfg.Risk.Keywords)
	limiter := ratelimit.New(cfg.RateLimit.Max, cfg.RateLimit.Window)
	handler := api.NewHandler(
		intake.NewService(store, limiter, classifier, m, logger),
		notification.NewSettings(store, sender, logger),
		sched,
		logger,
	)
	router, err := api.NewRouter(handler, hub, m.Handler(), cfg.API.TrustedProxies, logger)
	if err != nil {
		logger.Fatalf("Failed to init router: %v", err)
	}

	srv := &http.Server{Addr: cfg.API.Port, Handler: router}
	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infof("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	inFlight := sched.Stop()
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API shutdown failed: %v", err)
	}
	select {
	case <-inFlight.Done():
	case <-shutdownCtx.Done():
		logger.Warnf("Scheduled broadcast still running at shutdown")
	}
	wg.Wait()
	logger.Infof("Service stopped")
}

func openStore(ctx context.Context, cfg config.Config, logger *logging.Logger) (db.Store, func(), error) {
	if cfg.DB.Driver == config.DriverMemory {
		logger.Warnf("Using in-memory store; data is lost on restart")
		return db.NewMemory(), func() {}, nil
	}
	conn, err := db.New(ctx, cfg.DB.DSN, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := conn.Migrate(ctx); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, conn.Close, nil
}
