package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"court-intake-service/internal/api"
	"court-intake-service/internal/config"
	"court-intake-service/internal/db"
	"court-intake-service/internal/kafka"
	"court-intake-service/internal/logging"
	"court-intake-service/internal/matching"
	"court-intake-service/internal/naming"
	"court-intake-service/internal/pipeline"
	"court-intake-service/internal/providers"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Errorf("Service stopped with error: %v", err)
		logger.Close()
		os.Exit(1)
	}
	logger.Info("Service stopped")
	logger.Close()
}

func run(ctx context.Context, cfg config.Config, logger *logging.Logger) error {
	// Connect to database
	dbConn, err := db.New(cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer dbConn.Close()
	if err := dbConn.Migrate(ctx); err != nil {
		return err
	}

	acquirer := kafka.NewAcquirer(cfg.Kafka.Brokers, cfg.Kafka.DownloadJobTopic, dbConn)
	defer acquirer.Close()

	intel := providers.NewDocumentIntel(cfg.Intel.URL, cfg.Pipeline.IsolatedHeavyTimeout)

	var messenger pipeline.Messenger = providers.NewLogMessenger(logger)
	if cfg.Telegram.BotToken != "" {
		tg, err := providers.NewTelegramMessenger(cfg.Telegram.BotToken, cfg.Telegram.RateLimit, dbConn, logger)
		if err != nil {
			return err
		}
		messenger = tg
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN not set, notifications are only logged")
	}

	hub := api.NewHub(logger)
	pool := pipeline.NewWorkerPool(cfg.Notification.QueueSize, cfg.Notification.MaxWorkers, logger)
	proc := pipeline.New(pipeline.Deps{
		Store:     dbConn,
		Parser:    providers.NewTextParser(),
		Acquirer:  acquirer,
		Matcher:   matching.NewEngine(dbConn, intel, logger),
		Directory: dbConn,
		CaseLog:   dbConn,
		Namer:     naming.New(),
		Intel:     intel,
		Messenger: messenger,
		Scheduler: pool,
		Observer:  hub,
	}, pipeline.Options{
		MaxRetries:      cfg.Pipeline.MaxRetries,
		RetryDelay:      cfg.Pipeline.RetryDelay,
		IsolatedTimeout: cfg.Pipeline.IsolatedTimeout,
		DocumentDir:     cfg.Documents.Dir,
	}, logger)
	pool.Start(proc)
	defer pool.Stop()

	monitor := pipeline.NewMonitor(dbConn, acquirer, pool, hub, pipeline.MonitorOptions{
		Interval:        cfg.Pipeline.MonitorInterval,
		StuckTimeout:    cfg.Pipeline.StuckTimeout,
		Lookback:        cfg.Pipeline.RecoveryLookback,
		IsolatedTimeout: cfg.Pipeline.IsolatedTimeout,
	}, logger)

	// Initialize Kafka consumers
	inbound := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.InboundTopic, cfg.Kafka.GroupID, kafka.InboundHandler(proc), logger)
	defer inbound.Close()
	downloads := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.DownloadTopic, cfg.Kafka.GroupID, kafka.DownloadEventHandler(dbConn, proc), logger)
	defer downloads.Close()

	router := api.NewRouter(logger, cfg.API.BasePath, api.NewHandler(proc, dbConn, hub, logger))
	srv := &http.Server{Addr: cfg.API.Port, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return inbound.Start(gctx) })
	g.Go(func() error { return downloads.Start(gctx) })
	g.Go(func() error { return monitor.Run(gctx) })
	g.Go(func() error {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
