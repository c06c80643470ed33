package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lendery/internal/config"
	"lendery/internal/database"
	"lendery/internal/domain"
	"lendery/internal/events"
	"lendery/internal/logging"
	"lendery/internal/metrics"
	"lendery/internal/models"
	"lendery/internal/repository"
	"lendery/internal/service"
	"lendery/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := initDatabase(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	stateRepo := initStateRepository(cfg, &logger)

	eventBus := events.NewEventBus()
	eventBus.Subscribe(events.EventUserNotified, func(event *events.Event) error {
		logger.Info().Str("event_id", event.ID).RawJSON("payload", event.Payload).Msg("user notification")
		return nil
	})

	notifier := service.NewEventNotifier(eventBus, models.NotifyRatePerSecond, &logger)

	waitlistService := service.NewWaitlistService(db, eventBus, notifier, cfg, &logger)
	lendingService := service.NewLendingService(db, stateRepo, eventBus, waitlistService, cfg, &logger)
	reservationService := service.NewReservationService(db, stateRepo, eventBus, waitlistService, cfg, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, &logger)
	startBackup(ctx, cfg, &logger)

	orgIDs := tenantIDs(cfg)
	sweeper := worker.NewSweeper(
		reservationService,
		waitlistService,
		lendingService,
		notifier,
		worker.RetryPolicy{},
		time.Duration(cfg.Sweep.IntervalSeconds)*time.Second,
		orgIDs,
		&logger,
	)

	logger.Info().Str("version", cfg.App.Version).Msg("lending engine started")
	sweeper.Start(ctx)
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := logging.WithComponent(baseLogger, "lendingd")

	return cfg, *logger, closer, nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	if len(cfg.Items) > 0 {
		if err := db.SeedItems(context.Background(), cfg.Items); err != nil {
			logger.Error().Err(err).Msg("seed items")
			return nil, err
		}
	}
	return db, nil
}

func initStateRepository(cfg *config.Config, logger *zerolog.Logger) domain.StateRepository {
	memory := repository.NewMemoryStateRepository()

	if cfg.Redis.Address == "" {
		return memory
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing with memory state")
		return memory
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	primary := repository.NewRedisStateRepository(client)
	return repository.NewFailoverStateRepository(primary, memory, logger)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort),
		Handler: mux,
	}

	go func() {
		logger.Info().Int("port", cfg.Monitoring.PrometheusPort).Msg("metrics server started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}

func startBackup(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Backup.Enabled {
		return
	}

	backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, logger)
	go backupService.Start(ctx)
}

func tenantIDs(cfg *config.Config) []int64 {
	seen := map[int64]bool{}
	var ids []int64
	for _, t := range cfg.Tenants {
		if !seen[t.OrgID] {
			seen[t.OrgID] = true
			ids = append(ids, t.OrgID)
		}
	}
	for _, item := range cfg.Items {
		if item.OrgID != 0 && !seen[item.OrgID] {
			seen[item.OrgID] = true
			ids = append(ids, item.OrgID)
		}
	}
	return ids
}
