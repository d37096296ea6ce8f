package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"salonbook/internal/api"
	"salonbook/internal/availability"
	"salonbook/internal/config"
	"salonbook/internal/database"
	"salonbook/internal/domain"
	"salonbook/internal/events"
	"salonbook/internal/export"
	"salonbook/internal/google"
	"salonbook/internal/logging"
	"salonbook/internal/metrics"
	"salonbook/internal/models"
	"salonbook/internal/notify"
	"salonbook/internal/repository"
	"salonbook/internal/retry"
	"salonbook/internal/service"
	"salonbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
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
		defer func() { _ = closer.Close() }()
	}

	if err := prepareDirectories(cfg, logger); err != nil {
		return err
	}

	services, err := loadServices(cfg.ServicesFile, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initDatabase(ctx, cfg, services, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	names := serviceNamer(db)

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	eventBus := events.NewEventBus(logging.Component(logger, "events"))

	var syncWorker domain.SyncWorker
	if sheets := initGoogleSheets(ctx, cfg, names, logger); sheets != nil {
		policy := retry.Policy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
		w := worker.NewSheetsWorker(db, sheets, redisClient, policy, logging.Component(logger, "sheets_worker"))
		go w.Start(ctx)
		syncWorker = w
	}

	if forwarder := initAMQP(cfg, eventBus, logger); forwarder != nil {
		defer func() { _ = forwarder.Close() }()
	}
	initTelegram(cfg, eventBus, names, logger)

	salonLogger := logging.Component(logger, "reservations")
	engine := availability.NewEngine(db, availability.NewWeeklySchedule(cfg.Salon.OpeningHours), cfg.Salon.SlotStepMinutes, salonLogger)
	reservations := service.NewReservationService(db, engine, initLimiter(redisClient, logger), eventBus, syncWorker,
		cfg.Salon, cfg.Booking, salonLogger)

	catalog := service.NewCatalogService(db, logging.Component(logger, "catalog"))
	if err := catalog.Refresh(ctx); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	exporter := export.NewExporter(db, names, cfg.Exports.Path, logger)

	go database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup")).Start(ctx)

	startMonitoring(ctx, cfg, db, logger)

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config; only background workers are running")
		<-ctx.Done()
		return nil
	}

	httpServer := api.NewHTTPServer(cfg.API, reservations, catalog, exporter, logger)
	return serve(ctx, httpServer, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			logger.Error().Err(err).Msg("create database directory")
			return err
		}
	}
	if cfg.Exports.Path != "" {
		if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
			logger.Error().Err(err).Msg("create export directory")
			return err
		}
	}
	return nil
}

func loadServices(path string, logger *zerolog.Logger) ([]models.Service, error) {
	if env := os.Getenv("SERVICES_PATH"); env != "" {
		path = env
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error().Err(err).Str("services_path", path).Msg("read services")
		return nil, err
	}

	var catalog struct {
		Services []models.Service `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		logger.Error().Err(err).Str("services_path", path).Msg("parse services")
		return nil, err
	}
	if err := config.ValidateServices(catalog.Services); err != nil {
		logger.Error().Err(err).Msg("services validation failed")
		return nil, err
	}
	return catalog.Services, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, services []models.Service, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "database"),
		database.WithBusyTimeout(time.Duration(cfg.Database.BusyTimeoutMs)*time.Millisecond),
		database.WithRetryPolicy(retry.Policy{
			MaxRetries:    cfg.Database.MaxRetries,
			InitialDelay:  20 * time.Millisecond,
			MaxDelay:      500 * time.Millisecond,
			BackoffFactor: 2,
		}),
	)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	if err := db.SyncServices(ctx, services); err != nil {
		_ = db.Close()
		logger.Error().Err(err).Msg("sync services")
		return nil, err
	}
	return db, nil
}

func serviceNamer(db *database.DB) func(int64) string {
	return func(id int64) string {
		if svc, err := db.GetService(context.Background(), id); err == nil {
			return svc.Name
		}
		return "#" + strconv.FormatInt(id, 10)
	}
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

func initLimiter(redisClient *redis.Client, logger *zerolog.Logger) domain.KeyedLimiter {
	memory := repository.NewMemoryLimiter()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverLimiter(repository.NewRedisLimiter(redisClient), memory, logging.Component(logger, "limiter"))
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, names func(int64) string, logger *zerolog.Logger) *google.SheetsClient {
	if cfg.Google.CredentialsFile == "" || cfg.Google.ReservationsSpreadsheetID == "" {
		logger.Info().Msg("google sheets not configured, mirroring disabled")
		return nil
	}

	client, err := google.NewSheetsClient(ctx, cfg.Google.CredentialsFile, cfg.Google.ReservationsSpreadsheetID, cfg.Google.SheetName, names)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := client.TestConnection(ctx); err != nil {
		email, _ := google.ServiceAccountEmail(cfg.Google.CredentialsFile)
		logger.Warn().Err(err).Str("service_account", email).Msg("google sheets connection test failed; share the spreadsheet with the service account")
		return nil
	}

	go func() {
		warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := client.WarmUpCache(warmCtx); err != nil {
			logger.Warn().Err(err).Msg("google sheets row cache warm-up failed")
		}
	}()

	logger.Info().Msg("google sheets connected")
	return client
}

func initAMQP(cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) *events.AMQPForwarder {
	if !cfg.AMQP.Enabled {
		return nil
	}
	forwarder, err := events.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Queue, logging.Component(logger, "amqp"))
	if err != nil {
		logger.Warn().Err(err).Msg("amqp unavailable, events stay in-process")
		return nil
	}
	forwarder.Attach(bus)
	logger.Info().Str("queue", cfg.AMQP.Queue).Msg("forwarding reservation events to amqp")
	return forwarder
}

func initTelegram(cfg *config.Config, bus *events.EventBus, names func(int64) string, logger *zerolog.Logger) {
	bot, err := notify.NewBot(cfg.Telegram)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram bot init failed, admin notifications disabled")
		return
	}
	if bot == nil || cfg.Telegram.AdminChatID == 0 {
		return
	}
	notify.NewAdminNotifier(bot, cfg.Telegram.AdminChatID, names, logging.Component(logger, "telegram")).Attach(bus)
	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram admin notifications enabled")
}

func startMonitoring(ctx context.Context, cfg *config.Config, db *database.DB, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	metrics.Register()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
}

func serve(ctx context.Context, httpServer *api.HTTPServer, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}
