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
	"syscall"
	"time"

	"frontdesk/internal/api"
	"frontdesk/internal/config"
	"frontdesk/internal/database"
	"frontdesk/internal/domain"
	"frontdesk/internal/events"
	"frontdesk/internal/google"
	"frontdesk/internal/logging"
	"frontdesk/internal/metrics"
	"frontdesk/internal/models"
	"frontdesk/internal/report"
	"frontdesk/internal/repository"
	"frontdesk/internal/service"
	"frontdesk/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
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
	cfg, root, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	logger := *logging.Component(root, "api-main", cfg.Logging.Components)
	component := func(name string) *zerolog.Logger {
		return logging.Component(root, name, cfg.Logging.Components)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.Database.Path, component("database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(ctx, cfg, &logger)
	defer (func() { _ = repository.Close(redisClient) })()

	bus := events.NewEventBus()
	rooms := service.NewRoomService(db, bus, component("rooms"))
	guests := service.NewGuestService(db, component("guests"))

	catalog, err := loadRooms(cfg, &logger)
	if err != nil {
		return err
	}
	if n, err := rooms.SeedRooms(ctx, catalog); err != nil {
		logger.Error().Err(err).Int("seeded", n).Msg("seed rooms")
		return err
	} else if n > 0 {
		logger.Info().Int("rooms", n).Msg("room catalog synced")
	}

	sheetsWorker := initSheetsWorker(ctx, cfg, db, redisClient, component("sheets"))
	var syncWorker domain.SyncWorker
	var fullSyncer api.FullSyncer
	if sheetsWorker != nil {
		syncWorker = sheetsWorker
		fullSyncer = sheetsWorker
		go sheetsWorker.Start(ctx)
	}

	bookings := service.NewBookingService(db, initLocks(redisClient, component("locks")), rooms, bus, syncWorker,
		service.BookingOptions{
			ServerSideQuote: cfg.Engine.ServerSideQuote,
			LockTTL:         cfg.Engine.LockTTL,
			MaxStayNights:   cfg.Engine.MaxStayNights,
		}, component("booking"))
	payments := service.NewPaymentService(db, bus, syncWorker, component("payments"))

	initNotifications(ctx, cfg, bus, component("notifications"))

	backupService := database.NewBackupService(db, cfg.Backup, component("backup"))
	go backupService.Start(ctx)

	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(&cfg.API, api.Dependencies{
		DB:       db,
		Rooms:    rooms,
		Guests:   guests,
		Bookings: bookings,
		Payments: payments,
		Reports:  report.NewExporter(db, cfg.Exports.Path, component("report")),
		Sync:     fullSyncer,
	}, component("http"))

	return serve(ctx, httpServer, cfg, &logger)
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

	root, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, root, closer, nil
}

// loadRooms reads the room catalog from ROOMS_PATH, falling back to the rooms section of the config.
func loadRooms(cfg *config.Config, logger *zerolog.Logger) ([]models.Room, error) {
	roomsPath := os.Getenv("ROOMS_PATH")
	if roomsPath == "" {
		roomsPath = "configs/rooms.yaml"
	}
	roomsData, err := os.ReadFile(roomsPath)
	if errors.Is(err, os.ErrNotExist) {
		return cfg.Rooms, nil
	}
	if err != nil {
		logger.Error().Err(err).Str("rooms_path", roomsPath).Msg("read rooms")
		return nil, err
	}

	var roomsConfig struct {
		Rooms []models.Room `yaml:"rooms"`
	}
	if err := yaml.Unmarshal(roomsData, &roomsConfig); err != nil {
		logger.Error().Err(err).Str("rooms_path", roomsPath).Msg("parse rooms")
		return nil, err
	}
	if err := config.ValidateRooms(roomsConfig.Rooms); err != nil {
		return nil, fmt.Errorf("%s: %w", roomsPath, err)
	}

	return append(roomsConfig.Rooms, cfg.Rooms...), nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = repository.Close(redisClient)
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initLocks prefers Redis room locks and falls back to process-local ones.
func initLocks(redisClient *redis.Client, logger *zerolog.Logger) domain.LockRepository {
	memory := repository.NewMemoryLockRepository()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverLockRepository(repository.NewRedisLockRepository(redisClient), memory, logger)
}

func initSheetsWorker(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) *worker.SheetsWorker {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.BookingSpreadSheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSimpleSheetsService(ctx, cfg.Google.GoogleCredentialsFile, cfg.Google.BookingSpreadSheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets unreachable, continuing without sheets")
		return nil
	}
	if err := sheetsService.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("sheets cache warm-up failed")
	}

	email, _ := sheetsService.GetServiceAccountEmail(cfg.Google.GoogleCredentialsFile)
	logger.Info().Str("service_account", email).Msg("google sheets connected")
	return worker.NewSheetsWorker(db, sheetsService, redisClient, worker.RetryPolicy{}, logger)
}

func initNotifications(ctx context.Context, cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) {
	if cfg.Telegram.BotToken == "" || len(cfg.Telegram.ManagerChatIDs) == 0 {
		logger.Info().Msg("telegram notifications disabled")
		return
	}

	botAPI, err := tgbotapi.NewBotAPIWithClient(cfg.Telegram.BotToken, tgbotapi.APIEndpoint,
		&http.Client{Timeout: models.TelegramRequestTimeout})
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without notifications")
		return
	}
	botAPI.Debug = cfg.Telegram.Debug

	notifications := service.NewNotificationService(service.NewTelegramService(botAPI), cfg.Telegram.ManagerChatIDs, logger)
	notifications.Subscribe(bus)
	go notifications.Start(ctx)
	logger.Info().Str("bot", botAPI.Self.UserName).Int("chats", len(cfg.Telegram.ManagerChatIDs)).Msg("telegram notifications enabled")
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("front desk started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("front desk stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
