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

	"consultbook/internal/api"
	"consultbook/internal/availability"
	"consultbook/internal/config"
	"consultbook/internal/database"
	"consultbook/internal/domain"
	"consultbook/internal/events"
	"consultbook/internal/export"
	"consultbook/internal/google"
	"consultbook/internal/logging"
	"consultbook/internal/metrics"
	"consultbook/internal/notify"
	"consultbook/internal/repository"
	"consultbook/internal/service"
	"consultbook/internal/worker"

	"github.com/redis/go-redis/v9"
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

	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		return fmt.Errorf("create exports dir: %w", err)
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Booking.Location()
	if err != nil {
		return err
	}
	policy, err := cfg.Booking.SlotPolicy()
	if err != nil {
		return err
	}
	engine, err := availability.NewEngine(policy, availability.SystemClock{}, loc)
	if err != nil {
		return fmt.Errorf("build availability engine: %w", err)
	}

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}
	stateRepo, failover := initStateRepository(ctx, cfg, redisClient, logger)

	eventBus := events.NewEventBus()
	subscribeConsultationEvents(eventBus, logger)

	var (
		syncWorker domain.SyncWorker
		rebuilder  api.SheetsRebuilder
	)
	if sheetsService := initGoogleSheets(ctx, cfg, logger); sheetsService != nil {
		sheetsWorker := worker.NewSheetsWorker(db, sheetsService, redisClient, worker.DefaultRetryPolicy(), logger)
		go sheetsWorker.Start(ctx)
		go sheetsService.StartCacheRefresh(ctx, 10*time.Minute)
		syncWorker = sheetsWorker
		rebuilder = sheetsWorker
	}

	var notifier domain.Notifier
	if cfg.Telegram.Enabled() {
		bot, err := notify.NewBotAPI(cfg.Telegram)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, continuing without notifications")
		} else {
			notifier = notify.NewTelegramNotifier(bot, cfg.Telegram.ManagerChatIDs, logging.Component(logger, "telegram"))
			logger.Info().Str("bot", bot.Self.UserName).Int("chats", len(cfg.Telegram.ManagerChatIDs)).Msg("telegram notifications enabled")
		}
	}

	sink := service.NewConsultationSink(db, eventBus, syncWorker, notifier, availability.SystemClock{}, logging.Component(logger, "consultation_sink"))
	sessions := service.NewSessionService(engine, stateRepo, sink, eventBus, service.SessionOptions{
		PreselectFirstDate: cfg.Booking.Preselect(),
		SubmitRateLimit:    cfg.Booking.SubmitRateLimit,
		SubmitRateWindow:   cfg.Booking.SubmitRateWindowDuration(),
	}, logging.Component(logger, "sessions"))
	consultations := service.NewConsultationService(db, eventBus, syncWorker, 0, logging.Component(logger, "consultations"))

	backup := database.NewBackupService(db, cfg.Database.Path, cfg.Backup, logging.Component(logger, "backup"))
	go backup.Start(ctx)

	checks := []api.ReadinessCheck{{Name: "database", Check: db.Ready}}
	if redisClient != nil {
		checks = append(checks, api.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return repository.Ping(ctx, redisClient)
		}})
	}
	if failover != nil {
		// сессии в памяти не переживут рестарт, но сервис работает
		checks = append(checks, api.ReadinessCheck{Name: "state_store", Optional: true, Check: func(context.Context) error {
			if failover.IsDegraded() {
				return errors.New("degraded: sessions kept in memory")
			}
			return nil
		}})
	}

	httpServer := api.NewHTTPServer(&cfg.API, api.HTTPDeps{
		Engine:          engine,
		Sessions:        sessions,
		Consultations:   consultations,
		Exporter:        export.NewExcelExporter(cfg.Exports.Path, logger),
		SheetsRebuild:   rebuilder,
		Checks:          checks,
		MaxCalendarDays: cfg.Booking.MaxCalendarDays,
	}, logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go grpcServer.WatchReadiness(ctx, 15*time.Second, checks)
	}

	startMetrics(ctx, cfg, logger)

	err = startServers(ctx, grpcServer, httpServer, cfg, logger)

	// дожидаемся уведомлений менеджерам, отправленных до остановки
	sink.Wait()
	return err
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

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		// Redis может подняться позже: failover-репозиторий переключится сам
		logger.Warn().Err(err).Msg("redis connection failed, starting on in-memory state")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}
	return redisClient
}

// initStateRepository returns the failover wrapper separately so readiness can report degradation.
func initStateRepository(
	ctx context.Context,
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) (domain.StateRepository, *repository.FailoverStateRepository) {
	ttl := cfg.Booking.SessionTTLDuration()
	memory := repository.NewMemoryStateRepository(ttl)
	go sweepMemory(ctx, memory, logger)

	if redisClient == nil {
		return memory, nil
	}
	primary := repository.NewRedisStateRepository(redisClient, ttl)
	failover := repository.NewFailoverStateRepository(primary, memory, logging.Component(logger, "state"))
	return failover, failover
}

func sweepMemory(ctx context.Context, repo *repository.MemoryStateRepository, logger *zerolog.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := repo.Sweep(); n > 0 {
				logger.Debug().Int("removed", n).Msg("expired sessions swept")
			}
		}
	}
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if !cfg.Google.Enabled() {
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx, cfg.Google, logging.Component(logger, "sheets"))
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if email, err := google.ServiceAccountEmail(cfg.Google.CredentialsFile); err == nil {
		logger.Info().Str("service_account", email).Msg("share the spreadsheet with this account")
	}

	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets unreachable, continuing without sheets")
		return nil
	}
	if err := sheetsService.EnsureHeader(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets header setup failed")
	}

	logger.Info().Str("sheet", cfg.Google.SheetName).Msg("google sheets connected")
	return sheetsService
}

func subscribeConsultationEvents(bus *events.EventBus, logger *zerolog.Logger) {
	eventLogger := logging.Component(logger, "events")
	logEvent := func(ev *events.Event) error {
		var payload events.ConsultationEventPayload
		if err := ev.Decode(&payload); err != nil {
			return err
		}
		eventLogger.Info().
			Int64("event_id", ev.ID).
			Str("type", ev.Type).
			Str("reference", payload.Reference).
			Str("session_id", payload.SessionID).
			Strs("missing", payload.MissingFields).
			Strs("invalid", payload.InvalidFields).
			Msg("consultation event")
		return nil
	}

	for _, t := range []string{
		events.EventConsultationRequested,
		events.EventConsultationValidationFailed,
		events.EventConsultationSubmissionFailed,
		events.EventConsultationStatusChanged,
	} {
		bus.Subscribe(t, logEvent)
	}
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

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	errCh := make(chan error, 2)

	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	if cfg.API.HTTP.Enabled {
		go func() {
			if err := httpServer.Start(); err != nil {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	} else {
		logger.Warn().Msg("HTTP API is disabled in config; booking endpoints are not served")
	}

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Bool("grpc", grpcServer != nil).Msg("consultbook started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("consultbook stopped")
	return runErr
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

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
