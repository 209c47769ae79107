package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/naa-portal-api/internal/config"
	"github.com/noah-isme/naa-portal-api/internal/database"
	"github.com/noah-isme/naa-portal-api/internal/events"
	"github.com/noah-isme/naa-portal-api/internal/handler"
	"github.com/noah-isme/naa-portal-api/internal/middleware"
	"github.com/noah-isme/naa-portal-api/internal/offline"
	"github.com/noah-isme/naa-portal-api/internal/repository"
	"github.com/noah-isme/naa-portal-api/internal/router"
	"github.com/noah-isme/naa-portal-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if cfg.AppEnv == "development" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to nats")
	}

	var broker events.MessagePublisher
	if natsConn != nil {
		defer natsConn.Drain()
		broker = natsConn
	}

	publisher, err := events.NewPublisher(redisClient, broker, cfg.EventChannel, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build event publisher")
	}

	policy, err := offline.NewPolicy(cfg.OfflineOrigin, cfg.OfflineVersion, cfg.OfflineDocument, cfg.OfflinePrecache)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid offline cache policy")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	cpdPolicy := cfg.CPDPolicy()

	memberRepo := repository.NewMemberRepository(db)
	artifactRepo := repository.NewArtifactRepository(db)
	cpdStore := repository.NewCPDStore(db)
	activityRepo := repository.NewActivityLogRepository(db)

	activityService := service.NewActivityService(activityRepo, logger)
	ledgerService := service.NewCPDLedgerService(cpdStore, redisClient, cfg.ProgressCacheTTL, activityService, logger)
	periodService := service.NewPeriodService(cpdStore, validate, cpdPolicy, activityService, logger)
	memberService := service.NewMemberService(memberRepo, ledgerService, publisher, validate, activityService, logger)
	verificationService := service.NewVerificationService(cpdStore, memberRepo, ledgerService, publisher, validate, cpdPolicy, activityService, logger)
	artifactService := service.NewArtifactService(artifactRepo, validate, activityService, logger)

	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: cfg.AppEnv == "development"})
	router.Register(app, cfg, router.Dependencies{
		MemberHandler:        handler.NewMemberHandler(memberService, logger),
		ArtifactHandler:      handler.NewArtifactHandler(artifactService, memberService, logger),
		CPDHandler:           handler.NewCPDHandler(verificationService, ledgerService, middleware.RateLimit("cpd-submit", cfg.SubmitRateLimit, cfg.SubmitRateWindow), logger),
		AdminCPDHandler:      handler.NewAdminCPDHandler(verificationService, logger),
		AdminMemberHandler:   handler.NewAdminMemberHandler(memberService, ledgerService, logger),
		AdminPeriodHandler:   handler.NewAdminPeriodHandler(periodService, logger),
		AdminActivityHandler: handler.NewAdminActivityHandler(activityService, logger),
		OfflineHandler:       handler.NewOfflineHandler(policy, validate, logger),
		HealthProbes:         probes,
		JWTMiddleware:        middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
