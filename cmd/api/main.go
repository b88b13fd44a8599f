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
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/interview-eval-api/internal/config"
	"github.com/noah-isme/interview-eval-api/internal/database"
	"github.com/noah-isme/interview-eval-api/internal/handler"
	"github.com/noah-isme/interview-eval-api/internal/middleware"
	"github.com/noah-isme/interview-eval-api/internal/models"
	"github.com/noah-isme/interview-eval-api/internal/observability"
	"github.com/noah-isme/interview-eval-api/internal/repository"
	"github.com/noah-isme/interview-eval-api/internal/router"
	"github.com/noah-isme/interview-eval-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	observability.RegisterMetrics()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Question{}, &models.InterviewSession{}, &models.Answer{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis not configured; summary cache and in-flight guard disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	var evaluator service.AnswerEvaluator
	if built, err := service.NewEvaluatorFromConfig(cfg.AI, nil, logger); err != nil {
		logger.Error().Err(err).Str("provider", cfg.AI.Provider).Msg("answer evaluation disabled")
	} else {
		evaluator = built
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	sessionRepo := repository.NewInterviewSessionRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	answerRepo := repository.NewAnswerRepository(db)

	events := service.NewEvaluationEvents(redisClient, cfg.EventsChannel, natsConn, logger)
	interviewService := service.NewInterviewService(sessionRepo, questionRepo, answerRepo, evaluator, validate, service.InterviewServiceConfig{
		Cache:    redisClient,
		CacheTTL: cfg.SessionCacheTTL,
		Events:   events,
	}, logger)
	seedService := service.NewSeedService(questionRepo, validate, cfg.SeedEnabled, cfg.SeedToken, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		// evaluations may take several provider attempts
		ReadTimeout:  time.Duration(cfg.AI.MaxRetries+2) * cfg.AI.AttemptTimeout,
		WriteTimeout: time.Duration(cfg.AI.MaxRetries+2) * cfg.AI.AttemptTimeout,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSOrigins})
	router.Register(app, cfg, router.Dependencies{
		InterviewHandler:     handler.NewInterviewHandler(interviewService, logger),
		SessionStreamHandler: handler.NewSessionStreamHandler(interviewService, events, logger),
		SeedHandler:          handler.NewSeedHandler(seedService, logger),
		JWTMiddleware:        middleware.JWTProtected(cfg.JWTSecret),
		DB:                   db,
		Redis:                redisClient,
	})

	eventsCtx, stopEvents := context.WithCancel(context.Background())
	defer stopEvents()
	events.Start(eventsCtx)

	go func() {
		logger.Info().Str("address", cfg.HTTPAddress()).Msg("interview api listening")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
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
