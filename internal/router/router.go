package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/noah-isme/interview-eval-api/internal/config"
	"github.com/noah-isme/interview-eval-api/internal/handler"
	"github.com/noah-isme/interview-eval-api/internal/middleware"
	"github.com/noah-isme/interview-eval-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	InterviewHandler     *handler.InterviewHandler
	SessionStreamHandler *handler.SessionStreamHandler
	SeedHandler          *handler.SeedHandler
	JWTMiddleware        fiber.Handler
	DB                   *gorm.DB
	Redis                *redis.Client
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	// Common v1 group for health, readiness and tooling
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	if deps.DB != nil {
		api.Get("/ready", handler.Readiness(deps.DB, deps.Redis))
	}

	if deps.SeedHandler != nil {
		deps.SeedHandler.Register(api.Group("/seed"))
	}

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	interview := app.Group(middleware.InterviewRoutePrefix, jwtMiddleware)

	if deps.SessionStreamHandler != nil {
		deps.SessionStreamHandler.Register(interview)
	}

	if deps.InterviewHandler != nil {
		deps.InterviewHandler.Register(interview)

		interview.Post("/sessions/:id/answers",
			middleware.RateLimit("answers", cfg.SubmissionRateLimit, time.Minute),
			middleware.WithAuth(deps.InterviewHandler.SubmitAnswer, middleware.AuthOptions{Role: middleware.AuthRoleCandidate}),
		)
	}
}
