package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/interview-eval-api/internal/utils"
)

// RateLimit caps requests per JWT subject within scope. The router puts it on
// POST /sessions/:id/answers so one candidate cannot queue unbounded LLM calls.
// Requests without a subject share a bucket per client IP.
func RateLimit(scope string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Second
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			subject, _ := c.Locals("user_id").(string)
			if strings.TrimSpace(subject) == "" {
				return fmt.Sprintf("%s:ip:%s", scope, c.IP())
			}
			return fmt.Sprintf("%s:user:%s", scope, subject)
		},
		LimitReached: func(c *fiber.Ctx) error {
			return utils.SendError(c, fiber.StatusTooManyRequests, "too many submissions, slow down")
		},
	})
}
