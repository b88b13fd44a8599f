package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/interview-eval-api/internal/service"
	"github.com/noah-isme/interview-eval-api/internal/utils"
)

const streamPingInterval = 30 * time.Second

// SessionStreamHandler pushes answer evaluations of a session over a websocket.
type SessionStreamHandler struct {
	interviews service.InterviewService
	events     service.EvaluationEvents
	logger     zerolog.Logger
	ping       time.Duration
}

// NewSessionStreamHandler constructs the stream handler.
func NewSessionStreamHandler(interviews service.InterviewService, events service.EvaluationEvents, logger zerolog.Logger) *SessionStreamHandler {
	return &SessionStreamHandler{
		interviews: interviews,
		events:     events,
		logger:     logger.With().Str("component", "session_stream_handler").Logger(),
		ping:       streamPingInterval,
	}
}

// Register binds the websocket route. Authorization happens before the upgrade so a
// forbidden client receives a regular HTTP error.
func (h *SessionStreamHandler) Register(router fiber.Router) {
	router.Get("/sessions/:id/stream", h.upgrade, websocket.New(h.handleConnection))
}

func (h *SessionStreamHandler) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	sessionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid session id")
	}

	if err := h.interviews.AuthorizeSession(requestContext(c), viewerFromContext(c), sessionID); err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			return utils.SendError(c, fiber.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrSessionForbidden):
			return utils.SendError(c, fiber.StatusForbidden, err.Error())
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("failed to authorize session stream")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to open stream")
		}
	}

	c.Locals("session_id", sessionID)
	return c.Next()
}

func (h *SessionStreamHandler) handleConnection(conn *websocket.Conn) {
	sessionID, _ := conn.Locals("session_id").(uint)
	userID, _ := conn.Locals("user_id").(string)

	updates, cancel := h.events.Subscribe(sessionID)
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// the read loop only detects the client going away
	go func() {
		defer stop()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.logger.Info().Uint("session_id", sessionID).Str("user_id", userID).Msg("session stream connected")
	defer h.logger.Info().Uint("session_id", sessionID).Str("user_id", userID).Msg("session stream disconnected")

	ticker := time.NewTicker(h.ping)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug().Err(err).Msg("session stream write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				h.logger.Debug().Err(err).Msg("session stream ping failed")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
