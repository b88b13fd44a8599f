package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/interview-eval-api/internal/dto"
	"github.com/noah-isme/interview-eval-api/internal/service"
	"github.com/noah-isme/interview-eval-api/internal/utils"
)

// InterviewHandler exposes interview sessions, questions and answer submission.
type InterviewHandler struct {
	service service.InterviewService
	logger  zerolog.Logger
}

// NewInterviewHandler constructs the handler.
func NewInterviewHandler(service service.InterviewService, logger zerolog.Logger) *InterviewHandler {
	return &InterviewHandler{
		service: service,
		logger:  logger.With().Str("component", "interview_handler").Logger(),
	}
}

// Register binds the read and session routes. Answer submission is registered separately
// so the router can put a rate limiter in front of it.
func (h *InterviewHandler) Register(router fiber.Router) {
	router.Post("/sessions", h.createSession)
	router.Get("/sessions/:id", h.summary)
	router.Get("/questions/:id", h.question)
}

// SubmitAnswer handles POST /sessions/:id/answers.
func (h *InterviewHandler) SubmitAnswer(c *fiber.Ctx) error {
	sessionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid session id")
	}

	var payload dto.AnswerSubmitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	payload.SessionID = sessionID

	response, err := h.service.SubmitAnswer(requestContext(c), userIDStringFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err, "failed to submit answer")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "answer evaluated", response)
}

func (h *InterviewHandler) createSession(c *fiber.Ctx) error {
	var payload dto.SessionCreateRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
		}
	}

	session, err := h.service.StartSession(requestContext(c), userIDStringFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err, "failed to start session")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "session started", session)
}

func (h *InterviewHandler) summary(c *fiber.Ctx) error {
	sessionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid session id")
	}

	summary, err := h.service.GetSummary(requestContext(c), viewerFromContext(c), sessionID)
	if err != nil {
		return h.handleError(c, err, "failed to load session")
	}

	return utils.SendSuccess(c, "session summary", summary)
}

func (h *InterviewHandler) question(c *fiber.Ctx) error {
	questionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid question id")
	}

	question, err := h.service.GetQuestion(requestContext(c), questionID)
	if err != nil {
		return h.handleError(c, err, "failed to load question")
	}

	return utils.SendSuccess(c, "question", question)
}

func (h *InterviewHandler) handleError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case isValidationError(err):
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(err))
	case errors.Is(err, service.ErrEmptyAnswer):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrQuestionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrSessionForbidden):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrAnswerAlreadySubmitted), errors.Is(err, service.ErrEvaluationInFlight):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrSessionCompleted):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrEvaluatorUnavailable):
		return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// 499 is the conventional status for a client that closed the request
		return utils.SendError(c, 499, "request cancelled")
	default:
		requestLogger(h.logger, c).Error().Err(err).Str("path", c.Path()).Msg(fallback)
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}
}
