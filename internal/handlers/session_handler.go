package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/beniljosek/peerly/internal/models"
	"github.com/beniljosek/peerly/internal/repository"
	"github.com/beniljosek/peerly/internal/services"
)

type SessionHandler struct {
	service    sessionApplicationService
	settlement settlementRunner
}

type sessionApplicationService interface {
	BookSession(ctx context.Context, studentID int64, input services.BookSessionInput) (*models.Session, error)
	Accept(ctx context.Context, sessionID, actingTutorID int64) (*models.Session, error)
	Reject(ctx context.Context, sessionID, actingTutorID int64) (*models.Session, error)
	Complete(ctx context.Context, sessionID, actingTutorID int64) (*models.Session, error)
	GetSession(ctx context.Context, actorID int64, sessionID int64) (*models.Session, error)
	ListSessions(ctx context.Context, actorID int64, role string, filter repository.SessionListFilter) ([]models.Session, error)
	PendingForTutor(ctx context.Context, tutorID int64) ([]models.Session, error)
	SearchByTutorName(ctx context.Context, tutorName string) ([]models.SessionDetail, error)
	SearchBySubject(ctx context.Context, subject string) ([]models.SessionDetail, error)
	Search(ctx context.Context, term string) ([]models.SessionDetail, error)
}

type settlementRunner interface {
	Settle(ctx context.Context, sessionID int64) (*models.Session, error)
}

func NewSessionHandler(service *services.SessionService, settlement *services.SettlementService) *SessionHandler {
	return &SessionHandler{service: service, settlement: settlement}
}

type bookSessionRequest struct {
	TutorID         int64   `json:"tutor_id" validate:"required,gt=0"`
	StartsAt        string  `json:"starts_at" validate:"required"`
	DurationMinutes int     `json:"duration_minutes" validate:"required,gt=0"`
	Subject         string  `json:"subject" validate:"required"`
	Notes           *string `json:"notes"`
	Price           *int64  `json:"price" validate:"omitempty,gte=0"`
}

func (h *SessionHandler) BookSession(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || !hasStudentCapability(role) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	studentID, err := parseAccountID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req bookSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	startsAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartsAt))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "starts_at must be a valid RFC3339 timestamp"})
	}

	session, err := h.service.BookSession(c.Context(), studentID, services.BookSessionInput{
		TutorID:         req.TutorID,
		StartsAt:        startsAt,
		DurationMinutes: req.DurationMinutes,
		Subject:         req.Subject,
		Notes:           req.Notes,
		Price:           req.Price,
	})
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role == "" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	actorID, err := parseAccountID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	view := strings.TrimSpace(c.Query("as"))
	if view == "" {
		if hasTutorCapability(role) && !hasStudentCapability(role) {
			view = "tutor"
		} else {
			view = "student"
		}
	}
	switch view {
	case "tutor":
		if !hasTutorCapability(role) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
		}
	case "student":
		if !hasStudentCapability(role) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
		}
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "as must be tutor or student"})
	}

	timeframe := strings.TrimSpace(c.Query("timeframe"))
	if timeframe != "" && timeframe != "upcoming" && timeframe != "past" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "timeframe must be upcoming or past"})
	}

	sessions, err := h.service.ListSessions(c.Context(), actorID, view, repository.SessionListFilter{
		Status:    strings.TrimSpace(c.Query("status")),
		Timeframe: timeframe,
	})
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"sessions": sessions})
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	actorID, err := parseAccountID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || sessionID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := h.service.GetSession(c.Context(), actorID, sessionID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) PendingSessions(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || !hasTutorCapability(role) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	tutorID, err := parseAccountID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessions, err := h.service.PendingForTutor(c.Context(), tutorID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"sessions": sessions})
}

func (h *SessionHandler) SearchSessions(c *fiber.Ctx) error {
	if _, err := parseAccountID(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var (
		details []models.SessionDetail
		err     error
	)
	switch {
	case strings.TrimSpace(c.Query("tutor")) != "":
		details, err = h.service.SearchByTutorName(c.Context(), c.Query("tutor"))
	case strings.TrimSpace(c.Query("subject")) != "":
		details, err = h.service.SearchBySubject(c.Context(), c.Query("subject"))
	case strings.TrimSpace(c.Query("q")) != "":
		details, err = h.service.Search(c.Context(), c.Query("q"))
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "one of tutor, subject or q is required"})
	}
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"sessions": details})
}

func (h *SessionHandler) AcceptSession(c *fiber.Ctx) error {
	return h.runTransition(c, h.service.Accept)
}

func (h *SessionHandler) RejectSession(c *fiber.Ctx) error {
	return h.runTransition(c, h.service.Reject)
}

func (h *SessionHandler) CompleteSession(c *fiber.Ctx) error {
	return h.runTransition(c, h.service.Complete)
}

func (h *SessionHandler) runTransition(
	c *fiber.Ctx,
	transition func(ctx context.Context, sessionID, actingTutorID int64) (*models.Session, error),
) error {
	role, ok := c.Locals("role").(string)
	if !ok || !hasTutorCapability(role) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	tutorID, err := parseAccountID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || sessionID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := transition(c.Context(), sessionID, tutorID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) SettleSession(c *fiber.Ctx) error {
	actorID, err := parseAccountID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || sessionID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	// Party scoping happens here; Settle itself is party-agnostic so the
	// background sweep can drive it too.
	if _, err := h.service.GetSession(c.Context(), actorID, sessionID); err != nil {
		return mapSessionError(c, err)
	}

	session, err := h.settlement.Settle(c.Context(), sessionID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func mapSessionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, services.ErrInvalidSchedule):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrUnauthorized),
		errors.Is(err, services.ErrRoleViolation),
		errors.Is(err, services.ErrInactiveAccount):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrSchedulingConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Requested time conflicts with another session"})
	case errors.Is(err, services.ErrAlreadySettled):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidTransition), errors.Is(err, services.ErrExpiredSchedule):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrInsufficientFunds):
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrTutorNotFound), errors.Is(err, services.ErrStudentNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process session request"})
	}
}
