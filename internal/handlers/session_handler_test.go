package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/beniljosek/peerly/internal/models"
	"github.com/beniljosek/peerly/internal/repository"
	"github.com/beniljosek/peerly/internal/services"
)

type stubSessionService struct {
	bookResult     *models.Session
	bookErr        error
	transitionRes  *models.Session
	transitionErr  error
	getResult      *models.Session
	getErr         error
	listResult     []models.Session
	listErr        error
	pendingResult  []models.Session
	pendingErr     error
	searchResult   []models.SessionDetail
	searchErr      error
	lastBookInput  services.BookSessionInput
	lastActorID    int64
	lastSessionID  int64
	lastRole       string
	lastListFilter repository.SessionListFilter
	lastSearchTerm string
}

func (s *stubSessionService) BookSession(_ context.Context, studentID int64, input services.BookSessionInput) (*models.Session, error) {
	s.lastActorID = studentID
	s.lastBookInput = input
	return s.bookResult, s.bookErr
}

func (s *stubSessionService) Accept(_ context.Context, sessionID, actingTutorID int64) (*models.Session, error) {
	s.lastSessionID = sessionID
	s.lastActorID = actingTutorID
	return s.transitionRes, s.transitionErr
}

func (s *stubSessionService) Reject(_ context.Context, sessionID, actingTutorID int64) (*models.Session, error) {
	s.lastSessionID = sessionID
	s.lastActorID = actingTutorID
	return s.transitionRes, s.transitionErr
}

func (s *stubSessionService) Complete(_ context.Context, sessionID, actingTutorID int64) (*models.Session, error) {
	s.lastSessionID = sessionID
	s.lastActorID = actingTutorID
	return s.transitionRes, s.transitionErr
}

func (s *stubSessionService) GetSession(_ context.Context, actorID int64, sessionID int64) (*models.Session, error) {
	s.lastActorID = actorID
	s.lastSessionID = sessionID
	return s.getResult, s.getErr
}

func (s *stubSessionService) ListSessions(_ context.Context, actorID int64, role string, filter repository.SessionListFilter) ([]models.Session, error) {
	s.lastActorID = actorID
	s.lastRole = role
	s.lastListFilter = filter
	return s.listResult, s.listErr
}

func (s *stubSessionService) PendingForTutor(_ context.Context, tutorID int64) ([]models.Session, error) {
	s.lastActorID = tutorID
	return s.pendingResult, s.pendingErr
}

func (s *stubSessionService) SearchByTutorName(_ context.Context, tutorName string) ([]models.SessionDetail, error) {
	s.lastSearchTerm = tutorName
	return s.searchResult, s.searchErr
}

func (s *stubSessionService) SearchBySubject(_ context.Context, subject string) ([]models.SessionDetail, error) {
	s.lastSearchTerm = subject
	return s.searchResult, s.searchErr
}

func (s *stubSessionService) Search(_ context.Context, term string) ([]models.SessionDetail, error) {
	s.lastSearchTerm = term
	return s.searchResult, s.searchErr
}

type stubSettlement struct {
	result        *models.Session
	err           error
	lastSessionID int64
}

func (s *stubSettlement) Settle(_ context.Context, sessionID int64) (*models.Session, error) {
	s.lastSessionID = sessionID
	return s.result, s.err
}

func newSessionTestApp(handler *SessionHandler, role, accountID string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("role", role)
		c.Locals("account_id", accountID)
		return c.Next()
	})
	app.Post("/api/v1/sessions/book", handler.BookSession)
	app.Get("/api/v1/sessions", handler.ListSessions)
	app.Get("/api/v1/sessions/search", handler.SearchSessions)
	app.Get("/api/v1/sessions/pending", handler.PendingSessions)
	app.Get("/api/v1/sessions/:id", handler.GetSession)
	app.Put("/api/v1/sessions/:id/accept", handler.AcceptSession)
	app.Put("/api/v1/sessions/:id/reject", handler.RejectSession)
	app.Put("/api/v1/sessions/:id/complete", handler.CompleteSession)
	app.Post("/api/v1/sessions/:id/settle", handler.SettleSession)
	return app
}

func TestBookSessionReturnsCreatedSession(t *testing.T) {
	service := &stubSessionService{
		bookResult: &models.Session{
			ID:              91,
			TutorID:         7,
			StudentID:       42,
			Status:          models.SessionPending,
			DurationMinutes: 60,
		},
	}
	handler := &SessionHandler{service: service, settlement: &stubSettlement{}}
	app := newSessionTestApp(handler, "student", "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/book", strings.NewReader(`{
		"tutor_id": 7,
		"starts_at": "2030-03-15T09:00:00Z",
		"duration_minutes": 60,
		"subject": "calculus",
		"price": 30
	}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if service.lastActorID != 42 {
		t.Fatalf("expected actor id 42, got %d", service.lastActorID)
	}
	if service.lastBookInput.TutorID != 7 {
		t.Fatalf("expected tutor id 7, got %d", service.lastBookInput.TutorID)
	}
	if service.lastBookInput.Price == nil || *service.lastBookInput.Price != 30 {
		t.Fatalf("expected price 30, got %+v", service.lastBookInput.Price)
	}
}

func TestBookSessionReturnsConflictForOverlappingSlot(t *testing.T) {
	service := &stubSessionService{bookErr: services.ErrSchedulingConflict}
	handler := &SessionHandler{service: service, settlement: &stubSettlement{}}
	app := newSessionTestApp(handler, "student", "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/book", strings.NewReader(`{
		"tutor_id": 7,
		"starts_at": "2030-03-15T09:00:00Z",
		"duration_minutes": 60,
		"subject": "calculus"
	}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestBookSessionForbiddenWithoutStudentCapability(t *testing.T) {
	service := &stubSessionService{}
	handler := &SessionHandler{service: service, settlement: &stubSettlement{}}
	app := newSessionTestApp(handler, "tutor", "7")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/book", strings.NewReader(`{
		"tutor_id": 9,
		"starts_at": "2030-03-15T09:00:00Z",
		"duration_minutes": 60,
		"subject": "calculus"
	}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestListSessionsPassesStatusAndTimeframe(t *testing.T) {
	service := &stubSessionService{
		listResult: []models.Session{{ID: 5, Status: models.SessionConfirmed}},
	}
	handler := &SessionHandler{service: service, settlement: &stubSettlement{}}
	app := newSessionTestApp(handler, "tutor", "9")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions?status=confirmed&timeframe=upcoming", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastRole != "tutor" {
		t.Fatalf("expected tutor view, got %q", service.lastRole)
	}
	if service.lastListFilter.Status != "confirmed" || service.lastListFilter.Timeframe != "upcoming" {
		t.Fatalf("unexpected filter: %+v", service.lastListFilter)
	}
}

func TestGetSessionReturnsNotFound(t *testing.T) {
	service := &stubSessionService{getErr: pgx.ErrNoRows}
	handler := &SessionHandler{service: service, settlement: &stubSettlement{}}
	app := newSessionTestApp(handler, "student", "42")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/999", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestAcceptSessionReturnsForbiddenForWrongTutor(t *testing.T) {
	service := &stubSessionService{transitionErr: services.ErrUnauthorized}
	handler := &SessionHandler{service: service, settlement: &stubSettlement{}}
	app := newSessionTestApp(handler, "tutor", "7")

	req := httptest.NewRequest(http.MethodPut, "/api/v1/sessions/55/accept", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if service.lastSessionID != 55 {
		t.Fatalf("expected session id 55, got %d", service.lastSessionID)
	}
}

func TestAcceptSessionReturnsUnprocessableWhenExpired(t *testing.T) {
	service := &stubSessionService{transitionErr: services.ErrExpiredSchedule}
	handler := &SessionHandler{service: service, settlement: &stubSettlement{}}
	app := newSessionTestApp(handler, "tutor", "7")

	req := httptest.NewRequest(http.MethodPut, "/api/v1/sessions/55/accept", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestCompleteSessionReturnsUpdatedSession(t *testing.T) {
	service := &stubSessionService{
		transitionRes: &models.Session{ID: 55, TutorID: 7, Status: models.SessionCompleted},
	}
	handler := &SessionHandler{service: service, settlement: &stubSettlement{}}
	app := newSessionTestApp(handler, "tutor", "7")

	req := httptest.NewRequest(http.MethodPut, "/api/v1/sessions/55/complete", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Session models.Session `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body.Session.Status != models.SessionCompleted {
		t.Fatalf("expected completed status, got %q", body.Session.Status)
	}
}

func TestSettleSessionReturnsConflictWhenAlreadySettled(t *testing.T) {
	service := &stubSessionService{
		getResult: &models.Session{ID: 88, TutorID: 7, StudentID: 42, Status: models.SessionCompleted},
	}
	settlement := &stubSettlement{err: services.ErrAlreadySettled}
	handler := &SessionHandler{service: service, settlement: settlement}
	app := newSessionTestApp(handler, "student", "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/88/settle", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	if settlement.lastSessionID != 88 {
		t.Fatalf("expected session id 88, got %d", settlement.lastSessionID)
	}
}

func TestSettleSessionReturnsPaymentRequiredOnShortfall(t *testing.T) {
	service := &stubSessionService{
		getResult: &models.Session{ID: 88, TutorID: 7, StudentID: 42, Status: models.SessionCompleted},
	}
	settlement := &stubSettlement{err: services.ErrInsufficientFunds}
	handler := &SessionHandler{service: service, settlement: settlement}
	app := newSessionTestApp(handler, "student", "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/88/settle", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", resp.StatusCode)
	}
}

func TestSearchSessionsRequiresATerm(t *testing.T) {
	service := &stubSessionService{}
	handler := &SessionHandler{service: service, settlement: &stubSettlement{}}
	app := newSessionTestApp(handler, "student", "42")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/search", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestSearchSessionsForwardsTutorName(t *testing.T) {
	service := &stubSessionService{
		searchResult: []models.SessionDetail{{Session: models.Session{ID: 3}, TutorName: "Priya"}},
	}
	handler := &SessionHandler{service: service, settlement: &stubSettlement{}}
	app := newSessionTestApp(handler, "student", "42")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/search?tutor=Priya", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastSearchTerm != "Priya" {
		t.Fatalf("expected forwarded term, got %q", service.lastSearchTerm)
	}
}

func TestMapSessionErrorDefaultsToInternalServerError(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return mapSessionError(c, errors.New("boom"))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}
