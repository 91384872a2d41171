package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/beniljosek/peerly/internal/models"
	"github.com/beniljosek/peerly/internal/repository"
)

var (
	ErrTutorNotFound      = errors.New("tutor not found")
	ErrStudentNotFound    = errors.New("student not found")
	ErrInactiveAccount    = errors.New("account is not active")
	ErrRoleViolation      = errors.New("account lacks the required capability")
	ErrInvalidSchedule    = errors.New("session must be scheduled in the future")
	ErrSchedulingConflict = errors.New("tutor is not available at the requested time")
	ErrExpiredSchedule    = errors.New("session start time has already passed")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrUnauthorized       = errors.New("not authorized to act on this session")
	ErrInvalidInput       = errors.New("invalid input")
)

type accountReader interface {
	GetByID(ctx context.Context, id int64) (*models.Account, error)
}

type SessionService struct {
	db          *pgxpool.Pool
	sessionRepo *repository.SessionRepository
	accountRepo accountReader
}

func NewSessionService(
	db *pgxpool.Pool,
	sessionRepo *repository.SessionRepository,
	accountRepo accountReader,
) *SessionService {
	return &SessionService{
		db:          db,
		sessionRepo: sessionRepo,
		accountRepo: accountRepo,
	}
}

type BookSessionInput struct {
	TutorID         int64
	StartsAt        time.Time
	DurationMinutes int
	Subject         string
	Notes           *string
	Price           *int64
}

// BookSession validates the request and creates a pending session. The
// conflict check and the insert share one transaction under a
// tutor-scoped advisory lock, so two concurrent bookings for overlapping
// slots cannot both pass the check before either row exists. No supercoins
// move at booking time; payment waits for settlement.
func (s *SessionService) BookSession(
	ctx context.Context,
	studentID int64,
	input BookSessionInput,
) (*models.Session, error) {
	if input.TutorID <= 0 || studentID <= 0 {
		return nil, ErrInvalidInput
	}
	if input.TutorID == studentID {
		return nil, ErrInvalidInput
	}
	if input.Price != nil && *input.Price < 0 {
		return nil, ErrInvalidInput
	}

	tutor, err := s.accountRepo.GetByID(ctx, input.TutorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTutorNotFound
		}
		return nil, err
	}
	if !tutor.IsActive {
		return nil, ErrInactiveAccount
	}
	if !tutor.IsTutor {
		return nil, ErrRoleViolation
	}

	student, err := s.accountRepo.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	if !student.IsActive {
		return nil, ErrInactiveAccount
	}
	if !student.IsStudent {
		return nil, ErrRoleViolation
	}

	if !input.StartsAt.After(time.Now().UTC()) {
		return nil, ErrInvalidSchedule
	}
	if input.DurationMinutes <= 0 {
		return nil, ErrInvalidSchedule
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txSessionRepo := repository.NewSessionRepository(tx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", input.TutorID); err != nil {
		return nil, err
	}

	hasConflict, err := txSessionRepo.HasConflict(
		ctx,
		input.TutorID,
		input.StartsAt.UTC(),
		input.DurationMinutes,
	)
	if err != nil {
		return nil, err
	}
	if hasConflict {
		return nil, ErrSchedulingConflict
	}

	session, err := txSessionRepo.Create(ctx, repository.CreateSessionInput{
		TutorID:         input.TutorID,
		StudentID:       studentID,
		StartsAt:        input.StartsAt.UTC(),
		DurationMinutes: input.DurationMinutes,
		Subject:         strings.TrimSpace(input.Subject),
		Notes:           input.Notes,
		Price:           input.Price,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return session, nil
}

// CheckAvailability reports whether the tutor is free for the whole
// requested window. Pure read; bookers still go through BookSession's
// locked check.
func (s *SessionService) CheckAvailability(
	ctx context.Context,
	tutorID int64,
	requestedTime time.Time,
	durationMins int,
) (bool, error) {
	hasConflict, err := s.sessionRepo.HasConflict(ctx, tutorID, requestedTime.UTC(), durationMins)
	if err != nil {
		return false, err
	}
	return !hasConflict, nil
}

// Accept moves a pending session to confirmed. Only the session's tutor
// may accept, and only while the start time is still in the future.
func (s *SessionService) Accept(ctx context.Context, sessionID, actingTutorID int64) (*models.Session, error) {
	return s.transition(ctx, sessionID, actingTutorID, models.SessionPending, models.SessionConfirmed, true)
}

// Reject moves a pending session to cancelled, freeing the tutor's slot.
func (s *SessionService) Reject(ctx context.Context, sessionID, actingTutorID int64) (*models.Session, error) {
	return s.transition(ctx, sessionID, actingTutorID, models.SessionPending, models.SessionCancelled, false)
}

// Complete moves a confirmed session to completed. Settlement is a
// separate step; see SettlementService.
func (s *SessionService) Complete(ctx context.Context, sessionID, actingTutorID int64) (*models.Session, error) {
	return s.transition(ctx, sessionID, actingTutorID, models.SessionConfirmed, models.SessionCompleted, false)
}

// transition runs one lifecycle step. The session row is locked for the
// whole read-check-write sequence and the status update is conditional on
// the expected current status, so two racing transitions cannot both
// succeed.
func (s *SessionService) transition(
	ctx context.Context,
	sessionID int64,
	actingTutorID int64,
	expected models.SessionStatus,
	next models.SessionStatus,
	requireFutureStart bool,
) (*models.Session, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txSessionRepo := repository.NewSessionRepository(tx)

	session, err := txSessionRepo.GetByIDForUpdate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.TutorID != actingTutorID {
		return nil, ErrUnauthorized
	}
	if session.Status != expected || !session.Status.CanTransition(next) {
		return nil, ErrInvalidTransition
	}
	if requireFutureStart && !session.StartsAt.After(time.Now().UTC()) {
		return nil, ErrExpiredSchedule
	}

	updated, err := txSessionRepo.UpdateStatusIfCurrent(ctx, sessionID, expected, next)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return updated, nil
}

func (s *SessionService) GetSession(
	ctx context.Context,
	actorID int64,
	sessionID int64,
) (*models.Session, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.TutorID != actorID && session.StudentID != actorID {
		return nil, ErrUnauthorized
	}
	return session, nil
}

func (s *SessionService) ListSessions(
	ctx context.Context,
	actorID int64,
	role string,
	filter repository.SessionListFilter,
) ([]models.Session, error) {
	return s.sessionRepo.List(ctx, repository.SessionListFilter{
		ActorID:   actorID,
		Role:      role,
		Status:    filter.Status,
		Timeframe: filter.Timeframe,
	})
}

func (s *SessionService) PendingForTutor(ctx context.Context, tutorID int64) ([]models.Session, error) {
	tutor, err := s.accountRepo.GetByID(ctx, tutorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTutorNotFound
		}
		return nil, err
	}
	if !tutor.IsTutor {
		return nil, ErrRoleViolation
	}
	return s.sessionRepo.PendingByTutor(ctx, tutorID)
}

func (s *SessionService) SearchByTutorName(ctx context.Context, tutorName string) ([]models.SessionDetail, error) {
	tutorName = strings.TrimSpace(tutorName)
	if tutorName == "" {
		return nil, ErrInvalidInput
	}
	return s.sessionRepo.SearchByTutorName(ctx, tutorName)
}

func (s *SessionService) SearchBySubject(ctx context.Context, subject string) ([]models.SessionDetail, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, ErrInvalidInput
	}
	return s.sessionRepo.SearchBySubject(ctx, subject)
}

func (s *SessionService) Search(ctx context.Context, term string) ([]models.SessionDetail, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, ErrInvalidInput
	}
	return s.sessionRepo.Search(ctx, term)
}
