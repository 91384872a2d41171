package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/beniljosek/peerly/internal/models"
)

type CreateSessionInput struct {
	TutorID         int64
	StudentID       int64
	StartsAt        time.Time
	DurationMinutes int
	Subject         string
	Notes           *string
	Price           *int64
}

type SessionListFilter struct {
	ActorID   int64
	Role      string
	Status    string
	Timeframe string
}

const sessionColumns = "id, tutor_id, student_id, starts_at, duration_min, subject, notes, price, status, settled, created_at, updated_at"

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(
	ctx context.Context,
	input CreateSessionInput,
) (*models.Session, error) {
	query := `
		INSERT INTO sessions (tutor_id, student_id, starts_at, duration_min, subject, notes, price, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		RETURNING ` + sessionColumns

	var session models.Session
	err := r.db.QueryRow(
		ctx,
		query,
		input.TutorID,
		input.StudentID,
		input.StartsAt,
		input.DurationMinutes,
		input.Subject,
		input.Notes,
		input.Price,
	).Scan(
		&session.ID,
		&session.TutorID,
		&session.StudentID,
		&session.StartsAt,
		&session.DurationMinutes,
		&session.Subject,
		&session.Notes,
		&session.Price,
		&session.Status,
		&session.Settled,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID int64) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	var session models.Session
	err := r.db.QueryRow(ctx, query, sessionID).Scan(
		&session.ID,
		&session.TutorID,
		&session.StudentID,
		&session.StartsAt,
		&session.DurationMinutes,
		&session.Subject,
		&session.Notes,
		&session.Price,
		&session.Status,
		&session.Settled,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) GetByIDForUpdate(
	ctx context.Context,
	sessionID int64,
) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 FOR UPDATE`

	var session models.Session
	err := r.db.QueryRow(ctx, query, sessionID).Scan(
		&session.ID,
		&session.TutorID,
		&session.StudentID,
		&session.StartsAt,
		&session.DurationMinutes,
		&session.Subject,
		&session.Notes,
		&session.Price,
		&session.Status,
		&session.Settled,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) List(
	ctx context.Context,
	filter SessionListFilter,
) ([]models.Session, error) {
	actorColumn := "student_id"
	if filter.Role == "tutor" {
		actorColumn = "tutor_id"
	}

	args := []any{filter.ActorID}
	whereParts := []string{fmt.Sprintf("%s = $1", actorColumn)}

	if status := strings.TrimSpace(filter.Status); status != "" {
		args = append(args, status)
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", len(args)))
	}

	switch strings.TrimSpace(filter.Timeframe) {
	case "upcoming":
		whereParts = append(
			whereParts,
			"(starts_at + (duration_min * INTERVAL '1 minute')) > NOW()",
		)
	case "past":
		whereParts = append(
			whereParts,
			"(starts_at + (duration_min * INTERVAL '1 minute')) <= NOW()",
		)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM sessions
		WHERE %s
		ORDER BY starts_at ASC, id ASC
	`, sessionColumns, strings.Join(whereParts, " AND "))

	return r.querySessions(ctx, query, args...)
}

func (r *SessionRepository) PendingByTutor(ctx context.Context, tutorID int64) ([]models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE tutor_id = $1 AND status = 'pending'
		ORDER BY starts_at ASC, id ASC
	`
	return r.querySessions(ctx, query, tutorID)
}

func (r *SessionRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	sessionID int64,
	currentStatus models.SessionStatus,
	nextStatus models.SessionStatus,
) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + sessionColumns

	var session models.Session
	err := r.db.QueryRow(ctx, query, sessionID, currentStatus, nextStatus).Scan(
		&session.ID,
		&session.TutorID,
		&session.StudentID,
		&session.StartsAt,
		&session.DurationMinutes,
		&session.Subject,
		&session.Notes,
		&session.Price,
		&session.Status,
		&session.Settled,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) MarkSettled(ctx context.Context, sessionID int64) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET settled = TRUE, updated_at = NOW()
		WHERE id = $1 AND settled = FALSE
		RETURNING ` + sessionColumns

	var session models.Session
	err := r.db.QueryRow(ctx, query, sessionID).Scan(
		&session.ID,
		&session.TutorID,
		&session.StudentID,
		&session.StartsAt,
		&session.DurationMinutes,
		&session.Subject,
		&session.Notes,
		&session.Price,
		&session.Status,
		&session.Settled,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// HasConflict reports whether the tutor already has a pending or confirmed
// session overlapping the half-open interval [requestedTime,
// requestedTime+duration). Cancelled and completed sessions never block a
// slot; intervals that merely touch do not overlap.
func (r *SessionRepository) HasConflict(
	ctx context.Context,
	tutorID int64,
	requestedTime time.Time,
	durationMinutes int,
) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM sessions
			WHERE tutor_id = $1
			  AND status IN ('pending', 'confirmed')
			  AND starts_at < ($2::timestamptz + ($3::int * INTERVAL '1 minute'))
			  AND (starts_at + (duration_min * INTERVAL '1 minute')) > $2::timestamptz
		)
	`
	var hasConflict bool
	if err := r.db.QueryRow(ctx, query, tutorID, requestedTime, durationMinutes).Scan(&hasConflict); err != nil {
		return false, err
	}
	return hasConflict, nil
}

// ListUnsettled returns ids of completed sessions whose settlement has not
// run yet, oldest first.
func (r *SessionRepository) ListUnsettled(ctx context.Context) ([]int64, error) {
	query := `
		SELECT id
		FROM sessions
		WHERE status = 'completed' AND settled = FALSE
		ORDER BY updated_at ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *SessionRepository) SearchByTutorName(ctx context.Context, tutorName string) ([]models.SessionDetail, error) {
	query := sessionSearchQuery("LOWER(t.name) LIKE LOWER('%' || $1 || '%')")
	return r.querySessionDetails(ctx, query, tutorName)
}

func (r *SessionRepository) SearchBySubject(ctx context.Context, subject string) ([]models.SessionDetail, error) {
	query := sessionSearchQuery("LOWER(s.subject) LIKE LOWER('%' || $1 || '%')")
	return r.querySessionDetails(ctx, query, subject)
}

func (r *SessionRepository) Search(ctx context.Context, term string) ([]models.SessionDetail, error) {
	query := sessionSearchQuery(
		"LOWER(t.name) LIKE LOWER('%' || $1 || '%') OR LOWER(s.subject) LIKE LOWER('%' || $1 || '%')",
	)
	return r.querySessionDetails(ctx, query, term)
}

func sessionSearchQuery(condition string) string {
	return fmt.Sprintf(`
		SELECT s.id, s.tutor_id, s.student_id, s.starts_at, s.duration_min, s.subject, s.notes,
		       s.price, s.status, s.settled, s.created_at, s.updated_at, t.name, u.name
		FROM sessions s
		JOIN accounts t ON t.id = s.tutor_id
		JOIN accounts u ON u.id = s.student_id
		WHERE %s
		ORDER BY s.starts_at ASC, s.id ASC
	`, condition)
}

func (r *SessionRepository) querySessions(ctx context.Context, query string, args ...any) ([]models.Session, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		var session models.Session
		if err := rows.Scan(
			&session.ID,
			&session.TutorID,
			&session.StudentID,
			&session.StartsAt,
			&session.DurationMinutes,
			&session.Subject,
			&session.Notes,
			&session.Price,
			&session.Status,
			&session.Settled,
			&session.CreatedAt,
			&session.UpdatedAt,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

func (r *SessionRepository) querySessionDetails(ctx context.Context, query string, args ...any) ([]models.SessionDetail, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	details := make([]models.SessionDetail, 0)
	for rows.Next() {
		var detail models.SessionDetail
		if err := rows.Scan(
			&detail.ID,
			&detail.TutorID,
			&detail.StudentID,
			&detail.StartsAt,
			&detail.DurationMinutes,
			&detail.Subject,
			&detail.Notes,
			&detail.Price,
			&detail.Status,
			&detail.Settled,
			&detail.CreatedAt,
			&detail.UpdatedAt,
			&detail.TutorName,
			&detail.StudentName,
		); err != nil {
			return nil, err
		}
		details = append(details, detail)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return details, nil
}
