package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/beniljosek/peerly/internal/models"
	"github.com/beniljosek/peerly/internal/repository"
)

var ErrAlreadySettled = errors.New("session already settled")

// SettlementService moves a completed session's supercoins from student to
// tutor exactly once. Completion and payment are decoupled: a settlement
// that fails on funds leaves the session completed and unsettled, and the
// sweep retries it on the next pass.
type SettlementService struct {
	db          *pgxpool.Pool
	sessionRepo *repository.SessionRepository
}

func NewSettlementService(db *pgxpool.Pool, sessionRepo *repository.SessionRepository) *SettlementService {
	return &SettlementService{db: db, sessionRepo: sessionRepo}
}

// Settle pays out one session. The session row is locked before the
// settled flag is read, so a settle racing itself observes the flag flip
// and fails with ErrAlreadySettled instead of moving funds twice.
func (s *SettlementService) Settle(ctx context.Context, sessionID int64) (*models.Session, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txSessionRepo := repository.NewSessionRepository(tx)
	txLedgerRepo := repository.NewLedgerRepository(tx)

	session, err := txSessionRepo.GetByIDForUpdate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionCompleted {
		return nil, ErrInvalidTransition
	}
	if session.Settled {
		return nil, ErrAlreadySettled
	}

	if session.Price != nil && *session.Price > 0 {
		err := transferFunds(
			ctx,
			txLedgerRepo,
			session.StudentID,
			session.TutorID,
			*session.Price,
			models.EntryTypeSettlement,
			fmt.Sprintf("settlement for session %d (%s)", session.ID, session.Subject),
		)
		if err != nil {
			return nil, err
		}
	}

	settled, err := txSessionRepo.MarkSettled(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return settled, nil
}

// SettleDue sweeps every completed, unsettled session and returns how many
// were settled. Sessions whose student cannot cover the price are skipped
// and picked up again on the next sweep.
func (s *SettlementService) SettleDue(ctx context.Context) (int, error) {
	ids, err := s.sessionRepo.ListUnsettled(ctx)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, id := range ids {
		if _, err := s.Settle(ctx, id); err != nil {
			switch {
			case errors.Is(err, ErrInsufficientFunds):
				log.WithField("session_id", id).Warn("settlement deferred: insufficient supercoins")
			case errors.Is(err, ErrAlreadySettled), errors.Is(err, ErrInvalidTransition):
				// settled or transitioned concurrently, nothing to do
			default:
				log.WithField("session_id", id).WithError(err).Error("settlement failed")
			}
			continue
		}
		settled++
	}

	return settled, nil
}
