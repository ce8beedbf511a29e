package moderation

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/sunopiusme/rlguardbot/internal/db"
	guarderrors "github.com/sunopiusme/rlguardbot/internal/errors"
)

type violationStore interface {
	AppendViolation(ctx context.Context, rec *db.ViolationRecord) (int64, error)
	GetViolations(ctx context.Context, chatID, userID int64) ([]*db.ViolationRecord, error)
	CountViolationActionsSince(ctx context.Context, chatID, userID int64, actions []string, since time.Time) (int, error)
	SetViolationEnforced(ctx context.Context, id int64, enforced string) error
	GetUnenforcedViolations(ctx context.Context, chatID int64) ([]*db.ViolationRecord, error)
	GetViolationStats(ctx context.Context, chatID int64) ([]*db.ViolationStat, error)
}

// Store is the append-only violation history, the source of truth for
// escalation decisions. Persistence failures surface as ErrPersistence so
// callers fail closed.
type Store struct {
	db violationStore
}

func NewStore(db violationStore) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, rec *db.ViolationRecord) (int64, error) {
	id, err := s.db.AppendViolation(ctx, rec)
	if err != nil {
		return 0, errors.Wrap(guarderrors.ErrPersistence, err.Error())
	}
	return id, nil
}

func (s *Store) HistoryFor(ctx context.Context, chatID, userID int64) ([]*db.ViolationRecord, error) {
	records, err := s.db.GetViolations(ctx, chatID, userID)
	if err != nil {
		return nil, errors.Wrap(guarderrors.ErrPersistence, err.Error())
	}
	return records, nil
}

func (s *Store) CountSince(ctx context.Context, chatID, userID int64, since time.Time) (int, error) {
	actions := []string{string(ActionWarn), string(ActionMute), string(ActionBan), string(ActionNone)}
	count, err := s.db.CountViolationActionsSince(ctx, chatID, userID, actions, since)
	if err != nil {
		return 0, errors.Wrap(guarderrors.ErrPersistence, err.Error())
	}
	return count, nil
}

func (s *Store) CountActionsSince(ctx context.Context, chatID, userID int64, actions []ActionKind, since time.Time) (int, error) {
	names := make([]string, 0, len(actions))
	for _, action := range actions {
		names = append(names, string(action))
	}
	count, err := s.db.CountViolationActionsSince(ctx, chatID, userID, names, since)
	if err != nil {
		return 0, errors.Wrap(guarderrors.ErrPersistence, err.Error())
	}
	return count, nil
}

func (s *Store) MarkEnforced(ctx context.Context, id int64, enforced string) error {
	if err := s.db.SetViolationEnforced(ctx, id, enforced); err != nil {
		return errors.Wrap(guarderrors.ErrPersistence, err.Error())
	}
	return nil
}

// Unenforced lists decided-but-not-enforced records for admin follow-up.
func (s *Store) Unenforced(ctx context.Context, chatID int64) ([]*db.ViolationRecord, error) {
	records, err := s.db.GetUnenforcedViolations(ctx, chatID)
	if err != nil {
		return nil, errors.Wrap(guarderrors.ErrPersistence, err.Error())
	}
	return records, nil
}

func (s *Store) Stats(ctx context.Context, chatID int64) ([]*db.ViolationStat, error) {
	stats, err := s.db.GetViolationStats(ctx, chatID)
	if err != nil {
		return nil, errors.Wrap(guarderrors.ErrPersistence, err.Error())
	}
	return stats, nil
}
