package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sunopiusme/rlguardbot/internal/db"
)

func (s *sqliteClient) AddReputationEvent(ctx context.Context, event *db.ReputationEvent) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		INSERT INTO reputation_events (user_id, event_type, points, reason, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.UserID,
		event.EventType,
		event.Points,
		event.Reason,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reputation event: %w", err)
	}
	return nil
}

func (s *sqliteClient) UpsertReputation(ctx context.Context, rep *db.Reputation) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		INSERT INTO reputation (user_id, total, badges, updated_at)
		VALUES (:user_id, :total, :badges, :updated_at)
		ON CONFLICT(user_id) DO UPDATE SET
		total = excluded.total,
		badges = excluded.badges,
		updated_at = excluded.updated_at
	`
	if _, err := s.db.NamedExecContext(ctx, query, rep); err != nil {
		return fmt.Errorf("upsert reputation: %w", err)
	}
	return nil
}

func (s *sqliteClient) GetReputation(ctx context.Context, userID int64) (*db.Reputation, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var rep db.Reputation
	err := s.db.GetContext(ctx, &rep, `SELECT * FROM reputation WHERE user_id = ?`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select reputation: %w", err)
	}
	return &rep, nil
}

func (s *sqliteClient) CountReputationEvents(ctx context.Context, userID int64, eventType string) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM reputation_events WHERE user_id = ? AND event_type = ?
	`, userID, eventType)
	if err != nil {
		return 0, fmt.Errorf("count reputation events: %w", err)
	}
	return count, nil
}

func (s *sqliteClient) GetTopReputation(ctx context.Context, limit int) ([]*db.Reputation, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var reps []*db.Reputation
	err := s.db.SelectContext(ctx, &reps, `
		SELECT * FROM reputation ORDER BY total DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("select top reputation: %w", err)
	}
	return reps, nil
}
