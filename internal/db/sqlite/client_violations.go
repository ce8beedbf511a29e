package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sunopiusme/rlguardbot/internal/db"
)

func (s *sqliteClient) AppendViolation(ctx context.Context, rec *db.ViolationRecord) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		INSERT INTO violations (chat_id, user_id, type, severity, confidence, source, action,
			duration_ns, enforced, evidence, decision_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		rec.ChatID,
		rec.UserID,
		rec.Type,
		rec.Severity,
		rec.Confidence,
		rec.Source,
		rec.Action,
		rec.DurationNS,
		rec.Enforced,
		rec.Evidence,
		rec.DecisionID,
		rec.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert violation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("violation insert id: %w", err)
	}
	rec.ID = id
	return id, nil
}

// GetViolations returns the full history in creation order, ties broken by
// insertion sequence so the ordering stays stable for audit display.
func (s *sqliteClient) GetViolations(ctx context.Context, chatID, userID int64) ([]*db.ViolationRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var records []*db.ViolationRecord
	err := s.db.SelectContext(ctx, &records, `
		SELECT * FROM violations
		WHERE chat_id = ? AND user_id = ?
		ORDER BY created_at ASC, id ASC
	`, chatID, userID)
	if err != nil {
		return nil, fmt.Errorf("select violations: %w", err)
	}
	return records, nil
}

func (s *sqliteClient) CountViolationActionsSince(ctx context.Context, chatID, userID int64, actions []string, since time.Time) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	query, args, err := sqlx.In(`
		SELECT COUNT(*) FROM violations
		WHERE chat_id = ? AND user_id = ? AND action IN (?) AND created_at >= ?
	`, chatID, userID, actions, since)
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}
	query = s.db.Rebind(query)

	var count int
	if err := s.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count violation actions: %w", err)
	}
	return count, nil
}

func (s *sqliteClient) SetViolationEnforced(ctx context.Context, id int64, enforced string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx, `UPDATE violations SET enforced = ? WHERE id = ?`, enforced, id)
	if err != nil {
		return fmt.Errorf("set violation enforced: %w", err)
	}
	return nil
}

// GetUnenforcedViolations lists decided-but-not-enforced records for admin
// follow-up.
func (s *sqliteClient) GetUnenforcedViolations(ctx context.Context, chatID int64) ([]*db.ViolationRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var records []*db.ViolationRecord
	err := s.db.SelectContext(ctx, &records, `
		SELECT * FROM violations
		WHERE chat_id = ? AND enforced = ?
		ORDER BY created_at ASC, id ASC
	`, chatID, db.EnforcedFailed)
	if err != nil {
		return nil, fmt.Errorf("select unenforced violations: %w", err)
	}
	return records, nil
}

func (s *sqliteClient) GetViolationStats(ctx context.Context, chatID int64) ([]*db.ViolationStat, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var stats []*db.ViolationStat
	err := s.db.SelectContext(ctx, &stats, `
		SELECT type, action, COUNT(*) AS cnt FROM violations
		WHERE chat_id = ?
		GROUP BY type, action
		ORDER BY cnt DESC
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("select violation stats: %w", err)
	}
	return stats, nil
}
