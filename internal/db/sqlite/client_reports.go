package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sunopiusme/rlguardbot/internal/db"
)

func (s *sqliteClient) CreateReport(ctx context.Context, report *db.Report) (*db.Report, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		INSERT INTO reports (chat_id, reporter_id, target_user_id, message_id, message_text,
			reason, status, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		report.ChatID,
		report.ReporterID,
		report.TargetUserID,
		report.MessageID,
		report.MessageText,
		report.Reason,
		report.Status,
		report.Source,
		report.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("report insert id: %w", err)
	}
	report.ID = id
	return report, nil
}

func (s *sqliteClient) GetReport(ctx context.Context, id int64) (*db.Report, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var report db.Report
	err := s.db.GetContext(ctx, &report, `SELECT * FROM reports WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select report: %w", err)
	}
	return &report, nil
}

// GetPendingReports returns pending reports oldest first for fair review
// queuing.
func (s *sqliteClient) GetPendingReports(ctx context.Context, chatID int64) ([]*db.Report, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var reports []*db.Report
	err := s.db.SelectContext(ctx, &reports, `
		SELECT * FROM reports
		WHERE chat_id = ? AND status = ?
		ORDER BY created_at ASC, id ASC
	`, chatID, db.ReportStatusPending)
	if err != nil {
		return nil, fmt.Errorf("select pending reports: %w", err)
	}
	return reports, nil
}

func (s *sqliteClient) FindRecentPendingReport(ctx context.Context, chatID, reporterID int64, messageID int, since time.Time) (*db.Report, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var report db.Report
	err := s.db.GetContext(ctx, &report, `
		SELECT * FROM reports
		WHERE chat_id = ? AND reporter_id = ? AND message_id = ? AND status = ? AND created_at >= ?
		ORDER BY created_at DESC
		LIMIT 1
	`, chatID, reporterID, messageID, db.ReportStatusPending, since)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select recent pending report: %w", err)
	}
	return &report, nil
}

// ResolveReport flips a pending report to a terminal status. The status
// guard in the WHERE clause makes the transition exactly-once even under
// concurrent resolution attempts; the bool result reports whether this call
// won the transition.
func (s *sqliteClient) ResolveReport(ctx context.Context, id int64, status string, adminID int64, resolvedAt time.Time) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE reports
		SET status = ?, resolved_by = ?, resolved_at = ?
		WHERE id = ? AND status = ?
	`, status, adminID, resolvedAt, id, db.ReportStatusPending)
	if err != nil {
		return false, fmt.Errorf("resolve report: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve report rows affected: %w", err)
	}
	return affected == 1, nil
}

func (s *sqliteClient) GetChatsWithPendingReports(ctx context.Context) ([]int64, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var chatIDs []int64
	err := s.db.SelectContext(ctx, &chatIDs, `
		SELECT DISTINCT chat_id FROM reports WHERE status = ? ORDER BY chat_id
	`, db.ReportStatusPending)
	if err != nil {
		return nil, fmt.Errorf("select chats with pending reports: %w", err)
	}
	return chatIDs, nil
}

func (s *sqliteClient) CountReports(ctx context.Context, chatID int64) (int, int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var counts struct {
		Total   int `db:"total"`
		Pending int `db:"pending"`
	}
	err := s.db.GetContext(ctx, &counts, `
		SELECT COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS pending
		FROM reports WHERE chat_id = ?
	`, db.ReportStatusPending, chatID)
	if err != nil {
		return 0, 0, fmt.Errorf("count reports: %w", err)
	}
	return counts.Total, counts.Pending, nil
}
