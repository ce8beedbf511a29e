package db

import "time"

// Violation record enforcement statuses. A record reflects what was decided;
// the enforced column reflects what the platform actually applied.
const (
	EnforcedPending = "pending"
	EnforcedDone    = "done"
	EnforcedFailed  = "failed"
	EnforcedNone    = "none"
)

// Report statuses. Pending transitions exactly once to approved or rejected.
const (
	ReportStatusPending  = "pending"
	ReportStatusApproved = "approved"
	ReportStatusRejected = "rejected"
)

type (
	// ViolationRecord is append-only: rows are never updated after creation
	// except for the enforced status companion field.
	ViolationRecord struct {
		ID         int64     `db:"id"`
		ChatID     int64     `db:"chat_id"`
		UserID     int64     `db:"user_id"`
		Type       string    `db:"type"`
		Severity   int       `db:"severity"`
		Confidence float64   `db:"confidence"`
		Source     string    `db:"source"`
		Action     string    `db:"action"`
		DurationNS int64     `db:"duration_ns"`
		Enforced   string    `db:"enforced"`
		Evidence   string    `db:"evidence"`
		DecisionID string    `db:"decision_id"`
		CreatedAt  time.Time `db:"created_at"`
	}

	Report struct {
		ID           int64      `db:"id"`
		ChatID       int64      `db:"chat_id"`
		ReporterID   int64      `db:"reporter_id"`
		TargetUserID int64      `db:"target_user_id"`
		MessageID    int        `db:"message_id"`
		MessageText  string     `db:"message_text"`
		Reason       string     `db:"reason"`
		Status       string     `db:"status"`
		Source       string     `db:"source"`
		CreatedAt    time.Time  `db:"created_at"`
		ResolvedBy   *int64     `db:"resolved_by"`
		ResolvedAt   *time.Time `db:"resolved_at"`
	}

	Reputation struct {
		UserID    int64     `db:"user_id"`
		Total     int       `db:"total"`
		Badges    string    `db:"badges"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	ReputationEvent struct {
		ID        int64     `db:"id"`
		UserID    int64     `db:"user_id"`
		EventType string    `db:"event_type"`
		Points    int       `db:"points"`
		Reason    string    `db:"reason"`
		CreatedAt time.Time `db:"created_at"`
	}

	// ViolationStat is one row of the per-chat aggregate breakdown.
	ViolationStat struct {
		Type   string `db:"type"`
		Action string `db:"action"`
		Count  int    `db:"cnt"`
	}
)
