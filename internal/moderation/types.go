package moderation

import (
	"time"
)

type ActionKind string

const (
	ActionNone ActionKind = "none"
	ActionWarn ActionKind = "warn"
	ActionMute ActionKind = "mute"
	ActionBan  ActionKind = "ban"
)

// Violation sources recorded in the audit trail.
const (
	SourceAuto          = "auto"
	SourceReport        = "report"
	SourceAdminOverride = "admin_override"
)

var actionRank = map[ActionKind]int{
	ActionNone: 0,
	ActionWarn: 1,
	ActionMute: 2,
	ActionBan:  3,
}

// Harsher returns the more severe of two actions. Ties keep a.
func Harsher(a, b ActionKind) ActionKind {
	if actionRank[b] > actionRank[a] {
		return b
	}
	return a
}

type (
	// Candidate is a classification result: one suspected violation with the
	// classifier's confidence in it.
	Candidate struct {
		Type       string
		Severity   int
		Confidence float64
		Reason     string
		Evidence   string
	}

	// EnforcementAction is the concrete effect to apply on the platform.
	// Duration zero on a ban means permanent.
	EnforcementAction struct {
		Kind          ActionKind
		ChatID        int64
		TargetUserID  int64
		MessageID     int
		Duration      time.Duration
		DeleteMessage bool
		Reason        string
	}

	// Outcome is the tagged result of a decision: exactly one of Action
	// (acted, record committed) or Review (queued for a human) is set, or
	// neither when the violation was recorded with no enforcement.
	Outcome struct {
		DecisionID string
		RecordID   int64
		Action     *EnforcementAction
		Review     *Candidate
		Escalated  bool
	}

	// InboundMessage is what the transport delivers for each chat message.
	InboundMessage struct {
		ChatID    int64
		UserID    int64
		MessageID int
		Text      string
		Timestamp time.Time
	}

	// Decision is the coordinator-level summary of processing one message,
	// kept for audit lookups.
	Decision struct {
		DecisionID    string
		ChatID        int64
		UserID        int64
		MessageID     int
		Candidate     *Candidate
		Corroborating []Candidate
		Outcome       *Outcome
		Executed      bool
		ExecError     string
	}

	// UserStatus is the derived history view behind /mystatus.
	UserStatus struct {
		ChatID     int64
		UserID     int64
		Level      string
		WarnCount  int
		Violations int
		LastAction time.Time
		LastType   string
	}

	ChatStats struct {
		ChatID         int64
		Total          int
		ByType         map[string]int
		ByAction       map[string]int
		TotalReports   int
		PendingReports int
	}
)

// Escalation levels derived from history, never stored directly.
const (
	LevelClean  = "clean"
	LevelWarned = "warned"
	LevelMuted  = "muted"
	LevelBanned = "banned"
)
