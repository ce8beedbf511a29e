package db

import (
	"context"
	"time"
)

type Client interface {
	Close() error

	AppendViolation(ctx context.Context, rec *ViolationRecord) (int64, error)
	GetViolations(ctx context.Context, chatID, userID int64) ([]*ViolationRecord, error)
	CountViolationActionsSince(ctx context.Context, chatID, userID int64, actions []string, since time.Time) (int, error)
	SetViolationEnforced(ctx context.Context, id int64, enforced string) error
	GetUnenforcedViolations(ctx context.Context, chatID int64) ([]*ViolationRecord, error)
	GetViolationStats(ctx context.Context, chatID int64) ([]*ViolationStat, error)

	CreateReport(ctx context.Context, report *Report) (*Report, error)
	GetReport(ctx context.Context, id int64) (*Report, error)
	GetPendingReports(ctx context.Context, chatID int64) ([]*Report, error)
	FindRecentPendingReport(ctx context.Context, chatID, reporterID int64, messageID int, since time.Time) (*Report, error)
	ResolveReport(ctx context.Context, id int64, status string, adminID int64, resolvedAt time.Time) (bool, error)
	CountReports(ctx context.Context, chatID int64) (total int, pending int, err error)
	GetChatsWithPendingReports(ctx context.Context) ([]int64, error)

	AddReputationEvent(ctx context.Context, event *ReputationEvent) error
	UpsertReputation(ctx context.Context, rep *Reputation) error
	GetReputation(ctx context.Context, userID int64) (*Reputation, error)
	CountReputationEvents(ctx context.Context, userID int64, eventType string) (int, error)
	GetTopReputation(ctx context.Context, limit int) ([]*Reputation, error)

	GetKV(ctx context.Context, key string) (string, error)
	SetKV(ctx context.Context, key string, value string) error
}
