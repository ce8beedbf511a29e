package moderation

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/sunopiusme/rlguardbot/internal/db"
	guarderrors "github.com/sunopiusme/rlguardbot/internal/errors"
)

type reportStore interface {
	CreateReport(ctx context.Context, report *db.Report) (*db.Report, error)
	GetReport(ctx context.Context, id int64) (*db.Report, error)
	GetPendingReports(ctx context.Context, chatID int64) ([]*db.Report, error)
	FindRecentPendingReport(ctx context.Context, chatID, reporterID int64, messageID int, since time.Time) (*db.Report, error)
	ResolveReport(ctx context.Context, id int64, status string, adminID int64, resolvedAt time.Time) (bool, error)
}

type ReviewDecision string

const (
	ReviewApprove ReviewDecision = "approve"
	ReviewReject  ReviewDecision = "reject"
)

// ReportQueue holds manually submitted and synthetic (low-confidence
// auto-detected) reports pending admin review.
type ReportQueue struct {
	db          reportStore
	engine      *Engine
	classifier  *Classifier
	dedupWindow time.Duration
}

func NewReportQueue(db reportStore, engine *Engine, classifier *Classifier, dedupWindow time.Duration) *ReportQueue {
	return &ReportQueue{
		db:          db,
		engine:      engine,
		classifier:  classifier,
		dedupWindow: dedupWindow,
	}
}

type SubmitRequest struct {
	ChatID       int64
	ReporterID   int64
	TargetUserID int64
	MessageID    int
	MessageText  string
	Reason       string
	Source       string
}

// Submit records a pending report. Duplicate reports are accepted as
// distinct entries unless a dedup window is configured.
func (q *ReportQueue) Submit(ctx context.Context, req SubmitRequest) (int64, error) {
	if req.ChatID == 0 || req.TargetUserID == 0 || req.MessageID == 0 {
		return 0, errors.Wrap(guarderrors.ErrValidation, "report must reference a message and its author")
	}
	if req.Source == "" {
		req.Source = SourceReport
	}

	if q.dedupWindow > 0 && req.ReporterID != 0 {
		existing, err := q.db.FindRecentPendingReport(ctx, req.ChatID, req.ReporterID, req.MessageID, time.Now().Add(-q.dedupWindow))
		if err != nil {
			return 0, errors.Wrap(guarderrors.ErrPersistence, err.Error())
		}
		if existing != nil {
			return existing.ID, nil
		}
	}

	report, err := q.db.CreateReport(ctx, &db.Report{
		ChatID:       req.ChatID,
		ReporterID:   req.ReporterID,
		TargetUserID: req.TargetUserID,
		MessageID:    req.MessageID,
		MessageText:  req.MessageText,
		Reason:       req.Reason,
		Status:       db.ReportStatusPending,
		Source:       req.Source,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		return 0, errors.Wrap(guarderrors.ErrPersistence, err.Error())
	}
	return report.ID, nil
}

// ListPending returns pending reports in submission order, oldest first.
func (q *ReportQueue) ListPending(ctx context.Context, chatID int64) ([]*db.Report, error) {
	reports, err := q.db.GetPendingReports(ctx, chatID)
	if err != nil {
		return nil, errors.Wrap(guarderrors.ErrPersistence, err.Error())
	}
	return reports, nil
}

// Resolve transitions a pending report exactly once. Approval synthesizes a
// violation candidate and funnels it through the same escalation path as
// auto-detection; the returned outcome carries any enforcement action for
// the caller to execute. Rejection is terminal with no further effect.
func (q *ReportQueue) Resolve(ctx context.Context, reportID, adminID int64, decision ReviewDecision) (*Outcome, error) {
	if decision != ReviewApprove && decision != ReviewReject {
		return nil, errors.Wrapf(guarderrors.ErrValidation, "unknown decision %q", decision)
	}

	report, err := q.db.GetReport(ctx, reportID)
	if err != nil {
		return nil, errors.Wrap(guarderrors.ErrPersistence, err.Error())
	}
	if report == nil {
		return nil, errors.Wrapf(guarderrors.ErrNotFound, "report %d", reportID)
	}
	if report.Status != db.ReportStatusPending {
		return nil, errors.Wrapf(guarderrors.ErrAlreadyResolved, "report %d is %s", reportID, report.Status)
	}

	status := db.ReportStatusRejected
	if decision == ReviewApprove {
		status = db.ReportStatusApproved
	}
	// The status guard makes the transition exactly-once even when two
	// admins race; only the winner proceeds to enforcement.
	won, err := q.db.ResolveReport(ctx, reportID, status, adminID, time.Now())
	if err != nil {
		return nil, errors.Wrap(guarderrors.ErrPersistence, err.Error())
	}
	if !won {
		return nil, errors.Wrapf(guarderrors.ErrAlreadyResolved, "report %d", reportID)
	}

	if decision == ReviewReject {
		return nil, nil
	}

	cand := q.classifier.ClassifyReport(report.MessageText, report.Reason)
	outcome, err := q.engine.Decide(ctx, report.ChatID, report.TargetUserID, report.MessageID, SourceReport, cand, Confirmed())
	if err != nil {
		log.WithError(err).WithField("report_id", reportID).Error("approved report could not be committed")
		return nil, err
	}
	return outcome, nil
}
