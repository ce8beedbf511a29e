package moderation

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/sunopiusme/rlguardbot/internal/db"
	guarderrors "github.com/sunopiusme/rlguardbot/internal/errors"
	"github.com/sunopiusme/rlguardbot/internal/observability"
)

const maxRecentDecisions = 1024

// decisionKey scopes cached decisions to a chat; message ids are only unique
// within one chat.
type decisionKey struct {
	ChatID    int64
	MessageID int
}

// ActionExecutor applies an enforcement action on the platform. Implemented
// by the transport layer.
type ActionExecutor interface {
	Execute(ctx context.Context, action *EnforcementAction) error
}

type reportCounter interface {
	CountReports(ctx context.Context, chatID int64) (int, int, error)
}

// Coordinator is the single entry point the messaging layer calls into. It
// orders classification, flood detection, escalation and execution; it makes
// no moderation decisions of its own.
type Coordinator struct {
	classifier *Classifier
	flood      *FloodDetector
	engine     *Engine
	store      *Store
	queue      *ReportQueue
	executor   ActionExecutor
	reputation *ReputationService
	reports    reportCounter

	userLocks *xsync.MapOf[floodKey, *sync.Mutex]
	recent    *lru.Cache[decisionKey, *Decision]
}

func NewCoordinator(
	classifier *Classifier,
	flood *FloodDetector,
	engine *Engine,
	store *Store,
	queue *ReportQueue,
	executor ActionExecutor,
	reputation *ReputationService,
	reports reportCounter,
) (*Coordinator, error) {
	recent, err := lru.New[decisionKey, *Decision](maxRecentDecisions)
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		classifier: classifier,
		flood:      flood,
		engine:     engine,
		store:      store,
		queue:      queue,
		executor:   executor,
		reputation: reputation,
		reports:    reports,
		userLocks:  xsync.NewMapOf[floodKey, *sync.Mutex](),
		recent:     recent,
	}, nil
}

// ProcessMessage runs the full decision path for one inbound message. A nil
// decision means no rule fired.
func (c *Coordinator) ProcessMessage(ctx context.Context, msg *InboundMessage) (*Decision, error) {
	ctx, span := otel.Tracer("moderation").Start(ctx, "process-message")
	defer span.End()
	done := observability.StartDecision()

	candidates := c.classifier.Classify(msg.Text)
	if c.flood.RecordAndCheck(msg.ChatID, msg.UserID, msg.Timestamp) {
		candidates = append(candidates, Candidate{
			Type:       "flood",
			Severity:   c.engine.rules.Severity("flood"),
			Confidence: confidenceFlood,
			Reason:     "message rate over flood threshold",
			Evidence:   evidenceSnippet(msg.Text),
		})
	}
	if len(candidates) == 0 {
		done("clean")
		return nil, nil
	}

	acted, corroborating := mergeCandidates(candidates)
	for _, extra := range corroborating {
		acted.Reason += "; also: " + extra.Reason
	}

	decision := &Decision{
		ChatID:        msg.ChatID,
		UserID:        msg.UserID,
		MessageID:     msg.MessageID,
		Candidate:     &acted,
		Corroborating: corroborating,
	}

	// Serialize decisions per (chat,user); unrelated users stay unlocked.
	unlock := c.lockUser(msg.ChatID, msg.UserID)
	outcome, err := c.engine.Decide(ctx, msg.ChatID, msg.UserID, msg.MessageID, SourceAuto, acted)
	unlock()
	if err != nil {
		done("error")
		return nil, err
	}
	decision.Outcome = outcome
	decision.DecisionID = outcome.DecisionID
	observability.RecordViolation(acted.Type, SourceAuto)

	if outcome.Review != nil {
		if _, err := c.queue.Submit(ctx, SubmitRequest{
			ChatID:       msg.ChatID,
			ReporterID:   0,
			TargetUserID: msg.UserID,
			MessageID:    msg.MessageID,
			MessageText:  msg.Text,
			Reason:       outcome.Review.Reason,
			Source:       SourceAuto,
		}); err != nil {
			done("error")
			return nil, err
		}
		observability.RecordReviewQueued()
		done("review")
		c.recent.Add(decisionKey{ChatID: msg.ChatID, MessageID: msg.MessageID}, decision)
		return decision, nil
	}

	c.executeOutcome(ctx, decision)
	done("acted")
	c.recent.Add(decisionKey{ChatID: msg.ChatID, MessageID: msg.MessageID}, decision)
	return decision, nil
}

// executeOutcome applies the decided action and records what was actually
// enforced. Execution failure never rolls back the committed record; the
// discrepancy stays queryable via Unenforced.
func (c *Coordinator) executeOutcome(ctx context.Context, decision *Decision) {
	outcome := decision.Outcome
	if outcome == nil || outcome.Action == nil {
		return
	}
	action := outcome.Action
	observability.RecordAction(string(action.Kind))

	if err := c.executor.Execute(ctx, action); err != nil {
		decision.ExecError = err.Error()
		observability.Logger.Warn("enforcement failed",
			zap.String("decision_id", outcome.DecisionID),
			zap.Int64("chat_id", action.ChatID),
			zap.Int64("user_id", action.TargetUserID),
			zap.String("action", string(action.Kind)),
			zap.Error(err),
		)
		if err := c.store.MarkEnforced(ctx, outcome.RecordID, db.EnforcedFailed); err != nil {
			log.WithError(err).Error("cant mark record enforcement failure")
		}
		return
	}

	decision.Executed = true
	if err := c.store.MarkEnforced(ctx, outcome.RecordID, db.EnforcedDone); err != nil {
		log.WithError(err).Error("cant mark record enforced")
	}
	if action.Kind != ActionNone {
		if _, err := c.reputation.ApplyViolation(ctx, action.TargetUserID, action.Kind); err != nil {
			log.WithError(err).Error("cant apply reputation debit")
		}
	}
}

// mergeCandidates picks the acted-upon candidate: highest severity wins,
// confidence breaks ties. The rest are kept as corroborating evidence.
func mergeCandidates(candidates []Candidate) (Candidate, []Candidate) {
	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Severity > candidates[best].Severity ||
			(candidates[i].Severity == candidates[best].Severity && candidates[i].Confidence > candidates[best].Confidence) {
			best = i
		}
	}
	acted := candidates[best]
	rest := make([]Candidate, 0, len(candidates)-1)
	for i, cand := range candidates {
		if i != best {
			rest = append(rest, cand)
		}
	}
	return acted, rest
}

// SubmitReport records a manual user report.
func (c *Coordinator) SubmitReport(ctx context.Context, req SubmitRequest) (int64, error) {
	return c.queue.Submit(ctx, req)
}

// Review resolves a pending report and executes any resulting action. The
// report must belong to chatID; operators cannot resolve other chats' reports
// by guessing ids.
func (c *Coordinator) Review(ctx context.Context, chatID, reportID, adminID int64, decision ReviewDecision) (*Decision, error) {
	report, err := c.queue.db.GetReport(ctx, reportID)
	if err != nil {
		return nil, errors.Wrap(guarderrors.ErrPersistence, err.Error())
	}
	if report == nil || report.ChatID != chatID {
		return nil, errors.Wrapf(guarderrors.ErrNotFound, "report %d", reportID)
	}

	unlock := c.lockUser(report.ChatID, report.TargetUserID)
	outcome, err := c.queue.Resolve(ctx, reportID, adminID, decision)
	unlock()
	if err != nil {
		return nil, err
	}
	if outcome == nil {
		return nil, nil
	}
	observability.RecordViolation("reported_violation", SourceReport)

	// A confirmed report means the reporter defended the community.
	if report.ReporterID != 0 {
		if _, err := c.reputation.Award(ctx, report.ReporterID, RepEventDefend); err != nil {
			log.WithError(err).Error("cant award reporter")
		}
	}

	result := &Decision{
		DecisionID: outcome.DecisionID,
		ChatID:     report.ChatID,
		UserID:     report.TargetUserID,
		MessageID:  report.MessageID,
		Outcome:    outcome,
	}
	c.executeOutcome(ctx, result)
	return result, nil
}

// ManualAction bypasses classification: it records an admin_override
// violation and invokes the executor directly.
func (c *Coordinator) ManualAction(ctx context.Context, adminID, chatID, userID int64, kind ActionKind) (*Decision, error) {
	severity := map[ActionKind]int{ActionWarn: 2, ActionMute: 4, ActionBan: 5}[kind]
	if severity == 0 {
		return nil, errors.Wrapf(guarderrors.ErrValidation, "unsupported manual action %q", kind)
	}

	cand := Candidate{
		Type:       SourceAdminOverride,
		Severity:   severity,
		Confidence: 1,
		Reason:     "manual action by admin",
	}

	unlock := c.lockUser(chatID, userID)
	outcome, err := c.engine.Decide(ctx, chatID, userID, 0, SourceAdminOverride, cand, Confirmed(), Forced(kind))
	unlock()
	if err != nil {
		return nil, err
	}
	observability.RecordViolation(SourceAdminOverride, SourceAdminOverride)

	decision := &Decision{
		DecisionID: outcome.DecisionID,
		ChatID:     chatID,
		UserID:     userID,
		Outcome:    outcome,
	}
	c.executeOutcome(ctx, decision)
	log.WithFields(log.Fields{
		"admin_id": adminID,
		"chat_id":  chatID,
		"user_id":  userID,
		"action":   kind,
	}).Info("manual action")
	return decision, nil
}

// Status derives the user's standing from history.
func (c *Coordinator) Status(ctx context.Context, chatID, userID int64) (*UserStatus, error) {
	records, err := c.store.HistoryFor(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}

	status := &UserStatus{ChatID: chatID, UserID: userID, Level: LevelClean}
	for _, rec := range records {
		status.Violations++
		switch ActionKind(rec.Action) {
		case ActionWarn:
			status.WarnCount++
			if status.Level == LevelClean {
				status.Level = LevelWarned
			}
		case ActionMute:
			if status.Level != LevelBanned {
				status.Level = LevelMuted
			}
		case ActionBan:
			status.Level = LevelBanned
		}
		if rec.CreatedAt.After(status.LastAction) {
			status.LastAction = rec.CreatedAt
			status.LastType = rec.Type
		}
	}
	return status, nil
}

// Stats aggregates the recorded history for a chat.
func (c *Coordinator) Stats(ctx context.Context, chatID int64) (*ChatStats, error) {
	rows, err := c.store.Stats(ctx, chatID)
	if err != nil {
		return nil, err
	}
	stats := &ChatStats{
		ChatID:   chatID,
		ByType:   make(map[string]int),
		ByAction: make(map[string]int),
	}
	for _, row := range rows {
		stats.Total += row.Count
		stats.ByType[row.Type] += row.Count
		stats.ByAction[row.Action] += row.Count
	}
	total, pending, err := c.reports.CountReports(ctx, chatID)
	if err != nil {
		return nil, errors.Wrap(guarderrors.ErrPersistence, err.Error())
	}
	stats.TotalReports = total
	stats.PendingReports = pending
	return stats, nil
}

// PendingReports lists the review queue for a chat, oldest first.
func (c *Coordinator) PendingReports(ctx context.Context, chatID int64) ([]*db.Report, error) {
	return c.queue.ListPending(ctx, chatID)
}

// Unenforced lists decided-but-not-enforced records for admin follow-up.
func (c *Coordinator) Unenforced(ctx context.Context, chatID int64) ([]*db.ViolationRecord, error) {
	return c.store.Unenforced(ctx, chatID)
}

// History exposes the raw audit trail for a user.
func (c *Coordinator) History(ctx context.Context, chatID, userID int64) ([]*db.ViolationRecord, error) {
	return c.store.HistoryFor(ctx, chatID, userID)
}

// Reputation exposes the reputation service for transport commands.
func (c *Coordinator) Reputation() *ReputationService {
	return c.reputation
}

// LastDecision returns the cached decision for a message, if still present.
func (c *Coordinator) LastDecision(chatID int64, messageID int) *Decision {
	if decision, ok := c.recent.Get(decisionKey{ChatID: chatID, MessageID: messageID}); ok {
		return decision
	}
	return nil
}

func (c *Coordinator) lockUser(chatID, userID int64) func() {
	mu, _ := c.userLocks.LoadOrCompute(floodKey{ChatID: chatID, UserID: userID}, func() *sync.Mutex {
		return &sync.Mutex{}
	})
	mu.Lock()
	return mu.Unlock
}
