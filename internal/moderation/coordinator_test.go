package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/sunopiusme/rlguardbot/internal/db"
	guarderrors "github.com/sunopiusme/rlguardbot/internal/errors"
)

func newTestCoordinator(t *testing.T, store *memStore, executor *recordingExecutor) *Coordinator {
	t.Helper()
	policy := testPolicy()
	rules := testRules(t)
	classifier := testClassifier(t)
	violations := NewStore(store)
	engine := NewEngine(policy, rules, violations)
	queue := NewReportQueue(store, engine, classifier, 0)
	flood := NewFloodDetector(policy.FloodWindow, policy.FloodThreshold)
	reputation := NewReputationService(store)

	coordinator, err := NewCoordinator(classifier, flood, engine, violations, queue, executor, reputation, store)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	return coordinator
}

func msg(chatID, userID int64, messageID int, text string) *InboundMessage {
	return &InboundMessage{
		ChatID:    chatID,
		UserID:    userID,
		MessageID: messageID,
		Text:      text,
		Timestamp: time.Now(),
	}
}

func TestProcessMessageClean(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	coordinator := newTestCoordinator(t, store, &recordingExecutor{})

	decision, err := coordinator.ProcessMessage(context.Background(), msg(1, 2, 100, "hello, quick question about the app"))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if decision != nil {
		t.Fatalf("clean message produced decision %+v", decision)
	}
	if len(store.violations) != 0 {
		t.Fatalf("clean message committed %d records", len(store.violations))
	}
}

func TestProcessMessageSpamBansAndExecutes(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	executor := &recordingExecutor{}
	coordinator := newTestCoordinator(t, store, executor)

	decision, err := coordinator.ProcessMessage(context.Background(), msg(1, 2, 100, "join t.me/pumpgroup for free bitcoin"))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if decision == nil || decision.Outcome == nil || decision.Outcome.Action == nil {
		t.Fatalf("decision = %+v, want a ban action", decision)
	}
	action := decision.Outcome.Action
	if action.Kind != ActionBan || !action.DeleteMessage {
		t.Fatalf("action = %+v, want ban with delete", action)
	}
	if !decision.Executed {
		t.Fatal("decision not marked executed")
	}
	if len(executor.executed) != 1 {
		t.Fatalf("executor ran %d times, want 1", len(executor.executed))
	}
	if store.violations[0].Enforced != db.EnforcedDone {
		t.Fatalf("record enforced = %q, want done", store.violations[0].Enforced)
	}

	rep, err := coordinator.Reputation().Get(context.Background(), 2)
	if err != nil {
		t.Fatalf("reputation Get: %v", err)
	}
	if rep.Total != -50 {
		t.Fatalf("reputation after ban = %d, want -50", rep.Total)
	}
}

func TestProcessMessageEscalatesRepeatOffender(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	executor := &recordingExecutor{}
	coordinator := newTestCoordinator(t, store, executor)
	ctx := context.Background()

	links := "https://a.example https://b.example https://c.example"
	for i := 0; i < 3; i++ {
		decision, err := coordinator.ProcessMessage(ctx, msg(1, 2, 100+i, links))
		if err != nil {
			t.Fatalf("message %d: %v", i+1, err)
		}
		if decision.Outcome.Action == nil || decision.Outcome.Action.Kind != ActionWarn {
			t.Fatalf("message %d action = %+v, want warn", i+1, decision.Outcome.Action)
		}
	}

	decision, err := coordinator.ProcessMessage(ctx, msg(1, 2, 104, links))
	if err != nil {
		t.Fatalf("fourth message: %v", err)
	}
	if decision.Outcome.Action == nil || decision.Outcome.Action.Kind != ActionBan {
		t.Fatalf("fourth action = %+v, want escalated ban", decision.Outcome.Action)
	}
	if !decision.Outcome.Escalated {
		t.Fatal("fourth decision not marked escalated")
	}

	status, err := coordinator.Status(ctx, 1, 2)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Level != LevelBanned || status.WarnCount != 3 || status.Violations != 4 {
		t.Fatalf("status = %+v, want banned with 3 warns over 4 violations", status)
	}
}

func TestProcessMessageLowConfidenceGoesToReview(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	executor := &recordingExecutor{}
	coordinator := newTestCoordinator(t, store, executor)
	ctx := context.Background()

	decision, err := coordinator.ProcessMessage(ctx, msg(1, 2, 100, "have a look https://sketchy.example/offer"))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if decision == nil || decision.Outcome == nil || decision.Outcome.Review == nil {
		t.Fatalf("decision = %+v, want review outcome", decision)
	}
	if decision.Outcome.Action != nil || len(executor.executed) != 0 {
		t.Fatal("review outcome must not act")
	}
	if len(store.violations) != 0 {
		t.Fatalf("review committed %d records, want 0", len(store.violations))
	}

	pending, err := coordinator.PendingReports(ctx, 1)
	if err != nil {
		t.Fatalf("PendingReports: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending reports = %d, want 1", len(pending))
	}
	if pending[0].Source != SourceAuto || pending[0].TargetUserID != 2 {
		t.Fatalf("queued report = %+v", pending[0])
	}

	// Approval funnels the candidate back through escalation and acts.
	result, err := coordinator.Review(ctx, 1, pending[0].ID, 99, ReviewApprove)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if result == nil || result.Outcome.Action == nil {
		t.Fatalf("review result = %+v, want an action", result)
	}
	if !result.Executed || len(executor.executed) != 1 {
		t.Fatal("approved review not executed")
	}
	if len(store.violations) != 1 {
		t.Fatalf("approval committed %d records, want 1", len(store.violations))
	}
	if store.violations[0].Source != SourceReport {
		t.Fatalf("record source = %q, want report", store.violations[0].Source)
	}
}

func TestProcessMessageExecutionFailureIsRecorded(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	executor := &recordingExecutor{fail: errors.New("not enough rights")}
	coordinator := newTestCoordinator(t, store, executor)
	ctx := context.Background()

	decision, err := coordinator.ProcessMessage(ctx, msg(1, 2, 100, "free bitcoin at bit.ly/xyz"))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if decision.Executed {
		t.Fatal("failed execution marked as executed")
	}
	if decision.ExecError == "" {
		t.Fatal("execution error not surfaced on the decision")
	}
	if store.violations[0].Enforced != db.EnforcedFailed {
		t.Fatalf("record enforced = %q, want failed", store.violations[0].Enforced)
	}

	unenforced, err := coordinator.Unenforced(ctx, 1)
	if err != nil {
		t.Fatalf("Unenforced: %v", err)
	}
	if len(unenforced) != 1 {
		t.Fatalf("unenforced = %d, want 1", len(unenforced))
	}

	// No debit when nothing was actually enforced.
	rep, err := coordinator.Reputation().Get(ctx, 2)
	if err != nil {
		t.Fatalf("reputation Get: %v", err)
	}
	if rep.Total != 0 {
		t.Fatalf("reputation after failed enforcement = %d, want 0", rep.Total)
	}
}

func TestManualAction(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	executor := &recordingExecutor{}
	coordinator := newTestCoordinator(t, store, executor)
	ctx := context.Background()

	decision, err := coordinator.ManualAction(ctx, 99, 1, 2, ActionMute)
	if err != nil {
		t.Fatalf("ManualAction: %v", err)
	}
	if decision.Outcome.Action == nil || decision.Outcome.Action.Kind != ActionMute {
		t.Fatalf("action = %+v, want mute", decision.Outcome.Action)
	}
	if !decision.Executed {
		t.Fatal("manual action not executed")
	}
	if store.violations[0].Source != SourceAdminOverride {
		t.Fatalf("record source = %q, want admin_override", store.violations[0].Source)
	}

	if _, err := coordinator.ManualAction(ctx, 99, 1, 2, ActionKind("explode")); err == nil {
		t.Fatal("unsupported manual action accepted")
	}
}

func TestStatsAggregatesHistoryAndReports(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	coordinator := newTestCoordinator(t, store, &recordingExecutor{})
	ctx := context.Background()

	if _, err := coordinator.ProcessMessage(ctx, msg(1, 2, 100, "free bitcoin at bit.ly/xyz")); err != nil {
		t.Fatalf("spam message: %v", err)
	}
	if _, err := coordinator.ProcessMessage(ctx, msg(1, 3, 101, "https://a.example https://b.example https://c.example")); err != nil {
		t.Fatalf("links message: %v", err)
	}
	if _, err := coordinator.SubmitReport(ctx, SubmitRequest{
		ChatID: 1, ReporterID: 10, TargetUserID: 4, MessageID: 102,
		MessageText: "hmm", Reason: "weird",
	}); err != nil {
		t.Fatalf("SubmitReport: %v", err)
	}

	stats, err := coordinator.Stats(ctx, 1)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 2 {
		t.Fatalf("total = %d, want 2", stats.Total)
	}
	if stats.ByType["spam"] != 1 || stats.ByType["external_links"] != 1 {
		t.Fatalf("by type = %v", stats.ByType)
	}
	if stats.ByAction["ban"] != 1 || stats.ByAction["warn"] != 1 {
		t.Fatalf("by action = %v", stats.ByAction)
	}
	if stats.TotalReports != 1 || stats.PendingReports != 1 {
		t.Fatalf("reports = %d/%d, want 1/1", stats.PendingReports, stats.TotalReports)
	}
}

func TestLastDecisionCache(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	coordinator := newTestCoordinator(t, store, &recordingExecutor{})

	decision, err := coordinator.ProcessMessage(context.Background(), msg(1, 2, 100, "free bitcoin at bit.ly/xyz"))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if got := coordinator.LastDecision(1, 100); got != decision {
		t.Fatalf("LastDecision(1, 100) = %p, want %p", got, decision)
	}
	if got := coordinator.LastDecision(1, 999); got != nil {
		t.Fatalf("LastDecision(1, 999) = %+v, want nil", got)
	}
	// Message ids repeat across chats; another chat's id must not hit.
	if got := coordinator.LastDecision(2, 100); got != nil {
		t.Fatalf("LastDecision(2, 100) = %+v, want nil", got)
	}
}

func TestManualActionOverridesBannedState(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	executor := &recordingExecutor{}
	coordinator := newTestCoordinator(t, store, executor)
	ctx := context.Background()

	if _, err := coordinator.ManualAction(ctx, 99, 1, 2, ActionBan); err != nil {
		t.Fatalf("ManualAction ban: %v", err)
	}

	// A banned user stops the automatic path, not an explicit admin order.
	decision, err := coordinator.ManualAction(ctx, 99, 1, 2, ActionMute)
	if err != nil {
		t.Fatalf("ManualAction mute after ban: %v", err)
	}
	if decision.Outcome.Action == nil || decision.Outcome.Action.Kind != ActionMute {
		t.Fatalf("action after ban = %+v, want mute", decision.Outcome.Action)
	}
	if !decision.Executed || len(executor.executed) != 2 {
		t.Fatalf("executed = %v over %d executor calls, want both actions applied", decision.Executed, len(executor.executed))
	}
	if len(store.violations) != 2 {
		t.Fatalf("records = %d, want 2", len(store.violations))
	}

	// Automatic enforcement still treats the ban as terminal.
	auto, err := coordinator.ProcessMessage(ctx, msg(1, 2, 100, "free bitcoin at bit.ly/xyz"))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if auto.Outcome.Action != nil {
		t.Fatalf("automatic action on banned user = %+v, want none", auto.Outcome.Action)
	}
}

func TestReviewScopedToChat(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	executor := &recordingExecutor{}
	coordinator := newTestCoordinator(t, store, executor)
	ctx := context.Background()

	reportID, err := coordinator.SubmitReport(ctx, SubmitRequest{
		ChatID: 1, ReporterID: 10, TargetUserID: 2, MessageID: 100,
		MessageText: "buy followers at bit.ly/xyz", Reason: "spam",
	})
	if err != nil {
		t.Fatalf("SubmitReport: %v", err)
	}

	if _, err := coordinator.Review(ctx, 2, reportID, 99, ReviewApprove); !errors.Is(err, guarderrors.ErrNotFound) {
		t.Fatalf("cross-chat review error = %v, want not found", err)
	}
	if len(executor.executed) != 0 || len(store.violations) != 0 {
		t.Fatal("cross-chat review must not act")
	}

	result, err := coordinator.Review(ctx, 1, reportID, 99, ReviewApprove)
	if err != nil {
		t.Fatalf("Review in owning chat: %v", err)
	}
	if result == nil || result.Outcome.Action == nil {
		t.Fatalf("review result = %+v, want an action", result)
	}
}
