package moderation

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/sunopiusme/rlguardbot/internal/config"
	"github.com/sunopiusme/rlguardbot/internal/db"
)

// memStore is an in-memory stand-in for the sqlite client, covering the
// narrow store interfaces the moderation components consume.
type memStore struct {
	mu         sync.Mutex
	violations []*db.ViolationRecord
	reports    map[int64]*db.Report
	reputation map[int64]*db.Reputation
	repEvents  []*db.ReputationEvent
	nextID     int64
	failAppend error
}

func newMemStore() *memStore {
	return &memStore{
		reports:    make(map[int64]*db.Report),
		reputation: make(map[int64]*db.Reputation),
	}
}

func (m *memStore) AppendViolation(ctx context.Context, rec *db.ViolationRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAppend != nil {
		return 0, m.failAppend
	}
	m.nextID++
	clone := *rec
	clone.ID = m.nextID
	m.violations = append(m.violations, &clone)
	return clone.ID, nil
}

func (m *memStore) GetViolations(ctx context.Context, chatID, userID int64) ([]*db.ViolationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*db.ViolationRecord
	for _, rec := range m.violations {
		if rec.ChatID == chatID && rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memStore) CountViolationActionsSince(ctx context.Context, chatID, userID int64, actions []string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, rec := range m.violations {
		if rec.ChatID != chatID || rec.UserID != userID {
			continue
		}
		if !since.IsZero() && rec.CreatedAt.Before(since) {
			continue
		}
		for _, action := range actions {
			if rec.Action == action {
				count++
				break
			}
		}
	}
	return count, nil
}

func (m *memStore) SetViolationEnforced(ctx context.Context, id int64, enforced string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.violations {
		if rec.ID == id {
			rec.Enforced = enforced
			return nil
		}
	}
	return errors.Errorf("violation %d not found", id)
}

func (m *memStore) GetUnenforcedViolations(ctx context.Context, chatID int64) ([]*db.ViolationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*db.ViolationRecord
	for _, rec := range m.violations {
		if rec.ChatID == chatID && rec.Enforced == db.EnforcedFailed {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memStore) GetViolationStats(ctx context.Context, chatID int64) ([]*db.ViolationStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	type key struct{ vtype, action string }
	counts := make(map[key]int)
	for _, rec := range m.violations {
		if rec.ChatID == chatID {
			counts[key{rec.Type, rec.Action}]++
		}
	}
	var out []*db.ViolationStat
	for k, n := range counts {
		out = append(out, &db.ViolationStat{Type: k.vtype, Action: k.action, Count: n})
	}
	return out, nil
}

func (m *memStore) CreateReport(ctx context.Context, report *db.Report) (*db.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	clone := *report
	clone.ID = m.nextID
	m.reports[clone.ID] = &clone
	return &clone, nil
}

func (m *memStore) GetReport(ctx context.Context, id int64) (*db.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	report, ok := m.reports[id]
	if !ok {
		return nil, nil
	}
	clone := *report
	return &clone, nil
}

func (m *memStore) GetPendingReports(ctx context.Context, chatID int64) ([]*db.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*db.Report
	for id := int64(1); id <= m.nextID; id++ {
		report, ok := m.reports[id]
		if ok && report.ChatID == chatID && report.Status == db.ReportStatusPending {
			clone := *report
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *memStore) FindRecentPendingReport(ctx context.Context, chatID, reporterID int64, messageID int, since time.Time) (*db.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, report := range m.reports {
		if report.ChatID == chatID && report.ReporterID == reporterID &&
			report.MessageID == messageID && report.Status == db.ReportStatusPending &&
			!report.CreatedAt.Before(since) {
			clone := *report
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *memStore) ResolveReport(ctx context.Context, id int64, status string, adminID int64, resolvedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	report, ok := m.reports[id]
	if !ok || report.Status != db.ReportStatusPending {
		return false, nil
	}
	report.Status = status
	report.ResolvedBy = &adminID
	report.ResolvedAt = &resolvedAt
	return true, nil
}

func (m *memStore) CountReports(ctx context.Context, chatID int64) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total, pending := 0, 0
	for _, report := range m.reports {
		if report.ChatID != chatID {
			continue
		}
		total++
		if report.Status == db.ReportStatusPending {
			pending++
		}
	}
	return total, pending, nil
}

func (m *memStore) AddReputationEvent(ctx context.Context, event *db.ReputationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *event
	m.repEvents = append(m.repEvents, &clone)
	return nil
}

func (m *memStore) UpsertReputation(ctx context.Context, rep *db.Reputation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *rep
	m.reputation[rep.UserID] = &clone
	return nil
}

func (m *memStore) GetReputation(ctx context.Context, userID int64) (*db.Reputation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rep, ok := m.reputation[userID]
	if !ok {
		return nil, nil
	}
	clone := *rep
	return &clone, nil
}

func (m *memStore) CountReputationEvents(ctx context.Context, userID int64, eventType string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, event := range m.repEvents {
		if event.UserID == userID && event.EventType == eventType {
			count++
		}
	}
	return count, nil
}

func (m *memStore) GetTopReputation(ctx context.Context, limit int) ([]*db.Reputation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*db.Reputation
	for _, rep := range m.reputation {
		clone := *rep
		out = append(out, &clone)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Total > out[i].Total {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// recordingExecutor captures executed actions; fail makes every call error.
type recordingExecutor struct {
	mu       sync.Mutex
	executed []*EnforcementAction
	fail     error
}

func (e *recordingExecutor) Execute(ctx context.Context, action *EnforcementAction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return e.fail
	}
	e.executed = append(e.executed, action)
	return nil
}

func testPolicy() config.Moderation {
	return config.Moderation{
		WarnBeforeBan:       3,
		MuteDuration:        time.Hour,
		BanDuration:         168 * time.Hour,
		AutoActionThreshold: 0.7,
		FloodWindow:         time.Minute,
		FloodThreshold:      10,
		MaxLinksPerMessage:  2,
		AllowedLanguages:    []string{"en", "ru"},
	}
}

func testRules(t interface{ Fatalf(string, ...any) }) *config.RuleSet {
	rules, err := config.LoadRules("")
	if err != nil {
		t.Fatalf("load embedded rules: %v", err)
	}
	return rules
}

func testClassifier(t interface{ Fatalf(string, ...any) }) *Classifier {
	classifier, err := NewClassifier(testRules(t), testPolicy())
	if err != nil {
		t.Fatalf("build classifier: %v", err)
	}
	return classifier
}
