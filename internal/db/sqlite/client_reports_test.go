package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/sunopiusme/rlguardbot/internal/db"
)

func TestChatsWithPendingReports(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, err := NewSQLiteClient(ctx, t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("new sqlite client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	seed := []struct {
		chatID int64
		status string
	}{
		{10, db.ReportStatusPending},
		{10, db.ReportStatusPending},
		{20, db.ReportStatusApproved},
		{30, db.ReportStatusPending},
	}
	for i, s := range seed {
		_, err := client.CreateReport(ctx, &db.Report{
			ChatID:       s.chatID,
			ReporterID:   int64(100 + i),
			TargetUserID: 20,
			MessageID:    i + 1,
			Status:       s.status,
			Source:       "report",
			CreatedAt:    time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("create report: %v", err)
		}
	}

	chats, err := client.GetChatsWithPendingReports(ctx)
	if err != nil {
		t.Fatalf("get chats with pending reports: %v", err)
	}
	if len(chats) != 2 || chats[0] != 10 || chats[1] != 30 {
		t.Fatalf("unexpected chat list: %v", chats)
	}
}

// Rows inserted without an explicit source must land on the same value the
// queue assigns to user reports.
func TestReportSourceDefault(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, err := NewSQLiteClient(ctx, t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("new sqlite client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	result, err := client.db.ExecContext(ctx,
		`INSERT INTO reports (chat_id, reporter_id, target_user_id, message_id, created_at)
		 VALUES (10, 30, 20, 77, ?)`, time.Now().UTC())
	if err != nil {
		t.Fatalf("insert without source: %v", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("last insert id: %v", err)
	}

	report, err := client.GetReport(ctx, id)
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if report.Source != "report" {
		t.Fatalf("default source = %q, want %q", report.Source, "report")
	}
}

func TestKVRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, err := NewSQLiteClient(ctx, t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("new sqlite client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	value, err := client.GetKV(ctx, "missing")
	if err != nil {
		t.Fatalf("get missing key: %v", err)
	}
	if value != "" {
		t.Fatalf("missing key value = %q, want empty", value)
	}

	if err := client.SetKV(ctx, "digest", "1700000000"); err != nil {
		t.Fatalf("set kv: %v", err)
	}
	if err := client.SetKV(ctx, "digest", "1700000100"); err != nil {
		t.Fatalf("overwrite kv: %v", err)
	}

	value, err = client.GetKV(ctx, "digest")
	if err != nil {
		t.Fatalf("get kv: %v", err)
	}
	if value != "1700000100" {
		t.Fatalf("kv value = %q, want overwritten value", value)
	}
}
