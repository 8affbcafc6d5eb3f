package report

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/whisper/modbot/internal/enrich"
	"github.com/whisper/modbot/internal/platform"
)

// newTestStore opens the archive against TEST_DATABASE_URL. Tests that call
// this helper require a running PostgreSQL instance.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("postgres not available: TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, err := Open(ctx, url)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	t.Cleanup(func() {
		_, _ = store.db.Exec(`DELETE FROM reviewed_reports WHERE report_id LIKE 'test_%'`)
		store.Close()
	})
	return store
}

func finishedSession(t *testing.T) *Session {
	t.Helper()
	target := platform.Message{
		ID: "3", GuildID: "1", ChannelID: "2", AuthorID: "u9",
		Content: "hello", CreatedAt: time.Unix(1700000000, 0),
	}
	s := Synthesize(target, []platform.Message{target}, 0, 2, enrich.Result{Severity: 0.6, Nudity: true}, testNow)
	return s
}

func TestRecordOf(t *testing.T) {
	s := finishedSession(t)
	rec := RecordOf(s, "minor_yes", testNow.Add(time.Hour))

	if rec.ReportedUserID != "u9" || rec.MessageID != "3" || rec.GuildID != "1" {
		t.Errorf("unexpected identifiers: %+v", rec)
	}
	if rec.Reason != "Nudity and Sexual Content" {
		t.Errorf("Reason = %q", rec.Reason)
	}
	if rec.Subtype != "It's a threat to share my nude images" {
		t.Errorf("Subtype = %q", rec.Subtype)
	}
	if !rec.Nudity || !rec.Auto || rec.Severity != 0.6 {
		t.Errorf("risk fields = nudity:%v auto:%v severity:%v", rec.Nudity, rec.Auto, rec.Severity)
	}
	if len(rec.Messages) != 1 || rec.Messages[0].Ts != 1700000000 {
		t.Errorf("Messages = %+v", rec.Messages)
	}
}

func TestCreate_Validation(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	err := store.Create(ctx, &Record{Reason: "bogus", Outcome: "x"})
	if err == nil || !strings.Contains(err.Error(), "invalid reason") {
		t.Errorf("Create(bogus reason) err = %v", err)
	}
	err = store.Create(ctx, &Record{Reason: "Spam"})
	if err == nil || !strings.Contains(err.Error(), "missing outcome") {
		t.Errorf("Create(no outcome) err = %v", err)
	}
}

func TestCreateAndCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := RecordOf(finishedSession(t), "adversarial_no", time.Now())
	rec.ReportID = "test_" + rec.ReportID
	rec.ReportedUserID = "test_user_" + rec.ReportID

	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	// Duplicate archive writes are ignored.
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create() duplicate error: %v", err)
	}

	n, err := store.CountRecent(ctx, rec.ReportedUserID, time.Hour)
	if err != nil {
		t.Fatalf("CountRecent() error: %v", err)
	}
	if n != 1 {
		t.Errorf("CountRecent() = %d, want 1", n)
	}
}
