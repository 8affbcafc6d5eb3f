package report

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq" // postgres driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// validReasons is the set of reason names accepted by the archive.
var validReasons = func() map[string]bool {
	m := make(map[string]bool, len(Reasons))
	for _, r := range Reasons {
		m[r.Name] = true
	}
	return m
}()

// Store archives reviewed reports in PostgreSQL. It is write-mostly: live
// sessions and the triage queue never read from it.
type Store struct {
	db *sql.DB
}

// Record is one reviewed report as persisted.
type Record struct {
	ReportID       string
	ReporterID     string
	ReportedUserID string
	GuildID        string
	ChannelID      string
	MessageID      string
	Reason         string
	Subtype        string
	Minor          bool
	Nudity         bool
	Severity       float64
	Auto           bool
	Blocked        bool
	Outcome        string
	Messages       []MessageEntry // conversation window at report time
	SubmittedAt    time.Time
	ReviewedAt     time.Time
}

// MessageEntry is one message of the archived conversation window.
type MessageEntry struct {
	From string `json:"from"`
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
}

// NewStore creates a new archive backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL and applies pending migrations.
func Open(ctx context.Context, url string) (*Store, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("report: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("report: ping: %w", err)
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewStore(db), nil
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("report: migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("report: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("report: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("report: migrate up: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordOf flattens a finalized session and its review outcome.
func RecordOf(sess *Session, outcome string, reviewedAt time.Time) *Record {
	target := sess.Target()
	rec := &Record{
		ReportID:       sess.ID,
		ReporterID:     sess.ReporterID,
		ReportedUserID: target.AuthorID,
		GuildID:        target.GuildID,
		ChannelID:      target.ChannelID,
		MessageID:      target.ID,
		Minor:          sess.IsMinor(),
		Nudity:         sess.HasNudity(),
		Severity:       sess.SeverityScore(),
		Auto:           sess.Auto(),
		Blocked:        sess.Blocked().Bool(),
		Outcome:        outcome,
		SubmittedAt:    sess.SubmittedAt(),
		ReviewedAt:     reviewedAt,
	}
	if r, ok := sess.Reason(); ok {
		rec.Reason = r.Name
	}
	if st, ok := sess.Subtype(); ok {
		rec.Subtype = st.Name
	}
	for _, m := range sess.Window() {
		rec.Messages = append(rec.Messages, MessageEntry{From: m.AuthorID, Text: m.Content, Ts: m.CreatedAt.Unix()})
	}
	return rec
}

// Create inserts a reviewed report. Messages are marshalled to JSONB. The
// reason is validated against the catalog before insertion.
func (s *Store) Create(ctx context.Context, rec *Record) error {
	if !validReasons[rec.Reason] {
		return fmt.Errorf("report: invalid reason %q", rec.Reason)
	}
	if rec.Outcome == "" {
		return errors.New("report: missing outcome")
	}

	var messagesJSON []byte
	if len(rec.Messages) > 0 {
		var err error
		messagesJSON, err = json.Marshal(rec.Messages)
		if err != nil {
			return fmt.Errorf("report: marshal messages: %w", err)
		}
	}

	const query = `
		INSERT INTO reviewed_reports (report_id, reporter_id, reported_user_id, guild_id, channel_id, message_id,
			reason, subtype, minor, nudity, severity, auto, blocked, outcome, messages, submitted_at, reviewed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (report_id) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query,
		rec.ReportID,
		rec.ReporterID,
		rec.ReportedUserID,
		rec.GuildID,
		rec.ChannelID,
		rec.MessageID,
		rec.Reason,
		rec.Subtype,
		rec.Minor,
		rec.Nudity,
		rec.Severity,
		rec.Auto,
		rec.Blocked,
		rec.Outcome,
		messagesJSON,
		rec.SubmittedAt,
		rec.ReviewedAt,
	)
	if err != nil {
		return fmt.Errorf("report: insert: %w", err)
	}
	return nil
}

// CountRecent returns the number of reviewed reports against a user within
// the given window.
func (s *Store) CountRecent(ctx context.Context, reportedUserID string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM reviewed_reports
		WHERE reported_user_id = $1
		  AND reviewed_at >= $2`

	var count int
	err := s.db.QueryRowContext(ctx, query, reportedUserID, time.Now().Add(-window)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("report: count recent: %w", err)
	}
	return count, nil
}
