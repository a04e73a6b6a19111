package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Meeting is one row of the meeting catalog.
type Meeting struct {
	ID           string
	Title        *string
	CreatedAt    time.Time
	SummarizedAt *time.Time
}

// MeetingModel is the SQLite-backed meeting catalog.
type MeetingModel struct {
	db *sql.DB
}

// OpenMeetingDB opens (and migrates) the catalog database at path.
func OpenMeetingDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=rwc&_journal_mode=WAL&_fk=1", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open meeting database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping meeting database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS meetings (
			id            TEXT PRIMARY KEY,
			title         TEXT,
			created_at    TIMESTAMP NOT NULL,
			summarized_at TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create meetings table: %w", err)
	}
	return db, nil
}

func NewMeetingModel(db *sql.DB) *MeetingModel {
	return &MeetingModel{db: db}
}

// Ensure registers a meeting if it is not yet in the catalog. The original
// created_at of an existing row is preserved.
func (m *MeetingModel) Ensure(ctx context.Context, meetingID string) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO meetings (id, created_at) VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`, meetingID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ensure meeting %s: %w", meetingID, err)
	}
	return nil
}

// SetTitle stores the derived meeting title and marks the meeting as
// summarized now.
func (m *MeetingModel) SetTitle(ctx context.Context, meetingID, title string) error {
	now := time.Now().UTC()
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO meetings (id, title, created_at, summarized_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, summarized_at = excluded.summarized_at
	`, meetingID, title, now, now)
	if err != nil {
		return fmt.Errorf("set title for meeting %s: %w", meetingID, err)
	}
	return nil
}

// Get returns one meeting, or sql.ErrNoRows.
func (m *MeetingModel) Get(ctx context.Context, meetingID string) (*Meeting, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, title, created_at, summarized_at FROM meetings WHERE id = ?
	`, meetingID)

	var meeting Meeting
	if err := row.Scan(&meeting.ID, &meeting.Title, &meeting.CreatedAt, &meeting.SummarizedAt); err != nil {
		return nil, err
	}
	return &meeting, nil
}

// ListSummarizedBefore returns the ids of meetings whose summary is older than
// cutoff, for the retention sweep.
func (m *MeetingModel) ListSummarizedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id FROM meetings
		WHERE summarized_at IS NOT NULL AND summarized_at < ?
		ORDER BY summarized_at ASC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query summarized meetings: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan meeting id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
