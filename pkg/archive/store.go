package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/valentinpelus/posturewatch/pkg/types"
)

const schema = `
	CREATE TABLE IF NOT EXISTS feedback_entries (
		id          UUID PRIMARY KEY,
		session_id  TEXT NOT NULL,
		mode        TEXT NOT NULL,
		frame_index INTEGER,
		captured_at TIMESTAMPTZ,
		issues      TEXT[] NOT NULL DEFAULT '{}',
		created_at  TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS feedback_entries_session_idx ON feedback_entries (session_id);
`

const insertEntry = `
	INSERT INTO feedback_entries (
		id, session_id, mode, frame_index, captured_at, issues, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// Stats summarizes the archive
type Stats struct {
	TotalEntries int            `json:"total_entries"`
	WithIssues   int            `json:"entries_with_issues"`
	ByIssue      map[string]int `json:"by_issue"`
	LatestEntry  *time.Time     `json:"latest_entry,omitempty"`
}

// Store records every feedback entry in PostgreSQL. It is write-mostly;
// nothing is ever read back into a session.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore connects to the archive database
func NewStore(databaseURL string) (*Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return newStore(db), nil
}

func newStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate creates the archive table if needed
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create archive schema: %w", err)
	}
	return nil
}

// Insert stores entries produced by one session in a single transaction
func (s *Store) Insert(ctx context.Context, sessionID string, entries []types.FeedbackEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertEntry)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	createdAt := s.now()
	for _, entry := range entries {
		origin := entry.Origin()

		var frame sql.NullInt64
		var captured sql.NullTime
		if origin.Kind == types.OriginLive {
			captured = sql.NullTime{Time: origin.Timestamp, Valid: true}
		} else {
			frame = sql.NullInt64{Int64: int64(origin.Index), Valid: true}
		}

		_, err := stmt.ExecContext(ctx,
			uuid.New().String(),
			sessionID,
			origin.Kind.String(),
			frame,
			captured,
			pq.Array(entry.Issues()),
			createdAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert feedback entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit feedback entries: %w", err)
	}
	return nil
}

// Stats returns totals and the most frequent issue labels
func (s *Store) Stats(ctx context.Context, topLabels int) (*Stats, error) {
	stats := &Stats{ByIssue: make(map[string]int)}

	var latest sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE cardinality(issues) > 0), MAX(created_at)
		FROM feedback_entries
	`).Scan(&stats.TotalEntries, &stats.WithIssues, &latest)
	if err != nil {
		return nil, fmt.Errorf("failed to get entry totals: %w", err)
	}
	if latest.Valid {
		stats.LatestEntry = &latest.Time
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT label, COUNT(*) AS count
		FROM feedback_entries, unnest(issues) AS label
		GROUP BY label
		ORDER BY count DESC, label
		LIMIT $1
	`, topLabels)
	if err != nil {
		return nil, fmt.Errorf("failed to get issue stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var label string
		var count int
		if err := rows.Scan(&label, &count); err != nil {
			log.Printf("Warning: failed to scan issue row: %v", err)
			continue
		}
		stats.ByIssue[label] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return stats, nil
}
