// Package archive keeps an append-only sqlite history of every insight and
// completed action, so the bounded rings in the state file never lose data.
// Archive failures are logged and never fail a cycle.
package archive

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"lifeos/internal/life"
)

// Store is the sqlite-backed history store.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open initializes the database at the given path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logger.Debug("set busy_timeout failed", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logger.Debug("set journal_mode=WAL failed", zap.Error(err))
	}

	s := &Store{db: db, logger: logger.Named("archive")}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS insights (
		id          TEXT NOT NULL,
		area        TEXT NOT NULL,
		type        TEXT NOT NULL,
		priority    INTEGER NOT NULL,
		title       TEXT NOT NULL,
		content     TEXT,
		created_at  INTEGER NOT NULL,
		archived_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_insights_area ON insights(area);
	CREATE INDEX IF NOT EXISTS idx_insights_archived ON insights(archived_at);

	CREATE TABLE IF NOT EXISTS actions (
		insight_ref  TEXT,
		type         TEXT NOT NULL,
		priority     INTEGER NOT NULL,
		action_text  TEXT NOT NULL,
		outcome      TEXT,
		completed_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_actions_completed ON actions(completed_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize archive schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveInsight appends one insight to the history.
func (s *Store) SaveInsight(in life.Insight) error {
	_, err := s.db.Exec(
		`INSERT INTO insights (id, area, type, priority, title, content, created_at, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, string(in.Area), string(in.Type), in.Priority, in.Title, in.Content,
		in.CreatedAt.Unix(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("archive insight: %w", err)
	}
	return nil
}

// SaveAction appends one dispatched action to the history.
func (s *Store) SaveAction(a life.Action, outcome string, completedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO actions (insight_ref, type, priority, action_text, outcome, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.InsightRef, string(a.Type), a.Priority, a.Text, outcome, completedAt.Unix())
	if err != nil {
		return fmt.Errorf("archive action: %w", err)
	}
	return nil
}

// RecentInsights returns the newest archived insights, most recent first.
func (s *Store) RecentInsights(limit int) ([]life.Insight, error) {
	rows, err := s.db.Query(
		`SELECT id, area, type, priority, title, content, created_at
		 FROM insights ORDER BY archived_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query insights: %w", err)
	}
	defer rows.Close()

	var out []life.Insight
	for rows.Next() {
		var in life.Insight
		var area, typ string
		var created int64
		if err := rows.Scan(&in.ID, &area, &typ, &in.Priority, &in.Title, &in.Content, &created); err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		in.Area = life.Area(area)
		in.Type = life.InsightType(typ)
		in.CreatedAt = time.Unix(created, 0)
		out = append(out, in)
	}
	return out, rows.Err()
}

// Prune deletes history older than the retention window.
func (s *Store) Prune(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan).Unix()
	if _, err := s.db.Exec(`DELETE FROM insights WHERE archived_at < ?`, cutoff); err != nil {
		return fmt.Errorf("prune insights: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM actions WHERE completed_at < ?`, cutoff); err != nil {
		return fmt.Errorf("prune actions: %w", err)
	}
	return nil
}
