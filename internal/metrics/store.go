// Package metrics persists one row per completed search in an embedded
// SQLite database and answers the aggregation queries the bot surfaces
// (popular queries, per-user analytics, system stats). A retention job
// trims old rows; a size-threshold job evicts in stages when the file grows
// past budget.
package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Metric is one append-only search record.
type Metric struct {
	UserID       int64
	Query        string
	ResultsCount int
	Strategy     string
	ExecMS       int64
	Success      bool
	Error        string
	Timestamp    time.Time
}

// Store is a single-writer, many-reader log. *sql.DB serializes access;
// the schema is created on open.
type Store struct {
	db   *sql.DB
	path string
}

// tsLayout pads the fraction to nine digits so lexicographic order on the
// timestamp column matches chronological order. RFC3339Nano drops trailing
// zeros, which makes a whole second sort after a fractional one ('Z' > '.').
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS search_metrics (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id       INTEGER NOT NULL,
    query         TEXT NOT NULL,
    results_count INTEGER NOT NULL,
    strategy_tag  TEXT NOT NULL,
    exec_ms       INTEGER NOT NULL,
    success       INTEGER NOT NULL,
    error         TEXT NOT NULL DEFAULT '',
    timestamp     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_user ON search_metrics (user_id);
CREATE INDEX IF NOT EXISTS idx_metrics_ts ON search_metrics (timestamp);
CREATE INDEX IF NOT EXISTS idx_metrics_query ON search_metrics (query);
`

// Open creates or opens the store at path. ":memory:" works for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open metrics db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create metrics schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping is used by readiness probes.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Log appends one metric. A failed search must carry zero results and a
// non-empty error string; Log enforces the invariant rather than trusting
// every call site.
func (s *Store) Log(ctx context.Context, m Metric) error {
	if !m.Success {
		m.ResultsCount = 0
		if m.Error == "" {
			m.Error = "unknown"
		}
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO search_metrics (user_id, query, results_count, strategy_tag, exec_ms, success, error, timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.UserID, m.Query, m.ResultsCount, m.Strategy, m.ExecMS, boolInt(m.Success), m.Error,
		m.Timestamp.UTC().Format(tsLayout))
	if err != nil {
		return fmt.Errorf("log metric: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func since(days int) string {
	return time.Now().UTC().AddDate(0, 0, -days).Format(tsLayout)
}

// PopularQuery is one row of the popular-queries report.
type PopularQuery struct {
	Query    string
	Count    int
	LastSeen time.Time
}

// PopularQueries returns the top queries by count over the window.
func (s *Store) PopularQueries(ctx context.Context, days, limit int) ([]PopularQuery, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT query, COUNT(*) AS cnt, MAX(timestamp)
FROM search_metrics
WHERE timestamp >= ? AND query != ''
GROUP BY query
ORDER BY cnt DESC, query ASC
LIMIT ?`, since(days), limit)
	if err != nil {
		return nil, fmt.Errorf("popular queries: %w", err)
	}
	defer rows.Close()
	var out []PopularQuery
	for rows.Next() {
		var p PopularQuery
		var ts string
		if err := rows.Scan(&p.Query, &p.Count, &ts); err != nil {
			return nil, err
		}
		p.LastSeen, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, p)
	}
	return out, rows.Err()
}

// UserAnalytics summarizes one user's activity over the window.
type UserAnalytics struct {
	UserID          int64
	TotalSearches   int
	DistinctQueries int
	TopQuery        string
	AvgResults      float64
	LastActivity    time.Time
}

func (s *Store) UserAnalytics(ctx context.Context, userID int64, days int) (UserAnalytics, error) {
	ua := UserAnalytics{UserID: userID}
	var last sql.NullString
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), COUNT(DISTINCT query), COALESCE(AVG(results_count), 0), MAX(timestamp)
FROM search_metrics
WHERE user_id = ? AND timestamp >= ?`, userID, since(days)).
		Scan(&ua.TotalSearches, &ua.DistinctQueries, &ua.AvgResults, &last)
	if err != nil {
		return ua, fmt.Errorf("user analytics: %w", err)
	}
	if last.Valid {
		ua.LastActivity, _ = time.Parse(time.RFC3339Nano, last.String)
	}
	if ua.TotalSearches > 0 {
		err = s.db.QueryRowContext(ctx, `
SELECT query FROM search_metrics
WHERE user_id = ? AND timestamp >= ? AND query != ''
GROUP BY query ORDER BY COUNT(*) DESC, query ASC LIMIT 1`, userID, since(days)).
			Scan(&ua.TopQuery)
		if err != nil && err != sql.ErrNoRows {
			return ua, fmt.Errorf("user top query: %w", err)
		}
	}
	return ua, nil
}

// SystemStats summarizes all traffic over the window.
type SystemStats struct {
	TotalSearches int
	DistinctUsers int
	SuccessRate   float64
	AvgLatencyMS  float64
	ByStrategy    map[string]int
}

func (s *Store) SystemStats(ctx context.Context, days int) (SystemStats, error) {
	st := SystemStats{ByStrategy: map[string]int{}}
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), COUNT(DISTINCT user_id), COALESCE(AVG(success), 0), COALESCE(AVG(exec_ms), 0)
FROM search_metrics WHERE timestamp >= ?`, since(days)).
		Scan(&st.TotalSearches, &st.DistinctUsers, &st.SuccessRate, &st.AvgLatencyMS)
	if err != nil {
		return st, fmt.Errorf("system stats: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT strategy_tag, COUNT(*) FROM search_metrics
WHERE timestamp >= ? GROUP BY strategy_tag`, since(days))
	if err != nil {
		return st, fmt.Errorf("strategy distribution: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tag string
		var n int
		if err := rows.Scan(&tag, &n); err != nil {
			return st, err
		}
		st.ByStrategy[tag] = n
	}
	return st, rows.Err()
}

// UserCount is one row of the top-users report.
type UserCount struct {
	UserID   int64
	Searches int
}

func (s *Store) TopUsers(ctx context.Context, days, limit int) ([]UserCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT user_id, COUNT(*) AS cnt FROM search_metrics
WHERE timestamp >= ? GROUP BY user_id ORDER BY cnt DESC, user_id ASC LIMIT ?`, since(days), limit)
	if err != nil {
		return nil, fmt.Errorf("top users: %w", err)
	}
	defer rows.Close()
	var out []UserCount
	for rows.Next() {
		var u UserCount
		if err := rows.Scan(&u.UserID, &u.Searches); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
