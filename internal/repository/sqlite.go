package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/xiaot623/gogo/crewtrace/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS traces (
			trace_id TEXT PRIMARY KEY,
			crew_id TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME,
			output TEXT,
			error TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL,
			trace_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT NOT NULL,
			UNIQUE (trace_id, event_id),
			FOREIGN KEY (trace_id) REFERENCES traces(trace_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_trace ON events(trace_id, ts, seq)`,
		`CREATE TABLE IF NOT EXISTS results (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			trace_id TEXT NOT NULL,
			status TEXT NOT NULL,
			output TEXT,
			error TEXT,
			event_id TEXT,
			finished_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_trace ON results(trace_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateTrace creates a new trace.
func (s *SQLiteStore) CreateTrace(ctx context.Context, trace *domain.Trace) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO traces (trace_id, crew_id, status, created_at) VALUES (?, ?, ?, ?)`,
		trace.TraceID, trace.CrewID, trace.Status, trace.CreatedAt.UTC())
	return err
}

// GetTrace retrieves a trace by ID. It returns nil when the trace does not exist.
func (s *SQLiteStore) GetTrace(ctx context.Context, traceID string) (*domain.Trace, error) {
	var trace domain.Trace
	var endedAt sql.NullTime
	var output, errMsg sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT trace_id, crew_id, status, created_at, ended_at, output, error FROM traces WHERE trace_id = ?`,
		traceID).Scan(&trace.TraceID, &trace.CrewID, &trace.Status, &trace.CreatedAt, &endedAt, &output, &errMsg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		trace.EndedAt = &endedAt.Time
	}
	trace.Output = output.String
	trace.Error = errMsg.String
	return &trace, nil
}

// CompleteTrace moves a running trace to a terminal status. It reports false
// when the trace was already terminal.
func (s *SQLiteStore) CompleteTrace(ctx context.Context, traceID string, status domain.TraceStatus, output, errMsg string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE traces SET status = ?, ended_at = ?, output = ?, error = ? WHERE trace_id = ? AND status = ?`,
		status, time.Now(), nullString(output), nullString(errMsg), traceID, domain.TraceStatusRunning)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListStaleTraces returns running traces created before startedBefore, oldest first.
func (s *SQLiteStore) ListStaleTraces(ctx context.Context, startedBefore time.Time, limit int) ([]domain.Trace, error) {
	query := `SELECT trace_id, crew_id, status, created_at FROM traces WHERE status = ? AND created_at < ? ORDER BY created_at ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, domain.TraceStatusRunning, startedBefore.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var traces []domain.Trace
	for rows.Next() {
		var tr domain.Trace
		if err := rows.Scan(&tr.TraceID, &tr.CrewID, &tr.Status, &tr.CreatedAt); err != nil {
			return nil, err
		}
		traces = append(traces, tr)
	}
	return traces, rows.Err()
}

// AppendEvent stores an event. It reports false when an event with the same
// id was already recorded for the trace.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *domain.ExecutionEvent) (bool, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return false, fmt.Errorf("failed to marshal event: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO events (event_id, trace_id, ts, type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.ID, event.TraceID, event.Timestamp, event.Type, string(payload))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetEvents retrieves events of a trace stored after afterSeq, in arrival
// order, and returns the seq of the last one (afterSeq when none).
func (s *SQLiteStore) GetEvents(ctx context.Context, traceID string, afterSeq int64, limit int) ([]domain.ExecutionEvent, int64, error) {
	query := `SELECT seq, payload FROM events WHERE trace_id = ? AND seq > ? ORDER BY seq ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, traceID, afterSeq)
	if err != nil {
		return nil, afterSeq, err
	}
	defer rows.Close()

	lastSeq := afterSeq
	events := []domain.ExecutionEvent{}
	for rows.Next() {
		var seq int64
		var payload string
		if err := rows.Scan(&seq, &payload); err != nil {
			return nil, afterSeq, err
		}
		var ev domain.ExecutionEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, afterSeq, fmt.Errorf("failed to decode event: %w", err)
		}
		events = append(events, ev)
		lastSeq = seq
	}
	if err := rows.Err(); err != nil {
		return nil, afterSeq, err
	}
	return events, lastSeq, nil
}

// AppendResult records the final result of a trace.
func (s *SQLiteStore) AppendResult(ctx context.Context, result domain.Result) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO results (trace_id, status, output, error, event_id, finished_at) VALUES (?, ?, ?, ?, ?, ?)`,
		result.TraceID, result.Status, nullString(result.Output), nullString(result.Error), nullString(result.EventID), result.FinishedAt)
	return err
}

// ListResults returns the newest results first, at most limit when limit > 0.
func (s *SQLiteStore) ListResults(ctx context.Context, limit int) ([]domain.Result, error) {
	query := `SELECT trace_id, status, output, error, event_id, finished_at FROM results ORDER BY seq DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []domain.Result{}
	for rows.Next() {
		var r domain.Result
		var output, errMsg, eventID sql.NullString
		if err := rows.Scan(&r.TraceID, &r.Status, &output, &errMsg, &eventID, &r.FinishedAt); err != nil {
			return nil, err
		}
		r.Output = output.String
		r.Error = errMsg.String
		r.EventID = eventID.String
		results = append(results, r)
	}
	return results, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
