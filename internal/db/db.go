// Package db persists counting sessions and settings in SQLite. The
// detector pipeline itself never touches the database; writes happen at
// session boundaries and through the batching event writer.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// SettingsStore is the narrow persistence surface the counter core needs.
// Callers inject it; nothing below main references the database directly.
type SettingsStore interface {
	LoadSetting(ctx context.Context, key string) (string, error)
	SaveSetting(ctx context.Context, key, value string) error
}

func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; the event writer and the API share
	// this pool.
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	return &DB{sqlDB}, nil
}

// LoadSetting returns the stored value for key, or ErrNotFound.
func (db *DB) LoadSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("loading setting %q: %w", key, err)
	}
	return value, nil
}

// SaveSetting upserts a settings row.
func (db *DB) SaveSetting(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("saving setting %q: %w", key, err)
	}
	return nil
}

// Session is a counting run between session start and stop.
type Session struct {
	SessionID      string  `json:"session_id"`
	Algorithm      string  `json:"algorithm"`
	StartedUnixNs  int64   `json:"started_unix_ns"`
	EndedUnixNs    *int64  `json:"ended_unix_ns,omitempty"`
	Revolutions    uint64  `json:"revolutions"`
	CircumferenceM float64 `json:"circumference_m"`
	DistanceM      float64 `json:"distance_m"`
}

// StartSession records a new session and returns its generated ID.
func (db *DB) StartSession(ctx context.Context, algorithm string, startedUnixNs int64, circumferenceM float64) (string, error) {
	id := uuid.NewString()
	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, algorithm, started_unix_ns, circumference_m)
		VALUES (?, ?, ?, ?)`,
		id, algorithm, startedUnixNs, circumferenceM)
	if err != nil {
		return "", fmt.Errorf("starting session: %w", err)
	}
	return id, nil
}

// EndSession finalizes a session with its end time and totals.
func (db *DB) EndSession(ctx context.Context, sessionID string, endedUnixNs int64, revolutions uint64, distanceM float64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE sessions SET ended_unix_ns = ?, revolutions = ?, distance_m = ?
		WHERE session_id = ?`,
		endedUnixNs, int64(revolutions), distanceM, sessionID)
	if err != nil {
		return fmt.Errorf("ending session %s: %w", sessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSession returns one session by ID.
func (db *DB) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	row := db.QueryRowContext(ctx, `
		SELECT session_id, algorithm, started_unix_ns, ended_unix_ns,
		       revolutions, circumference_m, distance_m
		FROM sessions WHERE session_id = ?`, sessionID)
	return scanSession(row)
}

// ListSessions returns the most recent sessions, newest first.
func (db *DB) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT session_id, algorithm, started_unix_ns, ended_unix_ns,
		       revolutions, circumference_m, distance_m
		FROM sessions ORDER BY started_unix_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var s Session
	var revolutions int64
	var ended sql.NullInt64
	err := row.Scan(&s.SessionID, &s.Algorithm, &s.StartedUnixNs, &ended,
		&revolutions, &s.CircumferenceM, &s.DistanceM)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	s.Revolutions = uint64(revolutions)
	if ended.Valid {
		s.EndedUnixNs = &ended.Int64
	}
	return &s, nil
}

// RevolutionEventRow is one persisted revolution within a session.
type RevolutionEventRow struct {
	SessionID  string  `json:"session_id"`
	Revolution uint64  `json:"revolution"`
	UnixNs     int64   `json:"unix_ns"`
	Quality    float64 `json:"quality"`
}

// InsertRevolutionEvents writes a batch of events in one transaction.
func (db *DB) InsertRevolutionEvents(ctx context.Context, events []RevolutionEventRow) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			// ErrTxDone means the transaction was already committed.
			log.Printf("warning: failed to rollback transaction: %v", err)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO revolution_events (session_id, revolution, unix_ns, quality)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.SessionID, int64(e.Revolution), e.UnixNs, e.Quality); err != nil {
			return fmt.Errorf("inserting revolution %d: %w", e.Revolution, err)
		}
	}
	return tx.Commit()
}

// SessionEvents returns a session's revolution events in order.
func (db *DB) SessionEvents(ctx context.Context, sessionID string) ([]RevolutionEventRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT session_id, revolution, unix_ns, quality
		FROM revolution_events WHERE session_id = ? ORDER BY revolution`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading events for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var events []RevolutionEventRow
	for rows.Next() {
		var e RevolutionEventRow
		var revolution int64
		if err := rows.Scan(&e.SessionID, &revolution, &e.UnixNs, &e.Quality); err != nil {
			return nil, err
		}
		e.Revolution = uint64(revolution)
		events = append(events, e)
	}
	return events, rows.Err()
}

// SessionSummary aggregates a session's events for reporting.
type SessionSummary struct {
	Session
	EventCount  int     `json:"event_count"`
	AvgQuality  float64 `json:"avg_quality"`
	MinQuality  float64 `json:"min_quality"`
	DurationSec float64 `json:"duration_sec"`
	AvgRPM      float64 `json:"avg_rpm"`
}

// GetSessionSummary returns a session with aggregate event statistics.
func (db *DB) GetSessionSummary(ctx context.Context, sessionID string) (*SessionSummary, error) {
	s, err := db.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	summary := SessionSummary{Session: *s}

	row := db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(AVG(quality), 0), COALESCE(MIN(quality), 0)
		FROM revolution_events WHERE session_id = ?`, sessionID)
	if err := row.Scan(&summary.EventCount, &summary.AvgQuality, &summary.MinQuality); err != nil {
		return nil, fmt.Errorf("summarising session %s: %w", sessionID, err)
	}

	if s.EndedUnixNs != nil && *s.EndedUnixNs > s.StartedUnixNs {
		summary.DurationSec = time.Duration(*s.EndedUnixNs - s.StartedUnixNs).Seconds()
		if summary.DurationSec > 0 {
			summary.AvgRPM = float64(s.Revolutions) / summary.DurationSec * 60
		}
	}
	return &summary, nil
}
