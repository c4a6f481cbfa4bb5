package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/johnnydevriese/glucose-agent/internal/domain"
	"github.com/johnnydevriese/glucose-agent/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS readings (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		glucose_level REAL NOT NULL,
		date TEXT NOT NULL,
		meal_status TEXT NOT NULL,
		notes TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_readings_session ON readings(session_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSession creates a session record if one does not exist.
func (s *SQLiteStore) EnsureSession(ctx context.Context, sessionID string) error {
	query := `INSERT INTO sessions (session_id, created_at) VALUES (?, ?)
		ON CONFLICT(session_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, sessionID, time.Now().Unix()); err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}
	return nil
}

// InsertReading appends a confirmed reading to a session's history.
// Retries with exponential backoff on SQLite concurrency errors so a busy
// writer does not drop a confirmed reading.
func (s *SQLiteStore) InsertReading(ctx context.Context, sessionID string, reading domain.Reading) error {
	if reading.ID == "" {
		return fmt.Errorf("insert reading: reading has no id")
	}

	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = s.insertReadingOnce(ctx, sessionID, reading)
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) {
			return err
		}
		if i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("InsertReading hit SQLITE_BUSY, retrying",
				"session_id", sessionID,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
		}
	}
	return fmt.Errorf("insert reading after %d attempts: %w", maxRetries, err)
}

func (s *SQLiteStore) insertReadingOnce(ctx context.Context, sessionID string, reading domain.Reading) error {
	query := `
	INSERT INTO readings (id, session_id, glucose_level, date, meal_status, notes, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	var notes interface{}
	if reading.Notes != nil {
		notes = *reading.Notes
	}

	_, err := s.db.ExecContext(ctx, query,
		reading.ID, sessionID, reading.GlucoseLevel,
		reading.Date.String(), string(reading.MealStatus), notes,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// ListReadings returns a session's confirmed readings in confirmation order.
func (s *SQLiteStore) ListReadings(ctx context.Context, sessionID string) ([]domain.Reading, error) {
	query := `
		SELECT id, glucose_level, date, meal_status, notes
		FROM readings WHERE session_id = ?
		ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close readings rows", "error", closeErr)
		}
	}()

	readings := []domain.Reading{}
	for rows.Next() {
		var r domain.Reading
		var date string
		var notes sql.NullString

		if err := rows.Scan(&r.ID, &r.GlucoseLevel, &date, &r.MealStatus, &notes); err != nil {
			return nil, fmt.Errorf("scan reading row: %w", err)
		}

		r.Date, err = domain.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("reading %s has malformed date: %w", r.ID, err)
		}
		if notes.Valid {
			r.Notes = &notes.String
		}
		readings = append(readings, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}

	return readings, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
