package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/psantana5/bootguard/pkg/analytics"
)

// SQLiteStore is a SQLite-based implementation of the analytics store
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// WAL plus a busy timeout keeps a watchdog writer and a report
	// reader from tripping over each other; a single open connection
	// serializes writes to avoid SQLITE_BUSY.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database schema
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS crashes (
		id TEXT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		cause_type TEXT NOT NULL,
		message TEXT,
		stack_summary TEXT,
		component TEXT,
		app_version TEXT,
		os_description TEXT,
		runtime_version TEXT,
		memory_usage_mb REAL,
		context TEXT
	);

	CREATE TABLE IF NOT EXISTS recovery_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		recovery_action TEXT NOT NULL,
		was_successful BOOLEAN NOT NULL,
		component TEXT,
		triggering_issue TEXT,
		duration_ns INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS safe_mode_sessions (
		id TEXT PRIMARY KEY,
		entry_reason TEXT,
		start_time DATETIME NOT NULL,
		end_time DATETIME,
		exit_reason TEXT,
		attempted_normal_startup BOOLEAN NOT NULL,
		normal_startup_successful BOOLEAN NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_crashes_timestamp ON crashes(timestamp);
	CREATE INDEX IF NOT EXISTS idx_attempts_timestamp ON recovery_attempts(timestamp);
	CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON safe_mode_sessions(start_time);
	`

	_, err := s.db.Exec(schema)
	return err
}

// AppendCrash stores a crash report
func (s *SQLiteStore) AppendCrash(r analytics.CrashReport) error {
	ctx, err := json.Marshal(r.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal crash context: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO crashes
		(id, timestamp, cause_type, message, stack_summary, component,
		 app_version, os_description, runtime_version, memory_usage_mb, context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Timestamp, r.CauseType, r.Message, r.StackSummary, r.Component,
		r.AppVersion, r.OSDescription, r.RuntimeVersion, r.MemoryUsageMB, string(ctx))

	return err
}

// AppendRecoveryAttempt stores a recovery attempt
func (s *SQLiteStore) AppendRecoveryAttempt(a analytics.RecoveryAttempt) error {
	_, err := s.db.Exec(`
		INSERT INTO recovery_attempts
		(timestamp, recovery_action, was_successful, component, triggering_issue, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.Timestamp, a.RecoveryAction, a.WasSuccessful, a.Component, a.TriggeringIssue, a.Duration.Nanoseconds())

	return err
}

// AppendSafeModeUsage stores a safe mode session
func (s *SQLiteStore) AppendSafeModeUsage(u analytics.SafeModeUsage) error {
	var endTime any
	if !u.EndTime.IsZero() {
		endTime = u.EndTime
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO safe_mode_sessions
		(id, entry_reason, start_time, end_time, exit_reason,
		 attempted_normal_startup, normal_startup_successful)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.EntryReason, u.StartTime, endTime, u.ExitReason,
		u.AttemptedNormalStartup, u.NormalStartupSuccessful)

	return err
}

// LoadCrashes returns all stored crash reports ordered by timestamp
func (s *SQLiteStore) LoadCrashes() ([]analytics.CrashReport, error) {
	rows, err := s.db.Query(`
		SELECT id, timestamp, cause_type, message, stack_summary, component,
		       app_version, os_description, runtime_version, memory_usage_mb, context
		FROM crashes ORDER BY timestamp
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var crashes []analytics.CrashReport
	for rows.Next() {
		var r analytics.CrashReport
		var ctxJSON string
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.CauseType, &r.Message, &r.StackSummary,
			&r.Component, &r.AppVersion, &r.OSDescription, &r.RuntimeVersion,
			&r.MemoryUsageMB, &ctxJSON); err != nil {
			return nil, err
		}
		if ctxJSON != "" && ctxJSON != "null" {
			if err := json.Unmarshal([]byte(ctxJSON), &r.Context); err != nil {
				return nil, fmt.Errorf("failed to unmarshal crash context: %w", err)
			}
		}
		crashes = append(crashes, r)
	}
	return crashes, rows.Err()
}

// LoadRecoveryAttempts returns all stored attempts ordered by timestamp
func (s *SQLiteStore) LoadRecoveryAttempts() ([]analytics.RecoveryAttempt, error) {
	rows, err := s.db.Query(`
		SELECT timestamp, recovery_action, was_successful, component, triggering_issue, duration_ns
		FROM recovery_attempts ORDER BY timestamp
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []analytics.RecoveryAttempt
	for rows.Next() {
		var a analytics.RecoveryAttempt
		var durationNS int64
		if err := rows.Scan(&a.Timestamp, &a.RecoveryAction, &a.WasSuccessful,
			&a.Component, &a.TriggeringIssue, &durationNS); err != nil {
			return nil, err
		}
		a.Duration = time.Duration(durationNS)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// LoadSafeModeUsages returns all stored sessions ordered by start time
func (s *SQLiteStore) LoadSafeModeUsages() ([]analytics.SafeModeUsage, error) {
	rows, err := s.db.Query(`
		SELECT id, entry_reason, start_time, end_time, exit_reason,
		       attempted_normal_startup, normal_startup_successful
		FROM safe_mode_sessions ORDER BY start_time
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []analytics.SafeModeUsage
	for rows.Next() {
		var u analytics.SafeModeUsage
		var endTime sql.NullTime
		if err := rows.Scan(&u.ID, &u.EntryReason, &u.StartTime, &endTime, &u.ExitReason,
			&u.AttemptedNormalStartup, &u.NormalStartupSuccessful); err != nil {
			return nil, err
		}
		if endTime.Valid {
			u.EndTime = endTime.Time
		}
		sessions = append(sessions, u)
	}
	return sessions, rows.Err()
}

// Prune deletes records older than cutoff from all tables
func (s *SQLiteStore) Prune(cutoff time.Time) (int64, error) {
	var total int64

	statements := []string{
		`DELETE FROM crashes WHERE timestamp < ?`,
		`DELETE FROM recovery_attempts WHERE timestamp < ?`,
		`DELETE FROM safe_mode_sessions WHERE start_time < ?`,
	}
	for _, stmt := range statements {
		res, err := s.db.Exec(stmt, cutoff)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// HealthCheck verifies the database is reachable
func (s *SQLiteStore) HealthCheck() error {
	return s.db.Ping()
}

// Vacuum reclaims space from deleted records
func (s *SQLiteStore) Vacuum() error {
	_, err := s.db.Exec("VACUUM")
	return err
}
