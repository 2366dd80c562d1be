package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/psantana5/bootguard/pkg/analytics"
	"github.com/psantana5/bootguard/pkg/retry"
)

// PostgreSQLStore implements Store using PostgreSQL
type PostgreSQLStore struct {
	db *sql.DB
}

// NewPostgreSQLStore creates a new PostgreSQL store
func NewPostgreSQLStore(config Config) (*PostgreSQLStore, error) {
	dsn := config.DSN
	if dsn == "" {
		return nil, fmt.Errorf("PostgreSQL DSN is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(2)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	// The database may still be coming up when the engine starts;
	// ping with backoff before giving up.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := retry.Do(ctx, retry.DefaultConfig(), db.Ping); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgreSQLStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *PostgreSQLStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS crashes (
		id TEXT PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		cause_type TEXT NOT NULL,
		message TEXT,
		stack_summary TEXT,
		component TEXT,
		app_version TEXT,
		os_description TEXT,
		runtime_version TEXT,
		memory_usage_mb DOUBLE PRECISION,
		context JSONB
	);

	CREATE TABLE IF NOT EXISTS recovery_attempts (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		recovery_action TEXT NOT NULL,
		was_successful BOOLEAN NOT NULL,
		component TEXT,
		triggering_issue TEXT,
		duration_ns BIGINT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS safe_mode_sessions (
		id TEXT PRIMARY KEY,
		entry_reason TEXT,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ,
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
func (s *PostgreSQLStore) AppendCrash(r analytics.CrashReport) error {
	ctx, err := json.Marshal(r.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal crash context: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO crashes
		(id, timestamp, cause_type, message, stack_summary, component,
		 app_version, os_description, runtime_version, memory_usage_mb, context)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`, r.ID, r.Timestamp, r.CauseType, r.Message, r.StackSummary, r.Component,
		r.AppVersion, r.OSDescription, r.RuntimeVersion, r.MemoryUsageMB, string(ctx))

	return err
}

// AppendRecoveryAttempt stores a recovery attempt
func (s *PostgreSQLStore) AppendRecoveryAttempt(a analytics.RecoveryAttempt) error {
	_, err := s.db.Exec(`
		INSERT INTO recovery_attempts
		(timestamp, recovery_action, was_successful, component, triggering_issue, duration_ns)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.Timestamp, a.RecoveryAction, a.WasSuccessful, a.Component, a.TriggeringIssue, a.Duration.Nanoseconds())

	return err
}

// AppendSafeModeUsage stores a safe mode session
func (s *PostgreSQLStore) AppendSafeModeUsage(u analytics.SafeModeUsage) error {
	var endTime any
	if !u.EndTime.IsZero() {
		endTime = u.EndTime
	}

	_, err := s.db.Exec(`
		INSERT INTO safe_mode_sessions
		(id, entry_reason, start_time, end_time, exit_reason,
		 attempted_normal_startup, normal_startup_successful)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			end_time = EXCLUDED.end_time,
			exit_reason = EXCLUDED.exit_reason,
			attempted_normal_startup = EXCLUDED.attempted_normal_startup,
			normal_startup_successful = EXCLUDED.normal_startup_successful
	`, u.ID, u.EntryReason, u.StartTime, endTime, u.ExitReason,
		u.AttemptedNormalStartup, u.NormalStartupSuccessful)

	return err
}

// LoadCrashes returns all stored crash reports ordered by timestamp
func (s *PostgreSQLStore) LoadCrashes() ([]analytics.CrashReport, error) {
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
		var ctxJSON []byte
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.CauseType, &r.Message, &r.StackSummary,
			&r.Component, &r.AppVersion, &r.OSDescription, &r.RuntimeVersion,
			&r.MemoryUsageMB, &ctxJSON); err != nil {
			return nil, err
		}
		if len(ctxJSON) > 0 {
			if err := json.Unmarshal(ctxJSON, &r.Context); err != nil {
				return nil, fmt.Errorf("failed to unmarshal crash context: %w", err)
			}
		}
		crashes = append(crashes, r)
	}
	return crashes, rows.Err()
}

// LoadRecoveryAttempts returns all stored attempts ordered by timestamp
func (s *PostgreSQLStore) LoadRecoveryAttempts() ([]analytics.RecoveryAttempt, error) {
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
func (s *PostgreSQLStore) LoadSafeModeUsages() ([]analytics.SafeModeUsage, error) {
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
func (s *PostgreSQLStore) Prune(cutoff time.Time) (int64, error) {
	var total int64

	statements := []string{
		`DELETE FROM crashes WHERE timestamp < $1`,
		`DELETE FROM recovery_attempts WHERE timestamp < $1`,
		`DELETE FROM safe_mode_sessions WHERE start_time < $1`,
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
func (s *PostgreSQLStore) Close() error {
	return s.db.Close()
}

// HealthCheck verifies the database is reachable
func (s *PostgreSQLStore) HealthCheck() error {
	return s.db.Ping()
}

// Vacuum reclaims space from deleted records
func (s *PostgreSQLStore) Vacuum() error {
	_, err := s.db.Exec("VACUUM")
	return err
}
