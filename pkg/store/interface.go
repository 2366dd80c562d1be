package store

import (
	"time"

	"github.com/psantana5/bootguard/pkg/analytics"
)

// Store persists analytics history. Both SQLite and PostgreSQL
// implement this interface; it satisfies analytics.Backend so any
// implementation can sit behind the analytics store.
type Store interface {
	analytics.Backend

	// Lifecycle
	Close() error
	HealthCheck() error
	Vacuum() error
}

// Config holds database configuration
type Config struct {
	Type string // "sqlite" or "postgres"
	DSN  string // Connection string

	// PostgreSQL specific
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// SQLite specific
	Path string
}

// NewStore creates a store based on configuration
func NewStore(config Config) (Store, error) {
	switch config.Type {
	case "postgres", "postgresql":
		return NewPostgreSQLStore(config)
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		path := config.Path
		if path == "" {
			path = config.DSN
		}
		if path == "" {
			path = "bootguard.db"
		}
		return NewSQLiteStore(path)
	default:
		return nil, ErrUnsupportedDatabase
	}
}

var (
	ErrUnsupportedDatabase = NewError("unsupported database type")
)

// NewError creates a new error with message
func NewError(message string) error {
	return &storeError{message: message}
}

type storeError struct {
	message string
}

func (e *storeError) Error() string {
	return e.message
}
