package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	// Register the sqlite driver
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound       = errors.New("not found in database")
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrStale is returned when a conditional write finds the record in a
	// different state than the caller expected.
	ErrStale = errors.New("record changed concurrently")
)

// Driver names accepted by Open
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Repository provides database operations for users and claims
type Repository struct {
	db      *sql.DB
	driver  string
	builder squirrel.StatementBuilderType
}

// NewRepository initializes a new repository over an open connection
func NewRepository(db *sql.DB, driver string) *Repository {
	var format squirrel.PlaceholderFormat = squirrel.Dollar
	if driver == DriverSQLite {
		format = squirrel.Question
	}
	return &Repository{
		db:      db,
		driver:  driver,
		builder: squirrel.StatementBuilder.PlaceholderFormat(format),
	}
}

// Open connects to the database, verifies the connection and creates the schema
func Open(ctx context.Context, driver, dsn string) (*Repository, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// A single connection keeps ":memory:" databases shared across queries.
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	r := NewRepository(db, driver)
	if err := r.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Close releases the underlying connection pool
func (r *Repository) Close() error {
	return r.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL REFERENCES users(id),
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		claim_amount DOUBLE PRECISION NOT NULL,
		description TEXT NOT NULL,
		document_key TEXT NOT NULL DEFAULT '',
		document_url TEXT NOT NULL DEFAULT '',
		document_name TEXT NOT NULL DEFAULT '',
		document_type TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		approved_amount DOUBLE PRECISION,
		insurer_comments TEXT NOT NULL DEFAULT '',
		submission_date TIMESTAMP NOT NULL,
		last_updated TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS claims_patient_idx ON claims (patient_id)`,
	`CREATE INDEX IF NOT EXISTS claims_submission_idx ON claims (submission_date)`,
	`CREATE INDEX IF NOT EXISTS claims_document_idx ON claims (document_key)`,
}

// Migrate creates tables and indexes that do not exist yet
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
