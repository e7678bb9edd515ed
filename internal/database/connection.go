package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DefaultSQLitePath is used when no DSN is configured
const DefaultSQLitePath = "data/mindmentor.db"

// Open establishes a connection and makes sure the schema exists.
// dbType is "sqlite" or "postgres".
func Open(dbType, dsn string) (*sqlx.DB, error) {
	switch strings.ToLower(dbType) {
	case "", "sqlite", DriverSQLite:
		return openSQLite(dsn)
	case DriverPostgres, "postgresql":
		return openPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}
}

func openSQLite(dsn string) (*sqlx.DB, error) {
	if dsn == "" {
		dsn = DefaultSQLitePath
	}
	if !strings.Contains(dsn, ":memory:") {
		// Create data directory if it doesn't exist
		if dir := filepath.Dir(strings.TrimPrefix(dsn, "file:")); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %v", err)
			}
		}
	}

	db, err := sqlx.Connect(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %v", err)
	}

	// SQLite doesn't support multiple writers; a single connection also
	// keeps an in-memory database alive for the life of the pool
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openPostgres(dsn string) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, errors.New("postgres requires DATABASE_URL")
	}
	db, err := sqlx.Connect(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// schema is shared by both drivers: no autoincrement, dates as TEXT
// (YYYY-MM-DD), string lists as JSON text
var schema = []struct {
	name string
	ddl  string
}{
	{"llm_cache", `
		CREATE TABLE IF NOT EXISTS llm_cache (
			cache_key TEXT PRIMARY KEY,
			cost_tier TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			last_accessed_at TIMESTAMP NOT NULL,
			access_count BIGINT NOT NULL DEFAULT 0
		)`},
	{"topics", `
		CREATE TABLE IF NOT EXISTS topics (
			id BIGINT PRIMARY KEY,
			subject TEXT NOT NULL,
			name TEXT NOT NULL,
			exam_weight DOUBLE PRECISION NOT NULL,
			prerequisites TEXT NOT NULL DEFAULT '[]'
		)`},
	{"topic_mastery", `
		CREATE TABLE IF NOT EXISTS topic_mastery (
			user_id BIGINT NOT NULL,
			topic_id BIGINT NOT NULL,
			mastery_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			accuracy DOUBLE PRECISION NOT NULL DEFAULT 0.5,
			avg_response_time DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_attempts INTEGER NOT NULL DEFAULT 0,
			correct_attempts INTEGER NOT NULL DEFAULT 0,
			revision_count INTEGER NOT NULL DEFAULT 0,
			last_attempt_date TIMESTAMP,
			ease_factor DOUBLE PRECISION NOT NULL DEFAULT 2.5,
			interval_days INTEGER NOT NULL DEFAULT 0,
			repetition_number INTEGER NOT NULL DEFAULT 0,
			next_review_date TIMESTAMP,
			weak_concepts TEXT NOT NULL DEFAULT '[]',
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, topic_id)
		)`},
	{"review_logs", `
		CREATE TABLE IF NOT EXISTS review_logs (
			id TEXT PRIMARY KEY,
			idempotency_key TEXT NOT NULL UNIQUE,
			user_id BIGINT NOT NULL,
			topic_id BIGINT NOT NULL,
			quality INTEGER NOT NULL,
			interval_days INTEGER NOT NULL,
			ease_factor DOUBLE PRECISION NOT NULL,
			reviewed_at TIMESTAMP NOT NULL
		)`},
	{"schedule_days", `
		CREATE TABLE IF NOT EXISTS schedule_days (
			user_id BIGINT NOT NULL,
			day TEXT NOT NULL,
			generated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, day)
		)`},
	{"schedule_items", `
		CREATE TABLE IF NOT EXISTS schedule_items (
			user_id BIGINT NOT NULL,
			day TEXT NOT NULL,
			position INTEGER NOT NULL,
			topic_id BIGINT NOT NULL,
			topic_name TEXT NOT NULL,
			subject TEXT NOT NULL,
			activity_type TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			priority DOUBLE PRECISION NOT NULL,
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (user_id, day, position),
			FOREIGN KEY (user_id, day) REFERENCES schedule_days(user_id, day) ON DELETE CASCADE
		)`},
	{"quiz_attempts", `
		CREATE TABLE IF NOT EXISTS quiz_attempts (
			id TEXT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			topic_id BIGINT NOT NULL,
			kind TEXT NOT NULL,
			total INTEGER NOT NULL,
			correct INTEGER NOT NULL,
			response_seconds DOUBLE PRECISION NOT NULL,
			weak_concepts TEXT NOT NULL DEFAULT '[]',
			mastered_concepts TEXT NOT NULL DEFAULT '[]',
			taken_at TIMESTAMP NOT NULL
		)`},
	{"study_preferences", `
		CREATE TABLE IF NOT EXISTS study_preferences (
			user_id BIGINT PRIMARY KEY,
			chat_id BIGINT NOT NULL DEFAULT 0,
			daily_minutes INTEGER NOT NULL,
			subjects TEXT NOT NULL DEFAULT '[]',
			notification_hour INTEGER NOT NULL DEFAULT 9,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at TIMESTAMP NOT NULL
		)`},
}

// initializeSchema creates necessary tables if they don't exist
func initializeSchema(db *sqlx.DB) error {
	for _, t := range schema {
		if _, err := db.Exec(t.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %v", t.name, err)
		}
	}
	return nil
}

// isPostgres reports whether row locks are available
func isPostgres(db interface{ DriverName() string }) bool {
	return db.DriverName() == DriverPostgres
}

// isUniqueViolation recognises duplicate-key errors from either driver
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
