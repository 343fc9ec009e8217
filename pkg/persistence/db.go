// Package persistence stores sites, their generated snapshots, deployment step history and
// deployment targets in SQLite. Store implements deploy.SiteRepository.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"sitebuilder/pkg/logx"
)

// ErrNotFound is returned when a site, snapshot or target does not exist.
var ErrNotFound = errors.New("not found")

// ErrNoPassphrase is returned when target secrets are stored or read without a repository passphrase.
var ErrNoPassphrase = errors.New("target secrets require a repository passphrase")

// Store is the SQLite site repository. It is safe for concurrent use.
type Store struct {
	db         *sql.DB
	passphrase string
	now        func() time.Time
	logger     *logx.Logger
}

// Open opens (creating if needed) the database at dbPath and migrates it to the current schema.
// passphrase encrypts target credentials; it may be empty if no target carries secrets.
func Open(dbPath, passphrase string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initializeSchemaWithMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &Store{
		db:         db,
		passphrase: passphrase,
		now:        time.Now,
		logger:     logx.NewLogger("persistence"),
	}
	s.logger.Info("📦 Site repository ready: %s", dbPath)
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func (s *Store) timestamp() string {
	return formatTime(s.now())
}

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
