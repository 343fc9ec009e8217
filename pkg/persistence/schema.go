package persistence

import (
	"database/sql"
	"errors"
	"fmt"
)

// CurrentSchemaVersion defines the current schema version for migration support.
const CurrentSchemaVersion = 2

// initializeSchemaWithMigrations ensures the database schema is at the current version.
func initializeSchemaWithMigrations(db *sql.DB) error {
	currentVersion, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// If database is empty (version 0), create fresh schema
	if currentVersion == 0 {
		return createSchema(db)
	}

	if currentVersion == CurrentSchemaVersion {
		return nil
	}
	if currentVersion > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", currentVersion, CurrentSchemaVersion)
	}

	return runMigrations(db, currentVersion, CurrentSchemaVersion)
}

// runMigrations applies database migrations from current version to target version.
func runMigrations(db *sql.DB, fromVersion, toVersion int) error {
	for version := fromVersion + 1; version <= toVersion; version++ {
		if err := runMigration(db, version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}

		if err := setSchemaVersion(db, version); err != nil {
			return fmt.Errorf("failed to update schema version to %d: %w", version, err)
		}
	}
	return nil
}

func runMigration(db *sql.DB, version int) error {
	switch version {
	case 2:
		return migrateToVersion2(db)
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}
}

// migrateToVersion2 records the inferred industry and the last deployment run on each site.
func migrateToVersion2(db *sql.DB) error {
	migrations := []string{
		"ALTER TABLE sites ADD COLUMN industry TEXT NOT NULL DEFAULT ''",
		"ALTER TABLE sites ADD COLUMN last_run_id TEXT NOT NULL DEFAULT ''",
		"CREATE INDEX IF NOT EXISTS idx_sites_status ON sites(status)",
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %s: %w", migration, err)
		}
	}
	return nil
}

// schemaV1 is the first released schema. createSchema builds the current one directly; the
// version 1 tables are kept for upgrade tests.
//
//nolint:gochecknoglobals // DDL table
var schemaV1 = []string{
	`CREATE TABLE IF NOT EXISTS sites (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		business_type TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'deploying', 'deployed', 'failed')),
		confidence REAL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		last_error TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS site_snapshots (
		site_id TEXT NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (site_id, kind)
	)`,

	`CREATE TABLE IF NOT EXISTS deployment_steps (
		site_id TEXT NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'running', 'completed', 'failed')),
		message TEXT NOT NULL DEFAULT '',
		optional INTEGER NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL DEFAULT '',
		finished_at TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL,
		PRIMARY KEY (site_id, run_id, seq)
	)`,

	// Credentials live only in secret_blob, sealed with the repository passphrase.
	`CREATE TABLE IF NOT EXISTS targets (
		site_id TEXT PRIMARY KEY REFERENCES sites(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		ssh_host TEXT NOT NULL DEFAULT '',
		ssh_port INTEGER NOT NULL DEFAULT 0,
		ssh_user TEXT NOT NULL DEFAULT '',
		working_directory TEXT NOT NULL DEFAULT '',
		known_hosts_file TEXT NOT NULL DEFAULT '',
		insecure_host_key INTEGER NOT NULL DEFAULT 0,
		api_user TEXT NOT NULL DEFAULT '',
		secret_blob BLOB,
		updated_at TEXT NOT NULL
	)`,

	"CREATE INDEX IF NOT EXISTS idx_deployment_steps_run ON deployment_steps(site_id, run_id)",
}

// createSchema creates all required tables and indices at the current version.
func createSchema(db *sql.DB) error {
	for _, ddl := range schemaV1 {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	if err := migrateToVersion2(db); err != nil {
		return err
	}

	if err := setSchemaVersion(db, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

// setSchemaVersion records the current schema version.
func setSchemaVersion(db *sql.DB, version int) error {
	_, err := db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version)
	if err != nil {
		return fmt.Errorf("database exec error: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the current schema version from the database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`)
	if err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil // No version set yet
	}
	if err != nil {
		return 0, fmt.Errorf("schema version scan error: %w", err)
	}
	return version, nil
}
