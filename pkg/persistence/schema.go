package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// CurrentSchemaVersion defines the current schema version for migration support.
const CurrentSchemaVersion = 2

// initializeSchemaWithMigrations ensures the database schema is at the current version.
func initializeSchemaWithMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	currentVersion, err := GetSchemaVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	if currentVersion > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", currentVersion, CurrentSchemaVersion)
	}

	for version := currentVersion + 1; version <= CurrentSchemaVersion; version++ {
		if err := runMigration(ctx, db, version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}
		if err := setSchemaVersion(ctx, db, version); err != nil {
			return fmt.Errorf("failed to update schema version to %d: %w", version, err)
		}
	}
	return nil
}

// GetSchemaVersion returns the recorded schema version, 0 for a fresh database.
func GetSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to query schema version: %w", err)
	}
	return int(version.Int64), nil
}

func setSchemaVersion(ctx context.Context, db *sql.DB, version int) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
		return fmt.Errorf("failed to clear schema version: %w", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

// runMigration applies a specific version migration.
func runMigration(ctx context.Context, db *sql.DB, version int) error {
	switch version {
	case 1:
		return migrateToVersion1(ctx, db)
	case 2:
		return migrateToVersion2(ctx, db)
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}
}

// migrateToVersion1 creates the invocation history table.
func migrateToVersion1(ctx context.Context, db *sql.DB) error {
	return execAll(ctx, db,
		`CREATE TABLE IF NOT EXISTS feedback_history (
			id TEXT PRIMARY KEY,
			project_directory TEXT NOT NULL DEFAULT '',
			prompt TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			strategy TEXT NOT NULL DEFAULT '',
			feedback TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_history_created_at ON feedback_history(created_at)`,
	)
}

// migrateToVersion2 records the UI exit code and indexes outcomes for stats.
func migrateToVersion2(ctx context.Context, db *sql.DB) error {
	return execAll(ctx, db,
		`ALTER TABLE feedback_history ADD COLUMN exit_code INTEGER`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_history_outcome ON feedback_history(outcome)`,
	)
}

func execAll(ctx context.Context, db *sql.DB, statements ...string) error {
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute migration: %s: %w", stmt, err)
		}
	}
	return nil
}
