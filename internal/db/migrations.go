package db

import (
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.DB) error
}

// migrations is the list of all migrations in order
var migrations = []Migration{
	{
		Version: 1,
		Name:    "replace_json_queue_with_sync_queue_table",
		Up:      migrationV1,
	},
	{
		Version: 2,
		Name:    "add_quarantined_status_and_attempt_tracking",
		Up:      migrationV2,
	},
	{
		Version: 3,
		Name:    "add_offline_flag_to_active_sessions",
		Up:      migrationV3,
	},
}

// RunMigrations executes all pending migrations
func RunMigrations(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var currentVersion int
	err = conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(conn); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		_, err = tx.Exec("INSERT INTO schema_version (version) VALUES (?)", migration.Version)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// migrationV1 creates the full baseline schema. Early deployments kept the
// pending queue in a flat JSON file next to the database; this migration
// introduces the durable table-backed queue and status store.
func migrationV1(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS sync_queue (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			operation TEXT NOT NULL CHECK(operation IN ('create', 'update', 'delete')),
			payload BLOB NOT NULL,
			origin_branch TEXT NOT NULL,
			local_timestamp INTEGER NOT NULL,
			version INTEGER NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('pending', 'in_flight', 'acknowledged', 'failed')) DEFAULT 'pending',
			in_flight_since INTEGER,
			enqueued_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status);
		CREATE INDEX IF NOT EXISTS idx_sync_queue_entity ON sync_queue(entity_type, entity_id);

		CREATE TABLE IF NOT EXISTS sync_status (
			entity_type TEXT NOT NULL,
			branch TEXT NOT NULL,
			last_acked_version INTEGER NOT NULL DEFAULT 0,
			last_pull_cursor TEXT NOT NULL DEFAULT '',
			last_success_at INTEGER,
			last_attempt_at INTEGER,
			consecutive_failures INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (entity_type, branch)
		);

		CREATE TABLE IF NOT EXISTS conflict_audit (
			id TEXT PRIMARY KEY,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			winner_branch TEXT NOT NULL,
			winner_version INTEGER NOT NULL,
			loser_branch TEXT NOT NULL,
			loser_version INTEGER NOT NULL,
			loser_payload BLOB,
			reason TEXT NOT NULL,
			resolved_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conflict_audit_entity ON conflict_audit(entity_type, entity_id);

		CREATE TABLE IF NOT EXISTS entity_versions (
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (entity_type, entity_id)
		);

		CREATE TABLE IF NOT EXISTS entities (
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			payload BLOB NOT NULL,
			version INTEGER NOT NULL,
			origin_branch TEXT NOT NULL,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (entity_type, entity_id)
		);

		CREATE TABLE IF NOT EXISTS active_sessions (
			id TEXT PRIMARY KEY,
			branch TEXT NOT NULL,
			cashier TEXT NOT NULL,
			shift_ref TEXT,
			opened_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			closed_at DATETIME
		);

		CREATE TABLE IF NOT EXISTS cloud_changes (
			feed_seq INTEGER PRIMARY KEY AUTOINCREMENT,
			change_id TEXT NOT NULL UNIQUE,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			operation TEXT NOT NULL CHECK(operation IN ('create', 'update', 'delete')),
			payload BLOB NOT NULL,
			origin_branch TEXT NOT NULL,
			local_timestamp INTEGER NOT NULL,
			version INTEGER NOT NULL,
			received_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_cloud_changes_branch ON cloud_changes(origin_branch);
	`)
	return err
}

// migrationV2 rebuilds sync_queue to allow the quarantined status and to
// track delivery attempts. SQLite cannot alter a CHECK constraint in place.
func migrationV2(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE TABLE sync_queue_new (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			operation TEXT NOT NULL CHECK(operation IN ('create', 'update', 'delete')),
			payload BLOB NOT NULL,
			origin_branch TEXT NOT NULL,
			local_timestamp INTEGER NOT NULL,
			version INTEGER NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('pending', 'in_flight', 'acknowledged', 'failed', 'quarantined')) DEFAULT 'pending',
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			in_flight_since INTEGER,
			enqueued_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		INSERT INTO sync_queue_new (seq, id, entity_type, entity_id, operation, payload, origin_branch, local_timestamp, version, status, in_flight_since, enqueued_at)
		SELECT seq, id, entity_type, entity_id, operation, payload, origin_branch, local_timestamp, version, status, in_flight_since, enqueued_at
		FROM sync_queue;

		DROP TABLE sync_queue;
		ALTER TABLE sync_queue_new RENAME TO sync_queue;

		CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status);
		CREATE INDEX IF NOT EXISTS idx_sync_queue_entity ON sync_queue(entity_type, entity_id);
	`)
	return err
}

// migrationV3 adds the operator-visible offline flag to sessions.
func migrationV3(conn *sql.DB) error {
	_, err := conn.Exec(`ALTER TABLE active_sessions ADD COLUMN offline INTEGER NOT NULL DEFAULT 0`)
	return err
}
