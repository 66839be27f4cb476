package db

// SchemaSQL is the complete modern schema for fresh smartpos installs.
// This schema reflects the current state after all migrations.
//
// # Schema Drift Protection
//
// This is the SINGLE SOURCE OF TRUTH for the database schema. All tests use
// this schema via GetSchemaSQL(). If repository code references a column
// that does not exist here, tests fail immediately with "no such column",
// which catches drift at development time instead of on a terminal.
//
// When adding new columns or tables:
//  1. Add a migration in internal/db/migrations.go
//  2. Update SchemaSQL here
const SchemaSQL = `
-- Sync queue (ordered, durable, at-least-once delivery log)
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
	status TEXT NOT NULL CHECK(status IN ('pending', 'in_flight', 'acknowledged', 'failed', 'quarantined')) DEFAULT 'pending',
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	in_flight_since INTEGER,
	enqueued_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status);
CREATE INDEX IF NOT EXISTS idx_sync_queue_entity ON sync_queue(entity_type, entity_id);

-- Sync status (one row per entity type and branch)
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

-- Conflict audit trail (losing changes are recorded, never dropped)
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

-- Branch-local per-entity version counters
CREATE TABLE IF NOT EXISTS entity_versions (
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	version INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (entity_type, entity_id)
);

-- Authoritative current state per entity (local store; merged store on cloud)
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

-- Terminal operating sessions (cashier identity, shift reference)
CREATE TABLE IF NOT EXISTS active_sessions (
	id TEXT PRIMARY KEY,
	branch TEXT NOT NULL,
	cashier TEXT NOT NULL,
	shift_ref TEXT,
	offline INTEGER NOT NULL DEFAULT 0,
	opened_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	closed_at DATETIME
);

-- Cloud authority change feed (cursor space for pulls, dedup on change_id)
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
`

// GetSchemaSQL returns the authoritative schema SQL for use by tests.
// Tests should use this instead of hardcoding their own schema to prevent drift.
func GetSchemaSQL() string {
	return SchemaSQL
}
