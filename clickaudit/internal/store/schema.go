package store

// Schema is the audit log: one insert-only table. The triggers make UPDATE
// and DELETE fail at the database level regardless of the caller.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS external_link_snapshot (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		origin_url      TEXT    NOT NULL,
		click_type      TEXT    NOT NULL CHECK (click_type IN ('text','css','xpath','aria')),
		click_value     TEXT    NOT NULL,
		page_url        TEXT,
		page_hash       TEXT,
		screenshot_path TEXT    NOT NULL CHECK (screenshot_path <> ''),
		created_at      INTEGER NOT NULL,
		CHECK (page_hash IS NULL OR page_url IS NOT NULL)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_els_origin ON external_link_snapshot(origin_url)`,
	`CREATE INDEX IF NOT EXISTS idx_els_created ON external_link_snapshot(created_at)`,
	`CREATE TRIGGER IF NOT EXISTS external_link_snapshot_no_update
		BEFORE UPDATE ON external_link_snapshot
		BEGIN SELECT RAISE(ABORT, 'external_link_snapshot is append-only'); END`,
	`CREATE TRIGGER IF NOT EXISTS external_link_snapshot_no_delete
		BEFORE DELETE ON external_link_snapshot
		BEGIN SELECT RAISE(ABORT, 'external_link_snapshot is append-only'); END`,
}
