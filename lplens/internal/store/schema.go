// CLAUDE:SUMMARY SQLite schema for landing_pages and snapshots (FK cascade, status/version checks, recency indexes).
package store

import "database/sql"

// Schema is the complete lplens schema.
const Schema = `
CREATE TABLE IF NOT EXISTS landing_pages (
    id          TEXT PRIMARY KEY,
    account_id  TEXT NOT NULL,
    url         TEXT NOT NULL,
    name        TEXT,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_landing_pages_account ON landing_pages(account_id, created_at DESC);

CREATE TABLE IF NOT EXISTS snapshots (
    id               TEXT PRIMARY KEY,
    landing_page_id  TEXT NOT NULL REFERENCES landing_pages(id) ON DELETE CASCADE,
    status           TEXT NOT NULL DEFAULT 'pending'
                     CHECK (status IN ('pending', 'analyzing', 'done', 'error')),
    screenshot_path  TEXT,
    analysis_result  TEXT,
    error_message    TEXT,
    version          INTEGER NOT NULL CHECK (version > 0),
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_lp ON snapshots(landing_page_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_snapshots_status ON snapshots(status, updated_at);
`

// ApplySchema creates all tables and indexes.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
