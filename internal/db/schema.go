package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'USER'
                  CHECK (role IN ('SUPERADMIN', 'ADMIN_INSTITUTION', 'ADMIN_REGIONAL', 'WAREHOUSE', 'USER')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS inventories (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    owner_id   INTEGER NOT NULL REFERENCES users(id),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS inventory_members (
    inventory_id INTEGER NOT NULL REFERENCES inventories(id),
    user_id      INTEGER NOT NULL REFERENCES users(id),
    role         TEXT NOT NULL CHECK (role IN ('MANAGER', 'SIGNATORY')),
    PRIMARY KEY (inventory_id, user_id, role)
);

CREATE TABLE IF NOT EXISTS items (
    id                   INTEGER PRIMARY KEY,
    name                 TEXT NOT NULL,
    current_inventory_id INTEGER NOT NULL REFERENCES inventories(id),
    created_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS transfers (
    id                       INTEGER PRIMARY KEY,
    item_id                  INTEGER NOT NULL REFERENCES items(id),
    source_inventory_id      INTEGER NOT NULL REFERENCES inventories(id),
    destination_inventory_id INTEGER NOT NULL REFERENCES inventories(id),
    requested_by             INTEGER NOT NULL REFERENCES users(id),
    requested_at             DATETIME NOT NULL,
    status                   TEXT NOT NULL DEFAULT 'PENDING'
                             CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED', 'CANCELLED')),
    details                  TEXT,
    approval_notes           TEXT,
    completed_at             DATETIME,
    resolved_by              INTEGER REFERENCES users(id),
    resolved_at              DATETIME,
    CHECK (source_inventory_id <> destination_inventory_id),
    CHECK ((status = 'APPROVED') = (completed_at IS NOT NULL))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_transfers_one_pending_per_item
    ON transfers(item_id) WHERE status = 'PENDING';

CREATE INDEX IF NOT EXISTS idx_transfers_source ON transfers(source_inventory_id, status);
CREATE INDEX IF NOT EXISTS idx_transfers_destination ON transfers(destination_inventory_id, status);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
