package db

import "database/sql"

func Migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS links (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    code          TEXT    NOT NULL UNIQUE,
    destination   TEXT    NOT NULL,
    password_hash TEXT    NOT NULL DEFAULT '',
    expires_at    DATETIME,
    max_clicks    INTEGER NOT NULL DEFAULT 0,
    is_one_time   INTEGER NOT NULL DEFAULT 0,
    click_count   INTEGER NOT NULL DEFAULT 0,
    is_active     INTEGER NOT NULL DEFAULT 1,
    deleted_at    DATETIME,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_links_code_live ON links(code) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS clicks (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id        TEXT    NOT NULL UNIQUE,
    code            TEXT    NOT NULL,
    clicked_at      DATETIME NOT NULL,
    ip              TEXT,
    user_agent      TEXT,
    referer         TEXT,
    referer_domain  TEXT,
    country         TEXT,
    city            TEXT,
    region          TEXT,
    browser         TEXT,
    browser_version TEXT,
    os              TEXT,
    device_type     TEXT,
    is_bot          INTEGER NOT NULL DEFAULT 0,
    session_id      TEXT
);

CREATE INDEX IF NOT EXISTS idx_clicks_code ON clicks(code);
CREATE INDEX IF NOT EXISTS idx_clicks_clicked_at ON clicks(clicked_at);
CREATE INDEX IF NOT EXISTS idx_clicks_code_clicked_at ON clicks(code, clicked_at);

CREATE TABLE IF NOT EXISTS rollups (
    code      TEXT    NOT NULL,
    dimension TEXT    NOT NULL,
    bucket    TEXT    NOT NULL,
    count     INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (code, dimension, bucket)
);
`
