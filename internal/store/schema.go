package store

import (
	"database/sql"
	"fmt"
)

// The sessions table carries the authoritative version counter and a few
// denormalized columns (topic, phase, week) so listings never parse the
// document JSON. The document column is the whole serialized state.
const schemaSQLite = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	topic      TEXT NOT NULL,
	phase      TEXT NOT NULL,
	week       INTEGER NOT NULL,
	archived   INTEGER NOT NULL DEFAULT 0,
	document   TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS turn_events (
	sequence     INTEGER PRIMARY KEY,
	session_id   TEXT NOT NULL,
	turn_index   INTEGER NOT NULL,
	intent       TEXT NOT NULL,
	phase_before TEXT NOT NULL,
	phase_after  TEXT NOT NULL,
	fatal        INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turn_events_session ON turn_events (session_id, sequence);

CREATE TABLE IF NOT EXISTS llm_events (
	sequence      INTEGER PRIMARY KEY,
	session_id    TEXT NOT NULL DEFAULT '',
	provider      TEXT NOT NULL,
	model         TEXT NOT NULL,
	purpose       TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	latency_ms    INTEGER NOT NULL,
	success       INTEGER NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	request_body  TEXT NOT NULL DEFAULT '',
	response_body TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	version    BIGINT NOT NULL,
	topic      TEXT NOT NULL,
	phase      TEXT NOT NULL,
	week       INTEGER NOT NULL,
	archived   INTEGER NOT NULL DEFAULT 0,
	document   JSONB NOT NULL,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS turn_events (
	sequence     BIGINT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	turn_index   INTEGER NOT NULL,
	intent       TEXT NOT NULL,
	phase_before TEXT NOT NULL,
	phase_after  TEXT NOT NULL,
	fatal        INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	created_at   BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turn_events_session ON turn_events (session_id, sequence);

CREATE TABLE IF NOT EXISTS llm_events (
	sequence      BIGINT PRIMARY KEY,
	session_id    TEXT NOT NULL DEFAULT '',
	provider      TEXT NOT NULL,
	model         TEXT NOT NULL,
	purpose       TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	latency_ms    BIGINT NOT NULL,
	success       INTEGER NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	request_body  TEXT NOT NULL DEFAULT '',
	response_body TEXT NOT NULL DEFAULT '',
	created_at    BIGINT NOT NULL
);
`

func initSchema(db *sql.DB, dialect Dialect) error {
	schema := schemaSQLite
	if dialect == DialectPostgres {
		schema = schemaPostgres
	}
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}
