package database

type migration struct {
	version string
	sql     string
}

var migrations = []migration{
	{
		version: "001_initial",
		sql: `
CREATE TABLE IF NOT EXISTS workspaces (
	workspace_key INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace_id  TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS staff_accounts (
	staff_key     INTEGER PRIMARY KEY AUTOINCREMENT,
	staff_id      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS memberships (
	staff_key     INTEGER NOT NULL REFERENCES staff_accounts(staff_key),
	workspace_key INTEGER NOT NULL REFERENCES workspaces(workspace_key),
	status        INTEGER NOT NULL DEFAULT 1,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (staff_key, workspace_key)
);

CREATE TABLE IF NOT EXISTS widgets (
	widget_key      INTEGER PRIMARY KEY AUTOINCREMENT,
	widget_id       TEXT NOT NULL UNIQUE,
	workspace_key   INTEGER NOT NULL REFERENCES workspaces(workspace_key),
	site_key        TEXT NOT NULL UNIQUE,
	name            TEXT NOT NULL,
	status          INTEGER NOT NULL DEFAULT 1,
	allowed_origins TEXT NOT NULL DEFAULT '[]',
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS conversations (
	conversation_key INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id  TEXT NOT NULL UNIQUE,
	widget_key       INTEGER NOT NULL REFERENCES widgets(widget_key),
	visitor_id       TEXT NOT NULL,
	visitor_name     TEXT,
	status           INTEGER NOT NULL DEFAULT 1,
	source_url       TEXT,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL,
	UNIQUE (widget_key, visitor_id)
);

-- One counter row per conversation. Mutated only through the atomic
-- increment in the store; see store/counters.go.
CREATE TABLE IF NOT EXISTS conversation_counters (
	conversation_key INTEGER PRIMARY KEY,
	next_seq         INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS messages (
	id               TEXT PRIMARY KEY,
	conversation_key INTEGER NOT NULL REFERENCES conversations(conversation_key),
	conversation_id  TEXT NOT NULL,
	seq              INTEGER NOT NULL,
	sender_type      TEXT NOT NULL,
	sender_id        TEXT,
	sender_name      TEXT,
	content          TEXT NOT NULL,
	client_msg_id    TEXT,
	created_at       DATETIME NOT NULL
);

-- Timeline index for keyset pagination (newest first).
CREATE INDEX IF NOT EXISTS idx_messages_timeline
	ON messages(conversation_key, seq DESC);

-- Dedup index: clientMsgId is unique per conversation when present.
CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_dedup
	ON messages(conversation_key, client_msg_id)
	WHERE client_msg_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS conversation_summaries (
	conversation_key      INTEGER PRIMARY KEY,
	last_message_seq      INTEGER NOT NULL DEFAULT 0,
	last_message_preview  TEXT,
	last_message_ref      TEXT,
	message_count         INTEGER NOT NULL DEFAULT 0,
	visitor_message_count INTEGER NOT NULL DEFAULT 0,
	last_message_at       DATETIME
);

CREATE TABLE IF NOT EXISTS read_pointers (
	conversation_key   INTEGER NOT NULL,
	member_key         TEXT NOT NULL,
	last_delivered_seq INTEGER NOT NULL DEFAULT 0,
	last_seen_seq      INTEGER NOT NULL DEFAULT 0,
	updated_at         DATETIME NOT NULL,
	PRIMARY KEY (conversation_key, member_key)
);
`,
	},
}
