package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	provider     TEXT NOT NULL DEFAULT 'gmail',
	address      TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	auth_method  TEXT NOT NULL DEFAULT 'oauth2',
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS email_messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id  INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	remote_id   TEXT UNIQUE,
	thread_id   TEXT NOT NULL DEFAULT '',
	subject     TEXT NOT NULL DEFAULT '',
	sender      TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	type        TEXT NOT NULL DEFAULT 'read-only' CHECK(type IN (
		'response-needed', 'read-only', 'junk', 'junk-uncertain', 'sent', 'draft'
	)),
	priority    INTEGER NOT NULL DEFAULT 1 CHECK(priority BETWEEN 1 AND 3),
	is_read     INTEGER NOT NULL DEFAULT 0 CHECK(is_read IN (0, 1)),
	received_at DATETIME NOT NULL,
	summary     TEXT,
	summary_generated_at DATETIME,
	draft       TEXT,
	draft_updated_at     DATETIME,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS email_recipients (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	email_id       INTEGER NOT NULL REFERENCES email_messages(id) ON DELETE CASCADE,
	recipient_type TEXT NOT NULL CHECK(recipient_type IN ('to', 'cc')),
	address        TEXT NOT NULL,
	UNIQUE(email_id, recipient_type, address)
);

CREATE INDEX IF NOT EXISTS idx_email_messages_account ON email_messages(account_id);
CREATE INDEX IF NOT EXISTS idx_email_messages_thread ON email_messages(thread_id);
CREATE INDEX IF NOT EXISTS idx_email_messages_type ON email_messages(type);
CREATE INDEX IF NOT EXISTS idx_email_messages_received ON email_messages(received_at);
CREATE INDEX IF NOT EXISTS idx_email_recipients_email ON email_recipients(email_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
ALTER TABLE email_messages ADD COLUMN remote_draft_id TEXT;
ALTER TABLE email_messages ADD COLUMN body_html TEXT;
ALTER TABLE email_messages ADD COLUMN type_origin TEXT NOT NULL DEFAULT 'label'
	CHECK(type_origin IN ('label', 'ai', 'local'));

CREATE UNIQUE INDEX IF NOT EXISTS idx_email_messages_remote_draft
	ON email_messages(remote_draft_id);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
	{
		version: 3,
		sql: `
CREATE TABLE IF NOT EXISTS labels (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS message_labels (
	email_id INTEGER NOT NULL REFERENCES email_messages(id) ON DELETE CASCADE,
	label_id INTEGER NOT NULL REFERENCES labels(id) ON DELETE CASCADE,
	PRIMARY KEY (email_id, label_id)
);

CREATE INDEX IF NOT EXISTS idx_message_labels_label ON message_labels(label_id);

INSERT INTO schema_version (version) VALUES (3);
`,
	},	{
		version: 4,
		sql: `
ALTER TABLE email_messages ADD COLUMN archived_at DATETIME;
ALTER TABLE email_messages ADD COLUMN trashed_at DATETIME;

CREATE INDEX IF NOT EXISTS idx_email_messages_trashed ON email_messages(trashed_at);

INSERT INTO schema_version (version) VALUES (4);
`,
	},
}
