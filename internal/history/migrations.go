package history

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

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	window_start DATETIME NOT NULL,
	window_end   DATETIME NOT NULL,
	started_at   DATETIME NOT NULL,
	finished_at  DATETIME NOT NULL,
	downloaded   INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS account_results (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	account     TEXT NOT NULL,
	position    INTEGER NOT NULL,
	status      TEXT NOT NULL,
	attachments INTEGER NOT NULL DEFAULT 0,
	detail      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, account)
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_account_results_account ON account_results(account);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
