package store

const schema = `
CREATE TABLE IF NOT EXISTS cookies (
	domain   TEXT PRIMARY KEY,
	jar      TEXT NOT NULL,
	saved_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS content_cache (
	url        TEXT PRIMARY KEY,
	body       BLOB NOT NULL,
	fetched_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS rate_limits (
	domain TEXT NOT NULL,
	day    TEXT NOT NULL,
	count  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (domain, day)
);

CREATE TABLE IF NOT EXISTS fetch_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	source         TEXT NOT NULL,
	status         TEXT NOT NULL,
	raw_count      INTEGER NOT NULL DEFAULT 0,
	kept_count     INTEGER NOT NULL DEFAULT 0,
	filtered_count INTEGER NOT NULL DEFAULT 0,
	duration_ms    INTEGER NOT NULL DEFAULT 0,
	error          TEXT,
	fetched_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fetch_log_source ON fetch_log(source, fetched_at);
`
