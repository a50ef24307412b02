package history

// Schema creates the history table. It is safe to run on every open.
const Schema = `
CREATE TABLE IF NOT EXISTS applications (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	applied_at  TEXT    NOT NULL,
	thread_id   TEXT    NOT NULL,
	label       TEXT    NOT NULL,
	source      TEXT    NOT NULL,
	confidence  REAL,
	outcome     TEXT    NOT NULL,
	error       TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_applications_applied_at ON applications(applied_at);
CREATE INDEX IF NOT EXISTS idx_applications_thread ON applications(thread_id);
`
