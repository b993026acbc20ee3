package store

const schema = `
CREATE TABLE IF NOT EXISTS files (
	id            INTEGER PRIMARY KEY,
	path          TEXT NOT NULL UNIQUE,
	last_modified INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trigrams (
	trigram  BLOB PRIMARY KEY,
	file_ids BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS file_trigrams (
	file_id  INTEGER PRIMARY KEY REFERENCES files(id) ON DELETE CASCADE,
	trigrams BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS leader (
	name          TEXT PRIMARY KEY,
	holder        TEXT NOT NULL,
	expires_at_ms INTEGER NOT NULL
);
`
