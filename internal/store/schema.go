package store

// schemaVersion is the compiled schema version. The store refuses to trust
// an on-disk database stamped with a different version; the Indexer's
// response to that refusal is to recreate the database and fall back to a
// full-path reindex.
const schemaVersion = 1

// schemaDDL creates the four logical tables named in the data model: files,
// postings, meta, and the path-search accelerator. paths_fts is an FTS5
// virtual table built with the trigram tokenizer, which SearchPaths queries
// with MATCH to find substrings of a path without a full scan; it mirrors
// files.path via triggers rather than storing the text itself, keeping the
// two tables from drifting apart.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY,
		path TEXT UNIQUE NOT NULL,
		mtime INTEGER NOT NULL,
		size INTEGER NOT NULL,
		content_hash BLOB NOT NULL,
		trigram_set BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS postings (
		trigram INTEGER PRIMARY KEY,
		bitmap BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT
	)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS paths_fts USING fts5(
		path,
		content='files',
		content_rowid='id',
		tokenize='trigram case_sensitive 0'
	)`,
	`CREATE TRIGGER IF NOT EXISTS files_ai AFTER INSERT ON files BEGIN
		INSERT INTO paths_fts(rowid, path) VALUES (new.id, new.path);
	END`,
	`CREATE TRIGGER IF NOT EXISTS files_ad AFTER DELETE ON files BEGIN
		INSERT INTO paths_fts(paths_fts, rowid, path) VALUES ('delete', old.id, old.path);
	END`,
	`CREATE TRIGGER IF NOT EXISTS files_au AFTER UPDATE ON files BEGIN
		INSERT INTO paths_fts(paths_fts, rowid, path) VALUES ('delete', old.id, old.path);
		INSERT INTO paths_fts(rowid, path) VALUES (new.id, new.path);
	END`,
}
