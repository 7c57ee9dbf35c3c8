package db

// migrations is the ordered schema history. Entries are append-only; the
// applied count lives in PRAGMA user_version.
var migrations = []string{
	// 1: memory chunks with owner/scope columns and embedding blob.
	`CREATE TABLE memory_chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		heading TEXT NOT NULL,
		content TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		embedding BLOB,
		owner TEXT NOT NULL DEFAULT 'shared',
		scope TEXT NOT NULL DEFAULT 'global',
		scope_id TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX idx_memory_chunks_source ON memory_chunks(source, owner, scope);`,

	// 2: full-text index mirroring heading+content, kept in sync by triggers.
	`CREATE VIRTUAL TABLE memory_fts USING fts5(
		heading, content, content='memory_chunks', content_rowid='id'
	);
	CREATE TRIGGER memory_chunks_ai AFTER INSERT ON memory_chunks BEGIN
		INSERT INTO memory_fts(rowid, heading, content) VALUES (new.id, new.heading, new.content);
	END;
	CREATE TRIGGER memory_chunks_ad AFTER DELETE ON memory_chunks BEGIN
		INSERT INTO memory_fts(memory_fts, rowid, heading, content) VALUES ('delete', old.id, old.heading, old.content);
	END;
	CREATE TRIGGER memory_chunks_au AFTER UPDATE ON memory_chunks BEGIN
		INSERT INTO memory_fts(memory_fts, rowid, heading, content) VALUES ('delete', old.id, old.heading, old.content);
		INSERT INTO memory_fts(rowid, heading, content) VALUES (new.id, new.heading, new.content);
	END;`,

	// 3: learner execution records.
	`CREATE TABLE learner_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_excerpt TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		iterations INTEGER NOT NULL,
		tool_calls INTEGER NOT NULL,
		token_usage INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`,

	// 4: durable cron jobs and their run history.
	`CREATE TABLE cron_jobs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		schedule_kind TEXT NOT NULL,
		schedule_value TEXT NOT NULL,
		timezone TEXT NOT NULL DEFAULT '',
		task TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		last_run_at INTEGER,
		next_run_at INTEGER,
		last_status TEXT,
		last_error TEXT,
		consecutive_errors INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE cron_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL REFERENCES cron_jobs(id) ON DELETE CASCADE,
		status TEXT NOT NULL,
		error TEXT,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX idx_cron_runs_job ON cron_runs(job_id, started_at DESC);`,
}
