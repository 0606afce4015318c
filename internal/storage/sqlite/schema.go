package sqlite

// Schema defines the SQLite schema for memory records.
//
// The uniqueness invariant (one active record per user/category/normalized
// fact) is enforced by the engine, not by a constraint: normalization happens
// in the application and the store must not reject writes the engine already
// decided on.
//
// The FTS5 table backs TextScores. unicode61 with remove_diacritics keeps the
// index consistent with the normalizer's accent folding, so "Flórida" in a
// stored fact matches "florida" in a message.
const Schema = `
CREATE TABLE IF NOT EXISTS user_memories (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	categoria TEXT NOT NULL,
	fato TEXT NOT NULL,
	fato_normalizado TEXT NOT NULL,
	detalhes TEXT,
	importancia INTEGER NOT NULL DEFAULT 5,
	mencoes INTEGER NOT NULL DEFAULT 1,
	ultima_mencao TIMESTAMP NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	supersedes_id TEXT,
	confidence REAL NOT NULL DEFAULT 0.8,
	validado INTEGER NOT NULL DEFAULT 0,
	origem_conversa_id TEXT,
	payload TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_user_memories_identity
	ON user_memories(user_id, categoria, fato_normalizado, status);

CREATE INDEX IF NOT EXISTS idx_user_memories_active
	ON user_memories(user_id, status, importancia DESC, ultima_mencao DESC);

CREATE VIRTUAL TABLE IF NOT EXISTS user_memories_fts USING fts5(
	fato,
	detalhes,
	content='user_memories',
	content_rowid='rowid',
	tokenize='unicode61 remove_diacritics 2'
);

CREATE TRIGGER IF NOT EXISTS user_memories_ai AFTER INSERT ON user_memories BEGIN
	INSERT INTO user_memories_fts(rowid, fato, detalhes)
	VALUES (new.rowid, new.fato, COALESCE(new.detalhes, ''));
END;

CREATE TRIGGER IF NOT EXISTS user_memories_ad AFTER DELETE ON user_memories BEGIN
	INSERT INTO user_memories_fts(user_memories_fts, rowid, fato, detalhes)
	VALUES ('delete', old.rowid, old.fato, COALESCE(old.detalhes, ''));
END;

CREATE TRIGGER IF NOT EXISTS user_memories_au AFTER UPDATE ON user_memories BEGIN
	INSERT INTO user_memories_fts(user_memories_fts, rowid, fato, detalhes)
	VALUES ('delete', old.rowid, old.fato, COALESCE(old.detalhes, ''));
	INSERT INTO user_memories_fts(rowid, fato, detalhes)
	VALUES (new.rowid, new.fato, COALESCE(new.detalhes, ''));
END;
`
