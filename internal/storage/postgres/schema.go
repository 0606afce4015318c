package postgres

// Schema defines the PostgreSQL schema for memory records. All statements are
// idempotent so the schema can be re-applied on every startup.
//
// Full-text relevance uses the 'portuguese' text search configuration, which
// stems and strips diacritics, keeping ts_rank consistent with the
// normalizer's accent folding.
const Schema = `
CREATE TABLE IF NOT EXISTS user_memories (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL,
	categoria VARCHAR(50) NOT NULL,
	fato TEXT NOT NULL,
	fato_normalizado TEXT NOT NULL,
	detalhes TEXT,
	importancia INTEGER NOT NULL DEFAULT 5,
	mencoes INTEGER NOT NULL DEFAULT 1,
	ultima_mencao TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	status VARCHAR(20) NOT NULL DEFAULT 'active',
	supersedes_id UUID,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0.8,
	validado BOOLEAN NOT NULL DEFAULT FALSE,
	origem_conversa_id UUID,
	payload JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_user_memories_identity
	ON user_memories(user_id, categoria, fato_normalizado, status);

CREATE INDEX IF NOT EXISTS idx_user_memories_active
	ON user_memories(user_id, status, importancia DESC, ultima_mencao DESC);

CREATE INDEX IF NOT EXISTS idx_user_memories_fts
	ON user_memories
	USING GIN (to_tsvector('portuguese', fato || ' ' || COALESCE(detalhes, '')));
`

// MigrationPgvector adds the fact embedding column used by NearDuplicates.
// Applied only when the pgvector extension is available.
const MigrationPgvector = `
ALTER TABLE user_memories ADD COLUMN IF NOT EXISTS embedding vector(768);

CREATE INDEX IF NOT EXISTS idx_user_memories_embedding
	ON user_memories
	USING ivfflat (embedding vector_cosine_ops)
	WITH (lists = 100);
`
