// Package storage defines the persistence contract for memory records.
//
// The interfaces are deliberately small: the engine owns all state-transition
// logic (reinforce, supersede, deactivate) and the uniqueness invariant; a
// backend only has to provide scoped reads, inserts, and field-level updates.
// Normalization happens outside the store, so no backend may assume a
// database-level unique constraint on the dedup key.
package storage

import (
	"context"

	"github.com/companio/eterna/pkg/types"
)

// RecordStore provides persistence for memory records. Every operation is
// scoped by user ID; there is no cross-user access path.
type RecordStore interface {
	// Insert creates a new record. The caller supplies ID, FactNormalized,
	// and all lifecycle fields; the store persists them verbatim.
	Insert(ctx context.Context, rec *types.MemoryRecord) error

	// Get retrieves one record by ID, scoped to the user.
	// Returns ErrNotFound if it does not exist or belongs to another user.
	Get(ctx context.Context, userID, id string) (*types.MemoryRecord, error)

	// FindActive looks up the single active record for the
	// (user, category, normalized fact) identity.
	// Returns ErrNotFound when no active record matches.
	FindActive(ctx context.Context, userID, category, factNormalized string) (*types.MemoryRecord, error)

	// ListActive returns active records ordered by
	// (importance desc, last_mentioned_at desc).
	ListActive(ctx context.Context, opts ListOptions) ([]types.MemoryRecord, error)

	// CountByCategory returns the number of active records the user has in
	// each category. Categories without active records are absent.
	CountByCategory(ctx context.Context, userID string) (map[string]int, error)

	// ListActiveByCategories returns all active records for the user whose
	// category is in the given set. Used by the conflict resolver's field
	// search; no ordering is guaranteed.
	ListActiveByCategories(ctx context.Context, userID string, categories []string) ([]types.MemoryRecord, error)

	// Retire transitions a record active → superseded or active → deactivated.
	// Retiring an already-terminal record returns ErrInvalidInput; transitions
	// never go back to active.
	Retire(ctx context.Context, userID, id string, status types.RecordStatus) error

	// Reinforce applies a mention of an existing active record: mentions+1,
	// last_mentioned_at = now, details kept unless a new value is given,
	// confidence = max(old, new). Returns the updated record.
	Reinforce(ctx context.Context, userID, id string, details string, confidence float64) (*types.MemoryRecord, error)

	// TouchMention bumps mentions and last_mentioned_at without touching any
	// other field. Used when a stored fact is confirmed outside extraction.
	TouchMention(ctx context.Context, userID, id string) error

	// UpdateFact applies a user correction to a record. Nil fields are left
	// unchanged. When Fact is set the caller must also set FactNormalized.
	UpdateFact(ctx context.Context, userID, id string, upd FactUpdate) error

	// SetValidated marks a record as user-confirmed.
	SetValidated(ctx context.Context, userID, id string, validated bool) error

	// TextScores returns a full-text relevance score in [0,1] for each active
	// record of the user that matches the message. Records absent from the map
	// score zero. An empty map is not an error.
	TextScores(ctx context.Context, userID, message string) (map[string]float64, error)

	// Close releases any resources held by the store.
	Close() error
}

// FactUpdate carries the optional fields of a record correction.
type FactUpdate struct {
	Fact           *string
	FactNormalized *string
	Details        *string
	Importance     *int
}

// SimilaritySearcher is an optional extension implemented by backends that
// support vector similarity (currently PostgreSQL with pgvector). Callers
// discover it via type assertion on the RecordStore.
type SimilaritySearcher interface {
	// StoreEmbedding attaches a fact embedding to a record.
	StoreEmbedding(ctx context.Context, recordID string, embedding []float32) error

	// NearDuplicates returns pairs of distinct active records for the user
	// whose embeddings are closer than minSimilarity (cosine), most similar
	// first, capped at limit pairs.
	NearDuplicates(ctx context.Context, userID string, minSimilarity float64, limit int) ([]DuplicatePair, error)
}

// DuplicatePair is one candidate duplicate reported by NearDuplicates.
type DuplicatePair struct {
	A          types.MemoryRecord
	B          types.MemoryRecord
	Similarity float64
}
