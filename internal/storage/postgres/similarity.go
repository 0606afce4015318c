package postgres

import (
	"context"
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/companio/eterna/internal/storage"
)

var _ storage.SimilaritySearcher = (*RecordStore)(nil)

// StoreEmbedding attaches a fact embedding to an existing record. It is a
// no-op error when pgvector is unavailable; callers that care should check
// with a type assertion and tolerate ErrUnsupported.
func (s *RecordStore) StoreEmbedding(ctx context.Context, recordID string, embedding []float32) error {
	if !s.pgvectorAvailable {
		return storage.ErrUnsupported
	}
	if recordID == "" || len(embedding) == 0 {
		return fmt.Errorf("%w: record ID and embedding are required", storage.ErrInvalidInput)
	}

	vec := pgvector.NewVector(embedding)
	result, err := s.db.ExecContext(ctx,
		`UPDATE user_memories SET embedding = $1 WHERE id = $2`,
		vec, recordID)
	if err != nil {
		return fmt.Errorf("postgres: failed to store embedding for record %s: %w", recordID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// NearDuplicates reports pairs of distinct active records for the user whose
// fact embeddings sit closer than minSimilarity under cosine similarity,
// most similar first. Pairs are deduplicated by ordering on ID so (a,b) and
// (b,a) never both appear.
func (s *RecordStore) NearDuplicates(ctx context.Context, userID string, minSimilarity float64, limit int) ([]storage.DuplicatePair, error) {
	if !s.pgvectorAvailable {
		return nil, storage.ErrUnsupported
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, b.id, 1 - (a.embedding <=> b.embedding) AS similarity
		FROM user_memories a
		JOIN user_memories b
			ON a.user_id = b.user_id AND a.id < b.id
		WHERE a.user_id = $1
			AND a.status = 'active' AND b.status = 'active'
			AND a.embedding IS NOT NULL AND b.embedding IS NOT NULL
			AND 1 - (a.embedding <=> b.embedding) >= $2
		ORDER BY similarity DESC
		LIMIT $3`,
		userID, minSimilarity, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query near duplicates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type pairID struct {
		a, b       string
		similarity float64
	}
	var ids []pairID
	for rows.Next() {
		var p pairID
		if err := rows.Scan(&p.a, &p.b, &p.similarity); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan duplicate pair: %w", err)
		}
		ids = append(ids, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: error iterating duplicate pairs: %w", err)
	}

	pairs := make([]storage.DuplicatePair, 0, len(ids))
	for _, p := range ids {
		recA, err := s.Get(ctx, userID, p.a)
		if err != nil {
			return nil, err
		}
		recB, err := s.Get(ctx, userID, p.b)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, storage.DuplicatePair{A: *recA, B: *recB, Similarity: p.similarity})
	}
	return pairs, nil
}
