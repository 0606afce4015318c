// Package memory is the orchestration layer of the eternal memory subsystem:
// it owns the save state machine, ties extraction to storage, and builds the
// ranked context block injected into the companion's prompt.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/companio/eterna/internal/conflict"
	"github.com/companio/eterna/internal/extraction"
	"github.com/companio/eterna/internal/llm"
	"github.com/companio/eterna/internal/normalize"
	"github.com/companio/eterna/internal/storage"
	"github.com/companio/eterna/pkg/types"
)

// Engine coordinates the subsystem. All writes for one user are serialized;
// reads are not.
type Engine struct {
	store    storage.RecordStore
	resolver *conflict.Resolver
	pipeline *extraction.Pipeline
	embedder llm.EmbeddingGenerator
	locks    *userLocks
}

// NewEngine creates an engine over the given store. The pipeline and embedder
// are optional: without a pipeline ExtractAndStore is a no-op, and without an
// embedder records simply never get embeddings.
func NewEngine(store storage.RecordStore, resolver *conflict.Resolver, pipeline *extraction.Pipeline, embedder llm.EmbeddingGenerator) *Engine {
	return &Engine{
		store:    store,
		resolver: resolver,
		pipeline: pipeline,
		embedder: embedder,
		locks:    newUserLocks(),
	}
}

// SaveRequest is one write intent against a user's memory.
type SaveRequest struct {
	UserID         string
	Category       string
	Fact           string
	Details        string
	Importance     int
	Action         types.Action
	SupersedesID   string
	Confidence     float64
	ConversationID string
	Payload        map[string]interface{}
}

// SaveResult reports what a save did.
type SaveResult struct {
	ID          string
	Created     bool
	Updated     bool
	Deactivated bool
	Mentions    int

	// SupersededIDs lists records retired by this save's semantic conflict
	// resolution (and, on supersede, the identical record it replaced).
	SupersededIDs []string
}

// Save applies one write intent. This is the heart of the subsystem:
//
//   - deactivate retires the referenced record and stops.
//   - The fact is normalized and checked against the semantic field table;
//     contradicting records in the same field are superseded.
//   - If an active record with the same identity exists, upsert reinforces
//     it and supersede replaces it.
//   - Otherwise a new active record is created.
func (e *Engine) Save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}
	if req.Action == "" {
		req.Action = types.ActionUpsert
	}
	if !types.IsValidAction(string(req.Action)) {
		return nil, fmt.Errorf("%w: unknown action %q", storage.ErrInvalidInput, req.Action)
	}

	mu := e.locks.lock(req.UserID)
	defer mu.Unlock()

	if req.Action == types.ActionDeactivate {
		if req.SupersedesID == "" {
			return nil, fmt.Errorf("%w: deactivate requires the record ID", storage.ErrInvalidInput)
		}
		if err := e.store.Retire(ctx, req.UserID, req.SupersedesID, types.StatusDeactivated); err != nil {
			return nil, err
		}
		return &SaveResult{ID: req.SupersedesID, Deactivated: true}, nil
	}

	if req.Fact == "" {
		return nil, fmt.Errorf("%w: fact is required", storage.ErrInvalidInput)
	}
	if !types.IsValidCategory(req.Category) {
		return nil, fmt.Errorf("%w: unknown category %q", storage.ErrInvalidInput, req.Category)
	}
	req.Importance = types.ClampImportance(req.Importance)
	req.Confidence = types.ClampConfidence(req.Confidence)

	factNormalized := normalize.Text(req.Fact)
	if factNormalized == "" {
		return nil, fmt.Errorf("%w: fact normalizes to nothing", storage.ErrInvalidInput)
	}

	// Semantic conflict pass: a fact in a single-truth field supersedes every
	// stored contradiction, even across categories.
	var supersededIDs []string
	if e.resolver != nil {
		if field := e.resolver.DetectField(req.Fact, req.Category); field != "" {
			conflicting, err := e.resolver.FindConflicting(ctx, req.UserID, field, factNormalized)
			if err != nil {
				return nil, err
			}
			for _, rec := range conflicting {
				if err := e.store.Retire(ctx, req.UserID, rec.ID, types.StatusSuperseded); err != nil {
					return nil, err
				}
				supersededIDs = append(supersededIDs, rec.ID)
				log.Printf("memory: superseded conflicting fact %q -> %q (field %s)", rec.Fact, req.Fact, field)
			}
		}
	}

	existing, err := e.store.FindActive(ctx, req.UserID, req.Category, factNormalized)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	supersedesID := ""
	if existing != nil {
		if req.Action == types.ActionSupersede {
			if err := e.store.Retire(ctx, req.UserID, existing.ID, types.StatusSuperseded); err != nil {
				return nil, err
			}
			supersededIDs = append(supersededIDs, existing.ID)
			supersedesID = existing.ID
		} else {
			updated, err := e.store.Reinforce(ctx, req.UserID, existing.ID, req.Details, req.Confidence)
			if err != nil {
				return nil, err
			}
			return &SaveResult{
				ID:            updated.ID,
				Updated:       true,
				Mentions:      updated.Mentions,
				SupersededIDs: supersededIDs,
			}, nil
		}
	} else if req.Action == types.ActionSupersede && req.SupersedesID != "" {
		// Explicit supersede of a non-identical record (caller knows which
		// fact is being replaced).
		if err := e.store.Retire(ctx, req.UserID, req.SupersedesID, types.StatusSuperseded); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		} else if err == nil {
			supersededIDs = append(supersededIDs, req.SupersedesID)
			supersedesID = req.SupersedesID
		}
	}

	// A record born out of conflict resolution points back at the fact it
	// displaced, even without an explicit supersede action.
	if supersedesID == "" && len(supersededIDs) > 0 {
		supersedesID = supersededIDs[len(supersededIDs)-1]
	}

	rec := &types.MemoryRecord{
		ID:                   uuid.NewString(),
		UserID:               req.UserID,
		Category:             req.Category,
		Fact:                 req.Fact,
		FactNormalized:       factNormalized,
		Details:              req.Details,
		Importance:           req.Importance,
		Mentions:             1,
		Status:               types.StatusActive,
		SupersedesID:         supersedesID,
		Confidence:           req.Confidence,
		OriginConversationID: req.ConversationID,
		Payload:              req.Payload,
	}
	if err := e.store.Insert(ctx, rec); err != nil {
		return nil, err
	}

	e.storeEmbedding(ctx, rec)

	return &SaveResult{
		ID:            rec.ID,
		Created:       true,
		Mentions:      1,
		SupersededIDs: supersededIDs,
	}, nil
}

// storeEmbedding attaches a fact embedding when both an embedder and a
// similarity-capable backend are present. Best-effort: failure only costs the
// near-duplicate report, never the save.
func (e *Engine) storeEmbedding(ctx context.Context, rec *types.MemoryRecord) {
	if e.embedder == nil {
		return
	}
	searcher, ok := e.store.(storage.SimilaritySearcher)
	if !ok {
		return
	}
	vec, err := e.embedder.Embed(ctx, rec.Fact)
	if err != nil {
		log.Printf("memory: embedding for record %s skipped: %v", rec.ID, err)
		return
	}
	if err := searcher.StoreEmbedding(ctx, rec.ID, vec); err != nil && !errors.Is(err, storage.ErrUnsupported) {
		log.Printf("memory: failed to store embedding for record %s: %v", rec.ID, err)
	}
}

// ExtractAndStore runs extraction over a user message and saves every
// candidate. It is called on the hot path of every conversation turn, so it
// degrades silently: a gated message, an unreachable model, or unparseable
// output all return (nil, nil). Only storage failures surface as errors.
func (e *Engine) ExtractAndStore(ctx context.Context, userID, message, conversationID string) ([]SaveResult, error) {
	if e.pipeline == nil {
		return nil, nil
	}

	currentFacts, err := e.store.ListActive(ctx, storage.ListOptions{
		UserID: userID,
		Limit:  e.pipeline.ContextFactLimit(),
	})
	if err != nil {
		return nil, err
	}

	candidates, err := e.pipeline.Extract(ctx, message, currentFacts)
	if err != nil {
		if errors.Is(err, extraction.ErrUnavailable) || errors.Is(err, extraction.ErrMalformedOutput) {
			log.Printf("memory: extraction skipped for user %s: %v", userID, err)
			return nil, nil
		}
		return nil, err
	}

	var results []SaveResult
	for _, c := range candidates {
		res, err := e.Save(ctx, SaveRequest{
			UserID:         userID,
			Category:       c.Category,
			Fact:           c.Fact,
			Details:        c.Details,
			Importance:     c.Importance,
			Action:         types.Action(c.Action),
			Confidence:     c.Confidence,
			ConversationID: conversationID,
		})
		if err != nil {
			// A deactivate candidate without a target, or similar extractor
			// confusion. One bad candidate must not drop the rest.
			if errors.Is(err, storage.ErrInvalidInput) || errors.Is(err, storage.ErrNotFound) {
				log.Printf("memory: dropped extraction candidate %q: %v", c.Fact, err)
				continue
			}
			return results, err
		}
		results = append(results, *res)
	}
	return results, nil
}

// ContextBlock builds the formatted memory block for the companion's prompt:
// the user's top-k most relevant facts given the current message, grouped by
// category. Returns "" for users with no memories.
func (e *Engine) ContextBlock(ctx context.Context, userID, message string, topK int) (string, error) {
	// Ranking reads the whole active set: a fact that scores low on the
	// listing order can still be the textual match for this turn.
	records, err := e.store.ListActive(ctx, storage.ListOptions{UserID: userID, Limit: storage.NoLimit})
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}

	var textScores map[string]float64
	if len(message) > minQueryLength {
		textScores, err = e.store.TextScores(ctx, userID, message)
		if err != nil {
			// Retrieval must survive a broken text index; rank on the
			// remaining signals.
			log.Printf("memory: text scoring failed for user %s: %v", userID, err)
			textScores = nil
		}
	}

	ranked := Rank(records, textScores, message, topK, time.Now())
	return RenderContext(ranked), nil
}

// Relevant returns the user's top-k records for a message, most relevant
// first. Same ranking as ContextBlock, without the formatting.
func (e *Engine) Relevant(ctx context.Context, userID, message string, topK int) ([]types.MemoryRecord, error) {
	records, err := e.store.ListActive(ctx, storage.ListOptions{UserID: userID, Limit: storage.NoLimit})
	if err != nil {
		return nil, err
	}

	var textScores map[string]float64
	if len(message) > minQueryLength {
		textScores, err = e.store.TextScores(ctx, userID, message)
		if err != nil {
			log.Printf("memory: text scoring failed for user %s: %v", userID, err)
			textScores = nil
		}
	}

	return Rank(records, textScores, message, topK, time.Now()), nil
}

// ListActive returns the user's active records, optionally filtered by
// category, ordered by importance then recency of mention.
func (e *Engine) ListActive(ctx context.Context, userID, category string, limit int) ([]types.MemoryRecord, error) {
	if category != "" && !types.IsValidCategory(category) {
		return nil, fmt.Errorf("%w: unknown category %q", storage.ErrInvalidInput, category)
	}
	return e.store.ListActive(ctx, storage.ListOptions{UserID: userID, Category: category, Limit: limit})
}

// CategoryCounts returns how many active records the user has per category.
func (e *Engine) CategoryCounts(ctx context.Context, userID string) (map[string]int, error) {
	return e.store.CountByCategory(ctx, userID)
}

// Deactivate retires a record on the user's behalf ("forget this").
func (e *Engine) Deactivate(ctx context.Context, userID, id string) error {
	mu := e.locks.lock(userID)
	defer mu.Unlock()
	return e.store.Retire(ctx, userID, id, types.StatusDeactivated)
}

// FactCorrection carries the editable fields of a record. Nil means leave
// unchanged.
type FactCorrection struct {
	Fact       *string
	Details    *string
	Importance *int
}

// UpdateFact applies a user correction. When the fact text changes its
// normalized form is recomputed so the dedup identity follows the text; a
// correction that lands on an identity another active record already holds
// merges the two instead of leaving duplicate active records.
func (e *Engine) UpdateFact(ctx context.Context, userID, id string, corr FactCorrection) error {
	mu := e.locks.lock(userID)
	defer mu.Unlock()

	upd := storage.FactUpdate{Details: corr.Details}
	if corr.Fact != nil {
		if *corr.Fact == "" {
			return fmt.Errorf("%w: fact cannot be empty", storage.ErrInvalidInput)
		}
		norm := normalize.Text(*corr.Fact)
		if norm == "" {
			return fmt.Errorf("%w: fact normalizes to nothing", storage.ErrInvalidInput)
		}

		rec, err := e.store.Get(ctx, userID, id)
		if err != nil {
			return err
		}
		if rec.Status == types.StatusActive && norm != rec.FactNormalized {
			survivor, err := e.store.FindActive(ctx, userID, rec.Category, norm)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			if survivor != nil && survivor.ID != id {
				// The correction reveals both records state the same fact.
				// The survivor absorbs the mention, the edited record is
				// retired pointing nowhere new.
				details := ""
				if corr.Details != nil {
					details = *corr.Details
				}
				if _, err := e.store.Reinforce(ctx, userID, survivor.ID, details, rec.Confidence); err != nil {
					return err
				}
				log.Printf("memory: correction merged record %s into %s", id, survivor.ID)
				return e.store.Retire(ctx, userID, id, types.StatusSuperseded)
			}
		}
		upd.Fact = corr.Fact
		upd.FactNormalized = &norm
	}
	if corr.Importance != nil {
		clamped := types.ClampImportance(*corr.Importance)
		upd.Importance = &clamped
	}
	return e.store.UpdateFact(ctx, userID, id, upd)
}

// ReinforceMention bumps a record's mention count outside extraction, e.g.
// when the companion used the fact and the user confirmed it.
func (e *Engine) ReinforceMention(ctx context.Context, userID, id string) error {
	mu := e.locks.lock(userID)
	defer mu.Unlock()
	return e.store.TouchMention(ctx, userID, id)
}

// Validate marks a record as user-confirmed (or retracts the confirmation).
func (e *Engine) Validate(ctx context.Context, userID, id string, validated bool) error {
	mu := e.locks.lock(userID)
	defer mu.Unlock()
	return e.store.SetValidated(ctx, userID, id, validated)
}

// NearDuplicates reports likely-duplicate active fact pairs for review.
// Returns storage.ErrUnsupported on backends without vector similarity.
func (e *Engine) NearDuplicates(ctx context.Context, userID string, minSimilarity float64, limit int) ([]storage.DuplicatePair, error) {
	searcher, ok := e.store.(storage.SimilaritySearcher)
	if !ok {
		return nil, storage.ErrUnsupported
	}
	return searcher.NearDuplicates(ctx, userID, minSimilarity, limit)
}
