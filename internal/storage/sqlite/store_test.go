package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/companio/eterna/internal/normalize"
	"github.com/companio/eterna/internal/storage"
	"github.com/companio/eterna/pkg/types"
)

func newTestStore(t *testing.T) *RecordStore {
	t.Helper()
	store, err := NewRecordStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestRecord(userID, category, fact string) *types.MemoryRecord {
	return &types.MemoryRecord{
		ID:             uuid.NewString(),
		UserID:         userID,
		Category:       category,
		Fact:           fact,
		FactNormalized: normalize.Text(fact),
		Importance:     5,
		Mentions:       1,
		Confidence:     0.8,
		Status:         types.StatusActive,
	}
}

func TestInsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := newTestRecord("user-1", types.CategoryContexto, "Mora no Brasil")
	rec.Details = "desde 2020"
	rec.Payload = map[string]interface{}{"fonte": "chat"}
	require.NoError(t, store.Insert(ctx, rec))

	got, err := store.Get(ctx, "user-1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mora no Brasil", got.Fact)
	assert.Equal(t, "mora no brasil", got.FactNormalized)
	assert.Equal(t, "desde 2020", got.Details)
	assert.Equal(t, 1, got.Mentions)
	assert.Equal(t, types.StatusActive, got.Status)
	assert.Equal(t, "chat", got.Payload["fonte"])
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetScopedByUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := newTestRecord("user-1", types.CategoryFe, "Frequenta a Igreja Batista")
	require.NoError(t, store.Insert(ctx, rec))

	_, err := store.Get(ctx, "user-2", rec.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInsertValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.Insert(ctx, nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(ctx, &types.MemoryRecord{ID: "x"}), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(ctx, &types.MemoryRecord{ID: "x", UserID: "u"}), storage.ErrInvalidInput)
}

func TestFindActive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := newTestRecord("user-1", types.CategoryContexto, "Mora no Brasil")
	require.NoError(t, store.Insert(ctx, rec))

	found, err := store.FindActive(ctx, "user-1", types.CategoryContexto, "mora no brasil")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, found.ID)

	_, err = store.FindActive(ctx, "user-1", types.CategoryContexto, "mora na florida")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Retired records are invisible to the identity lookup.
	require.NoError(t, store.Retire(ctx, "user-1", rec.ID, types.StatusSuperseded))
	_, err = store.FindActive(ctx, "user-1", types.CategoryContexto, "mora no brasil")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListActiveOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	low := newTestRecord("user-1", types.CategoryPreferencia, "Gosta de café")
	low.Importance = 3
	high := newTestRecord("user-1", types.CategoryFamilia, "Tem filho chamado Pedro")
	high.Importance = 9
	mid := newTestRecord("user-1", types.CategoryFe, "Frequenta igreja aos domingos")
	mid.Importance = 6

	for _, r := range []*types.MemoryRecord{low, high, mid} {
		require.NoError(t, store.Insert(ctx, r))
	}

	records, err := store.ListActive(ctx, storage.ListOptions{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, high.ID, records[0].ID)
	assert.Equal(t, mid.ID, records[1].ID)
	assert.Equal(t, low.ID, records[2].ID)
}

func TestListActiveCategoryFilterAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := newTestRecord("user-1", types.CategoryLuta, "Luta contra ansiedade "+uuid.NewString())
		require.NoError(t, store.Insert(ctx, rec))
	}
	other := newTestRecord("user-1", types.CategoryVitoria, "Conseguiu novo emprego")
	require.NoError(t, store.Insert(ctx, other))

	records, err := store.ListActive(ctx, storage.ListOptions{UserID: "user-1", Category: types.CategoryLuta, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, records, 3)
	for _, r := range records {
		assert.Equal(t, types.CategoryLuta, r.Category)
	}
}

func TestListActiveNoLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	total := storage.MaxListLimit + 30
	for i := 0; i < total; i++ {
		rec := newTestRecord("user-1", types.CategoryContexto, "Fato "+uuid.NewString())
		require.NoError(t, store.Insert(ctx, rec))
	}

	capped, err := store.ListActive(ctx, storage.ListOptions{UserID: "user-1", Limit: total})
	require.NoError(t, err)
	assert.Len(t, capped, storage.MaxListLimit)

	// Ranking reads the whole active set.
	all, err := store.ListActive(ctx, storage.ListOptions{UserID: "user-1", Limit: storage.NoLimit})
	require.NoError(t, err)
	assert.Len(t, all, total)
}

func TestCountByCategory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := newTestRecord("user-1", types.CategoryFamilia, "Fato de família "+uuid.NewString())
		require.NoError(t, store.Insert(ctx, rec))
	}
	require.NoError(t, store.Insert(ctx, newTestRecord("user-1", types.CategoryFe, "Converteu-se em 2019")))

	// Retired records and other users do not count.
	retired := newTestRecord("user-1", types.CategoryFe, "Frequentava outra igreja")
	require.NoError(t, store.Insert(ctx, retired))
	require.NoError(t, store.Retire(ctx, "user-1", retired.ID, types.StatusSuperseded))
	require.NoError(t, store.Insert(ctx, newTestRecord("user-2", types.CategoryFamilia, "Tem um filho")))

	counts, err := store.CountByCategory(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{types.CategoryFamilia: 3, types.CategoryFe: 1}, counts)
}

func TestListActiveByCategories(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ctxRec := newTestRecord("user-1", types.CategoryContexto, "Mora no Brasil")
	idRec := newTestRecord("user-1", types.CategoryIdentidade, "Tem 34 anos")
	feRec := newTestRecord("user-1", types.CategoryFe, "Converteu-se em 2019")
	for _, r := range []*types.MemoryRecord{ctxRec, idRec, feRec} {
		require.NoError(t, store.Insert(ctx, r))
	}

	records, err := store.ListActiveByCategories(ctx, "user-1",
		[]string{types.CategoryContexto, types.CategoryIdentidade})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRetire(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := newTestRecord("user-1", types.CategoryContexto, "Mora no Brasil")
	require.NoError(t, store.Insert(ctx, rec))

	require.NoError(t, store.Retire(ctx, "user-1", rec.ID, types.StatusSuperseded))

	got, err := store.Get(ctx, "user-1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuperseded, got.Status)

	// A terminal record cannot be retired again.
	err = store.Retire(ctx, "user-1", rec.ID, types.StatusDeactivated)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	// Retiring into a non-terminal status is rejected outright.
	err = store.Retire(ctx, "user-1", rec.ID, types.StatusActive)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	// Unknown ID.
	err = store.Retire(ctx, "user-1", uuid.NewString(), types.StatusDeactivated)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReinforce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := newTestRecord("user-1", types.CategoryFamilia, "Tem filho chamado Pedro")
	rec.Details = "5 anos"
	rec.Confidence = 0.9
	require.NoError(t, store.Insert(ctx, rec))

	// Empty details keeps the old value; lower confidence never wins.
	updated, err := store.Reinforce(ctx, "user-1", rec.ID, "", 0.5)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Mentions)
	assert.Equal(t, "5 anos", updated.Details)
	assert.Equal(t, 0.9, updated.Confidence)

	// New details overwrite; higher confidence wins.
	updated, err = store.Reinforce(ctx, "user-1", rec.ID, "faz aniversário em março", 0.95)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Mentions)
	assert.Equal(t, "faz aniversário em março", updated.Details)
	assert.Equal(t, 0.95, updated.Confidence)

	// Reinforcing a retired record fails.
	require.NoError(t, store.Retire(ctx, "user-1", rec.ID, types.StatusDeactivated))
	_, err = store.Reinforce(ctx, "user-1", rec.ID, "", 0.8)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTouchMention(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := newTestRecord("user-1", types.CategoryVitoria, "Conseguiu novo emprego")
	require.NoError(t, store.Insert(ctx, rec))

	before, err := store.Get(ctx, "user-1", rec.ID)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.TouchMention(ctx, "user-1", rec.ID))

	after, err := store.Get(ctx, "user-1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Mentions+1, after.Mentions)
	assert.True(t, after.LastMentionedAt.After(before.LastMentionedAt))

	assert.ErrorIs(t, store.TouchMention(ctx, "user-1", uuid.NewString()), storage.ErrNotFound)
}

func TestUpdateFact(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := newTestRecord("user-1", types.CategoryIdentidade, "Tem 34 anos")
	require.NoError(t, store.Insert(ctx, rec))

	fact := "Tem 35 anos"
	norm := normalize.Text(fact)
	imp := 8
	require.NoError(t, store.UpdateFact(ctx, "user-1", rec.ID, storage.FactUpdate{
		Fact:           &fact,
		FactNormalized: &norm,
		Importance:     &imp,
	}))

	got, err := store.Get(ctx, "user-1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tem 35 anos", got.Fact)
	assert.Equal(t, "tem 35 anos", got.FactNormalized)
	assert.Equal(t, 8, got.Importance)

	// A fact update without the normalized form is rejected.
	err = store.UpdateFact(ctx, "user-1", rec.ID, storage.FactUpdate{Fact: &fact})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	// An empty update is rejected.
	err = store.UpdateFact(ctx, "user-1", rec.ID, storage.FactUpdate{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSetValidated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := newTestRecord("user-1", types.CategoryFe, "Foi batizado em 2019")
	require.NoError(t, store.Insert(ctx, rec))

	require.NoError(t, store.SetValidated(ctx, "user-1", rec.ID, true))
	got, err := store.Get(ctx, "user-1", rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Validated)
}

func TestTextScores(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	florida := newTestRecord("user-1", types.CategoryContexto, "Mora na Florida")
	coffee := newTestRecord("user-1", types.CategoryPreferencia, "Gosta de café forte")
	require.NoError(t, store.Insert(ctx, florida))
	require.NoError(t, store.Insert(ctx, coffee))

	scores, err := store.TextScores(ctx, "user-1", "como está a vida na Florida?")
	require.NoError(t, err)

	require.Contains(t, scores, florida.ID)
	assert.Greater(t, scores[florida.ID], 0.0)
	assert.LessOrEqual(t, scores[florida.ID], 1.0)
	assert.NotContains(t, scores, coffee.ID)
}

func TestTextScoresDiacriticsFolded(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := newTestRecord("user-1", types.CategoryContexto, "Mora na Flórida")
	require.NoError(t, store.Insert(ctx, rec))

	scores, err := store.TextScores(ctx, "user-1", "me mudei para a florida")
	require.NoError(t, err)
	assert.Contains(t, scores, rec.ID)
}

func TestTextScoresScopedToUserAndStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mine := newTestRecord("user-1", types.CategoryContexto, "Mora na Florida")
	theirs := newTestRecord("user-2", types.CategoryContexto, "Mora na Florida")
	require.NoError(t, store.Insert(ctx, mine))
	require.NoError(t, store.Insert(ctx, theirs))
	require.NoError(t, store.Retire(ctx, "user-1", mine.ID, types.StatusSuperseded))

	scores, err := store.TextScores(ctx, "user-1", "florida")
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestTextScoresEmptyMessage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	scores, err := store.TextScores(ctx, "user-1", "de da do e ou")
	require.NoError(t, err)
	assert.Empty(t, scores)
}
