package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/companio/eterna/pkg/types"
)

func rec(id string, category string, fact string, importance, mentions int, lastMention time.Time) types.MemoryRecord {
	return types.MemoryRecord{
		ID:              id,
		Category:        category,
		Fact:            fact,
		Importance:      importance,
		Mentions:        mentions,
		LastMentionedAt: lastMention,
		Status:          types.StatusActive,
	}
}

func TestRankTextRelevanceWins(t *testing.T) {
	now := time.Now()
	records := []types.MemoryRecord{
		rec("job", "CONTEXTO", "Trabalha como enfermeira", 6, 1, now.Add(-2*time.Hour)),
		rec("daughter", "FAMILIA", "Tem uma filha chamada Ana", 6, 1, now.Add(-2*time.Hour)),
	}
	textScores := map[string]float64{"daughter": 0.9}

	ranked := Rank(records, textScores, "como está a Ana?", 20, now)
	require.Len(t, ranked, 2)
	assert.Equal(t, "daughter", ranked[0].ID)
}

func TestRankBounded(t *testing.T) {
	now := time.Now()
	var records []types.MemoryRecord
	for i := 0; i < 50; i++ {
		records = append(records, rec(fmt.Sprintf("r%d", i), "CONTEXTO", "Fato", 5, 1, now))
	}

	assert.Len(t, Rank(records, nil, "uma mensagem qualquer", 20, now), 20)
	assert.Len(t, Rank(records, nil, "", 0, now), DefaultTopK)
	assert.Len(t, Rank(records[:3], nil, "", 20, now), 3)
}

func TestRankShortMessageIgnoresText(t *testing.T) {
	now := time.Now()
	records := []types.MemoryRecord{
		rec("low", "CONTEXTO", "Fato pouco importante", 2, 1, now),
		rec("high", "IDENTIDADE", "Fato central", 10, 1, now),
	}
	// Text scores must not apply for a message at or below 5 chars.
	textScores := map[string]float64{"low": 1.0}

	ranked := Rank(records, textScores, "oi", 20, now)
	assert.Equal(t, "high", ranked[0].ID)
}

func TestRankRecencyTiers(t *testing.T) {
	now := time.Now()
	assert.InDelta(t, 1.0, recencyScore(now.Add(-time.Hour), now), 1e-9)
	assert.InDelta(t, 0.8, recencyScore(now.Add(-3*24*time.Hour), now), 1e-9)
	assert.InDelta(t, 0.5, recencyScore(now.Add(-20*24*time.Hour), now), 1e-9)
	assert.InDelta(t, 0.2, recencyScore(now.Add(-90*24*time.Hour), now), 1e-9)
}

func TestRankMentionsSaturate(t *testing.T) {
	now := time.Now()
	records := []types.MemoryRecord{
		rec("five", "CONTEXTO", "Mencionado cinco vezes", 5, 5, now.Add(-40*24*time.Hour)),
		rec("fifty", "CONTEXTO", "Mencionado cinquenta vezes", 5, 50, now.Add(-40*24*time.Hour)),
	}

	ranked := Rank(records, nil, "uma mensagem qualquer", 20, now)
	// Equal scores once mentions saturate at 5; tie breaks on importance,
	// then input order holds.
	assert.Equal(t, "five", ranked[0].ID)
}

func TestRankTieBreaksOnImportance(t *testing.T) {
	now := time.Now().Add(-45 * 24 * time.Hour)
	records := []types.MemoryRecord{
		rec("minor", "CONTEXTO", "Fato menor", 4, 1, now),
		rec("major", "IDENTIDADE", "Fato maior", 9, 1, now),
	}
	// Force identical final scores via text scores chosen to offset the
	// importance gap: 0.35*text + 0.35*imp/10 equal for both.
	textScores := map[string]float64{"minor": 0.9, "major": 0.4}

	ranked := Rank(records, textScores, "uma mensagem qualquer", 20, time.Now())
	assert.Equal(t, "major", ranked[0].ID)
}

func TestRenderContextGroupsByCategory(t *testing.T) {
	now := time.Now()
	out := RenderContext([]types.MemoryRecord{
		rec("a", "FAMILIA", "Tem uma filha chamada Ana", 9, 3, now),
		rec("b", "IDENTIDADE", "Chama-se Maria", 10, 1, now),
		rec("c", "FAMILIA", "Casada com João", 8, 1, now),
	})

	want := "=== O QUE VOCÊ SABE SOBRE ESTA PESSOA ===\n" +
		"[Quem é]\n" +
		"  • Chama-se Maria\n" +
		"\n" +
		"[Família]\n" +
		"  • Tem uma filha chamada Ana (mencionou 3x)\n" +
		"  • Casada com João\n" +
		"\n" +
		"Use essas informações naturalmente na conversa.\n"
	assert.Equal(t, want, out)
}

func TestRenderContextEmpty(t *testing.T) {
	assert.Equal(t, "", RenderContext(nil))
	assert.Equal(t, "", RenderContext([]types.MemoryRecord{}))
}
