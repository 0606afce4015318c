package memory

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/companio/eterna/pkg/types"
)

// DefaultTopK is how many records a context block includes when the caller
// does not say otherwise.
const DefaultTopK = 20

// minQueryLength is the message length above which textual relevance joins
// the score. Shorter messages ("oi") rank on importance and recency alone.
const minQueryLength = 5

// Rank orders the user's active records by relevance and returns the top k.
//
// With a usable message the score blends four signals:
//
//	0.35*text + 0.35*(importance/10) + 0.15*recency + 0.15*min(mentions/5, 1)
//
// Without one, importance dominates:
//
//	0.50*(importance/10) + (0.3 if mentioned within 7 days else 0.1) + 0.20*min(mentions/5, 1)
//
// textScores carries the backend's full-text score per record ID; absent
// records score zero. Ties break on importance descending.
func Rank(records []types.MemoryRecord, textScores map[string]float64, message string, k int, now time.Time) []types.MemoryRecord {
	if k <= 0 {
		k = DefaultTopK
	}

	useText := len(message) > minQueryLength

	scores := make(map[string]float64, len(records))
	for _, rec := range records {
		mentionScore := float64(rec.Mentions) / 5.0
		if mentionScore > 1 {
			mentionScore = 1
		}
		importanceScore := float64(rec.Importance) / 10.0

		if useText {
			scores[rec.ID] = textScores[rec.ID]*0.35 +
				importanceScore*0.35 +
				recencyScore(rec.LastMentionedAt, now)*0.15 +
				mentionScore*0.15
		} else {
			recency := 0.1
			if now.Sub(rec.LastMentionedAt) < 7*24*time.Hour {
				recency = 0.3
			}
			scores[rec.ID] = importanceScore*0.5 + recency + mentionScore*0.2
		}
	}

	ranked := make([]types.MemoryRecord, len(records))
	copy(ranked, records)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := scores[ranked[i].ID], scores[ranked[j].ID]
		if si != sj {
			return si > sj
		}
		return ranked[i].Importance > ranked[j].Importance
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// recencyScore maps time since last mention to a tiered weight.
func recencyScore(last time.Time, now time.Time) float64 {
	age := now.Sub(last)
	switch {
	case age < 24*time.Hour:
		return 1.0
	case age < 7*24*time.Hour:
		return 0.8
	case age < 30*24*time.Hour:
		return 0.5
	default:
		return 0.2
	}
}

// categoryLabels maps category codes to the Portuguese section headers used
// in the rendered context block.
var categoryLabels = map[string]string{
	types.CategoryIdentidade:  "Quem é",
	types.CategoryFamilia:     "Família",
	types.CategoryEvento:      "Eventos importantes",
	types.CategoryLuta:        "Lutas e dificuldades",
	types.CategoryVitoria:     "Vitórias e conquistas",
	types.CategoryPreferencia: "Preferências",
	types.CategoryFe:          "Vida espiritual",
	types.CategoryContexto:    "Situação atual",
}

// RenderContext formats ranked records as the prompt block injected into the
// companion's system context. Records are grouped by category (categories in
// their canonical order, facts in rank order within each) and an empty input
// renders as the empty string so callers can splice it in unconditionally.
func RenderContext(records []types.MemoryRecord) string {
	if len(records) == 0 {
		return ""
	}

	byCategory := make(map[string][]types.MemoryRecord)
	for _, rec := range records {
		byCategory[rec.Category] = append(byCategory[rec.Category], rec)
	}

	var b strings.Builder
	b.WriteString("=== O QUE VOCÊ SABE SOBRE ESTA PESSOA ===\n")

	for _, cat := range types.Categories {
		recs := byCategory[cat]
		if len(recs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "[%s]\n", categoryLabels[cat])
		for _, rec := range recs {
			b.WriteString("  • ")
			b.WriteString(rec.Fact)
			if rec.Mentions > 1 {
				fmt.Fprintf(&b, " (mencionou %dx)", rec.Mentions)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Use essas informações naturalmente na conversa.\n")
	return b.String()
}
