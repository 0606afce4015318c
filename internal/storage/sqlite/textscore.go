package sqlite

import (
	"context"
	"fmt"
	"strings"
)

// TextScores returns a normalized full-text relevance score in [0,1] for each
// active record of the user that matches the message.
//
// FTS5's bm25() returns smaller-is-better positive values, so the score is
// mapped with 1/(1+bm25): a perfect match approaches 1.0 and weak matches
// decay toward 0.
func (s *RecordStore) TextScores(ctx context.Context, userID, message string) (map[string]float64, error) {
	scores := make(map[string]float64)

	ftsQuery := sanitiseFTSQuery(message)
	if ftsQuery == "" {
		return scores, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, bm25(user_memories_fts)
		FROM user_memories_fts fts
		JOIN user_memories m ON m.rowid = fts.rowid
		WHERE user_memories_fts MATCH ? AND m.user_id = ? AND m.status = 'active'`,
		ftsQuery, userID)
	if err != nil {
		// FTS5 can still error on malformed input that slipped past
		// sanitisation; treat that as "no textual matches" rather than
		// failing the whole retrieval.
		return scores, nil
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		var bm25 float64
		if err := rows.Scan(&id, &bm25); err != nil {
			continue
		}
		if bm25 < 0 {
			bm25 = -bm25
		}
		scores[id] = 1.0 / (1.0 + bm25)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating text scores: %w", err)
	}

	return scores, nil
}

// sanitiseFTSQuery converts free-form message text into a safe FTS5 query.
// FTS5 syntax is fragile: an unbalanced quote or stray operator keyword makes
// SQLite return "fts5: syntax error". Each word is quoted individually and
// joined with OR so any overlapping term produces a match.
func sanitiseFTSQuery(message string) string {
	replacer := strings.NewReplacer(
		`"`, ` `,
		`'`, ` `,
		`(`, ` `,
		`)`, ` `,
		`*`, ` `,
		`-`, ` `,
		`^`, ` `,
		`?`, ` `,
		`:`, ` `,
		`.`, ` `,
		`,`, ` `,
		`!`, ` `,
	)
	words := strings.Fields(strings.ToLower(replacer.Replace(message)))

	quoted := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) < 2 || ftsStopWords[w] {
			continue
		}
		quoted = append(quoted, `"`+w+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// ftsStopWords are high-frequency Portuguese function words that carry no
// discriminative value for fact matching.
var ftsStopWords = map[string]bool{
	"de": true, "da": true, "do": true, "das": true, "dos": true,
	"em": true, "na": true, "no": true, "nas": true, "nos": true,
	"um": true, "uma": true, "uns": true, "umas": true,
	"o": true, "a": true, "os": true, "as": true,
	"e": true, "ou": true, "que": true, "com": true, "por": true,
	"para": true, "pra": true, "se": true, "eu": true, "meu": true,
	"minha": true, "mas": true, "ja": true, "já": true, "foi": true,
	"ser": true, "sou": true, "esta": true, "está": true, "estou": true,
}
