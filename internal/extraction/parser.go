package extraction

import (
	"encoding/json"
	"errors"
	"regexp"

	"github.com/companio/eterna/pkg/types"
)

// ErrMalformedOutput is returned when the model's response cannot be parsed
// into candidates even after repair. One bad response never fails the save
// path; callers log and move on.
var ErrMalformedOutput = errors.New("extraction: model output is not valid JSON")

// Candidate is one fact proposed by the model. Field names mirror the JSON
// the model is instructed to emit.
type Candidate struct {
	Action     string  `json:"action"`
	Category   string  `json:"categoria"`
	Fact       string  `json:"fato"`
	Details    string  `json:"detalhes"`
	Importance int     `json:"importancia"`
	Confidence float64 `json:"confianca"`
}

type extractionResult struct {
	Memories []Candidate `json:"memorias"`
}

var (
	// jsonBlockRe pulls the memorias object out of surrounding prose
	// ("Here is the JSON you asked for: {...}").
	jsonBlockRe = regexp.MustCompile(`\{[\s\S]*"memorias"[\s\S]*\}`)

	// trailingCommaRe matches the most common model JSON defect.
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// ParseResponse parses the model's response into candidates, trying
// progressively more forgiving strategies:
//
//  1. the whole response as JSON
//  2. the first {..."memorias"...} block inside the response
//  3. that block with trailing commas stripped
//
// Candidates are normalized on the way out: blank facts are dropped, unknown
// actions and categories fall back to their defaults, and importance and
// confidence are clamped to their ranges.
func ParseResponse(raw string) ([]Candidate, error) {
	var result extractionResult

	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		block := jsonBlockRe.FindString(raw)
		if block == "" {
			return nil, ErrMalformedOutput
		}
		if err := json.Unmarshal([]byte(block), &result); err != nil {
			cleaned := trailingCommaRe.ReplaceAllString(block, "$1")
			if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
				return nil, ErrMalformedOutput
			}
		}
	}

	candidates := make([]Candidate, 0, len(result.Memories))
	for _, c := range result.Memories {
		if c.Fact == "" {
			continue
		}
		if !types.IsValidAction(c.Action) {
			c.Action = string(types.ActionUpsert)
		}
		if !types.IsValidCategory(c.Category) {
			c.Category = string(types.CategoryContexto)
		}
		c.Importance = types.ClampImportance(c.Importance)
		c.Confidence = types.ClampConfidence(c.Confidence)
		candidates = append(candidates, c)
	}
	return candidates, nil
}
