// Package extraction turns free-form user messages into structured memory
// candidates via an LLM, with gating to skip small talk and a repair chain
// for the model's imperfect JSON.
package extraction

import (
	"strings"
	"unicode/utf8"
)

// minMessageLength is the length in characters below which a message is
// considered small talk unless it carries a trigger keyword.
const minMessageLength = 15

// triggerKeywords are Portuguese stems of life events and relationships that
// warrant extraction even from very short messages ("casei!"). Matching is a
// plain substring check on the lowercased message, so stems like "divorc"
// cover the whole inflection family.
var triggerKeywords = []string{
	"casei", "divorc", "morr", "nasc", "filho", "filha", "grávida",
	"demit", "emprego", "trabalho", "mudei", "convert", "batiz",
	"igreja", "anos", "chamo", "nome", "moro", "vivo", "mudou",
	"florida", "brasil", "eua", "país", "cidade", "estado",
	"irmão", "irmã", "irmãos", "irmãs", "cunhado", "cunhada",
	"sogro", "sogra", "sobrinho", "sobrinha", "primo", "prima",
	"marido", "esposo", "esposa", "pai", "mãe", "avó", "avô",
}

// ShouldExtract reports whether a message is worth an LLM extraction call:
// long enough to plausibly carry a fact, or carrying a trigger keyword.
func ShouldExtract(message string) bool {
	// Characters, not bytes: accented runes must not shorten the gate.
	if utf8.RuneCountInString(message) >= minMessageLength {
		return true
	}
	messageLower := strings.ToLower(message)
	for _, kw := range triggerKeywords {
		if strings.Contains(messageLower, kw) {
			return true
		}
	}
	return false
}
