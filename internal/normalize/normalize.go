// Package normalize canonicalizes fact text for dedup comparison.
//
// Two facts are considered the same identity iff their normalized forms are
// equal within the same (user, category). The transform mirrors the behavior
// relied on by the rest of the subsystem: lower-case, fold accented characters
// to their ASCII base, drop everything outside [a-z0-9 ].
package normalize

import "strings"

// foldTable maps the accented characters that occur in Portuguese text to
// their ASCII base. Anything not listed here and outside [a-z0-9 ] after
// lower-casing is dropped.
var foldTable = map[rune]rune{
	'á': 'a', 'à': 'a', 'â': 'a', 'ã': 'a', 'ä': 'a',
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e',
	'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i',
	'ó': 'o', 'ò': 'o', 'ô': 'o', 'õ': 'o', 'ö': 'o',
	'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u',
	'ç': 'c',
}

// Text returns the canonical form of s. It is a pure, total function: every
// input produces a (possibly empty) output and there are no error cases.
func Text(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for _, r := range strings.ToLower(s) {
		if folded, ok := foldTable[r]; ok {
			r = folded
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		}
	}

	return b.String()
}
