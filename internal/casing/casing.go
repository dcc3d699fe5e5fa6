// Package casing computes case-preserving replacements for identifier and
// filename renames. Given a matched token and a lowercase replacement root,
// it mirrors the token's casing convention (camelCase, PascalCase,
// SCREAMING_CASE) onto the replacement.
package casing

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Preserve renders repl in the casing convention of the matched token tok.
//
//	"widget" -> "gadget"
//	"Widget" -> "Gadget"
//	"WIDGET" -> "GADGET"
//
// Tokens with no first-letter case signal (leading digit or symbol) fall
// through to the lowercase branch.
func Preserve(tok, repl string) string {
	if tok == "" {
		return strings.ToLower(repl)
	}
	if utf8.RuneCountInString(tok) > 1 && isScreaming(tok) {
		return strings.ToUpper(repl)
	}
	first, _ := utf8.DecodeRuneInString(tok)
	if unicode.IsUpper(first) {
		return upperFirst(repl)
	}
	return strings.ToLower(repl)
}

// ReplacePreserving rewrites every case-insensitive occurrence of pattern in
// s, each occurrence independently passed through Preserve. The inspected
// token is the matched substring, not the whole identifier, so compound names
// like vaultPath keep their tail intact.
func ReplacePreserving(s, pattern, repl string) string {
	if pattern == "" {
		return s
	}
	lower := strings.ToLower(s)
	lp := strings.ToLower(pattern)

	var b strings.Builder
	pos := 0
	for {
		i := strings.Index(lower[pos:], lp)
		if i < 0 {
			b.WriteString(s[pos:])
			return b.String()
		}
		start := pos + i
		end := start + len(pattern)
		b.WriteString(s[pos:start])
		b.WriteString(Preserve(s[start:end], repl))
		pos = end
	}
}

// ContainsFold reports whether s contains substr, ignoring case. Backends use
// it as the match predicate before computing a rename.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// isScreaming reports whether tok is entirely uppercase. The token must carry
// at least one cased letter; a run of digits is not SCREAMING_CASE.
func isScreaming(tok string) bool {
	hasLetter := false
	for _, r := range tok {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
