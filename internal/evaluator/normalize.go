// Package evaluator scores a recognized utterance against its reference script.
package evaluator

import (
	"strings"
	"unicode"
)

// Normalize lowercases text, drops every rune that is neither a letter, a number
// nor whitespace, and collapses whitespace runs to a single space.
// Normalize(Normalize(x)) == Normalize(x) for every x.
func Normalize(text string) string {
	// Lowercasing first keeps the result stable: some uppercase letters lower
	// into a letter plus a combining mark, and the mark must be dropped here.
	kept := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || isSpace(r) {
			return r
		}
		return -1
	}, strings.ToLower(text))
	return strings.Join(fields(kept), " ")
}

// Tokens returns the normalized words of text.
func Tokens(text string) []string {
	return fields(Normalize(text))
}

// isSpace also counts the ASCII separators U+001C..U+001F as whitespace.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}

func fields(s string) []string {
	return strings.FieldsFunc(s, isSpace)
}
