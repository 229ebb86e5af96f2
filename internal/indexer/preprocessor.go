package indexer

import (
	"strings"
	"unicode"
)

// Preprocess prepares script text for storage: control characters are
// dropped, whitespace runs collapse to one space and the ends are trimmed.
func Preprocess(text string) string {
	var b strings.Builder
	wasSpace := true
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		case unicode.IsControl(r) || r == '\uFEFF':
		default:
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return strings.TrimRight(b.String(), " ")
}
