package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain returns content as a string with a leading BOM dropped and
// CRLF line endings folded. Invalid UTF-8 is replaced with U+FFFD.
func extractPlain(content []byte) (string, error) {
	s := string(content)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	s = strings.TrimPrefix(s, "\uFEFF")
	return strings.ReplaceAll(s, "\r\n", "\n"), nil
}
