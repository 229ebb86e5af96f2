package extract

import (
	"strings"
	"unicode"
)

// Sentences splits text into trimmed sentences. Line breaks always end a
// sentence; within a line a terminator (. ! ? and their full-width forms)
// ends one when followed by whitespace or the end of the line.
func Sentences(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		runes := []rune(line)
		start := 0
		for i, r := range runes {
			if !isTerminator(r) {
				continue
			}
			if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) && !isTerminator(runes[i+1]) {
				continue
			}
			if i+1 < len(runes) && isTerminator(runes[i+1]) {
				continue
			}
			out = appendSentence(out, string(runes[start:i+1]))
			start = i + 1
		}
		out = appendSentence(out, string(runes[start:]))
	}
	return out
}

func appendSentence(out []string, s string) []string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" || !strings.ContainsFunc(s, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsNumber(r) }) {
		return out
	}
	return append(out, s)
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}
