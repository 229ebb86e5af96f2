package evaluator

import (
	"sort"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/hyperjump/speechlab/pkg/utils"
)

// Score returns the character-level similarity of the normalized strings as a
// percentage in [0, 100], rounded to two decimals. The ratio is 2*M/(len(a)+len(b))
// where M is the total size of the matching blocks found by difflib's recursive
// longest-match search. Two empty strings score 100.
func Score(reference, candidate string) float64 {
	a := splitRunes(Normalize(reference))
	b := splitRunes(Normalize(candidate))
	if len(a) == 0 && len(b) == 0 {
		return 100
	}
	return utils.Round2(difflib.NewMatcher(a, b).Ratio() * 100)
}

// MissingWords returns the distinct reference words that never occur in the
// candidate, sorted ascending. Word order and repetition are ignored: a word
// spoken once is never missing, however often the reference repeats it.
func MissingWords(reference, candidate string) []string {
	heard := wordSet(Tokens(candidate))
	seen := make(map[string]struct{})
	missing := []string{}
	for _, w := range Tokens(reference) {
		if _, ok := heard[w]; ok {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		missing = append(missing, w)
	}
	sort.Strings(missing)
	return missing
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func wordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
