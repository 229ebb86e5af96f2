package evaluator

import (
	"sort"

	"github.com/antzucaro/matchr"

	"github.com/hyperjump/speechlab/pkg/utils"
)

// DefaultNearMissThreshold is the minimum Jaro-Winkler similarity for a
// sound-alike word to be reported.
const DefaultNearMissThreshold = 0.70

// NearMiss pairs a missing reference word with the recognized word that most
// likely replaced it.
type NearMiss struct {
	Expected   string  `json:"expected"`
	Heard      string  `json:"heard"`
	Similarity float64 `json:"similarity"`
}

// NearMisses matches each missing word against the recognized words that do not
// appear in the reference. A pair qualifies when the words share a Double
// Metaphone code and their Jaro-Winkler similarity is at least threshold.
func NearMisses(missing []string, reference, candidate string, threshold float64) []NearMiss {
	if len(missing) == 0 {
		return nil
	}
	expected := wordSet(Tokens(reference))
	extraSet := make(map[string]struct{})
	for _, w := range Tokens(candidate) {
		if _, ok := expected[w]; !ok {
			extraSet[w] = struct{}{}
		}
	}
	if len(extraSet) == 0 {
		return nil
	}
	extras := make([]string, 0, len(extraSet))
	for w := range extraSet {
		extras = append(extras, w)
	}
	sort.Strings(extras)

	var out []NearMiss
	for _, m := range missing {
		mp, ms := matchr.DoubleMetaphone(m)
		best, bestScore := "", 0.0
		for _, e := range extras {
			ep, es := matchr.DoubleMetaphone(e)
			if !sharesCode(mp, ms, ep, es) {
				continue
			}
			if s := matchr.JaroWinkler(m, e, false); s > bestScore {
				best, bestScore = e, s
			}
		}
		if best != "" && bestScore >= threshold {
			out = append(out, NearMiss{Expected: m, Heard: best, Similarity: utils.Round2(bestScore)})
		}
	}
	return out
}

func sharesCode(ap, as, bp, bs string) bool {
	for _, a := range []string{ap, as} {
		if a == "" {
			continue
		}
		if a == bp || a == bs {
			return true
		}
	}
	return false
}
