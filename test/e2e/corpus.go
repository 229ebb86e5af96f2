// Package e2e provides end-to-end tests over a lesson corpus imported from files.
package e2e

import "strings"

// Lesson is one script source file: a topic and its sentences.
type Lesson struct {
	Name      string
	Sentences []string
}

// PracticeCase is a practice word and the sentences that must be returned for it.
type PracticeCase struct {
	Word     string
	Expected []string
}

// Corpus holds lessons and practice lookups for E2E tests.
type Corpus struct {
	Lessons  []Lesson
	Practice []PracticeCase
}

// BuildCorpus returns a small multilingual lesson corpus. Every practice word
// appears in its expected sentences and nowhere else.
func BuildCorpus() *Corpus {
	lessons := []Lesson{
		{"food", []string{"I like pizza.", "Pizza is hot.", "We eat noodles for lunch."}},
		{"music", []string{"She plays the guitar.", "The guitar is loud.", "Music makes me happy."}},
		{"weather", []string{"Take an umbrella today.", "It is raining outside.", "The sun is bright."}},
		{"school", []string{"저는 학생이에요.", "학교에 가요.", "선생님이 친절해요."}},
		{"travel", []string{"The train leaves at noon.", "My passport is in the bag.", "We missed the train."}},
	}
	return &Corpus{
		Lessons:  lessons,
		Practice: buildPracticeCases(lessons, []string{"pizza", "guitar", "umbrella", "train", "passport"}),
	}
}

func buildPracticeCases(lessons []Lesson, words []string) []PracticeCase {
	cases := make([]PracticeCase, 0, len(words))
	for _, w := range words {
		pc := PracticeCase{Word: w}
		for _, l := range lessons {
			for _, s := range l.Sentences {
				if containsWord(s, w) {
					pc.Expected = append(pc.Expected, s)
				}
			}
		}
		cases = append(cases, pc)
	}
	return cases
}

// Sentences returns every sentence in the corpus in lesson order.
func (c *Corpus) Sentences() []string {
	var out []string
	for _, l := range c.Lessons {
		out = append(out, l.Sentences...)
	}
	return out
}

func containsWord(sentence, word string) bool {
	for _, f := range strings.Fields(strings.ToLower(sentence)) {
		if strings.Trim(f, ".,!?") == strings.ToLower(word) {
			return true
		}
	}
	return false
}
