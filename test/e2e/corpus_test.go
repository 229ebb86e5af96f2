package e2e

import "testing"

func TestBuildCorpus_SentencesUnique(t *testing.T) {
	c := BuildCorpus()
	seen := make(map[string]bool)
	for _, s := range c.Sentences() {
		if seen[s] {
			t.Errorf("duplicate sentence %q", s)
		}
		seen[s] = true
	}
	if len(seen) != 15 {
		t.Errorf("expected 15 sentences, got %d", len(seen))
	}
}

func TestBuildCorpus_PracticeCasesResolve(t *testing.T) {
	c := BuildCorpus()
	if len(c.Practice) == 0 {
		t.Fatal("expected practice cases")
	}
	for _, pc := range c.Practice {
		if len(pc.Expected) == 0 {
			t.Errorf("practice word %q matches no sentence", pc.Word)
		}
	}
}

func TestContainsWord(t *testing.T) {
	if !containsWord("Pizza is hot.", "pizza") {
		t.Error("expected case-insensitive match")
	}
	if containsWord("We eat noodles.", "eat noodles") {
		t.Error("phrases are not words")
	}
	if containsWord("Trains run late.", "train") {
		t.Error("partial words must not match")
	}
}
