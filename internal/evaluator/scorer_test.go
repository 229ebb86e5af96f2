package evaluator

import (
	"reflect"
	"strings"
	"testing"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		reference string
		candidate string
		want      float64
	}{
		{"identical", "hello world", "hello world", 100},
		{"case and punctuation", "Hello, World!", "hello world", 100},
		{"both empty", "", "", 100},
		{"punctuation only", "?!", "...", 100},
		{"one empty", "hello", "", 0},
		{"disjoint", "abc", "xyz", 0},
		{"one substitution", "I like pizza", "I like pasta", 75},
		{"half", "ab", "a", 66.67},
		{"exact half rounds to even", strings.Repeat("a", 17) + strings.Repeat("b", 15), strings.Repeat("a", 17) + strings.Repeat("c", 15), 53.12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.reference, tt.candidate); got != tt.want {
				t.Errorf("Score(%q, %q) = %v, want %v", tt.reference, tt.candidate, got, tt.want)
			}
		})
	}
}

func TestScore_Range(t *testing.T) {
	pairs := [][2]string{
		{"the quick brown fox", "a slow red dog"},
		{"안녕하세요", "안녕"},
		{"short", "a much longer sentence than the reference"},
	}
	for _, p := range pairs {
		s := Score(p[0], p[1])
		if s < 0 || s > 100 {
			t.Errorf("Score(%q, %q) = %v, out of range", p[0], p[1], s)
		}
	}
}

func TestScore_UsesRunes(t *testing.T) {
	// "한국어" vs "한국": 2*2/(3+2) = 0.8
	if got := Score("한국어", "한국"); got != 80 {
		t.Errorf("Score = %v, want 80", got)
	}
}

func TestMissingWords(t *testing.T) {
	tests := []struct {
		name      string
		reference string
		candidate string
		want      []string
	}{
		{"single", "the cat sat", "the dog sat", []string{"cat"}},
		{"none", "the cat sat", "sat the cat", []string{}},
		{"sorted", "zebra apple mango", "", []string{"apple", "mango", "zebra"}},
		{"dedup", "the the cat cat", "the", []string{"cat"}},
		{"repetition ignored", "go go go", "go", []string{}},
		{"normalized", "Hello, World!", "hello", []string{"world"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MissingWords(tt.reference, tt.candidate)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MissingWords = %v, want %v", got, tt.want)
			}
		})
	}
}
