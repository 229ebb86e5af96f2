package indexer

import "strings"

// DefaultMaxScriptWords bounds the length of an imported script.
const DefaultMaxScriptWords = 40

// Chunker splits over-long sentences into readable scripts of at most
// maxWords words. Piece lengths differ by at most one word.
type Chunker struct {
	maxWords int
}

// NewChunker returns a chunker; maxWords <= 0 uses DefaultMaxScriptWords.
func NewChunker(maxWords int) *Chunker {
	if maxWords <= 0 {
		maxWords = DefaultMaxScriptWords
	}
	return &Chunker{maxWords: maxWords}
}

// Chunk returns text as one or more scripts. Blank text yields nil.
func (c *Chunker) Chunk(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= c.maxWords {
		return []string{strings.Join(words, " ")}
	}
	n := (len(words) + c.maxWords - 1) / c.maxWords
	base, extra := len(words)/n, len(words)%n
	chunks := make([]string, 0, n)
	start := 0
	for i := 0; i < n; i++ {
		size := base
		if i < extra {
			size++
		}
		chunks = append(chunks, strings.Join(words[start:start+size], " "))
		start += size
	}
	return chunks
}
