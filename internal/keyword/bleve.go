package keyword

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/speechlab/internal/models"
)

// DefaultFuzziness is the edit distance used when an exact lookup finds nothing.
const DefaultFuzziness = 1

// scriptDoc is the document shape stored in bleve.
type scriptDoc struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// BleveIndex implements ScriptIndex using Bleve.
type BleveIndex struct {
	index     bleve.Index
	fuzziness int
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path creates
// an in-memory index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer: lowercase and unicode word split, no stemming, so a
	// practice word matches only its own surface form.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	docMapping.AddFieldMappingsAt("source", bleve.NewKeywordFieldMapping())
	im.DefaultMapping = docMapping

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index, fuzziness: DefaultFuzziness}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index, fuzziness: DefaultFuzziness}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index, fuzziness: DefaultFuzziness}, nil
}

// Index adds or replaces the script's text.
func (b *BleveIndex) Index(ctx context.Context, script *models.Script) error {
	return b.index.Index(docID(script.ID), scriptDoc{Text: script.Text, Source: script.Source})
}

// Search returns scripts whose text contains every term of word. When nothing
// matches exactly, each term is retried with fuzzy matching.
func (b *BleveIndex) Search(ctx context.Context, word string, limit int) ([]Hit, error) {
	terms := strings.Fields(strings.ToLower(word))
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}

	mq := bleve.NewMatchQuery(word)
	mq.SetField("text")
	mq.SetOperator(blevequery.MatchQueryOperatorAnd)
	hits, err := b.search(mq, limit, false)
	if err != nil || len(hits) > 0 {
		return hits, err
	}

	fuzzy := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(b.fuzziness)
		fq.SetField("text")
		fuzzy = append(fuzzy, fq)
	}
	return b.search(bleve.NewConjunctionQuery(fuzzy...), limit, true)
}

func (b *BleveIndex) search(q blevequery.Query, limit int, fuzzy bool) ([]Hit, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	res, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		id, err := strconv.ParseInt(h.ID, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, Hit{ScriptID: id, Score: h.Score, Fuzzy: fuzzy})
	}
	return out, nil
}

// DocCount returns the number of indexed scripts.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

func docID(id int64) string {
	return strconv.FormatInt(id, 10)
}
