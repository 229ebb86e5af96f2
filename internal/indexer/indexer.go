// Package indexer maintains the script catalog: scripts are stored with their
// embeddings, indexed for keyword lookup and published to the vector index.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/speechlab/internal/embedding"
	"github.com/hyperjump/speechlab/internal/extract"
	"github.com/hyperjump/speechlab/internal/keyword"
	"github.com/hyperjump/speechlab/internal/models"
	"github.com/hyperjump/speechlab/internal/observe"
	"github.com/hyperjump/speechlab/internal/storage"
	"github.com/hyperjump/speechlab/internal/vector"
	"github.com/hyperjump/speechlab/pkg/utils"
)

// ErrEmptyScript is returned when a script has no text after preprocessing.
var ErrEmptyScript = errors.New("script text is empty")

// Script sources recorded on import.
const (
	SourceAPI  = "api"
	SourceFile = "file:"
)

// VectorIndex is the write side of the vector index used by the catalog.
type VectorIndex interface {
	vector.Searcher
	Build(entries []vector.Entry) error
	Save(path string) error
	Load(path string) (bool, error)
	Size() int
}

// ImportResult summarizes one ImportFile or ImportDirectory call.
type ImportResult struct {
	Files   int `json:"files"`
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// Indexer manages scripts across storage, the keyword index and the vector index.
type Indexer struct {
	store     storage.ScriptStore
	encoder   embedding.Encoder
	index     VectorIndex
	keywords  keyword.ScriptIndex
	indexPath string
	extractor *extract.Extractor
	chunker   *Chunker
	metrics   *observe.Metrics
	logger    *zap.Logger

	// rebuildMu serializes Rebuild so snapshots are published in order.
	rebuildMu sync.Mutex
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithMetrics reports the index size after every rebuild.
func WithMetrics(m *observe.Metrics) IndexerOption {
	return func(idx *Indexer) { idx.metrics = m }
}

// WithMaxScriptWords splits imported sentences longer than n words.
func WithMaxScriptWords(n int) IndexerOption {
	return func(idx *Indexer) { idx.chunker = NewChunker(n) }
}

// NewIndexer creates an indexer. indexPath is where vector snapshots are
// saved; empty keeps the index in memory only.
func NewIndexer(
	store storage.ScriptStore,
	encoder embedding.Encoder,
	index VectorIndex,
	keywords keyword.ScriptIndex,
	indexPath string,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		store:     store,
		encoder:   encoder,
		index:     index,
		keywords:  keywords,
		indexPath: indexPath,
		extractor: extract.NewExtractor(),
		chunker:   NewChunker(DefaultMaxScriptWords),
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = utils.LoggerOrNop(idx.logger)
	return idx
}

// AddScript stores a new script and republishes the vector index.
func (idx *Indexer) AddScript(ctx context.Context, text string) (*models.Script, error) {
	text = Preprocess(text)
	if text == "" {
		return nil, ErrEmptyScript
	}
	emb, err := idx.encoder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", embedding.ErrEncoding, err)
	}
	sc := &models.Script{Text: text, Source: SourceAPI, Embedding: emb}
	if err := idx.storeScript(ctx, sc); err != nil {
		return nil, err
	}
	if err := idx.Rebuild(ctx); err != nil {
		return nil, err
	}
	idx.logger.Debug("Script added", zap.Int64("id", sc.ID), zap.String("text", utils.Truncate(text, 60)))
	return sc, nil
}

func (idx *Indexer) storeScript(ctx context.Context, sc *models.Script) error {
	if err := idx.store.CreateScript(ctx, sc); err != nil {
		return fmt.Errorf("failed to store script: %w", err)
	}
	if err := idx.keywords.Index(ctx, sc); err != nil {
		return fmt.Errorf("failed to index keywords: %w", err)
	}
	return nil
}

// Rebuild publishes every embedded script to the vector index and saves the
// snapshot. The index is always rebuilt in full.
func (idx *Indexer) Rebuild(ctx context.Context) error {
	idx.rebuildMu.Lock()
	defer idx.rebuildMu.Unlock()

	scripts, err := idx.store.ListEmbedded(ctx)
	if err != nil {
		return fmt.Errorf("failed to list embedded scripts: %w", err)
	}
	entries := make([]vector.Entry, len(scripts))
	for i, sc := range scripts {
		entries[i] = vector.Entry{ID: sc.ID, Vector: sc.Embedding}
	}
	if err := idx.index.Build(entries); err != nil {
		return fmt.Errorf("failed to build vector index: %w", err)
	}
	if err := idx.index.Save(idx.indexPath); err != nil {
		return fmt.Errorf("failed to save vector index: %w", err)
	}
	idx.metrics.SetIndexSize(ctx, idx.index.Size())
	idx.logger.Debug("Vector index rebuilt", zap.Int("entries", idx.index.Size()))
	return nil
}

// Reembed encodes every script again with the current encoder, using up to
// workers concurrent calls, then rebuilds. It returns the number of scripts
// encoded.
func (idx *Indexer) Reembed(ctx context.Context, workers int) (int, error) {
	if workers <= 0 {
		workers = 1
	}
	scripts, err := idx.store.ListScripts(ctx, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list scripts: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, sc := range scripts {
		sc := sc
		g.Go(func() error {
			emb, err := idx.encoder.Embed(gctx, sc.Text)
			if err != nil {
				return fmt.Errorf("%w: script %d: %w", embedding.ErrEncoding, sc.ID, err)
			}
			return idx.store.UpdateEmbedding(gctx, sc.ID, emb)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	if err := idx.Rebuild(ctx); err != nil {
		return 0, err
	}
	idx.logger.Info("Scripts re-embedded", zap.Int("scripts", len(scripts)), zap.Int("workers", workers))
	return len(scripts), nil
}

// ImportFile adds every sentence of the document at path as a script,
// skipping sentences already in the catalog. The vector index is rebuilt
// once at the end when anything was added.
func (idx *Indexer) ImportFile(ctx context.Context, path string) (*ImportResult, error) {
	res, err := idx.importFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if res.Added > 0 {
		if err := idx.Rebuild(ctx); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (idx *Indexer) importFile(ctx context.Context, path string) (*ImportResult, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	sentences, err := idx.extractor.ExtractSentences(absPath)
	if err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}

	res := &ImportResult{Files: 1}
	var texts []string
	seen := make(map[string]bool)
	for _, sentence := range sentences {
		for _, text := range idx.chunker.Chunk(Preprocess(sentence)) {
			if seen[text] {
				res.Skipped++
				continue
			}
			seen[text] = true
			_, err := idx.store.FindScriptByText(ctx, text)
			switch {
			case err == nil:
				res.Skipped++
			case errors.Is(err, storage.ErrNotFound):
				texts = append(texts, text)
			default:
				return nil, fmt.Errorf("failed to look up script: %w", err)
			}
		}
	}
	if len(texts) == 0 {
		return res, nil
	}

	embeddings, err := idx.encoder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", embedding.ErrEncoding, err)
	}
	source := SourceFile + filepath.Base(absPath)
	for i, text := range texts {
		sc := &models.Script{Text: text, Source: source, Embedding: embeddings[i]}
		if err := idx.storeScript(ctx, sc); err != nil {
			return nil, err
		}
		res.Added++
	}
	idx.logger.Info("Scripts imported",
		zap.String("path", absPath),
		zap.Int("added", res.Added),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

// ImportDirectory walks dir recursively and imports each regular file whose
// extension is in allowedExts (all supported formats when empty).
func (idx *Indexer) ImportDirectory(ctx context.Context, dir string, allowedExts []string) (*ImportResult, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}

	total := &ImportResult{}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !idx.Accepts(path, allowedExts) {
			return nil
		}
		// Resolve symlinks so only regular files are imported.
		if finfo, statErr := os.Stat(path); statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		res, err := idx.importFile(ctx, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		total.Files++
		total.Added += res.Added
		total.Skipped += res.Skipped
		return nil
	})
	if total.Added > 0 {
		if rebuildErr := idx.Rebuild(ctx); rebuildErr != nil && err == nil {
			err = rebuildErr
		}
	}
	return total, err
}

// Accepts reports whether path can be imported and, when allowedExts is
// non-empty, has one of those extensions.
func (idx *Indexer) Accepts(path string, allowedExts []string) bool {
	if !idx.extractor.Supports(path) {
		return false
	}
	return len(allowedExts) == 0 || extensionAllowed(filepath.Ext(path), allowedExts)
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// PracticeScripts returns up to limit scripts containing word, best keyword
// match first. Hits whose script no longer exists are skipped.
func (idx *Indexer) PracticeScripts(ctx context.Context, word string, limit int) ([]*models.Script, error) {
	hits, err := idx.keywords.Search(ctx, word, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	scripts := make([]*models.Script, 0, len(hits))
	for _, h := range hits {
		sc, err := idx.store.GetScript(ctx, h.ScriptID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, sc)
	}
	return scripts, nil
}

// LoadIndex restores the vector index at startup. A missing or corrupt
// snapshot is rebuilt from storage; a corrupt one is never loaded. The keyword
// index is repopulated when it holds fewer documents than storage.
func (idx *Indexer) LoadIndex(ctx context.Context) error {
	if err := idx.syncKeywords(ctx); err != nil {
		return err
	}
	if idx.indexPath == "" {
		return idx.Rebuild(ctx)
	}
	ok, err := idx.index.Load(idx.indexPath)
	switch {
	case errors.Is(err, vector.ErrCorruptSnapshot):
		idx.logger.Warn("Vector index snapshot is corrupt; rebuilding from storage",
			zap.String("path", idx.indexPath), zap.Error(err))
		return idx.Rebuild(ctx)
	case err != nil:
		return fmt.Errorf("failed to load vector index: %w", err)
	case !ok:
		idx.logger.Info("No vector index snapshot; rebuilding", zap.String("path", idx.indexPath))
		return idx.Rebuild(ctx)
	}
	idx.metrics.SetIndexSize(ctx, idx.index.Size())
	idx.logger.Info("Vector index loaded", zap.Int("entries", idx.index.Size()))
	return nil
}

func (idx *Indexer) syncKeywords(ctx context.Context) error {
	n, err := idx.store.CountScripts(ctx)
	if err != nil {
		return fmt.Errorf("failed to count scripts: %w", err)
	}
	docs, err := idx.keywords.DocCount()
	if err != nil {
		return fmt.Errorf("failed to count keyword documents: %w", err)
	}
	if int64(docs) >= n {
		return nil
	}
	scripts, err := idx.store.ListScripts(ctx, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to list scripts: %w", err)
	}
	for _, sc := range scripts {
		if err := idx.keywords.Index(ctx, sc); err != nil {
			return fmt.Errorf("failed to index keywords: %w", err)
		}
	}
	idx.logger.Info("Keyword index repopulated", zap.Int("scripts", len(scripts)))
	return nil
}
