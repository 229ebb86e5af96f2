// Package submission runs the practice pipeline: a learner's recording is
// transcribed, scored against its script, persisted and matched to similar
// scripts.
package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/speechlab/internal/embedding"
	"github.com/hyperjump/speechlab/internal/evaluator"
	"github.com/hyperjump/speechlab/internal/models"
	"github.com/hyperjump/speechlab/internal/observe"
	"github.com/hyperjump/speechlab/internal/storage"
	"github.com/hyperjump/speechlab/internal/transcribe"
	"github.com/hyperjump/speechlab/internal/vector"
	"github.com/hyperjump/speechlab/pkg/utils"
)

// DefaultSimilarCount is the number of similar scripts returned per submission.
const DefaultSimilarCount = 3

// ErrScriptNotFound is returned when the submitted script id does not exist.
var ErrScriptNotFound = errors.New("script not found")

// Request is one learner submission.
type Request struct {
	ScriptID  int64
	AudioPath string
}

// Pipeline processes submissions. It is safe for concurrent use.
type Pipeline struct {
	scripts      storage.ScriptStore
	feedback     storage.FeedbackStore
	transcriber  transcribe.Transcriber
	encoder      embedding.Encoder
	index        vector.Searcher
	evaluator    *evaluator.Evaluator
	similarCount int
	metrics      *observe.Metrics
	logger       *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics records stage latencies, scores and outcomes.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithEvaluator sets the evaluator (default evaluator.New()).
func WithEvaluator(e *evaluator.Evaluator) Option {
	return func(p *Pipeline) { p.evaluator = e }
}

// WithSimilarCount sets how many similar scripts are returned. n <= 0 keeps the default.
func WithSimilarCount(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.similarCount = n
		}
	}
}

// NewPipeline wires a pipeline from its collaborators.
func NewPipeline(
	scripts storage.ScriptStore,
	feedback storage.FeedbackStore,
	transcriber transcribe.Transcriber,
	encoder embedding.Encoder,
	index vector.Searcher,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		scripts:      scripts,
		feedback:     feedback,
		transcriber:  transcriber,
		encoder:      encoder,
		index:        index,
		similarCount: DefaultSimilarCount,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.evaluator == nil {
		p.evaluator = evaluator.New()
	}
	p.logger = utils.LoggerOrNop(p.logger)
	return p
}

// Submit runs one submission to completion. Steps run in order and the first
// failure is returned; a feedback record written before a later failure is kept.
func (p *Pipeline) Submit(ctx context.Context, req Request) (*models.SubmissionResult, error) {
	ctx, span := observe.StartSpan(ctx, "submission.Submit")
	defer span.End()

	res, stage, err := p.submit(ctx, req)
	if err != nil {
		span.RecordError(err)
		p.metrics.RecordSubmission(ctx, stage)
		p.logger.Warn("Submission failed",
			zap.Int64("script_id", req.ScriptID),
			zap.String("stage", stage),
			zap.Error(err))
		return nil, err
	}
	p.metrics.RecordSubmission(ctx, "ok")
	p.metrics.RecordScore(ctx, res.Score)
	p.logger.Info("Submission evaluated",
		zap.Int64("script_id", req.ScriptID),
		zap.Int64("feedback_id", res.FeedbackID),
		zap.Float64("score", res.Score),
		zap.Int("similar", len(res.SimilarScripts)))
	return res, nil
}

func (p *Pipeline) submit(ctx context.Context, req Request) (*models.SubmissionResult, string, error) {
	script, err := p.scripts.GetScript(ctx, req.ScriptID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, "script", fmt.Errorf("%w: %d", ErrScriptNotFound, req.ScriptID)
	}
	if err != nil {
		return nil, "script", fmt.Errorf("failed to load script: %w", err)
	}

	start := time.Now()
	recognized, err := p.transcriber.Transcribe(ctx, req.AudioPath)
	p.metrics.RecordStage(ctx, observe.StageTranscribe, time.Since(start))
	if err != nil {
		return nil, observe.StageTranscribe, fmt.Errorf("%w: %w", transcribe.ErrTranscription, err)
	}

	start = time.Now()
	eval := p.evaluator.Evaluate(script.Text, recognized)
	p.metrics.RecordStage(ctx, observe.StageEvaluate, time.Since(start))

	fb := &models.Feedback{
		ScriptID:       script.ID,
		AudioPath:      req.AudioPath,
		RecognizedText: recognized,
		AccuracyScore:  eval.Score,
		MissingWords:   eval.MissingWords,
		FeedbackText:   eval.Feedback,
	}
	if err := p.feedback.CreateFeedback(ctx, fb); err != nil {
		return nil, "feedback", fmt.Errorf("failed to store feedback: %w", err)
	}

	start = time.Now()
	vec, err := p.encoder.Embed(ctx, recognized)
	p.metrics.RecordStage(ctx, observe.StageEmbed, time.Since(start))
	if err != nil {
		return nil, observe.StageEmbed, fmt.Errorf("%w: %w", embedding.ErrEncoding, err)
	}

	start = time.Now()
	similar, err := p.similarScripts(ctx, vec, script.ID)
	p.metrics.RecordStage(ctx, observe.StageSearch, time.Since(start))
	if err != nil {
		return nil, observe.StageSearch, err
	}

	return &models.SubmissionResult{
		FeedbackID:     fb.ID,
		ScriptID:       script.ID,
		RecognizedText: recognized,
		Score:          eval.Score,
		MissingWords:   eval.MissingWords,
		Feedback:       eval.Feedback,
		NearMisses:     eval.NearMisses,
		SimilarScripts: similar,
	}, "", nil
}

// similarScripts returns up to similarCount scripts nearest to vec, excluding
// sourceID. An empty index yields an empty list.
func (p *Pipeline) similarScripts(ctx context.Context, vec []float32, sourceID int64) ([]models.SimilarScript, error) {
	similar := []models.SimilarScript{}
	hits, err := p.index.Query(vec, p.similarCount)
	if errors.Is(err, vector.ErrIndexEmpty) {
		return similar, nil
	}
	if err != nil {
		return nil, fmt.Errorf("similar script search: %w", err)
	}
	for _, h := range hits {
		if len(similar) == p.similarCount {
			break
		}
		if h.ID == sourceID {
			continue
		}
		sc, err := p.scripts.GetScript(ctx, h.ID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load similar script: %w", err)
		}
		similar = append(similar, models.SimilarScript{ID: sc.ID, Text: sc.Text, Similarity: h.Similarity})
	}
	return similar, nil
}

// Evaluate scores a transcript against a reference without audio or storage.
func (p *Pipeline) Evaluate(reference, recognized string) evaluator.Result {
	return p.evaluator.Evaluate(reference, recognized)
}
