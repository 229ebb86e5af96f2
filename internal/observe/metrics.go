// Package observe wires OpenTelemetry metrics and tracing for speechlab.
//
// Metrics are recorded through the OTel Metrics API and exported for
// Prometheus by [InitProvider]. A nil *Metrics is valid and records nothing,
// so components can be built without observability.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/hyperjump/speechlab"

// Pipeline stages reported by RecordStage.
const (
	StageTranscribe = "transcribe"
	StageEvaluate   = "evaluate"
	StageEmbed      = "embed"
	StageSearch     = "search"
)

// Metrics holds the OTel instruments. All fields are safe for concurrent use.
type Metrics struct {
	// Submissions counts pipeline runs by attribute "status" (ok or the failing stage).
	Submissions metric.Int64Counter

	// Scores records accuracy scores of successful evaluations.
	Scores metric.Float64Histogram

	// StageDuration tracks per-stage latency by attribute "stage".
	StageDuration metric.Float64Histogram

	// IndexSize is the number of vectors in the published index snapshot.
	IndexSize metric.Int64Gauge

	// HTTPRequestDuration tracks request latency by method and route.
	HTTPRequestDuration metric.Float64Histogram
}

var (
	latencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
	scoreBuckets   = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
)

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Submissions, err = m.Int64Counter("speechlab.submissions",
		metric.WithDescription("Submissions processed, by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Scores, err = m.Float64Histogram("speechlab.submission.score",
		metric.WithDescription("Accuracy score of evaluated submissions."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StageDuration, err = m.Float64Histogram("speechlab.stage.duration",
		metric.WithDescription("Latency of submission pipeline stages."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.IndexSize, err = m.Int64Gauge("speechlab.index.size",
		metric.WithDescription("Entries in the vector index."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("speechlab.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// RecordSubmission counts one pipeline run.
func (m *Metrics) RecordSubmission(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.Submissions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordScore records an accuracy score.
func (m *Metrics) RecordScore(ctx context.Context, score float64) {
	if m == nil {
		return
	}
	m.Scores.Record(ctx, score)
}

// RecordStage records how long a pipeline stage took.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}

// SetIndexSize records the current vector index size.
func (m *Metrics) SetIndexSize(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.IndexSize.Record(ctx, int64(n))
}
