package models

import "github.com/hyperjump/speechlab/internal/evaluator"

// SimilarScript is a reference script close to what the learner said.
type SimilarScript struct {
	ID         int64   `json:"id"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
}

// SubmissionResult is returned for every successfully processed submission.
type SubmissionResult struct {
	FeedbackID     int64                `json:"feedback_id"`
	ScriptID       int64                `json:"script_id"`
	RecognizedText string               `json:"recognized_text"`
	Score          float64              `json:"accuracy_score"`
	MissingWords   []string             `json:"missing_words"`
	Feedback       string               `json:"feedback"`
	NearMisses     []evaluator.NearMiss `json:"near_misses,omitempty"`
	SimilarScripts []SimilarScript      `json:"similar_scripts"`
}

// WordCount is a missing word with the number of submissions that missed it.
type WordCount struct {
	Word  string `json:"word"`
	Count int64  `json:"count"`
}

// DashboardStats aggregates all feedback.
type DashboardStats struct {
	TotalSubmissions int64       `json:"total_submissions"`
	AverageScore     float64     `json:"average_score"`
	TopMissingWords  []WordCount `json:"top_missing_words"`
}

// Status describes the stored data and the vector index.
type Status struct {
	Scripts        int64  `json:"scripts"`
	Feedback       int64  `json:"feedback"`
	IndexSize      int    `json:"index_size"`
	IndexDimension int    `json:"index_dimension"`
	SnapshotID     string `json:"snapshot_id,omitempty"`
	DiskUsageBytes int64  `json:"disk_usage_bytes"`
}
