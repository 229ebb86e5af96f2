// Package models defines core data structures for scripts, feedback and submissions.
package models

import "time"

// Script is a reference sentence a learner reads aloud.
type Script struct {
	ID        int64     `json:"id" db:"id"`
	Text      string    `json:"text" db:"text"`
	Source    string    `json:"source,omitempty" db:"source"`
	Embedding []float32 `json:"-" db:"embedding"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ScriptInput is the input for creating a script.
type ScriptInput struct {
	Text string `json:"text"`
}

// Feedback is the persisted outcome of one submission.
type Feedback struct {
	ID             int64     `json:"id" db:"id"`
	ScriptID       int64     `json:"script_id" db:"script_id"`
	AudioPath      string    `json:"audio_path" db:"audio_path"`
	RecognizedText string    `json:"recognized_text" db:"recognized_text"`
	AccuracyScore  float64   `json:"accuracy_score" db:"accuracy_score"`
	MissingWords   []string  `json:"missing_words" db:"missing_words"`
	FeedbackText   string    `json:"feedback_text" db:"feedback_text"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
