package models

import (
	"fmt"
	"strings"
)

// PracticeQuery asks for scripts that contain a word the learner keeps missing.
type PracticeQuery struct {
	Word  string `json:"word"`
	Limit int    `json:"limit,omitempty"`
}

// Validate trims the word and clamps Limit to [1, 100], defaulting to 10.
func (q *PracticeQuery) Validate() error {
	q.Word = strings.TrimSpace(q.Word)
	if q.Word == "" {
		return fmt.Errorf("word cannot be empty")
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	return nil
}

// EvaluateRequest scores a transcript without audio.
type EvaluateRequest struct {
	Reference  string `json:"reference"`
	Recognized string `json:"recognized"`
}

// Validate requires a non-blank reference. An empty recognized text is allowed
// and scores as a silent attempt.
func (r *EvaluateRequest) Validate() error {
	if strings.TrimSpace(r.Reference) == "" {
		return fmt.Errorf("reference cannot be empty")
	}
	return nil
}

// Validate requires non-blank text and trims it.
func (in *ScriptInput) Validate() error {
	in.Text = strings.TrimSpace(in.Text)
	if in.Text == "" {
		return fmt.Errorf("text cannot be empty")
	}
	return nil
}
