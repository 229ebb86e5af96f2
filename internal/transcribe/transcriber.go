// Package transcribe converts recorded speech into text.
package transcribe

import (
	"context"
	"errors"
	"time"
)

// ErrTranscription marks failures of the speech-to-text backend.
var ErrTranscription = errors.New("transcription failed")

// Transcriber turns the audio file at path into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
	Close() error
}

// timeoutTranscriber bounds every call with a deadline.
type timeoutTranscriber struct {
	Transcriber
	timeout time.Duration
}

// WithTimeout bounds each Transcribe call of t by d. d <= 0 returns t unchanged.
func WithTimeout(t Transcriber, d time.Duration) Transcriber {
	if d <= 0 {
		return t
	}
	return &timeoutTranscriber{Transcriber: t, timeout: d}
}

func (t *timeoutTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Transcriber.Transcribe(ctx, audioPath)
}
