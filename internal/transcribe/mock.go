package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// MockTranscriber returns canned text. When a sidecar file <audio>.txt exists
// its contents are returned, otherwise Text.
type MockTranscriber struct {
	Text string
	Err  error
}

// NewMockTranscriber returns a transcriber answering text for files without a sidecar.
func NewMockTranscriber(text string) *MockTranscriber {
	return &MockTranscriber{Text: text}
}

// Transcribe returns the sidecar contents or the canned text.
func (m *MockTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.Err != nil {
		return "", m.Err
	}
	if _, err := os.Stat(audioPath); err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	b, err := os.ReadFile(audioPath + ".txt")
	if err == nil {
		return strings.TrimSpace(string(b)), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	return m.Text, nil
}

// Close is a no-op.
func (m *MockTranscriber) Close() error {
	return nil
}
