//go:build !whisper

package transcribe

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// NativeAvailable reports whether the binary was built with whisper.cpp.
const NativeAvailable = false

var errWhisperUnavailable = errors.New("native whisper requires building with -tags whisper and libwhisper")

// WhisperTranscriber stub type when built without the whisper tag (see whisper.go).
type WhisperTranscriber struct{}

// NewWhisperTranscriber returns an error when built without the whisper tag.
func NewWhisperTranscriber(_, _ string, _ *zap.Logger) (*WhisperTranscriber, error) {
	return nil, errWhisperUnavailable
}

func (w *WhisperTranscriber) Transcribe(context.Context, string) (string, error) {
	return "", errWhisperUnavailable
}

func (w *WhisperTranscriber) Close() error { return nil }
