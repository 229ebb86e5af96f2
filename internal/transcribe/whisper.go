//go:build whisper

package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"go.uber.org/zap"

	"github.com/hyperjump/speechlab/internal/lazy"
	"github.com/hyperjump/speechlab/pkg/utils"
)

// NativeAvailable reports whether the binary was built with whisper.cpp.
const NativeAvailable = true

// WhisperTranscriber runs whisper.cpp in-process on WAV files. The model is
// loaded on the first call and shared by all calls; each call gets its own
// inference context.
type WhisperTranscriber struct {
	model    *lazy.Value[whisperlib.Model]
	language string
	logger   *zap.Logger
	// whisper.cpp contexts share model state that is not safe for parallel decode.
	mu sync.Mutex
}

// NewWhisperTranscriber prepares a transcriber for the ggml model at modelPath.
func NewWhisperTranscriber(modelPath, language string, logger *zap.Logger) (*WhisperTranscriber, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("whisper: model path must not be empty")
	}
	logger = utils.LoggerOrNop(logger)
	return &WhisperTranscriber{
		model: lazy.New(func(ctx context.Context) (whisperlib.Model, error) {
			logger.Info("Loading whisper model", zap.String("model", modelPath))
			m, err := whisperlib.New(modelPath)
			if err != nil {
				return nil, fmt.Errorf("whisper: load model: %w", err)
			}
			return m, nil
		}),
		language: language,
		logger:   logger,
	}, nil
}

// Transcribe decodes the WAV file at audioPath and returns the recognized text.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	samples, rate, err := DecodeWAV(f)
	f.Close()
	if err != nil {
		return "", err
	}
	samples = Resample(samples, rate, WhisperSampleRate)

	model, err := w.model.Get(ctx)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	wctx, err := model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if w.language != "" {
		if err := wctx.SetLanguage(w.language); err != nil {
			w.logger.Warn("whisper: failed to set language, using default", zap.String("language", w.language), zap.Error(err))
		}
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// Close releases the model if it was loaded.
func (w *WhisperTranscriber) Close() error {
	return w.model.Close(func(m whisperlib.Model) error { return m.Close() })
}
