package transcribe

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/speechlab/internal/config"
	"github.com/hyperjump/speechlab/pkg/utils"
)

// New builds the transcriber selected by cfg.Provider with cfg.Timeout applied.
func New(cfg config.TranscriptionConfig, apiKey string, logger *zap.Logger) (Transcriber, error) {
	logger = utils.LoggerOrNop(logger)
	var t Transcriber
	switch cfg.Provider {
	case "whisper":
		w, err := NewWhisperTranscriber(cfg.ModelPath, cfg.Language, logger)
		if err != nil {
			return nil, err
		}
		t = w
	case "whisper-server":
		s, err := NewServerTranscriber(cfg.ServerURL, cfg.Language)
		if err != nil {
			return nil, err
		}
		t = s
	case "openai":
		o, err := NewOpenAITranscriber(apiKey, cfg.Model, cfg.Language, cfg.ServerURL)
		if err != nil {
			return nil, err
		}
		t = o
	case "mock":
		t = NewMockTranscriber("")
	default:
		return nil, fmt.Errorf("unknown transcription provider: %s (supported: whisper, whisper-server, openai, mock)", cfg.Provider)
	}
	logger.Debug("Transcriber configured", zap.String("provider", cfg.Provider), zap.Duration("timeout", cfg.Timeout))
	return WithTimeout(t, cfg.Timeout), nil
}
