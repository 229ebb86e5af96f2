package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/speechlab/internal/config"
	"github.com/hyperjump/speechlab/pkg/utils"
)

// New builds the encoder selected by cfg.Provider, wrapped in a CachingEncoder.
// The onnx provider is loaded lazily on first use.
func New(cfg config.EmbeddingConfig, apiKey string, logger *zap.Logger) (Encoder, error) {
	logger = utils.LoggerOrNop(logger)
	var enc Encoder
	switch cfg.Provider {
	case "onnx":
		enc = NewLazyEncoder(cfg.Dimensions, func(ctx context.Context) (Encoder, error) {
			var tok Tokenizer = &SimpleTokenizer{}
			if cfg.VocabPath != "" {
				wp, err := LoadWordPieceTokenizer(cfg.VocabPath)
				if err != nil {
					return nil, err
				}
				tok = wp
			} else {
				logger.Warn("No vocab_path configured; ONNX encoder falls back to hash tokens")
			}
			logger.Info("Loading ONNX encoder", zap.String("model", cfg.ModelPath))
			e, err := NewONNXEncoder(cfg.ModelPath, tok, cfg.Dimensions, cfg.MaxTokens)
			if err != nil {
				return nil, err
			}
			return e, nil
		})
	case "openai":
		e, err := NewOpenAIEncoder(apiKey, cfg.Model, cfg.BaseURL, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		enc = e
	case "ollama":
		e, err := NewOllamaEncoder(cfg.BaseURL, cfg.Model, cfg.Dimensions, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		enc = e
	case "mock":
		enc = NewMockEncoder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: onnx, openai, ollama, mock)", cfg.Provider)
	}
	logger.Debug("Encoder configured", zap.String("provider", cfg.Provider), zap.Int("dimensions", enc.Dimensions()))
	return NewCachingEncoder(enc, cfg.CacheSize), nil
}
