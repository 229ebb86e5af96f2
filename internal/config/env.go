package config

import (
	"fmt"
	"os"
	"strconv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SPEECHLAB_"

// ApplyEnv overrides cfg fields from SPEECHLAB_* variables and reads OPENAI_API_KEY.
func ApplyEnv(cfg *Config) error {
	strs := map[string]*string{
		"HOST":                   &cfg.Server.Host,
		"DATABASE_PATH":          &cfg.Storage.DatabasePath,
		"BLEVE_INDEX_PATH":       &cfg.Storage.BleveIndexPath,
		"VECTOR_INDEX_PATH":      &cfg.Storage.VectorIndexPath,
		"UPLOAD_DIR":             &cfg.Storage.UploadDir,
		"EMBEDDING_PROVIDER":     &cfg.Embedding.Provider,
		"EMBEDDING_MODEL_PATH":   &cfg.Embedding.ModelPath,
		"EMBEDDING_BASE_URL":     &cfg.Embedding.BaseURL,
		"TRANSCRIPTION_PROVIDER": &cfg.Transcription.Provider,
		"TRANSCRIPTION_MODEL":    &cfg.Transcription.ModelPath,
		"WHISPER_SERVER_URL":     &cfg.Transcription.ServerURL,
		"FEEDBACK_LOCALE":        &cfg.Evaluation.FeedbackLocale,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sPORT: %w", EnvPrefix, err)
		}
		cfg.Server.Port = port
	}
	if v, ok := os.LookupEnv(EnvPrefix + "SIMILAR_SCRIPTS_COUNT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sSIMILAR_SCRIPTS_COUNT: %w", EnvPrefix, err)
		}
		cfg.Evaluation.SimilarScriptsCount = n
	}
	bools := map[string]*bool{
		"DEBUG":           &cfg.Debug,
		"METRICS_ENABLED": &cfg.Metrics.Enabled,
	}
	for name, dst := range bools {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
			}
			*dst = b
		}
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.OpenAIAPIKey = key
	}
	return nil
}
