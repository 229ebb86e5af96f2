package config

import "time"

// DefaultMaxUploadBytes caps uploaded audio at 10 MiB.
const DefaultMaxUploadBytes = 10 << 20

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/speechlab/data/db/speechlab.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/speechlab/data/indices/bleve"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/speechlab/data/indices/vectors.bin"
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = "/usr/local/var/speechlab/data/uploads"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.ModelPath == "" && cfg.Embedding.Provider == "onnx" {
		cfg.Embedding.ModelPath = "/usr/local/var/speechlab/data/models/paraphrase-multilingual-MiniLM-L12-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 128
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Transcription.Provider == "" {
		cfg.Transcription.Provider = "whisper-server"
	}
	if cfg.Transcription.ServerURL == "" && cfg.Transcription.Provider == "whisper-server" {
		cfg.Transcription.ServerURL = "http://localhost:8178"
	}
	if cfg.Transcription.Language == "" {
		cfg.Transcription.Language = "en"
	}
	if cfg.Transcription.Timeout == 0 {
		cfg.Transcription.Timeout = 60 * time.Second
	}
	if cfg.Evaluation.SimilarScriptsCount == 0 {
		cfg.Evaluation.SimilarScriptsCount = 3
	}
	if cfg.Evaluation.FeedbackLocale == "" {
		cfg.Evaluation.FeedbackLocale = "en"
	}
	if cfg.Evaluation.NearMissThreshold == 0 {
		cfg.Evaluation.NearMissThreshold = 0.70
	}
	if cfg.Evaluation.ReembedWorkers == 0 {
		cfg.Evaluation.ReembedWorkers = 4
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".docx", ".xlsx", ".odt", ".rtf"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
