package transcribe

import (
	"context"
	"fmt"
	"os"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// OpenAITranscriber uses the OpenAI audio transcriptions API.
type OpenAITranscriber struct {
	client   oai.Client
	model    string
	language string
}

// NewOpenAITranscriber creates a transcriber. Empty model selects whisper-1.
func NewOpenAITranscriber(apiKey, model, language, baseURL string) (*OpenAITranscriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai transcriber: OPENAI_API_KEY is not set")
	}
	if model == "" {
		model = oai.AudioModelWhisper1
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAITranscriber{client: oai.NewClient(opts...), model: model, language: language}, nil
}

// Transcribe uploads the file at audioPath.
func (o *OpenAITranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	params := oai.AudioTranscriptionNewParams{
		File:  f,
		Model: o.model,
	}
	if o.language != "" {
		params.Language = param.NewOpt(o.language)
	}
	resp, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Close is a no-op.
func (o *OpenAITranscriber) Close() error {
	return nil
}
