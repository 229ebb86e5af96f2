package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ServerTranscriber posts audio files to a whisper.cpp server's /inference endpoint.
type ServerTranscriber struct {
	serverURL  string
	language   string
	httpClient *http.Client
}

// NewServerTranscriber targets the whisper.cpp server at serverURL.
func NewServerTranscriber(serverURL, language string) (*ServerTranscriber, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("whisper-server: server URL must not be empty")
	}
	return &ServerTranscriber{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   language,
		httpClient: &http.Client{},
	}, nil
}

// Transcribe uploads the file at audioPath and returns the server's text.
func (s *ServerTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("whisper-server: create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return "", fmt.Errorf("whisper-server: write audio: %w", err)
	}
	if s.language != "" {
		if err := mw.WriteField("language", s.language); err != nil {
			return "", fmt.Errorf("whisper-server: write language field: %w", err)
		}
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("whisper-server: write format field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper-server: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper-server: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper-server: http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper-server: server returned HTTP %d", resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("whisper-server: parse JSON response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}

// Close is a no-op.
func (s *ServerTranscriber) Close() error {
	return nil
}
