package submission

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DefaultMaxUploadBytes caps a single audio upload.
const DefaultMaxUploadBytes = 10 << 20

var (
	// ErrUnsupportedAudio is returned for uploads with a disallowed extension.
	ErrUnsupportedAudio = errors.New("unsupported audio format")
	// ErrUploadTooLarge is returned when an upload exceeds the size cap.
	ErrUploadTooLarge = errors.New("upload too large")
)

// AudioExtensions lists accepted upload extensions.
var AudioExtensions = []string{".wav", ".mp3", ".m4a", ".ogg", ".webm", ".flac"}

// Uploads stores audio uploads under a directory with generated names.
type Uploads struct {
	dir      string
	maxBytes int64
}

// NewUploads creates dir if needed. maxBytes <= 0 uses DefaultMaxUploadBytes.
func NewUploads(dir string, maxBytes int64) (*Uploads, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Uploads{dir: dir, maxBytes: maxBytes}, nil
}

// MaxBytes returns the size cap.
func (u *Uploads) MaxBytes() int64 {
	return u.maxBytes
}

// SaveUpload copies r to <dir>/<uuid><ext>, where ext comes from filename,
// and returns the stored path. Nothing is left behind on failure.
func (u *Uploads) SaveUpload(r io.Reader, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !audioExtAllowed(ext) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAudio, ext)
	}

	path := filepath.Join(u.dir, uuid.NewString()+ext)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(r, u.maxBytes+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && n > u.maxBytes {
		err = fmt.Errorf("%w: limit is %d bytes", ErrUploadTooLarge, u.maxBytes)
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func audioExtAllowed(ext string) bool {
	for _, a := range AudioExtensions {
		if a == ext {
			return true
		}
	}
	return false
}
