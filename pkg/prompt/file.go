package prompt

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/goliatone/go-formengine/pkg/model"
)

// DefaultMaxFileBytes caps the attachments LoadFile accepts.
const DefaultMaxFileBytes int64 = 5_000_000

// sniffLen is how much content http.DetectContentType looks at.
const sniffLen = 512

// ErrFileTooLarge is returned when an attachment exceeds the loader limit.
var ErrFileTooLarge = errors.New("prompt: attachment is too large")

// LoadFile reads path from disk, refusing files over DefaultMaxFileBytes.
// The MIME type comes from the extension, falling back to content sniffing.
func LoadFile(path string) (*model.FileRef, error) {
	return NewFileLoader(DefaultMaxFileBytes)(path)
}

// NewFileLoader returns a FileLoader that stats path before reading it and
// rejects files larger than limit without loading them. A limit <= 0 means
// no limit.
func NewFileLoader(limit int64) FileLoader {
	return func(path string) (*model.FileRef, error) {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("prompt: read attachment: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("prompt: read attachment: %s is a directory", path)
		}
		if limit > 0 && info.Size() > limit {
			return nil, fmt.Errorf("%w: %s is %d bytes, the limit is %d", ErrFileTooLarge, filepath.Base(path), info.Size(), limit)
		}

		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("prompt: read attachment: %w", err)
		}
		defer file.Close()

		reader := io.Reader(file)
		if limit > 0 {
			// the file may have grown since Stat
			reader = io.LimitReader(file, limit+1)
		}
		data, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("prompt: read attachment: %w", err)
		}
		if limit > 0 && int64(len(data)) > limit {
			return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrFileTooLarge, filepath.Base(path), limit)
		}

		return &model.FileRef{
			Name:     filepath.Base(path),
			Size:     int64(len(data)),
			MIMEType: detectMIMEType(path, data),
			Data:     data,
		}, nil
	}
}

func detectMIMEType(path string, data []byte) string {
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = http.DetectContentType(data[:min(len(data), sniffLen)])
	}
	if base, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = base
	}
	return mimeType
}
