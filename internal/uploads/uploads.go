// Package uploads stores files received by the upload endpoint.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/italolelis/lazypreview/internal/logctx"
)

const maxNameLength = 200

// ErrTooLarge is returned when an upload exceeds the configured maximum.
var ErrTooLarge = errors.New("upload exceeds maximum size")

// SanitizeFilename keeps letters, digits, '.', '_', '-' and spaces, truncated
// to 200 characters. An empty result becomes "file".
func SanitizeFilename(name string) string {
	var b strings.Builder

	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("._- ", r) {
			b.WriteRune(r)
		}
	}

	kept := []rune(b.String())
	if len(kept) > maxNameLength {
		kept = kept[:maxNameLength]
	}

	if len(kept) == 0 {
		return "file"
	}

	return string(kept)
}

// Store writes uploads under a directory as <uuid>_<sanitized name>.
type Store struct {
	dir      string
	maxBytes int64
}

// NewStore creates a store. A non-positive maxBytes disables the size limit.
func NewStore(dir string, maxBytes int64) *Store {
	return &Store{dir: dir, maxBytes: maxBytes}
}

// Dir returns the directory uploads are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Save copies r to a new file and returns its path and size. Partial files
// are removed on failure.
func (s *Store) Save(ctx context.Context, filename string, r io.Reader) (string, int64, error) {
	logger := logctx.LoggerFromContext(ctx)

	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return "", 0, fmt.Errorf("failed to create upload dir: %w", err)
	}

	path := filepath.Join(s.dir, uuid.NewString()+"_"+SanitizeFilename(filename))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create upload file: %w", err)
	}

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}

	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		err = fmt.Errorf("failed to write upload: %w", copyErr)
	case closeErr != nil:
		err = fmt.Errorf("failed to close upload: %w", closeErr)
	case s.maxBytes > 0 && n > s.maxBytes:
		err = ErrTooLarge
	}

	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			logger.Warn("failed to remove partial upload", "path", path, "err", rmErr)
		}

		return "", 0, err
	}

	logger.Info("stored upload", "path", path, "size", humanize.IBytes(uint64(n)))

	return path, n, nil
}
