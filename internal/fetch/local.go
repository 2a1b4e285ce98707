package fetch

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/italolelis/lazypreview/internal/logctx"
	"github.com/italolelis/lazypreview/internal/source"
)

// LocalFetcher reads windows of files on this host.
type LocalFetcher struct {
	chunk int
}

// NewLocalFetcher creates a local strategy handing out reads of at most chunk
// bytes. A non-positive chunk selects ChunkSize.
func NewLocalFetcher(chunk int) *LocalFetcher {
	if chunk <= 0 {
		chunk = ChunkSize
	}

	return &LocalFetcher{chunk: chunk}
}

// Fetch opens the file, seeks to the window start and returns a body limited
// to the bytes left in the file. A start at or past the end yields an empty
// stream.
func (f *LocalFetcher) Fetch(ctx context.Context, d source.Descriptor, w source.Window) (*Stream, error) {
	logger := logctx.LoggerFromContext(ctx).With("path", d.Path)

	fh, err := os.Open(d.Path)
	if err != nil {
		return nil, &SourceUnavailableError{Location: d.Path, Reason: openReason(err), Err: err}
	}

	info, err := fh.Stat()
	if err != nil {
		fh.Close()

		return nil, &SourceUnavailableError{Location: d.Path, Reason: "cannot stat file", Err: err}
	}

	if !info.Mode().IsRegular() {
		fh.Close()

		return nil, &SourceUnavailableError{Location: d.Path, Reason: "not a regular file"}
	}

	size := info.Size()
	if w.Start >= size {
		fh.Close()
		logger.Debug("window starts past end of file", "start", w.Start, "size", size)

		return emptyStream(defaultContentType), nil
	}

	if _, err := fh.Seek(w.Start, io.SeekStart); err != nil {
		fh.Close()

		return nil, &SourceUnavailableError{Location: d.Path, Reason: "cannot seek", Err: err}
	}

	n := min(w.Length, size-w.Start)

	return &Stream{
		Body:        newChunkedBody(fh, n, f.chunk),
		Length:      n,
		ContentType: defaultContentType,
	}, nil
}

func openReason(err error) string {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "file does not exist"
	case errors.Is(err, fs.ErrPermission):
		return "permission denied"
	default:
		return "cannot open file"
	}
}
