// Package fetch opens byte windows of local files and remote HTTP objects
// behind a single contract.
package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/italolelis/lazypreview/internal/source"
)

// ChunkSize bounds every read handed out by a fetched body.
const ChunkSize = 64 * 1024

const defaultContentType = "application/octet-stream"

// Stream is an open byte window. Body yields at most the requested length and
// must be closed by the caller on every path.
type Stream struct {
	Body        io.ReadCloser
	Length      int64 // Bytes Body will yield, or -1 when the origin did not declare it
	// RangeEnd is the inclusive last offset announced by the origin's
	// Content-Range when Length is -1, or -1 when nothing was announced.
	RangeEnd    int64
	ContentType string
}

// Span returns the number of bytes the stream covers from the window start,
// and false when neither a length nor a range was declared.
func (s *Stream) Span(w source.Window) (int64, bool) {
	if s.Length >= 0 {
		return s.Length, true
	}

	if s.RangeEnd >= w.Start {
		return s.RangeEnd - w.Start + 1, true
	}

	return 0, false
}

// Empty reports whether the window is known to hold no bytes.
func (s *Stream) Empty() bool {
	return s.Length == 0
}

func emptyStream(contentType string) *Stream {
	return &Stream{Body: http.NoBody, Length: 0, ContentType: contentType}
}

// Fetcher opens a byte window of a stored file.
type Fetcher interface {
	Fetch(ctx context.Context, d source.Descriptor, w source.Window) (*Stream, error)
}

// Client dispatches a fetch to the strategy matching the descriptor kind.
type Client struct {
	local  Fetcher
	remote Fetcher
}

// NewClient creates a client from a local and a remote strategy.
func NewClient(local, remote Fetcher) *Client {
	return &Client{local: local, remote: remote}
}

// Fetch validates the window and opens it on the matching strategy.
func (c *Client) Fetch(ctx context.Context, d source.Descriptor, w source.Window) (*Stream, error) {
	if err := w.Validate(); err != nil {
		return nil, &InvalidRequestError{Field: "window", Reason: err.Error(), Err: err}
	}

	switch d.Kind {
	case source.KindLocal:
		return c.local.Fetch(ctx, d, w)
	case source.KindRemote:
		return c.remote.Fetch(ctx, d, w)
	default:
		return nil, &InvalidRequestError{Field: "storage", Reason: "unknown storage kind " + string(d.Kind)}
	}
}

// Outcome maps a fetch error to a bounded label for metrics.
func Outcome(err error) string {
	var (
		invalid     *InvalidRequestError
		unavailable *SourceUnavailableError
		upstream    *UpstreamError
		transport   *TransportError
	)

	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &invalid):
		return "invalid_request"
	case errors.As(err, &unavailable):
		return "source_unavailable"
	case errors.As(err, &upstream):
		if upstream.RangeIgnored() {
			return "range_ignored"
		}

		return "upstream_error"
	case errors.As(err, &transport):
		return "transport_error"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
