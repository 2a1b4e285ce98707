package fetch

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/italolelis/lazypreview/internal/logctx"
	"github.com/italolelis/lazypreview/internal/source"
)

// DefaultTimeout bounds establishing a remote fetch: dial, TLS handshake and
// waiting for response headers. Streaming the body is bounded by the caller's
// context only.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed origin response is relayed.
const maxErrorBody = 64 * 1024

// NewHTTPClient returns a client for range requests with timeouts applied to
// connection setup and response headers, instrumented with OpenTelemetry.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = timeout
	transport.ResponseHeaderTimeout = timeout
	// Range offsets refer to the stored representation.
	transport.DisableCompression = true

	return &http.Client{Transport: otelhttp.NewTransport(transport)}
}

// RemoteFetcher reads windows of objects served by HTTP origins.
type RemoteFetcher struct {
	client *http.Client
	chunk  int
}

// NewRemoteFetcher creates a remote strategy. A nil client selects
// NewHTTPClient(DefaultTimeout).
func NewRemoteFetcher(client *http.Client, chunk int) *RemoteFetcher {
	if client == nil {
		client = NewHTTPClient(DefaultTimeout)
	}

	if chunk <= 0 {
		chunk = ChunkSize
	}

	return &RemoteFetcher{client: client, chunk: chunk}
}

// Fetch issues a ranged GET and normalizes the origin answer:
//   - 206 is streamed through, capped at the window length.
//   - 200 is served only when it is provably the requested slice (start 0 and a
//     declared length that fits the window); otherwise the origin ignored the
//     range and an UpstreamError is returned.
//   - 416 means the start is past the end of the object: an empty stream.
//   - Anything else is an UpstreamError carrying the origin status and body.
func (f *RemoteFetcher) Fetch(ctx context.Context, d source.Descriptor, w source.Window) (*Stream, error) {
	logger := logctx.LoggerFromContext(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return nil, &InvalidRequestError{Field: "url", Reason: "cannot build request", Err: err}
	}

	req.Header.Set("Range", w.RangeHeader())

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &TransportError{Operation: "get_range", Err: err}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}

	switch resp.StatusCode {
	case http.StatusPartialContent:
		first, last, ok := contentRangeBounds(resp.Header.Get("Content-Range"))
		if ok && first != w.Start {
			resp.Body.Close()

			return nil, &UpstreamError{
				StatusCode:  resp.StatusCode,
				ContentType: contentType,
				Reason:      "origin returned range starting at " + strconv.FormatInt(first, 10),
			}
		}

		stream := &Stream{Length: -1, RangeEnd: -1, ContentType: contentType}
		limit := w.Length

		switch {
		case resp.ContentLength >= 0:
			stream.Length = min(resp.ContentLength, w.Length)
		case ok && last >= first:
			// Chunked origin: trust the announced range, clamped to the window.
			stream.RangeEnd = min(last, w.End())
			limit = stream.RangeEnd - w.Start + 1
		}

		stream.Body = newChunkedBody(resp.Body, limit, f.chunk)

		return stream, nil

	case http.StatusOK:
		if w.Start == 0 && resp.ContentLength >= 0 && resp.ContentLength <= w.Length {
			logger.Debug("origin ignored range but the full object fits the window", "size", resp.ContentLength)

			return &Stream{
				Body:        newChunkedBody(resp.Body, resp.ContentLength, f.chunk),
				Length:      resp.ContentLength,
				ContentType: contentType,
			}, nil
		}

		resp.Body.Close()

		return nil, &UpstreamError{
			StatusCode:  resp.StatusCode,
			ContentType: contentType,
			Reason:      "origin does not support range requests",
		}

	case http.StatusRequestedRangeNotSatisfiable:
		resp.Body.Close()

		return emptyStream(defaultContentType), nil
	}

	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		logger.Debug("failed to read origin error body", "err", readErr)
	}

	return nil, &UpstreamError{
		StatusCode:  resp.StatusCode,
		Body:        body,
		ContentType: contentType,
		Reason:      http.StatusText(resp.StatusCode),
	}
}

// contentRangeBounds parses the first and last offsets of "bytes a-b/size".
func contentRangeBounds(header string) (int64, int64, bool) {
	rng, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes ")
	if !ok {
		return 0, 0, false
	}

	rng, _, _ = strings.Cut(rng, "/")

	a, b, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, 0, false
	}

	first, err := strconv.ParseInt(strings.TrimSpace(a), 10, 64)
	if err != nil {
		return 0, 0, false
	}

	last, err := strconv.ParseInt(strings.TrimSpace(b), 10, 64)
	if err != nil || last < first {
		return 0, 0, false
	}

	return first, last, true
}
