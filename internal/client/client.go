// Package client talks to the preview HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/italolelis/lazypreview/internal/logctx"
	"github.com/italolelis/lazypreview/internal/preview"
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4096

// StatusError is returned for any non-success response.
type StatusError struct {
	Operation  string // The API call that failed (e.g., "stream", "create")
	StatusCode int
	Message    string // Leading part of the response body
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed (HTTP %d): %s", e.Operation, e.StatusCode, e.Message)
}

// Record is one entry of the file list.
type Record struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Storage   string `json:"storage"`
	Size      string `json:"size,omitempty"`
	CreatedAt string `json:"created_at"`
}

// View describes how to page through a file.
type View struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Source     string `json:"source"`
	Storage    string `json:"storage"`
	ChunkBytes     int64  `json:"chunk_bytes"`
	MaxWindowBytes int64  `json:"max_window_bytes"`
	StreamURL      string `json:"stream_url"`
	RawURL         string `json:"raw_url"`
}

type Client struct {
	BaseURL    string
	httpClient *http.Client
}

// New creates a client for the API at baseURL. A nil httpClient selects an
// instrumented client without an overall timeout, since windows are streamed.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type createResponse struct {
	OK    bool   `json:"ok"`
	ID    string `json:"id"`
	Error string `json:"error"`
}

// CreateFromURL registers a remote URL and returns the record id.
func (c *Client) CreateFromURL(ctx context.Context, rawURL, name string) (string, error) {
	body, err := json.Marshal(map[string]string{"url": rawURL, "name": name})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/create", bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")

	return c.doCreate(ctx, "create", req)
}

// Upload streams r as a multipart upload named filename and returns the
// record id.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		fw, err := mw.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(fw, r)
		}

		if err == nil {
			err = mw.Close()
		}

		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/upload", pr)
	if err != nil {
		pr.Close()

		return "", err
	}

	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.doCreate(ctx, "upload", req)
}

func (c *Client) doCreate(ctx context.Context, op string, req *http.Request) (string, error) {
	logger := logctx.LoggerFromContext(ctx).With("operation", op)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	var out createResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", &StatusError{Operation: op, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}

		return "", fmt.Errorf("failed to decode %s response: %w", op, err)
	}

	if resp.StatusCode != http.StatusOK || !out.OK {
		return "", &StatusError{Operation: op, StatusCode: resp.StatusCode, Message: out.Error}
	}

	logger.Debug("registered file", "id", out.ID)

	return out.ID, nil
}

// List returns the most recently registered files.
func (c *Client) List(ctx context.Context) ([]Record, error) {
	var out struct {
		OK    bool     `json:"ok"`
		Items []Record `json:"items"`
	}

	if err := c.getJSON(ctx, "list", c.BaseURL+"/list", &out); err != nil {
		return nil, err
	}

	return out.Items, nil
}

// View returns the view descriptor of a file.
func (c *Client) View(ctx context.Context, id string) (*View, error) {
	var out View

	if err := c.getJSON(ctx, "view", c.BaseURL+"/view/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, op, target string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(op, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}

	return nil
}

// ReadRange returns up to length bytes of file id starting at start. Fewer
// bytes mean the file ends inside the window.
func (c *Client) ReadRange(ctx context.Context, id string, start, length int64) ([]byte, error) {
	q := url.Values{}
	q.Set("id", id)
	q.Set("start", strconv.FormatInt(start, 10))
	q.Set("bytes", strconv.FormatInt(length, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/stream?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("stream", resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, length))
	if err != nil {
		return nil, fmt.Errorf("failed to read window: %w", err)
	}

	if want, ok := rangeLength(resp.Header.Get("Content-Range")); ok && int64(len(data)) < want {
		return nil, fmt.Errorf("failed to read window: got %d of %d bytes: %w", len(data), want, io.ErrUnexpectedEOF)
	}

	return data, nil
}

// rangeLength returns the byte count announced by "bytes a-b/*".
func rangeLength(header string) (int64, bool) {
	rng, ok := strings.CutPrefix(header, "bytes ")
	if !ok {
		return 0, false
	}

	rng, _, _ = strings.Cut(rng, "/")

	a, b, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, false
	}

	first, errA := strconv.ParseInt(a, 10, 64)
	last, errB := strconv.ParseInt(b, 10, 64)

	if errA != nil || errB != nil || last < first {
		return 0, false
	}

	return last - first + 1, true
}

// Source adapts file id to a preview source.
func (c *Client) Source(id string) preview.Source {
	return preview.SourceFunc(func(ctx context.Context, start, length int64) ([]byte, error) {
		return c.ReadRange(ctx, id, start, length)
	})
}

func statusError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	return &StatusError{
		Operation:  op,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(b)),
	}
}
