package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/italolelis/lazypreview/internal/fetch"
	"github.com/italolelis/lazypreview/internal/logctx"
	"github.com/italolelis/lazypreview/internal/normalize"
	"github.com/italolelis/lazypreview/internal/source"
	"github.com/italolelis/lazypreview/internal/storage"
	"github.com/italolelis/lazypreview/internal/telemetry"
	"github.com/italolelis/lazypreview/internal/uploads"
)

// multipartOverhead is the slack allowed on top of the upload limit for
// multipart boundaries and part headers.
const multipartOverhead = 1 << 20

// PreviewConfig holds the limits applied by PreviewHandler.
type PreviewConfig struct {
	ChunkBytes     int64
	MaxWindowBytes int64
	MaxUploadBytes int64
	ListLimit      int
	// PublicURL prefixes links returned by /view. When empty, links are built
	// from the request host.
	PublicURL string
}

type PreviewHandler struct {
	records    storage.RecordRepository
	fetcher    fetch.Fetcher
	normalizer *normalize.Normalizer
	uploads    *uploads.Store
	telemetry  *telemetry.Telemetry
	cfg        PreviewConfig
}

// NewPreviewHandler creates the handler serving registration, listing and
// range streaming of files.
func NewPreviewHandler(
	records storage.RecordRepository,
	fetcher fetch.Fetcher,
	normalizer *normalize.Normalizer,
	store *uploads.Store,
	t *telemetry.Telemetry,
	cfg PreviewConfig,
) *PreviewHandler {
	return &PreviewHandler{
		records:    records,
		fetcher:    fetcher,
		normalizer: normalizer,
		uploads:    store,
		telemetry:  t,
		cfg:        cfg,
	}
}

func (h *PreviewHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", h.HandleHealth)
	r.Post("/create", h.HandleCreate)
	r.Post("/upload", h.HandleUpload)
	r.Get("/list", h.HandleList)
	r.Get("/view/{id}", h.HandleView)
	r.Get("/stream", h.HandleStream)

	return r
}

type createRequest struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

type createResponse struct {
	OK    bool   `json:"ok"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

type listItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Storage   string `json:"storage"`
	Size      string `json:"size,omitempty"`
	CreatedAt string `json:"created_at"`
}

type listResponse struct {
	OK    bool       `json:"ok"`
	Items []listItem `json:"items"`
}

type viewResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Source     string `json:"source"`
	Storage    string `json:"storage"`
	ChunkBytes int64  `json:"chunk_bytes"`
	// MaxWindowBytes is the largest bytes value /stream accepts, 0 when unbounded.
	MaxWindowBytes int64  `json:"max_window_bytes"`
	StreamURL      string `json:"stream_url"`
	RawURL         string `json:"raw_url"`
}

// HandleHealth reports liveness.
func (h *PreviewHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]bool{"ok": true})
}

// HandleCreate registers a remote URL.
func (h *PreviewHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Debug("failed to decode request", "err", err)
		writeJSON(w, r, http.StatusBadRequest, createResponse{Error: "invalid request body"})

		return
	}

	raw := strings.TrimSpace(req.URL)
	if raw == "" {
		writeJSON(w, r, http.StatusBadRequest, createResponse{Error: "no url provided"})

		return
	}

	normalized := h.normalizer.Normalize(ctx, raw)

	location := source.Remote(normalized)
	if err := location.Validate(); err != nil {
		writeJSON(w, r, http.StatusBadRequest, createResponse{Error: err.Error()})

		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = nameFromURL(normalized)
	}

	id, err := h.records.Create(ctx, name, location)
	if err != nil {
		logger.Error("failed to create record", "err", err)
		writeJSON(w, r, http.StatusInternalServerError, createResponse{Error: "failed to store record"})

		return
	}

	h.telemetry.RecordRecordCreated(string(source.KindRemote))
	logger.Info("registered remote file", "id", id, "name", name)

	writeJSON(w, r, http.StatusOK, createResponse{OK: true, ID: id})
}

// HandleUpload stores the multipart "file" part and registers it.
func (h *PreviewHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	if h.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes+multipartOverhead)
	}

	part, err := filePart(r)
	if err != nil {
		writeJSON(w, r, uploadErrorStatus(err), createResponse{Error: err.Error()})

		return
	}
	defer part.Close()

	filename := part.FileName()

	path, size, err := h.uploads.Save(ctx, filename, part)
	if err != nil {
		status := uploadErrorStatus(err)
		if status == http.StatusInternalServerError {
			logger.Error("failed to store upload", "err", err)
		}

		writeJSON(w, r, status, createResponse{Error: err.Error()})

		return
	}

	id, err := h.records.Create(ctx, filename, source.Local(path))
	if err != nil {
		logger.Error("failed to create record", "err", err)

		if rmErr := os.Remove(path); rmErr != nil {
			logger.Warn("failed to remove orphaned upload", "path", path, "err", rmErr)
		}

		writeJSON(w, r, http.StatusInternalServerError, createResponse{Error: "failed to store record"})

		return
	}

	h.telemetry.RecordRecordCreated(string(source.KindLocal))
	h.telemetry.RecordUpload(size)

	writeJSON(w, r, http.StatusOK, createResponse{OK: true, ID: id})
}

var (
	errNoFile        = errors.New("no file")
	errEmptyFilename = errors.New("empty filename")
)

// filePart returns the first multipart part named "file" without buffering
// the request body.
func filePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errNoFile
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errNoFile
		}

		if err != nil {
			return nil, err
		}

		if part.FormName() != "file" {
			part.Close()

			continue
		}

		if part.FileName() == "" {
			part.Close()

			return nil, errEmptyFilename
		}

		return part, nil
	}
}

func uploadErrorStatus(err error) int {
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.Is(err, errNoFile), errors.Is(err, errEmptyFilename):
		return http.StatusBadRequest
	case errors.Is(err, uploads.ErrTooLarge), errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// HandleList returns the most recently registered files.
func (h *PreviewHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	records, err := h.records.ListRecent(ctx, h.cfg.ListLimit)
	if err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to list records", "err", err)
		http.Error(w, "failed to list records", http.StatusInternalServerError)

		return
	}

	items := make([]listItem, 0, len(records))

	for _, rec := range records {
		item := listItem{
			ID:        rec.ID,
			Name:      rec.DisplayName,
			Storage:   string(rec.Location.Kind),
			CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
		}

		if rec.Location.Kind == source.KindLocal {
			if info, err := os.Stat(rec.Location.Path); err == nil {
				item.Size = humanize.IBytes(uint64(info.Size()))
			}
		}

		items = append(items, item)
	}

	writeJSON(w, r, http.StatusOK, listResponse{OK: true, Items: items})
}

// HandleView returns what a viewer needs to page through a file.
func (h *PreviewHandler) HandleView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	rec, err := h.records.Get(ctx, id)
	if err != nil {
		h.writeRecordError(w, r, err)

		return
	}

	streamURL := h.baseURL(r) + "/stream?id=" + url.QueryEscape(rec.ID)

	rawURL := streamURL
	if rec.Location.Kind == source.KindRemote {
		rawURL = rec.Location.URL
	}

	writeJSON(w, r, http.StatusOK, viewResponse{
		ID:         rec.ID,
		Name:       rec.DisplayName,
		Source:     rec.Location.Location(),
		Storage:    string(rec.Location.Kind),
		ChunkBytes:     h.cfg.ChunkBytes,
		MaxWindowBytes: h.cfg.MaxWindowBytes,
		StreamURL:      streamURL,
		RawURL:         rawURL,
	})
}

// HandleStream writes one byte window of a registered file. Nothing is
// written until the window has been opened, so failures never leave a
// partial response.
func (h *PreviewHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)

		return
	}

	window, err := h.parseWindow(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	rec, err := h.records.Get(ctx, id)
	if err != nil {
		h.writeRecordError(w, r, err)

		return
	}

	logger = logger.With("id", rec.ID, "storage", rec.Location.Kind, "start", window.Start, "bytes", window.Length)

	stream, err := h.fetcher.Fetch(ctx, rec.Location, window)
	if err != nil {
		h.writeFetchError(w, r, err)

		return
	}
	defer stream.Body.Close()

	header := w.Header()
	header.Set("Content-Type", stream.ContentType)
	header.Set("Accept-Ranges", "bytes")
	header.Set("Cache-Control", "no-store")

	if stream.Length > 0 {
		header.Set("Content-Length", strconv.FormatInt(stream.Length, 10))
	}

	if n, ok := stream.Span(window); ok && n > 0 {
		header.Set("Content-Range", window.ContentRange(n))
	}

	w.WriteHeader(http.StatusOK)

	n, err := copyFlushing(w, stream.Body)
	if err != nil {
		// Headers are gone: abort so the client sees a read error, not a short body.
		logger.Warn("stream interrupted", "written", humanize.IBytes(uint64(n)), "err", err)
		h.telemetry.RecordSystemError("fetcher", "interrupted")

		panic(http.ErrAbortHandler)
	}

	logger.Debug("streamed window", "written", humanize.IBytes(uint64(n)))
}

func (h *PreviewHandler) parseWindow(q url.Values) (source.Window, error) {
	w := source.Window{Start: 0, Length: h.cfg.ChunkBytes}

	if raw := q.Get("start"); raw != "" {
		start, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || start < 0 {
			return w, fmt.Errorf("invalid start")
		}

		w.Start = start
	}

	if raw := q.Get("bytes"); raw != "" {
		length, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || length <= 0 {
			return w, fmt.Errorf("invalid bytes")
		}

		w.Length = length
	}

	if h.cfg.MaxWindowBytes > 0 && w.Length > h.cfg.MaxWindowBytes {
		return w, fmt.Errorf("bytes exceeds maximum of %d", h.cfg.MaxWindowBytes)
	}

	if err := w.Validate(); err != nil {
		return w, err
	}

	return w, nil
}

func (h *PreviewHandler) baseURL(r *http.Request) string {
	if h.cfg.PublicURL != "" {
		return strings.TrimRight(h.cfg.PublicURL, "/")
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	return scheme + "://" + r.Host
}

func (h *PreviewHandler) writeRecordError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)

		return
	}

	logctx.LoggerFromContext(r.Context()).Error("failed to get record", "err", err)
	h.telemetry.RecordSystemError("storage", "get_record")
	http.Error(w, "failed to get record", http.StatusInternalServerError)
}

// writeFetchError maps fetch failures to responses. Origin errors are relayed
// with their status and body; an origin that ignored the range is a bad
// gateway.
func (h *PreviewHandler) writeFetchError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logctx.LoggerFromContext(r.Context())

	var (
		invalid     *fetch.InvalidRequestError
		unavailable *fetch.SourceUnavailableError
		upstream    *fetch.UpstreamError
		transport   *fetch.TransportError
	)

	switch {
	case errors.As(err, &invalid):
		http.Error(w, invalid.Error(), http.StatusBadRequest)
	case errors.As(err, &unavailable):
		logger.Warn("source unavailable", "err", err)
		http.Error(w, "source unavailable", http.StatusNotFound)
	case errors.As(err, &upstream):
		logger.Warn("upstream error", "status", upstream.StatusCode, "err", err)

		if upstream.RangeIgnored() {
			http.Error(w, "origin does not support range requests", http.StatusBadGateway)

			return
		}

		w.Header().Set("Content-Type", upstream.ContentType)
		w.WriteHeader(upstream.StatusCode)
		w.Write(upstream.Body)
	case errors.As(err, &transport):
		logger.Error("transport error", "err", err)
		h.telemetry.RecordSystemError("fetcher", "transport")
		http.Error(w, "fetch error", http.StatusBadGateway)
	default:
		logger.Error("failed to fetch window", "err", err)
		h.telemetry.RecordSystemError("fetcher", "unknown")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// copyFlushing copies src to w through a fixed buffer, flushing after every
// write so clients receive data as it arrives.
func copyFlushing(w http.ResponseWriter, src io.Reader) (int64, error) {
	rc := http.NewResponseController(w)
	buf := make([]byte, fetch.ChunkSize)

	var written int64

	for {
		nr, readErr := src.Read(buf)
		if nr > 0 {
			nw, err := w.Write(buf[:nr])
			written += int64(nw)

			if err != nil {
				return written, err
			}

			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return written, err
			}
		}

		if errors.Is(readErr, io.EOF) {
			return written, nil
		}

		if readErr != nil {
			return written, readErr
		}
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to encode response", "err", err)
	}
}

func nameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "file"
	}

	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return "file"
	}

	return base
}
