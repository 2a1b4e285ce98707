package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/lazypreview/internal/fetch"
	"github.com/italolelis/lazypreview/internal/http/rest"
	"github.com/italolelis/lazypreview/internal/normalize"
	"github.com/italolelis/lazypreview/internal/preview"
	"github.com/italolelis/lazypreview/internal/storage/sqlite"
	"github.com/italolelis/lazypreview/internal/telemetry"
	"github.com/italolelis/lazypreview/internal/uploads"
)

func newTestServer(t *testing.T) *Client {
	t.Helper()

	dir := t.TempDir()

	db, err := sqlite.InitDB(context.Background(), filepath.Join(dir, "files.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tel := &telemetry.Telemetry{}

	h := rest.NewPreviewHandler(
		sqlite.NewRecordRepository(db),
		fetch.NewInstrumentedFetcher(fetch.NewClient(fetch.NewLocalFetcher(0), fetch.NewRemoteFetcher(nil, 0)), tel),
		normalize.New(normalize.DropboxRewriter{}, normalize.DriveRewriter{}),
		uploads.NewStore(filepath.Join(dir, "uploads"), 8<<20),
		tel,
		rest.PreviewConfig{ChunkBytes: 1 << 20, MaxWindowBytes: 64 << 20, ListLimit: 200},
	)

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	return New(srv.URL, srv.Client())
}

func numberedLines(minSize int) string {
	var b strings.Builder

	for i := 0; b.Len() < minSize; i++ {
		fmt.Fprintf(&b, "line %06d\n", i)
	}

	return b.String()
}

// Uploading a 2 MiB file and paging through it with 1 MiB windows and a
// 1 KiB overlap rebuilds it exactly.
func TestUploadAndPreview(t *testing.T) {
	c := newTestServer(t)
	ctx := context.Background()
	content := numberedLines(2 << 20)

	id, err := c.Upload(ctx, "big.log", strings.NewReader(content))
	require.NoError(t, err)

	calls := 0
	src := preview.SourceFunc(func(ctx context.Context, start, length int64) ([]byte, error) {
		calls++

		return c.ReadRange(ctx, id, start, length)
	})

	r := preview.NewReader(src, preview.Options{ChunkSize: 1 << 20, Overlap: 1 << 10})

	for {
		_, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}

		require.NoError(t, err)
	}

	assert.Equal(t, content, r.Text())
	assert.Equal(t, 3, calls)
}

func TestCreateViewList(t *testing.T) {
	c := newTestServer(t)
	ctx := context.Background()

	id, err := c.CreateFromURL(ctx, "https://www.dropbox.com/s/abc/report.csv?dl=0", "")
	require.NoError(t, err)

	view, err := c.View(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, "report.csv", view.Name)
	assert.Equal(t, "remote", view.Storage)
	assert.Equal(t, "https://www.dropbox.com/s/abc/report.csv?dl=1", view.RawURL)
	assert.Equal(t, int64(1<<20), view.ChunkBytes)

	records, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID)
}

func TestCreateFromURL_Rejected(t *testing.T) {
	c := newTestServer(t)

	_, err := c.CreateFromURL(context.Background(), "ftp://example.com/a.txt", "")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, "create", statusErr.Operation)
}

func TestReadRange_Errors(t *testing.T) {
	c := newTestServer(t)
	ctx := context.Background()

	_, err := c.ReadRange(ctx, "missing", 0, 10)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	_, err = c.View(ctx, "missing")
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

// A reader over a file removed from disk stops with the server error.
func TestPreview_DeletedUploadIsTerminal(t *testing.T) {
	c := newTestServer(t)
	ctx := context.Background()

	id, err := c.Upload(ctx, "gone.log", strings.NewReader("a\nb\n"))
	require.NoError(t, err)

	view, err := c.View(ctx, id)
	require.NoError(t, err)
	require.NoError(t, os.Remove(view.Source))

	r := preview.NewReader(c.Source(id), preview.Options{ChunkSize: 64})

	_, err = r.Next(ctx)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	assert.False(t, r.Trigger(ctx))
}

// A remote origin dropping the connection mid-window ends the view with an
// error rather than a silently short file.
func TestPreview_InterruptedOriginIsTerminal(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, buf, err := http.NewResponseController(w).Hijack()
		if err != nil {
			return
		}
		defer conn.Close()

		fmt.Fprint(buf, "HTTP/1.1 206 Partial Content\r\n"+
			"Content-Type: text/plain\r\n"+
			"Content-Range: bytes 0-99/100\r\n"+
			"Transfer-Encoding: chunked\r\n\r\n"+
			"a\r\n0123456789\r\n")
		buf.Flush()
	}))
	defer origin.Close()

	c := newTestServer(t)
	ctx := context.Background()

	id, err := c.CreateFromURL(ctx, origin.URL+"/broken.log", "broken.log")
	require.NoError(t, err)

	data, err := c.ReadRange(ctx, id, 0, 100)
	require.Error(t, err)
	assert.Nil(t, data)

	r := preview.NewReader(c.Source(id), preview.Options{ChunkSize: 100})

	_, err = r.Next(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
	assert.False(t, r.Exhausted())
}

// A body shorter than its announced range is reported even when the
// connection ends cleanly.
func TestReadRange_ShortBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes 0-99/*")
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())

	_, err := c.ReadRange(context.Background(), "x", 0, 100)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestRangeLength(t *testing.T) {
	tests := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"bytes 0-99/*", 100, true},
		{"bytes 1047552-2097151/*", 1049600, true},
		{"bytes 5-5/10", 1, true},
		{"bytes 9-3/*", 0, false},
		{"bytes */100", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := rangeLength(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestStatusError(t *testing.T) {
	err := &StatusError{Operation: "stream", StatusCode: 502, Message: "fetch error"}
	assert.Equal(t, "stream failed (HTTP 502): fetch error", err.Error())
}
