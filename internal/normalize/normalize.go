// Package normalize rewrites share links into URLs that serve raw bytes and
// honor range requests.
package normalize

import (
	"context"
	"net/url"
	"strings"

	"github.com/italolelis/lazypreview/internal/logctx"
)

// Rewriter rewrites one family of links. ok is false when u does not belong
// to the family.
type Rewriter interface {
	Rewrite(ctx context.Context, u *url.URL) (rewritten string, ok bool, err error)
}

// Normalizer applies the first matching rewriter to a URL.
type Normalizer struct {
	rewriters []Rewriter
}

// New creates a normalizer trying rewriters in order.
func New(rewriters ...Rewriter) *Normalizer {
	return &Normalizer{rewriters: rewriters}
}

// Normalize returns the rewritten URL, or the trimmed input when no rewriter
// matches or the matching one fails.
func (n *Normalizer) Normalize(ctx context.Context, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	logger := logctx.LoggerFromContext(ctx)

	for _, r := range n.rewriters {
		rewritten, ok, err := r.Rewrite(ctx, u)
		if err != nil {
			logger.WarnContext(ctx, "failed to rewrite url, keeping original", "host", u.Host, "err", err)

			return raw
		}

		if ok {
			logger.DebugContext(ctx, "rewrote share link", "host", u.Host)

			return rewritten
		}
	}

	return raw
}

// DropboxRewriter turns Dropbox preview links into direct downloads.
type DropboxRewriter struct{}

func (DropboxRewriter) Rewrite(_ context.Context, u *url.URL) (string, bool, error) {
	host := strings.ToLower(u.Hostname())
	if host != "dropbox.com" && !strings.HasSuffix(host, ".dropbox.com") {
		return "", false, nil
	}

	q := u.Query()

	switch {
	case q.Get("dl") == "0":
		q.Set("dl", "1")
	case host == "www.dropbox.com" && !q.Has("dl"):
		q.Set("dl", "1")
	default:
		return "", false, nil
	}

	out := *u
	out.RawQuery = q.Encode()

	return out.String(), true, nil
}

const driveDownloadURL = "https://drive.google.com/uc?export=download&id="

// DriveRewriter turns Google Drive viewer links into direct downloads.
type DriveRewriter struct{}

func (DriveRewriter) Rewrite(_ context.Context, u *url.URL) (string, bool, error) {
	if !strings.EqualFold(u.Hostname(), "drive.google.com") {
		return "", false, nil
	}

	if _, rest, ok := strings.Cut(u.Path, "/file/d/"); ok {
		id, _, _ := strings.Cut(rest, "/")
		if id != "" {
			return driveDownloadURL + url.QueryEscape(id), true, nil
		}
	}

	if id := u.Query().Get("id"); id != "" {
		return driveDownloadURL + url.QueryEscape(id), true, nil
	}

	return "", false, nil
}
