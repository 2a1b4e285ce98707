package normalize

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/putdotio/go-putio"
	"golang.org/x/oauth2"
)

// PutioRewriter resolves put.io file pages (https://app.put.io/files/<id>)
// to temporary download links through the put.io API.
type PutioRewriter struct {
	client *putio.Client
}

// NewPutioRewriter creates a rewriter authenticated with an OAuth token.
func NewPutioRewriter(ctx context.Context, token string, base *http.Client) *PutioRewriter {
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}

	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})

	return &PutioRewriter{client: putio.NewClient(oauth2.NewClient(ctx, tokenSource))}
}

func (r *PutioRewriter) Rewrite(ctx context.Context, u *url.URL) (string, bool, error) {
	id, ok := putioFileID(u)
	if !ok {
		return "", false, nil
	}

	link, err := r.client.Files.URL(ctx, id, false)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve put.io file %d: %w", id, err)
	}

	return link, true, nil
}

func putioFileID(u *url.URL) (int64, bool) {
	host := strings.ToLower(u.Hostname())
	if host != "put.io" && host != "app.put.io" {
		return 0, false
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 || (segments[0] != "files" && segments[0] != "file") {
		return 0, false
	}

	id, err := strconv.ParseInt(segments[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}

	return id, true
}
