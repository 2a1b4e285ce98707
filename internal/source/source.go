package source

import (
	"fmt"
	"math"
	"net/url"
	"strings"
)

// Kind tags where the bytes of a file live.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// Descriptor is a tagged reference to a file's bytes. Exactly one of Path or URL
// is meaningful, selected by Kind.
type Descriptor struct {
	Kind Kind
	Path string
	URL  string
}

// Local returns a descriptor for a file on this host.
func Local(path string) Descriptor {
	return Descriptor{Kind: KindLocal, Path: path}
}

// Remote returns a descriptor for a file served by an HTTP origin.
func Remote(rawURL string) Descriptor {
	return Descriptor{Kind: KindRemote, URL: rawURL}
}

// Location returns the path or URL, depending on the kind.
func (d Descriptor) Location() string {
	if d.Kind == KindLocal {
		return d.Path
	}

	return d.URL
}

// Validate checks that the descriptor is well formed. Remote descriptors must
// point at an http or https origin.
func (d Descriptor) Validate() error {
	switch d.Kind {
	case KindLocal:
		if d.Path == "" {
			return fmt.Errorf("local descriptor has an empty path")
		}
	case KindRemote:
		u, err := url.Parse(d.URL)
		if err != nil {
			return fmt.Errorf("invalid remote url: %w", err)
		}

		scheme := strings.ToLower(u.Scheme)
		if scheme != "http" && scheme != "https" {
			return fmt.Errorf("unsupported remote scheme %q", u.Scheme)
		}

		if u.Host == "" {
			return fmt.Errorf("remote url has no host")
		}
	default:
		return fmt.Errorf("unknown descriptor kind %q", d.Kind)
	}

	return nil
}

// Window is a half-open byte interval [Start, Start+Length).
type Window struct {
	Start  int64
	Length int64
}

// End returns the inclusive last offset of the window.
func (w Window) End() int64 {
	return w.Start + w.Length - 1
}

// Validate rejects negative offsets, non-positive lengths and windows whose
// last offset does not fit in an int64.
func (w Window) Validate() error {
	if w.Start < 0 {
		return fmt.Errorf("start must be non-negative, got %d", w.Start)
	}

	if w.Length <= 0 {
		return fmt.Errorf("length must be positive, got %d", w.Length)
	}

	if w.Start > math.MaxInt64-w.Length+1 {
		return fmt.Errorf("window %d+%d overflows the offset range", w.Start, w.Length)
	}

	return nil
}

// RangeHeader renders the window as an HTTP Range request header value.
func (w Window) RangeHeader() string {
	return fmt.Sprintf("bytes=%d-%d", w.Start, w.End())
}

// ContentRange renders the Content-Range header for n bytes returned from the
// start of the window. The total size is never known to the caller, hence "*".
func (w Window) ContentRange(n int64) string {
	return fmt.Sprintf("bytes %d-%d/*", w.Start, w.Start+n-1)
}
