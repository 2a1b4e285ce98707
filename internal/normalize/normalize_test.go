package normalize

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDropboxRewriter(t *testing.T) {
	n := New(DropboxRewriter{})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"dl=0 flipped", "https://www.dropbox.com/s/abc/log.txt?dl=0", "https://www.dropbox.com/s/abc/log.txt?dl=1"},
		{"missing dl added", "https://www.dropbox.com/s/abc/log.txt", "https://www.dropbox.com/s/abc/log.txt?dl=1"},
		{"keeps other params", "https://www.dropbox.com/scl/fi/x/log.txt?rlkey=k&dl=0", "https://www.dropbox.com/scl/fi/x/log.txt?dl=1&rlkey=k"},
		{"already direct", "https://www.dropbox.com/s/abc/log.txt?dl=1", "https://www.dropbox.com/s/abc/log.txt?dl=1"},
		{"content host untouched", "https://dl.dropboxusercontent.com/s/abc/log.txt", "https://dl.dropboxusercontent.com/s/abc/log.txt"},
		{"other host", "https://example.com/log.txt?dl=0", "https://example.com/log.txt?dl=0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Normalize(context.Background(), tt.in))
		})
	}
}

func TestDriveRewriter(t *testing.T) {
	n := New(DriveRewriter{})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"file view", "https://drive.google.com/file/d/1AbC_xyz/view?usp=sharing", "https://drive.google.com/uc?export=download&id=1AbC_xyz"},
		{"open id", "https://drive.google.com/open?id=1AbC_xyz", "https://drive.google.com/uc?export=download&id=1AbC_xyz"},
		{"folder untouched", "https://drive.google.com/drive/folders/abc", "https://drive.google.com/drive/folders/abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Normalize(context.Background(), tt.in))
		})
	}
}

type failingRewriter struct{}

func (failingRewriter) Rewrite(context.Context, *url.URL) (string, bool, error) {
	return "", false, errors.New("boom")
}

func TestNormalize_PassThrough(t *testing.T) {
	n := New(DropboxRewriter{}, DriveRewriter{})

	assert.Equal(t, "", n.Normalize(context.Background(), "   "))
	assert.Equal(t, "https://example.com/a.log", n.Normalize(context.Background(), "  https://example.com/a.log\n"))
	assert.Equal(t, "%zz", n.Normalize(context.Background(), "%zz"))
}

func TestNormalize_FailureKeepsOriginal(t *testing.T) {
	n := New(failingRewriter{}, DropboxRewriter{})

	in := "https://www.dropbox.com/s/abc/log.txt?dl=0"
	assert.Equal(t, in, n.Normalize(context.Background(), in))
}
