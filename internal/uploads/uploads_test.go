package uploads

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"server.log", "server.log"},
		{"../../etc/passwd", "....etcpasswd"},
		{"my file (1).txt", "my file 1.txt"},
		{"ünïcode-ok_1.txt", "ünïcode-ok_1.txt"},
		{"/// ", " "},
		{"$$$", "file"},
		{"", "file"},
		{strings.Repeat("a", 250), strings.Repeat("a", 200)},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), tt.in)
	}
}

func TestStore_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	s := NewStore(dir, 1024)

	path, n, err := s.Save(context.Background(), "../notes.txt", strings.NewReader("hello\nworld\n"))
	require.NoError(t, err)

	assert.Equal(t, int64(12), n)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, "_..notes.txt"), path)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld\n", string(b))
}

func TestStore_Save_UniqueNames(t *testing.T) {
	s := NewStore(t.TempDir(), 0)

	a, _, err := s.Save(context.Background(), "same.txt", strings.NewReader("a"))
	require.NoError(t, err)

	b, _, err := s.Save(context.Background(), "same.txt", strings.NewReader("b"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestStore_Save_TooLarge(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 4)

	_, _, err := s.Save(context.Background(), "big.txt", strings.NewReader("12345"))
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_Save_ExactLimit(t *testing.T) {
	s := NewStore(t.TempDir(), 4)

	_, n, err := s.Save(context.Background(), "fits.txt", strings.NewReader("1234"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
