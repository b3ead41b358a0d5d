package filestore_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urban-yield/urban-api/internal/filestore"
)

func newLocal(t *testing.T) (*filestore.Local, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "uploads")
	s, err := filestore.NewLocal(root)
	require.NoError(t, err)
	return s, root
}

func TestLocal_SaveAndResolve(t *testing.T) {
	s, root := newLocal(t)
	ctx := context.Background()

	p, id, err := s.Save(ctx, strings.NewReader("tiff-bytes"), "city.TIF", "urban")
	require.NoError(t, err)

	_, err = uuid.Parse(id)
	assert.NoError(t, err, "id should be a UUID")
	assert.Equal(t, filepath.Join(root, "urban", id+".TIF"), p)

	resolved, ok, err := s.Resolve(ctx, id, "urban")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p, resolved)

	content, err := os.ReadFile(resolved)
	require.NoError(t, err)
	assert.Equal(t, "tiff-bytes", string(content))
}

func TestLocal_SaveWithoutExtension(t *testing.T) {
	s, _ := newLocal(t)
	ctx := context.Background()

	_, id, err := s.Save(ctx, strings.NewReader("x"), "noext", "climate")
	require.NoError(t, err)

	_, ok, err := s.Resolve(ctx, id, "climate")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocal_DistinctIDs(t *testing.T) {
	s, _ := newLocal(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		_, id, err := s.Save(ctx, strings.NewReader("x"), "a.nc", "climate")
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestLocal_ResolveWrongSubdir(t *testing.T) {
	s, _ := newLocal(t)
	ctx := context.Background()

	_, id, err := s.Save(ctx, strings.NewReader("x"), "a.tif", "urban")
	require.NoError(t, err)

	_, ok, err := s.Resolve(ctx, id, "climate")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocal_ResolveUnknown(t *testing.T) {
	s, _ := newLocal(t)
	_, ok, err := s.Resolve(context.Background(), uuid.NewString(), "urban")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocal_RejectsTraversal(t *testing.T) {
	s, root := newLocal(t)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(root), "secret.txt"), []byte("x"), 0o644))

	for _, id := range []string{"../secret", "..", "a/b", `a\b`} {
		_, ok, err := s.Resolve(ctx, id, "urban")
		require.NoError(t, err)
		assert.False(t, ok, "id %q", id)
	}
	_, ok, err := s.Resolve(ctx, "secret", "..")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = s.Save(ctx, strings.NewReader("x"), "a.tif", "../escape")
	assert.ErrorIs(t, err, filestore.ErrStorage)
}

func TestLocal_Delete(t *testing.T) {
	s, _ := newLocal(t)
	ctx := context.Background()

	_, id, err := s.Save(ctx, strings.NewReader("x"), "a.nc", "historical-yields")
	require.NoError(t, err)

	deleted, err := s.Delete(ctx, id, "historical-yields")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, ok, err := s.Resolve(ctx, id, "historical-yields")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting again is a no-op.
	deleted, err = s.Delete(ctx, id, "historical-yields")
	require.NoError(t, err)
	assert.False(t, deleted)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("client went away") }

func TestLocal_SaveWriteFailure(t *testing.T) {
	s, root := newLocal(t)

	_, _, err := s.Save(context.Background(), failingReader{}, "a.tif", "urban")
	assert.ErrorIs(t, err, filestore.ErrStorage)

	entries, err := os.ReadDir(filepath.Join(root, "urban"))
	require.NoError(t, err)
	assert.Empty(t, entries, "partial file should be removed")
}

func TestLocal_LargeUpload(t *testing.T) {
	s, _ := newLocal(t)
	ctx := context.Background()
	payload := bytes.Repeat([]byte{0xAB}, 3<<20)

	_, id, err := s.Save(ctx, bytes.NewReader(payload), "big.tif", "urban")
	require.NoError(t, err)

	p, ok, err := s.Resolve(ctx, id, "urban")
	require.NoError(t, err)
	require.True(t, ok)
	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, got))
}

func TestLocal_Ping(t *testing.T) {
	s, root := newLocal(t)
	assert.NoError(t, s.Ping(context.Background()))

	require.NoError(t, os.RemoveAll(root))
	assert.Error(t, s.Ping(context.Background()))
}
