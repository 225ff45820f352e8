package blobstore

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, store BlobStore) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Open(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	payload := []byte("shard contents")
	require.NoError(t, store.Put(ctx, "shard-0", payload))

	blob, err := store.Open(ctx, "shard-0")
	require.NoError(t, err)
	defer blob.Close()

	assert.Equal(t, int64(len(payload)), blob.Size())

	buf := make([]byte, 5)
	n, err := blob.ReadAt(ctx, buf, 6)
	require.NoError(t, err)
	assert.Equal(t, "conte", string(buf[:n]))

	// Short read at the tail.
	n, err = blob.ReadAt(ctx, buf, int64(len(payload))-3)
	assert.Equal(t, 3, n)
	assert.ErrorIs(t, err, io.EOF)

	all, err := ReadAll(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, payload, all)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestLocalStore(t *testing.T) {
	testStore(t, NewLocalStore(t.TempDir()))
}

func TestMemoryStoreOpenIsIsolatedFromPut(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, "a", []byte("one")))

	blob, err := store.Open(ctx, "a")
	require.NoError(t, err)
	defer blob.Close()

	require.NoError(t, store.Put(ctx, "a", []byte("two")))

	got, err := ReadAll(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), got)
}

func TestLocalStorePutCreatesDirectories(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewLocalStore(root)

	require.NoError(t, store.Put(ctx, filepath.Join("nested", "dir", "shard-1"), []byte("x")))

	blob, err := store.Open(ctx, filepath.Join("nested", "dir", "shard-1"))
	require.NoError(t, err)
	defer blob.Close()
	assert.Equal(t, int64(1), blob.Size())
}
