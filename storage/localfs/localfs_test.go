package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/kazi/core/pathname"
	"github.com/trezcool/kazi/storage"
	"github.com/trezcool/kazi/storage/cache"
)

func setup(t *testing.T) (*Adapter, string) {
	base := t.TempDir()
	c := cache.NewManager(cache.Options{TTL: time.Minute, MaxEntries: 64})
	ad, err := NewAdapter(base, c)
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	return ad, base
}

func TestWriteAndRead(t *testing.T) {
	ad, _ := setup(t)
	ctx := context.Background()

	err := ad.WriteFile(ctx, "round-01/jane__report.txt", []byte("hello"))
	assert.NoError(t, err)

	data, err := ad.ReadFile(ctx, "round-01/jane__report.txt")
	assert.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestWriteInvalidatesCache(t *testing.T) {
	ad, _ := setup(t)
	ctx := context.Background()

	assert.NoError(t, ad.WriteFile(ctx, "f.txt", []byte("v1")))

	// prime the cache
	data, err := ad.ReadFile(ctx, "f.txt")
	assert.NoError(t, err)
	assert.Equal(t, []byte("v1"), data)

	// overwrite then re-read: no stale hit
	assert.NoError(t, ad.WriteFile(ctx, "f.txt", []byte("v2")))
	data, err = ad.ReadFile(ctx, "f.txt")
	assert.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
}

func TestListDir(t *testing.T) {
	ad, base := setup(t)
	ctx := context.Background()

	assert.NoError(t, ad.CreateDir(ctx, "round-01"))
	assert.NoError(t, ad.WriteFile(ctx, "notes.txt", []byte("abc")))

	entries, err := ad.ListDir(ctx, "")
	assert.NoError(t, err)
	assert.Len(t, entries, 2)

	byName := make(map[string]storage.Entry, len(entries))
	for _, e := range entries {
		byName[e.Name] = e
	}
	assert.True(t, byName["round-01"].IsDir)
	assert.False(t, byName["notes.txt"].IsDir)
	assert.Equal(t, int64(3), byName["notes.txt"].Size)

	// listing reflects external writes once the cache is invalidated
	assert.NoError(t, os.WriteFile(filepath.Join(base, "extra.txt"), []byte("x"), 0o644))
	assert.NoError(t, ad.WriteFile(ctx, "other.txt", []byte("y"))) // invalidates base listing
	entries, err = ad.ListDir(ctx, "")
	assert.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestCreateDirIdempotent(t *testing.T) {
	ad, _ := setup(t)
	ctx := context.Background()

	assert.NoError(t, ad.CreateDir(ctx, "round-01"))
	assert.NoError(t, ad.CreateDir(ctx, "round-01"))
}

func TestTraversalRejected(t *testing.T) {
	ad, _ := setup(t)
	ctx := context.Background()

	_, err := ad.ReadFile(ctx, "../outside.txt")
	assert.Equal(t, pathname.ErrPathTraversal, err)

	err = ad.WriteFile(ctx, "../../etc/passwd", []byte("nope"))
	assert.Equal(t, pathname.ErrPathTraversal, err)

	_, err = ad.ListDir(ctx, "/etc")
	assert.Equal(t, pathname.ErrPathTraversal, err)
}

func TestNotFound(t *testing.T) {
	ad, _ := setup(t)
	ctx := context.Background()

	_, err := ad.ReadFile(ctx, "missing.txt")
	assert.Equal(t, storage.ErrNotFound, err)

	_, err = ad.ListDir(ctx, "missing-dir")
	assert.Equal(t, storage.ErrNotFound, err)
}
