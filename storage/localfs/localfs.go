// Package localfs implements storage.Adapter over a local directory tree.
// Every incoming path is validated against the adapter's base directory
// before it touches the filesystem.
package localfs

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core/pathname"
	"github.com/trezcool/kazi/storage"
	"github.com/trezcool/kazi/storage/cache"
)

type Adapter struct {
	base  string
	cache *cache.Manager
}

var _ storage.Adapter = (*Adapter)(nil) // interface compliance check

// NewAdapter returns an adapter rooted at base. base is resolved to an
// absolute path; the directory itself is created lazily by CreateDir.
func NewAdapter(base string, c *cache.Manager) (*Adapter, error) {
	if base == "" {
		return nil, errors.New("localfs: base directory is required")
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, errors.Wrap(err, "resolving base directory")
	}
	return &Adapter{base: filepath.Clean(abs), cache: c}, nil
}

func (a *Adapter) Key() string { return "fs:" + a.base }

// resolve validates path against the base directory. "" and "." address the
// base itself.
func (a *Adapter) resolve(path string) (string, error) {
	if path == "" {
		path = "."
	}
	res := pathname.ValidatePath(filepath.FromSlash(path), a.base)
	if !res.Valid {
		return "", res.Err
	}
	return res.Resolved, nil
}

func (a *Adapter) ListDir(ctx context.Context, path string) ([]storage.Entry, error) {
	resolved, err := a.resolve(path)
	if err != nil {
		return nil, err
	}

	val, err := a.cache.GetOrCompute(cache.Key{Adapter: a.Key(), Op: "list", Path: resolved}, func() (interface{}, error) {
		dirents, err := os.ReadDir(resolved)
		if err != nil {
			return nil, trapOSErr(err, "listing directory")
		}
		entries := make([]storage.Entry, 0, len(dirents))
		for _, de := range dirents {
			entry := storage.Entry{Name: de.Name(), IsDir: de.IsDir()}
			if info, err := de.Info(); err == nil && !de.IsDir() {
				entry.Size = info.Size()
			}
			entries = append(entries, entry)
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return val.([]storage.Entry), nil
}

func (a *Adapter) ReadFile(ctx context.Context, path string) ([]byte, error) {
	resolved, err := a.resolve(path)
	if err != nil {
		return nil, err
	}

	val, err := a.cache.GetOrCompute(cache.Key{Adapter: a.Key(), Op: "read", Path: resolved}, func() (interface{}, error) {
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, trapOSErr(err, "reading file")
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return val.([]byte), nil
}

// WriteFile writes data to path, creating missing parent directories and
// truncating any previous content. The containing directory is invalidated
// in the cache so subsequent reads see the new bytes.
func (a *Adapter) WriteFile(ctx context.Context, path string, data []byte) error {
	resolved, err := a.resolve(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return trapOSErr(err, "creating parent directories")
	}
	if err := os.WriteFile(resolved, data, 0o644); err != nil {
		return trapOSErr(err, "writing file")
	}
	a.cache.Invalidate(filepath.Dir(resolved))
	return nil
}

// CreateDir is idempotent: an existing directory is not an error.
func (a *Adapter) CreateDir(ctx context.Context, path string) error {
	resolved, err := a.resolve(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(resolved, 0o755); err != nil {
		return trapOSErr(err, "creating directory")
	}
	a.cache.Invalidate(filepath.Dir(resolved))
	return nil
}

// trapOSErr maps raw OS errors to the storage error categories; the raw text
// never reaches API consumers.
func trapOSErr(err error, msg string) error {
	switch {
	case os.IsNotExist(err):
		return storage.ErrNotFound
	case os.IsPermission(err):
		return storage.ErrPermissionDenied
	}
	return errors.Wrap(err, msg)
}
