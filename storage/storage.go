// Package storage defines the capability interface over where assignment
// files physically live. Callers depend on Adapter only, never on a concrete
// implementation.
package storage

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrNotFound             = errors.New("path not found in storage")
	ErrPermissionDenied     = errors.New("permission denied by storage")
	ErrRemoteUnreachable    = errors.New("remote repository unreachable")
	ErrUnsupportedOperation = errors.New("operation not supported by this storage")
)

// Entry is a single directory listing item.
type Entry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// Adapter abstracts a single assignment storage root. Paths are always
// relative to that root, slash-separated.
//
// Read-only adapters return ErrUnsupportedOperation from WriteFile and
// CreateDir.
type Adapter interface {
	// Key returns a stable identity for this adapter, used in cache keys.
	Key() string

	ListDir(ctx context.Context, path string) ([]Entry, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error
	CreateDir(ctx context.Context, path string) error
}

// RemoteVerifier is implemented by adapters backed by a remote; Verify checks
// the remote is reachable and correctly configured without transferring data.
type RemoteVerifier interface {
	Verify(ctx context.Context) error
}
