// Package gitrepo implements a read-only storage.Adapter over a remote git
// repository. Listings and file reads go through remote inspection commands
// (ls-remote, archive) and never materialize a local clone.
package gitrepo

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kazi/storage"
	"github.com/trezcool/kazi/storage/cache"
)

type (
	// Credentials are supplied decrypted at call time by the credential
	// store; they are never persisted by the adapter.
	Credentials struct {
		Username string
		Password string
	}

	CredentialFunc func(ctx context.Context) (Credentials, error)

	Options struct {
		URL    string
		Branch string
		// GitBin defaults to "git".
		GitBin string
		// Timeout bounds every remote command; defaults to 30s.
		Timeout time.Duration
		// Credentials is optional; only applied to http(s) remotes.
		Credentials CredentialFunc
	}

	// runnerFunc executes a git command and returns stdout and stderr. Mockable.
	runnerFunc func(ctx context.Context, bin string, args ...string) ([]byte, []byte, error)

	Adapter struct {
		opts  Options
		cache *cache.Manager
		run   runnerFunc
	}
)

var _ storage.Adapter = (*Adapter)(nil) // interface compliance check

func NewAdapter(opts Options, c *cache.Manager) (*Adapter, error) {
	if opts.URL == "" {
		return nil, errors.New("gitrepo: remote URL is required")
	}
	if opts.Branch == "" {
		return nil, errors.New("gitrepo: branch is required")
	}
	if opts.GitBin == "" {
		opts.GitBin = "git"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Adapter{opts: opts, cache: c, run: runGit}, nil
}

func runGit(ctx context.Context, bin string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

func (a *Adapter) Key() string { return "git:" + a.opts.URL + "#" + a.opts.Branch }

// remoteURL injects credentials into http(s) remotes. Other schemes (ssh)
// are returned untouched and rely on ambient agent configuration.
func (a *Adapter) remoteURL(ctx context.Context) (string, error) {
	if a.opts.Credentials == nil {
		return a.opts.URL, nil
	}
	u, err := url.Parse(a.opts.URL)
	if err != nil || !(u.Scheme == "http" || u.Scheme == "https") {
		return a.opts.URL, nil
	}
	creds, err := a.opts.Credentials(ctx)
	if err != nil {
		return "", errors.Wrap(err, "resolving git credentials")
	}
	if creds.Username != "" {
		u.User = url.UserPassword(creds.Username, creds.Password)
	}
	return u.String(), nil
}

// Verify checks that the remote is reachable and the configured branch
// exists, via ls-remote.
func (a *Adapter) Verify(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	remote, err := a.remoteURL(ctx)
	if err != nil {
		return err
	}
	stdout, stderr, err := a.run(ctx, a.opts.GitBin, "ls-remote", "--heads", remote, a.opts.Branch)
	if err != nil {
		return trapGitErr(ctx, err, stderr)
	}
	if len(bytes.TrimSpace(stdout)) == 0 {
		return storage.ErrNotFound // branch does not exist
	}
	return nil
}

// archive streams a tar of path (or the whole tree when path is "") from the
// remote; nothing is written to disk.
func (a *Adapter) archive(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	remote, err := a.remoteURL(ctx)
	if err != nil {
		return nil, err
	}
	args := []string{"archive", "--format=tar", "--remote=" + remote, a.opts.Branch}
	if path != "" {
		args = append(args, "--", path)
	}
	stdout, stderr, err := a.run(ctx, a.opts.GitBin, args...)
	if err != nil {
		return nil, trapGitErr(ctx, err, stderr)
	}
	return stdout, nil
}

func (a *Adapter) ListDir(ctx context.Context, path string) ([]storage.Entry, error) {
	path = normalize(path)

	val, err := a.cache.GetOrCompute(cache.Key{Adapter: a.Key(), Op: "list", Path: path}, func() (interface{}, error) {
		data, err := a.archive(ctx, path)
		if err != nil {
			return nil, err
		}
		entries, err := parseListing(data, path)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 && path != "" {
			return nil, storage.ErrNotFound
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return val.([]storage.Entry), nil
}

func (a *Adapter) ReadFile(ctx context.Context, path string) ([]byte, error) {
	path = normalize(path)
	if path == "" {
		return nil, storage.ErrNotFound
	}

	val, err := a.cache.GetOrCompute(cache.Key{Adapter: a.Key(), Op: "read", Path: path}, func() (interface{}, error) {
		data, err := a.archive(ctx, path)
		if err != nil {
			return nil, err
		}
		content, err := extractFile(data, path)
		if err != nil {
			return nil, err
		}
		return content, nil
	})
	if err != nil {
		return nil, err
	}
	return val.([]byte), nil
}

func (a *Adapter) WriteFile(ctx context.Context, path string, data []byte) error {
	return storage.ErrUnsupportedOperation
}

func (a *Adapter) CreateDir(ctx context.Context, path string) error {
	return storage.ErrUnsupportedOperation
}

func normalize(path string) string {
	return strings.Trim(strings.TrimSpace(path), "/")
}

// parseListing extracts the entries directly under dir from a tar stream.
func parseListing(data []byte, dir string) ([]storage.Entry, error) {
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}

	seen := make(map[string]int) // name -> index in entries
	entries := make([]storage.Entry, 0)

	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading archive")
		}
		if hdr.Typeflag != tar.TypeReg && hdr.Typeflag != tar.TypeDir {
			continue
		}

		name := strings.Trim(hdr.Name, "/")
		if name == "" || name == dir {
			continue
		}
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			continue
		}

		rel := strings.TrimPrefix(name, prefix)
		seg := rel
		nested := false
		if i := strings.IndexByte(rel, '/'); i >= 0 {
			seg, nested = rel[:i], true
		}

		idx, ok := seen[seg]
		if !ok {
			entries = append(entries, storage.Entry{Name: seg})
			idx = len(entries) - 1
			seen[seg] = idx
		}
		if nested || hdr.Typeflag == tar.TypeDir {
			entries[idx].IsDir = true
			entries[idx].Size = 0
		} else if !entries[idx].IsDir {
			entries[idx].Size = hdr.Size
		}
	}
	return entries, nil
}

// extractFile pulls the file at path out of a tar stream.
func extractFile(data []byte, path string) ([]byte, error) {
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading archive")
		}
		if strings.Trim(hdr.Name, "/") != path {
			continue
		}
		if hdr.Typeflag == tar.TypeDir {
			return nil, errors.Wrap(storage.ErrNotFound, "path is a directory")
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			return nil, errors.Wrap(err, "reading archive entry")
		}
		return content, nil
	}
	return nil, storage.ErrNotFound
}

// trapGitErr classifies a failed git command. Raw stderr stays in the error
// chain for logs; the cause is always one of the storage categories so the
// API layer never surfaces git's own text.
func trapGitErr(ctx context.Context, err error, stderr []byte) error {
	detail := strings.TrimSpace(string(stderr))
	if ctx.Err() == context.DeadlineExceeded {
		return errors.Wrap(storage.ErrRemoteUnreachable, "remote command timed out")
	}
	lower := strings.ToLower(detail)
	if strings.Contains(lower, "did not match") || strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist") {
		return errors.Wrap(storage.ErrNotFound, detail)
	}
	if strings.Contains(lower, "authentication") || strings.Contains(lower, "access denied") || strings.Contains(lower, "could not read username") {
		return errors.Wrap(storage.ErrPermissionDenied, detail)
	}
	if detail == "" {
		detail = err.Error()
	}
	return errors.Wrap(storage.ErrRemoteUnreachable, detail)
}
