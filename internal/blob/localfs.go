package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
)

// NewLocal creates a blob store on top of fs. Keys are paths relative to
// the root of fs, so fs is normally an afero.BasePathFs.
func NewLocal(fs afero.Fs) Store {
	return &localFS{fs: fs}
}

// NewLocalDir creates a blob store rooted at a directory on disk.
func NewLocalDir(dir string) Store {
	return NewLocal(afero.NewBasePathFs(afero.NewOsFs(), dir))
}

type localFS struct {
	fs afero.Fs
}

func (l *localFS) Has(ctx context.Context, key string) (bool, error) {
	fi, err := l.fs.Stat(filepath.FromSlash(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !fi.IsDir(), nil
}

func (l *localFS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	has, err := l.Has(ctx, key)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, ErrNotFound
	}
	return l.fs.Open(filepath.FromSlash(key))
}

func (l *localFS) Put(ctx context.Context, key string, source io.Reader) error {
	name := filepath.FromSlash(key)
	if dir := filepath.Dir(name); dir != "." {
		if err := l.fs.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("ensuring directories for %q: %w", key, err)
		}
	}
	target, err := l.fs.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create record for %q: %w", key, err)
	}
	if _, err := io.Copy(target, source); err != nil {
		target.Close()
		return fmt.Errorf("write record for %q: %w", key, err)
	}
	return target.Close()
}

func (l *localFS) Delete(ctx context.Context, key string) error {
	if err := l.fs.Remove(filepath.FromSlash(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %q: %w", key, err)
	}
	// Drop the node directory once it is empty.
	if dir := path.Dir(key); dir != "." {
		if empty, err := afero.IsEmpty(l.fs, filepath.FromSlash(dir)); err == nil && empty {
			_ = l.fs.Remove(filepath.FromSlash(dir))
		}
	}
	return nil
}

func (l *localFS) Keys(ctx context.Context, prefix string) ([]string, error) {
	const root = "."
	exists, err := afero.DirExists(l.fs, root)
	if err != nil {
		return nil, err
	}
	res := []string{}
	if !exists {
		return res, nil
	}
	err = afero.Walk(l.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p == root || info.IsDir() {
			return nil
		}
		key := filepath.ToSlash(p)
		if strings.HasPrefix(key, prefix) {
			res = append(res, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(res)
	return res, nil
}

func (l *localFS) String() string {
	const localfs = "localfs"
	switch fs := l.fs.(type) {
	case *afero.BasePathFs:
		pp, err := fs.RealPath("")
		if err != nil {
			return localfs
		}
		return localfs + "@" + pp
	default:
		return localfs
	}
}
