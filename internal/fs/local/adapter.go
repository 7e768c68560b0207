package local

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// ErrLinksUnsupported is returned when the backing afero.Fs cannot create or read links.
var ErrLinksUnsupported = errors.New("filesystem does not support links")

// Adapter is the local filesystem seen through afero.
type Adapter struct {
	fs afero.Fs

	// freeSpace is swapped out by tests that fake a full volume.
	freeSpace func(path string) (uint64, error)
}

// NewAdapter wraps an afero filesystem.
func NewAdapter(fs afero.Fs) *Adapter {
	return &Adapter{fs: fs, freeSpace: volumeFreeSpace}
}

// NewOSAdapter is the adapter over the real operating system filesystem.
func NewOSAdapter() *Adapter {
	return NewAdapter(afero.NewOsFs())
}

// WithFreeSpace replaces the free-space query.
func (a *Adapter) WithFreeSpace(fn func(path string) (uint64, error)) *Adapter {
	a.freeSpace = fn
	return a
}

// Fs exposes the underlying afero filesystem.
func (a *Adapter) Fs() afero.Fs {
	return a.fs
}

func (a *Adapter) Lstat(path string) (os.FileInfo, error) {
	if l, ok := a.fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return a.fs.Stat(path)
}

func (a *Adapter) ReadDir(path string) ([]os.FileInfo, error) {
	return afero.ReadDir(a.fs, path)
}

func (a *Adapter) OpenStream(path string) (io.ReadCloser, error) {
	return a.fs.Open(path)
}

func (a *Adapter) CreateStream(path string, perm os.FileMode) (io.WriteCloser, error) {
	if perm == 0 {
		perm = 0o644
	}
	return a.fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm.Perm())
}

func (a *Adapter) MkdirAll(path string) error {
	return a.fs.MkdirAll(path, 0o755)
}

func (a *Adapter) Remove(path string) error {
	return a.fs.Remove(path)
}

func (a *Adapter) RemoveAll(path string) error {
	return a.fs.RemoveAll(path)
}

func (a *Adapter) Rename(oldPath, newPath string) error {
	if err := a.fs.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
		return err
	}
	return a.fs.Rename(oldPath, newPath)
}

func (a *Adapter) Symlink(target, link string) error {
	l, ok := a.fs.(afero.Linker)
	if !ok {
		return &os.LinkError{Op: "symlink", Old: target, New: link, Err: ErrLinksUnsupported}
	}
	return l.SymlinkIfPossible(target, link)
}

func (a *Adapter) Readlink(path string) (string, error) {
	r, ok := a.fs.(afero.LinkReader)
	if !ok {
		return "", &os.PathError{Op: "readlink", Path: path, Err: ErrLinksUnsupported}
	}
	return r.ReadlinkIfPossible(path)
}

func (a *Adapter) Chtimes(path string, atime, mtime time.Time) error {
	return a.fs.Chtimes(path, atime, mtime)
}

// FreeSpace queries the volume of the nearest existing ancestor of path.
func (a *Adapter) FreeSpace(path string) (uint64, error) {
	dir := filepath.Clean(path)
	for {
		if _, err := a.Lstat(dir); err == nil {
			break
		} else if !os.IsNotExist(err) {
			return 0, err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return 0, fmt.Errorf("no existing ancestor for %s", path)
		}
		dir = parent
	}
	return a.freeSpace(dir)
}
