package fs

import (
	"io"
	"os"
	"time"
)

// FileSystem is the set of primitives the relocation engine consumes.
// All paths are absolute. Every call is synchronous and individually fallible.
type FileSystem interface {
	// Lstat describes path without following a final link.
	Lstat(path string) (os.FileInfo, error)

	// ReadDir lists the direct children of a directory without following links.
	ReadDir(path string) ([]os.FileInfo, error)

	// OpenStream opens a file for reading.
	OpenStream(path string) (io.ReadCloser, error)

	// CreateStream creates or truncates a file for writing.
	CreateStream(path string, perm os.FileMode) (io.WriteCloser, error)

	MkdirAll(path string) error
	Remove(path string) error
	RemoveAll(path string) error
	Rename(oldPath, newPath string) error

	// Symlink creates link pointing at target.
	Symlink(target, link string) error
	Readlink(path string) (string, error)

	Chtimes(path string, atime, mtime time.Time) error

	// FreeSpace returns the bytes available to the caller on the volume holding path.
	// path need not exist; the nearest existing ancestor is used.
	FreeSpace(path string) (uint64, error)
}
