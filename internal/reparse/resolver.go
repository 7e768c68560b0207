package reparse

import (
	"errors"
	"io/fs"
	"path/filepath"

	"dirmover/internal/errs"
)

// Resolver maps a link path to the directory it redirects to.
type Resolver interface {
	Resolve(path string) (string, error)
}

// SystemResolver resolves links on the local machine.
type SystemResolver struct{}

func NewResolver() *SystemResolver {
	return &SystemResolver{}
}

// Resolve returns the absolute target of the reparse point at path.
func (SystemResolver) Resolve(path string) (string, error) {
	target, err := resolve(path)
	if err != nil {
		return "", withPath(err, path)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(path), target)
	}
	return filepath.Clean(target), nil
}

// IsReparsePoint reports whether info describes a reparse point.
func IsReparsePoint(info fs.FileInfo) bool {
	if info == nil {
		return false
	}
	return isReparsePoint(info)
}

// IsLink reports whether the entry at path, described by info, is a link
// Resolve can follow: a symbolic link or a mount point. Other reparse points,
// such as cloud placeholders or deduplicated files, are plain entries.
func IsLink(path string, info fs.FileInfo) bool {
	if !IsReparsePoint(info) {
		return false
	}
	return isLink(path, info)
}

func withPath(err error, path string) error {
	var e *errs.Error
	if errors.As(err, &e) {
		if e.Path == "" {
			e.Path = path
		}
		return e
	}
	return errs.IO(err, path)
}
