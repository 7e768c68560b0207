package entry

import (
	"path/filepath"

	"dirmover/internal/errs"
	"dirmover/internal/fs"
	"dirmover/internal/reparse"
)

// Info is what the filesystem says about one directory at inspection time.
type Info struct {
	Path       string
	IsLink     bool
	LinkTarget string
	Err        error
}

func (i Info) Name() string {
	return filepath.Base(i.Path)
}

func (i Info) Parent() string {
	return filepath.Dir(i.Path)
}

// Inspect reads path's attributes and, for a link, its target. A reparse
// point of any other kind is inspected as a plain directory.
// Failures are recorded in Info.Err; inspection never aborts.
func Inspect(fsys fs.FileSystem, resolver reparse.Resolver, path string) Info {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	info := Info{Path: filepath.Clean(path)}

	st, err := fsys.Lstat(info.Path)
	if err != nil {
		info.Err = errs.IO(err, info.Path)
		return info
	}

	if reparse.IsLink(info.Path, st) {
		info.IsLink = true
		target, err := resolver.Resolve(info.Path)
		if err != nil {
			info.Err = err
			return info
		}
		info.LinkTarget = target
	} else if !st.IsDir() {
		info.Err = errs.New(errs.KindIO, info.Path, "not a directory")
		return info
	}

	// listing proves the directory (or link target) is readable
	if _, err := fsys.ReadDir(info.Path); err != nil {
		info.Err = errs.IO(err, info.Path)
	}
	return info
}
