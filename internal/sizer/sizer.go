// Package sizer walks directory trees concurrently and totals their size.
package sizer

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"dirmover/internal/errs"
	"dirmover/internal/fs"
	"dirmover/internal/reparse"
)

// DefaultWorkers caps concurrent directory listings per walk.
const DefaultWorkers = 32

type Sizer struct {
	fs      fs.FileSystem
	workers int
}

func New(fsys fs.FileSystem, workers int) *Sizer {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Sizer{fs: fsys, workers: workers}
}

// specialMode marks entries that cannot be streamed like a file.
const specialMode = os.ModeNamedPipe | os.ModeSocket | os.ModeDevice | os.ModeCharDevice

// IsSpecial reports whether mode describes a pipe, socket or device.
func IsSpecial(mode os.FileMode) bool {
	return mode&specialMode != 0
}

// Walk adds every directory, file and link below root to state. With record
// set it also keeps their full paths for a later copy.
//
// A pipe, socket or device fails the walk, as does the first listing failure.
// The first failure stops the walk and is returned; state then holds
// partial totals the caller must discard. ctx is checked before each listing
// and between entries.
func (s *Sizer) Walk(ctx context.Context, root string, state *State, record bool) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	var visit func(dir string) error
	visit = func(dir string) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		infos, err := s.fs.ReadDir(dir)
		if err != nil {
			return errs.IO(err, dir)
		}
		for _, info := range infos {
			if err := gctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(dir, info.Name())
			switch {
			case reparse.IsLink(path, info):
				state.addLink(path, record)
			case info.IsDir():
				state.addDirectory(path, record)
				// Never wait on a child while holding a slot: hand the
				// subtree to a free worker or walk it here.
				if !g.TryGo(func() error { return visit(path) }) {
					if err := visit(path); err != nil {
						return err
					}
				}
			case IsSpecial(info.Mode()):
				return errs.Newf(errs.KindIO, path, "unsupported special file (%s)", info.Mode().Type())
			default:
				state.addFile(path, info.Size(), record)
			}
		}
		return nil
	}

	g.Go(func() error { return visit(root) })
	return g.Wait()
}
