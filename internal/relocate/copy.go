package relocate

import (
	"context"
	"io"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"dirmover/internal/checksum"
	"dirmover/internal/errs"
	"dirmover/internal/sizer"
)

// rebase maps a path under op.Source to the same relative path under the copy root.
func rebase(op Operation, path string) (string, error) {
	rel, err := filepath.Rel(op.Source, path)
	if err != nil {
		return "", errs.IO(err, path)
	}
	return filepath.Join(op.copyRoot(), rel), nil
}

func (e *Engine) copyDirectories(ctx context.Context, op Operation, state *sizer.State) error {
	if err := e.opts.FS.MkdirAll(op.copyRoot()); err != nil {
		return errs.IO(err, op.copyRoot())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.MaxWorkers)
	for _, dir := range state.Directories() {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			dst, err := rebase(op, dir)
			if err != nil {
				return err
			}
			if err := e.opts.FS.MkdirAll(dst); err != nil {
				return errs.IO(err, dst)
			}
			state.DirectoryCreated()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (e *Engine) copyFiles(ctx context.Context, op Operation, state *sizer.State) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.MaxWorkers)

	for _, file := range state.Files() {
		g.Go(func() error {
			dst, err := rebase(op, file)
			if err != nil {
				return err
			}
			if err := e.copyFile(gctx, file, dst, state); err != nil {
				e.log.Error("copy failed", "src", file, "dst", dst, "err", err)
				return err
			}
			return nil
		})
	}
	for _, link := range state.Links() {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			dst, err := rebase(op, link)
			if err != nil {
				return err
			}
			return e.copyLink(link, dst, state)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// copyFile streams src to dst chunk by chunk, keeping mode and mtime.
func (e *Engine) copyFile(ctx context.Context, src, dst string, state *sizer.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := e.opts.FS.Lstat(src)
	if err != nil {
		return errs.IO(err, src)
	}
	if sizer.IsSpecial(info.Mode()) {
		return errs.Newf(errs.KindIO, src, "unsupported special file (%s)", info.Mode().Type())
	}

	in, err := e.opts.FS.OpenStream(src)
	if err != nil {
		return errs.IO(err, src)
	}
	defer in.Close()

	out, err := e.opts.FS.CreateStream(dst, info.Mode().Perm())
	if err != nil {
		return errs.IO(err, dst)
	}

	var reader io.Reader = in
	var digest *checksum.Reader
	if e.opts.VerifyCopies {
		digest = checksum.NewReader(in)
		reader = digest
	}

	bufp := e.buffers.Get().(*[]byte)
	defer e.buffers.Put(bufp)
	buf := *bufp

	for {
		if err := ctx.Err(); err != nil {
			out.Close()
			return err
		}
		n, rerr := reader.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				return errs.IO(werr, dst)
			}
			state.AddProcessedBytes(int64(n))
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			return errs.IO(rerr, src)
		}
	}
	if err := out.Close(); err != nil {
		return errs.IO(err, dst)
	}

	if err := e.opts.FS.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return errs.IO(err, dst)
	}
	if digest != nil {
		if err := checksum.Verify(e.opts.FS, dst, digest.Sum()); err != nil {
			return errs.Wrap(err, errs.KindIO, dst, "copy verification failed")
		}
	}
	state.FileCopied()
	return nil
}

// copyLink recreates a link found inside the tree with the same link text.
func (e *Engine) copyLink(src, dst string, state *sizer.State) error {
	target, err := e.opts.FS.Readlink(src)
	if err != nil {
		return errs.IO(err, src)
	}
	if err := e.opts.FS.Symlink(target, dst); err != nil {
		return errs.IO(err, dst)
	}
	state.FileCopied()
	return nil
}
