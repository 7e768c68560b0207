package relocate

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"

	"dirmover/internal/entry"
	"dirmover/internal/errs"
	"dirmover/internal/sizer"
)

const (
	stagingSuffix = ".bak"
	asideSuffix   = ".relocating"
)

// run is one active relocation.
type run struct {
	op     Operation
	state  *sizer.State
	cancel context.CancelFunc

	mu    sync.Mutex
	phase Phase
}

func (r *run) setPhase(p Phase) {
	r.mu.Lock()
	r.phase = p
	r.mu.Unlock()
}

func (r *run) progress() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Progress{Operation: r.op, Phase: r.phase, Snapshot: r.state.Snapshot()}
}

// Relocate converts a plain directory into a link to its target, or reverts
// a link by moving its target back. An entry that already carries an error is
// left alone and that error is returned.
func (e *Engine) Relocate(ctx context.Context, en *entry.Entry) (Result, error) {
	if err := en.Err(); err != nil {
		return Result{Phase: Idle, Err: err}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &run{state: sizer.NewState(), cancel: cancel, phase: Idle}
	key := entry.PathKey(en.Path())
	e.mu.Lock()
	if _, busy := e.runs[key]; busy {
		e.mu.Unlock()
		err := errs.New(errs.KindRelocationInProgress, en.Path(), "relocation already running")
		return Result{Phase: Idle, Err: err}, err
	}
	e.runs[key] = r
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.runs, key)
		e.mu.Unlock()
	}()

	if en.Warning() != nil {
		en.SetWarning(nil)
	}

	op, err := e.plan(en)
	if err != nil {
		en.SetError(err)
		return Result{Operation: op, Phase: Failed, Err: err}, err
	}
	r.mu.Lock()
	r.op = op
	r.mu.Unlock()

	log := e.log.With("path", en.Path(), "mode", op.Mode.String())
	log.Info("relocation started", "source", op.Source, "destination", op.Destination)

	res := e.execute(ctx, en, r)
	r.setPhase(res.Phase)
	r.state.Stop()

	switch res.Phase {
	case Done:
		log.Info("relocation finished", "bytes", res.Totals.Bytes, "files", res.Totals.Files)
		if res.Warning != nil {
			log.Warn("relocation left a warning", "warning", res.Warning)
		}
	case Cancelled:
		log.Warn("relocation cancelled", "phase", res.Phase.String())
	default:
		log.Error("relocation failed", "err", res.Err)
	}
	return res, res.Err
}

// plan picks the direction and the paths of a relocation.
func (e *Engine) plan(en *entry.Entry) (Operation, error) {
	path := en.Path()
	if en.IsLink() {
		op := Operation{
			Source:      en.Target(),
			Destination: path,
			Staging:     path + stagingSuffix,
			Mode:        Revert,
		}
		if e.exists(op.Staging) {
			return op, errs.New(errs.KindDestinationExists, op.Staging, "staging directory already exists")
		}
		return op, nil
	}

	target := en.Target()
	if target == "" {
		return Operation{}, errs.New(errs.KindMissingDirectorySet, path, "no target directory")
	}
	op := Operation{
		Source:      path,
		Destination: filepath.Join(target, en.Name()),
		Mode:        Convert,
	}
	if within(op.Destination, op.Source) {
		return op, errs.New(errs.KindIO, op.Destination, "destination is inside the source directory")
	}
	if e.exists(op.Destination) {
		return op, errs.New(errs.KindDestinationExists, op.Destination, "destination already exists")
	}
	if e.exists(path + asideSuffix) {
		return op, errs.New(errs.KindDestinationExists, path+asideSuffix, "leftover from an earlier relocation")
	}
	return op, nil
}

func (e *Engine) exists(path string) bool {
	_, err := e.opts.FS.Lstat(path)
	return err == nil
}

// within reports whether path is root or below it.
func within(path, root string) bool {
	p, r := entry.PathKey(path), entry.PathKey(root)
	return p == r || strings.HasPrefix(p, r+string(filepath.Separator))
}

func (e *Engine) execute(ctx context.Context, en *entry.Entry, r *run) Result {
	op := r.op
	res := Result{Operation: op}

	fail := func(err error) Result {
		res.Err = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			res.Phase = Cancelled
			return res
		}
		res.Phase = Failed
		en.SetError(err)
		return res
	}

	// 1. discover the tree
	r.setPhase(Sizing)
	if err := e.sizer.Walk(ctx, op.Source, r.state, true); err != nil {
		if ctx.Err() != nil {
			return fail(ctx.Err())
		}
		return fail(errs.Wrap(err, errs.KindSizeCalculation, op.Source, "size calculation failed"))
	}
	r.state.MarkReady()
	res.Totals = r.state.Totals()

	// 1b. refuse before touching the destination volume
	volume := filepath.Dir(op.copyRoot())
	free, err := e.opts.FS.FreeSpace(volume)
	if err != nil {
		return fail(errs.IO(err, volume))
	}
	if uint64(res.Totals.Bytes) > free {
		err := errs.Newf(errs.KindInsufficientSpace, en.Path(), "needs %s, %s free on %s",
			sizer.HumanSize(res.Totals.Bytes), sizer.HumanSize(int64(free)), volume)
		en.SetSpaceError(err)
		res.Phase, res.Err = Failed, err
		return res
	}

	// 2. directories
	r.setPhase(CopyingDirectories)
	if err := e.copyDirectories(ctx, op, r.state); err != nil {
		return fail(err)
	}

	// 3. files and inner links
	r.setPhase(CopyingFiles)
	if err := e.copyFiles(ctx, op, r.state); err != nil {
		return fail(err)
	}
	r.state.Clear()

	// 4. swap
	r.setPhase(Linking)
	steps, warning, err := e.finalize(op)
	res.Steps = steps
	if err != nil {
		return fail(err)
	}

	// 5. refresh
	en.Init(e.inspect(en.Path()))
	e.storeSize(en.Path(), res.Totals)
	e.CheckSpace(en)
	if warning != nil {
		res.Warning = warning
		en.SetWarning(warning)
	}
	res.Phase = Done
	en.MarkRelocated()
	return res
}

// Progress returns the state of the active relocation of path.
func (e *Engine) Progress(path string) (Progress, bool) {
	e.mu.Lock()
	r, ok := e.runs[entry.PathKey(path)]
	e.mu.Unlock()
	if !ok {
		return Progress{}, false
	}
	return r.progress(), true
}

// Cancel stops the active relocation of path. It reports false when none runs.
func (e *Engine) Cancel(path string) bool {
	e.mu.Lock()
	r, ok := e.runs[entry.PathKey(path)]
	e.mu.Unlock()
	if ok {
		r.cancel()
	}
	return ok
}
