// Package relocate moves directories between volumes and replaces them with
// links, or moves linked data back.
package relocate

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"dirmover/internal/database"
	"dirmover/internal/entry"
	"dirmover/internal/errs"
	"dirmover/internal/fs"
	"dirmover/internal/reparse"
	"dirmover/internal/sizer"
	"dirmover/pkg/logger"
)

const DefaultCopyBufferSize = 4 * 1024 * 1024

// EngineOptions are the engine's dependencies and tuning.
type EngineOptions struct {
	FS       fs.FileSystem
	Resolver reparse.Resolver
	Sets     *entry.SetRegistry
	Policy   *entry.SizePolicy

	// both optional
	Sizes    SizeCache
	Disabled DisabledStore

	MaxWorkers     int
	CopyBufferSize int
	VerifyCopies   bool
}

type Engine struct {
	opts    *EngineOptions
	sizer   *sizer.Sizer
	log     *slog.Logger
	buffers sync.Pool

	mu     sync.Mutex
	sizing map[string]*sizeSlot
	runs   map[string]*run
}

// sizeSlot is the single size task an entry may own.
type sizeSlot struct {
	task *sizer.Task
	done chan struct{}
}

func NewEngine(opts *EngineOptions) *Engine {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = sizer.DefaultWorkers
	}
	if opts.CopyBufferSize <= 0 {
		opts.CopyBufferSize = DefaultCopyBufferSize
	}
	if opts.Resolver == nil {
		opts.Resolver = reparse.NewResolver()
	}
	if opts.Sets == nil {
		opts.Sets = entry.NewSetRegistry()
	}
	if opts.Policy == nil {
		opts.Policy = entry.NewSizePolicy(true, nil)
	}

	e := &Engine{
		opts:   opts,
		sizer:  sizer.New(opts.FS, opts.MaxWorkers),
		log:    logger.With("relocate"),
		sizing: make(map[string]*sizeSlot),
		runs:   make(map[string]*run),
	}
	size := opts.CopyBufferSize
	e.buffers.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return e
}

// LoadDisabled merges the persisted disabled entries into the policy.
func (e *Engine) LoadDisabled() error {
	if e.opts.Disabled == nil {
		return nil
	}
	paths, err := e.opts.Disabled.ListDisabled()
	if err != nil {
		return err
	}
	for _, p := range paths {
		e.opts.Policy.SetDisabled(p, true)
	}
	return nil
}

// Enumerate builds an entry for every subdirectory, or link to one, of every
// set source, sorted by path. A source that cannot be listed is logged and skipped.
func (e *Engine) Enumerate(ctx context.Context) []*entry.Entry {
	var out []*entry.Entry
	for _, set := range e.opts.Sets.Sets() {
		if ctx.Err() != nil {
			break
		}
		infos, err := e.opts.FS.ReadDir(set.Source)
		if err != nil {
			e.log.Warn("cannot list source directory", "source", set.Source, "err", err)
			continue
		}
		for _, info := range infos {
			path := filepath.Join(set.Source, info.Name())
			if !e.listable(path, info) {
				continue
			}
			out = append(out, e.Load(path))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path() < out[j].Path() })
	return out
}

// listable keeps directories and links to directories. A link whose target
// cannot be read is kept so the failure shows on its entry.
func (e *Engine) listable(path string, info os.FileInfo) bool {
	if info.IsDir() {
		return true
	}
	if !reparse.IsLink(path, info) {
		return false
	}
	target, err := e.opts.Resolver.Resolve(path)
	if err != nil {
		return true
	}
	st, err := e.opts.FS.Lstat(target)
	if err != nil {
		return true
	}
	return st.IsDir() || reparse.IsLink(target, st)
}

// Load inspects a single directory and builds its entry, applying the
// disabled flag and any cached size.
func (e *Engine) Load(path string) *entry.Entry {
	en := entry.New(e.inspect(path), e.opts.Sets)
	if e.opts.Policy.IsDisabled(en.Path()) {
		en.SetDisabled(true)
	}
	if e.opts.Sizes != nil {
		rec, err := e.opts.Sizes.GetSize(en.Path())
		switch {
		case err != nil:
			e.log.Warn("read cached size failed", "path", en.Path(), "err", err)
		case rec != nil:
			e.log.Debug("restored cached size", "path", en.Path(), "calculated_at", rec.CalculatedAtTime())
			en.RestoreSize(sizer.Totals{Bytes: rec.Bytes, Files: rec.Files, Directories: rec.Directories})
			e.CheckSpace(en)
		}
	}
	return en
}

// CalculateSize starts a background size calculation for en, superseding
// any calculation already running for it. It reports false when the policy
// skips the entry.
func (e *Engine) CalculateSize(ctx context.Context, en *entry.Entry) bool {
	if !e.opts.Policy.ShouldSize(en) {
		return false
	}
	key := entry.PathKey(en.Path())

	e.mu.Lock()
	if old, ok := e.sizing[key]; ok {
		old.task.Cancel()
	}
	gen := en.ReserveSizing()
	slot := &sizeSlot{
		task: e.sizer.Calculate(ctx, en.Path()),
		done: make(chan struct{}),
	}
	e.sizing[key] = slot
	e.mu.Unlock()
	en.NotifySize()

	go func() {
		defer close(slot.done)
		totals, err := slot.task.Wait()
		committed := en.FinishSizing(gen, totals, err)

		switch {
		case !committed || slot.task.Cancelled():
			e.log.Debug("size calculation ended without result", "path", en.Path(), "committed", committed)
		case err != nil:
			e.log.Error("size calculation failed", "path", en.Path(), "err", err)
			e.dropSize(en.Path())
		default:
			e.storeSize(en.Path(), totals)
			e.CheckSpace(en)
			e.log.Debug("size calculated", "path", en.Path(), "bytes", totals.Bytes, "files", totals.Files)
		}

		e.mu.Lock()
		if e.sizing[key] == slot {
			delete(e.sizing, key)
		}
		e.mu.Unlock()
	}()
	return true
}

// CancelSize stops the running size calculation of en, if any. It does not wait.
func (e *Engine) CancelSize(en *entry.Entry) {
	e.mu.Lock()
	slot := e.sizing[entry.PathKey(en.Path())]
	e.mu.Unlock()
	if slot != nil {
		slot.task.Cancel()
	}
}

// WaitSize blocks until en has no size calculation running.
func (e *Engine) WaitSize(en *entry.Entry) {
	key := entry.PathKey(en.Path())
	for {
		e.mu.Lock()
		slot := e.sizing[key]
		e.mu.Unlock()
		if slot == nil {
			return
		}
		<-slot.done
	}
}

// SizeProgress returns the live counters of en's running size calculation.
func (e *Engine) SizeProgress(en *entry.Entry) (sizer.Snapshot, bool) {
	e.mu.Lock()
	slot := e.sizing[entry.PathKey(en.Path())]
	e.mu.Unlock()
	if slot == nil {
		return sizer.Snapshot{}, false
	}
	return slot.task.Snapshot(), true
}

// CheckSpace sets or clears en's insufficient-space flag from its known
// size. It reports false when the data would not fit.
func (e *Engine) CheckSpace(en *entry.Entry) bool {
	size := en.Size()
	if size.State != entry.Available {
		en.SetSpaceError(nil)
		return true
	}
	volume := e.volumeFor(en)
	if volume == "" {
		en.SetSpaceError(nil)
		return true
	}
	free, err := e.opts.FS.FreeSpace(volume)
	if err != nil {
		e.log.Warn("free space query failed", "path", volume, "err", err)
		return true
	}
	if uint64(size.Totals.Bytes) > free {
		en.SetSpaceError(errs.Newf(errs.KindInsufficientSpace, en.Path(),
			"needs %s, %s free on %s", sizer.HumanSize(size.Totals.Bytes), sizer.HumanSize(int64(free)), volume))
		return false
	}
	en.SetSpaceError(nil)
	return true
}

// volumeFor is where en's data would land: the target root of a plain
// directory, or the source root of a link.
func (e *Engine) volumeFor(en *entry.Entry) string {
	if en.IsLink() {
		if set, ok := en.DirectorySet(); ok {
			return set.Source
		}
		return en.Parent()
	}
	return en.Target()
}

// SetDisabled toggles and persists en's disabled flag. Disabling cancels
// sizing; enabling starts it.
func (e *Engine) SetDisabled(ctx context.Context, en *entry.Entry, disabled bool) error {
	en.SetDisabled(disabled)
	e.opts.Policy.SetDisabled(en.Path(), disabled)
	if disabled {
		e.CancelSize(en)
	} else {
		e.CalculateSize(ctx, en)
	}
	if e.opts.Disabled == nil {
		return nil
	}
	if err := e.opts.Disabled.SetDisabled(en.Path(), disabled); err != nil {
		return errs.Wrap(err, errs.KindIO, en.Path(), "persist disabled flag")
	}
	return nil
}

func (e *Engine) storeSize(path string, totals sizer.Totals) {
	if e.opts.Sizes == nil {
		return
	}
	rec := &database.SizeRecord{
		Path:        path,
		Bytes:       totals.Bytes,
		Files:       totals.Files,
		Directories: totals.Directories,
	}
	if err := e.opts.Sizes.PutSize(rec); err != nil {
		e.log.Warn("store size failed", "path", path, "err", err)
	}
}

func (e *Engine) dropSize(path string) {
	if e.opts.Sizes == nil {
		return
	}
	if err := e.opts.Sizes.DeleteSize(path); err != nil {
		e.log.Warn("drop cached size failed", "path", path, "err", err)
	}
}

// PruneSizes drops cached sizes of directories under a set source that no
// longer exist. It returns how many were dropped.
func (e *Engine) PruneSizes(ctx context.Context) (int, error) {
	if e.opts.Sizes == nil {
		return 0, nil
	}
	records, err := e.opts.Sizes.ListSizes()
	if err != nil {
		return 0, err
	}

	pruned := 0
	for path := range records {
		if err := ctx.Err(); err != nil {
			return pruned, err
		}
		if _, ok := e.opts.Sets.Lookup(filepath.Dir(path)); !ok || e.exists(path) {
			continue
		}
		if err := e.opts.Sizes.DeleteSize(path); err != nil {
			return pruned, err
		}
		pruned++
	}
	if pruned > 0 {
		e.log.Info("pruned cached sizes", "count", pruned)
	}
	return pruned, nil
}
