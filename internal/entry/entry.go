// Package entry models the directories tracked for relocation.
package entry

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	"dirmover/internal/errs"
	"dirmover/internal/sizer"
)

type SizeState int

const (
	NotCalculated SizeState = iota
	Calculating
	Available
	Failed
)

func (s SizeState) String() string {
	switch s {
	case NotCalculated:
		return "not calculated"
	case Calculating:
		return "calculating"
	case Available:
		return "available"
	case Failed:
		return "error"
	}
	return "unknown"
}

// Size is the result of the latest size calculation.
type Size struct {
	State  SizeState
	Totals sizer.Totals
	Err    error
}

// Bytes returns the total, or one of the negative sentinels.
func (s Size) Bytes() int64 {
	switch s.State {
	case Available:
		return s.Totals.Bytes
	case Failed:
		return sizer.SizeError
	}
	return sizer.SizeNotCalculated
}

type EventKind int

const (
	SizeChanged EventKind = iota
	ErrorChanged
	TargetChanged
	DisabledChanged
	Relocated
)

type Event struct {
	Kind  EventKind
	Entry *Entry
}

// Entry is one directory under a configured source root.
type Entry struct {
	mu sync.RWMutex

	path   string // identity, never changes
	info   Info
	sets   *SetRegistry
	set    DirectorySet
	hasSet bool
	target string

	err      error // sticky until Init
	spaceErr error // derived, cleared automatically
	warning  error

	size    Size
	sizeGen uint64

	disabled bool

	subs    map[int]func(Event)
	nextSub int
}

// New builds an entry from an inspection result and the configured sets.
func New(info Info, sets *SetRegistry) *Entry {
	e := &Entry{path: info.Path, sets: sets, subs: make(map[int]func(Event))}
	e.apply(info)
	return e
}

// Init replaces the entry's metadata with a fresh inspection, clearing
// sticky errors. The size result is kept.
func (e *Entry) Init(info Info) {
	e.mu.Lock()
	e.apply(info)
	e.mu.Unlock()
	e.emit(ErrorChanged)
	e.emit(TargetChanged)
}

func (e *Entry) apply(info Info) {
	e.info = info
	e.err = info.Err
	e.spaceErr = nil
	e.set, e.hasSet = DirectorySet{}, false
	if e.sets != nil {
		e.set, e.hasSet = e.sets.Lookup(info.Parent())
	}
	if !e.hasSet && e.err == nil {
		e.err = errs.New(errs.KindMissingDirectorySet, info.Path, "missing directory set")
	}

	switch {
	case info.IsLink:
		// links are authoritative, never redirected to the set default
		e.target = info.LinkTarget
	case e.hasSet:
		e.target = e.set.Target
	default:
		e.target = ""
	}
}

func (e *Entry) Path() string {
	return e.path
}

func (e *Entry) Name() string {
	return filepath.Base(e.path)
}

func (e *Entry) Parent() string {
	return filepath.Dir(e.path)
}

func (e *Entry) IsLink() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.info.IsLink
}

func (e *Entry) Target() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.target
}

// SetTarget changes the desired target root of a plain directory.
func (e *Entry) SetTarget(target string) error {
	e.mu.Lock()
	if e.info.IsLink {
		e.mu.Unlock()
		return errs.New(errs.KindLinkTargetImmutable, e.info.Path, "link target cannot be changed")
	}
	if target != "" {
		target = filepath.Clean(target)
	}
	changed := e.target != target
	e.target = target
	e.mu.Unlock()

	if changed {
		e.emit(TargetChanged)
	}
	return nil
}

// DirectorySet returns the set owning this entry, if any.
func (e *Entry) DirectorySet() (DirectorySet, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.set, e.hasSet
}

// IsDefaultTarget reports whether the target is where the set would put it.
func (e *Entry) IsDefaultTarget() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.hasSet {
		return false
	}
	if e.info.IsLink {
		return SamePath(e.target, filepath.Join(e.set.Target, e.info.Name()))
	}
	return SamePath(e.target, e.set.Target)
}

func (e *Entry) HasError() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.errorLocked() != nil
}

// Err returns the most significant error on the entry.
func (e *Entry) Err() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.errorLocked()
}

func (e *Entry) errorLocked() error {
	switch {
	case e.err != nil:
		return e.err
	case e.spaceErr != nil:
		return e.spaceErr
	case e.size.State == Failed:
		return e.size.Err
	}
	return nil
}

// SetError attaches a sticky error. Only Init clears it.
func (e *Entry) SetError(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
	e.emit(ErrorChanged)
}

// SetSpaceError sets or, with nil, clears the derived insufficient-space flag.
func (e *Entry) SetSpaceError(err error) {
	e.mu.Lock()
	changed := (e.spaceErr == nil) != (err == nil)
	e.spaceErr = err
	e.mu.Unlock()
	if changed {
		e.emit(ErrorChanged)
	}
}

func (e *Entry) SpaceError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.spaceErr
}

// Warning is a non-fatal problem left by the last relocation.
func (e *Entry) Warning() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.warning
}

func (e *Entry) SetWarning(w error) {
	e.mu.Lock()
	e.warning = w
	e.mu.Unlock()
	e.emit(ErrorChanged)
}

func (e *Entry) Size() Size {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.size
}

// BeginSizing enters Calculating and returns the token for this run.
// A newer call supersedes older tokens; only the newest may finish.
func (e *Entry) BeginSizing() uint64 {
	gen := e.ReserveSizing()
	e.NotifySize()
	return gen
}

// ReserveSizing is BeginSizing without the SizeChanged event, for callers
// that hold their own locks. They must call NotifySize once released.
func (e *Entry) ReserveSizing() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sizeGen++
	e.size = Size{State: Calculating}
	return e.sizeGen
}

// NotifySize emits SizeChanged.
func (e *Entry) NotifySize() {
	e.emit(SizeChanged)
}

// FinishSizing records the outcome of the run holding gen. Cancellation
// returns the entry to NotCalculated. Stale tokens are ignored and report false.
func (e *Entry) FinishSizing(gen uint64, totals sizer.Totals, err error) bool {
	e.mu.Lock()
	if gen != e.sizeGen || e.size.State != Calculating {
		e.mu.Unlock()
		return false
	}
	switch {
	case err == nil:
		e.size = Size{State: Available, Totals: totals}
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		e.size = Size{State: NotCalculated}
	default:
		e.size = Size{State: Failed, Err: err}
	}
	failed := e.size.State == Failed
	e.mu.Unlock()

	e.emit(SizeChanged)
	if failed {
		e.emit(ErrorChanged)
	}
	return true
}

// RestoreSize seeds a cached result into an entry that has none yet.
func (e *Entry) RestoreSize(totals sizer.Totals) bool {
	e.mu.Lock()
	if e.size.State != NotCalculated {
		e.mu.Unlock()
		return false
	}
	e.size = Size{State: Available, Totals: totals}
	e.mu.Unlock()
	e.emit(SizeChanged)
	return true
}

func (e *Entry) Disabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.disabled
}

func (e *Entry) SetDisabled(disabled bool) {
	e.mu.Lock()
	changed := e.disabled != disabled
	e.disabled = disabled
	e.mu.Unlock()
	if changed {
		e.emit(DisabledChanged)
	}
}

// MarkRelocated notifies subscribers that a relocation finished.
func (e *Entry) MarkRelocated() {
	e.emit(Relocated)
}

// Subscribe registers fn for change events. Events are delivered on the
// goroutine making the change, without locks held.
func (e *Entry) Subscribe(fn func(Event)) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

func (e *Entry) emit(kind EventKind) {
	e.mu.RLock()
	fns := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.RUnlock()

	ev := Event{Kind: kind, Entry: e}
	for _, fn := range fns {
		fn(ev)
	}
}

// View is an immutable copy of an entry for display.
type View struct {
	Path            string
	Name            string
	Parent          string
	IsLink          bool
	Target          string
	IsDefaultTarget bool
	Err             error
	Warning         error
	Size            Size
	Disabled        bool
}

func (e *Entry) Snapshot() View {
	def := e.IsDefaultTarget()
	e.mu.RLock()
	defer e.mu.RUnlock()
	return View{
		Path:            e.info.Path,
		Name:            e.info.Name(),
		Parent:          e.info.Parent(),
		IsLink:          e.info.IsLink,
		Target:          e.target,
		IsDefaultTarget: def,
		Err:             e.errorLocked(),
		Warning:         e.warning,
		Size:            e.size,
		Disabled:        e.disabled,
	}
}
