package relocate

import (
	"dirmover/internal/database"
	"dirmover/internal/sizer"
)

// Mode is the direction of a relocation.
type Mode int

const (
	// Convert moves a plain directory to its target and leaves a link behind.
	Convert Mode = iota
	// Revert moves a link's target back into place and removes the link.
	Revert
)

func (m Mode) String() string {
	if m == Revert {
		return "revert"
	}
	return "convert"
}

// Phase is the step a relocation run is in.
type Phase int

const (
	Idle Phase = iota
	Sizing
	CopyingDirectories
	CopyingFiles
	Linking
	Done
	Failed
	Cancelled
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Sizing:
		return "sizing"
	case CopyingDirectories:
		return "copying directories"
	case CopyingFiles:
		return "copying files"
	case Linking:
		return "linking"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Terminal reports whether no further transition can happen.
func (p Phase) Terminal() bool {
	return p == Done || p == Failed || p == Cancelled
}

// Operation describes one relocation. It is never persisted.
type Operation struct {
	Source      string
	Destination string
	Staging     string // revert only
	Mode        Mode
}

// copyRoot is where the tree is copied to before finalizing.
func (o Operation) copyRoot() string {
	if o.Mode == Revert {
		return o.Staging
	}
	return o.Destination
}

// StepResult is the outcome of one finalize step.
type StepResult struct {
	Name string
	Err  error
}

// Result is what Relocate reports back.
type Result struct {
	Operation Operation
	Phase     Phase
	Totals    sizer.Totals
	Steps     []StepResult
	Warning   error
	Err       error
}

// Progress is a live view of an active run.
type Progress struct {
	Operation Operation
	Phase     Phase
	Snapshot  sizer.Snapshot
}

// SizeCache keeps the last completed size per entry path.
type SizeCache interface {
	GetSize(path string) (*database.SizeRecord, error)
	PutSize(rec *database.SizeRecord) error
	DeleteSize(path string) error
	ListSizes() (map[string]*database.SizeRecord, error)
}

// DisabledStore persists the disabled flag per entry path.
type DisabledStore interface {
	SetDisabled(path string, disabled bool) error
	ListDisabled() ([]string, error)
}
