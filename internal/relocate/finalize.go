package relocate

import (
	"dirmover/internal/entry"
	"dirmover/internal/errs"
)

// finalize swaps the copied tree into place. Steps run in order and stop at
// the first failure; nothing is rolled back. A failure of the trailing
// cleanup step alone comes back as a warning.
func (e *Engine) finalize(op Operation) (steps []StepResult, warning error, err error) {
	type step struct {
		name    string
		do      func() error
		cleanup bool
	}

	var plan []step
	switch op.Mode {
	case Convert:
		aside := op.Source + asideSuffix
		plan = []step{
			{name: "move source aside", do: func() error { return e.opts.FS.Rename(op.Source, aside) }},
			{name: "create link", do: func() error { return e.opts.FS.Symlink(op.Destination, op.Source) }},
			{name: "remove original", do: func() error { return e.opts.FS.RemoveAll(aside) }, cleanup: true},
		}
	case Revert:
		plan = []step{
			{name: "remove link", do: func() error { return e.opts.FS.Remove(op.Destination) }},
			{name: "move copy into place", do: func() error { return e.opts.FS.Rename(op.Staging, op.Destination) }},
			{name: "remove link target", do: func() error { return e.opts.FS.RemoveAll(op.Source) }, cleanup: true},
		}
	}

	for _, s := range plan {
		stepErr := s.do()
		steps = append(steps, StepResult{Name: s.name, Err: stepErr})
		if stepErr == nil {
			continue
		}
		wrapped := errs.Wrap(stepErr, errs.KindIO, op.Destination, s.name+" failed")
		if s.cleanup {
			return steps, wrapped, nil
		}
		return steps, nil, wrapped
	}
	return steps, nil, nil
}

func (e *Engine) inspect(path string) entry.Info {
	return entry.Inspect(e.opts.FS, e.opts.Resolver, path)
}
