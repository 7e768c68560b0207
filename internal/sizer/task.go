package sizer

import (
	"context"
	"errors"

	"dirmover/internal/errs"
)

// Task is one background size calculation.
type Task struct {
	root   string
	state  *State
	cancel context.CancelFunc
	done   chan struct{}

	totals Totals
	err    error
}

// Calculate starts an aggregate-only walk of root in the background.
func (s *Sizer) Calculate(ctx context.Context, root string) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		root:   root,
		state:  NewState(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(t.done)
		defer cancel()

		err := s.Walk(ctx, root, t.state, false)
		switch {
		case ctx.Err() != nil:
			t.err = ctx.Err()
		case err != nil:
			t.err = errs.Wrap(err, errs.KindSizeCalculation, root, "size calculation failed")
		default:
			t.totals = t.state.Totals()
			t.state.MarkReady()
		}
		t.state.Stop()
		t.state.Clear()
	}()
	return t
}

func (t *Task) Root() string {
	return t.root
}

// Cancel asks the walkers to stop. It does not wait.
func (t *Task) Cancel() {
	t.cancel()
}

func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the walk ends. Totals are zero unless err is nil.
func (t *Task) Wait() (Totals, error) {
	<-t.done
	return t.totals, t.err
}

// Cancelled reports whether a finished task stopped because of cancellation.
func (t *Task) Cancelled() bool {
	select {
	case <-t.done:
		return errors.Is(t.err, context.Canceled) || errors.Is(t.err, context.DeadlineExceeded)
	default:
		return false
	}
}

// Snapshot reads the live counters.
func (t *Task) Snapshot() Snapshot {
	return t.state.Snapshot()
}
