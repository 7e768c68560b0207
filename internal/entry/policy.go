package entry

import "sync"

// SizePolicy decides whether an entry's size is calculated automatically.
type SizePolicy struct {
	mu             sync.RWMutex
	calculateSizes bool
	disabled       map[string]struct{}
}

func NewSizePolicy(calculateSizes bool, disabled []string) *SizePolicy {
	p := &SizePolicy{calculateSizes: calculateSizes, disabled: make(map[string]struct{}, len(disabled))}
	for _, d := range disabled {
		p.disabled[PathKey(d)] = struct{}{}
	}
	return p
}

func (p *SizePolicy) CalculateSizes() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.calculateSizes
}

func (p *SizePolicy) SetCalculateSizes(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calculateSizes = on
}

// IsDisabled reports whether path is in the disabled set.
func (p *SizePolicy) IsDisabled(path string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.disabled[PathKey(path)]
	return ok
}

func (p *SizePolicy) SetDisabled(path string, disabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if disabled {
		p.disabled[PathKey(path)] = struct{}{}
	} else {
		delete(p.disabled, PathKey(path))
	}
}

// ShouldSize is true when sizing is switched on and the entry is enabled.
func (p *SizePolicy) ShouldSize(e *Entry) bool {
	return p.CalculateSizes() && !e.Disabled()
}

// Sum adds the sizes of enabled entries. ready is false while any of them
// has no result yet.
func Sum(entries []*Entry) (total int64, ready bool) {
	ready = true
	for _, e := range entries {
		if e.Disabled() {
			continue
		}
		switch s := e.Size(); s.State {
		case Available:
			total += s.Totals.Bytes
		case NotCalculated, Calculating:
			ready = false
		}
	}
	return total, ready
}
