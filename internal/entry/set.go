package entry

import (
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
)

var caseInsensitivePaths = runtime.GOOS == "windows"

// PathKey normalises a path for identity comparisons and map keys.
func PathKey(path string) string {
	p := filepath.Clean(path)
	if caseInsensitivePaths {
		p = strings.ToLower(p)
	}
	return p
}

// SamePath reports whether two paths name the same location.
func SamePath(a, b string) bool {
	return PathKey(a) == PathKey(b)
}

// DirectorySet pairs a source root with the root its subdirectories move to.
// Identity is the source path alone.
type DirectorySet struct {
	Source string
	Target string
}

func NewDirectorySet(source, target string) DirectorySet {
	return DirectorySet{Source: filepath.Clean(source), Target: filepath.Clean(target)}
}

// Key is the identity used for equality and lookup.
func (d DirectorySet) Key() string {
	return PathKey(d.Source)
}

// Equal compares sources only.
func (d DirectorySet) Equal(other DirectorySet) bool {
	return d.Key() == other.Key()
}

// SetRegistry is a set of DirectorySet keyed by source.
type SetRegistry struct {
	mu   sync.RWMutex
	sets map[string]DirectorySet
}

func NewSetRegistry(sets ...DirectorySet) *SetRegistry {
	r := &SetRegistry{sets: make(map[string]DirectorySet, len(sets))}
	for _, s := range sets {
		r.Add(s)
	}
	return r
}

// Add inserts set unless one with the same source exists.
func (r *SetRegistry) Add(set DirectorySet) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sets[set.Key()]; ok {
		return false
	}
	r.sets[set.Key()] = set
	return true
}

func (r *SetRegistry) Remove(source string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := PathKey(source)
	if _, ok := r.sets[key]; !ok {
		return false
	}
	delete(r.sets, key)
	return true
}

// Lookup finds the set whose source is parent.
func (r *SetRegistry) Lookup(parent string) (DirectorySet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sets[PathKey(parent)]
	return s, ok
}

// Sets returns all sets ordered by source.
func (r *SetRegistry) Sets() []DirectorySet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DirectorySet, 0, len(r.sets))
	for _, s := range r.sets {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

func (r *SetRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sets)
}
