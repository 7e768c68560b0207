package sizer

import (
	"fmt"
	"sync"
	"time"
)

// Size sentinels, kept negative so they never collide with a real size.
const (
	SizeNotCalculated int64 = -1
	SizeError         int64 = -2
)

// Totals is the aggregate result of a walk.
type Totals struct {
	Bytes       int64
	Files       int64
	Directories int64
}

// AverageFileSize is Bytes/Files, or 0 for an empty tree.
func (t Totals) AverageFileSize() float64 {
	if t.Files <= 0 {
		return 0
	}
	return float64(t.Bytes) / float64(t.Files)
}

// State holds the counters of one run. Walkers and copy workers mutate it
// concurrently; readers take Snapshot.
type State struct {
	mu sync.Mutex

	total     Totals
	processed Totals

	dirs  []string
	files []string
	links []string

	started  time.Time
	finished time.Time
	ready    bool
}

func NewState() *State {
	s := &State{}
	s.Reset()
	return s
}

// Reset zeroes every counter and path list and restarts the clock.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = Totals{}
	s.processed = Totals{}
	s.dirs = nil
	s.files = nil
	s.links = nil
	s.started = time.Now()
	s.finished = time.Time{}
	s.ready = false
}

func (s *State) addDirectory(path string, record bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total.Directories++
	if record {
		s.dirs = append(s.dirs, path)
	}
}

func (s *State) addFile(path string, size int64, record bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total.Files++
	s.total.Bytes += size
	if record {
		s.files = append(s.files, path)
	}
}

// links count as zero-byte files and are never followed
func (s *State) addLink(path string, record bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total.Files++
	if record {
		s.links = append(s.links, path)
	}
}

// AddProcessedBytes records copy progress; called after every chunk.
func (s *State) AddProcessedBytes(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed.Bytes += n
}

func (s *State) DirectoryCreated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed.Directories++
}

func (s *State) FileCopied() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed.Files++
}

// MarkReady flags the discovery totals as complete.
func (s *State) MarkReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
}

// Stop freezes Elapsed at the current time.
func (s *State) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished.IsZero() {
		s.finished = time.Now()
	}
}

func (s *State) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *State) Directories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.dirs...)
}

func (s *State) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.files...)
}

func (s *State) Links() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.links...)
}

// Clear releases the recorded path lists. Totals stay readable.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs = nil
	s.files = nil
	s.links = nil
}

// Snapshot is an immutable copy of a State.
type Snapshot struct {
	TotalBytes       int64
	TotalFiles       int64
	TotalDirectories int64

	ProcessedBytes       int64
	ProcessedFiles       int64
	ProcessedDirectories int64

	Ready   bool
	Started time.Time
	Elapsed time.Duration
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	end := s.finished
	if end.IsZero() {
		end = time.Now()
	}
	return Snapshot{
		TotalBytes:           s.total.Bytes,
		TotalFiles:           s.total.Files,
		TotalDirectories:     s.total.Directories,
		ProcessedBytes:       s.processed.Bytes,
		ProcessedFiles:       s.processed.Files,
		ProcessedDirectories: s.processed.Directories,
		Ready:                s.ready,
		Started:              s.started,
		Elapsed:              end.Sub(s.started),
	}
}

// Totals returns the discovery counters of the snapshot.
func (s Snapshot) Totals() Totals {
	return Totals{Bytes: s.TotalBytes, Files: s.TotalFiles, Directories: s.TotalDirectories}
}

// Throughput is processed bytes per second over the elapsed time.
func (s Snapshot) Throughput() float64 {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.ProcessedBytes) / secs
}

// Percent of total bytes processed, in [0, 100].
func (s Snapshot) Percent() float64 {
	if s.TotalBytes <= 0 {
		if s.TotalFiles > 0 {
			return 100 * float64(s.ProcessedFiles) / float64(s.TotalFiles)
		}
		return 0
	}
	p := 100 * float64(s.ProcessedBytes) / float64(s.TotalBytes)
	if p > 100 {
		p = 100
	}
	return p
}

// Remaining estimates the time left from the current throughput.
func (s Snapshot) Remaining() time.Duration {
	rate := s.Throughput()
	left := s.TotalBytes - s.ProcessedBytes
	if rate <= 0 || left <= 0 {
		return 0
	}
	return time.Duration(float64(left) / rate * float64(time.Second))
}

var units = []string{"B", "KiB", "MiB", "GiB", "TiB"}

// HumanSize formats a byte count in binary units. The error sentinel reads
// "Error" and any other negative value is empty.
func HumanSize(size int64) string {
	if size == SizeError {
		return "Error"
	}
	if size < 0 {
		return ""
	}
	v := float64(size)
	i := 0
	for v > 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", v, units[i])
}
