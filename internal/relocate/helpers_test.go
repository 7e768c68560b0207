package relocate

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"dirmover/internal/database"
	"dirmover/internal/entry"
	"dirmover/internal/fs"
	"dirmover/internal/fs/local"
)

const plenty = 1 << 40

func memAdapter(free uint64) *local.Adapter {
	return local.NewAdapter(afero.NewMemMapFs()).WithFreeSpace(func(string) (uint64, error) {
		return free, nil
	})
}

func writeFiles(t *testing.T, a *local.Adapter, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, a.MkdirAll(filepath.Dir(path)))
		require.NoError(t, afero.WriteFile(a.Fs(), path, []byte(content), 0o644))
	}
}

func newTestEngine(fsys fs.FileSystem, sets ...entry.DirectorySet) (*Engine, *memCache, *memDisabled) {
	cache := &memCache{records: make(map[string]*database.SizeRecord)}
	disabled := &memDisabled{paths: make(map[string]bool)}
	eng := NewEngine(&EngineOptions{
		FS:             fsys,
		Sets:           entry.NewSetRegistry(sets...),
		Policy:         entry.NewSizePolicy(true, nil),
		Sizes:          cache,
		Disabled:       disabled,
		MaxWorkers:     4,
		CopyBufferSize: 64 * 1024,
	})
	return eng, cache, disabled
}

type memCache struct {
	mu      sync.Mutex
	records map[string]*database.SizeRecord
}

func (c *memCache) GetSize(path string) (*database.SizeRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records[path], nil
}

func (c *memCache) PutSize(rec *database.SizeRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[rec.Path] = rec
	return nil
}

func (c *memCache) DeleteSize(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, path)
	return nil
}

func (c *memCache) ListSizes() (map[string]*database.SizeRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*database.SizeRecord, len(c.records))
	for k, v := range c.records {
		out[k] = v
	}
	return out, nil
}

func (c *memCache) get(path string) *database.SizeRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records[path]
}

type memDisabled struct {
	mu    sync.Mutex
	paths map[string]bool
}

func (d *memDisabled) SetDisabled(path string, disabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if disabled {
		d.paths[path] = true
	} else {
		delete(d.paths, path)
	}
	return nil
}

func (d *memDisabled) ListDisabled() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for p := range d.paths {
		out = append(out, p)
	}
	return out, nil
}

// blockingFS parks ReadDir of one path while armed.
type blockingFS struct {
	fs.FileSystem
	path    string
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newBlockingFS(inner fs.FileSystem, path string) *blockingFS {
	return &blockingFS{
		FileSystem: inner,
		path:       path,
		entered:    make(chan struct{}, 1),
		release:    make(chan struct{}),
	}
}

func (b *blockingFS) ReadDir(path string) ([]os.FileInfo, error) {
	if b.armed.Load() && path == b.path {
		select {
		case b.entered <- struct{}{}:
		default:
		}
		<-b.release
	}
	return b.FileSystem.ReadDir(path)
}

var errInjected = errors.New("injected failure")

// failingFS fails selected operations on paths ending with suffix.
type failingFS struct {
	fs.FileSystem
	suffix    string
	open      bool
	removeAll bool
}

func (f *failingFS) OpenStream(path string) (io.ReadCloser, error) {
	if f.open && strings.HasSuffix(path, f.suffix) {
		return nil, &os.PathError{Op: "open", Path: path, Err: errInjected}
	}
	return f.FileSystem.OpenStream(path)
}

func (f *failingFS) RemoveAll(path string) error {
	if f.removeAll && strings.HasSuffix(path, f.suffix) {
		return &os.PathError{Op: "removeall", Path: path, Err: errInjected}
	}
	return f.FileSystem.RemoveAll(path)
}
