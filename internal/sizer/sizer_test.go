package sizer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dirmover/internal/errs"
	"dirmover/internal/fs/local"
)

// buildTree writes a wide and deep tree and returns its expected totals.
func buildTree(t *testing.T, a *local.Adapter, root string) Totals {
	t.Helper()
	var want Totals
	for i := 0; i < 8; i++ {
		dir := filepath.Join(root, fmt.Sprintf("d%d", i))
		for j := 0; j < 5; j++ {
			sub := filepath.Join(dir, fmt.Sprintf("s%d", j))
			require.NoError(t, a.MkdirAll(sub))
			want.Directories++
			for k := 0; k < 3; k++ {
				size := i*100 + j*10 + k
				require.NoError(t, afero.WriteFile(a.Fs(), filepath.Join(sub, fmt.Sprintf("f%d", k)), make([]byte, size), 0o644))
				want.Files++
				want.Bytes += int64(size)
			}
		}
		want.Directories++
		require.NoError(t, afero.WriteFile(a.Fs(), filepath.Join(dir, "top.bin"), make([]byte, 1000), 0o644))
		want.Files++
		want.Bytes += 1000
	}
	return want
}

func TestWalkTotalsIndependentOfSchedule(t *testing.T) {
	a := local.NewAdapter(afero.NewMemMapFs())
	want := buildTree(t, a, "/tree")

	for _, workers := range []int{1, 2, 4, DefaultWorkers} {
		for run := 0; run < 5; run++ {
			state := NewState()
			require.NoError(t, New(a, workers).Walk(context.Background(), "/tree", state, false))
			assert.Equal(t, want, state.Totals(), "workers=%d run=%d", workers, run)
		}
	}
}

func TestWalkRecordsPaths(t *testing.T) {
	a := local.NewAdapter(afero.NewMemMapFs())
	require.NoError(t, a.MkdirAll("/r/a/b"))
	require.NoError(t, afero.WriteFile(a.Fs(), "/r/a/one.txt", []byte("1"), 0o644))
	require.NoError(t, afero.WriteFile(a.Fs(), "/r/a/b/two.txt", []byte("22"), 0o644))

	state := NewState()
	require.NoError(t, New(a, 4).Walk(context.Background(), "/r", state, true))

	dirs := state.Directories()
	files := state.Files()
	sort.Strings(dirs)
	sort.Strings(files)
	assert.Equal(t, []string{filepath.Join("/r", "a"), filepath.Join("/r", "a", "b")}, dirs)
	assert.Equal(t, []string{filepath.Join("/r", "a", "b", "two.txt"), filepath.Join("/r", "a", "one.txt")}, files)
	assert.Equal(t, Totals{Bytes: 3, Files: 2, Directories: 2}, state.Totals())

	state.Clear()
	assert.Empty(t, state.Files())
	assert.Equal(t, int64(3), state.Totals().Bytes)
}

func TestWalkWithoutRecordKeepsNoPaths(t *testing.T) {
	a := local.NewAdapter(afero.NewMemMapFs())
	require.NoError(t, afero.WriteFile(a.Fs(), "/r/x", []byte("x"), 0o644))

	state := NewState()
	require.NoError(t, New(a, 0).Walk(context.Background(), "/r", state, false))
	assert.Empty(t, state.Files())
	assert.Equal(t, int64(1), state.Totals().Files)
}

type failingFS struct {
	*local.Adapter
	failOn string
}

func (f *failingFS) ReadDir(path string) ([]os.FileInfo, error) {
	if path == f.failOn {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrPermission}
	}
	return f.Adapter.ReadDir(path)
}

func TestCalculateFailureDiscardsPartialTotals(t *testing.T) {
	a := local.NewAdapter(afero.NewMemMapFs())
	buildTree(t, a, "/tree")
	fsys := &failingFS{Adapter: a, failOn: filepath.Join("/tree", "d3", "s2")}

	task := New(fsys, 8).Calculate(context.Background(), "/tree")
	totals, err := task.Wait()

	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrSizeCalculation))
	assert.True(t, errors.Is(err, os.ErrPermission))
	assert.Equal(t, Totals{}, totals)
	assert.False(t, task.Cancelled())
}

type blockingFS struct {
	*local.Adapter
	blockOn string
	entered chan struct{}
	release chan struct{}
}

func (b *blockingFS) ReadDir(path string) ([]os.FileInfo, error) {
	if path == b.blockOn {
		close(b.entered)
		<-b.release
	}
	return b.Adapter.ReadDir(path)
}

func TestCalculateCancelYieldsNoTotals(t *testing.T) {
	a := local.NewAdapter(afero.NewMemMapFs())
	buildTree(t, a, "/tree")
	fsys := &blockingFS{
		Adapter: a,
		blockOn: filepath.Join("/tree", "d0"),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}

	task := New(fsys, 2).Calculate(context.Background(), "/tree")
	<-fsys.entered
	task.Cancel()
	close(fsys.release)

	totals, err := task.Wait()
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, task.Cancelled())
	assert.Equal(t, Totals{}, totals)
	assert.False(t, task.Snapshot().Ready)
}

func TestCalculateSuccess(t *testing.T) {
	a := local.NewAdapter(afero.NewMemMapFs())
	want := buildTree(t, a, "/tree")

	task := New(a, 0).Calculate(context.Background(), "/tree")
	select {
	case <-task.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("size calculation did not finish")
	}
	totals, err := task.Wait()
	require.NoError(t, err)
	assert.Equal(t, want, totals)
	assert.Equal(t, "/tree", task.Root())

	snap := task.Snapshot()
	assert.True(t, snap.Ready)
	assert.Equal(t, want, snap.Totals())
}

func TestWalkCountsLinksWithoutFollowing(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("creating symlinks needs elevated rights on windows")
	}
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "big.bin"), make([]byte, 4096), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "small.bin"), make([]byte, 10), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "elsewhere")))

	state := NewState()
	require.NoError(t, New(local.NewOSAdapter(), 4).Walk(context.Background(), root, state, true))

	assert.Equal(t, Totals{Bytes: 10, Files: 2, Directories: 0}, state.Totals())
	assert.Equal(t, []string{filepath.Join(root, "elsewhere")}, state.Links())
}

func TestSnapshotProgress(t *testing.T) {
	s := NewState()
	s.addFile("/a", 300, false)
	s.addFile("/b", 100, false)
	s.AddProcessedBytes(100)
	s.FileCopied()
	s.DirectoryCreated()

	snap := s.Snapshot()
	assert.Equal(t, int64(400), snap.TotalBytes)
	assert.Equal(t, int64(100), snap.ProcessedBytes)
	assert.Equal(t, int64(1), snap.ProcessedFiles)
	assert.Equal(t, int64(1), snap.ProcessedDirectories)
	assert.InDelta(t, 25.0, snap.Percent(), 0.001)
	assert.GreaterOrEqual(t, snap.Throughput(), 0.0)

	s.Reset()
	assert.Zero(t, s.Snapshot().TotalBytes)
	assert.Zero(t, s.Snapshot().ProcessedBytes)
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "Error", HumanSize(SizeError))
	assert.Equal(t, "", HumanSize(SizeNotCalculated))
	assert.Equal(t, "0.00 B", HumanSize(0))
	assert.Equal(t, "1024.00 B", HumanSize(1024))
	assert.Equal(t, "1.50 KiB", HumanSize(1536))
	assert.Equal(t, "10.00 GiB", HumanSize(10<<30))
	assert.Equal(t, "2048.00 TiB", HumanSize(2<<50))
}

func TestAverageFileSize(t *testing.T) {
	assert.Zero(t, Totals{}.AverageFileSize())
	assert.InDelta(t, 2.5, Totals{Bytes: 5, Files: 2}.AverageFileSize(), 0.0001)
}
