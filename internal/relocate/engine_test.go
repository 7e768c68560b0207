package relocate

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dirmover/internal/database"
	"dirmover/internal/entry"
	"dirmover/internal/errs"
	"dirmover/internal/fs/local"
	"dirmover/internal/sizer"
)

var gamesSet = entry.NewDirectorySet("/src", "/dst")

func gameTree(t *testing.T, a *local.Adapter, root string) sizer.Totals {
	t.Helper()
	var want sizer.Totals
	for i := 0; i < 6; i++ {
		dir := filepath.Join(root, fmt.Sprintf("level%d", i))
		require.NoError(t, a.MkdirAll(dir))
		want.Directories++
		for j := 0; j < 4; j++ {
			size := (i + 1) * (j + 3) * 17
			require.NoError(t, afero.WriteFile(a.Fs(), filepath.Join(dir, fmt.Sprintf("f%d.dat", j)), make([]byte, size), 0o644))
			want.Files++
			want.Bytes += int64(size)
		}
	}
	return want
}

func TestEnumerate(t *testing.T) {
	a := memAdapter(plenty)
	require.NoError(t, a.MkdirAll("/src/beta"))
	require.NoError(t, a.MkdirAll("/src/alpha"))
	require.NoError(t, afero.WriteFile(a.Fs(), "/src/readme.txt", []byte("x"), 0o644))

	eng, cache, _ := newTestEngine(a, gamesSet, entry.NewDirectorySet("/missing", "/dst2"))
	eng.opts.Policy.SetDisabled("/src/beta", true)
	require.NoError(t, cache.PutSize(&database.SizeRecord{Path: "/src/alpha", Bytes: 42, Files: 1}))

	entries := eng.Enumerate(context.Background())
	require.Len(t, entries, 2)
	assert.Equal(t, "/src/alpha", entries[0].Path())
	assert.Equal(t, "/src/beta", entries[1].Path())

	alpha, beta := entries[0], entries[1]
	assert.NoError(t, alpha.Err())
	assert.Equal(t, "/dst", alpha.Target())
	assert.True(t, alpha.IsDefaultTarget())
	assert.Equal(t, entry.Available, alpha.Size().State)
	assert.Equal(t, int64(42), alpha.Size().Bytes())
	assert.True(t, beta.Disabled())
	assert.Equal(t, sizer.SizeNotCalculated, beta.Size().Bytes())
}

func TestLoadWithoutDirectorySet(t *testing.T) {
	a := memAdapter(plenty)
	require.NoError(t, a.MkdirAll("/elsewhere/game"))
	eng, _, _ := newTestEngine(a, gamesSet)

	en := eng.Load("/elsewhere/game")
	assert.ErrorIs(t, en.Err(), errs.ErrMissingDirectorySet)
	assert.Empty(t, en.Target())

	res, err := eng.Relocate(context.Background(), en)
	assert.ErrorIs(t, err, errs.ErrMissingDirectorySet)
	assert.Equal(t, Idle, res.Phase)
}

func TestCalculateSizeMatchesSequentialWalk(t *testing.T) {
	a := memAdapter(plenty)
	want := gameTree(t, a, "/src/game")

	baseline := sizer.NewState()
	require.NoError(t, sizer.New(a, 1).Walk(context.Background(), "/src/game", baseline, false))
	require.Equal(t, want, baseline.Totals())

	eng, cache, _ := newTestEngine(a, gamesSet)
	en := eng.Load("/src/game")

	var events []entry.EventKind
	en.Subscribe(func(ev entry.Event) { events = append(events, ev.Kind) })

	require.True(t, eng.CalculateSize(context.Background(), en))
	eng.WaitSize(en)

	size := en.Size()
	require.Equal(t, entry.Available, size.State)
	assert.Equal(t, baseline.Totals(), size.Totals)
	assert.Contains(t, events, entry.SizeChanged)

	rec := cache.get("/src/game")
	require.NotNil(t, rec)
	assert.Equal(t, want.Bytes, rec.Bytes)
	assert.Equal(t, want.Files, rec.Files)
}

func TestCalculateSizeSubscriberMayCallEngine(t *testing.T) {
	a := memAdapter(plenty)
	writeFiles(t, a, "/src/game", map[string]string{"save.dat": "abc"})
	eng, _, _ := newTestEngine(a, gamesSet)
	en := eng.Load("/src/game")

	var polled atomic.Int32
	en.Subscribe(func(ev entry.Event) {
		if ev.Kind == entry.SizeChanged {
			eng.SizeProgress(en)
			eng.CancelSize(en)
			polled.Add(1)
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		eng.CalculateSize(context.Background(), en)
		eng.WaitSize(en)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("size calculation blocked on a subscriber calling back into the engine")
	}
	assert.GreaterOrEqual(t, polled.Load(), int32(1))
}

func TestCalculateSizeCancel(t *testing.T) {
	a := memAdapter(plenty)
	gameTree(t, a, "/src/game")
	bfs := newBlockingFS(a, "/src/game")
	eng, cache, _ := newTestEngine(bfs, gamesSet)
	en := eng.Load("/src/game")

	bfs.armed.Store(true)
	require.True(t, eng.CalculateSize(context.Background(), en))
	<-bfs.entered
	assert.Equal(t, entry.Calculating, en.Size().State)

	eng.CancelSize(en)
	close(bfs.release)
	eng.WaitSize(en)

	assert.Equal(t, entry.NotCalculated, en.Size().State)
	assert.NoError(t, en.Err())
	assert.Nil(t, cache.get("/src/game"))
}

func TestCalculateSizeSupersedes(t *testing.T) {
	a := memAdapter(plenty)
	want := gameTree(t, a, "/src/game")
	bfs := newBlockingFS(a, "/src/game")
	eng, _, _ := newTestEngine(bfs, gamesSet)
	en := eng.Load("/src/game")

	bfs.armed.Store(true)
	require.True(t, eng.CalculateSize(context.Background(), en))
	<-bfs.entered
	bfs.armed.Store(false)

	// the second run finishes while the first is still parked
	require.True(t, eng.CalculateSize(context.Background(), en))
	close(bfs.release)
	eng.WaitSize(en)

	size := en.Size()
	require.Equal(t, entry.Available, size.State)
	assert.Equal(t, want, size.Totals)
}

func TestCalculateSizeFailure(t *testing.T) {
	a := memAdapter(plenty)
	require.NoError(t, a.MkdirAll("/src/game"))
	eng, _, _ := newTestEngine(a, gamesSet)
	en := eng.Load("/src/game")
	require.NoError(t, a.RemoveAll("/src/game"))

	require.True(t, eng.CalculateSize(context.Background(), en))
	eng.WaitSize(en)

	assert.Equal(t, entry.Failed, en.Size().State)
	assert.Equal(t, sizer.SizeError, en.Size().Bytes())
	assert.ErrorIs(t, en.Err(), errs.ErrSizeCalculation)
}

func TestCalculateSizeRespectsPolicy(t *testing.T) {
	a := memAdapter(plenty)
	require.NoError(t, a.MkdirAll("/src/game"))
	eng, _, _ := newTestEngine(a, gamesSet)
	en := eng.Load("/src/game")

	eng.opts.Policy.SetCalculateSizes(false)
	assert.False(t, eng.CalculateSize(context.Background(), en))

	eng.opts.Policy.SetCalculateSizes(true)
	en.SetDisabled(true)
	assert.False(t, eng.CalculateSize(context.Background(), en))
	assert.Equal(t, entry.NotCalculated, en.Size().State)
}

func TestFailedSizeDropsCachedSize(t *testing.T) {
	a := memAdapter(plenty)
	require.NoError(t, a.MkdirAll("/src/game"))
	eng, cache, _ := newTestEngine(a, gamesSet)
	require.NoError(t, cache.PutSize(&database.SizeRecord{Path: "/src/game", Bytes: 7, Files: 1}))
	en := eng.Load("/src/game")
	require.Equal(t, int64(7), en.Size().Bytes())
	require.NoError(t, a.RemoveAll("/src/game"))

	require.True(t, eng.CalculateSize(context.Background(), en))
	eng.WaitSize(en)
	assert.Equal(t, entry.Failed, en.Size().State)
	assert.Nil(t, cache.get("/src/game"))
}

func TestPruneSizes(t *testing.T) {
	a := memAdapter(plenty)
	require.NoError(t, a.MkdirAll("/src/kept"))
	eng, cache, _ := newTestEngine(a, gamesSet)
	for _, p := range []string{"/src/kept", "/src/gone", "/elsewhere/gone"} {
		require.NoError(t, cache.PutSize(&database.SizeRecord{Path: p, Bytes: 1}))
	}

	n, err := eng.PruneSizes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotNil(t, cache.get("/src/kept"))
	assert.Nil(t, cache.get("/src/gone"))
	assert.NotNil(t, cache.get("/elsewhere/gone"))
}

func TestCheckSpace(t *testing.T) {
	free := uint64(10)
	a := local.NewAdapter(afero.NewMemMapFs()).WithFreeSpace(func(string) (uint64, error) {
		return free, nil
	})
	require.NoError(t, a.MkdirAll("/src/game"))
	eng, _, _ := newTestEngine(a, gamesSet)
	en := eng.Load("/src/game")

	// nothing known yet
	assert.True(t, eng.CheckSpace(en))

	require.True(t, en.RestoreSize(sizer.Totals{Bytes: 100, Files: 1}))
	assert.False(t, eng.CheckSpace(en))
	assert.ErrorIs(t, en.Err(), errs.ErrInsufficientSpace)
	assert.True(t, en.HasError())

	free = 1000
	assert.True(t, eng.CheckSpace(en))
	assert.NoError(t, en.Err())
}

func TestSetDisabledPersistsAndResizes(t *testing.T) {
	a := memAdapter(plenty)
	want := gameTree(t, a, "/src/game")
	eng, _, store := newTestEngine(a, gamesSet)
	en := eng.Load("/src/game")

	require.NoError(t, eng.SetDisabled(context.Background(), en, true))
	assert.True(t, en.Disabled())
	assert.True(t, eng.opts.Policy.IsDisabled("/src/game"))
	paths, _ := store.ListDisabled()
	assert.Equal(t, []string{"/src/game"}, paths)

	require.NoError(t, eng.SetDisabled(context.Background(), en, false))
	eng.WaitSize(en)
	assert.False(t, en.Disabled())
	assert.Equal(t, want, en.Size().Totals)
	paths, _ = store.ListDisabled()
	assert.Empty(t, paths)

	// a restart picks the flag back up from the store
	require.NoError(t, store.SetDisabled("/src/game", true))
	fresh, _, _ := newTestEngine(a, gamesSet)
	fresh.opts.Disabled = store
	require.NoError(t, fresh.LoadDisabled())
	assert.True(t, fresh.Load("/src/game").Disabled())
}
