package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/shortwatch/internal/history"
	"github.com/starford/shortwatch/internal/testutil"
)

type fakeReader struct {
	mu    sync.Mutex
	recs  []history.Record
	err   error
	calls int
}

func (f *fakeReader) ReadNew(_ context.Context, wm history.Watermark) ([]history.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []history.Record
	for _, r := range f.recs {
		if r.VisitedAt > int64(wm) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReader) Source() string { return "/tmp/profile/History" }

func (f *fakeReader) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memStore struct {
	mu sync.Mutex
	m  map[string]history.Watermark
}

func (s *memStore) LoadWatermark(_ context.Context, key string) (history.Watermark, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wm, ok := s.m[key]
	return wm, ok, nil
}

func (s *memStore) SaveWatermark(_ context.Context, key string, wm history.Watermark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = map[string]history.Watermark{}
	}
	s.m[key] = wm
	return nil
}

type collector struct {
	mu   sync.Mutex
	urls []string
}

func (c *collector) handle(_ context.Context, rec history.Record) {
	c.mu.Lock()
	c.urls = append(c.urls, rec.URL)
	c.mu.Unlock()
}

func (c *collector) got() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.urls...)
}

func TestRunCycle_DispatchesAboveWatermark(t *testing.T) {
	r := &fakeReader{recs: []history.Record{
		{URL: "https://youtube.com/shorts/old", VisitedAt: 40},
		{URL: "https://youtube.com/shorts/abc123", VisitedAt: 100},
	}}
	var c collector

	wm, n, err := RunCycle(context.Background(), r, 50, c.handle)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, history.Watermark(100), wm)
	assert.Equal(t, []string{"https://youtube.com/shorts/abc123"}, c.got())

	// A second pass over the same data dispatches nothing.
	wm2, n, err := RunCycle(context.Background(), r, wm, c.handle)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, wm, wm2)
	assert.Len(t, c.got(), 1)
}

func TestRunCycle_EqualTimestampsInOneBatch(t *testing.T) {
	r := &fakeReader{recs: []history.Record{
		{URL: "https://youtube.com/shorts/a", VisitedAt: 100},
		{URL: "https://youtube.com/shorts/b", VisitedAt: 100},
	}}
	var c collector

	wm, n, err := RunCycle(context.Background(), r, 0, c.handle)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, history.Watermark(100), wm)
}

func TestRunCycle_ErrorLeavesWatermark(t *testing.T) {
	r := &fakeReader{err: errors.New("database is locked")}
	wm, n, err := RunCycle(context.Background(), r, 77, nil)
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, history.Watermark(77), wm)
}

func TestRunCycle_WatermarkAdvancedBeforeDispatch(t *testing.T) {
	r := &fakeReader{recs: []history.Record{
		{URL: "a", VisitedAt: 10},
		{URL: "b", VisitedAt: 20},
	}}
	var seen []history.Watermark
	var wm history.Watermark
	wm, _, err := RunCycle(context.Background(), r, wm, func(_ context.Context, rec history.Record) {
		seen = append(seen, history.Watermark(rec.VisitedAt))
	})
	require.NoError(t, err)
	assert.Equal(t, []history.Watermark{10, 20}, seen)
	assert.Equal(t, history.Watermark(20), wm)
}

func TestLoop_BurstCollapsesToOneCheck(t *testing.T) {
	r := &fakeReader{recs: []history.Record{{URL: "https://youtube.com/shorts/abc123", VisitedAt: 100}}}
	var c collector
	w := New(r, c.handle, Options{Debounce: 100 * time.Millisecond, Logger: testutil.Logger()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan fsnotify.Event)
	errs := make(chan error)
	done := make(chan struct{})
	go func() {
		w.loop(ctx, events, errs)
		close(done)
	}()

	for i := 0; i < 5; i++ {
		events <- fsnotify.Event{Name: "/tmp/profile/History-journal", Op: fsnotify.Write}
		time.Sleep(20 * time.Millisecond)
	}

	testutil.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return r.Calls() == 1
	}, "expected one check after burst")
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, 1, r.Calls())
	assert.Equal(t, int64(1), w.Checks())
	assert.Equal(t, []string{"https://youtube.com/shorts/abc123"}, c.got())
	assert.Equal(t, history.Watermark(100), w.Watermark())

	cancel()
	<-done
}

func TestLoop_FailedReadRetriedOnNextEvent(t *testing.T) {
	r := &fakeReader{
		recs: []history.Record{{URL: "https://youtube.com/shorts/abc123", VisitedAt: 100}},
		err:  errors.New("locked"),
	}
	var c collector
	w := New(r, c.handle, Options{Debounce: 20 * time.Millisecond, Initial: 50, Logger: testutil.Logger()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan fsnotify.Event)
	go w.loop(ctx, events, nil)

	events <- fsnotify.Event{Name: "History", Op: fsnotify.Write}
	testutil.Eventually(t, time.Second, 10*time.Millisecond, func() bool { return r.Calls() == 1 }, "first check")
	assert.Equal(t, history.Watermark(50), w.Watermark())
	assert.Empty(t, c.got())

	r.mu.Lock()
	r.err = nil
	r.mu.Unlock()

	events <- fsnotify.Event{Name: "History", Op: fsnotify.Write}
	testutil.Eventually(t, time.Second, 10*time.Millisecond, func() bool { return len(c.got()) == 1 }, "retry did not deliver")
	assert.Equal(t, history.Watermark(100), w.Watermark())
}

func TestLoop_TriggerAndPersist(t *testing.T) {
	r := &fakeReader{recs: []history.Record{{URL: "u", VisitedAt: 300}}}
	store := &memStore{}
	w := New(r, nil, Options{Debounce: 10 * time.Millisecond, Store: store, Logger: testutil.Logger()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.loop(ctx, nil, nil)

	w.Trigger()
	testutil.Eventually(t, time.Second, 10*time.Millisecond, func() bool {
		wm, ok, _ := store.LoadWatermark(ctx, r.Source())
		return ok && wm == 300
	}, "watermark not persisted")
}

func TestRun_ResumesFromStore(t *testing.T) {
	dir := t.TempDir()
	src := testutil.HistoryFile(t, dir)
	r, err := history.NewReader(history.Options{Source: src, ScratchDir: t.TempDir()})
	require.NoError(t, err)

	store := &memStore{}
	require.NoError(t, store.SaveWatermark(context.Background(), src, 500))

	var c collector
	w := New(r, c.handle, Options{Debounce: 50 * time.Millisecond, Initial: 10, Store: store, Logger: testutil.Logger()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	testutil.Eventually(t, time.Second, 10*time.Millisecond, func() bool {
		return w.Watermark() == 500
	}, "persisted watermark not restored")
	time.Sleep(100 * time.Millisecond)

	testutil.AddVisit(t, src, "https://www.youtube.com/shorts/before", 400)
	testutil.AddVisit(t, src, "https://www.youtube.com/shorts/after", 600)

	testutil.Eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return len(c.got()) == 1
	}, "new visit not detected")
	assert.Equal(t, []string{"https://www.youtube.com/shorts/after"}, c.got())
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	src := testutil.HistoryFile(t, dir)
	testutil.AddVisit(t, src, "https://www.youtube.com/shorts/seen", 40)

	r, err := history.NewReader(history.Options{Source: src, ScratchDir: t.TempDir()})
	require.NoError(t, err)

	var c collector
	w := New(r, c.handle, Options{Debounce: 50 * time.Millisecond, Initial: 50, Logger: testutil.Logger()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	testutil.AddVisit(t, src, "https://www.youtube.com/watch?v=notashort", 90)
	testutil.AddVisit(t, src, "https://www.youtube.com/shorts/abc123", 100)

	testutil.Eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return w.Watermark() == 100
	}, "watermark did not advance")
	assert.Equal(t, []string{"https://www.youtube.com/shorts/abc123"}, c.got())

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestRun_MissingDirectoryIsFatal(t *testing.T) {
	r := &fakeReader{}
	w := New(r, nil, Options{Logger: testutil.Logger()})
	w.reader = missingSource{r}
	err := w.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watch")
}

type missingSource struct{ *fakeReader }

func (missingSource) Source() string {
	return filepath.Join("/nonexistent-shortwatch", "profile", "History")
}

func TestCheck_FullBatchesDrainedInOneCheck(t *testing.T) {
	src := testutil.HistoryFile(t, t.TempDir())
	r, err := history.NewReader(history.Options{Source: src, ScratchDir: t.TempDir(), MaxRows: 2})
	require.NoError(t, err)
	testutil.AddVisit(t, src, "https://www.youtube.com/shorts/a1", 100)
	testutil.AddVisit(t, src, "https://www.youtube.com/shorts/a2", 200)
	testutil.AddVisit(t, src, "https://www.youtube.com/shorts/a3", 200)
	testutil.AddVisit(t, src, "https://www.youtube.com/shorts/a4", 300)
	testutil.AddVisit(t, src, "https://www.youtube.com/shorts/a5", 400)

	var c collector
	store := &memStore{}
	w := New(r, c.handle, Options{Debounce: 10 * time.Millisecond, Store: store, Logger: testutil.Logger()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.loop(ctx, nil, nil)

	w.Trigger()
	testutil.Eventually(t, 5*time.Second, 10*time.Millisecond, func() bool {
		return w.Watermark() == 400
	}, "watermark did not reach the newest visit")

	assert.Equal(t, int64(1), w.Checks())
	assert.ElementsMatch(t, []string{
		"https://www.youtube.com/shorts/a1",
		"https://www.youtube.com/shorts/a2",
		"https://www.youtube.com/shorts/a3",
		"https://www.youtube.com/shorts/a4",
		"https://www.youtube.com/shorts/a5",
	}, c.got())
	testutil.Eventually(t, time.Second, 10*time.Millisecond, func() bool {
		wm, ok, _ := store.LoadWatermark(ctx, r.Source())
		return ok && wm == 400
	}, "watermark not persisted")
}

func TestRun_PersistedWatermarkOlderThanInitialWins(t *testing.T) {
	dir := t.TempDir()
	src := testutil.HistoryFile(t, dir)
	testutil.AddVisit(t, src, "https://www.youtube.com/shorts/missed", 600)
	r, err := history.NewReader(history.Options{Source: src, ScratchDir: t.TempDir()})
	require.NoError(t, err)

	store := &memStore{}
	require.NoError(t, store.SaveWatermark(context.Background(), src, 500))

	var c collector
	w := New(r, c.handle, Options{Debounce: 50 * time.Millisecond, Initial: 1000, Store: store, Logger: testutil.Logger()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Trigger()
	go func() { _ = w.Run(ctx) }()

	testutil.Eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return len(c.got()) == 1
	}, "visit made while stopped not caught up")
	assert.Equal(t, []string{"https://www.youtube.com/shorts/missed"}, c.got())
	assert.Equal(t, history.Watermark(600), w.Watermark())
}
