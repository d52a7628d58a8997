// Package watcher turns filesystem notifications on a browser history file
// into debounced incremental reads, handing every new record to a handler
// exactly once.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/shortwatch/internal/history"
)

// Reader is the part of history.Reader the watcher needs.
type Reader interface {
	ReadNew(ctx context.Context, wm history.Watermark) ([]history.Record, error)
	Source() string
}

// WatermarkStore persists the watermark across restarts.
type WatermarkStore interface {
	LoadWatermark(ctx context.Context, key string) (history.Watermark, bool, error)
	SaveWatermark(ctx context.Context, key string, wm history.Watermark) error
}

// Handler receives each new record in watermark order.
type Handler func(ctx context.Context, rec history.Record)

// Options tunes a Watcher.
type Options struct {
	// Debounce is the quiet period after the last filesystem event before
	// the history is read.
	Debounce time.Duration
	// Initial is the starting watermark when the store holds none.
	Initial history.Watermark
	Store   WatermarkStore
	// StoreKey names the persisted cursor; defaults to the source path.
	StoreKey string
	Logger   *slog.Logger
}

// Watcher watches one history file.
type Watcher struct {
	reader  Reader
	handle  Handler
	opts    Options
	wm      atomic.Int64
	checks  atomic.Int64
	trigger chan struct{}
}

// New creates a watcher. Run starts it.
func New(r Reader, handle Handler, opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.StoreKey == "" {
		opts.StoreKey = r.Source()
	}
	w := &Watcher{
		reader:  r,
		handle:  handle,
		opts:    opts,
		trigger: make(chan struct{}, 1),
	}
	w.wm.Store(int64(opts.Initial))
	return w
}

// Watermark returns the current watermark.
func (w *Watcher) Watermark() history.Watermark { return history.Watermark(w.wm.Load()) }

// Checks returns how many read cycles have run.
func (w *Watcher) Checks() int64 { return w.checks.Load() }

// Trigger requests a read without waiting for a filesystem event. The read
// still goes through the debounce window.
func (w *Watcher) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Run watches the directory holding the history file until ctx is
// cancelled. Failing to establish the watch is returned immediately; read
// failures are logged and retried on the next event.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.restore(ctx); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.reader.Source())
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watcher: watch %s: %w", dir, err)
	}

	w.opts.Logger.Info("watcher: started",
		slog.String("source", w.reader.Source()),
		slog.String("watermark", w.Watermark().String()),
		slog.Duration("debounce", w.opts.Debounce))

	w.loop(ctx, fw.Events, fw.Errors)
	w.opts.Logger.Info("watcher: stopped")
	return nil
}

func (w *Watcher) restore(ctx context.Context) error {
	if w.opts.Store == nil {
		return nil
	}
	wm, ok, err := w.opts.Store.LoadWatermark(ctx, w.opts.StoreKey)
	if err != nil {
		return fmt.Errorf("watcher: load watermark: %w", err)
	}
	if ok {
		w.wm.Store(int64(wm))
		w.opts.Logger.Info("watcher: resumed", slog.String("watermark", wm.String()))
	}
	return nil
}

// loop owns the debounce timer. Any event in the source directory re-arms
// it; the browser writes History, its journal and WAL files in bursts.
func (w *Watcher) loop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) {
	timer := time.NewTimer(w.opts.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			timer.Reset(w.opts.Debounce)

		case <-w.trigger:
			timer.Reset(w.opts.Debounce)

		case err, ok := <-errs:
			if !ok {
				return
			}
			w.opts.Logger.Error("watcher: error", slog.String("error", err.Error()))

		case <-timer.C:
			w.check(ctx)
		}
	}
}

// batchLimiter is implemented by readers that cap a batch; a batch that
// reaches the cap is followed by another read in the same check.
type batchLimiter interface {
	BatchLimit() int
}

func (w *Watcher) check(ctx context.Context) {
	w.checks.Add(1)

	limit := 0
	if bl, ok := w.reader.(batchLimiter); ok {
		limit = bl.BatchLimit()
	}

	start, total := w.Watermark(), 0
	for ctx.Err() == nil {
		next, n, err := RunCycle(ctx, w.reader, w.Watermark(), w.handle)
		if err != nil {
			w.opts.Logger.Warn("watcher: read failed",
				slog.String("source", w.reader.Source()),
				slog.String("error", err.Error()))
			break
		}
		if n > 0 {
			w.wm.Store(int64(next))
			total += n
		}
		if limit <= 0 || n < limit {
			break
		}
	}
	if total == 0 {
		return
	}
	wm := w.Watermark()
	w.opts.Logger.Debug("watcher: new visits",
		slog.Int("count", total),
		slog.String("watermark", wm.String()))

	if w.opts.Store == nil || wm == start {
		return
	}
	if err := w.opts.Store.SaveWatermark(ctx, w.opts.StoreKey, wm); err != nil {
		w.opts.Logger.Warn("watcher: save watermark failed", slog.String("error", err.Error()))
	}
}

// RunCycle reads records above wm and dispatches them in order. The
// watermark is advanced before each dispatch, so a record handed to handle
// is never returned again. On read error wm is returned unchanged.
func RunCycle(ctx context.Context, r Reader, wm history.Watermark, handle Handler) (history.Watermark, int, error) {
	recs, err := r.ReadNew(ctx, wm)
	if err != nil {
		return wm, 0, err
	}
	base, n := wm, 0
	for _, rec := range recs {
		if rec.VisitedAt <= int64(base) {
			continue
		}
		wm = wm.Advance(rec.VisitedAt)
		n++
		if handle != nil {
			handle(ctx, rec)
		}
	}
	return wm, n, nil
}
