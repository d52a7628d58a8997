package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/shortwatch/internal/extract"
)

// Options tunes the orchestrator.
type Options struct {
	MetadataTimeout time.Duration
	CommentsTimeout time.Duration
	CaptionsTimeout time.Duration
	CommentLimit    int
	Logger          *slog.Logger
}

func (o *Options) defaults() {
	if o.MetadataTimeout <= 0 {
		o.MetadataTimeout = 15 * time.Second
	}
	if o.CommentsTimeout <= 0 {
		o.CommentsTimeout = 15 * time.Second
	}
	if o.CaptionsTimeout <= 0 {
		o.CaptionsTimeout = 60 * time.Second
	}
	if o.CommentLimit <= 0 {
		o.CommentLimit = 10
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Orchestrator runs every configured source concurrently and assembles one
// Result. Any source may be nil; that field is then reported as disabled.
type Orchestrator struct {
	metadata MetadataSource
	comments CommentSource
	captions CaptionSource
	opts     Options
}

// NewOrchestrator creates an orchestrator over the given sources.
func NewOrchestrator(metadata MetadataSource, comments CommentSource, captions CaptionSource, opts Options) *Orchestrator {
	opts.defaults()
	return &Orchestrator{
		metadata: metadata,
		comments: comments,
		captions: captions,
		opts:     opts,
	}
}

// Enrich gathers everything known about id. It returns once every source
// has answered or hit its timeout, whichever comes first.
func (o *Orchestrator) Enrich(ctx context.Context, id extract.VideoID) *Result {
	res := &Result{
		VideoID:      id,
		CanonicalURL: extract.CanonicalURL(id),
		Comments:     []Comment{},
		Captions:     []Caption{},
	}

	var mu sync.Mutex
	fail := func(source string, err error) {
		se := SourceError{
			Source:  source,
			Message: err.Error(),
			Timeout: errors.Is(err, context.DeadlineExceeded),
		}
		o.opts.Logger.Warn("enrich: source failed",
			slog.String("video_id", id.String()),
			slog.String("source", source),
			slog.String("error", err.Error()))
		mu.Lock()
		res.Errors = append(res.Errors, se)
		mu.Unlock()
	}

	var g errgroup.Group

	g.Go(func() error {
		if o.metadata == nil {
			fail(SourceMetadata, ErrSourceDisabled)
			return nil
		}
		md, err := withTimeout(ctx, o.opts.MetadataTimeout, func(ctx context.Context) (*VideoMetadata, error) {
			return o.metadata.Metadata(ctx, id)
		})
		if err == nil && md == nil {
			err = ErrIncompleteMetadata
		}
		if err != nil {
			fail(SourceMetadata, err)
			return nil
		}
		mu.Lock()
		res.Metadata = md
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		if o.comments == nil {
			fail(SourceComments, ErrSourceDisabled)
			return nil
		}
		cs, err := withTimeout(ctx, o.opts.CommentsTimeout, func(ctx context.Context) ([]Comment, error) {
			return o.comments.Comments(ctx, id, o.opts.CommentLimit)
		})
		if err != nil {
			fail(SourceComments, err)
			return nil
		}
		if len(cs) > o.opts.CommentLimit {
			cs = cs[:o.opts.CommentLimit]
		}
		mu.Lock()
		res.Comments = append(res.Comments, cs...)
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		if o.captions == nil {
			fail(SourceCaptions, ErrSourceDisabled)
			return nil
		}
		caps, err := withTimeout(ctx, o.opts.CaptionsTimeout, func(ctx context.Context) ([]Caption, error) {
			return o.captions.Captions(ctx, id)
		})
		if err != nil {
			fail(SourceCaptions, err)
			return nil
		}
		mu.Lock()
		res.Captions = append(res.Captions, caps...)
		mu.Unlock()
		return nil
	})

	_ = g.Wait()
	return res
}

// withTimeout bounds fn by d even if fn ignores its context.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		ch <- outcome{v, err}
	}()

	select {
	case out := <-ch:
		return out.v, out.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("gave up after %s: %w", d, ctx.Err())
	}
}
