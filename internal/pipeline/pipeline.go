// Package pipeline connects both ingestion paths to enrichment and the
// event sink: URL in, published Detection out.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/starford/shortwatch/internal/apperr"
	"github.com/starford/shortwatch/internal/enrich"
	"github.com/starford/shortwatch/internal/events"
	"github.com/starford/shortwatch/internal/extract"
)

// Modes.
const (
	ModeEnrich  = "enrich"
	ModeAnalyze = "analyze"
)

// Enricher gathers data for a video. *enrich.Orchestrator implements it.
type Enricher interface {
	Enrich(ctx context.Context, id extract.VideoID) *enrich.Result
}

// Analyzer forwards a URL to a downstream service. *enrich.Analyzer
// implements it.
type Analyzer interface {
	Analyze(ctx context.Context, url string) (*enrich.Analysis, error)
}

// Request is one detected URL.
type Request struct {
	URL       string
	Origin    events.Origin
	VisitedAt int64
}

// Options tunes a Pipeline.
type Options struct {
	Mode string
	// CacheTTL keeps complete enrichment results per video id; a negative
	// value disables the cache.
	CacheTTL    time.Duration
	MaxInFlight int
	Logger      *slog.Logger
}

// Pipeline processes detections. Submit is safe for concurrent use.
type Pipeline struct {
	mode     string
	enricher Enricher
	analyzer Analyzer
	sink     events.Sink
	logger   *slog.Logger

	cache  *ttlcache.Cache[extract.VideoID, *enrich.Result]
	flight singleflight.Group
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	now    func() time.Time

	closeOnce sync.Once
}

// New creates a pipeline. The enricher is required in enrich mode and the
// analyzer in analyze mode.
func New(enricher Enricher, analyzer Analyzer, sink events.Sink, opts Options) (*Pipeline, error) {
	if opts.Mode == "" {
		opts.Mode = ModeEnrich
	}
	switch opts.Mode {
	case ModeEnrich:
		if enricher == nil {
			return nil, errors.New("pipeline: enrich mode requires an enricher")
		}
	case ModeAnalyze:
		if analyzer == nil {
			return nil, errors.New("pipeline: analyze mode requires an analyzer")
		}
	default:
		return nil, fmt.Errorf("pipeline: unknown mode %q", opts.Mode)
	}
	if sink == nil {
		return nil, errors.New("pipeline: nil sink")
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 4
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	p := &Pipeline{
		mode:     opts.Mode,
		enricher: enricher,
		analyzer: analyzer,
		sink:     sink,
		logger:   opts.Logger,
		sem:      semaphore.NewWeighted(int64(opts.MaxInFlight)),
		now:      time.Now,
	}
	if opts.CacheTTL > 0 {
		p.cache = ttlcache.New(
			ttlcache.WithTTL[extract.VideoID, *enrich.Result](opts.CacheTTL),
			ttlcache.WithDisableTouchOnHit[extract.VideoID, *enrich.Result](),
		)
		go p.cache.Start()
	}
	return p, nil
}

// Mode returns the configured mode.
func (p *Pipeline) Mode() string { return p.mode }

// Submit processes req in the background and returns immediately. Errors
// are logged. Work still waiting for a slot is dropped when ctx ends.
func (p *Pipeline) Submit(ctx context.Context, req Request) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			p.logger.Debug("pipeline: dropped", slog.String("url", req.URL))
			return
		}
		defer p.sem.Release(1)

		if _, err := p.Process(ctx, req); err != nil {
			level := slog.LevelWarn
			if errors.Is(err, apperr.ErrInvalidURL) || errors.Is(err, context.Canceled) {
				level = slog.LevelDebug
			}
			p.logger.Log(ctx, level, "pipeline: detection failed",
				slog.String("url", req.URL),
				slog.String("origin", string(req.Origin)),
				slog.String("error", err.Error()))
		}
	}()
}

// Process handles req synchronously and returns the published detection.
// A URL without a video id yields apperr.ErrInvalidURL. A publish failure
// returns the detection together with the error.
func (p *Pipeline) Process(ctx context.Context, req Request) (*events.Detection, error) {
	id, ok := extract.ExtractID(req.URL)
	if !ok {
		return nil, fmt.Errorf("pipeline: %w: %q", apperr.ErrInvalidURL, req.URL)
	}

	d := events.Detection{
		ID:        uuid.NewString(),
		URL:       req.URL,
		VideoID:   id.String(),
		Origin:    req.Origin,
		VisitedAt: req.VisitedAt,
	}

	switch p.mode {
	case ModeAnalyze:
		a, err := p.analyzer.Analyze(ctx, req.URL)
		if err != nil {
			d.Analysis = analysisFailure(err)
			d.Degraded = true
		} else {
			d.Analysis = a.Text()
		}
	default:
		res := p.enrich(ctx, id)
		d.Title = res.Title()
		d.Degraded = res.Degraded()
		d.Enrichment = res
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("pipeline: abandoned: %w", err)
	}

	d.DetectedAt = p.now().UTC()
	if err := p.sink.Publish(ctx, d); err != nil {
		return &d, fmt.Errorf("pipeline: publish: %w", err)
	}
	return &d, nil
}

// analysisFailure renders an analyzer error as the published analysis text.
func analysisFailure(err error) string {
	var statusErr *enrich.StatusError
	switch {
	case errors.Is(err, enrich.ErrUnreachable):
		return "analysis service unreachable: " + err.Error()
	case errors.As(err, &statusErr):
		msg := fmt.Sprintf("analysis service returned status %d", statusErr.StatusCode)
		if statusErr.Body != "" {
			msg += ": " + statusErr.Body
		}
		return msg
	default:
		return "analysis failed: " + err.Error()
	}
}

// enrich returns a cached result when one is fresh, and collapses
// concurrent requests for the same id into one call.
func (p *Pipeline) enrich(ctx context.Context, id extract.VideoID) *enrich.Result {
	if p.cache != nil {
		if item := p.cache.Get(id); item != nil {
			return item.Value()
		}
	}
	v, _, _ := p.flight.Do(id.String(), func() (any, error) {
		res := p.enricher.Enrich(ctx, id)
		if p.cache != nil && !res.Degraded() {
			p.cache.Set(id, res, ttlcache.DefaultTTL)
		}
		return res, nil
	})
	return v.(*enrich.Result)
}

// Wait blocks until all submitted work has finished.
func (p *Pipeline) Wait() { p.wg.Wait() }

// Close waits for in-flight work and stops the cache janitor.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		p.wg.Wait()
		if p.cache != nil {
			p.cache.Stop()
		}
	})
}
