// Package events defines the detection event published by the pipeline and
// the Sink interface every consumer implements.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/starford/shortwatch/internal/enrich"
)

// Origin tells which ingestion path produced a detection.
type Origin string

const (
	OriginHistory Origin = "history"
	OriginSidecar Origin = "sidecar"
	OriginManual  Origin = "manual"
)

// Detection is the unit handed to sinks. Sinks receive it by value and must
// not mutate the shared Enrichment result.
type Detection struct {
	ID         string         `json:"id"`
	URL        string         `json:"url"`
	VideoID    string         `json:"video_id"`
	Title      string         `json:"title,omitempty"`
	Analysis   string         `json:"analysis,omitempty"`
	Origin     Origin         `json:"origin"`
	VisitedAt  int64          `json:"visited_at,omitempty"`
	DetectedAt time.Time      `json:"detected_at"`
	Degraded   bool           `json:"degraded"`
	Enrichment *enrich.Result `json:"enrichment,omitempty"`
}

// Sink receives published detections.
type Sink interface {
	Publish(ctx context.Context, d Detection) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, d Detection) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, d Detection) error { return f(ctx, d) }

// Multi publishes to every sink in order. A failing sink does not stop the
// others; all errors are joined.
type Multi []Sink

// Publish implements Sink.
func (m Multi) Publish(ctx context.Context, d Detection) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes one info line per detection.
func LogSink(logger *slog.Logger) Sink {
	return SinkFunc(func(_ context.Context, d Detection) error {
		attrs := []any{
			slog.String("id", d.ID),
			slog.String("url", d.URL),
			slog.String("origin", string(d.Origin)),
			slog.Bool("degraded", d.Degraded),
		}
		if d.Title != "" {
			attrs = append(attrs, slog.String("title", d.Title))
		}
		if d.Analysis != "" {
			attrs = append(attrs, slog.String("analysis", d.Analysis))
		}
		logger.Info("detection published", attrs...)
		return nil
	})
}
