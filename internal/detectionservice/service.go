// Package detectionservice is the read/act surface shared by the HTTP API and
// the MCP server: browse recorded detections, enrich a URL on demand, and
// report watcher and sidecar status.
package detectionservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/starford/shortwatch/internal/apperr"
	"github.com/starford/shortwatch/internal/events"
	"github.com/starford/shortwatch/internal/extract"
	"github.com/starford/shortwatch/internal/history"
	"github.com/starford/shortwatch/internal/pipeline"
	"github.com/starford/shortwatch/internal/sidecar"
	"github.com/starford/shortwatch/internal/store"
)

// Processor runs one URL through enrichment and publishing.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (*events.Detection, error)
}

// Watcher is the part of the history watcher the service reports on.
type Watcher interface {
	Watermark() history.Watermark
	Trigger()
}

// Sidecar is the part of the sidecar supervisor the service reports on.
type Sidecar interface {
	State() sidecar.State
	ExitStatus() sidecar.ExitStatus
	Restarts() int
}

// Deps are the collaborators of a Service. Store and Processor are
// required; Watcher and Sidecar are nil when that path is disabled.
type Deps struct {
	Store     store.Store
	Processor Processor
	Watcher   Watcher
	Sidecar   Sidecar
	Epoch     history.Epoch
	Mode      string
}

// Extraction is the result of parsing a URL.
type Extraction struct {
	URL          string `json:"url"`
	VideoID      string `json:"video_id"`
	CanonicalURL string `json:"canonical_url"`
}

// Status describes the running ingestion paths.
type Status struct {
	Mode    string         `json:"mode"`
	History *HistoryStatus `json:"history,omitempty"`
	Sidecar *SidecarStatus `json:"sidecar,omitempty"`
}

// HistoryStatus reports the watcher's cursor.
type HistoryStatus struct {
	Watermark history.Watermark `json:"watermark"`
	AsOf      time.Time         `json:"as_of"`
}

// SidecarStatus reports the supervised process.
type SidecarStatus struct {
	State    string             `json:"state"`
	Exit     sidecar.ExitStatus `json:"exit"`
	Restarts int                `json:"restarts"`
}

// Service coordinates store and pipeline operations.
type Service struct {
	deps Deps
}

// NewService creates a new detection service.
func NewService(deps Deps) *Service {
	if deps.Epoch == "" {
		deps.Epoch = history.EpochWebKit
	}
	return &Service{deps: deps}
}

// ListDetections returns recorded detections, newest first.
func (s *Service) ListDetections(ctx context.Context, q store.ListQuery) ([]events.Detection, int, error) {
	return s.deps.Store.ListDetections(ctx, q)
}

// GetDetection returns one detection or apperr.ErrNotFound.
func (s *Service) GetDetection(ctx context.Context, id string) (*events.Detection, error) {
	return s.deps.Store.GetDetection(ctx, id)
}

// Search finds detections by title, analysis or transcript text.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]store.SearchResult, error) {
	return s.deps.Store.Search(ctx, query, limit)
}

// Enrich runs url through the pipeline as a manual detection. When only
// publishing failed, both the detection and the error are returned.
func (s *Service) Enrich(ctx context.Context, url string) (*events.Detection, error) {
	return s.deps.Processor.Process(ctx, pipeline.Request{URL: url, Origin: events.OriginManual})
}

// Extract parses url without any network access.
func (s *Service) Extract(url string) (*Extraction, error) {
	id, ok := extract.ExtractID(url)
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperr.ErrInvalidURL, url)
	}
	return &Extraction{URL: url, VideoID: id.String(), CanonicalURL: extract.CanonicalURL(id)}, nil
}

// Status reports the enabled ingestion paths.
func (s *Service) Status(_ context.Context) Status {
	st := Status{Mode: s.deps.Mode}
	if s.deps.Watcher != nil {
		wm := s.deps.Watcher.Watermark()
		st.History = &HistoryStatus{Watermark: wm, AsOf: s.deps.Epoch.Time(wm)}
	}
	if s.deps.Sidecar != nil {
		st.Sidecar = &SidecarStatus{
			State:    s.deps.Sidecar.State().String(),
			Exit:     s.deps.Sidecar.ExitStatus(),
			Restarts: s.deps.Sidecar.Restarts(),
		}
	}
	return st
}

// ErrHistoryDisabled is returned by Rescan when no watcher runs.
var ErrHistoryDisabled = errors.New("history watching is disabled")

// Rescan asks the watcher to read the history now.
func (s *Service) Rescan() error {
	if s.deps.Watcher == nil {
		return ErrHistoryDisabled
	}
	s.deps.Watcher.Trigger()
	return nil
}
