// Package enrich gathers metadata, comments and captions for a detected
// video from independent sources, or forwards the URL to a downstream
// analysis service.
package enrich

import (
	"context"
	"errors"
	"time"

	"github.com/starford/shortwatch/internal/extract"
)

// Source names used in SourceError.
const (
	SourceMetadata = "metadata"
	SourceComments = "comments"
	SourceCaptions = "captions"
	SourceAnalyzer = "analyzer"
)

var (
	// ErrIncompleteMetadata means the metadata source answered without a
	// required field (title, duration or publish time).
	ErrIncompleteMetadata = errors.New("incomplete metadata")
	// ErrSourceDisabled means no source is configured for this field.
	ErrSourceDisabled = errors.New("source not configured")
	// ErrVideoNotFound means the source has no record of the video.
	ErrVideoNotFound = errors.New("video not found")
)

// VideoMetadata is what the metadata source knows about a video.
type VideoMetadata struct {
	Title        string        `json:"title"`
	ChannelTitle string        `json:"channel_title,omitempty"`
	Description  string        `json:"description,omitempty"`
	PublishedAt  time.Time     `json:"published_at,omitempty"`
	Duration     time.Duration `json:"duration"`
	ViewCount    uint64        `json:"view_count"`
	LikeCount    uint64        `json:"like_count"`
	CommentCount uint64        `json:"comment_count"`
}

// Comment is one top-level comment.
type Comment struct {
	Author      string    `json:"author"`
	Text        string    `json:"text"`
	LikeCount   int64     `json:"like_count"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// Caption is one timed caption segment; times are in seconds.
type Caption struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
}

// SourceError records why one source contributed nothing.
type SourceError struct {
	Source  string `json:"source"`
	Message string `json:"message"`
	Timeout bool   `json:"timeout,omitempty"`
}

func (e SourceError) Error() string { return e.Source + ": " + e.Message }

// Result is the aggregate enrichment of one video. A failed source leaves
// its field empty and adds a SourceError; the result itself never fails.
type Result struct {
	VideoID      extract.VideoID `json:"video_id"`
	CanonicalURL string          `json:"canonical_url"`
	Metadata     *VideoMetadata  `json:"metadata,omitempty"`
	Comments     []Comment       `json:"comments"`
	Captions     []Caption       `json:"captions"`
	Errors       []SourceError   `json:"errors,omitempty"`
}

// Degraded reports whether any source failed.
func (r *Result) Degraded() bool { return len(r.Errors) > 0 }

// Title returns the metadata title or empty string.
func (r *Result) Title() string {
	if r.Metadata == nil {
		return ""
	}
	return r.Metadata.Title
}

// ErrorFor returns the recorded error for source, if any.
func (r *Result) ErrorFor(source string) (SourceError, bool) {
	for _, e := range r.Errors {
		if e.Source == source {
			return e, true
		}
	}
	return SourceError{}, false
}

// MetadataSource fetches video metadata.
type MetadataSource interface {
	Metadata(ctx context.Context, id extract.VideoID) (*VideoMetadata, error)
}

// CommentSource fetches up to limit top comments.
type CommentSource interface {
	Comments(ctx context.Context, id extract.VideoID, limit int) ([]Comment, error)
}

// CaptionSource fetches timed captions.
type CaptionSource interface {
	Captions(ctx context.Context, id extract.VideoID) ([]Caption, error)
}
