package enrich

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/starford/shortwatch/internal/extract"
)

// YouTube reads metadata and comments from the YouTube Data API v3.
type YouTube struct {
	svc     *youtube.Service
	limiter *rate.Limiter
}

// NewYouTube builds a Data API client authenticated with apiKey. rps caps
// outbound requests per second; 0 disables the limiter. Extra options are
// appended after the key (tests use them to point at a local server).
func NewYouTube(ctx context.Context, apiKey string, rps float64, opts ...option.ClientOption) (*YouTube, error) {
	all := make([]option.ClientOption, 0, len(opts)+1)
	if apiKey != "" {
		all = append(all, option.WithAPIKey(apiKey))
	}
	all = append(all, opts...)

	svc, err := youtube.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("enrich: youtube client: %w", err)
	}

	lim := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &YouTube{svc: svc, limiter: lim}, nil
}

// Metadata implements MetadataSource. Title, duration and publish time are
// required; counters default to zero.
func (y *YouTube) Metadata(ctx context.Context, id extract.VideoID) (*VideoMetadata, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := y.svc.Videos.
		List([]string{"snippet", "contentDetails", "statistics"}).
		Id(id.String()).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("videos.list: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrVideoNotFound, id)
	}
	v := resp.Items[0]

	md := &VideoMetadata{}
	var missing []string

	if v.Snippet == nil || strings.TrimSpace(v.Snippet.Title) == "" {
		missing = append(missing, "title")
	} else {
		md.Title = v.Snippet.Title
		md.ChannelTitle = v.Snippet.ChannelTitle
		md.Description = v.Snippet.Description
	}

	if v.Snippet == nil || v.Snippet.PublishedAt == "" {
		missing = append(missing, "published_at")
	} else if t, perr := time.Parse(time.RFC3339, v.Snippet.PublishedAt); perr != nil {
		missing = append(missing, "published_at")
	} else {
		md.PublishedAt = t
	}

	if v.ContentDetails == nil || v.ContentDetails.Duration == "" {
		missing = append(missing, "duration")
	} else if d, perr := ParseISODuration(v.ContentDetails.Duration); perr != nil {
		missing = append(missing, "duration")
	} else {
		md.Duration = d
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrIncompleteMetadata, strings.Join(missing, ", "))
	}

	if s := v.Statistics; s != nil {
		md.ViewCount = s.ViewCount
		md.LikeCount = s.LikeCount
		md.CommentCount = s.CommentCount
	}
	return md, nil
}

// Comments implements CommentSource. Items without text are skipped.
func (y *YouTube) Comments(ctx context.Context, id extract.VideoID, limit int) ([]Comment, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := y.svc.CommentThreads.
		List([]string{"snippet"}).
		VideoId(id.String()).
		MaxResults(int64(limit)).
		Order("relevance").
		TextFormat("plainText").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("commentThreads.list: %w", err)
	}

	out := make([]Comment, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil || item.Snippet == nil || item.Snippet.TopLevelComment == nil ||
			item.Snippet.TopLevelComment.Snippet == nil {
			continue
		}
		s := item.Snippet.TopLevelComment.Snippet
		text := s.TextDisplay
		if text == "" {
			text = s.TextOriginal
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		c := Comment{
			Author:    s.AuthorDisplayName,
			Text:      text,
			LikeCount: s.LikeCount,
		}
		if t, perr := time.Parse(time.RFC3339, s.PublishedAt); perr == nil {
			c.PublishedAt = t
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

var isoDurationRe = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// ParseISODuration parses the ISO-8601 durations the Data API returns,
// such as "PT59S", "PT1M3S" or "P0D".
func ParseISODuration(s string) (time.Duration, error) {
	m := isoDurationRe.FindStringSubmatch(s)
	if m == nil || s == "P" || s == "PT" {
		return 0, fmt.Errorf("enrich: invalid duration %q", s)
	}
	var d time.Duration
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute}
	for i, u := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("enrich: invalid duration %q: %w", s, err)
		}
		d += time.Duration(n) * u
	}
	if m[4] != "" {
		secs, err := strconv.ParseFloat(m[4], 64)
		if err != nil {
			return 0, fmt.Errorf("enrich: invalid duration %q: %w", s, err)
		}
		d += time.Duration(secs * float64(time.Second))
	}
	return d, nil
}
