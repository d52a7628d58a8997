package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/shortwatch/internal/extract"
)

// DefaultOEmbedEndpoint is YouTube's public oEmbed endpoint.
const DefaultOEmbedEndpoint = "https://www.youtube.com/oembed"

// OEmbed is a keyless metadata source. It only knows the title and channel,
// so it is used when no Data API key is configured.
type OEmbed struct {
	endpoint string
	client   *http.Client
	retry    RetryConfig
}

// NewOEmbed creates an oEmbed source. An empty endpoint means YouTube's.
func NewOEmbed(endpoint string, client *http.Client) *OEmbed {
	if endpoint == "" {
		endpoint = DefaultOEmbedEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &OEmbed{endpoint: endpoint, client: client, retry: DefaultRetryConfig}
}

type oembedResponse struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
}

// Metadata implements MetadataSource.
func (o *OEmbed) Metadata(ctx context.Context, id extract.VideoID) (*VideoMetadata, error) {
	q := url.Values{}
	q.Set("url", extract.CanonicalURL(id))
	q.Set("format", "json")
	u := o.endpoint + "?" + q.Encode()

	resp, err := RetryHTTP(ctx, o.retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		return o.client.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("oembed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("oembed: %w: %s", ErrVideoNotFound, id)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("oembed: %w", &StatusError{StatusCode: resp.StatusCode})
	}

	var body oembedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("oembed: decode: %w", err)
	}
	if strings.TrimSpace(body.Title) == "" {
		return nil, fmt.Errorf("oembed: %w: missing title", ErrIncompleteMetadata)
	}
	return &VideoMetadata{Title: body.Title, ChannelTitle: body.AuthorName}, nil
}
