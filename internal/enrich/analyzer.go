package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Analysis is the downstream service's verdict, kept verbatim.
type Analysis struct {
	Version string `json:"version,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Result  string `json:"result,omitempty"`
}

// Text is what gets published: the result if present, else the message.
func (a *Analysis) Text() string {
	if a.Result != "" {
		return a.Result
	}
	return a.Message
}

// Analyzer posts detected URLs to an external analysis endpoint.
type Analyzer struct {
	endpoint string
	client   *http.Client
	retry    RetryConfig
}

// NewAnalyzer creates a client for POST {baseURL}/analyze.
func NewAnalyzer(baseURL string, timeout time.Duration) *Analyzer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Analyzer{
		endpoint: strings.TrimRight(baseURL, "/") + "/analyze",
		client:   &http.Client{Timeout: timeout},
		retry:    DefaultRetryConfig,
	}
}

type analyzeRequest struct {
	URL string `json:"url"`
}

type analyzeResponse struct {
	Version  string          `json:"version"`
	Status   string          `json:"status"`
	Message  string          `json:"message"`
	Result   json.RawMessage `json:"result"`
	Analysis string          `json:"analysis"`
}

// Analyze sends url and returns the service's answer. Errors wrap
// ErrUnreachable when no response arrived, or a *StatusError.
func (a *Analyzer) Analyze(ctx context.Context, url string) (*Analysis, error) {
	payload, err := json.Marshal(analyzeRequest{URL: url})
	if err != nil {
		return nil, err
	}

	resp, err := RetryHTTP(ctx, a.retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return a.client.Do(req)
	})
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return nil, fmt.Errorf("analyzer: %w", err)
		}
		return nil, fmt.Errorf("analyzer: %w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("analyzer: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("analyzer: %w", &StatusError{StatusCode: resp.StatusCode, Body: tail(string(body), 256)})
	}

	var r analyzeResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("analyzer: decode: %w", err)
	}

	out := &Analysis{
		Version: r.Version,
		Status:  r.Status,
		Message: r.Message,
		Result:  rawText(r.Result),
	}
	if out.Result == "" {
		out.Result = r.Analysis
	}
	return out, nil
}

// rawText unquotes a JSON string or returns any other JSON value as text.
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
