package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/starford/shortwatch/internal/extract"
)

// CommandCaptions runs an external caption extractor once per video:
//
//	<interpreter> <script> <videoId>
//
// The command must print a JSON array of {start, duration, text} on stdout
// and exit zero. At most Concurrency commands run at the same time.
type CommandCaptions struct {
	interpreter string
	script      string
	sem         *semaphore.Weighted
}

// NewCommandCaptions creates a caption source. An empty interpreter runs
// script directly.
func NewCommandCaptions(interpreter, script string, concurrency int) *CommandCaptions {
	if concurrency <= 0 {
		concurrency = 2
	}
	return &CommandCaptions{
		interpreter: interpreter,
		script:      script,
		sem:         semaphore.NewWeighted(int64(concurrency)),
	}
}

// Captions implements CaptionSource.
func (c *CommandCaptions) Captions(ctx context.Context, id extract.VideoID) ([]Caption, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("captions: invalid video id %q", id)
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("captions: waiting for slot: %w", err)
	}
	defer c.sem.Release(1)

	name, args := c.script, []string{id.String()}
	if c.interpreter != "" {
		name, args = c.interpreter, []string{c.script, id.String()}
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("captions: %w", ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("captions: exit status %d: %s", exitErr.ExitCode(), tail(stderr.String(), 512))
		}
		return nil, fmt.Errorf("captions: run: %w", err)
	}

	return ParseCaptions(stdout.Bytes())
}

// ParseCaptions decodes the extractor's JSON output, dropping blank segments.
func ParseCaptions(data []byte) ([]Caption, error) {
	var raw []Caption
	if err := json.Unmarshal(bytes.TrimSpace(data), &raw); err != nil {
		return nil, fmt.Errorf("captions: unparsable output: %w", err)
	}
	out := make([]Caption, 0, len(raw))
	for _, c := range raw {
		c.Text = strings.TrimSpace(c.Text)
		if c.Text == "" {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
