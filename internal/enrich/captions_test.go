package enrich

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/shortwatch/internal/testutil"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "captions.sh")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return p
}

func TestCommandCaptions_Success(t *testing.T) {
	script := writeScript(t, `echo '[{"start":0.0,"duration":2.5,"text":" hello "},{"start":2.5,"duration":1,"text":"  "},{"start":3.5,"duration":1,"text":"'"$1"'"}]'`)
	c := NewCommandCaptions("/bin/sh", script, 1)

	caps, err := c.Captions(context.Background(), "abc123")
	require.NoError(t, err)
	require.Len(t, caps, 2)
	assert.Equal(t, Caption{Start: 0, Duration: 2.5, Text: "hello"}, caps[0])
	assert.Equal(t, "abc123", caps[1].Text, "video id must be passed as the argument")
}

func TestCommandCaptions_NonZeroExit(t *testing.T) {
	script := writeScript(t, `echo "no subtitles for $1" >&2; exit 3`)
	c := NewCommandCaptions("/bin/sh", script, 1)

	caps, err := c.Captions(context.Background(), "abc123")
	require.Error(t, err)
	assert.Nil(t, caps)
	assert.Contains(t, err.Error(), "exit status 3")
	assert.Contains(t, err.Error(), "no subtitles for abc123")
}

func TestCommandCaptions_Unparsable(t *testing.T) {
	script := writeScript(t, `echo "not json"`)
	c := NewCommandCaptions("/bin/sh", script, 1)

	_, err := c.Captions(context.Background(), "abc123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unparsable")
}

func TestCommandCaptions_InvalidID(t *testing.T) {
	c := NewCommandCaptions("/bin/sh", "unused", 1)
	_, err := c.Captions(context.Background(), "; rm -rf /")
	assert.Error(t, err)
}

func TestEnrich_FailingSubprocessStillCompletes(t *testing.T) {
	script := writeScript(t, `exit 1`)
	o := NewOrchestrator(
		fakeMetadata{md: &VideoMetadata{Title: "t"}},
		fakeComments{cs: []Comment{{Text: "x"}}},
		NewCommandCaptions("/bin/sh", script, 1),
		Options{CaptionsTimeout: 5 * time.Second, Logger: testutil.Logger()},
	)

	start := time.Now()
	res := o.Enrich(context.Background(), "abc123")
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Empty(t, res.Captions)
	_, ok := res.ErrorFor(SourceCaptions)
	assert.True(t, ok)
	assert.Len(t, res.Comments, 1)
}

func TestEnrich_HungSubprocessKilledAtTimeout(t *testing.T) {
	script := writeScript(t, `exec sleep 30`)
	o := NewOrchestrator(nil, nil,
		NewCommandCaptions("/bin/sh", script, 1),
		Options{CaptionsTimeout: 200 * time.Millisecond, Logger: testutil.Logger()},
	)

	start := time.Now()
	res := o.Enrich(context.Background(), "abc123")
	assert.Less(t, time.Since(start), 3*time.Second)
	se, ok := res.ErrorFor(SourceCaptions)
	require.True(t, ok)
	assert.True(t, se.Timeout)
}

func TestParseCaptions(t *testing.T) {
	caps, err := ParseCaptions([]byte("  []\n"))
	require.NoError(t, err)
	assert.Empty(t, caps)

	_, err = ParseCaptions(nil)
	assert.Error(t, err)
}
