package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/shortwatch/internal/testutil"
)

func newReader(t *testing.T, mode string) (*Reader, string) {
	t.Helper()
	src := testutil.HistoryFile(t, t.TempDir())
	r, err := NewReader(Options{Source: src, ScratchDir: t.TempDir(), Mode: mode})
	require.NoError(t, err)
	return r, src
}

func TestReadNew_DetectsNewerThanWatermark(t *testing.T) {
	r, src := newReader(t, ModeAll)
	testutil.AddVisit(t, src, "https://www.youtube.com/shorts/abc123", 100)

	recs, err := r.ReadNew(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "https://www.youtube.com/shorts/abc123", recs[0].URL)
	assert.Equal(t, int64(100), recs[0].VisitedAt)
}

func TestReadNew_IgnoresOlderThanWatermark(t *testing.T) {
	r, src := newReader(t, ModeAll)
	testutil.AddVisit(t, src, "https://www.youtube.com/shorts/abc123", 40)
	testutil.AddVisit(t, src, "https://www.youtube.com/shorts/equal", 50)

	recs, err := r.ReadNew(context.Background(), 50)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestReadNew_FiltersNonShorts(t *testing.T) {
	r, src := newReader(t, ModeAll)
	testutil.AddVisit(t, src, "https://www.youtube.com/watch?v=abc", 100)
	testutil.AddVisit(t, src, "https://example.com/", 101)

	recs, err := r.ReadNew(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestReadNew_AllModeOldestFirst(t *testing.T) {
	r, src := newReader(t, ModeAll)
	testutil.AddVisit(t, src, "https://www.youtube.com/shorts/c", 300)
	testutil.AddVisit(t, src, "https://www.youtube.com/shorts/a", 100)
	testutil.AddVisit(t, src, "https://www.youtube.com/shorts/b", 200)

	recs, err := r.ReadNew(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, int64(100), recs[0].VisitedAt)
	assert.Equal(t, int64(200), recs[1].VisitedAt)
	assert.Equal(t, int64(300), recs[2].VisitedAt)
}

func TestReadNew_AllModeBatchExtendsOverTies(t *testing.T) {
	src := testutil.HistoryFile(t, t.TempDir())
	r, err := NewReader(Options{Source: src, ScratchDir: t.TempDir(), MaxRows: 2})
	require.NoError(t, err)
	testutil.AddVisit(t, src, "https://www.youtube.com/shorts/a1", 100)
	testutil.AddVisit(t, src, "https://www.youtube.com/shorts/a2", 200)
	testutil.AddVisit(t, src, "https://www.youtube.com/shorts/a3", 200)
	testutil.AddVisit(t, src, "https://www.youtube.com/shorts/a4", 300)

	recs, err := r.ReadNew(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, int64(200), recs[2].VisitedAt)
	assert.Equal(t, 2, r.BatchLimit())

	recs, err = r.ReadNew(context.Background(), 200)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "https://www.youtube.com/shorts/a4", recs[0].URL)
}

func TestReadNew_AllModeBelowLimit(t *testing.T) {
	src := testutil.HistoryFile(t, t.TempDir())
	r, err := NewReader(Options{Source: src, ScratchDir: t.TempDir(), MaxRows: 5})
	require.NoError(t, err)
	testutil.AddVisit(t, src, "https://www.youtube.com/shorts/a1", 100)

	recs, err := r.ReadNew(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestReadNew_LatestModeSingleRow(t *testing.T) {
	r, src := newReader(t, ModeLatest)
	testutil.AddVisit(t, src, "https://www.youtube.com/shorts/a", 100)
	testutil.AddVisit(t, src, "https://www.youtube.com/shorts/b", 200)

	recs, err := r.ReadNew(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "https://www.youtube.com/shorts/b", recs[0].URL)
}

func TestReadNew_MissingSourceIsCopyFailure(t *testing.T) {
	r, err := NewReader(Options{Source: filepath.Join(t.TempDir(), "History"), ScratchDir: t.TempDir()})
	require.NoError(t, err)

	_, err = r.ReadNew(context.Background(), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCopyFailed))
}

func TestReadNew_CorruptSourceIsQueryFailure(t *testing.T) {
	src := filepath.Join(t.TempDir(), "History")
	require.NoError(t, os.WriteFile(src, []byte("definitely not sqlite"), 0o644))
	r, err := NewReader(Options{Source: src, ScratchDir: t.TempDir()})
	require.NoError(t, err)

	_, err = r.ReadNew(context.Background(), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQueryFailed))
}

func TestReadNew_SchemaMismatchIsQueryFailure(t *testing.T) {
	src := testutil.HistoryFile(t, t.TempDir())
	r, err := NewReader(Options{Source: src, ScratchDir: t.TempDir(), Table: "visits"})
	require.NoError(t, err)

	_, err = r.ReadNew(context.Background(), 0)
	assert.True(t, errors.Is(err, ErrQueryFailed))
}

func TestReadNew_OverwritesScratchWithoutLeftovers(t *testing.T) {
	scratchDir := t.TempDir()
	src := testutil.HistoryFile(t, t.TempDir())
	r, err := NewReader(Options{Source: src, ScratchDir: scratchDir})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := r.ReadNew(context.Background(), 0)
		require.NoError(t, err)
	}
	_, err = os.Stat(r.Scratch())
	require.NoError(t, err)

	leftovers, _ := filepath.Glob(filepath.Join(scratchDir, ".shortwatch-tmp-*"))
	assert.Empty(t, leftovers)
}

func TestReadNew_DoesNotTouchSource(t *testing.T) {
	r, src := newReader(t, ModeAll)
	testutil.AddVisit(t, src, "https://www.youtube.com/shorts/abc", 100)
	before, err := os.ReadFile(src)
	require.NoError(t, err)

	_, err = r.ReadNew(context.Background(), 0)
	require.NoError(t, err)

	after, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestNewReader_Validation(t *testing.T) {
	_, err := NewReader(Options{})
	assert.Error(t, err)

	_, err = NewReader(Options{Source: "History", Table: "urls; DROP TABLE urls"})
	assert.Error(t, err)

	_, err = NewReader(Options{Source: "History", Mode: "sometimes"})
	assert.Error(t, err)
}

func TestScratchPath_Deterministic(t *testing.T) {
	a := ScratchPath("/tmp", "/home/u/.config/google-chrome/Default/History")
	b := ScratchPath("/tmp", "/home/u/.config/google-chrome/Default/History")
	c := ScratchPath("/tmp", "/home/u/.config/chromium/Default/History")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
