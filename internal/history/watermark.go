package history

import (
	"fmt"
	"strconv"
	"time"
)

// Watermark is the visit timestamp of the newest record already handled, in
// microseconds of the history store's own clock. Only records strictly newer
// than the watermark are reported by Reader.ReadNew.
type Watermark int64

// Advance returns the later of w and ts. A watermark never moves backwards.
func (w Watermark) Advance(ts int64) Watermark {
	if Watermark(ts) > w {
		return Watermark(ts)
	}
	return w
}

// String implements fmt.Stringer.
func (w Watermark) String() string { return strconv.FormatInt(int64(w), 10) }

// Epoch selects the zero point of the history store's timestamps.
type Epoch string

const (
	// EpochWebKit counts microseconds since 1601-01-01 UTC (Chromium browsers).
	EpochWebKit Epoch = "webkit"
	// EpochUnix counts microseconds since 1970-01-01 UTC.
	EpochUnix Epoch = "unix"
)

// webkitOffset is the number of microseconds between 1601-01-01 and 1970-01-01.
const webkitOffset = int64(11644473600) * 1_000_000

// ParseEpoch validates an epoch name. Empty means webkit.
func ParseEpoch(s string) (Epoch, error) {
	switch Epoch(s) {
	case "", EpochWebKit:
		return EpochWebKit, nil
	case EpochUnix:
		return EpochUnix, nil
	}
	return "", fmt.Errorf("history: unknown epoch %q", s)
}

// At converts t to a watermark in epoch e.
func (e Epoch) At(t time.Time) Watermark {
	us := t.UnixMicro()
	if e == EpochUnix {
		return Watermark(us)
	}
	return Watermark(us + webkitOffset)
}

// Time converts a watermark in epoch e back to wall-clock time.
func (e Epoch) Time(w Watermark) time.Time {
	us := int64(w)
	if e != EpochUnix {
		us -= webkitOffset
	}
	return time.UnixMicro(us).UTC()
}

// Now returns the current time as a watermark in epoch e.
func (e Epoch) Now() Watermark { return e.At(time.Now()) }
