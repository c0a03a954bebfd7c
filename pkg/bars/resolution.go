package bars

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Resolution identifies a bar width, e.g. "1m" or "4h".
type Resolution string

const (
	Res1m  Resolution = "1m"
	Res5m  Resolution = "5m"
	Res15m Resolution = "15m"
	Res30m Resolution = "30m"
	Res1h  Resolution = "1h"
	Res4h  Resolution = "4h"
	Res1D  Resolution = "1D"
	Res1W  Resolution = "1W"
)

// ErrUnknownResolution is returned when an alias cannot be mapped to a supported resolution.
var ErrUnknownResolution = errors.New("bars: unknown resolution")

const (
	minuteMs int64 = 60_000
	hourMs         = 60 * minuteMs
	dayMs          = 24 * hourMs
	weekMs         = 7 * dayMs
)

// resolutionMs is the single source of truth for bucket widths.
var resolutionMs = map[Resolution]int64{
	Res1m:  minuteMs,
	Res5m:  5 * minuteMs,
	Res15m: 15 * minuteMs,
	Res30m: 30 * minuteMs,
	Res1h:  hourMs,
	Res4h:  4 * hourMs,
	Res1D:  dayMs,
	Res1W:  weekMs,
}

// canonicalOrder is the display order of frames, shortest first.
var canonicalOrder = []Resolution{Res1m, Res5m, Res15m, Res30m, Res1h, Res4h, Res1D, Res1W}

// Resolutions returns all supported resolutions in canonical order.
func Resolutions() []Resolution {
	out := make([]Resolution, len(canonicalOrder))
	copy(out, canonicalOrder)
	return out
}

// Millis returns the bucket width in milliseconds, or 0 for unknown resolutions.
func (r Resolution) Millis() int64 {
	return resolutionMs[r]
}

// Duration returns the bucket width as a time.Duration.
func (r Resolution) Duration() time.Duration {
	return time.Duration(r.Millis()) * time.Millisecond
}

// Valid reports whether r is a supported resolution.
func (r Resolution) Valid() bool {
	_, ok := resolutionMs[r]
	return ok
}

// Intraday reports whether bars of this width are shorter than a day.
func (r Resolution) Intraday() bool {
	ms := r.Millis()
	return ms > 0 && ms < dayMs
}

// Rank returns the canonical position of r, or -1 when unsupported.
func (r Resolution) Rank() int {
	for i, candidate := range canonicalOrder {
		if candidate == r {
			return i
		}
	}
	return -1
}

func (r Resolution) String() string {
	return string(r)
}

// BucketStart aligns ts (epoch ms) to the start of its bucket.
func BucketStart(ts int64, r Resolution) int64 {
	width := r.Millis()
	if width <= 0 {
		return ts
	}
	bucket := ts / width
	if ts < 0 && ts%width != 0 {
		bucket--
	}
	return bucket * width
}

// ParseResolution maps loosely specified timeframe strings ("m5", "H1", "60",
// "1d", "W") onto a supported resolution.
func ParseResolution(raw string) (Resolution, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("%w: empty", ErrUnknownResolution)
	}
	if r := Resolution(value); r.Valid() {
		return r, nil
	}
	lowered := strings.ToLower(value)
	switch lowered {
	case "d", "day", "daily":
		return Res1D, nil
	case "w", "week", "weekly":
		return Res1W, nil
	}

	count, unit, ok := splitAlias(lowered)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownResolution, raw)
	}
	var unitMs int64
	switch unit {
	case 'm':
		unitMs = minuteMs
	case 'h':
		unitMs = hourMs
	case 'd':
		unitMs = dayMs
	case 'w':
		unitMs = weekMs
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownResolution, raw)
	}
	want := count * unitMs
	for _, r := range canonicalOrder {
		if r.Millis() == want {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownResolution, raw)
}

// splitAlias accepts "15m", "m15" and bare minute counts like "240".
func splitAlias(s string) (int64, byte, bool) {
	if s == "" {
		return 0, 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, 'm', n > 0
	}
	last := s[len(s)-1]
	if n, err := strconv.ParseInt(s[:len(s)-1], 10, 64); err == nil && n > 0 {
		return n, last, true
	}
	first := s[0]
	if n, err := strconv.ParseInt(s[1:], 10, 64); err == nil && n > 0 {
		return n, first, true
	}
	return 0, 0, false
}
