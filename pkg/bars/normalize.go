package bars

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	timeKeys   = []string{"t", "time_msc", "timestamp", "time", "ts", "date"}
	openKeys   = []string{"o", "open"}
	highKeys   = []string{"h", "high"}
	lowKeys    = []string{"l", "low"}
	closeKeys  = []string{"c", "close"}
	volumeKeys = []string{"v", "volume", "tick_volume", "real_volume"}
)

// secondsCutoff separates epoch seconds from epoch milliseconds.
const secondsCutoff = 1e12

// Normalize converts heterogeneous raw records into candles sorted by time.
// Records whose OHLC cannot be resolved to finite numbers are dropped.
// When two records share a bucket start the later one wins.
func Normalize(raw []RawBar) []Candle {
	out := make([]Candle, 0, len(raw))
	for _, rec := range raw {
		if c, ok := normalizeOne(rec); ok {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].T < out[j].T })

	deduped := out[:0]
	for _, c := range out {
		if n := len(deduped); n > 0 && deduped[n-1].T == c.T {
			deduped[n-1] = c
			continue
		}
		deduped = append(deduped, c)
	}
	return deduped
}

func normalizeOne(rec RawBar) (Candle, bool) {
	if rec == nil {
		return Candle{}, false
	}
	ts, ok := lookupTime(rec)
	if !ok {
		return Candle{}, false
	}
	o, okO := lookupNumber(rec, openKeys...)
	h, okH := lookupNumber(rec, highKeys...)
	l, okL := lookupNumber(rec, lowKeys...)
	c, okC := lookupNumber(rec, closeKeys...)

	if !okO && okC {
		o, okO = c, true
	}
	if !okC && okO {
		c, okC = o, true
	}
	if !okH && okO {
		h, okH = o, true
		if okL {
			h = math.Max(o, l)
		}
	}
	if !okL && okO {
		l, okL = o, true
		if okH {
			l = math.Min(o, h)
		}
	}
	if !(okO && okH && okL && okC) {
		return Candle{}, false
	}

	candle := Candle{T: ts, O: o, H: h, L: l, C: c}
	if v, ok := lookupNumber(rec, volumeKeys...); ok {
		candle.V = &v
	}
	return candle, true
}

func lookupTime(rec RawBar) (int64, bool) {
	for _, key := range timeKeys {
		raw, ok := rec[key]
		if !ok || raw == nil {
			continue
		}
		if s, isString := raw.(string); isString {
			if parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(s)); err == nil {
				return parsed.UnixMilli(), true
			}
		}
		v, ok := toFloat(raw)
		if !ok || v <= 0 {
			continue
		}
		if v < secondsCutoff {
			v *= 1000
		}
		return int64(v), true
	}
	return 0, false
}

func lookupNumber(rec RawBar, keys ...string) (float64, bool) {
	for _, key := range keys {
		if raw, ok := rec[key]; ok {
			if v, ok := toFloat(raw); ok {
				return v, true
			}
		}
	}
	return 0, false
}

func toFloat(raw any) (float64, bool) {
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int8:
		v = float64(n)
	case int16:
		v = float64(n)
	case int32:
		v = float64(n)
	case int64:
		v = float64(n)
	case uint:
		v = float64(n)
	case uint8:
		v = float64(n)
	case uint16:
		v = float64(n)
	case uint32:
		v = float64(n)
	case uint64:
		v = float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		v = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		v = f
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
