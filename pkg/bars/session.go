package bars

import "math"

// Session names a trading session by UTC hour.
type Session string

const (
	SessionAsia    Session = "asia"
	SessionLondon  Session = "london"
	SessionNewYork Session = "newyork"
	SessionOff     Session = "off"
)

// SessionOf classifies a timestamp (epoch ms) into a session.
func SessionOf(ts int64) Session {
	hour := int((ts%dayMs + dayMs) % dayMs / hourMs)
	switch {
	case hour < 7:
		return SessionAsia
	case hour < 12:
		return SessionLondon
	case hour < 21:
		return SessionNewYork
	default:
		return SessionOff
	}
}

// SessionBlock is a contiguous run of bars in the same session.
// Start and End are inclusive indices into the series passed to SessionBlocks.
type SessionBlock struct {
	Session Session
	Start   int
	End     int
	High    float64
	Low     float64
}

// SessionBlocks groups a series into contiguous same-session blocks. Only
// resolutions up to one hour carry session structure; wider bars return nil.
// Off-hours runs are not reported.
func SessionBlocks(series []Candle, r Resolution) []SessionBlock {
	if len(series) == 0 || !r.Intraday() || r.Millis() > hourMs {
		return nil
	}
	var blocks []SessionBlock
	var cur *SessionBlock
	for i, c := range series {
		s := SessionOf(c.T)
		contiguous := cur != nil && cur.Session == s && c.T-series[i-1].T <= hourMs*2
		if !contiguous {
			if cur != nil && cur.Session != SessionOff {
				blocks = append(blocks, *cur)
			}
			cur = &SessionBlock{Session: s, Start: i, End: i, High: c.H, Low: c.L}
			continue
		}
		cur.End = i
		cur.High = math.Max(cur.High, c.H)
		cur.Low = math.Min(cur.Low, c.L)
	}
	if cur != nil && cur.Session != SessionOff {
		blocks = append(blocks, *cur)
	}
	return blocks
}

// DayBoundaries returns indices i where series[i] starts a new UTC day.
func DayBoundaries(series []Candle) []int {
	var out []int
	for i := 1; i < len(series); i++ {
		if series[i].T/dayMs != series[i-1].T/dayMs {
			out = append(out, i)
		}
	}
	return out
}
