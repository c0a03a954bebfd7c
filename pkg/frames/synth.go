package frames

import (
	"math"

	"mtfchart/pkg/bars"
)

// BarClose is emitted when a tick opens a new bucket and the previous bar is
// final.
type BarClose struct {
	Symbol     string          `json:"symbol"`
	FrameID    string          `json:"frameId"`
	Resolution bars.Resolution `json:"resolution"`
	Closed     bars.Candle     `json:"closed"`
	Series     []bars.Candle   `json:"series"`
}

// applyTick folds one price into the tail of series. It returns the series to
// keep, whether anything changed, and the closed bar when a new bucket opened.
// The input slice is never modified: changes land on a copy.
func applyTick(series []bars.Candle, res bars.Resolution, capacity int, price float64, ts int64) ([]bars.Candle, bool, *bars.Candle) {
	if len(series) == 0 || price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) || !res.Valid() {
		return series, false, nil
	}
	bucket := bars.BucketStart(ts, res)
	last := series[len(series)-1]

	switch {
	case bucket < last.T:
		return series, false, nil

	case bucket == last.T:
		h := math.Max(last.H, price)
		l := math.Min(last.L, price)
		if h == last.H && l == last.L && last.C == price {
			return series, false, nil
		}
		out := bars.Clone(series)
		tail := &out[len(out)-1]
		tail.H, tail.L, tail.C = h, l, price
		return out, true, nil

	default:
		closed := last
		o := last.C
		next := bars.Candle{T: bucket, O: o, H: math.Max(o, price), L: math.Min(o, price), C: price}
		out := make([]bars.Candle, 0, len(series)+1)
		out = append(out, series...)
		out = append(out, next)
		if capacity > 0 && len(out) > capacity {
			out = out[len(out)-capacity:]
		}
		return out, true, &closed
	}
}
