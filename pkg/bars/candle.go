package bars

import "time"

// Candle is one OHLC bar. T is the bucket start in epoch milliseconds.
type Candle struct {
	T int64    `json:"t" msgpack:"t"`
	O float64  `json:"o" msgpack:"o"`
	H float64  `json:"h" msgpack:"h"`
	L float64  `json:"l" msgpack:"l"`
	C float64  `json:"c" msgpack:"c"`
	V *float64 `json:"v" msgpack:"v"`
}

// Time returns the bucket start as UTC time.
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.T).UTC()
}

// RawBar is an untyped bar record as delivered by a broker collaborator.
type RawBar map[string]any

// Clone returns a deep copy of the series.
func Clone(series []Candle) []Candle {
	if series == nil {
		return nil
	}
	out := make([]Candle, len(series))
	copy(out, series)
	for i := range out {
		if out[i].V != nil {
			v := *out[i].V
			out[i].V = &v
		}
	}
	return out
}

// Tail returns at most n trailing bars of series without copying.
func Tail(series []Candle, n int) []Candle {
	if n <= 0 {
		return series[:0]
	}
	if len(series) > n {
		return series[len(series)-n:]
	}
	return series
}

// Closes extracts close prices.
func Closes(series []Candle) []float64 {
	out := make([]float64, len(series))
	for i, c := range series {
		out[i] = c.C
	}
	return out
}
