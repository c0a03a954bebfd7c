package indicators

import (
	"math"

	"mtfchart/pkg/bars"
)

// SMA returns the simple moving average of prices. Positions without a full
// window are NaN so callers can filter them before plotting.
func SMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) == 0 {
		return []float64{}
	}
	result := nanSeries(len(prices))
	if len(prices) < period {
		return result
	}
	sum := 0.0
	for i, p := range prices {
		sum += p
		if i >= period {
			sum -= prices[i-period]
		}
		if i >= period-1 {
			result[i] = sum / float64(period)
		}
	}
	return result
}

// RSI computes the Relative Strength Index with Wilder smoothing. The first
// value lands at index period, seeded by the plain mean of the opening moves.
func RSI(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) == 0 {
		return []float64{}
	}
	out := nanSeries(len(prices))
	n := float64(period)
	var up, down float64
	for i := 1; i < len(prices); i++ {
		gain := math.Max(prices[i]-prices[i-1], 0)
		loss := math.Max(prices[i-1]-prices[i], 0)
		if i <= period {
			up += gain / n
			down += loss / n
			if i < period {
				continue
			}
		} else {
			up = (up*(n-1) + gain) / n
			down = (down*(n-1) + loss) / n
		}
		out[i] = strength(up, down)
	}
	return out
}

// ATR computes the Average True Range over candles using Wilder smoothing,
// seeded with the mean true range of the first window.
func ATR(series []bars.Candle, period int) []float64 {
	if period <= 0 || len(series) == 0 {
		return []float64{}
	}
	atr := nanSeries(len(series))
	if len(series) < period {
		return atr
	}
	tr := make([]float64, len(series))
	for i, c := range series {
		if i == 0 {
			tr[i] = c.H - c.L
			continue
		}
		prevClose := series[i-1].C
		tr[i] = math.Max(c.H-c.L, math.Max(math.Abs(c.H-prevClose), math.Abs(c.L-prevClose)))
	}

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += tr[i]
	}
	atr[period-1] = seed / float64(period)
	for i := period; i < len(series); i++ {
		atr[i] = (atr[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return atr
}

// Last returns the final finite value of series.
func Last(series []float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			return series[i], true
		}
	}
	return 0, false
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// strength maps average gain and loss onto the 0..100 RSI scale. A flat
// window reads as neutral.
func strength(up, down float64) float64 {
	if down == 0 {
		if up == 0 {
			return 50
		}
		return 100
	}
	return 100 - 100/(1+up/down)
}
