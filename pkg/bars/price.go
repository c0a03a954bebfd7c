package bars

import (
	"math"

	"github.com/shopspring/decimal"
)

// SnapToStep rounds price to the nearest multiple of step. A non-positive
// step returns price unchanged.
func SnapToStep(price, step float64) float64 {
	if step <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return price
	}
	d := decimal.NewFromFloat(price)
	s := decimal.NewFromFloat(step)
	snapped, _ := d.Div(s).Round(0).Mul(s).Float64()
	return snapped
}

// PriceDecimals picks display precision: the step's precision when known,
// otherwise a magnitude heuristic suited to FX, indices and crypto quotes.
func PriceDecimals(price, step float64) int32 {
	if step > 0 {
		if exp := decimal.NewFromFloat(step).Exponent(); exp < 0 {
			return -exp
		}
		return 0
	}
	abs := math.Abs(price)
	switch {
	case abs == 0:
		return 2
	case abs < 10:
		return 5
	case abs < 1000:
		return 3
	default:
		return 2
	}
}

// FormatPrice renders price with PriceDecimals precision.
func FormatPrice(price, step float64) string {
	return decimal.NewFromFloat(price).StringFixed(PriceDecimals(price, step))
}
