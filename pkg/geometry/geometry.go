package geometry

import (
	"math"

	"mtfchart/pkg/bars"
)

const (
	// PadFraction widens the price span on both sides.
	PadFraction = 0.08
	// FlatPadFraction is used when every price is equal: pad by 1% of |max|.
	FlatPadFraction = 0.01
)

// Rect is a pixel rectangle.
type Rect struct {
	X, Y, W, H float64
}

// Empty reports a zero-area rectangle.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Contains reports whether (x, y) lies inside r, edges included.
func (r Rect) Contains(x, y float64) bool {
	return !r.Empty() && x >= r.X && x <= r.X+r.W && y >= r.Y && y <= r.Y+r.H
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.X + r.W }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.H }

// PlotMeta is the price/pixel transform of one frame for one render. The
// renderer and the interaction engine must both read the same instance.
type PlotMeta struct {
	FrameID    string          `json:"frameId"`
	Resolution bars.Resolution `json:"resolution"`
	Plot       Rect            `json:"plot"`
	PaddedMin  float64         `json:"paddedMin"`
	PaddedMax  float64         `json:"paddedMax"`
	PriceRange float64         `json:"priceRange"`
}

// Project computes the transform for a frame from its visible bars and every
// candidate overlay price. It returns false when there is nothing to scale.
func Project(frameID string, res bars.Resolution, plot Rect, visible []bars.Candle, overlayPrices []float64) (PlotMeta, bool) {
	lo, hi := math.Inf(1), math.Inf(-1)
	see := func(p float64) {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return
		}
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}
	for _, c := range visible {
		see(c.L)
		see(c.H)
	}
	for _, p := range overlayPrices {
		see(p)
	}
	if math.IsInf(lo, 1) {
		return PlotMeta{}, false
	}

	pad := (hi - lo) * PadFraction
	if hi == lo {
		pad = math.Abs(hi) * FlatPadFraction
		if pad == 0 {
			pad = 1
		}
	}
	meta := PlotMeta{
		FrameID:    frameID,
		Resolution: res,
		Plot:       plot,
		PaddedMin:  lo - pad,
		PaddedMax:  hi + pad,
	}
	meta.PriceRange = meta.PaddedMax - meta.PaddedMin
	return meta, true
}

// Valid reports whether the transform can map in both directions.
func (m PlotMeta) Valid() bool {
	return !m.Plot.Empty() && m.PriceRange > 0
}

// PriceToY maps a price to a y pixel.
func (m PlotMeta) PriceToY(price float64) float64 {
	if m.PriceRange <= 0 {
		return m.Plot.Y + m.Plot.H/2
	}
	return m.Plot.Y + (m.PaddedMax-price)/m.PriceRange*m.Plot.H
}

// YToPrice inverts PriceToY after clamping y into the plot. It returns false
// for a missing or zero-area plot.
func (m PlotMeta) YToPrice(y float64) (float64, bool) {
	if !m.Valid() {
		return 0, false
	}
	y = math.Max(m.Plot.Y, math.Min(m.Plot.Bottom(), y))
	return m.PaddedMax - (y-m.Plot.Y)/m.Plot.H*m.PriceRange, true
}

// ClampY keeps y inside the plot rectangle.
func (m PlotMeta) ClampY(y float64) float64 {
	return math.Max(m.Plot.Y, math.Min(m.Plot.Bottom(), y))
}

// SlotWidth is the horizontal space of one bar when n bars share the plot.
func (m PlotMeta) SlotWidth(n int) float64 {
	if n <= 0 {
		return m.Plot.W
	}
	return m.Plot.W / float64(n)
}

// BarX returns the x centre of bar i out of n.
func (m PlotMeta) BarX(i, n int) float64 {
	return m.Plot.X + (float64(i)+0.5)*m.SlotWidth(n)
}
