package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"
	"time"

	"mtfchart/pkg/bars"
	"mtfchart/pkg/broker"
	"mtfchart/pkg/frames"
	"mtfchart/pkg/geometry"
	"mtfchart/pkg/indicators"
	"mtfchart/pkg/overlay"
)

// Layout in pixels around the plot rectangle.
const (
	HeaderHeight = 18
	FooterHeight = 16
	AxisWidth    = 72
	Margin       = 4
	PriceTicks   = 5
	TimeTicks    = 5
)

// Placeholder texts for frames without bars.
const (
	LoadingText      = "Loading broker history..."
	NotConnectedText = "Broker not connected"
)

// Theme holds the palette.
type Theme struct {
	Background color.RGBA
	Grid       color.RGBA
	Text       color.RGBA
	Muted      color.RGBA
	Up         color.RGBA
	Down       color.RGBA
	SMAFast    color.RGBA
	SMASlow    color.RGBA
	ATRBand    color.RGBA
	Spread     color.RGBA
	DayGuide   color.RGBA
	Sessions   map[bars.Session]color.RGBA
}

// DefaultTheme is a dark palette.
func DefaultTheme() Theme {
	return Theme{
		Background: color.RGBA{R: 0x12, G: 0x14, B: 0x1a, A: 0xff},
		Grid:       color.RGBA{R: 0x26, G: 0x2a, B: 0x33, A: 0xff},
		Text:       color.RGBA{R: 0xd8, G: 0xdc, B: 0xe4, A: 0xff},
		Muted:      color.RGBA{R: 0x80, G: 0x86, B: 0x94, A: 0xff},
		Up:         color.RGBA{R: 0x3e, G: 0xcf, B: 0x8e, A: 0xff},
		Down:       color.RGBA{R: 0xff, G: 0x5c, B: 0x5c, A: 0xff},
		SMAFast:    color.RGBA{R: 0xf5, G: 0xc5, B: 0x42, A: 0xff},
		SMASlow:    color.RGBA{R: 0x4f, G: 0x9d, B: 0xff, A: 0xff},
		ATRBand:    color.RGBA{R: 0x99, G: 0x80, B: 0xff, A: 0xff},
		Spread:     color.RGBA{R: 0xf5, G: 0xc5, B: 0x42, A: 0xff},
		DayGuide:   color.RGBA{R: 0x3a, G: 0x40, B: 0x4c, A: 0xff},
		Sessions: map[bars.Session]color.RGBA{
			bars.SessionAsia:    {R: 0x4f, G: 0x9d, B: 0xff, A: 0xff},
			bars.SessionLondon:  {R: 0x3e, G: 0xcf, B: 0x8e, A: 0xff},
			bars.SessionNewYork: {R: 0xff, G: 0xa9, B: 0x4d, A: 0xff},
		},
	}
}

// Options toggles layers and sets indicator periods.
type Options struct {
	Sessions    bool
	DayGuides   bool
	Spread      bool
	Indicators  bool
	QuoteMarker bool

	SMAFast   int
	SMASlow   int
	ATRPeriod int
	RSIPeriod int

	Theme Theme
}

// DefaultOptions enables every layer.
func DefaultOptions() Options {
	return Options{
		Sessions:    true,
		DayGuides:   true,
		Spread:      true,
		Indicators:  true,
		QuoteMarker: true,
		SMAFast:     20,
		SMASlow:     50,
		ATRPeriod:   14,
		RSIPeriod:   14,
		Theme:       DefaultTheme(),
	}
}

// FrameView is everything needed to draw one frame.
type FrameView struct {
	Symbol    string
	Frame     frames.Frame
	Levels    []overlay.Level
	Quote     *broker.Quote
	PriceStep float64
	Connected bool
	// Hint is a one-line notice such as a constraints failure.
	Hint    string
	Options Options
}

// PlotRect is the candle area of a surface of the given bounds.
func PlotRect(b image.Rectangle) geometry.Rect {
	return geometry.Rect{
		X: float64(b.Min.X + Margin),
		Y: float64(b.Min.Y + HeaderHeight),
		W: math.Max(0, float64(b.Dx()-Margin-AxisWidth)),
		H: math.Max(0, float64(b.Dy()-HeaderHeight-FooterHeight)),
	}
}

// Draw paints a frame. meta must come from geometry.Project over the same
// visible bars and level prices; ok=false draws the placeholder.
func Draw(dst *image.RGBA, v FrameView, meta geometry.PlotMeta, ok bool) {
	th := v.Options.Theme
	if th.Sessions == nil {
		th = DefaultTheme()
	}
	fillRect(dst, dst.Bounds(), th.Background)

	visible := v.Frame.Visible()
	if len(visible) == 0 || !ok || !meta.Valid() {
		drawHeader(dst, v, th, nil)
		drawPlaceholder(dst, v, th)
		return
	}

	closes := bars.Closes(v.Frame.State.Bars)
	offset := len(v.Frame.State.Bars) - len(visible)
	n := len(visible)

	drawGrid(dst, meta, th)
	if v.Options.Sessions {
		drawSessions(dst, meta, visible, v.Frame.Resolution, th)
	}
	if v.Options.DayGuides && v.Frame.Resolution.Intraday() {
		for _, i := range bars.DayBoundaries(visible) {
			x := px(meta.BarX(i, n) - meta.SlotWidth(n)/2)
			vLine(dst, x, px(meta.Plot.Y), px(meta.Plot.Bottom()), th.DayGuide, true)
		}
	}
	if v.Options.Spread && v.Quote != nil && v.Quote.HasSpread() {
		top := px(meta.PriceToY(v.Quote.Ask))
		bottom := max(px(meta.PriceToY(v.Quote.Bid)), top+1)
		blendRect(dst, image.Rect(px(meta.Plot.X), top, px(meta.Plot.Right()), bottom), withAlpha(th.Spread, 0x30))
	}
	if v.Options.Indicators {
		atr, ok := indicators.Last(indicators.ATR(v.Frame.State.Bars, v.Options.ATRPeriod))
		if ok && atr > 0 {
			last := closes[len(closes)-1]
			top := px(meta.ClampY(meta.PriceToY(last + atr)))
			bottom := px(meta.ClampY(meta.PriceToY(last - atr)))
			blendRect(dst, image.Rect(px(meta.Plot.X), top, px(meta.Plot.Right()), bottom), withAlpha(th.ATRBand, 0x18))
		}
	}

	drawCandles(dst, meta, visible, th)

	if v.Options.QuoteMarker {
		price := visible[n-1].C
		if v.Quote != nil && v.Quote.Price() > 0 {
			price = v.Quote.Price()
		}
		x := px(meta.BarX(n-1, n))
		y := px(meta.ClampY(meta.PriceToY(price)))
		fillRect(dst, image.Rect(x-2, y-2, x+3, y+3), th.Text)
	}
	if v.Options.Indicators {
		drawSMA(dst, meta, indicators.SMA(closes, v.Options.SMAFast), offset, n, th.SMAFast)
		drawSMA(dst, meta, indicators.SMA(closes, v.Options.SMASlow), offset, n, th.SMASlow)
	}

	drawLevels(dst, meta, v.Levels, v.PriceStep, th)
	drawPriceAxis(dst, meta, v.PriceStep, th)
	drawTimeAxis(dst, meta, visible, v.Frame.Resolution, th)

	var rsi *float64
	if v.Options.Indicators {
		if val, ok := indicators.Last(indicators.RSI(closes, v.Options.RSIPeriod)); ok {
			rsi = &val
		}
	}
	drawHeader(dst, v, th, rsi)
	if v.Hint != "" {
		text(dst, px(meta.Plot.X)+2, px(meta.Plot.Bottom())-textHeight-2, v.Hint, th.Muted)
	}
}

// PlaceholderText picks the message for a frame without bars.
func PlaceholderText(v FrameView) string {
	switch {
	case !v.Connected:
		return NotConnectedText
	case v.Frame.State.Error != "":
		return v.Frame.State.Error
	default:
		return LoadingText
	}
}

func drawPlaceholder(dst *image.RGBA, v FrameView, th Theme) {
	msg := PlaceholderText(v)
	b := dst.Bounds()
	x := b.Min.X + (b.Dx()-textWidth(msg))/2
	y := b.Min.Y + (b.Dy()-textHeight)/2
	text(dst, max(x, b.Min.X+Margin), y, msg, th.Muted)
}

func drawHeader(dst *image.RGBA, v FrameView, th Theme, rsi *float64) {
	label := v.Frame.Label
	if label == "" {
		label = v.Frame.ID
	}
	header := fmt.Sprintf("%s %s", v.Symbol, label)
	if n := len(v.Frame.State.Bars); n > 0 {
		header += fmt.Sprintf("  %d bars", n)
	}
	if rsi != nil {
		header += fmt.Sprintf("  RSI%d %.1f", v.Options.RSIPeriod, *rsi)
	}
	if v.Frame.State.Loading {
		header += "  loading"
	}
	text(dst, dst.Bounds().Min.X+Margin, dst.Bounds().Min.Y+2, header, th.Text)
	if src := v.Frame.State.Source; src != "" {
		w := textWidth(src)
		text(dst, dst.Bounds().Max.X-w-Margin, dst.Bounds().Min.Y+2, src, th.Muted)
	}
}

func drawGrid(dst *image.RGBA, meta geometry.PlotMeta, th Theme) {
	for i := 0; i < PriceTicks; i++ {
		y := px(meta.Plot.Y + meta.Plot.H*float64(i)/float64(PriceTicks-1))
		hLine(dst, px(meta.Plot.X), px(meta.Plot.Right()), y, th.Grid, false)
	}
}

func drawSessions(dst *image.RGBA, meta geometry.PlotMeta, visible []bars.Candle, res bars.Resolution, th Theme) {
	n := len(visible)
	slot := meta.SlotWidth(n)
	for _, b := range bars.SessionBlocks(visible, res) {
		c, ok := th.Sessions[b.Session]
		if !ok {
			continue
		}
		x0 := px(meta.BarX(b.Start, n) - slot/2)
		x1 := px(meta.BarX(b.End, n) + slot/2)
		blendRect(dst, image.Rect(x0, px(meta.Plot.Y), x1, px(meta.Plot.Bottom())), withAlpha(c, 0x14))
	}
}

func drawCandles(dst *image.RGBA, meta geometry.PlotMeta, visible []bars.Candle, th Theme) {
	n := len(visible)
	bodyW := max(1, px(meta.SlotWidth(n)*0.6))
	for i, c := range visible {
		col := th.Up
		if c.C < c.O {
			col = th.Down
		}
		x := px(meta.BarX(i, n))
		vLine(dst, x, px(meta.PriceToY(c.H)), px(meta.PriceToY(c.L)), col, false)
		top := px(meta.PriceToY(math.Max(c.O, c.C)))
		bottom := max(px(meta.PriceToY(math.Min(c.O, c.C))), top+1)
		left := x - bodyW/2
		fillRect(dst, image.Rect(left, top, left+bodyW, bottom), col)
	}
}

// drawSMA plots the points of series that fall in the visible window.
func drawSMA(dst *image.RGBA, meta geometry.PlotMeta, series []float64, offset, n int, c color.RGBA) {
	prevX, prevY, have := 0, 0, false
	for i := offset; i < len(series); i++ {
		v := series[i]
		if math.IsNaN(v) {
			have = false
			continue
		}
		x := px(meta.BarX(i-offset, n))
		y := px(meta.ClampY(meta.PriceToY(v)))
		if have {
			line(dst, prevX, prevY, x, y, c)
		}
		prevX, prevY, have = x, y, true
	}
}

type tag struct {
	level overlay.Level
	lineY float64
	y     float64
	text  string
}

func drawLevels(dst *image.RGBA, meta geometry.PlotMeta, levels []overlay.Level, step float64, th Theme) {
	if len(levels) == 0 {
		return
	}
	tags := make([]tag, 0, len(levels))
	for _, l := range levels {
		y := meta.ClampY(meta.PriceToY(l.Price))
		c := ParseColor(l.Color, th.Text)
		hLine(dst, px(meta.Plot.X), px(meta.Plot.Right()), px(y), c, l.Style == overlay.StyleDashed)
		label := bars.FormatPrice(l.Price, step)
		if l.Label != "" {
			label = l.Label + " " + label
		}
		tags = append(tags, tag{level: l, lineY: y, y: y - textHeight/2, text: label})
	}
	placeTags(tags, meta.Plot.Y, meta.Plot.Bottom(), textHeight+2)
	for _, t := range tags {
		c := ParseColor(t.level.Color, th.Text)
		w := textWidth(t.text) + 4
		right := px(meta.Plot.Right())
		box := image.Rect(right-w, px(t.y), right, px(t.y)+textHeight+1)
		fillRect(dst, box, th.Background)
		hLine(dst, box.Min.X, box.Max.X-1, box.Min.Y, c, false)
		text(dst, box.Min.X+2, box.Min.Y, t.text, c)
	}
}

// placeTags spreads tag boxes vertically so none overlap while keeping each
// as close to its line as possible, all inside [top, bottom].
func placeTags(tags []tag, top, bottom, height float64) {
	if len(tags) == 0 {
		return
	}
	sort.SliceStable(tags, func(i, j int) bool { return tags[i].lineY < tags[j].lineY })
	maxTop := bottom - height
	for i := range tags {
		y := math.Max(top, math.Min(tags[i].y, maxTop))
		if i > 0 {
			y = math.Max(y, tags[i-1].y+height)
		}
		tags[i].y = y
	}
	// overflow at the bottom: push back up
	for i := len(tags) - 1; i >= 0; i-- {
		limit := maxTop
		if i < len(tags)-1 {
			limit = tags[i+1].y - height
		}
		if tags[i].y > limit {
			tags[i].y = limit
		}
	}
	for i := range tags {
		tags[i].y = math.Max(tags[i].y, top)
	}
}

func drawPriceAxis(dst *image.RGBA, meta geometry.PlotMeta, step float64, th Theme) {
	x := px(meta.Plot.Right()) + 4
	for i := 0; i < PriceTicks; i++ {
		frac := float64(i) / float64(PriceTicks-1)
		price := meta.PaddedMax - meta.PriceRange*frac
		y := px(meta.Plot.Y + meta.Plot.H*frac)
		text(dst, x, y-textHeight/2, bars.FormatPrice(price, step), th.Muted)
	}
}

func drawTimeAxis(dst *image.RGBA, meta geometry.PlotMeta, visible []bars.Candle, res bars.Resolution, th Theme) {
	n := len(visible)
	y := px(meta.Plot.Bottom()) + 2
	last := -1
	for _, i := range TimeTickIndices(n, TimeTicks) {
		if i == last {
			continue
		}
		last = i
		label := FormatTick(visible[i].T, res)
		x := px(meta.BarX(i, n)) - textWidth(label)/2
		x = max(px(meta.Plot.X), min(x, px(meta.Plot.Right())-textWidth(label)))
		text(dst, x, y, label, th.Muted)
	}
}

// TimeTickIndices samples k indices evenly across n bars, first and last
// included.
func TimeTickIndices(n, k int) []int {
	if n <= 0 || k <= 0 {
		return nil
	}
	if n == 1 || k == 1 {
		return []int{n - 1}
	}
	out := make([]int, 0, k)
	for i := 0; i < k; i++ {
		out = append(out, int(math.Round(float64(i)*float64(n-1)/float64(k-1))))
	}
	return out
}

// FormatTick renders a bar time for the axis.
func FormatTick(ms int64, res bars.Resolution) string {
	t := time.UnixMilli(ms).UTC()
	switch {
	case res.Millis() < bars.Res1D.Millis():
		if t.Hour() == 0 && t.Minute() == 0 {
			return t.Format("Jan 02")
		}
		return t.Format("15:04")
	case res == bars.Res1W:
		return t.Format("2006-01-02")
	default:
		return t.Format("Jan 02")
	}
}
