package overlay

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"mtfchart/pkg/bars"
	"mtfchart/pkg/broker"
)

const (
	// DefaultRangeBars is the rolling window for the range high/low.
	DefaultRangeBars = 20
	// MaxSetupWatchers bounds how many watchers contribute setup levels.
	MaxSetupWatchers = 2
)

// Inputs is everything the compositor reads for one frame render.
type Inputs struct {
	Symbol     string
	Resolution bars.Resolution
	// Bars is the full series; Visible is the trailing slice on screen.
	Bars    []bars.Candle
	Visible []bars.Candle

	Quote       *broker.Quote
	Constraints *broker.Constraints
	Positions   []broker.Position
	Orders      []broker.Order
	Setups      []Setup
	Patterns    []Pattern
	Reviews     []Review
	// Drag is the transient preview of an active gesture.
	Drag *Level

	Visibility Visibility
	RangeBars  int
}

// Compose builds every candidate level for one frame. Ranking and dedupe are
// left to Select.
func Compose(in Inputs) []Level {
	var out []Level
	v := in.Visibility

	if in.Quote != nil && (in.Symbol == "" || broker.SameSymbol(in.Quote.Symbol, in.Symbol)) {
		if p := in.Quote.Price(); p > 0 {
			if v.Quote {
				out = append(out, Level{
					ID: "quote", Kind: KindQuote, Price: p, Label: "Last",
					Color: ColorQuote, Style: StyleSolid, Priority: PriorityQuote,
				})
			}
			if v.Constraints && in.Constraints != nil && in.Constraints.MinStopDistance > 0 {
				d := in.Constraints.MinStopDistance
				out = append(out,
					Level{ID: "constraint:upper", Kind: KindConstraint, Price: p + d, Label: "Min stop +",
						Color: ColorConstraint, Style: StyleDashed, Priority: PriorityConstraint},
					Level{ID: "constraint:lower", Kind: KindConstraint, Price: p - d, Label: "Min stop -",
						Color: ColorConstraint, Style: StyleDashed, Priority: PriorityConstraint},
				)
			}
		}
	}

	if v.Positions {
		out = append(out, positionLevels(in.Symbol, in.Positions)...)
	}
	if v.Orders {
		out = append(out, orderLevels(in.Symbol, in.Orders)...)
	}
	if v.Setups {
		out = append(out, setupLevels(in.Symbol, in.Setups)...)
	}
	if v.Patterns {
		out = append(out, patternLevels(in.Symbol, in.Resolution, in.Visible, in.Patterns)...)
	}
	if v.Reviews {
		out = append(out, reviewLevels(in.Symbol, in.Resolution, in.Reviews)...)
	}
	if v.Sessions {
		out = append(out, sessionLevels(in.Bars, in.Resolution)...)
	}
	if v.Range {
		out = append(out, rangeLevels(in.Bars, in.RangeBars)...)
	}
	if in.Drag != nil {
		out = append(out, DragPreview(*in.Drag, in.Drag.Price))
	}
	return out
}

func positionLevels(symbol string, positions []broker.Position) []Level {
	var out []Level
	for _, p := range positions {
		if !matchSymbol(symbol, p.Symbol) {
			continue
		}
		tag := fmt.Sprintf("%s %g", p.Side, p.Volume)
		if p.EntryPrice > 0 {
			out = append(out, Level{
				ID: broker.PositionLevelID(p.ID, broker.FieldEntry), Kind: KindPosition, Price: p.EntryPrice,
				Label: "Entry " + tag, Color: ColorEntry, Style: StyleSolid, Priority: PriorityPosition,
				Meta: map[string]any{"positionId": p.ID},
			})
		}
		if p.StopLoss > 0 {
			out = append(out, Level{
				ID: broker.PositionLevelID(p.ID, broker.FieldSL), Kind: KindPosition, Price: p.StopLoss,
				Label: "SL " + tag, Color: ColorStopLoss, Style: StyleDashed, Priority: PriorityPosition,
				Draggable: true, Meta: map[string]any{"positionId": p.ID, "field": broker.FieldSL},
			})
		}
		if p.TakeProfit > 0 {
			out = append(out, Level{
				ID: broker.PositionLevelID(p.ID, broker.FieldTP), Kind: KindPosition, Price: p.TakeProfit,
				Label: "TP " + tag, Color: ColorTakeProfit, Style: StyleDashed, Priority: PriorityPosition,
				Draggable: true, Meta: map[string]any{"positionId": p.ID, "field": broker.FieldTP},
			})
		}
	}
	return out
}

func orderLevels(symbol string, orders []broker.Order) []Level {
	var out []Level
	for _, o := range orders {
		if !matchSymbol(symbol, o.Symbol) {
			continue
		}
		tag := strings.TrimSpace(fmt.Sprintf("%s %s %g", o.Side, o.Type, o.Volume))
		fields := []struct {
			field string
			price float64
			label string
			color string
			style Style
		}{
			{broker.FieldPrice, o.Price, "Order " + tag, ColorOrder, StyleSolid},
			{broker.FieldSL, o.StopLoss, "Order SL", ColorStopLoss, StyleDashed},
			{broker.FieldTP, o.TakeProfit, "Order TP", ColorTakeProfit, StyleDashed},
		}
		for _, f := range fields {
			if f.price <= 0 {
				continue
			}
			out = append(out, Level{
				ID: broker.OrderLevelID(o.ID, f.field), Kind: KindOrder, Price: f.price,
				Label: f.label, Color: f.color, Style: f.style, Priority: PriorityOrder,
				Draggable: true, Meta: map[string]any{"orderId": o.ID, "field": f.field},
			})
		}
	}
	return out
}

// setupLevels keeps the most recent unresolved setup per watcher, for at
// most MaxSetupWatchers watchers, newest first.
func setupLevels(symbol string, setups []Setup) []Level {
	latest := make(map[string]Setup)
	for _, s := range setups {
		if s.Resolved || !matchSymbol(symbol, s.Symbol) {
			continue
		}
		watcher := s.Watcher
		if watcher == "" {
			watcher = s.ID
		}
		if prev, ok := latest[watcher]; !ok || s.TimestampMs > prev.TimestampMs {
			latest[watcher] = s
		}
	}
	picked := make([]Setup, 0, len(latest))
	for _, s := range latest {
		picked = append(picked, s)
	}
	sort.Slice(picked, func(i, j int) bool {
		if picked[i].TimestampMs != picked[j].TimestampMs {
			return picked[i].TimestampMs > picked[j].TimestampMs
		}
		return picked[i].Watcher < picked[j].Watcher
	})
	if len(picked) > MaxSetupWatchers {
		picked = picked[:MaxSetupWatchers]
	}

	var out []Level
	for _, s := range picked {
		name := s.Watcher
		if name == "" {
			name = "Setup"
		}
		meta := map[string]any{"setupId": s.ID, "watcher": s.Watcher}
		if s.Entry > 0 {
			out = append(out, Level{ID: "setup:" + s.ID + ":entry", Kind: KindSetup, Price: s.Entry,
				Label: name + " entry", Color: ColorSetup, Style: StyleDashed, Priority: PrioritySetupEntry, Meta: meta})
		}
		if s.StopLoss > 0 {
			out = append(out, Level{ID: "setup:" + s.ID + ":sl", Kind: KindSetup, Price: s.StopLoss,
				Label: name + " SL", Color: ColorStopLoss, Style: StyleDashed, Priority: PrioritySetupStop, Meta: meta})
		}
		if s.TakeProfit > 0 {
			out = append(out, Level{ID: "setup:" + s.ID + ":tp", Kind: KindSetup, Price: s.TakeProfit,
				Label: name + " TP", Color: ColorTakeProfit, Style: StyleDashed, Priority: PrioritySetupStop, Meta: meta})
		}
	}
	return out
}

// patternLevels keeps patterns whose timestamp falls inside the visible bar
// range, one per pattern type, newest first.
func patternLevels(symbol string, res bars.Resolution, visible []bars.Candle, patterns []Pattern) []Level {
	if len(visible) == 0 {
		return nil
	}
	from := visible[0].T
	to := visible[len(visible)-1].T + res.Millis()

	candidates := make([]Pattern, 0, len(patterns))
	for _, p := range patterns {
		if !matchSymbol(symbol, p.Symbol) || !matchTimeframe(res, p.Timeframe) {
			continue
		}
		if p.TimestampMs < from || p.TimestampMs >= to {
			continue
		}
		candidates = append(candidates, p)
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].TimestampMs > candidates[j].TimestampMs })

	seenType := make(map[string]struct{})
	var out []Level
	for _, p := range candidates {
		typ := strings.ToLower(p.Type)
		if _, ok := seenType[typ]; ok {
			continue
		}
		seenType[typ] = struct{}{}
		for i, pl := range p.Levels {
			if pl.Price <= 0 {
				continue
			}
			label := pl.Name
			if label == "" {
				label = p.Type
			}
			out = append(out, Level{
				ID: fmt.Sprintf("pattern:%s:%d", p.ID, i), Kind: KindPattern, Price: pl.Price,
				Label: label, Color: ColorPattern, Style: StyleDashed, Priority: patternPriority(pl.Role),
				Meta: map[string]any{"patternId": p.ID, "type": p.Type},
			})
		}
	}
	return out
}

func patternPriority(role string) int {
	switch strings.ToLower(role) {
	case RoleBreak:
		return PriorityPatternBreak
	case RoleSwing:
		return PriorityPatternSwing
	default:
		return PriorityPatternZone
	}
}

func reviewLevels(symbol string, res bars.Resolution, reviews []Review) []Level {
	var out []Level
	for _, r := range reviews {
		if r.Price <= 0 || !matchSymbol(symbol, r.Symbol) || !matchTimeframe(res, r.Timeframe) {
			continue
		}
		label := r.Label
		if label == "" {
			label = "Review"
		}
		out = append(out, Level{
			ID: "review:" + r.ID, Kind: KindReview, Price: r.Price, Label: label,
			Color: ColorReview, Style: StyleDashed, Priority: PriorityReview,
		})
	}
	return out
}

// sessionLevels marks the high and low of the most recent session block.
func sessionLevels(series []bars.Candle, res bars.Resolution) []Level {
	blocks := bars.SessionBlocks(series, res)
	if len(blocks) == 0 {
		return nil
	}
	b := blocks[len(blocks)-1]
	name := strings.ToUpper(string(b.Session[:1])) + string(b.Session[1:])
	return []Level{
		{ID: "session:high", Kind: KindSession, Price: b.High, Label: name + " high",
			Color: ColorSession, Style: StyleDashed, Priority: PrioritySession},
		{ID: "session:low", Kind: KindSession, Price: b.Low, Label: name + " low",
			Color: ColorSession, Style: StyleDashed, Priority: PrioritySession},
	}
}

func rangeLevels(series []bars.Candle, n int) []Level {
	if n <= 0 {
		n = DefaultRangeBars
	}
	window := bars.Tail(series, n)
	if len(window) == 0 {
		return nil
	}
	hi, lo := math.Inf(-1), math.Inf(1)
	for _, c := range window {
		hi = math.Max(hi, c.H)
		lo = math.Min(lo, c.L)
	}
	label := fmt.Sprintf("%d-bar", len(window))
	return []Level{
		{ID: "range:high", Kind: KindRange, Price: hi, Label: label + " high",
			Color: ColorRange, Style: StyleDashed, Priority: PriorityRange},
		{ID: "range:low", Kind: KindRange, Price: lo, Label: label + " low",
			Color: ColorRange, Style: StyleDashed, Priority: PriorityRange},
	}
}

func matchSymbol(active, symbol string) bool {
	if active == "" {
		return true
	}
	return broker.SameSymbol(active, symbol)
}

func matchTimeframe(res bars.Resolution, timeframe string) bool {
	if strings.TrimSpace(timeframe) == "" {
		return true
	}
	parsed, err := bars.ParseResolution(timeframe)
	return err == nil && parsed == res
}
