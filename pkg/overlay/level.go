package overlay

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tags where a level comes from.
type Kind string

const (
	KindQuote      Kind = "quote"
	KindConstraint Kind = "constraint"
	KindPosition   Kind = "position"
	KindOrder      Kind = "order"
	KindSetup      Kind = "setup"
	KindReview     Kind = "review"
	KindPattern    Kind = "pattern"
	KindRange      Kind = "range"
	KindSession    Kind = "session"
	KindDrag       Kind = "drag"
)

// Style is the line dash style.
type Style string

const (
	StyleSolid  Style = "solid"
	StyleDashed Style = "dashed"
)

// Priorities used by the compositor. Higher wins the dedupe band.
const (
	PriorityQuote        = 10
	PriorityPosition     = 9
	PriorityOrder        = 9
	PrioritySetupEntry   = 8
	PrioritySetupStop    = 7
	PriorityPatternBreak = 6
	PriorityReview       = 6
	PriorityPatternSwing = 5
	PriorityPatternZone  = 4
	PriorityConstraint   = 4
	PrioritySession      = 3
	PriorityRange        = 2
)

// Colors are hex strings parsed by the renderer.
const (
	ColorQuote      = "#f5c542"
	ColorConstraint = "#7a7a8c"
	ColorEntry      = "#4f9dff"
	ColorStopLoss   = "#ff5c5c"
	ColorTakeProfit = "#3ecf8e"
	ColorOrder      = "#c08cff"
	ColorSetup      = "#ffa94d"
	ColorReview     = "#e599f7"
	ColorPattern    = "#66d9e8"
	ColorSession    = "#8ce99a"
	ColorRange      = "#adb5bd"
	ColorDrag       = "#ffffff"
)

// Level is one horizontal price annotation. Levels are rebuilt every render.
type Level struct {
	ID        string         `json:"id,omitempty"`
	Kind      Kind           `json:"kind"`
	Price     float64        `json:"price"`
	Label     string         `json:"label"`
	Color     string         `json:"color"`
	Style     Style          `json:"style"`
	Priority  int            `json:"priority"`
	Draggable bool           `json:"draggable"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Key identifies a level in the forced+selected union.
func (l Level) Key() string {
	if l.ID != "" {
		return l.ID
	}
	return fmt.Sprintf("%s:%s:%s", l.Label, strconv.FormatFloat(l.Price, 'f', -1, 64), l.Kind)
}

// DragPrefix marks the key of a drag preview.
const DragPrefix = "drag:"

// DragID keys the preview of the level originID so it never shares a key
// with the level being dragged.
func DragID(originID string) string {
	if strings.HasPrefix(originID, DragPrefix) {
		return originID
	}
	return DragPrefix + originID
}

// DragPreview turns origin into the transient drag-kind level drawn at price.
// The origin stays hit-testable; the preview never is.
func DragPreview(origin Level, price float64) Level {
	meta := make(map[string]any, len(origin.Meta)+2)
	for k, v := range origin.Meta {
		meta[k] = v
	}
	if _, ok := meta["origin"]; !ok {
		meta["origin"] = origin.ID
		meta["from"] = origin.Price
	}
	return Level{
		ID:       DragID(origin.ID),
		Kind:     KindDrag,
		Price:    price,
		Label:    origin.Label,
		Color:    ColorDrag,
		Style:    StyleDashed,
		Priority: origin.Priority,
		Meta:     meta,
	}
}

// Forced reports levels that bypass ranking and the cap.
func (l Level) Forced() bool {
	switch l.Kind {
	case KindPosition, KindOrder, KindDrag:
		return true
	}
	return false
}

// Prices extracts the price of every level.
func Prices(levels []Level) []float64 {
	out := make([]float64, 0, len(levels))
	for _, l := range levels {
		out = append(out, l.Price)
	}
	return out
}

// Draggables returns the levels a pointer may grab. Drag previews are
// excluded even when flagged.
func Draggables(levels []Level) []Level {
	var out []Level
	for _, l := range levels {
		if l.Draggable && l.Kind != KindDrag {
			out = append(out, l)
		}
	}
	return out
}
