package interaction

import (
	"errors"
	"fmt"

	"mtfchart/pkg/bars"
	"mtfchart/pkg/geometry"
	"mtfchart/pkg/overlay"
)

const (
	// DefaultHitTolerancePx is how far from a level a pointer-down still grabs it.
	DefaultHitTolerancePx = 6.0
	// DefaultDragThresholdPx separates a drag from pointer jitter.
	DefaultDragThresholdPx = 2.0
)

// ErrUnknownMode is returned for an unsupported price-select mode.
var ErrUnknownMode = errors.New("interaction: unknown select mode")

// State is the gesture state.
type State string

const (
	StateIdle         State = "idle"
	StateDragging     State = "dragging"
	StateClickPending State = "click-pending"
)

// Source tells whether a pointer event came from a frame or the fullscreen view.
type Source string

const (
	SourceFrame      Source = "frame"
	SourceFullscreen Source = "fullscreen"
)

// SelectMode is the order-ticket field a plain click fills.
type SelectMode string

const (
	SelectNone  SelectMode = ""
	SelectEntry SelectMode = "entry"
	SelectSL    SelectMode = "sl"
	SelectTP    SelectMode = "tp"
)

// ParseSelectMode validates a mode name.
func ParseSelectMode(raw string) (SelectMode, error) {
	switch m := SelectMode(raw); m {
	case SelectNone, SelectEntry, SelectSL, SelectTP:
		return m, nil
	default:
		return SelectNone, fmt.Errorf("%w: %q", ErrUnknownMode, raw)
	}
}

// Pointer is one pointer event in surface pixels. An empty FrameID means the
// event happened outside every tracked frame.
type Pointer struct {
	FrameID   string  `json:"frameId"`
	Source    Source  `json:"source"`
	Container string  `json:"container,omitempty"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

func (p Pointer) fullscreen() bool { return p.Source == SourceFullscreen }

// DragState lives from pointer-down on a draggable level to pointer-up.
type DragState struct {
	GestureID  string
	Level      overlay.Level
	FrameID    string
	Resolution bars.Resolution
	Source     Source
	Container  string
	Meta       geometry.PlotMeta
	StartY     float64
	StartPrice float64
	LastPrice  float64
	DidMove    bool
}

// LevelUpdate asks the host to move a broker level to Price.
type LevelUpdate struct {
	GestureID  string            `json:"gestureId"`
	LevelID    string            `json:"levelId"`
	Price      float64           `json:"price"`
	FrameID    string            `json:"frameId"`
	Resolution bars.Resolution   `json:"resolution"`
	Source     Source            `json:"source"`
	Meta       geometry.PlotMeta `json:"meta"`
}

// PriceSelect hands a clicked price to the order ticket.
type PriceSelect struct {
	Price      float64         `json:"price"`
	FrameID    string          `json:"frameId"`
	Resolution bars.Resolution `json:"resolution"`
	Source     Source          `json:"source"`
	Mode       SelectMode      `json:"mode"`
}
