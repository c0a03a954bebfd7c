package interaction

import (
	"math"
	"sync"

	"github.com/google/uuid"

	"mtfchart/pkg/bars"
	"mtfchart/pkg/geometry"
	"mtfchart/pkg/overlay"
)

// PlotLookup returns the transform used for the pixels on screen.
// *geometry.Registry implements it.
type PlotLookup interface {
	Lookup(frameID string, fullscreen bool) (geometry.PlotMeta, bool)
}

// Option customises an Engine.
type Option func(*Engine)

// WithHitTolerance overrides the hit-test radius in pixels.
func WithHitTolerance(px float64) Option {
	return func(e *Engine) {
		if px > 0 {
			e.hitTolerance = px
		}
	}
}

// WithDragThreshold overrides the drag confirmation distance in pixels.
func WithDragThreshold(px float64) Option {
	return func(e *Engine) {
		if px > 0 {
			e.dragThreshold = px
		}
	}
}

// Engine is the pointer gesture state machine. The active drag is the only
// state carried between events, and only until pointer-up.
type Engine struct {
	mu            sync.Mutex
	plots         PlotLookup
	hitTolerance  float64
	dragThreshold float64

	state         State
	drag          *DragState
	suppressClick bool
	mode          SelectMode
	priceStep     float64
}

// NewEngine builds an idle engine reading transforms from plots.
func NewEngine(plots PlotLookup, opts ...Option) *Engine {
	e := &Engine{
		plots:         plots,
		hitTolerance:  DefaultHitTolerancePx,
		dragThreshold: DefaultDragThresholdPx,
		state:         StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current gesture state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SetSelectMode arms or clears price-select. A select fires once and disarms.
func (e *Engine) SetSelectMode(mode SelectMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = mode
}

// SelectMode returns the armed price-select mode.
func (e *Engine) SelectMode() SelectMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// SetPriceStep sets the instrument tick size emitted prices snap to.
func (e *Engine) SetPriceStep(step float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.priceStep = step
}

// Active returns a copy of the running drag.
func (e *Engine) Active() (DragState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.drag == nil {
		return DragState{}, false
	}
	return *e.drag, true
}

// Preview returns the transient drag-kind level for the frame being dragged.
func (e *Engine) Preview() (string, overlay.Level, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.drag == nil {
		return "", overlay.Level{}, false
	}
	return e.drag.FrameID, e.preview(), true
}

func (e *Engine) preview() overlay.Level {
	return overlay.DragPreview(e.drag.Level, e.drag.LastPrice)
}

// PointerDown starts a drag when the pointer lands within tolerance of a
// draggable level inside the frame's plot. levels are the levels rendered in
// that frame. It reports whether a drag started.
func (e *Engine) PointerDown(p Pointer, levels []overlay.Level) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.drag != nil {
		return false
	}
	e.suppressClick = false
	e.state = StateIdle

	meta, ok := e.plots.Lookup(p.FrameID, p.fullscreen())
	if !ok || !meta.Valid() || !meta.Plot.Contains(p.X, p.Y) {
		return false
	}
	var (
		hit  *overlay.Level
		best = math.Inf(1)
	)
	candidates := overlay.Draggables(levels)
	for i := range candidates {
		dist := math.Abs(meta.PriceToY(candidates[i].Price) - p.Y)
		if dist <= e.hitTolerance && dist < best {
			best = dist
			hit = &candidates[i]
		}
	}
	if hit == nil {
		return false
	}
	price, _ := meta.YToPrice(p.Y)
	e.drag = &DragState{
		GestureID:  uuid.NewString(),
		Level:      *hit,
		FrameID:    p.FrameID,
		Resolution: meta.Resolution,
		Source:     p.Source,
		Container:  p.Container,
		Meta:       meta,
		StartY:     meta.PriceToY(hit.Price),
		StartPrice: hit.Price,
		LastPrice:  e.snap(price),
	}
	e.state = StateDragging
	return true
}

// PointerMove updates the preview of an active drag. Events from any frame
// or from outside every frame are mapped through the transform captured at
// pointer-down.
func (e *Engine) PointerMove(p Pointer) (overlay.Level, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.drag == nil {
		return overlay.Level{}, false
	}
	e.track(p.Y)
	return e.preview(), true
}

// PointerUp ends the gesture. A drag that moved past the threshold yields a
// LevelUpdate and swallows the following click; otherwise the click is let
// through.
func (e *Engine) PointerUp(p Pointer) *LevelUpdate {
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.drag
	if d == nil {
		e.state = StateClickPending
		return nil
	}
	e.track(p.Y)
	e.drag = nil
	if !d.DidMove {
		e.state = StateClickPending
		return nil
	}
	e.state = StateIdle
	e.suppressClick = true
	return &LevelUpdate{
		GestureID:  d.GestureID,
		LevelID:    d.Level.ID,
		Price:      d.LastPrice,
		FrameID:    d.FrameID,
		Resolution: d.Resolution,
		Source:     d.Source,
		Meta:       d.Meta,
	}
}

// Cancel drops an active drag without emitting anything.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drag = nil
	e.state = StateIdle
}

// Click handles a plain click. It reports whether the click propagates; a
// click right after a completed drag is swallowed. With a select mode armed,
// the clicked price is returned and the mode disarms.
func (e *Engine) Click(p Pointer) (*PriceSelect, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.drag != nil {
		return nil, false
	}
	e.state = StateIdle
	if e.suppressClick {
		e.suppressClick = false
		return nil, false
	}
	if e.mode == SelectNone {
		return nil, true
	}
	meta, ok := e.plots.Lookup(p.FrameID, p.fullscreen())
	if !ok {
		return nil, true
	}
	price, ok := meta.YToPrice(p.Y)
	if !ok {
		return nil, true
	}
	sel := &PriceSelect{
		Price:      e.snap(price),
		FrameID:    p.FrameID,
		Resolution: meta.Resolution,
		Source:     p.Source,
		Mode:       e.mode,
	}
	e.mode = SelectNone
	return sel, true
}

// track re-inverts y through the drag's snapshot transform.
func (e *Engine) track(y float64) {
	d := e.drag
	price, ok := d.Meta.YToPrice(y)
	if !ok {
		return
	}
	d.LastPrice = e.snap(price)
	if math.Abs(d.Meta.ClampY(y)-d.StartY) > e.dragThreshold {
		d.DidMove = true
	}
}

func (e *Engine) snap(price float64) float64 {
	return bars.SnapToStep(price, e.priceStep)
}
