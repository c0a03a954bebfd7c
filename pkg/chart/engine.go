package chart

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"strings"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"mtfchart/pkg/broker"
	"mtfchart/pkg/frames"
	"mtfchart/pkg/geometry"
	"mtfchart/pkg/interaction"
	"mtfchart/pkg/overlay"
	"mtfchart/pkg/render"
	"mtfchart/pkg/snapshot"
)

// ErrNoFullscreen is returned when fullscreen rendering is requested without
// a fullscreen frame.
var ErrNoFullscreen = errors.New("chart: no fullscreen frame")

// Option customises an Engine.
type Option func(*Engine)

// WithNow overrides the clock for the engine and its frame manager.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithConstraints sets the optional per-instrument constraints source.
func WithConstraints(c broker.ConstraintsProvider) Option {
	return func(e *Engine) { e.constraints = c }
}

// WithFrameOptions passes extra options to the frame manager.
func WithFrameOptions(opts ...frames.Option) Option {
	return func(e *Engine) { e.frameOpts = append(e.frameOpts, opts...) }
}

// Engine composes the frame manager, overlay compositor, renderer and
// interaction state machine behind one host handle. Feed state lives under
// mu; drawing is serialised by renderMu. Neither lock is held while events
// are published.
type Engine struct {
	cfg         Config
	now         func() time.Time
	history     broker.HistoryProvider
	constraints broker.ConstraintsProvider
	frameOpts   []frames.Option

	frames    *frames.Manager
	plots     *geometry.Registry
	surfaces  *render.Surfaces
	gestures  *interaction.Engine
	scheduler *frames.Scheduler
	bus       *Bus
	selector  overlay.Selector

	renderMu   sync.Mutex
	fullscreen *image.RGBA

	mu           sync.Mutex
	quote        *broker.Quote
	cons         *broker.Constraints
	hint         string
	connected    bool
	positions    []broker.Position
	orders       []broker.Order
	setups       []overlay.Setup
	patterns     []overlay.Pattern
	reviews      []overlay.Review
	visibility   overlay.Visibility
	rendered     map[string][]overlay.Level
	fullLevels   []overlay.Level
	fullscreenID string
}

// NewEngine builds an engine reading history from h. cfg zero values take
// the defaults.
func NewEngine(h broker.HistoryProvider, cfg Config, opts ...Option) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:        cfg,
		now:        time.Now,
		history:    h,
		plots:      geometry.NewRegistry(),
		surfaces:   render.NewSurfaces(cfg.Width, cfg.Height),
		bus:        NewBus(),
		selector:   overlay.Selector{MaxSelected: cfg.MaxOverlayLevels, DedupBandPct: cfg.DedupBandPct},
		connected:  h != nil,
		visibility: overlay.DefaultVisibility(),
		rendered:   make(map[string][]overlay.Level),
	}
	for _, opt := range opts {
		opt(e)
	}
	frameOpts := append([]frames.Option{
		frames.WithNow(e.now),
		frames.WithMaxActive(cfg.MaxActive),
		frames.WithInitialFrames(cfg.InitialFrames...),
	}, e.frameOpts...)
	e.frames = frames.NewManager(h, frameOpts...)
	e.gestures = interaction.NewEngine(e.plots,
		interaction.WithHitTolerance(cfg.HitTolerancePx),
		interaction.WithDragThreshold(cfg.DragThresholdPx),
	)
	e.scheduler = frames.NewScheduler(cfg.RefreshInterval, cfg.RefreshJitter, e.scheduledRefresh)
	return e
}

// Start arms the periodic refresh. ctx bounds every scheduled run.
func (e *Engine) Start(ctx context.Context) error {
	return e.scheduler.Start(ctx)
}

// Stop halts the periodic refresh.
func (e *Engine) Stop() {
	e.scheduler.Stop()
}

// Subscribe registers an event listener; see Bus.Subscribe.
func (e *Engine) Subscribe(buffer int) (<-chan Event, func()) {
	return e.bus.Subscribe(buffer)
}

// Symbol returns the focused instrument.
func (e *Engine) Symbol() string { return e.frames.Symbol() }

// Catalog returns the frame catalog.
func (e *Engine) Catalog() *frames.Catalog { return e.frames.Catalog() }

// Active returns the active frame ids in canonical order.
func (e *Engine) Active() []string { return e.frames.Active() }

// Frames returns a copy of every active frame.
func (e *Engine) Frames() []frames.Frame { return e.frames.Frames() }

// FocusSymbol switches the instrument. Plots and gestures are reset,
// constraints reloaded and every active frame force-refreshed. Constraint
// failures only produce a hint.
func (e *Engine) FocusSymbol(ctx context.Context, symbol string) error {
	symbol = broker.NormalizeSymbol(symbol)
	if symbol == "" {
		return frames.ErrNoSymbol
	}
	e.gestures.Cancel()
	e.plots.Reset()

	cons, hint := e.loadConstraints(ctx, symbol)
	step := 0.0
	if cons != nil {
		step = cons.PriceStep
	}
	e.gestures.SetPriceStep(step)

	e.mu.Lock()
	if e.quote != nil && !broker.SameSymbol(e.quote.Symbol, symbol) {
		e.quote = nil
	}
	e.cons = cons
	e.hint = hint
	e.rendered = make(map[string][]overlay.Level)
	e.fullLevels = nil
	e.mu.Unlock()

	e.bus.Publish(e.event(EventSymbolChanged, symbol))
	if hint != "" {
		ev := e.event(EventConstraintHint, symbol)
		ev.Hint = hint
		e.bus.Publish(ev)
	}

	err := e.frames.FocusSymbol(ctx, symbol)
	if rerr := e.scheduler.Rearm(); rerr != nil {
		logx.WithContext(ctx).Errorf("chart: rearm refresh symbol=%s err=%v", symbol, rerr)
	}
	e.publishUpdated(symbol, e.frames.Active())
	if err != nil {
		logx.WithContext(ctx).Infof("chart: focus symbol=%s err=%v", symbol, err)
	}
	return err
}

func (e *Engine) loadConstraints(ctx context.Context, symbol string) (*broker.Constraints, string) {
	if e.constraints == nil {
		return nil, ""
	}
	cons, err := e.constraints.GetInstrumentConstraints(ctx, symbol)
	if err != nil {
		logx.WithContext(ctx).Errorf("chart: load constraints symbol=%s err=%v", symbol, err)
		return nil, broker.ConstraintHint(err)
	}
	return cons, ""
}

// EnsureFrameActive activates the frame matching alias, evicting the oldest
// active frame at capacity, and returns the resolved frame id.
func (e *Engine) EnsureFrameActive(ctx context.Context, alias string) (string, error) {
	id, change, err := e.frames.EnsureFrameActive(alias)
	if err != nil {
		return "", err
	}
	return id, e.applyChange(ctx, change)
}

// ToggleFrame flips one frame's membership in the active set.
func (e *Engine) ToggleFrame(ctx context.Context, id string) (frames.Change, error) {
	change, err := e.frames.ToggleFrame(id)
	if err != nil {
		return frames.Change{}, err
	}
	return change, e.applyChange(ctx, change)
}

// SetActiveFrames replaces the active set.
func (e *Engine) SetActiveFrames(ctx context.Context, ids []string) (frames.Change, error) {
	change := e.frames.SetActiveFrames(ids)
	return change, e.applyChange(ctx, change)
}

// applyChange releases removed frames and force-loads added ones. Fetch
// failures stay on their frames; only cancellation is returned.
func (e *Engine) applyChange(ctx context.Context, change frames.Change) error {
	if change.Empty() {
		return nil
	}
	for _, id := range change.Removed {
		if d, ok := e.gestures.Active(); ok && d.FrameID == id {
			e.gestures.Cancel()
		}
		e.surfaces.Drop(id)
		e.plots.Drop(id)
	}

	e.mu.Lock()
	for _, id := range change.Removed {
		delete(e.rendered, id)
		if e.fullscreenID == id {
			e.fullscreenID = ""
			e.fullLevels = nil
		}
	}
	e.mu.Unlock()

	symbol := e.frames.Symbol()
	ev := e.event(EventFramesChanged, symbol)
	ev.Frames = e.frames.Active()
	ev.Change = &change
	e.bus.Publish(ev)

	if symbol == "" || len(change.Added) == 0 {
		return nil
	}
	err := e.frames.RefreshFrames(ctx, change.Added, true)
	e.publishUpdated(symbol, change.Added)
	if err != nil {
		logx.WithContext(ctx).Infof("chart: load added frames symbol=%s frames=%s err=%v",
			symbol, strings.Join(change.Added, ","), err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// Refresh fetches every active frame. force bypasses cached history.
func (e *Engine) Refresh(ctx context.Context, force bool) error {
	err := e.frames.Refresh(ctx, force)
	if !errors.Is(err, frames.ErrNoSymbol) {
		e.publishUpdated(e.frames.Symbol(), e.frames.Active())
	}
	return err
}

func (e *Engine) scheduledRefresh(ctx context.Context) {
	if e.frames.Symbol() == "" {
		return
	}
	if err := e.Refresh(ctx, false); err != nil {
		logx.WithContext(ctx).Infof("chart: scheduled refresh symbol=%s err=%v", e.frames.Symbol(), err)
	}
}

// SetForeground gates the periodic refresh.
func (e *Engine) SetForeground(on bool) {
	e.scheduler.SetForeground(on)
}

// SetConnected flips the broker connection flag used by placeholders.
func (e *Engine) SetConnected(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connected = on
}

// OnQuote folds a live quote into the active frames and publishes a
// bar-close event for every bucket that rolled over.
func (e *Engine) OnQuote(q broker.Quote) {
	symbol := e.frames.Symbol()
	if symbol == "" || (q.Symbol != "" && !broker.SameSymbol(q.Symbol, symbol)) {
		return
	}
	changed, closes := e.frames.ApplyQuote(q)

	e.mu.Lock()
	qc := q
	if qc.Symbol == "" {
		qc.Symbol = symbol
	}
	e.quote = &qc
	e.mu.Unlock()

	for i := range closes {
		ev := e.event(EventBarClose, symbol)
		ev.BarClose = &closes[i]
		e.bus.Publish(ev)
	}
	if len(changed) > 0 {
		e.publishUpdated(symbol, changed)
	}
}

// SetPositions replaces the open positions feed.
func (e *Engine) SetPositions(positions []broker.Position) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.positions = append([]broker.Position(nil), positions...)
}

// SetOrders replaces the pending orders feed.
func (e *Engine) SetOrders(orders []broker.Order) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orders = append([]broker.Order(nil), orders...)
}

// SetSetups replaces the setup signals feed.
func (e *Engine) SetSetups(setups []overlay.Setup) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setups = append([]overlay.Setup(nil), setups...)
}

// SetPatterns replaces the detected patterns feed.
func (e *Engine) SetPatterns(patterns []overlay.Pattern) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.patterns = append([]overlay.Pattern(nil), patterns...)
}

// SetReviews replaces the review annotations feed.
func (e *Engine) SetReviews(reviews []overlay.Review) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reviews = append([]overlay.Review(nil), reviews...)
}

// SetOverlayVisible toggles one overlay group.
func (e *Engine) SetOverlayVisible(group string, visible bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visibility.Set(group, visible)
}

// Visibility returns the overlay group switches.
func (e *Engine) Visibility() overlay.Visibility {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visibility
}

// Hint returns the current constraint hint, if any.
func (e *Engine) Hint() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hint
}

// SetSelectMode arms price-select for the next click. An empty mode clears it.
func (e *Engine) SetSelectMode(raw string) error {
	mode, err := interaction.ParseSelectMode(raw)
	if err != nil {
		return err
	}
	e.gestures.SetSelectMode(mode)
	return nil
}

// Resize sets one frame's surface size. The cached transform is dropped
// until the next draw.
func (e *Engine) Resize(frameID string, w, h int) {
	e.renderMu.Lock()
	defer e.renderMu.Unlock()
	if e.surfaces.Resize(frameID, w, h) {
		e.plots.Drop(frameID)
	}
}

// SetFullscreen shows frameID in the fullscreen surface. An empty id leaves
// fullscreen.
func (e *Engine) SetFullscreen(frameID string) error {
	if frameID != "" && !e.frames.IsActive(frameID) {
		return fmt.Errorf("%w: %s", frames.ErrUnknownFrame, frameID)
	}
	e.mu.Lock()
	prev := e.fullscreenID
	e.fullscreenID = frameID
	e.fullLevels = nil
	e.mu.Unlock()
	if prev != "" && prev != frameID {
		if d, ok := e.gestures.Active(); ok && d.Source == interaction.SourceFullscreen {
			e.gestures.Cancel()
		}
		e.plots.Drop(prev)
	}
	return nil
}

// Fullscreen returns the fullscreen frame id.
func (e *Engine) Fullscreen() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fullscreenID
}

// RenderFrame draws one active frame into its surface and returns it.
func (e *Engine) RenderFrame(frameID string) (*image.RGBA, error) {
	f, ok := e.frames.Frame(frameID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", frames.ErrUnknownFrame, frameID)
	}
	e.renderMu.Lock()
	defer e.renderMu.Unlock()
	dst := e.surfaces.Acquire(frameID)
	e.draw(dst, f, false)
	return dst, nil
}

// RenderAll draws every active frame.
func (e *Engine) RenderAll() map[string]*image.RGBA {
	out := make(map[string]*image.RGBA)
	e.renderMu.Lock()
	defer e.renderMu.Unlock()
	for _, f := range e.frames.Frames() {
		dst := e.surfaces.Acquire(f.ID)
		e.draw(dst, f, false)
		out[f.ID] = dst
	}
	return out
}

// RenderFullscreen draws the fullscreen frame.
func (e *Engine) RenderFullscreen() (*image.RGBA, error) {
	id := e.Fullscreen()
	if id == "" {
		return nil, ErrNoFullscreen
	}
	f, ok := e.frames.Frame(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", frames.ErrUnknownFrame, id)
	}
	e.renderMu.Lock()
	defer e.renderMu.Unlock()
	if e.fullscreen == nil {
		e.fullscreen = image.NewRGBA(image.Rect(0, 0, e.cfg.FullscreenWidth, e.cfg.FullscreenHeight))
	}
	e.draw(e.fullscreen, f, true)
	return e.fullscreen, nil
}

// draw composes, selects and paints one frame, then records the transform
// when bars were drawn. Callers hold renderMu.
func (e *Engine) draw(dst *image.RGBA, f frames.Frame, fullscreen bool) {
	symbol := e.frames.Symbol()
	in, view := e.inputs(symbol, f)
	if fid, lvl, ok := e.gestures.Preview(); ok && fid == f.ID {
		in.Drag = &lvl
	}

	candidates := overlay.Compose(in)
	plot := render.PlotRect(dst.Bounds())
	var (
		selected []overlay.Level
		meta     geometry.PlotMeta
		ok       bool
	)
	// The dedupe band is measured on the bars-only range. Overlay prices are
	// left out here since they are what is being selected.
	if base, baseOK := geometry.Project(f.ID, f.Resolution, plot, in.Visible, nil); baseOK {
		selected = e.selector.Select(candidates, base.PriceRange)
		meta, ok = geometry.Project(f.ID, f.Resolution, plot, in.Visible, overlay.Prices(selected))
	}
	view.Levels = selected
	render.Draw(dst, view, meta, ok)

	if !ok || !f.HasBars() {
		return
	}
	e.plots.Store(meta, fullscreen)
	e.mu.Lock()
	if fullscreen {
		e.fullLevels = selected
	} else {
		e.rendered[f.ID] = selected
	}
	e.mu.Unlock()
}

func (e *Engine) inputs(symbol string, f frames.Frame) (overlay.Inputs, render.FrameView) {
	e.mu.Lock()
	defer e.mu.Unlock()
	in := overlay.Inputs{
		Symbol:      symbol,
		Resolution:  f.Resolution,
		Bars:        f.State.Bars,
		Visible:     f.Visible(),
		Quote:       e.quote,
		Constraints: e.cons,
		Positions:   e.positions,
		Orders:      e.orders,
		Setups:      e.setups,
		Patterns:    e.patterns,
		Reviews:     e.reviews,
		Visibility:  e.visibility,
		RangeBars:   e.cfg.RangeBars,
	}
	step := 0.0
	if e.cons != nil {
		step = e.cons.PriceStep
	}
	view := render.FrameView{
		Symbol:    symbol,
		Frame:     f,
		Quote:     e.quote,
		PriceStep: step,
		Connected: e.connected,
		Hint:      e.hint,
		Options:   e.cfg.Render,
	}
	return in, view
}

// RenderedLevels returns the levels drawn by the latest render of a frame.
func (e *Engine) RenderedLevels(frameID string, fullscreen bool) []overlay.Level {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fullscreen {
		if frameID != "" && frameID != e.fullscreenID {
			return nil
		}
		return append([]overlay.Level(nil), e.fullLevels...)
	}
	return append([]overlay.Level(nil), e.rendered[frameID]...)
}

// PointerDown starts a drag on a rendered draggable level.
func (e *Engine) PointerDown(p interaction.Pointer) bool {
	return e.gestures.PointerDown(p, e.RenderedLevels(p.FrameID, p.Source == interaction.SourceFullscreen))
}

// PointerMove advances the active drag and returns the preview level.
func (e *Engine) PointerMove(p interaction.Pointer) (overlay.Level, bool) {
	return e.gestures.PointerMove(p)
}

// PointerUp resolves the active gesture and publishes a level update when
// the level moved.
func (e *Engine) PointerUp(p interaction.Pointer) *interaction.LevelUpdate {
	u := e.gestures.PointerUp(p)
	if u != nil {
		ev := e.event(EventLevelUpdate, e.frames.Symbol())
		ev.LevelUpdate = u
		e.bus.Publish(ev)
	}
	return u
}

// Click publishes a price select when a mode is armed. The bool reports
// whether the click should propagate to the host.
func (e *Engine) Click(p interaction.Pointer) (*interaction.PriceSelect, bool) {
	sel, propagate := e.gestures.Click(p)
	if sel != nil {
		ev := e.event(EventPriceSelect, e.frames.Symbol())
		ev.PriceSelect = sel
		e.bus.Publish(ev)
	}
	return sel, propagate
}

// CancelGesture drops an active drag without emitting anything.
func (e *Engine) CancelGesture() {
	e.gestures.Cancel()
}

// CaptureAll renders every active frame and returns detached copies keyed
// by frame id.
func (e *Engine) CaptureAll() map[string]*image.RGBA {
	out := make(map[string]*image.RGBA)
	for id, img := range e.RenderAll() {
		out[id] = cloneImage(img)
	}
	return out
}

// CaptureSnapshot renders the active frames and stacks those with bars into
// one image. It returns nil when no frame has data.
func (e *Engine) CaptureSnapshot() *image.RGBA {
	images := e.CaptureAll()
	fs := e.frames.Frames()
	panels := make([]snapshot.Panel, 0, len(fs))
	for _, f := range fs {
		panels = append(panels, snapshot.Panel{
			FrameID:     f.ID,
			Label:       f.Label,
			Bars:        len(f.State.Bars),
			UpdatedAtMs: f.State.FreshAtMs(),
			Image:       images[f.ID],
		})
	}
	return snapshot.Compose(snapshot.Request{
		Symbol:     e.frames.Symbol(),
		CapturedAt: e.now(),
		Panels:     panels,
		Theme:      e.cfg.Render.Theme,
	})
}

func (e *Engine) event(t EventType, symbol string) Event {
	return newEvent(t, symbol, e.now())
}

func (e *Engine) publishUpdated(symbol string, ids []string) {
	if len(ids) == 0 {
		return
	}
	ev := e.event(EventFramesUpdated, symbol)
	ev.Frames = append([]string(nil), ids...)
	e.bus.Publish(ev)
}

func cloneImage(src *image.RGBA) *image.RGBA {
	if src == nil {
		return nil
	}
	dst := image.NewRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}
