package chart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtfchart/pkg/bars"
	"mtfchart/pkg/broker"
	"mtfchart/pkg/frames"
	"mtfchart/pkg/interaction"
	"mtfchart/pkg/overlay"
)

var fixedNow = time.UnixMilli(1_700_000_040_000)

type fakeHistory struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeHistory) GetHistorySeries(_ context.Context, req broker.HistoryRequest) (*broker.HistorySeries, error) {
	f.mu.Lock()
	f.calls++
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return nil, errors.New("bridge down")
	}
	end := bars.BucketStart(fixedNow.UnixMilli(), req.Resolution)
	out := &broker.HistorySeries{Source: "fake", FetchedAtMs: fixedNow.UnixMilli()}
	for i := 59; i >= 0; i-- {
		c := 1.1000 + float64(i%7)*0.0002
		out.Bars = append(out.Bars, bars.RawBar{
			"time_msc": end - int64(i)*req.Resolution.Millis(),
			"open":     c, "high": c + 0.0004, "low": c - 0.0004, "close": c,
		})
	}
	return out, nil
}

func (f *fakeHistory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeConstraints struct {
	err error
}

func (f fakeConstraints) GetInstrumentConstraints(context.Context, string) (*broker.Constraints, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &broker.Constraints{MinStopDistance: 0.0005, PriceStep: 0.00001}, nil
}

func newTestEngine(t *testing.T, h broker.HistoryProvider, opts ...Option) *Engine {
	t.Helper()
	cfg := Config{InitialFrames: []string{"1m", "1h"}}
	opts = append([]Option{WithNow(func() time.Time { return fixedNow })}, opts...)
	return NewEngine(h, cfg, opts...)
}

func drain(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func types(events []Event) []EventType {
	out := make([]EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func TestFocusSymbolLoadsFramesAndPublishes(t *testing.T) {
	h := &fakeHistory{}
	e := newTestEngine(t, h, WithConstraints(fakeConstraints{}))
	ch, unsubscribe := e.Subscribe(16)
	defer unsubscribe()

	require.NoError(t, e.FocusSymbol(context.Background(), "eur/usd"))
	assert.Equal(t, "EURUSD", e.Symbol())
	assert.Equal(t, 2, h.count())
	for _, f := range e.Frames() {
		assert.True(t, f.HasBars(), f.ID)
		assert.Empty(t, f.State.Error)
	}

	evs := drain(ch)
	assert.Equal(t, []EventType{EventSymbolChanged, EventFramesUpdated}, types(evs))
	assert.Equal(t, []string{"1m", "1h"}, evs[1].Frames)
	assert.Empty(t, e.Hint())
}

func TestFocusSymbolConstraintFailureIsHint(t *testing.T) {
	e := newTestEngine(t, &fakeHistory{}, WithConstraints(fakeConstraints{err: broker.ErrMissingAccount}))
	ch, unsubscribe := e.Subscribe(16)
	defer unsubscribe()

	require.NoError(t, e.FocusSymbol(context.Background(), "EURUSD"))
	assert.NotEmpty(t, e.Hint())
	assert.Contains(t, types(drain(ch)), EventConstraintHint)
}

func TestFocusSymbolRejectsEmpty(t *testing.T) {
	e := newTestEngine(t, &fakeHistory{})
	assert.ErrorIs(t, e.FocusSymbol(context.Background(), " / "), frames.ErrNoSymbol)
}

func TestToggleFrameLoadsAddedAndDropsRemoved(t *testing.T) {
	h := &fakeHistory{}
	e := newTestEngine(t, h)
	ctx := context.Background()
	require.NoError(t, e.FocusSymbol(ctx, "EURUSD"))
	_, err := e.RenderFrame("1h")
	require.NoError(t, err)
	_, ok := e.plots.Lookup("1h", false)
	require.True(t, ok)

	ch, unsubscribe := e.Subscribe(16)
	defer unsubscribe()

	change, err := e.ToggleFrame(ctx, "15m")
	require.NoError(t, err)
	assert.Equal(t, []string{"15m"}, change.Added)
	assert.Equal(t, 3, h.count())
	f, ok := e.frames.Frame("15m")
	require.True(t, ok)
	assert.True(t, f.HasBars())

	change, err = e.ToggleFrame(ctx, "1h")
	require.NoError(t, err)
	assert.Equal(t, []string{"1h"}, change.Removed)
	_, ok = e.plots.Lookup("1h", false)
	assert.False(t, ok)
	_, ok = e.surfaces.Get("1h")
	assert.False(t, ok)

	evs := drain(ch)
	assert.Equal(t, []EventType{EventFramesChanged, EventFramesUpdated, EventFramesChanged}, types(evs))
	assert.Equal(t, []string{"1m", "15m"}, evs[2].Frames)
}

func TestEnsureFrameActiveResolvesAlias(t *testing.T) {
	e := newTestEngine(t, &fakeHistory{})
	id, err := e.EnsureFrameActive(context.Background(), "240")
	require.NoError(t, err)
	assert.Equal(t, "4h", id)
	assert.Contains(t, e.Active(), "4h")

	_, err = e.EnsureFrameActive(context.Background(), "7m")
	assert.ErrorIs(t, err, frames.ErrUnknownFrame)
}

func TestRefreshFailureKeepsBars(t *testing.T) {
	h := &fakeHistory{}
	e := newTestEngine(t, h)
	ctx := context.Background()
	require.NoError(t, e.FocusSymbol(ctx, "EURUSD"))

	h.mu.Lock()
	h.fail = true
	h.mu.Unlock()
	assert.Error(t, e.Refresh(ctx, true))
	for _, f := range e.Frames() {
		assert.True(t, f.HasBars())
		assert.NotEmpty(t, f.State.Error)
	}
}

func TestOnQuotePublishesBarClose(t *testing.T) {
	e := newTestEngine(t, &fakeHistory{})
	require.NoError(t, e.FocusSymbol(context.Background(), "EURUSD"))
	ch, unsubscribe := e.Subscribe(16)
	defer unsubscribe()

	next := bars.BucketStart(fixedNow.UnixMilli(), bars.Res1m) + bars.Res1m.Millis()
	e.OnQuote(broker.Quote{Symbol: "EURUSD", Bid: 1.1010, Ask: 1.1012, TimestampMs: next + 5})
	e.OnQuote(broker.Quote{Symbol: "GBPUSD", Last: 1.25, TimestampMs: next + 6})

	evs := drain(ch)
	require.NotEmpty(t, evs)
	assert.Equal(t, EventBarClose, evs[0].Type)
	require.NotNil(t, evs[0].BarClose)
	assert.Equal(t, "1m", evs[0].BarClose.FrameID)
	assert.Equal(t, EventFramesUpdated, evs[len(evs)-1].Type)

	f, _ := e.frames.Frame("1m")
	last := f.State.Bars[len(f.State.Bars)-1]
	assert.Equal(t, next, last.T)
	assert.InDelta(t, 1.1011, last.C, 1e-9)
}

func TestCaptureSnapshotNeedsData(t *testing.T) {
	e := newTestEngine(t, &fakeHistory{})
	assert.Nil(t, e.CaptureSnapshot())

	require.NoError(t, e.FocusSymbol(context.Background(), "EURUSD"))
	img := e.CaptureSnapshot()
	require.NotNil(t, img)
	assert.Equal(t, e.cfg.Width, img.Bounds().Dx())

	all := e.CaptureAll()
	assert.Len(t, all, 2)
	live, _ := e.surfaces.Get("1m")
	assert.NotSame(t, live, all["1m"])
}

func TestDragPositionStopPublishesLevelUpdate(t *testing.T) {
	e := newTestEngine(t, &fakeHistory{}, WithConstraints(fakeConstraints{}))
	require.NoError(t, e.FocusSymbol(context.Background(), "EURUSD"))
	e.SetPositions([]broker.Position{{ID: "42", Symbol: "EURUSD", Side: broker.SideBuy, Volume: 1, EntryPrice: 1.1005, StopLoss: 1.0998}})
	_, err := e.RenderFrame("1m")
	require.NoError(t, err)

	meta, ok := e.plots.Lookup("1m", false)
	require.True(t, ok)
	ch, unsubscribe := e.Subscribe(16)
	defer unsubscribe()

	x := meta.Plot.X + 10
	y := meta.PriceToY(1.0998)
	p := interaction.Pointer{FrameID: "1m", Source: interaction.SourceFrame, X: x, Y: y}
	require.True(t, e.PointerDown(p))

	p.Y = y - 30
	preview, ok := e.PointerMove(p)
	require.True(t, ok)
	assert.Greater(t, preview.Price, 1.0998)

	u := e.PointerUp(p)
	require.NotNil(t, u)
	assert.Equal(t, broker.PositionLevelID("42", "sl"), u.LevelID)
	assert.Greater(t, u.Price, 1.0998)
	assert.Equal(t, bars.SnapToStep(u.Price, 0.00001), u.Price)

	sel, propagate := e.Click(p)
	assert.Nil(t, sel)
	assert.False(t, propagate)

	evs := drain(ch)
	require.Len(t, evs, 1)
	assert.Equal(t, EventLevelUpdate, evs[0].Type)
	assert.Equal(t, u, evs[0].LevelUpdate)
}

func TestDragPreviewIsRenderedBesideOrigin(t *testing.T) {
	e := newTestEngine(t, &fakeHistory{}, WithConstraints(fakeConstraints{}))
	require.NoError(t, e.FocusSymbol(context.Background(), "EURUSD"))
	e.SetPositions([]broker.Position{{ID: "42", Symbol: "EURUSD", Side: broker.SideBuy, Volume: 1, EntryPrice: 1.1005, StopLoss: 1.0998}})
	_, err := e.RenderFrame("1m")
	require.NoError(t, err)

	meta, ok := e.plots.Lookup("1m", false)
	require.True(t, ok)
	p := interaction.Pointer{FrameID: "1m", Source: interaction.SourceFrame, X: meta.Plot.X + 10, Y: meta.PriceToY(1.0998)}
	require.True(t, e.PointerDown(p))
	p.Y -= 30
	preview, ok := e.PointerMove(p)
	require.True(t, ok)

	_, err = e.RenderFrame("1m")
	require.NoError(t, err)
	slID := broker.PositionLevelID("42", "sl")
	var origin, drag *overlay.Level
	for _, l := range e.RenderedLevels("1m", false) {
		switch {
		case l.Kind == overlay.KindDrag:
			drag = &l
		case l.ID == slID:
			origin = &l
		}
	}
	require.NotNil(t, drag, "drag preview missing from rendered levels")
	require.NotNil(t, origin)
	assert.Equal(t, overlay.DragID(slID), drag.ID)
	assert.InDelta(t, preview.Price, drag.Price, 1e-12)
	assert.InDelta(t, 1.0998, origin.Price, 1e-12)
	assert.False(t, drag.Draggable)

	e.CancelGesture()
	_, err = e.RenderFrame("1m")
	require.NoError(t, err)
	for _, l := range e.RenderedLevels("1m", false) {
		assert.NotEqual(t, overlay.KindDrag, l.Kind)
	}
}

func TestClickWithSelectModePublishesPriceSelect(t *testing.T) {
	e := newTestEngine(t, &fakeHistory{})
	require.NoError(t, e.FocusSymbol(context.Background(), "EURUSD"))
	_, err := e.RenderFrame("1h")
	require.NoError(t, err)
	meta, ok := e.plots.Lookup("1h", false)
	require.True(t, ok)

	require.NoError(t, e.SetSelectMode("entry"))
	assert.Error(t, e.SetSelectMode("limit"))
	ch, unsubscribe := e.Subscribe(16)
	defer unsubscribe()

	p := interaction.Pointer{FrameID: "1h", Source: interaction.SourceFrame, X: meta.Plot.X + 5, Y: meta.Plot.Y + meta.Plot.H/2}
	sel, propagate := e.Click(p)
	require.NotNil(t, sel)
	assert.True(t, propagate)
	assert.Equal(t, interaction.SelectEntry, sel.Mode)

	sel, _ = e.Click(p)
	assert.Nil(t, sel, "select mode is one-shot")

	evs := drain(ch)
	require.Len(t, evs, 1)
	assert.Equal(t, EventPriceSelect, evs[0].Type)
}

func TestFullscreenRender(t *testing.T) {
	e := newTestEngine(t, &fakeHistory{})
	_, err := e.RenderFullscreen()
	assert.ErrorIs(t, err, ErrNoFullscreen)
	assert.ErrorIs(t, e.SetFullscreen("4h"), frames.ErrUnknownFrame)

	require.NoError(t, e.FocusSymbol(context.Background(), "EURUSD"))
	require.NoError(t, e.SetFullscreen("1h"))
	img, err := e.RenderFullscreen()
	require.NoError(t, err)
	assert.Equal(t, e.cfg.FullscreenWidth, img.Bounds().Dx())
	meta, ok := e.plots.Lookup("1h", true)
	require.True(t, ok)
	assert.Equal(t, "1h", meta.FrameID)
}

func TestSetOverlayVisibleUnknownGroup(t *testing.T) {
	e := newTestEngine(t, &fakeHistory{})
	require.NoError(t, e.SetOverlayVisible("quote", false))
	assert.False(t, e.Visibility().Quote)
	assert.Error(t, e.SetOverlayVisible("weather", true))
}
