package interaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtfchart/pkg/bars"
	"mtfchart/pkg/geometry"
	"mtfchart/pkg/overlay"
)

// plot 400px tall over 1.10..1.11: 1.1050 sits at y=200, 1.1075 at y=100.
func newFixture(t *testing.T) (*Engine, []overlay.Level) {
	t.Helper()
	reg := geometry.NewRegistry()
	reg.Store(geometry.PlotMeta{
		FrameID:    "1h",
		Resolution: bars.Res1h,
		Plot:       geometry.Rect{X: 0, Y: 0, W: 600, H: 400},
		PaddedMin:  1.10,
		PaddedMax:  1.11,
		PriceRange: 0.01,
	}, false)
	levels := []overlay.Level{
		{ID: "pos:42:tp", Kind: overlay.KindPosition, Price: 1.1050, Draggable: true},
		{ID: "pos:42:entry", Kind: overlay.KindPosition, Price: 1.1049},
		{ID: "quote", Kind: overlay.KindQuote, Price: 1.1020},
	}
	return NewEngine(reg), levels
}

func TestDragEmitsOneLevelUpdate(t *testing.T) {
	e, levels := newFixture(t)
	down := Pointer{FrameID: "1h", Source: SourceFrame, X: 300, Y: 203}
	require.True(t, e.PointerDown(down, levels))
	assert.Equal(t, StateDragging, e.State())

	preview, ok := e.PointerMove(Pointer{FrameID: "1h", X: 300, Y: 150})
	require.True(t, ok)
	assert.Equal(t, overlay.KindDrag, preview.Kind)
	assert.InDelta(t, 1.10625, preview.Price, 1e-9)

	upd := e.PointerUp(Pointer{X: 300, Y: 100})
	require.NotNil(t, upd)
	assert.Equal(t, "pos:42:tp", upd.LevelID)
	assert.InDelta(t, 1.1075, upd.Price, 1e-9)
	assert.Equal(t, bars.Res1h, upd.Resolution)
	assert.Equal(t, SourceFrame, upd.Source)
	assert.NotEmpty(t, upd.GestureID)

	_, ok = e.Active()
	assert.False(t, ok, "gesture state is released on pointer-up")
}

func TestSuppressedClickAfterDrag(t *testing.T) {
	e, levels := newFixture(t)
	require.True(t, e.PointerDown(Pointer{FrameID: "1h", X: 10, Y: 200}, levels))
	require.NotNil(t, e.PointerUp(Pointer{Y: 120}))
	sel, propagate := e.Click(Pointer{FrameID: "1h", Y: 120})
	assert.Nil(t, sel)
	assert.False(t, propagate)
	assert.Equal(t, StateIdle, e.State())
}

func TestJitterIsNotADrag(t *testing.T) {
	e, levels := newFixture(t)
	require.True(t, e.PointerDown(Pointer{FrameID: "1h", X: 10, Y: 200}, levels))
	e.PointerMove(Pointer{FrameID: "1h", X: 10, Y: 201})
	assert.Nil(t, e.PointerUp(Pointer{FrameID: "1h", X: 10, Y: 201.5}))
	assert.Equal(t, StateClickPending, e.State())

	_, propagate := e.Click(Pointer{FrameID: "1h", X: 10, Y: 201.5})
	assert.True(t, propagate)
	assert.Equal(t, StateIdle, e.State())
}

func TestHitTestPicksNearestDraggableWithinTolerance(t *testing.T) {
	e, levels := newFixture(t)
	assert.False(t, e.PointerDown(Pointer{FrameID: "1h", X: 10, Y: 207}, levels), "7px away")
	assert.False(t, e.PointerDown(Pointer{FrameID: "1h", X: 10, Y: 320}, levels), "quote is not draggable")

	levels = append(levels, overlay.Level{ID: "ord:7:sl", Kind: overlay.KindOrder, Price: 1.1046, Draggable: true})
	require.True(t, e.PointerDown(Pointer{FrameID: "1h", X: 10, Y: 215}, levels))
	d, ok := e.Active()
	require.True(t, ok)
	assert.Equal(t, "ord:7:sl", d.Level.ID)
	assert.InDelta(t, 216, d.StartY, 1e-9)
}

func TestMissingOrEmptyPlotIsNoop(t *testing.T) {
	e, levels := newFixture(t)
	assert.False(t, e.PointerDown(Pointer{FrameID: "4h", X: 10, Y: 200}, levels))
	assert.False(t, e.PointerDown(Pointer{FrameID: "1h", X: 700, Y: 200}, levels), "outside plot")

	reg := geometry.NewRegistry()
	reg.Store(geometry.PlotMeta{FrameID: "1h", Plot: geometry.Rect{W: 100}, PriceRange: 1}, false)
	flat := NewEngine(reg)
	flat.SetSelectMode(SelectEntry)
	assert.False(t, flat.PointerDown(Pointer{FrameID: "1h", Y: 0}, levels))
	sel, propagate := flat.Click(Pointer{FrameID: "1h", Y: 0})
	assert.Nil(t, sel)
	assert.True(t, propagate)
}

func TestPriceSelect(t *testing.T) {
	e, _ := newFixture(t)
	e.SetPriceStep(0.0001)
	e.SetSelectMode(SelectSL)

	sel, propagate := e.Click(Pointer{FrameID: "1h", Source: SourceFrame, X: 5, Y: 333})
	require.NotNil(t, sel)
	assert.True(t, propagate)
	assert.Equal(t, SelectSL, sel.Mode)
	assert.InDelta(t, 1.1017, sel.Price, 1e-12)
	assert.Equal(t, SelectNone, e.SelectMode())

	sel, _ = e.Click(Pointer{FrameID: "1h", Y: 333})
	assert.Nil(t, sel)
}

func TestFullscreenSlotAndCancel(t *testing.T) {
	reg := geometry.NewRegistry()
	reg.Store(geometry.PlotMeta{FrameID: "1m", Plot: geometry.Rect{W: 100, H: 100}, PaddedMin: 1, PaddedMax: 2, PriceRange: 1}, true)
	e := NewEngine(reg, WithHitTolerance(10), WithDragThreshold(5))
	levels := []overlay.Level{{ID: "ord:1:price", Kind: overlay.KindOrder, Price: 1.5, Draggable: true}}

	assert.False(t, e.PointerDown(Pointer{FrameID: "1m", Source: SourceFrame, Y: 50}, levels))
	require.True(t, e.PointerDown(Pointer{FrameID: "1m", Source: SourceFullscreen, Y: 58}, levels))
	frameID, preview, ok := e.Preview()
	require.True(t, ok)
	assert.Equal(t, "1m", frameID)
	assert.InDelta(t, 1.42, preview.Price, 1e-9)
	assert.Equal(t, "drag:ord:1:price", preview.ID)
	assert.Equal(t, overlay.KindDrag, preview.Kind)
	assert.Equal(t, "ord:1:price", preview.Meta["origin"])
	assert.Equal(t, 1.5, preview.Meta["from"])

	e.PointerMove(Pointer{Y: 54})
	d, _ := e.Active()
	assert.False(t, d.DidMove)

	e.Cancel()
	assert.Equal(t, StateIdle, e.State())
	_, _, ok = e.Preview()
	assert.False(t, ok)
}

func TestParseSelectMode(t *testing.T) {
	m, err := ParseSelectMode("tp")
	require.NoError(t, err)
	assert.Equal(t, SelectTP, m)
	_, err = ParseSelectMode("limit")
	assert.ErrorIs(t, err, ErrUnknownMode)
}
