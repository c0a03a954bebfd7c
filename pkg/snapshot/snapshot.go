package snapshot

import (
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"time"

	"mtfchart/pkg/render"
)

const (
	headerHeight  = 22
	captionHeight = 18
	padding       = 6
)

// Panel is one rendered frame offered to the composite.
type Panel struct {
	FrameID     string
	Label       string
	Bars        int
	UpdatedAtMs int64
	Image       *image.RGBA
}

// Request describes one composite capture.
type Request struct {
	Symbol     string
	CapturedAt time.Time
	Panels     []Panel
	Theme      render.Theme
}

// Caption is the line printed above a panel.
func Caption(p Panel, capturedAt time.Time) string {
	fresh := "never updated"
	if p.UpdatedAtMs > 0 {
		age := capturedAt.Sub(time.UnixMilli(p.UpdatedAtMs)).Round(time.Second)
		if age < 0 {
			age = 0
		}
		fresh = fmt.Sprintf("updated %ds ago", int(age.Seconds()))
	}
	return fmt.Sprintf("%s · %d bars · %s", p.Label, p.Bars, fresh)
}

// Compose stacks every panel that has bars under a symbol/time header. It
// returns nil when no panel has data.
func Compose(req Request) *image.RGBA {
	var panels []Panel
	width, height := 0, headerHeight
	for _, p := range req.Panels {
		if p.Bars <= 0 || p.Image == nil || p.Image.Bounds().Empty() {
			continue
		}
		panels = append(panels, p)
		width = max(width, p.Image.Bounds().Dx())
		height += captionHeight + p.Image.Bounds().Dy() + padding
	}
	if len(panels) == 0 {
		return nil
	}
	th := req.Theme
	if th.Sessions == nil {
		th = render.DefaultTheme()
	}
	capturedAt := req.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	render.Fill(out, out.Bounds(), th.Background)
	header := fmt.Sprintf("%s  %s", req.Symbol, capturedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	render.DrawText(out, padding, (headerHeight-render.TextHeight)/2, header, th.Text)

	y := headerHeight
	for _, p := range panels {
		render.DrawText(out, padding, y+(captionHeight-render.TextHeight)/2, Caption(p, capturedAt), th.Muted)
		y += captionHeight
		b := p.Image.Bounds()
		draw.Draw(out, image.Rect(0, y, b.Dx(), y+b.Dy()), p.Image, b.Min, draw.Src)
		y += b.Dy() + padding
	}
	return out
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	if img == nil {
		return fmt.Errorf("snapshot: nothing to encode")
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("snapshot: encode png: %w", err)
	}
	return nil
}
