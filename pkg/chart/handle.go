package chart

import (
	"context"
	"image"

	"mtfchart/pkg/frames"
)

// Handle is the control surface a host holds on the chart engine.
type Handle interface {
	FocusSymbol(ctx context.Context, symbol string) error
	EnsureFrameActive(ctx context.Context, alias string) (string, error)
	ToggleFrame(ctx context.Context, id string) (frames.Change, error)
	SetActiveFrames(ctx context.Context, ids []string) (frames.Change, error)
	SetOverlayVisible(group string, visible bool) error
	Refresh(ctx context.Context, force bool) error
	CaptureAll() map[string]*image.RGBA
	CaptureSnapshot() *image.RGBA
	Subscribe(buffer int) (<-chan Event, func())
}

var _ Handle = (*Engine)(nil)
