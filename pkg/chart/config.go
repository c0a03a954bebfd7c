package chart

import (
	"time"

	"mtfchart/pkg/frames"
	"mtfchart/pkg/interaction"
	"mtfchart/pkg/overlay"
	"mtfchart/pkg/render"
)

// Config carries the chart tunables. Zero fields take the defaults.
type Config struct {
	Width            int
	Height           int
	FullscreenWidth  int
	FullscreenHeight int

	MaxActive       int
	InitialFrames   []string
	RefreshInterval time.Duration
	RefreshJitter   time.Duration

	HitTolerancePx   float64
	DragThresholdPx  float64
	DedupBandPct     float64
	MaxOverlayLevels int
	RangeBars        int

	Render render.Options
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Width:            960,
		Height:           320,
		FullscreenWidth:  1600,
		FullscreenHeight: 900,
		MaxActive:        frames.DefaultMaxActive,
		InitialFrames:    frames.DefaultFrames,
		RefreshInterval:  frames.DefaultRefreshInterval,
		RefreshJitter:    frames.DefaultRefreshJitter,
		HitTolerancePx:   interaction.DefaultHitTolerancePx,
		DragThresholdPx:  interaction.DefaultDragThresholdPx,
		DedupBandPct:     overlay.DefaultDedupBandPct,
		MaxOverlayLevels: overlay.DefaultMaxSelected,
		RangeBars:        overlay.DefaultRangeBars,
		Render:           render.DefaultOptions(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Width <= 0 {
		c.Width = d.Width
	}
	if c.Height <= 0 {
		c.Height = d.Height
	}
	if c.FullscreenWidth <= 0 {
		c.FullscreenWidth = d.FullscreenWidth
	}
	if c.FullscreenHeight <= 0 {
		c.FullscreenHeight = d.FullscreenHeight
	}
	if c.MaxActive <= 0 {
		c.MaxActive = d.MaxActive
	}
	if len(c.InitialFrames) == 0 {
		c.InitialFrames = d.InitialFrames
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = d.RefreshInterval
	}
	if c.RefreshJitter < 0 {
		c.RefreshJitter = d.RefreshJitter
	}
	if c.HitTolerancePx <= 0 {
		c.HitTolerancePx = d.HitTolerancePx
	}
	if c.DragThresholdPx <= 0 {
		c.DragThresholdPx = d.DragThresholdPx
	}
	if c.DedupBandPct <= 0 {
		c.DedupBandPct = d.DedupBandPct
	}
	if c.MaxOverlayLevels <= 0 {
		c.MaxOverlayLevels = d.MaxOverlayLevels
	}
	if c.RangeBars <= 0 {
		c.RangeBars = d.RangeBars
	}
	if c.Render.Theme.Sessions == nil {
		c.Render = d.Render
	}
	return c
}
