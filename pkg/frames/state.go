package frames

import "mtfchart/pkg/bars"

// State is the live data of one active frame.
type State struct {
	Bars        []bars.Candle  `json:"bars"`
	UpdatedAtMs int64          `json:"updatedAtMs"`
	LastTickMs  int64          `json:"lastTickMs,omitempty"`
	Source      string         `json:"source,omitempty"`
	Error       string         `json:"error,omitempty"`
	Coverage    *bars.Coverage `json:"coverage,omitempty"`
	Loading     bool           `json:"loading"`
}

// Clone returns a deep copy safe to hand outside the manager lock.
func (s State) Clone() State {
	out := s
	out.Bars = bars.Clone(s.Bars)
	if s.Coverage != nil {
		cov := *s.Coverage
		out.Coverage = &cov
	}
	return out
}

// Frame pairs a config with its current state.
type Frame struct {
	Config
	State State `json:"state"`
}

// Visible returns the trailing DisplayBars bars.
func (f Frame) Visible() []bars.Candle {
	return bars.Tail(f.State.Bars, f.DisplayBars)
}

// HasBars reports whether the frame has anything to draw.
func (f Frame) HasBars() bool {
	return len(f.State.Bars) > 0
}

// FreshAtMs is the latest moment the frame's data changed, by fetch or tick.
func (s State) FreshAtMs() int64 {
	return max(s.UpdatedAtMs, s.LastTickMs)
}
