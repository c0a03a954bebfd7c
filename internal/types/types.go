package types

import "mtfchart/pkg/bars"

type FrameInfo struct {
	ID          string         `json:"id"`
	Label       string         `json:"label"`
	Resolution  string         `json:"resolution"`
	Bars        int            `json:"bars"`
	UpdatedAtMs int64          `json:"updatedAtMs"`
	Source      string         `json:"source,omitempty"`
	Error       string         `json:"error,omitempty"`
	Loading     bool           `json:"loading"`
	Coverage    *bars.Coverage `json:"coverage,omitempty"`
	LastClose   float64        `json:"lastClose,omitempty"`
}

type FramesResponse struct {
	Symbol     string      `json:"symbol"`
	Active     []string    `json:"active"`
	Fullscreen string      `json:"fullscreen,omitempty"`
	Hint       string      `json:"hint,omitempty"`
	Frames     []FrameInfo `json:"frames"`
}

// FramesRequest changes the active set. Exactly one field is expected; Active
// wins over Toggle, Toggle over Ensure.
type FramesRequest struct {
	Active []string `json:"active,optional"`
	Toggle string   `json:"toggle,optional"`
	Ensure string   `json:"ensure,optional"`
}

type SymbolRequest struct {
	Symbol string `json:"symbol"`
}

type RefreshRequest struct {
	Force bool `json:"force,optional"`
}

type OverlayRequest struct {
	Group   string `json:"group"`
	Visible bool   `json:"visible"`
}

type SnapshotRequest struct {
	Frame string `form:"frame,optional"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
