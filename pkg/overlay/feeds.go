package overlay

import (
	"errors"
	"fmt"
	"strings"

	"mtfchart/pkg/broker"
)

// ErrUnknownGroup is returned when toggling a visibility group that does not exist.
var ErrUnknownGroup = errors.New("overlay: unknown visibility group")

// Setup is a detected trade setup from a watcher.
type Setup struct {
	ID          string      `json:"id"`
	Watcher     string      `json:"watcher"`
	Symbol      string      `json:"symbol"`
	Timeframe   string      `json:"timeframe"`
	TimestampMs int64       `json:"timestampMs"`
	Side        broker.Side `json:"side"`
	Entry       float64     `json:"entry"`
	StopLoss    float64     `json:"sl"`
	TakeProfit  float64     `json:"tp"`
	Resolved    bool        `json:"resolved"`
}

// PatternLevel roles, which drive the level priority.
const (
	RoleBreak    = "break"
	RoleSwing    = "swing"
	RoleRange    = "range"
	RoleFVG      = "fvg"
	RolePullback = "pullback"
)

// PatternLevel is one price produced by a pattern detector.
type PatternLevel struct {
	Name  string  `json:"name"`
	Role  string  `json:"role"`
	Price float64 `json:"price"`
}

// Pattern is a detected chart pattern with its levels.
type Pattern struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Symbol      string         `json:"symbol"`
	Timeframe   string         `json:"timeframe"`
	TimestampMs int64          `json:"timestampMs"`
	Levels      []PatternLevel `json:"levels"`
}

// Review is an annotation left during a trade review.
type Review struct {
	ID          string  `json:"id"`
	Symbol      string  `json:"symbol"`
	Timeframe   string  `json:"timeframe"`
	TimestampMs int64   `json:"timestampMs"`
	Price       float64 `json:"price"`
	Label       string  `json:"label"`
}

// Visibility toggles candidate groups. The zero value hides everything; use
// DefaultVisibility for the stock set.
type Visibility struct {
	Quote       bool `json:"quote"`
	Constraints bool `json:"constraints"`
	Positions   bool `json:"positions"`
	Orders      bool `json:"orders"`
	Setups      bool `json:"setups"`
	Patterns    bool `json:"patterns"`
	Reviews     bool `json:"reviews"`
	Sessions    bool `json:"sessions"`
	Range       bool `json:"range"`
}

// DefaultVisibility shows every group.
func DefaultVisibility() Visibility {
	return Visibility{
		Quote: true, Constraints: true, Positions: true, Orders: true,
		Setups: true, Patterns: true, Reviews: true, Sessions: true, Range: true,
	}
}

// Set flips one group by name.
func (v *Visibility) Set(group string, on bool) error {
	switch strings.ToLower(strings.TrimSpace(group)) {
	case "quote":
		v.Quote = on
	case "constraint", "constraints":
		v.Constraints = on
	case "position", "positions":
		v.Positions = on
	case "order", "orders":
		v.Orders = on
	case "setup", "setups":
		v.Setups = on
	case "pattern", "patterns":
		v.Patterns = on
	case "review", "reviews":
		v.Reviews = on
	case "session", "sessions":
		v.Sessions = on
	case "range":
		v.Range = on
	default:
		return fmt.Errorf("%w: %q", ErrUnknownGroup, group)
	}
	return nil
}
