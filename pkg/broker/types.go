package broker

import (
	"math"
	"strings"
	"unicode"

	"mtfchart/pkg/bars"
)

// Core collaborator payloads. They mirror the MT5 bridge responses but stay
// broker-agnostic so the chart engine never sees wire formats.

// Quote is one live price update for a symbol.
type Quote struct {
	Symbol      string  `json:"symbol"`
	Bid         float64 `json:"bid"`
	Ask         float64 `json:"ask"`
	Last        float64 `json:"last"`
	Mid         float64 `json:"mid"`
	TimestampMs int64   `json:"timestampMs"`
}

// Price picks the price a quote contributes to bars: last, then mid, then
// the bid/ask midpoint. Zero means the quote carries no usable price.
func (q Quote) Price() float64 {
	switch {
	case valid(q.Last):
		return q.Last
	case valid(q.Mid):
		return q.Mid
	case valid(q.Bid) && valid(q.Ask):
		return (q.Bid + q.Ask) / 2
	default:
		return 0
	}
}

// HasSpread reports whether both sides of the book are present.
func (q Quote) HasSpread() bool {
	return valid(q.Bid) && valid(q.Ask)
}

// Side is the direction of a position or order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Position is an open position.
type Position struct {
	ID         string  `json:"id"`
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	Volume     float64 `json:"volume"`
	EntryPrice float64 `json:"entryPrice"`
	StopLoss   float64 `json:"sl"`
	TakeProfit float64 `json:"tp"`
}

// Order is a pending order.
type Order struct {
	ID         string  `json:"id"`
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	Type       string  `json:"type"`
	Volume     float64 `json:"volume"`
	Price      float64 `json:"price"`
	StopLoss   float64 `json:"sl"`
	TakeProfit float64 `json:"tp"`
}

// Constraints are per-instrument broker limits.
type Constraints struct {
	MinStopDistance float64 `json:"minStopDistance" yaml:"min_stop_distance"`
	PriceStep       float64 `json:"priceStep" yaml:"price_step"`
	SessionStatus   string  `json:"sessionStatus" yaml:"session_status"`
}

// HistoryRequest asks for bars in [FromMs, ToMs]. MaxAgeMs is a staleness
// hint: 0 demands a fresh fetch, a positive value allows a cached answer.
type HistoryRequest struct {
	Symbol     string          `json:"symbol"`
	Resolution bars.Resolution `json:"resolution"`
	FromMs     int64           `json:"from"`
	ToMs       int64           `json:"to"`
	MaxAgeMs   int64           `json:"maxAgeMs"`
}

// HistorySeries is the collaborator's answer. Bars are raw and normalised by
// the caller.
type HistorySeries struct {
	Bars        []bars.RawBar  `json:"bars" msgpack:"bars"`
	FetchedAtMs int64          `json:"fetchedAtMs" msgpack:"fetchedAtMs"`
	Source      string         `json:"source" msgpack:"source"`
	Coverage    *bars.Coverage `json:"coverage,omitempty" msgpack:"coverage,omitempty"`
}

// NormalizeSymbol strips everything but letters and digits and upper-cases
// the rest, so "eur/usd" and "EURUSD" compare equal.
func NormalizeSymbol(symbol string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(symbol) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SameSymbol compares symbols after normalisation.
func SameSymbol(a, b string) bool {
	na := NormalizeSymbol(a)
	return na != "" && na == NormalizeSymbol(b)
}

func valid(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
