package mt5bridge

import (
	"strconv"

	"mtfchart/pkg/bars"
	"mtfchart/pkg/broker"
)

// envelope carries the bridge's ok/error fields shared by every response.
type envelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type historyRequest struct {
	Symbol     string `json:"symbol"`
	Resolution string `json:"resolution"`
	From       int64  `json:"from"`
	To         int64  `json:"to"`
	Limit      int    `json:"limit"`
}

type historyResponse struct {
	envelope
	Bars        []bars.RawBar `json:"bars"`
	FetchedAtMs int64         `json:"fetchedAtMs"`
	Source      string        `json:"source"`
}

// MT5 position and order type codes.
const (
	typeBuy           = 0
	typeSell          = 1
	typeBuyLimit      = 2
	typeSellLimit     = 3
	typeBuyStop       = 4
	typeSellStop      = 5
	typeBuyStopLimit  = 6
	typeSellStopLimit = 7
)

type positionWire struct {
	Ticket    int64   `json:"ticket"`
	Symbol    string  `json:"symbol"`
	Type      int     `json:"type"`
	Volume    float64 `json:"volume"`
	PriceOpen float64 `json:"price_open"`
	SL        float64 `json:"sl"`
	TP        float64 `json:"tp"`
}

func (p positionWire) toPosition() broker.Position {
	side := broker.SideBuy
	if p.Type == typeSell {
		side = broker.SideSell
	}
	return broker.Position{
		ID:         strconv.FormatInt(p.Ticket, 10),
		Symbol:     p.Symbol,
		Side:       side,
		Volume:     p.Volume,
		EntryPrice: p.PriceOpen,
		StopLoss:   p.SL,
		TakeProfit: p.TP,
	}
}

type positionsResponse struct {
	envelope
	Positions []positionWire `json:"positions"`
}

type orderWire struct {
	Ticket        int64   `json:"ticket"`
	Symbol        string  `json:"symbol"`
	Type          int     `json:"type"`
	VolumeCurrent float64 `json:"volume_current"`
	PriceOpen     float64 `json:"price_open"`
	SL            float64 `json:"sl"`
	TP            float64 `json:"tp"`
}

func (o orderWire) toOrder() broker.Order {
	side, kind := broker.SideBuy, "market"
	switch o.Type {
	case typeSell:
		side = broker.SideSell
	case typeBuyLimit:
		kind = "limit"
	case typeSellLimit:
		side, kind = broker.SideSell, "limit"
	case typeBuyStop:
		kind = "stop"
	case typeSellStop:
		side, kind = broker.SideSell, "stop"
	case typeBuyStopLimit:
		kind = "stop_limit"
	case typeSellStopLimit:
		side, kind = broker.SideSell, "stop_limit"
	}
	return broker.Order{
		ID:         strconv.FormatInt(o.Ticket, 10),
		Symbol:     o.Symbol,
		Side:       side,
		Type:       kind,
		Volume:     o.VolumeCurrent,
		Price:      o.PriceOpen,
		StopLoss:   o.SL,
		TakeProfit: o.TP,
	}
}

type ordersResponse struct {
	envelope
	Orders []orderWire `json:"orders"`
}

type modifyPositionRequest struct {
	Position int64    `json:"position"`
	SL       *float64 `json:"sl,omitempty"`
	TP       *float64 `json:"tp,omitempty"`
}

type modifyOrderRequest struct {
	Order int64    `json:"order"`
	Price *float64 `json:"price,omitempty"`
	SL    *float64 `json:"sl,omitempty"`
	TP    *float64 `json:"tp,omitempty"`
}

// tickWire is a tick as pushed on /ws/ticks and nested in /quote answers.
type tickWire struct {
	Type    string   `json:"type"`
	Symbol  string   `json:"symbol"`
	Time    *int64   `json:"time"`
	TimeMsc *int64   `json:"time_msc"`
	Bid     *float64 `json:"bid"`
	Ask     *float64 `json:"ask"`
	Mid     *float64 `json:"mid"`
	Last    *float64 `json:"last"`
	Message string   `json:"message,omitempty"`
}

func (t tickWire) timestampMs() int64 {
	switch {
	case t.TimeMsc != nil && *t.TimeMsc > 0:
		return *t.TimeMsc
	case t.Time != nil && *t.Time > 0:
		return *t.Time * 1000
	default:
		return 0
	}
}

func (t tickWire) toQuote() broker.Quote {
	return broker.Quote{
		Symbol:      t.Symbol,
		Bid:         deref(t.Bid),
		Ask:         deref(t.Ask),
		Mid:         deref(t.Mid),
		Last:        deref(t.Last),
		TimestampMs: t.timestampMs(),
	}
}

type quoteResponse struct {
	envelope
	Resolved string   `json:"resolved"`
	Quote    tickWire `json:"quote"`
}

type subscriptionMessage struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
