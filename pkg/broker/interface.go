package broker

import "context"

// HistoryProvider serves historical bars.
type HistoryProvider interface {
	GetHistorySeries(ctx context.Context, req HistoryRequest) (*HistorySeries, error)
}

// ConstraintsProvider serves per-instrument limits. Optional.
type ConstraintsProvider interface {
	GetInstrumentConstraints(ctx context.Context, symbol string) (*Constraints, error)
}

// Mutator applies price changes to live positions and orders. Nil pointers
// leave the corresponding field untouched.
type Mutator interface {
	ModifyPosition(ctx context.Context, id string, sl, tp *float64) error
	ModifyOrder(ctx context.Context, id string, price, sl, tp *float64) error
}

// Book lists the account's open positions and pending orders.
type Book interface {
	GetPositions(ctx context.Context, symbol string) ([]Position, error)
	GetOrders(ctx context.Context, symbol string) ([]Order, error)
}

// Provider is a full broker connection.
type Provider interface {
	HistoryProvider
	Mutator
	Book
}

// QuoteStreamer pushes live quotes for one symbol until ctx is done. Optional.
type QuoteStreamer interface {
	StreamQuotes(ctx context.Context, symbol string, onQuote func(Quote)) error
}
