package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Reasons a constraint lookup can fail without it being a fault.
var (
	ErrMissingAccount = errors.New("broker: no account connected")
	ErrMissingAPIKey  = errors.New("broker: missing API key")
	ErrMissingSymbol  = errors.New("broker: symbol not configured")

	// ErrNotConnected means no history or trading backend is wired.
	ErrNotConnected = errors.New("broker: not connected")
)

// ConstraintHint turns a constraint-fetch failure into the short hint shown
// on the chart instead of the min-stop bands.
func ConstraintHint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingAccount), errors.Is(err, ErrNotConnected):
		return "Constraints unavailable: connect a broker account"
	case errors.Is(err, ErrMissingAPIKey):
		return "Constraints unavailable: set the broker API key"
	case errors.Is(err, ErrMissingSymbol):
		return "Constraints unavailable: symbol not known to broker"
	default:
		return fmt.Sprintf("Constraints unavailable: %v", err)
	}
}

// StaticConstraints serves constraints from configuration.
type StaticConstraints struct {
	bySymbol map[string]Constraints
}

// NewStaticConstraints indexes the table by normalised symbol.
func NewStaticConstraints(table map[string]Constraints) *StaticConstraints {
	idx := make(map[string]Constraints, len(table))
	for symbol, c := range table {
		if key := NormalizeSymbol(symbol); key != "" {
			idx[key] = c
		}
	}
	return &StaticConstraints{bySymbol: idx}
}

// GetInstrumentConstraints implements ConstraintsProvider.
func (s *StaticConstraints) GetInstrumentConstraints(_ context.Context, symbol string) (*Constraints, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, ErrMissingSymbol
	}
	c, ok := s.bySymbol[NormalizeSymbol(symbol)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingSymbol, symbol)
	}
	return &c, nil
}
