package mt5bridge

import (
	"context"
	"fmt"
	"strings"

	"mtfchart/pkg/broker"
)

// ProviderType is the broker.yaml type name of this provider.
const ProviderType = "mt5bridge"

func init() {
	broker.RegisterProvider(ProviderType, func(name string, cfg *broker.ProviderConfig) (broker.Provider, error) {
		return NewProvider(name, cfg)
	})
}

// Provider is a full broker connection backed by the MT5 bridge.
type Provider struct {
	*Client
	name       string
	wsURL      string
	streamOpts []StreamOption
}

var (
	_ broker.Provider      = (*Provider)(nil)
	_ broker.QuoteStreamer = (*Provider)(nil)
)

// NewProvider builds a provider from its broker.yaml entry.
func NewProvider(name string, cfg *broker.ProviderConfig, opts ...Option) (*Provider, error) {
	if cfg == nil || strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("mt5bridge: provider %s requires base_url", name)
	}
	clientOpts := []Option{WithBaseURL(cfg.BaseURL), WithHTTPTimeout(cfg.Timeout)}
	if cfg.MaxRetries > 0 {
		clientOpts = append(clientOpts, WithMaxRetries(cfg.MaxRetries))
	}
	client := NewClient(append(clientOpts, opts...)...)

	wsURL := cfg.WSURL
	if wsURL == "" {
		derived, err := TicksURL(client.BaseURL())
		if err != nil {
			return nil, err
		}
		wsURL = derived
	}
	return &Provider{Client: client, name: name, wsURL: wsURL}, nil
}

// Name returns the configured provider name.
func (p *Provider) Name() string { return p.name }

// WithStreamOptions sets options applied to every tick stream.
func (p *Provider) WithStreamOptions(opts ...StreamOption) *Provider {
	p.streamOpts = append(p.streamOpts, opts...)
	return p
}

// StreamQuotes pushes live quotes for symbol until ctx is done.
func (p *Provider) StreamQuotes(ctx context.Context, symbol string, onQuote func(broker.Quote)) error {
	return NewTickStream(p.wsURL, p.streamOpts...).Run(ctx, []string{symbol}, onQuote)
}
