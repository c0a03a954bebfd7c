package broker

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"mtfchart/pkg/confkit"
)

// Config describes the broker connections available to the chart host.
type Config struct {
	Default     string                     `yaml:"default"`
	Providers   map[string]*ProviderConfig `yaml:"providers"`
	Instruments map[string]Constraints     `yaml:"instruments"`
}

// ProviderConfig represents configuration for a single broker connection.
type ProviderConfig struct {
	Type    string `yaml:"type"`
	BaseURL string `yaml:"base_url"`
	WSURL   string `yaml:"ws_url"`
	Account string `yaml:"account"`

	TimeoutRaw string        `yaml:"timeout"`
	Timeout    time.Duration `yaml:"-"`
	MaxRetries int           `yaml:"max_retries"`
}

// ProviderBuilder constructs a Provider from configuration.
type ProviderBuilder func(name string, cfg *ProviderConfig) (Provider, error)

// builderSet maps a lower-cased provider type to its constructor.
type builderSet struct {
	mu sync.RWMutex
	m  map[string]ProviderBuilder
}

var builders = &builderSet{m: map[string]ProviderBuilder{}}

func typeKey(typeName string) string {
	return strings.ToLower(strings.TrimSpace(typeName))
}

func (b *builderSet) set(typeName string, fn ProviderBuilder) {
	b.mu.Lock()
	b.m[typeKey(typeName)] = fn
	b.mu.Unlock()
}

func (b *builderSet) get(typeName string) (ProviderBuilder, bool) {
	b.mu.RLock()
	fn, ok := b.m[typeKey(typeName)]
	b.mu.RUnlock()
	return fn, ok
}

// RegisterProvider makes a broker constructor available under typeName.
// Bridge packages call it from init.
func RegisterProvider(typeName string, builder ProviderBuilder) {
	builders.set(typeName, builder)
}

// LoadConfig reads broker configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open broker config: %w", err)
	}
	return parseConfig(data)
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	confkit.LoadDotenvOnce()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read broker config: %w", err)
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal broker config: %w", err)
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]*ProviderConfig{}
	}
	for name, p := range cfg.Providers {
		if p == nil {
			p = &ProviderConfig{}
			cfg.Providers[name] = p
		}
		if err := p.expand(); err != nil {
			return nil, fmt.Errorf("broker provider %s: %w", name, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expand substitutes ${VAR} placeholders and parses the timeout.
func (p *ProviderConfig) expand() error {
	env := func(v string) string { return strings.TrimSpace(os.ExpandEnv(v)) }
	p.Type = env(p.Type)
	p.BaseURL = strings.TrimRight(env(p.BaseURL), "/")
	p.WSURL = env(p.WSURL)
	p.Account = env(p.Account)
	p.TimeoutRaw = env(p.TimeoutRaw)
	if p.TimeoutRaw == "" {
		return nil
	}
	d, err := time.ParseDuration(p.TimeoutRaw)
	switch {
	case err != nil:
		return fmt.Errorf("invalid timeout %q: %w", p.TimeoutRaw, err)
	case d <= 0:
		return fmt.Errorf("timeout must be positive, got %s", d)
	}
	p.Timeout = d
	return nil
}

// Validate checks that every provider names a registered type and that the
// default, when set, is one of them.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("broker config: providers cannot be empty")
	}
	if _, ok := c.Providers[c.Default]; c.Default != "" && !ok {
		return fmt.Errorf("broker config: default provider %q not defined", c.Default)
	}
	for _, name := range c.providerNames() {
		p := c.Providers[name]
		switch {
		case strings.TrimSpace(name) == "":
			return fmt.Errorf("broker config: provider name cannot be empty")
		case strings.TrimSpace(p.Type) == "":
			return fmt.Errorf("broker config: provider %s must specify type", name)
		}
		if _, ok := builders.get(p.Type); !ok {
			return fmt.Errorf("broker config: provider %s has unsupported type %q", name, p.Type)
		}
	}
	for symbol, ins := range c.Instruments {
		if ins.MinStopDistance < 0 || ins.PriceStep < 0 {
			return fmt.Errorf("broker config: instrument %s has negative constraints", symbol)
		}
	}
	return nil
}

// BuildProviders instantiates one Provider per configured connection.
func (c *Config) BuildProviders() (map[string]Provider, error) {
	out := make(map[string]Provider, len(c.Providers))
	for _, name := range c.providerNames() {
		cfg := c.Providers[name]
		build, ok := builders.get(cfg.Type)
		if !ok {
			return nil, fmt.Errorf("broker provider %s: unsupported type %q", name, cfg.Type)
		}
		p, err := build(name, cfg)
		if err != nil {
			return nil, fmt.Errorf("broker provider %s: %w", name, err)
		}
		out[name] = p
	}
	return out, nil
}

func (c *Config) providerNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Constraints returns the static constraint table as a provider.
func (c *Config) Constraints() *StaticConstraints {
	return NewStaticConstraints(c.Instruments)
}
