package frames

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"mtfchart/pkg/bars"
)

const (
	// DefaultMaxActive bounds the active frame set.
	DefaultMaxActive = 5
	// DefaultRefreshInterval is the background revisit cadence.
	DefaultRefreshInterval = 15 * time.Second
	// DefaultRefreshJitter is the upper bound of the random delay before a run.
	DefaultRefreshJitter = 750 * time.Millisecond
)

// ErrUnknownFrame is returned for a frame id or alias with no configuration.
var ErrUnknownFrame = errors.New("frames: unknown frame")

// Config is the static description of one timeframe frame.
type Config struct {
	ID           string          `json:"id"`
	Label        string          `json:"label"`
	Resolution   bars.Resolution `json:"resolution"`
	LookbackBars int             `json:"lookbackBars"`
	DisplayBars  int             `json:"displayBars"`
	MaxAge       time.Duration   `json:"maxAge"`
}

// Capacity is the most bars a frame keeps.
func (c Config) Capacity() int {
	return max(c.LookbackBars, c.DisplayBars)
}

// Validate checks the config is usable.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("frames: config id is required")
	}
	if !c.Resolution.Valid() {
		return fmt.Errorf("frames: config %s: %w: %q", c.ID, bars.ErrUnknownResolution, c.Resolution)
	}
	if c.LookbackBars <= 0 || c.DisplayBars <= 0 {
		return fmt.Errorf("frames: config %s: lookback and display bars must be positive", c.ID)
	}
	if c.MaxAge < 0 {
		return fmt.Errorf("frames: config %s: max age must not be negative", c.ID)
	}
	return nil
}

// DefaultConfigs returns one frame per supported resolution in canonical order.
func DefaultConfigs() []Config {
	return []Config{
		{ID: "1m", Label: "M1", Resolution: bars.Res1m, LookbackBars: 500, DisplayBars: 120, MaxAge: 30 * time.Second},
		{ID: "5m", Label: "M5", Resolution: bars.Res5m, LookbackBars: 500, DisplayBars: 120, MaxAge: time.Minute},
		{ID: "15m", Label: "M15", Resolution: bars.Res15m, LookbackBars: 400, DisplayBars: 120, MaxAge: 2 * time.Minute},
		{ID: "30m", Label: "M30", Resolution: bars.Res30m, LookbackBars: 300, DisplayBars: 120, MaxAge: 5 * time.Minute},
		{ID: "1h", Label: "H1", Resolution: bars.Res1h, LookbackBars: 300, DisplayBars: 120, MaxAge: 5 * time.Minute},
		{ID: "4h", Label: "H4", Resolution: bars.Res4h, LookbackBars: 200, DisplayBars: 100, MaxAge: 15 * time.Minute},
		{ID: "1D", Label: "D1", Resolution: bars.Res1D, LookbackBars: 200, DisplayBars: 100, MaxAge: time.Hour},
		{ID: "1W", Label: "W1", Resolution: bars.Res1W, LookbackBars: 104, DisplayBars: 80, MaxAge: 6 * time.Hour},
	}
}

// Catalog indexes frame configs by id.
type Catalog struct {
	byID  map[string]Config
	order []string
}

// NewCatalog validates cfgs and orders them by resolution rank.
func NewCatalog(cfgs ...Config) (*Catalog, error) {
	if len(cfgs) == 0 {
		return nil, errors.New("frames: catalog needs at least one frame")
	}
	c := &Catalog{byID: make(map[string]Config, len(cfgs))}
	for _, cfg := range cfgs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[cfg.ID]; dup {
			return nil, fmt.Errorf("frames: duplicate frame id %q", cfg.ID)
		}
		c.byID[cfg.ID] = cfg
		c.order = append(c.order, cfg.ID)
	}
	sort.SliceStable(c.order, func(i, j int) bool {
		return c.byID[c.order[i]].Resolution.Rank() < c.byID[c.order[j]].Resolution.Rank()
	})
	return c, nil
}

// DefaultCatalog returns the stock catalog.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultConfigs()...)
	if err != nil {
		panic(err)
	}
	return c
}

// Get returns the config for id.
func (c *Catalog) Get(id string) (Config, bool) {
	cfg, ok := c.byID[id]
	return cfg, ok
}

// IDs lists every frame id in canonical order.
func (c *Catalog) IDs() []string {
	return append([]string(nil), c.order...)
}

// Resolve maps a frame id or a loose timeframe alias ("M15", "h1", "240",
// "D") to a frame id.
func (c *Catalog) Resolve(alias string) (string, error) {
	trimmed := strings.TrimSpace(alias)
	if _, ok := c.byID[trimmed]; ok {
		return trimmed, nil
	}
	res, err := bars.ParseResolution(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownFrame, alias)
	}
	for _, id := range c.order {
		if c.byID[id].Resolution == res {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFrame, alias)
}

// rank orders ids canonically; unknown ids sort last.
func (c *Catalog) rank(id string) int {
	for i, known := range c.order {
		if known == id {
			return i
		}
	}
	return len(c.order)
}

func (c *Catalog) sortIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool { return c.rank(ids[i]) < c.rank(ids[j]) })
}
