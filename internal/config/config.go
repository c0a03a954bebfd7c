package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/rest"

	"mtfchart/pkg/broker"
	"mtfchart/pkg/confkit"
)

// CacheTTL holds cache retention in seconds.
type CacheTTL struct {
	History int `json:",default=300"`
}

// ChartConf holds the chart engine tunables.
type ChartConf struct {
	Width            int      `json:",default=960"`
	Height           int      `json:",default=320"`
	FullscreenWidth  int      `json:",default=1600"`
	FullscreenHeight int      `json:",default=900"`
	MaxFrames        int      `json:",default=5"`
	InitialFrames    []string `json:",optional"`

	RefreshInterval time.Duration `json:",default=15s"`
	RefreshJitter   time.Duration `json:",default=750ms"`

	HitTolerancePx   float64 `json:",default=6"`
	DragThresholdPx  float64 `json:",default=2"`
	DedupBandPct     float64 `json:",default=0.003"`
	MaxOverlayLevels int     `json:",default=6"`
	RangeBars        int     `json:",default=20"`
}

// FeedConf controls how broker state is pulled into the engine.
type FeedConf struct {
	BookInterval time.Duration `json:",default=5s"`
	ApplyTimeout time.Duration `json:",default=10s"`
	// Stream enables the live tick stream when the provider offers one.
	Stream bool `json:",default=true"`
}

type Config struct {
	rest.RestConf
	// Env indicates the running environment: test | dev | prod
	Env string `json:",default=test"`
	// Symbol is focused at startup when set.
	Symbol string `json:",optional"`
	// Provider picks the broker connection; empty uses the broker default.
	Provider string          `json:",optional"`
	Redis    redis.RedisConf `json:",optional"`
	TTL      CacheTTL        `json:",optional"`
	Chart    ChartConf       `json:",optional"`
	Feed     FeedConf        `json:",optional"`

	Broker confkit.Section[broker.Config] `json:",optional"`

	mainPath string
	baseDir  string
}

func (c *Config) IsTestEnv() bool {
	return c.Env == "test" || c.Env == ""
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func Load(path string) (*Config, error) {
	confkit.LoadDotenvOnce()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path %s: %w", path, err)
	}

	var cfg Config
	if err := conf.Load(absPath, &cfg, conf.UseEnv()); err != nil {
		return nil, fmt.Errorf("load config %s: %w", absPath, err)
	}

	cfg.mainPath = absPath
	cfg.baseDir = filepath.Dir(absPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.hydrateSections(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Env)) {
	case "", "test", "dev", "prod":
		if strings.TrimSpace(c.Env) == "" {
			c.Env = "test"
		}
	default:
		return errors.New("config: env must be one of test|dev|prod")
	}
	if err := c.validateTTL(); err != nil {
		return err
	}
	if err := c.validateChart(); err != nil {
		return err
	}
	if c.Feed.BookInterval <= 0 || c.Feed.ApplyTimeout <= 0 {
		return errors.New("config: feed intervals must be positive")
	}
	return nil
}

func (c *Config) validateTTL() error {
	if c.TTL.History <= 0 {
		return errors.New("config: ttl.history must be positive")
	}
	return nil
}

func (c *Config) validateChart() error {
	ch := c.Chart
	if ch.MaxFrames < 1 || ch.MaxFrames > 8 {
		return errors.New("config: chart.maxFrames must be within 1..8")
	}
	if ch.RefreshInterval <= 0 {
		return errors.New("config: chart.refreshInterval must be positive")
	}
	if ch.RefreshJitter < 0 || ch.RefreshJitter >= ch.RefreshInterval {
		return errors.New("config: chart.refreshJitter must be within [0, refreshInterval)")
	}
	if ch.DedupBandPct < 0 || ch.DedupBandPct >= 1 {
		return errors.New("config: chart.dedupBandPct must be within [0, 1)")
	}
	if ch.HitTolerancePx < 0 || ch.DragThresholdPx < 0 {
		return errors.New("config: chart pixel thresholds cannot be negative")
	}
	return nil
}

func (c *Config) hydrateSections() error {
	if err := c.Broker.Hydrate(c.baseDir, broker.LoadConfig); err != nil {
		return fmt.Errorf("load broker config: %w", err)
	}
	return nil
}

func (c *Config) MainPath() string {
	return c.mainPath
}

func (c *Config) BaseDir() string {
	return c.baseDir
}
