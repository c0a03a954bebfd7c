package svc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/threading"

	"mtfchart/internal/cache"
	"mtfchart/internal/config"
	"mtfchart/pkg/broker"
	"mtfchart/pkg/broker/mt5bridge"
	"mtfchart/pkg/chart"
)

const (
	defaultBookInterval = 5 * time.Second
	defaultApplyTimeout = 10 * time.Second
)

type ServiceContext struct {
	Config config.Config

	BrokerConfig *broker.Config
	Providers    map[string]broker.Provider
	ProviderName string
	Broker       broker.Provider

	Redis   *redis.Redis
	History *cache.CachedHistory
	Engine  *chart.Engine
	Router  *broker.LevelUpdateRouter

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *threading.RoutineGroup
}

// MustNewServiceContext is like NewServiceContext but panics on error.
func MustNewServiceContext(c config.Config) *ServiceContext {
	svc, err := NewServiceContext(c)
	if err != nil {
		panic(err)
	}
	return svc
}

// NewServiceContext builds the broker connection, history cache and chart
// engine described by c. Nothing runs until Start.
func NewServiceContext(c config.Config) (*ServiceContext, error) {
	brokerCfg := c.Broker.Value
	if brokerCfg == nil {
		return nil, errors.New("svc: broker config is required")
	}
	providers, err := brokerCfg.BuildProviders()
	if err != nil {
		return nil, fmt.Errorf("svc: build broker providers: %w", err)
	}

	name := strings.TrimSpace(c.Provider)
	if name == "" {
		name = brokerCfg.Default
	}
	if name == "" && len(providers) == 1 {
		for only := range providers {
			name = only
		}
	}
	provider, ok := providers[name]
	if !ok {
		return nil, fmt.Errorf("svc: broker provider %q not configured", name)
	}

	svc := &ServiceContext{
		Config:       c,
		BrokerConfig: brokerCfg,
		Providers:    providers,
		ProviderName: name,
		Broker:       provider,
		Router:       broker.NewLevelUpdateRouter(provider),
	}

	ttl := cache.HistoryTTL(c.TTL)
	var store cache.Store
	if strings.TrimSpace(c.Redis.Host) != "" {
		rds, err := redis.NewRedis(c.Redis)
		if err != nil {
			return nil, fmt.Errorf("svc: connect redis %s: %w", c.Redis.Host, err)
		}
		svc.Redis = rds
		store = cache.NewRedisStore(rds)
	} else {
		mem, err := cache.NewMemoryStore(ttl)
		if err != nil {
			return nil, err
		}
		store = mem
	}
	svc.History = cache.NewCachedHistory(name, provider, store, cache.WithTTL(ttl))

	svc.Engine = chart.NewEngine(svc.History, chartConfig(c.Chart),
		chart.WithConstraints(brokerCfg.Constraints()))

	if p, ok := provider.(*mt5bridge.Provider); ok {
		p.WithStreamOptions(mt5bridge.WithStatusHandler(svc.Engine.SetConnected))
	}
	return svc, nil
}

func chartConfig(c config.ChartConf) chart.Config {
	cfg := chart.DefaultConfig()
	cfg.Width = c.Width
	cfg.Height = c.Height
	cfg.FullscreenWidth = c.FullscreenWidth
	cfg.FullscreenHeight = c.FullscreenHeight
	cfg.MaxActive = c.MaxFrames
	if len(c.InitialFrames) > 0 {
		cfg.InitialFrames = c.InitialFrames
	}
	cfg.RefreshInterval = c.RefreshInterval
	cfg.RefreshJitter = c.RefreshJitter
	cfg.HitTolerancePx = c.HitTolerancePx
	cfg.DragThresholdPx = c.DragThresholdPx
	cfg.DedupBandPct = c.DedupBandPct
	cfg.MaxOverlayLevels = c.MaxOverlayLevels
	cfg.RangeBars = c.RangeBars
	return cfg
}

// Start arms the engine refresh, begins pulling broker state and focuses
// the configured symbol.
func (s *ServiceContext) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return errors.New("svc: already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	group := threading.NewRoutineGroup()
	s.cancel, s.group = cancel, group
	s.mu.Unlock()

	if err := s.Engine.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("svc: start engine: %w", err)
	}
	events, unsubscribe := s.Engine.Subscribe(256)
	group.RunSafe(func() {
		defer unsubscribe()
		s.run(runCtx, group, events)
	})

	if symbol := strings.TrimSpace(s.Config.Symbol); symbol != "" {
		if err := s.Engine.FocusSymbol(runCtx, symbol); err != nil {
			logx.WithContext(runCtx).Errorf("svc: focus startup symbol=%s err=%v", symbol, err)
		}
	}
	return nil
}

// Stop halts every background loop and waits for them.
func (s *ServiceContext) Stop() {
	s.mu.Lock()
	cancel, group := s.cancel, s.group
	s.cancel, s.group = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.Engine.Stop()
	group.Wait()
}

// run follows engine events: a symbol change restarts the tick stream and
// reloads the book, a level update is forwarded to the broker.
func (s *ServiceContext) run(ctx context.Context, group *threading.RoutineGroup, events <-chan chart.Event) {
	stopStream := func() {}
	defer func() { stopStream() }()

	ticker := time.NewTicker(durationOr(s.Config.Feed.BookInterval, defaultBookInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case chart.EventSymbolChanged:
				stopStream()
				stopStream = s.streamQuotes(ctx, group, ev.Symbol)
				s.pollBook(ctx)
			case chart.EventLevelUpdate:
				if ev.LevelUpdate != nil {
					update := *ev.LevelUpdate
					group.RunSafe(func() { s.applyLevelUpdate(ctx, update.LevelID, update.Price) })
				}
			}
		case <-ticker.C:
			s.pollBook(ctx)
		}
	}
}

func (s *ServiceContext) streamQuotes(ctx context.Context, group *threading.RoutineGroup, symbol string) context.CancelFunc {
	streamer, ok := s.Broker.(broker.QuoteStreamer)
	if !ok || !s.Config.Feed.Stream || symbol == "" {
		return func() {}
	}
	streamCtx, cancel := context.WithCancel(ctx)
	group.RunSafe(func() {
		err := streamer.StreamQuotes(streamCtx, symbol, s.Engine.OnQuote)
		if err != nil && !errors.Is(err, context.Canceled) {
			logx.WithContext(ctx).Errorf("svc: quote stream symbol=%s err=%v", symbol, err)
		}
	})
	return cancel
}

// pollBook copies the broker's positions and orders for the focused symbol
// into the engine. Failures keep the previous book.
func (s *ServiceContext) pollBook(ctx context.Context) {
	symbol := s.Engine.Symbol()
	if symbol == "" {
		return
	}
	reqCtx, cancel := context.WithTimeout(ctx, durationOr(s.Config.Feed.ApplyTimeout, defaultApplyTimeout))
	defer cancel()

	positions, err := s.Broker.GetPositions(reqCtx, symbol)
	if err != nil {
		logx.WithContext(ctx).Errorf("svc: load positions symbol=%s err=%v", symbol, err)
	} else {
		s.Engine.SetPositions(positions)
	}
	orders, err := s.Broker.GetOrders(reqCtx, symbol)
	if err != nil {
		logx.WithContext(ctx).Errorf("svc: load orders symbol=%s err=%v", symbol, err)
	} else {
		s.Engine.SetOrders(orders)
	}
}

func (s *ServiceContext) applyLevelUpdate(ctx context.Context, levelID string, price float64) {
	if _, err := broker.ParseLevelID(levelID); err != nil {
		// Setup and pattern levels are edited by their owners, not the broker.
		return
	}
	reqCtx, cancel := context.WithTimeout(ctx, durationOr(s.Config.Feed.ApplyTimeout, defaultApplyTimeout))
	defer cancel()
	if err := s.Router.Apply(reqCtx, levelID, price); err != nil {
		return
	}
	s.pollBook(ctx)
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
