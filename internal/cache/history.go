package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeromicro/go-zero/core/collection"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/syncx"

	"mtfchart/pkg/broker"
)

// CacheSourceSuffix marks series answered from the cache.
const CacheSourceSuffix = "+cache"

// Entry is one cached history answer.
type Entry struct {
	Series     broker.HistorySeries `msgpack:"series"`
	FromMs     int64                `msgpack:"from"`
	ToMs       int64                `msgpack:"to"`
	StoredAtMs int64                `msgpack:"storedAt"`
}

// Store persists entries by key. A miss is (nil, nil).
type Store interface {
	Load(ctx context.Context, key string) (*Entry, error)
	Save(ctx context.Context, key string, e *Entry, ttl time.Duration) error
}

// MemoryStore keeps entries in process.
type MemoryStore struct {
	c *collection.Cache
}

// NewMemoryStore builds an in-process store whose entries expire after ttl.
func NewMemoryStore(ttl time.Duration) (*MemoryStore, error) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c, err := collection.NewCache(ttl, collection.WithName("history"))
	if err != nil {
		return nil, fmt.Errorf("cache: memory store: %w", err)
	}
	return &MemoryStore{c: c}, nil
}

func (s *MemoryStore) Load(_ context.Context, key string) (*Entry, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, nil
	}
	e, ok := v.(*Entry)
	if !ok {
		return nil, nil
	}
	return e, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, e *Entry, ttl time.Duration) error {
	if ttl > 0 {
		s.c.SetWithExpire(key, e, ttl)
		return nil
	}
	s.c.Set(key, e)
	return nil
}

// RedisStore keeps msgpack-encoded entries in Redis.
type RedisStore struct {
	r *redis.Redis
}

// NewRedisStore wraps a go-zero Redis client.
func NewRedisStore(r *redis.Redis) *RedisStore {
	return &RedisStore{r: r}
}

func (s *RedisStore) Load(ctx context.Context, key string) (*Entry, error) {
	raw, err := s.r.GetCtx(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("cache: redis get %s: %w", key, err)
	}
	if raw == "" {
		return nil, nil
	}
	var e Entry
	if err := msgpack.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return &e, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, e *Entry, ttl time.Duration) error {
	data, err := msgpack.Marshal(e)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	seconds := int(ttl / time.Second)
	if seconds <= 0 {
		return s.r.SetCtx(ctx, key, string(data))
	}
	return s.r.SetexCtx(ctx, key, string(data), seconds)
}

// CachedHistory decorates a HistoryProvider. A request with a positive
// MaxAgeMs is answered from the store when the stored series is young
// enough; identical in-flight upstream calls are collapsed.
type CachedHistory struct {
	provider string
	upstream broker.HistoryProvider
	store    Store
	ttl      time.Duration
	flight   syncx.SingleFlight
	now      func() time.Time
}

// Option customises CachedHistory.
type Option func(*CachedHistory)

// WithTTL caps how long stored series live.
func WithTTL(ttl time.Duration) Option {
	return func(c *CachedHistory) { c.ttl = ttl }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *CachedHistory) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCachedHistory wraps upstream; provider scopes the keys.
func NewCachedHistory(provider string, upstream broker.HistoryProvider, store Store, opts ...Option) *CachedHistory {
	c := &CachedHistory{
		provider: provider,
		upstream: upstream,
		store:    store,
		ttl:      5 * time.Minute,
		flight:   syncx.NewSingleFlight(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ broker.HistoryProvider = (*CachedHistory)(nil)

func (c *CachedHistory) GetHistorySeries(ctx context.Context, req broker.HistoryRequest) (*broker.HistorySeries, error) {
	if c.upstream == nil {
		return nil, broker.ErrNotConnected
	}
	key := HistoryKey(c.provider, broker.NormalizeSymbol(req.Symbol), string(req.Resolution))

	if req.MaxAgeMs > 0 {
		entry, err := c.store.Load(ctx, key)
		if err != nil {
			logx.WithContext(ctx).Errorf("cache: load history key=%s err=%v", key, err)
		} else if c.fresh(entry, req) {
			return cachedCopy(entry), nil
		}
	}

	flightKey := strings.Join([]string{key, strconv.FormatInt(req.FromMs, 10), strconv.FormatInt(req.ToMs, 10)}, ":")
	v, err := c.flight.Do(flightKey, func() (any, error) {
		series, err := c.upstream.GetHistorySeries(ctx, req)
		if err != nil {
			return nil, err
		}
		if series == nil {
			return nil, errors.New("cache: upstream returned no series")
		}
		entry := &Entry{Series: *series, FromMs: req.FromMs, ToMs: req.ToMs, StoredAtMs: c.now().UnixMilli()}
		if err := c.store.Save(ctx, key, entry, c.ttl); err != nil {
			logx.WithContext(ctx).Errorf("cache: save history key=%s err=%v", key, err)
		}
		return series, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*broker.HistorySeries), nil
}

// fresh reports whether entry may answer req: young enough and covering
// the requested start.
func (c *CachedHistory) fresh(entry *Entry, req broker.HistoryRequest) bool {
	if entry == nil || len(entry.Series.Bars) == 0 {
		return false
	}
	age := c.now().UnixMilli() - entry.StoredAtMs
	if age < 0 || age > req.MaxAgeMs {
		return false
	}
	return entry.FromMs <= req.FromMs+req.Resolution.Millis()
}

func cachedCopy(entry *Entry) *broker.HistorySeries {
	s := entry.Series
	if !strings.HasSuffix(s.Source, CacheSourceSuffix) {
		s.Source += CacheSourceSuffix
	}
	if s.FetchedAtMs == 0 {
		s.FetchedAtMs = entry.StoredAtMs
	}
	return &s
}
