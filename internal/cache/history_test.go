package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/stores/redis/redistest"

	"mtfchart/internal/config"
	"mtfchart/pkg/bars"
	"mtfchart/pkg/broker"
)

type countingHistory struct {
	calls atomic.Int32
	gate  chan struct{}
	err   error
}

func (h *countingHistory) GetHistorySeries(_ context.Context, req broker.HistoryRequest) (*broker.HistorySeries, error) {
	h.calls.Add(1)
	if h.gate != nil {
		<-h.gate
	}
	if h.err != nil {
		return nil, h.err
	}
	return &broker.HistorySeries{
		Source:      "mt5",
		FetchedAtMs: req.ToMs,
		Bars: []bars.RawBar{
			{"t": req.ToMs - req.Resolution.Millis(), "o": 1.1, "h": 1.2, "l": 1.0, "c": 1.15},
			{"t": req.ToMs, "o": 1.15, "h": 1.25, "l": 1.1, "c": 1.2},
		},
	}, nil
}

func request(maxAge time.Duration) broker.HistoryRequest {
	return broker.HistoryRequest{
		Symbol:     "eur/usd",
		Resolution: bars.Res1m,
		FromMs:     1_700_000_000_000 - 500*60_000,
		ToMs:       1_700_000_000_000,
		MaxAgeMs:   maxAge.Milliseconds(),
	}
}

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	mem, err := NewMemoryStore(time.Minute)
	require.NoError(t, err)
	return map[string]Store{
		"memory": mem,
		"redis":  NewRedisStore(redistest.CreateRedis(t)),
	}
}

func TestCachedHistoryServesFreshEntries(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			now := time.UnixMilli(1_700_000_000_000)
			up := &countingHistory{}
			c := NewCachedHistory("bridge", up, store, WithClock(func() time.Time { return now }))
			ctx := context.Background()

			first, err := c.GetHistorySeries(ctx, request(30*time.Second))
			require.NoError(t, err)
			assert.Equal(t, "mt5", first.Source)

			now = now.Add(10 * time.Second)
			second, err := c.GetHistorySeries(ctx, request(30*time.Second))
			require.NoError(t, err)
			assert.Equal(t, "mt5"+CacheSourceSuffix, second.Source)
			assert.Len(t, bars.Normalize(second.Bars), 2)
			assert.Equal(t, int32(1), up.calls.Load())

			now = now.Add(time.Minute)
			third, err := c.GetHistorySeries(ctx, request(30*time.Second))
			require.NoError(t, err)
			assert.Equal(t, "mt5", third.Source)
			assert.Equal(t, int32(2), up.calls.Load())
		})
	}
}

func TestCachedHistoryForcedBypassesStore(t *testing.T) {
	store, err := NewMemoryStore(time.Minute)
	require.NoError(t, err)
	up := &countingHistory{}
	c := NewCachedHistory("bridge", up, store)
	ctx := context.Background()

	_, err = c.GetHistorySeries(ctx, request(time.Minute))
	require.NoError(t, err)
	series, err := c.GetHistorySeries(ctx, request(0))
	require.NoError(t, err)
	assert.Equal(t, "mt5", series.Source)
	assert.Equal(t, int32(2), up.calls.Load())
}

func TestCachedHistoryCollapsesConcurrentCalls(t *testing.T) {
	store, err := NewMemoryStore(time.Minute)
	require.NoError(t, err)
	up := &countingHistory{gate: make(chan struct{})}
	c := NewCachedHistory("bridge", up, store)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetHistorySeries(context.Background(), request(0))
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return up.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(up.gate)
	wg.Wait()
	assert.Equal(t, int32(1), up.calls.Load())
}

func TestCachedHistoryPropagatesErrors(t *testing.T) {
	store, err := NewMemoryStore(time.Minute)
	require.NoError(t, err)
	boom := errors.New("bridge down")
	c := NewCachedHistory("bridge", &countingHistory{err: boom}, store)
	_, err = c.GetHistorySeries(context.Background(), request(time.Minute))
	assert.ErrorIs(t, err, boom)

	c = NewCachedHistory("bridge", nil, store)
	_, err = c.GetHistorySeries(context.Background(), request(time.Minute))
	assert.ErrorIs(t, err, broker.ErrNotConnected)
}

func TestHistoryKey(t *testing.T) {
	assert.Equal(t, "mtfchart:history:bridge:EURUSD:1m", HistoryKey("bridge", "EURUSD", "1m"))
	assert.Equal(t, "mtfchart:history:EURUSD:1h", HistoryKey(" ", "EURUSD", "1h"))
}

func TestHistoryTTL(t *testing.T) {
	assert.Equal(t, 2*time.Minute, HistoryTTL(config.CacheTTL{History: 120}))
	assert.Equal(t, 5*time.Minute, HistoryTTL(config.CacheTTL{}))
	assert.Equal(t, time.Duration(0), HistoryTTL(config.CacheTTL{History: -1}))
}
