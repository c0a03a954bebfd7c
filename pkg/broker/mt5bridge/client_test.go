package mt5bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtfchart/pkg/bars"
	"mtfchart/pkg/broker"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(WithBaseURL(server.URL), WithRetryBackoff(time.Millisecond), WithMaxRetries(2))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestGetHistorySeries(t *testing.T) {
	var got historyRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/history/series", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":          true,
			"fetchedAtMs": 1_700_000_000_500,
			"source":      "mt5",
			"bars": []map[string]any{
				{"t": 1_700_000_000_000, "o": 1.1, "h": 1.2, "l": 1.0, "c": 1.15, "v": 10},
			},
		})
	})

	series, err := client.GetHistorySeries(context.Background(), broker.HistoryRequest{
		Symbol: "EURUSD", Resolution: bars.Res1D,
		FromMs: 0, ToMs: 200 * bars.Res1D.Millis(),
	})
	require.NoError(t, err)
	assert.Equal(t, "1d", got.Resolution)
	assert.Equal(t, 201, got.Limit)
	assert.Equal(t, "mt5", series.Source)
	assert.Equal(t, int64(1_700_000_000_500), series.FetchedAtMs)
	require.Len(t, series.Bars, 1)
	assert.Len(t, bars.Normalize(series.Bars), 1)
}

func TestGetHistorySeriesClampsLimit(t *testing.T) {
	var got historyRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "bars": []any{}})
	})
	_, err := client.GetHistorySeries(context.Background(), broker.HistoryRequest{
		Symbol: "EURUSD", Resolution: bars.Res1h, FromMs: 0, ToMs: 3 * bars.Res1h.Millis(),
	})
	require.NoError(t, err)
	assert.Equal(t, minHistoryLimit, got.Limit)
	assert.Equal(t, "1h", got.Resolution)
}

func TestGetHistorySeriesWeeklyUnsupported(t *testing.T) {
	client := NewClient()
	_, err := client.GetHistorySeries(context.Background(), broker.HistoryRequest{Symbol: "EURUSD", Resolution: bars.Res1W})
	assert.ErrorIs(t, err, ErrUnsupportedResolution)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "MT5 not initialized"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "positions": []any{}})
	})
	_, err := client.GetPositions(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestServerErrorsExhaustRetries(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "MT5 not initialized"})
	})
	_, err := client.GetOrders(context.Background(), "")
	assert.ErrorIs(t, err, ErrBridgeUnavailable)
	assert.Contains(t, err.Error(), "MT5 not initialized")
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "Position not found"})
	})
	sl := 1.09
	err := client.ModifyPosition(context.Background(), "77", &sl, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBridgeUnavailable)
	assert.Contains(t, err.Error(), "Position not found")
	assert.Equal(t, int32(1), calls.Load())
}

func TestRejectedAnswerIsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": "Modify rejected"})
	})
	price := 1.2
	err := client.ModifyOrder(context.Background(), "5", &price, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Modify rejected")
}

func TestPositionsAndOrdersMapping(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "EURUSD", r.URL.Query().Get("symbol"))
		switch r.URL.Path {
		case "/positions":
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "positions": []map[string]any{
				{"ticket": 11, "symbol": "EURUSD", "type": 1, "volume": 0.5, "price_open": 1.1, "sl": 1.11, "tp": 1.05},
			}})
		case "/orders":
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "orders": []map[string]any{
				{"ticket": 12, "symbol": "EURUSD", "type": 2, "volume_current": 1, "price_open": 1.09, "sl": 1.08, "tp": 1.12},
			}})
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()
	positions, err := client.GetPositions(ctx, "EURUSD")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, broker.Position{ID: "11", Symbol: "EURUSD", Side: broker.SideSell, Volume: 0.5, EntryPrice: 1.1, StopLoss: 1.11, TakeProfit: 1.05}, positions[0])

	orders, err := client.GetOrders(ctx, "EURUSD")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "12", orders[0].ID)
	assert.Equal(t, broker.SideBuy, orders[0].Side)
	assert.Equal(t, "limit", orders[0].Type)
	assert.Equal(t, 1.09, orders[0].Price)
}

func TestModifyPayloads(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body = nil
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	ctx := context.Background()

	tp := 1.2
	require.NoError(t, client.ModifyPosition(ctx, "42", nil, &tp))
	assert.Equal(t, map[string]any{"position": float64(42), "tp": 1.2}, body)

	price := 1.15
	require.NoError(t, client.ModifyOrder(ctx, "9", &price, nil, nil))
	assert.Equal(t, map[string]any{"order": float64(9), "price": 1.15}, body)

	assert.Error(t, client.ModifyPosition(ctx, "abc", nil, &tp))
	assert.Error(t, client.ModifyOrder(ctx, "9", nil, nil, nil))
}

func TestGetQuote(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/quote", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"ok": true, "resolved": "EURUSD",
			"quote": map[string]any{"type": "tick", "symbol": "EURUSD", "time": 1_700_000_000, "time_msc": 1_700_000_000_123, "bid": 1.1, "ask": 1.1002, "mid": 1.1001},
		})
	})
	q, err := client.GetQuote(context.Background(), "eurusd")
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000_123), q.TimestampMs)
	assert.InDelta(t, 1.1001, q.Price(), 1e-12)
	assert.True(t, q.HasSpread())
}

func TestProviderRegistered(t *testing.T) {
	cfg, err := broker.LoadConfigFromReader(strings.NewReader(`
default: bridge
providers:
  bridge:
    type: mt5bridge
    base_url: http://127.0.0.1:8001/
    timeout: 3s
`))
	require.NoError(t, err)
	providers, err := cfg.BuildProviders()
	require.NoError(t, err)
	p, ok := providers["bridge"].(*Provider)
	require.True(t, ok)
	assert.Equal(t, "http://127.0.0.1:8001", p.BaseURL())
	assert.Equal(t, "ws://127.0.0.1:8001/ws/ticks", p.wsURL)
	assert.Equal(t, 3*time.Second, p.httpClient.Timeout)

	_, err = NewProvider("empty", &broker.ProviderConfig{Type: ProviderType})
	assert.Error(t, err)
}
