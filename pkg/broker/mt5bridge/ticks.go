package mt5bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zeromicro/go-zero/core/logx"

	"mtfchart/pkg/broker"
)

const (
	defaultReconnectDelay = 2 * time.Second
	defaultPongWait       = 30 * time.Second
	defaultWriteWait      = 10 * time.Second
)

// TickStream subscribes to the bridge's /ws/ticks feed and reconnects until
// its context is done.
type TickStream struct {
	url            string
	dialer         websocket.Dialer
	reconnectDelay time.Duration
	pongWait       time.Duration
	writeWait      time.Duration
	onStatus       func(connected bool)
}

// StreamOption configures a TickStream.
type StreamOption func(*TickStream)

// WithReconnectDelay sets the pause between reconnect attempts.
func WithReconnectDelay(d time.Duration) StreamOption {
	return func(s *TickStream) {
		if d > 0 {
			s.reconnectDelay = d
		}
	}
}

// WithPongWait sets the read deadline; pings go out at 90% of it.
func WithPongWait(d time.Duration) StreamOption {
	return func(s *TickStream) {
		if d > time.Second {
			s.pongWait = d
		}
	}
}

// WithStatusHandler is told whenever the connection comes up or drops.
func WithStatusHandler(fn func(connected bool)) StreamOption {
	return func(s *TickStream) { s.onStatus = fn }
}

// NewTickStream builds a stream for the given ws:// URL.
func NewTickStream(wsURL string, opts ...StreamOption) *TickStream {
	s := &TickStream{
		url:            wsURL,
		dialer:         websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		reconnectDelay: defaultReconnectDelay,
		pongWait:       defaultPongWait,
		writeWait:      defaultWriteWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TicksURL derives the websocket address from the bridge HTTP address.
func TicksURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("mt5bridge: parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/ticks"
	return u.String(), nil
}

// Run subscribes to symbols and calls onQuote for every new tick until ctx is
// done. Ticks not newer than the previous one of the same symbol are dropped.
func (s *TickStream) Run(ctx context.Context, symbols []string, onQuote func(broker.Quote)) error {
	last := make(map[string]int64)
	for {
		err := s.session(ctx, symbols, last, onQuote)
		s.status(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logx.WithContext(ctx).Infof("mt5bridge: tick stream dropped url=%s err=%v", s.url, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *TickStream) session(ctx context.Context, symbols []string, last map[string]int64, onQuote func(broker.Quote)) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(kind int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(s.writeWait))
		return conn.WriteMessage(kind, data)
	}

	sub, _ := json.Marshal(subscriptionMessage{Type: "set_subscriptions", Symbols: symbols})
	if err := write(websocket.TextMessage, sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.status(true)

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(s.pongWait * 9 / 10)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				if err := write(websocket.PingMessage, nil); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.pongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
		var msg tickWire
		if err := json.Unmarshal(data, &msg); err != nil {
			logx.WithContext(ctx).Errorf("mt5bridge: decode tick err=%v", err)
			continue
		}
		switch msg.Type {
		case "tick":
			q := msg.toQuote()
			if q.TimestampMs > 0 {
				if prev, ok := last[q.Symbol]; ok && q.TimestampMs <= prev {
					continue
				}
				last[q.Symbol] = q.TimestampMs
			}
			onQuote(q)
		case "error", "symbol_error":
			logx.WithContext(ctx).Errorf("mt5bridge: stream %s symbol=%s message=%s", msg.Type, msg.Symbol, msg.Message)
		}
	}
}

func (s *TickStream) status(connected bool) {
	if s.onStatus != nil {
		s.onStatus(connected)
	}
}
