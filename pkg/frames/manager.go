package frames

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/threading"

	"mtfchart/pkg/bars"
	"mtfchart/pkg/broker"
)

// ErrNoSymbol is returned by refreshes issued before any symbol is focused.
var ErrNoSymbol = errors.New("frames: no symbol focused")

// DefaultFrames is the initial active set.
var DefaultFrames = []string{"1m", "15m", "1h"}

// Option customises a Manager.
type Option func(*Manager)

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithMaxActive overrides the active frame capacity.
func WithMaxActive(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxActive = n
		}
	}
}

// WithInitialFrames sets the initial active set.
func WithInitialFrames(ids ...string) Option {
	return func(m *Manager) { m.initial = ids }
}

// WithCatalog replaces the frame catalog.
func WithCatalog(c *Catalog) Option {
	return func(m *Manager) {
		if c != nil {
			m.catalog = c
		}
	}
}

// Change reports the ids an active-set mutation added and removed.
type Change struct {
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

// Empty reports a no-op change.
func (c Change) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0
}

// Manager owns the active frame set and every frame's state. All methods are
// safe for concurrent use.
type Manager struct {
	mu        sync.Mutex
	catalog   *Catalog
	fetcher   *fetcher
	now       func() time.Time
	maxActive int
	initial   []string

	symbol      string
	active      []string
	activatedAt map[string]uint64
	states      map[string]*State
	tokens      map[string]uint64
	seq         uint64
}

// NewManager constructs a Manager reading history from h.
func NewManager(h broker.HistoryProvider, opts ...Option) *Manager {
	m := &Manager{
		catalog:     DefaultCatalog(),
		now:         time.Now,
		maxActive:   DefaultMaxActive,
		initial:     DefaultFrames,
		activatedAt: make(map[string]uint64),
		states:      make(map[string]*State),
		tokens:      make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.fetcher = &fetcher{history: h, now: m.now}

	next := m.normalizeIDs(m.initial)
	if len(next) == 0 {
		next = m.catalog.IDs()[:1]
	}
	m.applyActive(next)
	return m
}

// Catalog exposes the frame catalog.
func (m *Manager) Catalog() *Catalog { return m.catalog }

// MaxActive returns the active set capacity.
func (m *Manager) MaxActive() int { return m.maxActive }

// Symbol returns the focused symbol.
func (m *Manager) Symbol() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.symbol
}

// Active returns the active frame ids in canonical order.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.active...)
}

// IsActive reports whether id is in the active set.
func (m *Manager) IsActive(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isActive(id)
}

// ToggleFrame adds or removes a frame. It is a no-op when removal would leave
// no frame or addition would exceed capacity.
func (m *Manager) ToggleFrame(id string) (Change, error) {
	resolved, err := m.catalog.Resolve(id)
	if err != nil {
		return Change{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isActive(resolved) {
		if len(m.active) <= 1 {
			return Change{}, nil
		}
		next := make([]string, 0, len(m.active)-1)
		for _, a := range m.active {
			if a != resolved {
				next = append(next, a)
			}
		}
		return m.applyActive(next), nil
	}
	if len(m.active) >= m.maxActive {
		return Change{}, nil
	}
	return m.applyActive(append(append([]string(nil), m.active...), resolved)), nil
}

// EnsureFrameActive resolves a loose timeframe and activates it, evicting the
// longest-active frame when at capacity. It returns the resolved id.
func (m *Manager) EnsureFrameActive(alias string) (string, Change, error) {
	resolved, err := m.catalog.Resolve(alias)
	if err != nil {
		return "", Change{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isActive(resolved) {
		return resolved, Change{}, nil
	}
	next := append([]string(nil), m.active...)
	if len(next) >= m.maxActive {
		oldest := 0
		for i, id := range next {
			if m.activatedAt[id] < m.activatedAt[next[oldest]] {
				oldest = i
			}
		}
		next = append(next[:oldest], next[oldest+1:]...)
	}
	next = append(next, resolved)
	return resolved, m.applyActive(next), nil
}

// SetActiveFrames replaces the active set. Unknown ids are ignored; the list
// is deduplicated, capped and put in canonical order. An empty result keeps
// the current set.
func (m *Manager) SetActiveFrames(ids []string) Change {
	next := m.normalizeIDs(ids)
	if len(next) == 0 {
		return Change{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyActive(next)
}

// FocusSymbol switches the instrument: every frame is reset, in-flight
// fetches are superseded and all active frames are refreshed with force.
func (m *Manager) FocusSymbol(ctx context.Context, symbol string) error {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return ErrNoSymbol
	}
	m.mu.Lock()
	m.symbol = symbol
	for _, id := range m.active {
		m.states[id] = &State{}
		m.seq++
		m.tokens[id] = m.seq
	}
	m.mu.Unlock()
	return m.Refresh(ctx, true)
}

// Refresh fetches every active frame.
func (m *Manager) Refresh(ctx context.Context, force bool) error {
	return m.RefreshFrames(ctx, m.Active(), force)
}

type fetchJob struct {
	cfg   Config
	token uint64
}

// RefreshFrames fetches the given active frames concurrently and waits for
// them. Results superseded by a later refresh or a symbol change are
// discarded. The returned error joins per-frame failures, which also stay on
// each frame.
func (m *Manager) RefreshFrames(ctx context.Context, ids []string, force bool) error {
	m.mu.Lock()
	symbol := m.symbol
	if symbol == "" {
		m.mu.Unlock()
		return ErrNoSymbol
	}
	jobs := make([]fetchJob, 0, len(ids))
	for _, id := range ids {
		st, ok := m.states[id]
		if !ok || !m.isActive(id) {
			continue
		}
		cfg, _ := m.catalog.Get(id)
		m.seq++
		m.tokens[id] = m.seq
		st.Loading = true
		jobs = append(jobs, fetchJob{cfg: cfg, token: m.seq})
	}
	m.mu.Unlock()

	var (
		errMu sync.Mutex
		errs  []error
	)
	group := threading.NewRoutineGroup()
	for _, job := range jobs {
		group.RunSafe(func() {
			res, err := m.fetcher.fetch(ctx, symbol, job.cfg, force)
			if !m.apply(ctx, symbol, job, res, err) || err == nil {
				return
			}
			errMu.Lock()
			errs = append(errs, fmt.Errorf("frame %s: %w", job.cfg.ID, err))
			errMu.Unlock()
		})
	}
	group.Wait()
	return errors.Join(errs...)
}

// apply stores a fetch outcome if its token is still current.
func (m *Manager) apply(ctx context.Context, symbol string, job fetchJob, res fetchResult, err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := job.cfg.ID
	st, ok := m.states[id]
	if !ok || m.symbol != symbol || m.tokens[id] != job.token {
		logx.WithContext(ctx).Debugf("frames: discard stale result frame=%s symbol=%s token=%d", id, symbol, job.token)
		return false
	}
	st.Loading = false
	if err != nil {
		st.Error = describeError(symbol, job.cfg, err)
		logx.WithContext(ctx).Errorf("frames: fetch frame=%s symbol=%s err=%v", id, symbol, err)
		return true
	}
	st.Bars = res.bars
	st.Coverage = res.coverage
	st.Source = res.source
	st.UpdatedAtMs = res.fetchedAtMs
	st.Error = ""
	return true
}

// ApplyQuote folds a live quote into every active frame with bars. It returns
// the ids of frames that changed and one BarClose per frame whose bucket
// rolled over.
func (m *Manager) ApplyQuote(q broker.Quote) ([]string, []BarClose) {
	price := q.Price()
	if price <= 0 {
		return nil, nil
	}
	ts := q.TimestampMs
	if ts <= 0 {
		ts = m.now().UnixMilli()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.symbol == "" || (q.Symbol != "" && !broker.SameSymbol(q.Symbol, m.symbol)) {
		return nil, nil
	}
	var (
		changed []string
		closes  []BarClose
	)
	for _, id := range m.active {
		st := m.states[id]
		cfg, _ := m.catalog.Get(id)
		out, ok, closed := applyTick(st.Bars, cfg.Resolution, cfg.Capacity(), price, ts)
		if !ok {
			continue
		}
		st.Bars = out
		st.LastTickMs = ts
		changed = append(changed, id)
		if closed != nil {
			closes = append(closes, BarClose{
				Symbol:     m.symbol,
				FrameID:    id,
				Resolution: cfg.Resolution,
				Closed:     *closed,
				Series:     bars.Clone(out),
			})
		}
	}
	return changed, closes
}

// Frames returns a copy of every active frame in canonical order.
func (m *Manager) Frames() []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Frame, 0, len(m.active))
	for _, id := range m.active {
		cfg, _ := m.catalog.Get(id)
		out = append(out, Frame{Config: cfg, State: m.states[id].Clone()})
	}
	return out
}

// Frame returns a copy of one active frame.
func (m *Manager) Frame(id string) (Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		return Frame{}, false
	}
	cfg, _ := m.catalog.Get(id)
	return Frame{Config: cfg, State: st.Clone()}, true
}

func (m *Manager) isActive(id string) bool {
	for _, a := range m.active {
		if a == id {
			return true
		}
	}
	return false
}

// normalizeIDs resolves, dedupes and caps ids, keeping input priority for the
// cap, then sorts canonically.
func (m *Manager) normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, raw := range ids {
		id, err := m.catalog.Resolve(raw)
		if err != nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		if len(out) == m.maxActive {
			break
		}
	}
	m.catalog.sortIDs(out)
	return out
}

// applyActive installs next as the active set. Caller holds the lock.
func (m *Manager) applyActive(next []string) Change {
	m.catalog.sortIDs(next)
	keep := make(map[string]struct{}, len(next))
	var change Change
	for _, id := range next {
		keep[id] = struct{}{}
		if _, ok := m.states[id]; !ok {
			m.states[id] = &State{}
			m.seq++
			m.activatedAt[id] = m.seq
			change.Added = append(change.Added, id)
		}
	}
	for _, id := range m.active {
		if _, ok := keep[id]; ok {
			continue
		}
		delete(m.states, id)
		delete(m.tokens, id)
		delete(m.activatedAt, id)
		change.Removed = append(change.Removed, id)
	}
	m.active = next
	return change
}
