package chart

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"

	"mtfchart/pkg/frames"
	"mtfchart/pkg/interaction"
)

// EventType names an outbound engine event.
type EventType string

const (
	EventSymbolChanged  EventType = "symbol-changed"
	EventFramesChanged  EventType = "frames-changed"
	EventFramesUpdated  EventType = "frames-updated"
	EventBarClose       EventType = "bar-close"
	EventLevelUpdate    EventType = "level-update"
	EventPriceSelect    EventType = "price-select"
	EventConstraintHint EventType = "constraint-hint"
)

// Event is one typed message to the host. Exactly one payload field matching
// Type is set.
type Event struct {
	ID     string    `json:"id"`
	Type   EventType `json:"type"`
	AtMs   int64     `json:"atMs"`
	Symbol string    `json:"symbol,omitempty"`

	Frames      []string                 `json:"frames,omitempty"`
	Change      *frames.Change           `json:"change,omitempty"`
	BarClose    *frames.BarClose         `json:"barClose,omitempty"`
	LevelUpdate *interaction.LevelUpdate `json:"levelUpdate,omitempty"`
	PriceSelect *interaction.PriceSelect `json:"priceSelect,omitempty"`
	Hint        string                   `json:"hint,omitempty"`
}

func newEvent(t EventType, symbol string, now time.Time) Event {
	return Event{ID: uuid.NewString(), Type: t, AtMs: now.UnixMilli(), Symbol: symbol}
}

// Bus fans events out to subscribers. Slow subscribers lose events rather
// than blocking the engine.
type Bus struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]chan Event
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]chan Event)}
}

// Subscribe registers a buffered listener. The returned func unsubscribes
// and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers e to every subscriber without blocking.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			logx.Errorf("chart: drop event type=%s subscriber=%d", e.Type, id)
		}
	}
}
