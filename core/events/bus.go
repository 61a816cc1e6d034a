package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tipledger/core/types"
)

// Sink receives every event published on a Bus. Implementations must not
// block for long; the bus calls them synchronously from Emit.
type Sink interface {
	Publish(*types.Event) error
}

// Subscription delivers events to a single consumer. C is closed when the
// subscription is cancelled or the bus shuts down.
type Subscription struct {
	C      <-chan *types.Event
	ch     chan *types.Event
	bus    *Bus
	id     uint64
	closed bool
}

// Cancel removes the subscription from its bus.
func (s *Subscription) Cancel() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.unsubscribe(s.id)
}

// Bus fans out committed ledger events to in-process subscribers and
// attached sinks. Delivery is at-most-once: a subscriber whose buffer is full
// misses the event and the drop is counted.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	sinks   []Sink
	nextID  uint64
	closed  bool
	dropped atomic.Uint64
	onError func(error)
	now     func() time.Time
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[uint64]*Subscription),
		now:  time.Now,
	}
}

// SetNowFunc overrides the clock used to stamp EmittedAt.
func (b *Bus) SetNowFunc(now func() time.Time) {
	if b == nil || now == nil {
		return
	}
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
}

// OnSinkError registers a callback invoked when a sink fails to publish.
func (b *Bus) OnSinkError(fn func(error)) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.onError = fn
	b.mu.Unlock()
}

// Attach registers a sink that receives every subsequent event.
func (b *Bus) Attach(sink Sink) {
	if b == nil || sink == nil {
		return
	}
	b.mu.Lock()
	b.sinks = append(b.sinks, sink)
	b.mu.Unlock()
}

// Subscribe registers a consumer. Only events emitted after the call are
// delivered.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan *types.Event, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscription{C: ch, ch: ch, bus: b}
	if b.closed {
		close(ch)
		sub.closed = true
		return sub
	}
	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	return sub
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

// Emit implements Emitter.
func (b *Bus) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	stamped := payload.Clone()
	stamped.ID = uuid.NewString()
	stamped.EmittedAt = b.now().UTC().Unix()

	for _, sub := range b.subs {
		select {
		case sub.ch <- stamped.Clone():
		default:
			b.dropped.Add(1)
		}
	}
	for _, sink := range b.sinks {
		if err := sink.Publish(stamped.Clone()); err != nil && b.onError != nil {
			b.onError(err)
		}
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was
// not keeping up.
func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}

// Subscribers reports the number of live subscriptions.
func (b *Bus) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close stops delivery and closes every subscription channel.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
		delete(b.subs, id)
	}
}
