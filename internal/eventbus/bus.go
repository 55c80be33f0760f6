package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the reminder core.
const (
	TaskRegistered = "task.registered"
	ReminderBatch  = "reminder.batch"
	ReminderFired  = "reminder.fired"
	ReminderFailed = "reminder.failed"
)

// Event is an in-memory observability signal.
//
// Publish never blocks: a subscriber whose buffer is full loses the event and
// the bus counts the drop. Nothing that must not be lost (slot triggers, for
// instance) travels over the bus.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// Stats is implemented by the in-memory bus.
type Stats interface {
	Dropped() uint64
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Hold the read lock for the whole fanout; unsubscribe takes the write lock
	// before closing, so a send can never race a close.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}

func (b *memBus) Dropped() uint64 { return b.dropped.Load() }

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}
func (Nop) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}
