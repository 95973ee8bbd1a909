// Package eventbus fans task change notifications out to in-process
// subscribers.
//
// Publish never blocks. Each subscriber owns a buffered channel; when it
// falls behind, new events are dropped for that subscriber and counted.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

type Kind string

const (
	TaskAdded   Kind = "task.added"
	TaskEdited  Kind = "task.edited"
	TaskDeleted Kind = "task.deleted"
	TasksClear  Kind = "tasks.cleared"
)

type Event struct {
	Kind   Kind
	Time   time.Time
	Owner  int64
	TaskID int // zero for bulk events
	Count  int // tasks affected
	Actor  int64
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) *Subscription
}

type Subscription struct {
	C <-chan Event

	ch      chan Event
	bus     *memBus
	id      uint64
	once    sync.Once
	dropped atomic.Uint64
}

// Dropped reports how many events were discarded because C was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close detaches the subscription and closes C. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		close(s.ch)
		s.bus.mu.Unlock()
	})
}

func New() Bus {
	return &memBus{subs: map[uint64]*Subscription{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]*Subscription
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Close takes the write lock before closing a channel, so sends under
	// the read lock never race a close.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	s := &Subscription{C: ch, ch: ch, bus: b, id: b.seq.Add(1)}
	b.mu.Lock()
	b.subs[s.id] = s
	b.mu.Unlock()
	return s
}
