package driver

import (
	"sync"

	"github.com/srg/ibbq/internal/ringchan"
)

// DefaultSubscriptionBuffer is used when Subscribe is called with a
// non-positive buffer.
const DefaultSubscriptionBuffer = 64

// Subscription is a bounded event feed. When the reader falls behind the
// oldest events are overwritten, so the driver never blocks on a listener.
type Subscription struct {
	events *ringchan.RingChannel[Event]
	owner  *subscribers
}

// C delivers events until the subscription or the driver is closed.
func (s *Subscription) C() <-chan Event {
	return s.events.C()
}

// Dropped is the number of events overwritten before they were read.
func (s *Subscription) Dropped() int64 {
	return s.events.GetMetrics().Overwritten
}

// Close detaches the subscription and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.owner.remove(s)
	s.events.Close()
}

type subscribers struct {
	mu     sync.Mutex
	set    map[*Subscription]struct{}
	closed bool
}

func newSubscribers() *subscribers {
	return &subscribers{set: make(map[*Subscription]struct{})}
}

func (s *subscribers) add(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriptionBuffer
	}
	sub := &Subscription{events: ringchan.New[Event](buffer), owner: s}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		sub.events.Close()
		return sub
	}
	s.set[sub] = struct{}{}
	return sub
}

func (s *subscribers) remove(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.set, sub)
}

func (s *subscribers) publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.set {
		sub.events.Send(ev)
	}
}

func (s *subscribers) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for sub := range s.set {
		sub.events.Close()
	}
	s.set = make(map[*Subscription]struct{})
}
