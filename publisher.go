package serialplot

import (
	"sync"

	"go.uber.org/atomic"
)

// DefaultQueueSize is the per-subscriber queue length.
const DefaultQueueSize = 256

// Publisher fans events out to subscribers through bounded queues. A full
// queue drops its oldest event, so Publish never waits on a slow reader.
type Publisher struct {
	mu     sync.Mutex
	seq    uint64
	subs   map[*Subscription]struct{}
	closed bool
}

func NewPublisher() *Publisher {
	return &Publisher{subs: make(map[*Subscription]struct{})}
}

// Subscription is one subscriber's view of the event stream.
type Subscription struct {
	pub       *Publisher
	ch        chan Event
	dropped   atomic.Uint64
	closeOnce sync.Once
}

// Subscribe registers a subscriber with a queue of the given size. After the
// publisher is closed the returned subscription's channel is already closed.
func (p *Publisher) Subscribe(size int) *Subscription {
	if size <= 0 {
		size = DefaultQueueSize
	}
	s := &Subscription{pub: p, ch: make(chan Event, size)}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		s.closeOnce.Do(func() { close(s.ch) })
		return s
	}
	p.subs[s] = struct{}{}
	return s
}

// Publish stamps ev with the next sequence number and hands it to every
// subscriber. Events from one caller reach each subscriber in call order.
func (p *Publisher) Publish(ev Event) Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	ev.Seq = p.seq
	if p.closed {
		return ev
	}
	for s := range p.subs {
		s.offer(ev)
	}
	return ev
}

// Close closes every subscription. Later publishes are discarded.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for s := range p.subs {
		s.closeOnce.Do(func() { close(s.ch) })
		delete(p.subs, s)
	}
}

// offer must be called with the publisher lock held; the publisher is the
// only sender, so after one receive there is room for ev.
func (s *Subscription) offer(ev Event) {
	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Inc()
		default:
		}
	}
}

// C returns the receive side of the queue. It is closed by Close or by the
// publisher's Close.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Dropped returns how many events were discarded because the queue was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.pub.mu.Lock()
	defer s.pub.mu.Unlock()
	delete(s.pub.subs, s)
	s.closeOnce.Do(func() { close(s.ch) })
}
