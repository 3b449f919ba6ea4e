package serialplot

import (
	"fmt"
	"slices"
	"sync"
)

// DefaultMaxPoints is the per-channel buffer capacity when none is configured.
const DefaultMaxPoints = 100

// ChannelKey identifies a channel by its 1-based field position.
type ChannelKey int

// Name returns the display name, e.g. "Channel 2".
func (k ChannelKey) Name() string {
	return fmt.Sprintf("Channel %d", int(k))
}

// Snapshot is a detached copy of one channel's samples. Indices[i] is the
// position of Values[i] within the buffer.
type Snapshot struct {
	Key     ChannelKey
	Values  []float64
	Indices []int
}

type channelBuffer struct {
	samples *ring[float64]
	latest  float64
}

// ChannelStore keeps a bounded rolling buffer and a latest-value cache per
// channel. Channels are created on first Record. Safe for concurrent use.
type ChannelStore struct {
	mu        sync.RWMutex
	maxPoints int
	channels  map[ChannelKey]*channelBuffer
}

func NewChannelStore(maxPoints int) *ChannelStore {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	return &ChannelStore{
		maxPoints: maxPoints,
		channels:  make(map[ChannelKey]*channelBuffer),
	}
}

// MaxPoints returns the per-channel capacity.
func (s *ChannelStore) MaxPoints() int {
	return s.maxPoints
}

// Record appends value to the channel, evicting the oldest sample when full.
func (s *ChannelStore) Record(key ChannelKey, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[key]
	if !ok {
		ch = &channelBuffer{samples: newRing[float64](s.maxPoints)}
		s.channels[key] = ch
	}
	ch.samples.push(value)
	ch.latest = value
}

// Snapshot returns a copy of the channel's samples, oldest first.
func (s *ChannelStore) Snapshot(key ChannelKey) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.channels[key]
	if !ok {
		return Snapshot{Key: key}, false
	}
	values := ch.samples.slice()
	indices := make([]int, len(values))
	for i := range indices {
		indices[i] = i
	}
	return Snapshot{Key: key, Values: values, Indices: indices}, true
}

// Latest returns the most recent value recorded on the channel.
func (s *ChannelStore) Latest(key ChannelKey) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.channels[key]
	if !ok {
		return 0, false
	}
	return ch.latest, true
}

// Keys lists known channels in ascending order.
func (s *ChannelStore) Keys() []ChannelKey {
	s.mu.RLock()
	keys := make([]ChannelKey, 0, len(s.channels))
	for k := range s.channels {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	slices.Sort(keys)
	return keys
}

// Reset drops every channel.
func (s *ChannelStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = make(map[ChannelKey]*channelBuffer)
}
