package serialplot

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errMockClosed = errors.New("mock port closed")

type readResult struct {
	data []byte
	err  error
}

// mockPort behaves like a device opened with a read timeout: Read returns
// (0, nil) when nothing arrives in time.
type mockPort struct {
	readCh  chan readResult
	timeout time.Duration

	mu       sync.Mutex
	leftover []byte

	closed     chan struct{}
	closeOnce  sync.Once
	closeCount atomic.Int64
	readCount  atomic.Int64
}

func newMockPort() *mockPort {
	return &mockPort{
		readCh:  make(chan readResult, 64),
		timeout: 5 * time.Millisecond,
		closed:  make(chan struct{}),
	}
}

func (m *mockPort) feed(s string) {
	m.readCh <- readResult{data: []byte(s)}
}

func (m *mockPort) fail(err error) {
	m.readCh <- readResult{err: err}
}

func (m *mockPort) Read(p []byte) (int, error) {
	m.readCount.Add(1)

	m.mu.Lock()
	if len(m.leftover) > 0 {
		n := copy(p, m.leftover)
		m.leftover = m.leftover[n:]
		m.mu.Unlock()
		return n, nil
	}
	m.mu.Unlock()

	select {
	case <-m.closed:
		return 0, errMockClosed
	default:
	}

	t := time.NewTimer(m.timeout)
	defer t.Stop()
	select {
	case r := <-m.readCh:
		if r.err != nil {
			return 0, r.err
		}
		n := copy(p, r.data)
		if n < len(r.data) {
			m.mu.Lock()
			m.leftover = append(m.leftover, r.data[n:]...)
			m.mu.Unlock()
		}
		return n, nil
	case <-t.C:
		return 0, nil
	case <-m.closed:
		return 0, errMockClosed
	}
}

func (m *mockPort) Close() error {
	m.closeCount.Add(1)
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

// mockOpener hands out queued ports in order, then fails with err.
type mockOpener struct {
	mu    sync.Mutex
	ports []*mockPort
	err   error
	opens int
	cfgs  []ConnectionConfig
}

func (o *mockOpener) open(cfg ConnectionConfig) (Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	o.cfgs = append(o.cfgs, cfg)
	if len(o.ports) == 0 {
		if o.err == nil {
			return nil, errors.New("no such device")
		}
		return nil, o.err
	}
	p := o.ports[0]
	o.ports = o.ports[1:]
	return p, nil
}

func (o *mockOpener) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

func testConnection() ConnectionConfig {
	return ConnectionConfig{
		PortName:    "/dev/ttyMOCK0",
		BaudRate:    Baud115200.Int(),
		ReadTimeout: 5 * time.Millisecond,
	}
}

func createTestService(t *testing.T, op *mockOpener) *Service {
	t.Helper()
	svc := NewService(Options{
		RetryBackoff: time.Millisecond,
		Opener:       op.open,
	})
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

const eventWait = 2 * time.Second

func nextEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C():
		if !ok {
			t.Fatal("subscription closed")
		}
		return ev
	case <-time.After(eventWait):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

// statusesUntil collects status events until one reaches want. Other event
// kinds are skipped.
func statusesUntil(t *testing.T, sub *Subscription, want State) []StatusChanged {
	t.Helper()
	var out []StatusChanged
	for {
		ev := nextEvent(t, sub)
		if ev.Kind != EventStatusChanged {
			continue
		}
		out = append(out, ev.Status)
		if ev.Status.State == want {
			return out
		}
	}
}

func statesOf(statuses []StatusChanged) []State {
	out := make([]State, len(statuses))
	for i, s := range statuses {
		out[i] = s.State
	}
	return out
}
