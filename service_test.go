package serialplot

import (
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestStartRetryExhaustion(t *testing.T) {
	op := &mockOpener{err: errors.New("device busy")}
	svc := createTestService(t, op)
	sub := svc.Subscribe(0)

	if err := svc.Start(testConnection()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	got := statusesUntil(t, sub, StateFailed)
	want := []State{StateConnecting, StateRetrying, StateRetrying, StateRetrying, StateFailed}
	if !reflect.DeepEqual(statesOf(got), want) {
		t.Fatalf("states = %v, want %v", statesOf(got), want)
	}
	for i, n := range []string{"(2)", "(1)", "(0)"} {
		msg := got[i+1].Message
		if !strings.Contains(msg, "device busy") || !strings.HasSuffix(msg, "Retrying "+n+"...") {
			t.Fatalf("retry message %d = %q", i, msg)
		}
	}
	if got[0].Message != "Connecting to /dev/ttyMOCK0 at 115200 baud..." {
		t.Fatalf("connecting message = %q", got[0].Message)
	}
	if last := got[len(got)-1]; last.Severity != SeverityError || !strings.HasPrefix(last.Message, "Failed to connect") {
		t.Fatalf("final status = %+v", last)
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if op.openCount() != 3 {
		t.Fatalf("opens = %d, want 3", op.openCount())
	}
	if svc.State() != StateFailed {
		t.Fatalf("state after Stop = %v, want failed", svc.State())
	}
	if svc.Running() {
		t.Fatal("loop still running after failure")
	}
}

func TestServiceDataFlow(t *testing.T) {
	mp := newMockPort()
	op := &mockOpener{ports: []*mockPort{mp}}
	svc := createTestService(t, op)
	sub := svc.Subscribe(0)

	if err := svc.Start(testConnection()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	statusesUntil(t, sub, StateConnected)

	mp.feed("1.5\r\n1,2\n1,abc,3\nhello\n")

	type step struct {
		kind EventKind
		key  ChannelKey
		text string
	}
	want := []step{
		{kind: EventChannelUpdated, key: 1},
		{kind: EventChannelUpdated, key: 1},
		{kind: EventChannelUpdated, key: 2},
		{kind: EventChannelUpdated, key: 1},
		{kind: EventChannelUpdated, key: 3},
		{kind: EventNonNumericAppended, text: "1,abc,3"},
		{kind: EventNonNumericAppended, text: "hello"},
	}

	var lastSeq uint64
	for i, w := range want {
		ev := nextEvent(t, sub)
		if lastSeq != 0 && ev.Seq != lastSeq+1 {
			t.Fatalf("event %d: seq %d after %d", i, ev.Seq, lastSeq)
		}
		lastSeq = ev.Seq
		if ev.Kind != w.kind {
			t.Fatalf("event %d: kind %v, want %v", i, ev.Kind, w.kind)
		}
		switch w.kind {
		case EventChannelUpdated:
			if ev.Channel.Key != w.key {
				t.Fatalf("event %d: channel %d, want %d", i, ev.Channel.Key, w.key)
			}
		case EventNonNumericAppended:
			if ev.NonNumeric.Entry.Text != w.text {
				t.Fatalf("event %d: text %q, want %q", i, ev.NonNumeric.Entry.Text, w.text)
			}
		}
	}

	snap, _ := svc.Store().Snapshot(1)
	if !reflect.DeepEqual(snap.Values, []float64{1.5, 1, 1}) {
		t.Fatalf("channel 1 = %v", snap.Values)
	}
	if v, _ := svc.Store().Latest(3); v != 3 {
		t.Fatalf("channel 3 latest = %v", v)
	}
	if _, ok := svc.Store().Snapshot(2); !ok {
		t.Fatal("channel 2 missing")
	}
	if svc.NonNumeric().Len() != 2 {
		t.Fatalf("non-numeric entries = %d", svc.NonNumeric().Len())
	}

	m := svc.MetricsSnapshot()
	if m.LinesRead != 4 || m.Samples != 5 || m.TextLines != 2 || m.NumericLines != 2 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestServiceDiscardsUndecodableLines(t *testing.T) {
	mp := newMockPort()
	op := &mockOpener{ports: []*mockPort{mp}}
	svc := createTestService(t, op)
	sub := svc.Subscribe(0)

	if err := svc.Start(testConnection()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	statusesUntil(t, sub, StateConnected)

	mp.feed("\xff\xfe\n42\n")

	ev := nextEvent(t, sub)
	if ev.Kind != EventChannelUpdated || ev.Channel.Snapshot.Values[0] != 42 {
		t.Fatalf("unexpected event %+v", ev)
	}
	if svc.NonNumeric().Len() != 0 {
		t.Fatal("undecodable line reached the non-numeric log")
	}
	if got := svc.Metrics().DecodeErrors.Get(); got != 1 {
		t.Fatalf("decode errors = %d", got)
	}
	if svc.State() != StateConnected {
		t.Fatalf("state = %v, want connected", svc.State())
	}
}

func TestServiceStopTwice(t *testing.T) {
	mp := newMockPort()
	op := &mockOpener{ports: []*mockPort{mp}}
	svc := createTestService(t, op)
	sub := svc.Subscribe(0)

	if err := svc.Start(testConnection()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	statusesUntil(t, sub, StateConnected)

	if err := svc.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	got := statusesUntil(t, sub, StateDisconnected)
	if got[len(got)-1].Message != "Disconnected" {
		t.Fatalf("final message = %q", got[len(got)-1].Message)
	}
	if n := mp.closeCount.Load(); n != 1 {
		t.Fatalf("port closed %d times, want 1", n)
	}
	if svc.State() != StateDisconnected {
		t.Fatalf("state = %v", svc.State())
	}

	select {
	case ev := <-sub.C():
		t.Fatalf("unexpected event after second stop: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestServiceStopWhenIdle(t *testing.T) {
	svc := createTestService(t, &mockOpener{})
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if svc.State() != StateIdle {
		t.Fatalf("state = %v", svc.State())
	}
	st := svc.Status()
	if st.Message != "Not Connected" || st.Severity != SeverityError {
		t.Fatalf("initial status = %+v", st)
	}
}

func TestServiceStopDuringBackoff(t *testing.T) {
	op := &mockOpener{err: errors.New("no device")}
	svc := NewService(Options{RetryBackoff: time.Hour, Opener: op.open})
	defer svc.Close()
	sub := svc.Subscribe(0)

	if err := svc.Start(testConnection()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	statusesUntil(t, sub, StateRetrying)

	done := make(chan struct{})
	go func() {
		_ = svc.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(eventWait):
		t.Fatal("Stop blocked on the retry backoff")
	}

	statusesUntil(t, sub, StateDisconnected)
	if op.openCount() != 1 {
		t.Fatalf("opens = %d, want 1", op.openCount())
	}
}

func TestServiceRejectsSecondStart(t *testing.T) {
	op := &mockOpener{ports: []*mockPort{newMockPort()}}
	svc := createTestService(t, op)
	sub := svc.Subscribe(0)

	if err := svc.Start(testConnection()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	statusesUntil(t, sub, StateConnected)

	if err := svc.Start(testConnection()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start = %v, want ErrAlreadyRunning", err)
	}
	if err := svc.Reset(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("Reset while running = %v", err)
	}
	if op.openCount() != 1 {
		t.Fatalf("opens = %d, want 1", op.openCount())
	}
}

func TestServiceReconnectsAfterReadError(t *testing.T) {
	first, second := newMockPort(), newMockPort()
	op := &mockOpener{ports: []*mockPort{first, second}}
	svc := createTestService(t, op)
	sub := svc.Subscribe(0)

	if err := svc.Start(testConnection()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	statusesUntil(t, sub, StateConnected)

	first.feed("7\n")
	first.fail(io.ErrUnexpectedEOF)

	got := statusesUntil(t, sub, StateConnected)
	if !reflect.DeepEqual(statesOf(got), []State{StateRetrying, StateConnected}) {
		t.Fatalf("states = %v", statesOf(got))
	}
	if !strings.HasSuffix(got[0].Message, "Retrying (2)...") {
		t.Fatalf("retry message = %q", got[0].Message)
	}
	if first.closeCount.Load() != 1 {
		t.Fatal("failed port was not closed")
	}

	second.feed("8\n")
	for {
		ev := nextEvent(t, sub)
		if ev.Kind == EventChannelUpdated {
			if !reflect.DeepEqual(ev.Channel.Snapshot.Values, []float64{7, 8}) {
				t.Fatalf("channel 1 = %v", ev.Channel.Snapshot.Values)
			}
			break
		}
	}
}

func TestServiceRetryBudgetResetsAfterConnect(t *testing.T) {
	ports := []*mockPort{newMockPort(), newMockPort(), newMockPort(), newMockPort()}
	op := &mockOpener{ports: ports}
	svc := createTestService(t, op)
	sub := svc.Subscribe(0)

	if err := svc.Start(testConnection()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// four consecutive read failures, each after a successful open
	for i, p := range ports {
		statusesUntil(t, sub, StateConnected)
		p.fail(io.EOF)
		got := statusesUntil(t, sub, StateRetrying)
		if !strings.HasSuffix(got[len(got)-1].Message, "Retrying (2)...") {
			t.Fatalf("failure %d: %q", i, got[len(got)-1].Message)
		}
	}
}

func TestServiceRestartKeepsBuffers(t *testing.T) {
	first, second := newMockPort(), newMockPort()
	op := &mockOpener{ports: []*mockPort{first, second}}
	svc := createTestService(t, op)
	sub := svc.Subscribe(0)

	if err := svc.Start(testConnection()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	statusesUntil(t, sub, StateConnected)
	first.feed("1\n")
	nextEvent(t, sub)
	_ = svc.Stop()
	statusesUntil(t, sub, StateDisconnected)

	if err := svc.Start(testConnection()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	statusesUntil(t, sub, StateConnected)
	second.feed("2\n")
	ev := nextEvent(t, sub)
	if !reflect.DeepEqual(ev.Channel.Snapshot.Values, []float64{1, 2}) {
		t.Fatalf("channel 1 = %v", ev.Channel.Snapshot.Values)
	}

	_ = svc.Stop()
	if err := svc.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if len(svc.Store().Keys()) != 0 {
		t.Fatal("buffers survived Reset")
	}
}

func TestStartConfigErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*ConnectionConfig)
		field    string
		wantPort bool
	}{
		{"empty port", func(c *ConnectionConfig) { c.PortName = "" }, "port", true},
		{"placeholder port", func(c *ConnectionConfig) { c.PortName = NoPortsAvailable }, "port", true},
		{"traversal", func(c *ConnectionConfig) { c.PortName = "/dev/../etc/passwd" }, "port", true},
		{"bad baud", func(c *ConnectionConfig) { c.BaudRate = 1234 }, "baud_rate", false},
		{"zero timeout", func(c *ConnectionConfig) { c.ReadTimeout = 0 }, "read_timeout", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := &mockOpener{}
			svc := createTestService(t, op)
			sub := svc.Subscribe(0)

			cfg := testConnection()
			tt.mutate(&cfg)
			err := svc.Start(cfg)

			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("Start = %v, want *ConfigError", err)
			}
			if ce.Field != tt.field {
				t.Fatalf("field = %q, want %q", ce.Field, tt.field)
			}
			if got := errors.Is(err, ErrNoPortSelected); got != tt.wantPort {
				t.Fatalf("errors.Is(ErrNoPortSelected) = %v", got)
			}
			if svc.State() != StateIdle || svc.Running() {
				t.Fatal("session started despite config error")
			}
			if op.openCount() != 0 {
				t.Fatal("device opened despite config error")
			}
			select {
			case ev := <-sub.C():
				t.Fatalf("unexpected event %+v", ev)
			default:
			}
		})
	}
}

func TestStartWithNoPortsAvailable(t *testing.T) {
	orig := getPortsList
	getPortsList = func() ([]string, error) { return nil, nil }
	defer func() { getPortsList = orig }()

	choices, err := PortChoices()
	if err != nil {
		t.Fatalf("PortChoices: %v", err)
	}
	if !reflect.DeepEqual(choices, []string{NoPortsAvailable}) {
		t.Fatalf("choices = %v", choices)
	}

	svc := createTestService(t, &mockOpener{})
	cfg := testConnection()
	cfg.PortName = choices[0]
	if err := svc.Start(cfg); !IsConfigError(err) {
		t.Fatalf("Start = %v, want config error", err)
	}
}

func TestServiceConcurrentStartStop(t *testing.T) {
	for i := 0; i < 20; i++ {
		t.Run("iteration", func(t *testing.T) {
			ports := make([]*mockPort, 8)
			for j := range ports {
				ports[j] = newMockPort()
			}
			svc := createTestService(t, &mockOpener{ports: ports})

			var wg sync.WaitGroup
			for g := 0; g < 4; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for k := 0; k < 5; k++ {
						err := svc.Start(testConnection())
						if err != nil && !errors.Is(err, ErrAlreadyRunning) {
							t.Errorf("Start: %v", err)
						}
						_ = svc.Stop()
					}
				}()
			}
			wg.Wait()

			_ = svc.Stop()
			if svc.Running() {
				t.Fatal("loop still running after Stop")
			}
			if !svc.State().Terminal() {
				t.Fatalf("state = %v, want terminal", svc.State())
			}
		})
	}
}

func TestServiceCloseEndsSubscriptions(t *testing.T) {
	svc := NewService(Options{Opener: (&mockOpener{}).open})
	sub := svc.Subscribe(4)
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-sub.C(); ok {
		t.Fatal("subscription open after Close")
	}
	late := svc.Subscribe(4)
	if _, ok := <-late.C(); ok {
		t.Fatal("subscription after Close should be closed")
	}
}
