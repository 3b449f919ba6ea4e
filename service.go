package serialplot

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// Options configure a Service. Zero counts and sizes take the package
// defaults; zero delays mean no delay.
type Options struct {
	MaxPoints    int
	LogCapacity  int
	QueueSize    int
	RetryBudget  int
	RetryBackoff time.Duration
	SettleDelay  time.Duration

	// Opener defaults to OpenSerial.
	Opener Opener
	// Logger defaults to a disabled logger.
	Logger *zerolog.Logger
}

// OptionsFromConfig maps the acquisition section of a config file.
func OptionsFromConfig(cfg AcquisitionConfig) Options {
	return Options{
		MaxPoints:    cfg.MaxPoints,
		LogCapacity:  cfg.LogCapacity,
		QueueSize:    cfg.QueueSize,
		RetryBudget:  cfg.RetryBudget,
		RetryBackoff: cfg.RetryBackoff,
		SettleDelay:  cfg.SettleDelay,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxPoints <= 0 {
		o.MaxPoints = DefaultMaxPoints
	}
	if o.LogCapacity <= 0 {
		o.LogCapacity = DefaultLogCapacity
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.RetryBudget <= 0 {
		o.RetryBudget = DefaultRetryBudget
	}
	if o.RetryBackoff < 0 {
		o.RetryBackoff = 0
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	if o.Opener == nil {
		o.Opener = OpenSerial
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	return o
}

// session is one run of the acquisition loop, from Start to a terminal state.
type session struct {
	cfg      ConnectionConfig
	stopCh   chan struct{}
	stopping atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
}

func newSession(cfg ConnectionConfig) *session {
	return &session{
		cfg:    cfg,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (r *session) requestStop() {
	r.stopOnce.Do(func() {
		r.stopping.Store(true)
		close(r.stopCh)
	})
}

func (r *session) stopped() bool {
	return r.stopping.Load()
}

func (r *session) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// sleep waits for d and reports false if a stop arrived first.
func (r *session) sleep(d time.Duration) bool {
	if d <= 0 {
		return !r.stopped()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-r.stopCh:
		return false
	case <-t.C:
		return true
	}
}

// Service owns the acquisition loop together with the channel store, the
// non-numeric log and the event publisher. Store, log and state are mutated
// only by the loop goroutine; readers use the copy-returning accessors.
type Service struct {
	opts    Options
	logger  zerolog.Logger
	store   *ChannelStore
	text    *NonNumericLog
	pub     *Publisher
	metrics *Metrics

	// lifecycleMu serializes Start and Stop.
	lifecycleMu sync.Mutex

	mu     sync.Mutex // guards state, status, run
	state  State
	status StatusChanged
	run    *session

	stateMirror atomic.Int32
}

func NewService(opts Options) *Service {
	opts = opts.withDefaults()
	s := &Service{
		opts:    opts,
		logger:  *opts.Logger,
		store:   NewChannelStore(opts.MaxPoints),
		text:    NewNonNumericLog(opts.LogCapacity),
		pub:     NewPublisher(),
		metrics: newMetrics(),
		state:   StateIdle,
		status:  StatusChanged{State: StateIdle, Message: "Not Connected", Severity: SeverityError},
	}
	s.stateMirror.Store(int32(StateIdle))
	return s
}

// Store exposes the channel buffers for reading.
func (s *Service) Store() *ChannelStore { return s.store }

// NonNumeric exposes the non-numeric log for reading.
func (s *Service) NonNumeric() *NonNumericLog { return s.text }

// Subscribe registers for events. size <= 0 uses the configured queue size.
func (s *Service) Subscribe(size int) *Subscription {
	if size <= 0 {
		size = s.opts.QueueSize
	}
	return s.pub.Subscribe(size)
}

// State returns the current session state without locking.
func (s *Service) State() State {
	return State(s.stateMirror.Load())
}

// Status returns the most recent status, published or initial.
func (s *Service) Status() StatusChanged {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Running reports whether an acquisition loop is live.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != nil && !s.run.finished()
}

// Start validates cfg and launches the acquisition loop. Configuration
// problems are returned as *ConfigError and nothing starts. A second Start
// while a loop is live returns ErrAlreadyRunning.
func (s *Service) Start(cfg ConnectionConfig) error {
	if err := ValidateConnection(cfg); err != nil {
		s.logger.Warn().Err(err).Str("port", cfg.PortName).Msg("start reading failed")
		return err
	}

	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	if s.run != nil && !s.run.finished() {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	run := newSession(cfg)
	s.run = run
	s.mu.Unlock()

	s.logger.Info().Str("port", cfg.PortName).Int("baud", cfg.BaudRate).Msg("starting data reading")
	s.transition(StateConnecting, fmt.Sprintf("Connecting to %s at %d baud...", cfg.PortName, cfg.BaudRate), SeverityWarning)

	go s.loop(run)
	return nil
}

// Stop asks the loop to finish at its next check point and waits for it to
// close the device. The wait is bounded by the read timeout. Stop is a no-op
// when nothing is running and may be called from any goroutine.
func (s *Service) Stop() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	run := s.run
	s.mu.Unlock()
	if run == nil {
		return nil
	}

	run.requestStop()
	<-run.done
	return nil
}

// Close stops acquisition and closes all subscriptions.
func (s *Service) Close() error {
	err := s.Stop()
	s.pub.Close()
	return err
}

// Reset clears buffered samples and log entries. It refuses while running.
func (s *Service) Reset() error {
	if s.Running() {
		return ErrAlreadyRunning
	}
	s.store.Reset()
	s.text.Reset()
	return nil
}

// transition moves the state machine and publishes the status. Invalid
// edges are logged and ignored.
func (s *Service) transition(to State, msg string, sev Severity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !canTransition(s.state, to) {
		s.logger.Error().Stringer("from", s.state).Stringer("to", to).Msg("invalid state transition")
		return false
	}
	s.state = to
	s.stateMirror.Store(int32(to))
	s.status = StatusChanged{State: to, Message: msg, Severity: sev}
	s.pub.Publish(statusEvent(s.status))
	return true
}

func (s *Service) loop(run *session) {
	defer close(run.done)

	cfg := run.cfg
	log := s.logger.With().Str("port", cfg.PortName).Int("baud", cfg.BaudRate).Logger()
	retries := s.opts.RetryBudget

	for {
		if run.stopped() {
			s.finishStopped(&log)
			return
		}

		s.recordConnectAttempt()
		port, err := s.opts.Opener(cfg)
		if err != nil {
			if !s.connectionFailed(run, &log, &ConnectionError{Op: "open", Port: cfg.PortName, Err: err}, &retries) {
				return
			}
			continue
		}

		s.recordConnected()
		retries = s.opts.RetryBudget
		log.Info().Msg("connected")
		s.transition(StateConnected, fmt.Sprintf("Connected to %s at %d baud.", cfg.PortName, cfg.BaudRate), SeverityOK)

		err = nil
		if run.sleep(s.opts.SettleDelay) {
			err = s.readLines(run, port)
		}

		if cerr := port.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("closing port")
		}
		s.recordDisconnected()
		log.Info().Msg("disconnected")

		if err == nil {
			s.finishStopped(&log)
			return
		}
		if !s.connectionFailed(run, &log, err, &retries) {
			return
		}
	}
}

// connectionFailed applies the retry policy. It returns true when the loop
// should try to open the device again.
func (s *Service) connectionFailed(run *session, log *zerolog.Logger, err error, retries *int) bool {
	s.recordConnectionFailure()
	if run.stopped() {
		s.finishStopped(log)
		return false
	}

	*retries--
	log.Error().Err(err).Int("retries_left", *retries).Msg("serial connection error")
	s.transition(StateRetrying, fmt.Sprintf("Connection error: %v. Retrying (%d)...", err, *retries), SeverityWarning)

	if *retries <= 0 {
		log.Error().Msg("failed to connect after multiple retries")
		s.transition(StateFailed, "Failed to connect. Please check the port and try again.", SeverityError)
		return false
	}
	if !run.sleep(s.opts.RetryBackoff) {
		s.finishStopped(log)
		return false
	}
	return true
}

func (s *Service) finishStopped(log *zerolog.Logger) {
	log.Info().Msg("reading stopped by user")
	s.transition(StateDisconnected, "Disconnected", SeverityError)
}

// readLines consumes lines until a stop (nil) or a device error
// (*ConnectionError).
func (s *Service) readLines(run *session, port Port) error {
	lr := newLineReader(port)
	defer lr.release()

	for {
		if run.stopped() {
			return nil
		}

		line, err := lr.ReadLine()
		switch {
		case err == nil:
			s.handleLine(line)
		case errors.Is(err, ErrReadTimeout):
		case errors.Is(err, ErrLineTooLong):
			s.metrics.OversizedLines.Inc()
			s.logger.Warn().Str("port", run.cfg.PortName).Int("limit", maxLineSize).Msg("discarding overlong line")
		default:
			if run.stopped() {
				return nil
			}
			return &ConnectionError{Op: "read", Port: run.cfg.PortName, Err: err}
		}
	}
}

func (s *Service) handleLine(raw []byte) {
	s.recordLine()
	if !utf8.Valid(raw) {
		s.metrics.DecodeErrors.Inc()
		s.logger.Warn().Err(&DecodeError{Line: raw}).Hex("line", raw).Msg("discarding undecodable line")
		return
	}
	s.ingest(string(raw))
}

// ingest classifies one decoded line and applies it. Channel updates are
// published in field order, followed by any non-numeric entry.
func (s *Service) ingest(line string) {
	c, ok := Classify(line)
	if !ok {
		return
	}
	s.recordClassification(c)

	switch v := c.(type) {
	case NumericSingle:
		s.record(1, v.Value)
	case NumericRecord:
		for i, val := range v.Values {
			s.record(ChannelKey(i+1), val)
		}
	case MixedRecord:
		for _, f := range v.Fields {
			if f.Numeric {
				s.record(ChannelKey(f.Position), f.Value)
			}
		}
		s.logger.Debug().Str("line", line).Msg("mixed record, text fields logged")
		s.appendText(line)
	case FreeText:
		s.logger.Debug().Err(&ParseError{Line: v.Raw}).Msg("invalid data received")
		s.appendText(v.Raw)
	}
}

func (s *Service) record(key ChannelKey, value float64) {
	s.store.Record(key, value)
	snap, _ := s.store.Snapshot(key)
	s.pub.Publish(channelEvent(snap))
}

func (s *Service) appendText(text string) {
	e := s.text.Append(text)
	s.pub.Publish(nonNumericEvent(e))
}
