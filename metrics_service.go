package serialplot

import (
	"io"
	"time"
)

// Metrics accessor and management methods for Service

// Metrics returns the live metrics of the service.
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// MetricsSnapshot computes rates and health from the current counters.
func (s *Service) MetricsSnapshot() MetricsSnapshot {
	m := s.metrics
	state := s.State()

	snap := MetricsSnapshot{
		Timestamp:           time.Now(),
		State:               state,
		IsConnected:         state == StateConnected,
		ConnectionAttempts:  m.ConnectionAttempts.Get(),
		SuccessfulConnects:  m.SuccessfulConnects.Get(),
		ConnectionFailures:  m.ConnectionFailures.Get(),
		Disconnections:      m.Disconnections.Get(),
		LinesRead:           m.LinesRead.Get(),
		NumericLines:        m.SingleLines.Get() + m.RecordLines.Get(),
		TextLines:           m.TextLines.Get() + m.MixedLines.Get(),
		DecodeErrors:        m.DecodeErrors.Get(),
		OversizedLines:      m.OversizedLines.Get(),
		Samples:             m.Samples.Get(),
		ConsecutiveFailures: m.ConsecutiveFailures.Load(),
		ReadBufferHitRatio:  readBufPool.Stats().HitRatio(),
	}
	snap.ErrorRate = m.calculateErrorRate()
	snap.LinesPerSecond = m.calculateLinesPerSecond(snap.IsConnected)
	if snap.IsConnected {
		snap.UptimeSeconds = m.uptime().Seconds()
	}
	snap.HealthStatus = m.assessHealthStatus(&snap)
	snap.HealthScore = m.calculateHealthScore(&snap)
	return snap
}

// WritePrometheus writes the service's metrics in Prometheus text format.
func (s *Service) WritePrometheus(w io.Writer) {
	s.metrics.set.WritePrometheus(w)
}

// Internal metrics recording methods

func (s *Service) recordConnectAttempt() {
	s.metrics.ConnectionAttempts.Inc()
}

func (s *Service) recordConnected() {
	m := s.metrics
	m.SuccessfulConnects.Inc()
	m.ConnectionStartTime.Store(time.Now().UnixNano())
	m.ConsecutiveFailures.Store(0)
}

func (s *Service) recordConnectionFailure() {
	m := s.metrics
	m.ConnectionFailures.Inc()
	m.ConsecutiveFailures.Inc()
	m.LastErrorTime.Store(time.Now().Unix())
}

func (s *Service) recordDisconnected() {
	m := s.metrics
	if m.ConnectionStartTime.Swap(0) != 0 {
		m.Disconnections.Inc()
	}
}

func (s *Service) recordLine() {
	s.metrics.LinesRead.Inc()
	s.metrics.LastLineTime.Store(time.Now().Unix())
}

func (s *Service) recordClassification(c Classification) {
	m := s.metrics
	switch v := c.(type) {
	case NumericSingle:
		m.SingleLines.Inc()
		m.Samples.Inc()
	case NumericRecord:
		m.RecordLines.Inc()
		m.Samples.Add(len(v.Values))
	case MixedRecord:
		m.MixedLines.Inc()
		for _, f := range v.Fields {
			if f.Numeric {
				m.Samples.Inc()
			}
		}
	case FreeText:
		m.TextLines.Inc()
	}
}
