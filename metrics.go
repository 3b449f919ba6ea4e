package serialplot

import (
	"time"

	"github.com/VictoriaMetrics/metrics"
	"go.uber.org/atomic"
)

// Metrics tracks acquisition health. Counters live in a per-service
// VictoriaMetrics set so several services can coexist in one process.
type Metrics struct {
	set *metrics.Set

	// Connection Statistics
	ConnectionAttempts *metrics.Counter
	SuccessfulConnects *metrics.Counter
	ConnectionFailures *metrics.Counter
	Disconnections     *metrics.Counter

	// Line Statistics
	LinesRead      *metrics.Counter
	SingleLines    *metrics.Counter
	RecordLines    *metrics.Counter
	MixedLines     *metrics.Counter
	TextLines      *metrics.Counter
	DecodeErrors   *metrics.Counter
	OversizedLines *metrics.Counter
	Samples        *metrics.Counter

	// Health Indicators
	ConsecutiveFailures atomic.Int64
	ConnectionStartTime atomic.Int64 // UnixNano, 0 when not connected
	LastLineTime        atomic.Int64 // Unix seconds
	LastErrorTime       atomic.Int64 // Unix seconds
}

func newMetrics() *Metrics {
	s := metrics.NewSet()
	m := &Metrics{
		set:                s,
		ConnectionAttempts: s.NewCounter("serialplot_connection_attempts_total"),
		SuccessfulConnects: s.NewCounter("serialplot_connections_total"),
		ConnectionFailures: s.NewCounter("serialplot_connection_failures_total"),
		Disconnections:     s.NewCounter("serialplot_disconnections_total"),
		LinesRead:          s.NewCounter("serialplot_lines_read_total"),
		SingleLines:        s.NewCounter(`serialplot_lines_classified_total{kind="single"}`),
		RecordLines:        s.NewCounter(`serialplot_lines_classified_total{kind="record"}`),
		MixedLines:         s.NewCounter(`serialplot_lines_classified_total{kind="mixed"}`),
		TextLines:          s.NewCounter(`serialplot_lines_classified_total{kind="text"}`),
		DecodeErrors:       s.NewCounter("serialplot_decode_errors_total"),
		OversizedLines:     s.NewCounter("serialplot_oversized_lines_total"),
		Samples:            s.NewCounter("serialplot_samples_total"),
	}
	s.NewGauge("serialplot_consecutive_failures", func() float64 {
		return float64(m.ConsecutiveFailures.Load())
	})
	s.NewGauge("serialplot_uptime_seconds", func() float64 {
		return m.uptime().Seconds()
	})
	return m
}

// HealthStatus represents the overall health of the acquisition
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDown      HealthStatus = "down"
)

// MetricsSnapshot is a point-in-time view for display.
type MetricsSnapshot struct {
	Timestamp           time.Time
	State               State
	IsConnected         bool
	ConnectionAttempts  uint64
	SuccessfulConnects  uint64
	ConnectionFailures  uint64
	Disconnections      uint64
	LinesRead           uint64
	NumericLines        uint64
	TextLines           uint64
	DecodeErrors        uint64
	OversizedLines      uint64
	Samples             uint64
	ConsecutiveFailures int64
	ErrorRate           float64 // percent of lines discarded
	LinesPerSecond      float64
	UptimeSeconds       float64
	ReadBufferHitRatio  float64
	HealthStatus        HealthStatus
	HealthScore         float64
}

func (m *Metrics) uptime() time.Duration {
	start := m.ConnectionStartTime.Load()
	if start == 0 {
		return 0
	}
	d := time.Now().UnixNano() - start
	if d <= 0 {
		return 0
	}
	return time.Duration(d)
}

func (m *Metrics) calculateErrorRate() float64 {
	lines := m.LinesRead.Get()
	if lines == 0 {
		return 0.0
	}
	bad := m.DecodeErrors.Get() + m.OversizedLines.Get()
	return float64(bad) / float64(lines) * 100
}

func (m *Metrics) calculateLinesPerSecond(isConnected bool) float64 {
	if !isConnected {
		return 0.0
	}
	up := m.uptime().Seconds()
	if up <= 0 {
		return 0.0
	}
	return float64(m.LinesRead.Get()) / up
}

func (m *Metrics) assessHealthStatus(snapshot *MetricsSnapshot) HealthStatus {
	if snapshot.State == StateRetrying {
		return HealthStatusUnhealthy
	}
	if !snapshot.IsConnected {
		return HealthStatusDown
	}

	// Check for critical issues
	if snapshot.ErrorRate > 50.0 || snapshot.ConsecutiveFailures > 2 {
		return HealthStatusUnhealthy
	}

	// Check for degradation
	if snapshot.ErrorRate > 10.0 || snapshot.ConsecutiveFailures > 0 {
		return HealthStatusDegraded
	}

	return HealthStatusHealthy
}

func (m *Metrics) calculateHealthScore(snapshot *MetricsSnapshot) float64 {
	if !snapshot.IsConnected {
		return 0.0
	}

	score := 100.0
	score -= snapshot.ErrorRate * 2
	score -= float64(snapshot.ConsecutiveFailures) * 10

	if score < 0 {
		score = 0
	}
	return score
}
