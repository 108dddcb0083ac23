// Package perf provides in-process performance monitoring for LLM calls.
// Samples are kept in a fixed-capacity ring buffer; health status rolls up
// over the most recent samples against configurable thresholds.
package perf

import (
	"fmt"
	"sync"
	"time"

	"github.com/flipsync/flipsync/core"
)

// Sample is one per-call performance measurement
type Sample struct {
	Timestamp    time.Time     `json:"timestamp"`
	Model        string        `json:"model"`
	ResponseTime time.Duration `json:"response_time"`
	PromptLen    int           `json:"prompt_len"`
	ResponseLen  int           `json:"response_len"`
	Success      bool          `json:"success"`
	ErrorKind    string        `json:"error_kind,omitempty"`
}

// Thresholds configure health roll-up boundaries
type Thresholds struct {
	ResponseTimeWarning  time.Duration
	ResponseTimeCritical time.Duration
	ErrorRateWarning     float64
	ErrorRateCritical    float64
}

// DefaultThresholds returns the default health thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		ResponseTimeWarning:  10 * time.Second,
		ResponseTimeCritical: 30 * time.Second,
		ErrorRateWarning:     0.1,
		ErrorRateCritical:    0.3,
	}
}

// HealthStatus is the rolled-up monitor status
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// HealthReport summarizes recent call health
type HealthReport struct {
	Status  HealthStatus `json:"status"`
	Issues  []string     `json:"issues"`
	Samples int          `json:"samples"`
}

// Stats summarizes a window of samples
type Stats struct {
	Count           int           `json:"count"`
	SuccessCount    int           `json:"success_count"`
	ErrorCount      int           `json:"error_count"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	MaxResponseTime time.Duration `json:"max_response_time"`
	AvgPromptLen    int           `json:"avg_prompt_len"`
	AvgResponseLen  int           `json:"avg_response_len"`
	ErrorsByKind    map[string]int `json:"errors_by_kind"`
}

// healthWindow is how many recent samples the health roll-up inspects
const healthWindow = 20

// Monitor keeps a bounded ring buffer of per-call samples.
// Record is an O(1) critical section and never blocks on I/O.
type Monitor struct {
	mu         sync.Mutex
	samples    []Sample
	next       int
	count      int
	thresholds Thresholds
	logger     core.Logger
}

// NewMonitor creates a monitor with the given buffer capacity.
// Capacity values below 1 fall back to the default of 1000.
func NewMonitor(maxHistory int, logger core.Logger) *Monitor {
	if maxHistory < 1 {
		maxHistory = 1000
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Monitor{
		samples:    make([]Sample, maxHistory),
		thresholds: DefaultThresholds(),
		logger:     logger,
	}
}

// SetThresholds replaces the health thresholds
func (m *Monitor) SetThresholds(t Thresholds) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds = t
}

// Record appends one sample, evicting the oldest entry on overflow
func (m *Monitor) Record(sample Sample) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}

	m.mu.Lock()
	m.samples[m.next] = sample
	m.next = (m.next + 1) % len(m.samples)
	if m.count < len(m.samples) {
		m.count++
	}
	m.mu.Unlock()

	if !sample.Success {
		m.logger.Debug("Recorded failed call sample", map[string]interface{}{
			"operation":  "perf_record",
			"model":      sample.Model,
			"error_kind": sample.ErrorKind,
			"latency_ms": sample.ResponseTime.Milliseconds(),
		})
	}
}

// lastN returns up to n most recent samples, newest last. Caller holds no lock.
func (m *Monitor) lastN(n int) []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || n > m.count {
		n = m.count
	}
	out := make([]Sample, 0, n)
	start := m.next - n
	for i := 0; i < n; i++ {
		idx := start + i
		if idx < 0 {
			idx += len(m.samples)
		}
		out = append(out, m.samples[idx%len(m.samples)])
	}
	return out
}

// Summary computes statistics over the last n samples (all when n <= 0)
func (m *Monitor) Summary(lastN int) Stats {
	window := m.lastN(lastN)

	stats := Stats{
		Count:        len(window),
		ErrorsByKind: make(map[string]int),
	}
	if len(window) == 0 {
		return stats
	}

	var totalRT, maxRT time.Duration
	var totalPrompt, totalResponse int
	for _, s := range window {
		if s.Success {
			stats.SuccessCount++
		} else {
			stats.ErrorCount++
			if s.ErrorKind != "" {
				stats.ErrorsByKind[s.ErrorKind]++
			}
		}
		totalRT += s.ResponseTime
		if s.ResponseTime > maxRT {
			maxRT = s.ResponseTime
		}
		totalPrompt += s.PromptLen
		totalResponse += s.ResponseLen
	}

	stats.SuccessRate = float64(stats.SuccessCount) / float64(len(window))
	stats.AvgResponseTime = totalRT / time.Duration(len(window))
	stats.MaxResponseTime = maxRT
	stats.AvgPromptLen = totalPrompt / len(window)
	stats.AvgResponseLen = totalResponse / len(window)
	return stats
}

// Health rolls up the last 20 samples into a status with issue descriptions
func (m *Monitor) Health() HealthReport {
	m.mu.Lock()
	thresholds := m.thresholds
	m.mu.Unlock()

	stats := m.Summary(healthWindow)
	report := HealthReport{
		Status:  HealthHealthy,
		Issues:  []string{},
		Samples: stats.Count,
	}
	if stats.Count == 0 {
		return report
	}

	errorRate := 1.0 - stats.SuccessRate
	switch {
	case errorRate >= thresholds.ErrorRateCritical:
		report.Status = HealthCritical
		report.Issues = append(report.Issues,
			fmt.Sprintf("error rate %.0f%% at or above critical threshold", errorRate*100))
	case errorRate >= thresholds.ErrorRateWarning:
		report.Status = HealthWarning
		report.Issues = append(report.Issues,
			fmt.Sprintf("error rate %.0f%% at or above warning threshold", errorRate*100))
	}

	switch {
	case stats.AvgResponseTime >= thresholds.ResponseTimeCritical:
		report.Status = HealthCritical
		report.Issues = append(report.Issues,
			fmt.Sprintf("average response time %s at or above critical threshold", stats.AvgResponseTime))
	case stats.AvgResponseTime >= thresholds.ResponseTimeWarning:
		if report.Status != HealthCritical {
			report.Status = HealthWarning
		}
		report.Issues = append(report.Issues,
			fmt.Sprintf("average response time %s at or above warning threshold", stats.AvgResponseTime))
	}

	return report
}
