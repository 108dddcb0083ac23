package perf

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestRingBufferEvictsOldest(t *testing.T) {
	m := NewMonitor(3, nil)

	for i := 1; i <= 5; i++ {
		m.Record(Sample{Model: fmt.Sprintf("m%d", i), Success: true})
	}

	window := m.lastN(0)
	if len(window) != 3 {
		t.Fatalf("window size = %d, want capacity 3", len(window))
	}
	want := []string{"m3", "m4", "m5"}
	for i, s := range window {
		if s.Model != want[i] {
			t.Errorf("window[%d].Model = %q, want %q", i, s.Model, want[i])
		}
	}
}

func TestNewMonitorFallbackCapacity(t *testing.T) {
	m := NewMonitor(0, nil)
	if len(m.samples) != 1000 {
		t.Errorf("capacity = %d, want default 1000", len(m.samples))
	}
}

func TestSummary(t *testing.T) {
	m := NewMonitor(100, nil)
	m.Record(Sample{Model: "gpt-4o-mini", ResponseTime: 1 * time.Second, PromptLen: 100, ResponseLen: 200, Success: true})
	m.Record(Sample{Model: "gpt-4o-mini", ResponseTime: 3 * time.Second, PromptLen: 300, ResponseLen: 0, Success: false, ErrorKind: "TIMEOUT"})

	stats := m.Summary(0)
	if stats.Count != 2 || stats.SuccessCount != 1 || stats.ErrorCount != 1 {
		t.Errorf("counts = %+v", stats)
	}
	if stats.SuccessRate != 0.5 {
		t.Errorf("SuccessRate = %v, want 0.5", stats.SuccessRate)
	}
	if stats.AvgResponseTime != 2*time.Second {
		t.Errorf("AvgResponseTime = %v, want 2s", stats.AvgResponseTime)
	}
	if stats.MaxResponseTime != 3*time.Second {
		t.Errorf("MaxResponseTime = %v, want 3s", stats.MaxResponseTime)
	}
	if stats.ErrorsByKind["TIMEOUT"] != 1 {
		t.Errorf("ErrorsByKind = %v, want TIMEOUT:1", stats.ErrorsByKind)
	}
}

func TestSummaryEmpty(t *testing.T) {
	m := NewMonitor(10, nil)
	stats := m.Summary(0)
	if stats.Count != 0 || stats.SuccessRate != 0 {
		t.Errorf("empty summary = %+v", stats)
	}
}

func TestHealthStatuses(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		total    int
		latency  time.Duration
		want     HealthStatus
	}{
		{"all good", 0, 20, time.Second, HealthHealthy},
		{"warning error rate", 3, 20, time.Second, HealthWarning},
		{"critical error rate", 8, 20, time.Second, HealthCritical},
		{"warning latency", 0, 20, 15 * time.Second, HealthWarning},
		{"critical latency", 0, 20, 40 * time.Second, HealthCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(100, nil)
			for i := 0; i < tt.total; i++ {
				sample := Sample{Model: "gpt-4o-mini", ResponseTime: tt.latency, Success: i >= tt.failures}
				if !sample.Success {
					sample.ErrorKind = "TRANSPORT"
				}
				m.Record(sample)
			}
			report := m.Health()
			if report.Status != tt.want {
				t.Errorf("Health().Status = %q, want %q (issues: %v)", report.Status, tt.want, report.Issues)
			}
			if report.Samples != tt.total {
				t.Errorf("Samples = %d, want %d", report.Samples, tt.total)
			}
		})
	}
}

func TestHealthUsesRecentWindowOnly(t *testing.T) {
	m := NewMonitor(1000, nil)
	// Old failures pushed out of the 20-sample health window
	for i := 0; i < 20; i++ {
		m.Record(Sample{Success: false, ErrorKind: "TRANSPORT"})
	}
	for i := 0; i < 20; i++ {
		m.Record(Sample{Success: true, ResponseTime: time.Second})
	}

	if report := m.Health(); report.Status != HealthHealthy {
		t.Errorf("Status = %q, want healthy after 20 recent successes", report.Status)
	}
}

func TestHealthEmptyMonitor(t *testing.T) {
	m := NewMonitor(10, nil)
	report := m.Health()
	if report.Status != HealthHealthy || report.Samples != 0 {
		t.Errorf("empty monitor health = %+v, want healthy with 0 samples", report)
	}
}

func TestConcurrentRecord(t *testing.T) {
	m := NewMonitor(64, nil)
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Record(Sample{Model: "gpt-4o-mini", Success: true})
		}()
	}
	wg.Wait()

	if stats := m.Summary(0); stats.Count != 64 {
		t.Errorf("Count = %d, want buffer capacity 64", stats.Count)
	}
}
