package simmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/dantte-lp/ethersim/internal/simmetrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := simmetrics.NewCollector(reg)

	if c.SchedulerQueueDepth == nil {
		t.Error("SchedulerQueueDepth is nil")
	}
	if c.MACAttempts == nil {
		t.Error("MACAttempts is nil")
	}
	if c.MACCollisions == nil {
		t.Error("MACCollisions is nil")
	}
	if c.BusBusyCount == nil {
		t.Error("BusBusyCount is nil")
	}

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestMACCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := simmetrics.NewCollector(reg)

	c.Attempt(0)
	c.Attempt(0)
	c.Attempt(0)
	if got := counterValue(t, c.MACAttempts, "0"); got != 3 {
		t.Errorf("MACAttempts(0) = %v, want 3", got)
	}

	c.Collision(0)
	if got := counterValue(t, c.MACCollisions, "0"); got != 1 {
		t.Errorf("MACCollisions(0) = %v, want 1", got)
	}

	c.Backoff(1)
	c.Backoff(1)
	if got := counterValue(t, c.MACBackoffs, "1"); got != 2 {
		t.Errorf("MACBackoffs(1) = %v, want 2", got)
	}

	c.QueueDrop(1)
	if got := counterValue(t, c.MACQueueDrops, "1"); got != 1 {
		t.Errorf("MACQueueDrops(1) = %v, want 1", got)
	}
}

func TestGauges(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := simmetrics.NewCollector(reg)

	c.BackoffWindow(0, 8)
	if got := gaugeValue(t, c.MACBackoffWindow, "0"); got != 8 {
		t.Errorf("MACBackoffWindow(0) = %v, want 8", got)
	}

	c.BusyCount(0, 2)
	if got := gaugeValue(t, c.BusBusyCount, "0"); got != 2 {
		t.Errorf("BusBusyCount(0) = %v, want 2", got)
	}

	c.SampleQueueDepth(42)
	m := &dto.Metric{}
	if err := c.SchedulerQueueDepth.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	if got := m.GetGauge().GetValue(); got != 42 {
		t.Errorf("SchedulerQueueDepth = %v, want 42", got)
	}
}

func TestSchedulerEventOutcomes(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := simmetrics.NewCollector(reg)

	c.RecordEventFired()
	c.RecordEventFired()
	c.RecordEventCancelled()

	if got := counterValue(t, c.SchedulerEvents, simmetrics.OutcomeFired); got != 2 {
		t.Errorf("SchedulerEvents(fired) = %v, want 2", got)
	}
	if got := counterValue(t, c.SchedulerEvents, simmetrics.OutcomeCancelled); got != 1 {
		t.Errorf("SchedulerEvents(cancelled) = %v, want 1", got)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()

	gauge, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := gauge.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}
