// Package simmetrics exposes ethersim's Prometheus metrics: a Collector
// implementing ether.Reporter by duck typing (no import of internal/ether,
// matching the teacher's bfdmetrics.Collector / bfd.MetricsReporter split)
// plus a couple of scheduler-level gauges sampled directly by the run loop.
package simmetrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "ethersim"
)

// Label names.
const (
	labelNode    = "node"
	labelOutcome = "outcome"
)

// Outcome label values for SchedulerEvents.
const (
	OutcomeFired     = "fired"
	OutcomeCancelled = "cancelled"
)

// Collector holds every ethersim Prometheus metric (spec.md-expansion §2.3).
type Collector struct {
	// SchedulerQueueDepth tracks the scheduler's pending event count,
	// sampled after each Run iteration.
	SchedulerQueueDepth prometheus.Gauge

	// SchedulerEvents counts fired vs. cancelled scheduler events.
	SchedulerEvents *prometheus.CounterVec

	// MACAttempts counts L2-RA retransmit attempts per node.
	MACAttempts *prometheus.CounterVec

	// MACCollisions counts L2-C collisions per node.
	MACCollisions *prometheus.CounterVec

	// MACBackoffs counts L2-B backoffs per node.
	MACBackoffs *prometheus.CounterVec

	// MACQueueDrops counts L2-QD attempt-limit drops per node.
	MACQueueDrops *prometheus.CounterVec

	// MACBackoffWindow reports the current max_back_off per node.
	MACBackoffWindow *prometheus.GaugeVec

	// BusBusyCount reports the current busy_count per node.
	BusBusyCount *prometheus.GaugeVec
}

// NewCollector creates a Collector with every metric registered against
// reg. If reg is nil, prometheus.DefaultRegisterer is used, mirroring the
// teacher's bfdmetrics.NewCollector — but callers building a scenario
// runner should always pass an explicit *prometheus.Registry so repeated
// scenario runs in the same process (e.g. table-driven tests) don't
// collide on the default registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.SchedulerQueueDepth,
		c.SchedulerEvents,
		c.MACAttempts,
		c.MACCollisions,
		c.MACBackoffs,
		c.MACQueueDrops,
		c.MACBackoffWindow,
		c.BusBusyCount,
	)

	return c
}

func newMetrics() *Collector {
	nodeLabels := []string{labelNode}

	return &Collector{
		SchedulerQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "queue_depth",
			Help:      "Number of events currently pending on the discrete-event scheduler.",
		}),

		SchedulerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "events_total",
			Help:      "Total scheduler events by outcome (fired or cancelled).",
		}, []string{labelOutcome}),

		MACAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mac",
			Name:      "attempts_total",
			Help:      "Total L2-RA transmit attempts per node.",
		}, nodeLabels),

		MACCollisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mac",
			Name:      "collisions_total",
			Help:      "Total L2-C collisions detected per node.",
		}, nodeLabels),

		MACBackoffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mac",
			Name:      "backoffs_total",
			Help:      "Total L2-B backoffs (busy-channel deferrals) per node.",
		}, nodeLabels),

		MACQueueDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mac",
			Name:      "queue_drops_total",
			Help:      "Total L2-QD attempt-limit drops per node.",
		}, nodeLabels),

		MACBackoffWindow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mac",
			Name:      "backoff_window",
			Help:      "Current contention-window ceiling (max_back_off), in slots, per node.",
		}, nodeLabels),

		BusBusyCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "busy_count",
			Help:      "Current number of distinct remote transmitters heard, per node.",
		}, nodeLabels),
	}
}

// -------------------------------------------------------------------------
// ether.Reporter implementation (duck-typed — no import of internal/ether)
// -------------------------------------------------------------------------

func (c *Collector) Attempt(node int) {
	c.MACAttempts.WithLabelValues(nodeLabel(node)).Inc()
}

func (c *Collector) Collision(node int) {
	c.MACCollisions.WithLabelValues(nodeLabel(node)).Inc()
}

func (c *Collector) Backoff(node int) {
	c.MACBackoffs.WithLabelValues(nodeLabel(node)).Inc()
}

func (c *Collector) QueueDrop(node int) {
	c.MACQueueDrops.WithLabelValues(nodeLabel(node)).Inc()
}

func (c *Collector) BackoffWindow(node int, slots int) {
	c.MACBackoffWindow.WithLabelValues(nodeLabel(node)).Set(float64(slots))
}

func (c *Collector) BusyCount(node int, count int) {
	c.BusBusyCount.WithLabelValues(nodeLabel(node)).Set(float64(count))
}

// -------------------------------------------------------------------------
// Scheduler sampling helpers (not part of ether.Reporter)
// -------------------------------------------------------------------------

// SampleQueueDepth records the scheduler's current pending event count.
// Call after each Run iteration in the CLI's run loop.
func (c *Collector) SampleQueueDepth(depth int) {
	c.SchedulerQueueDepth.Set(float64(depth))
}

// RecordEventFired increments the fired-event counter.
func (c *Collector) RecordEventFired() {
	c.SchedulerEvents.WithLabelValues(OutcomeFired).Inc()
}

// RecordEventCancelled increments the cancelled-event counter.
func (c *Collector) RecordEventCancelled() {
	c.SchedulerEvents.WithLabelValues(OutcomeCancelled).Inc()
}

func nodeLabel(node int) string { return strconv.Itoa(node) }
