package ether

// Reporter abstracts metrics emission so the ether package has no hard
// dependency on Prometheus. internal/simmetrics.Collector implements this
// interface by duck typing, the same shape as the teacher's
// bfdmetrics.Collector / bfd.MetricsReporter pairing.
type Reporter interface {
	// Attempt records one L2-RA retransmit attempt for node.
	Attempt(node int)
	// Collision records one L2-C collision for node.
	Collision(node int)
	// Backoff records one L2-B backoff for node.
	Backoff(node int)
	// QueueDrop records one L2-QD attempt-limit drop for node.
	QueueDrop(node int)
	// BackoffWindow reports the current max_back_off for node.
	BackoffWindow(node int, slots int)
	// BusyCount reports the current busy_count for node.
	BusyCount(node int, count int)
}

// noopReporter implements Reporter with no side effects; it is the default
// when no Reporter is attached (mirrors the teacher's WithMetrics(nil)
// handling).
type noopReporter struct{}

func (noopReporter) Attempt(int)           {}
func (noopReporter) Collision(int)         {}
func (noopReporter) Backoff(int)           {}
func (noopReporter) QueueDrop(int)         {}
func (noopReporter) BackoffWindow(int, int) {}
func (noopReporter) BusyCount(int, int)     {}
