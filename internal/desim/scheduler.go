package desim

import (
	"container/heap"
	"fmt"
	"sync/atomic"
)

// Callback is the side-effect executed when a scheduled event fires.
type Callback func()

// Handle identifies a previously scheduled event for cancellation. The zero
// Handle is never issued by Schedule.
type Handle uint64

// event is a single scheduled callback. It is heap-ordered by (when, seq) so
// that equal-time events fire in the order they were scheduled (spec
// requirement: "ties broken FIFO by insertion order, stable").
//
// Cancellation does not search or mutate the heap: it flips cancelled and
// lets Run skip the event when it is eventually popped. This mirrors the
// lazy-deletion shape of malbeclabs-doublezero's liveness EventQueue, which
// also never rebalances the heap on removal.
type event struct {
	when      Time
	seq       uint64
	handle    Handle
	callback  Callback
	cancelled bool
}

// eventHeap implements container/heap.Interface, ordered by (when, seq).
type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].when == h[j].when {
		return h[i].seq < h[j].seq
	}
	return h[i].when < h[j].when
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(*event)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Scheduler is a single-threaded discrete-event simulation clock: a
// min-heap of pending callbacks, advanced synchronously by Run. There is no
// concurrency here by design (spec.md §5): every caller runs inside a
// callback already invoked by Run, so the heap and the pending-handle table
// need no locking. Stop is the one exception: it may be called from another
// goroutine (the CLI does so on SIGINT/SIGTERM), so the stop flag is atomic.
type Scheduler struct {
	pq       eventHeap
	pending  map[Handle]*event
	seq      uint64
	nextID   uint64
	now      Time
	stopped  atomic.Bool
	resetFns []func()
}

// New constructs an empty Scheduler with its clock at time zero.
func New() *Scheduler {
	s := &Scheduler{
		pending: make(map[Handle]*event),
	}
	heap.Init(&s.pq)
	return s
}

// Now returns the scheduler's current simulated time.
func (s *Scheduler) Now() Time { return s.now }

// Schedule inserts callback to run at Now()+delay. delay must be
// non-negative; a negative delay is a precondition violation and panics
// immediately rather than corrupting the event ordering (spec.md §7).
func (s *Scheduler) Schedule(delay float64, callback Callback) Handle {
	if delay < 0 {
		panic(fmt.Sprintf("desim: negative delay %v is a precondition violation", delay))
	}
	if callback == nil {
		panic("desim: nil callback")
	}

	s.seq++
	s.nextID++
	id := Handle(s.nextID)

	e := &event{
		when:     s.now.Add(delay),
		seq:      s.seq,
		handle:   id,
		callback: callback,
	}
	s.pending[id] = e
	heap.Push(&s.pq, e)

	return id
}

// Cancel removes a pending event. It is idempotent: cancelling an unknown
// or already-fired handle is a no-op and returns false. Cancelling during
// the firing callback of the same event (reentrancy) is also a no-op,
// since the event has already been removed from the pending table by Run
// before the callback executes.
func (s *Scheduler) Cancel(h Handle) bool {
	e, ok := s.pending[h]
	if !ok {
		return false
	}
	e.cancelled = true
	delete(s.pending, h)
	return true
}

// Stop halts a running Run loop after the current callback returns.
func (s *Scheduler) Stop() {
	s.stopped.Store(true)
}

// Run pops and invokes events in time order until the queue is empty,
// Stop is called, or Now reaches until (when provided). Zero-delay events
// scheduled by a callback run strictly after that callback returns, in the
// order they were scheduled, before any event with a later timestamp —
// guaranteed by the (when, seq) heap order above.
func (s *Scheduler) Run(until ...Time) {
	var deadline Time
	hasDeadline := len(until) > 0
	if hasDeadline {
		deadline = until[0]
	}

	s.stopped.Store(false)

	for s.pq.Len() > 0 {
		if s.stopped.Load() {
			return
		}

		e := s.pq[0]
		if hasDeadline && e.when >= deadline {
			s.now = deadline
			return
		}

		heap.Pop(&s.pq)

		if e.cancelled {
			continue
		}
		delete(s.pending, e.handle)

		s.now = e.when
		e.callback()
	}

	if hasDeadline && s.now < deadline {
		s.now = deadline
	}
}

// Pending returns the number of events still queued, cancelled or not.
// Used by simmetrics to sample scheduler_queue_depth.
func (s *Scheduler) Pending() int { return s.pq.Len() }

// Reset clears the queue, resets Now to zero, and invokes every hook
// registered via OnReset, in registration order. Used to make a scenario
// re-runnable from scratch with byte-identical trace output for a fixed
// seed (spec.md §8, "Reset idempotence").
func (s *Scheduler) Reset() {
	s.pq = s.pq[:0]
	heap.Init(&s.pq)
	s.pending = make(map[Handle]*event)
	s.seq = 0
	s.now = 0
	s.stopped.Store(false)

	for _, fn := range s.resetFns {
		fn()
	}
}

// OnReset registers a hook invoked by Reset, in registration order. This
// replaces the source's global reset-hooks list (spec.md §9) with an
// explicit per-Scheduler registry.
func (s *Scheduler) OnReset(fn func()) {
	s.resetFns = append(s.resetFns, fn)
}
