package ether

import (
	"math"
	"math/rand/v2"
	"net"
	"strconv"

	"github.com/dantte-lp/ethersim/internal/desim"
	"github.com/dantte-lp/ethersim/internal/trace"
)

// unknownBusyEnd is the sentinel "unknown/uncounted" busy_end_time value
// from spec.md §3: "distinct from any finite time". It represents a
// second transmitter heard while the first transmitter's frame length is
// still unknown to this interface (spec.md §4.2.4's "Bus becoming busy"
// race-condition branch).
const unknownBusyEnd = desim.Time(math.MaxFloat64)

// idleBusyEnd is the construction-time default: definitely in the past, so
// "now < busy_end_time" is false until the bus is first heard from.
const idleBusyEnd = desim.Time(-math.MaxFloat64)

// Interface is the per-node MAC state machine (spec.md §3 "Interface (MAC
// state)"). It is created once by Bus.Attach and lives for the run.
type Interface struct {
	bus     *Bus
	nodeUID int
	mac     net.HardwareAddr
	sched   *desim.Scheduler
	metrics Reporter

	tr   *trace.Stream
	ref  trace.ProtocolRef

	bandwidth float64
	location  Location

	busyEndTime desim.Time
	busyCount   int

	txFinishTime desim.Time
	holdTime     desim.Time
	rxTime       float64

	maxBackOff   int
	backOffTimer float64
	maxWaitTime  float64

	lastPacketSent *Packet
	bcast          bool
	collision      bool

	rng *rand.Rand

	queue  packetQueue
	timers timerTable

	down bool

	// onReceiveComplete is invoked when a peer's frame finishes arriving
	// without collision (the "normal passing traffic" branch of
	// firstBitReceived), and, on a loopback-receive bus, when this
	// interface's own broadcast finishes without collision. Optional; nil
	// is a valid no-op.
	onReceiveComplete func(size int)
}

// InterfaceOption configures optional Interface parameters at Attach time.
type InterfaceOption func(*Interface)

// WithMetrics attaches a Reporter to the interface. A nil Reporter is
// equivalent to omitting the option (mirrors the teacher's
// WithMetrics(nil) handling).
func WithMetrics(r Reporter) InterfaceOption {
	return func(i *Interface) {
		if r != nil {
			i.metrics = r
		}
	}
}

// WithSeed fixes the interface's backoff RNG seed, overriding the
// node-uid-derived default, for reproducible tests (spec.md §5's
// determinism guarantee).
func WithSeed(seed uint64) InterfaceOption {
	return func(i *Interface) { i.rng = rand.New(rand.NewPCG(seed, seed)) }
}

// WithReceiveHook installs a callback fired whenever a peer's frame
// completes arrival without collision (and, on a loopback-receive bus,
// when the interface's own broadcast does).
func WithReceiveHook(fn func(size int)) InterfaceOption {
	return func(i *Interface) { i.onReceiveComplete = fn }
}

// WithMaxWaitTime overrides the channel-acquired watchdog base (default:
// one slot time over the bus bandwidth).
func WithMaxWaitTime(seconds float64) InterfaceOption {
	return func(i *Interface) { i.maxWaitTime = seconds }
}

// Attach adds a new interface to bus for node, per spec.md §6. It fails if
// the node is already attached. On a DetailFull bus, the new interface is
// assigned location (0, attachment_index) as spec.md §6 requires.
func (b *Bus) Attach(
	nodeUID int,
	mac net.HardwareAddr,
	sched *desim.Scheduler,
	tr *trace.Stream,
	opts ...InterfaceOption,
) (*Interface, error) {
	if _, ok := b.byNode[nodeUID]; ok {
		return nil, ErrAlreadyAttached
	}

	idx := len(b.interfaces)
	loc := Location{}
	if b.detail == DetailFull {
		loc = Location{X: 0, Y: float64(idx)}
	}

	iface := &Interface{
		bus:         b,
		nodeUID:     nodeUID,
		mac:         mac,
		sched:       sched,
		metrics:     noopReporter{},
		tr:          tr,
		ref: trace.ProtocolRef{
			Node:  trace.NodeEntity(nodeUID),
			Self:  trace.ProtocolEntity(mac.String()),
			Layer: trace.LayerEntity(2),
			Tag:   "eth",
		},
		bandwidth:   b.bandwidth,
		location:    loc,
		busyEndTime: idleBusyEnd,
		busyCount:   1, // spec.md §8 invariant 4's floor; see DESIGN.md.
		maxBackOff:  InitialBackoff,
		rng:         rand.New(rand.NewPCG(uint64(nodeUID)+1, uint64(idx)+1)), //nolint:gosec // reproducibility, not security
		timers:      newTimerTable(),
	}
	iface.maxWaitTime = SlotTime / iface.bandwidth

	for _, opt := range opts {
		opt(iface)
	}

	b.interfaces = append(b.interfaces, iface)
	b.byNode[nodeUID] = iface

	return iface, nil
}

// NodeUID returns the node this interface belongs to.
func (i *Interface) NodeUID() int { return i.nodeUID }

// MAC returns the interface's hardware address.
func (i *Interface) MAC() net.HardwareAddr { return i.mac }

// SetDown sets the interface's administrative up/down state (spec.md §6's
// "down/up status" collaborator).
func (i *Interface) SetDown(down bool) { i.down = down }

// Down reports the interface's administrative state.
func (i *Interface) Down() bool { return i.down }

// MaxBackOff returns the current contention-window ceiling, in slots.
func (i *Interface) MaxBackOff() int { return i.maxBackOff }

// BusyCount returns the number of distinct remote transmitters currently
// heard.
func (i *Interface) BusyCount() int { return i.busyCount }

// QueueLen returns the number of packets waiting to be sent.
func (i *Interface) QueueLen() int { return i.queue.len() }

// Enqueue appends a packet to the outbound queue without attempting to
// send it (used by tests to pre-load contention scenarios).
func (i *Interface) Enqueue(p *Packet) { i.queue.enqueue(p) }

// senseChannel implements spec.md §4.2.2 exactly, including the
// documented quirk (spec.md §9): the predicate is inverted from the
// natural reading. Returning false means "not idle, caller must wait".
func (i *Interface) senseChannel() bool {
	now := i.sched.Now()

	if i.txFinishTime < now || i.holdTime < now {
		i.rxTime = float64(maxTime(i.txFinishTime, i.holdTime) - now)
		return false
	}
	if now < i.busyEndTime {
		i.rxTime = float64(i.busyEndTime - now)
		return false
	}

	i.collision = false
	return true
}

func maxTime(a, b desim.Time) desim.Time {
	if a > b {
		return a
	}
	return b
}

// Send is the high-level entry point (spec.md §4.2.7): build_pdu, cancel
// any pending retransmit timer, and invoke retransmit with a fresh packet
// whose retx_count has just been reset to zero by a new higher-layer send.
func (i *Interface) Send(p *Packet, dst net.HardwareAddr) {
	if i.down {
		i.traceText(trace.CodeInterfaceDown, p, "interface down, send dropped")
		return
	}

	p.Src = i.mac
	p.Dst = dst
	p.RetxCount = 0
	p.pdu = nil
	if _, err := buildPDU(p); err != nil {
		// Precondition violation: a malformed packet cannot be framed.
		panic("ether: build_pdu failed: " + err.Error())
	}

	i.timers.cancel(i.sched, timerRetransmit)
	i.retransmit(p)
}

// retransmit implements spec.md §4.2.3. p may be nil, meaning "dequeue the
// next packet"; if the queue is also empty, retransmit is a no-op.
func (i *Interface) retransmit(p *Packet) {
	if p == nil {
		p = i.queue.dequeue()
	}
	if p == nil {
		return
	}

	// 1. Attempt cap.
	p.RetxCount++
	if p.RetxCount > AttemptLimit {
		i.traceText(trace.CodeQueueDrop, p, "attempt limit exceeded, packet dropped")
		i.metrics.QueueDrop(i.nodeUID)
		if !i.queue.empty() {
			i.retransmit(nil)
		}
		return
	}

	// 2. Trace the attempt.
	i.traceText(trace.CodeRetransmit, p, strconv.Itoa(p.RetxCount))
	i.metrics.Attempt(i.nodeUID)

	if i.senseChannel() {
		i.retransmitIdle(p)
	} else {
		i.retransmitBusy(p)
	}
}

// retransmitIdle is spec.md §4.2.3 step 3 (the idle-channel path).
func (i *Interface) retransmitIdle(p *Packet) {
	now := i.sched.Now()

	for _, j := range i.bus.Peers(i) {
		delay := i.bus.Delay(i, j)
		j := j
		i.sched.Schedule(delay, func() { j.firstBitReceived(p.Size) })
	}

	txTime := float64(p.Size) * 8 / i.bandwidth
	i.txFinishTime = now.Add(txTime)
	i.holdTime = i.txFinishTime.Add(InterFrameGap / i.bandwidth)
	i.rxTime = float64(i.holdTime - now)
	i.bcast = p.IsBroadcast()
	i.lastPacketSent = p

	// With loopback receive, the sender also receives its own broadcast
	// once transmission completes; a collision cancels it like any other
	// pending reception.
	if i.bus.loopbackReceive && i.bcast {
		hook, size := i.onReceiveComplete, p.Size
		i.timers.arm(i.sched, timerReceive, txTime, func() {
			if hook != nil {
				hook(size)
			}
		})
	}

	if !i.timers.pending(timerRetransmit) && !i.queue.empty() {
		i.timers.arm(i.sched, timerRetransmit, i.rxTime, func() { i.retransmit(nil) })
	}

	if !i.timers.pending(timerChanAcq) {
		i.timers.arm(i.sched, timerChanAcq, 2*i.maxWaitTime, i.chanAcq)
	}
}

// retransmitBusy is spec.md §4.2.3 step 4 (the busy-channel path).
//
// spec.md §9: "In retransmit's busy-path the source decrements retx_count
// after enqueuing -- reproduce exactly so attempt-limit semantics match."
// We preserve that literal ordering here even though it reads oddly:
// the packet is already back in the queue by the time RetxCount-- runs.
func (i *Interface) retransmitBusy(p *Packet) {
	if !i.timers.pending(timerRetransmit) {
		i.timers.arm(i.sched, timerRetransmit, i.rxTime, func() { i.retransmit(nil) })
	}

	i.queue.enqueue(p)
	p.RetxCount--

	i.traceText(trace.CodeBackoff, p, "channel busy, attempt deferred")
	i.metrics.Backoff(i.nodeUID)
}

// firstBitReceived implements spec.md §4.2.4.
func (i *Interface) firstBitReceived(size int) {
	now := i.sched.Now()

	switch {
	case now < i.txFinishTime:
		i.onCollidingFirstBit()
	case i.busyEndTime == unknownBusyEnd || now < i.busyEndTime:
		i.busyCount++
		i.busyEndTime = unknownBusyEnd
		i.metrics.BusyCount(i.nodeUID, i.busyCount)
	default:
		i.onNormalPassingTraffic(size, now)
	}
}

func (i *Interface) onCollidingFirstBit() {
	if i.collision {
		return // second peer's first bit during the same collision.
	}

	now := i.sched.Now()

	i.timers.cancel(i.sched, timerReceive)
	i.traceText(trace.CodeCollision, i.lastPacketSent, "collision detected")
	i.metrics.Collision(i.nodeUID)
	i.timers.cancel(i.sched, timerChanAcq)

	for _, j := range i.bus.Peers(i) {
		j := j
		delay := i.bus.Delay(i, j)
		i.sched.Schedule(delay, j.clr)
	}

	i.txFinishTime = now
	i.collision = true

	i.maxBackOff = min(2*i.maxBackOff, BackoffLimit)
	slotSeconds := SlotTime / i.bandwidth
	i.backOffTimer = slotSeconds * math.Ceil(i.rng.Float64()*float64(i.maxBackOff))
	i.holdTime = i.txFinishTime.Add(i.backOffTimer).Add(JamTime / i.bandwidth)
	i.metrics.BackoffWindow(i.nodeUID, i.maxBackOff)

	if i.lastPacketSent != nil {
		i.queue.enqueue(i.lastPacketSent)
		i.lastPacketSent = nil
	}

	i.timers.cancelAndArm(i.sched, timerRetransmit, float64(i.holdTime-now), func() { i.retransmit(nil) })
}

func (i *Interface) onNormalPassingTraffic(size int, now desim.Time) {
	txTime := 8 * float64(size) / i.bandwidth
	i.busyEndTime = now.Add(txTime)
	i.holdTime = i.busyEndTime.Add(InterFrameGap / i.bandwidth)

	if !i.queue.empty() && !i.timers.pending(timerRetransmit) {
		i.timers.arm(i.sched, timerRetransmit, float64(i.holdTime-now), func() { i.retransmit(nil) })
	}

	hook := i.onReceiveComplete
	i.timers.arm(i.sched, timerReceive, txTime, func() {
		if hook != nil {
			hook(size)
		}
	})
}

// clr implements spec.md §4.2.5, including the documented floor-at-1
// quirk (spec.md §9): decrementing busy_count to zero or below snaps it
// back up to 1, which is inconsistent with the variable's name but is
// preserved behavior, not a bug to fix.
func (i *Interface) clr() {
	now := i.sched.Now()

	i.busyCount--
	if i.busyCount <= 0 {
		i.busyCount = 1
		i.busyEndTime = now
	}
	i.metrics.BusyCount(i.nodeUID, i.busyCount)

	if !i.collision {
		i.holdTime = i.busyEndTime.Add(JamTime / i.bandwidth)
	}

	i.timers.cancelAndArm(i.sched, timerRetransmit, float64(i.holdTime-now), func() { i.retransmit(nil) })
}

// chanAcq implements spec.md §4.2.6: a successful transmission without
// collision resets the contention-window ceiling.
func (i *Interface) chanAcq() {
	i.maxBackOff = InitialBackoff
	i.metrics.BackoffWindow(i.nodeUID, i.maxBackOff)
}

// traceText emits one trace record for this interface, matching spec.md
// §6's line format.
func (i *Interface) traceText(code string, p *Packet, text string) {
	if i.tr == nil {
		return
	}
	packetID, summary := "", ""
	if p != nil {
		packetID = p.ID.String()
		summary = p.Summary()
	}
	i.tr.WriteTrace(i.nodeUID, i.ref, code, packetID, summary, text)
}
