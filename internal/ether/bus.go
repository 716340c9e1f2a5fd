package ether

import (
	"errors"
	"math"
)

// speedOfLight is c in m/s, used for full-detail propagation delay
// (spec.md §4.2.8).
const speedOfLight = 299_792_458.0

// Detail selects how precisely a Bus models propagation delay (spec.md §3,
// §4.2.8). Replaces the source's runtime dispatch on link.detail with the
// tagged-variant approach spec.md §9 prescribes: branch at carrier-sense
// and delay computation, with Partial and None sharing the zero-delay
// path.
type Detail uint8

const (
	// DetailNone models an instantaneous bus: no propagation delay.
	DetailNone Detail = iota
	// DetailPartial models a bus with zero propagation delay but full
	// collision/contention accounting (the common case for pure MAC
	// testing).
	DetailPartial
	// DetailFull models real propagation delay from per-interface
	// geometric locations.
	DetailFull
)

// ParseDetail maps a configuration string to a Detail, treating any
// unrecognized value as DetailPartial. spec.md §9: "the `:detail` default
// keyword spelling `:parial` in the source is a typo that still matches
// `:partial` only through a membership type that includes both; treat any
// unknown detail value as `partial` to preserve behavior."
func ParseDetail(s string) Detail {
	switch s {
	case "none":
		return DetailNone
	case "full":
		return DetailFull
	default:
		return DetailPartial
	}
}

// Location is a 2D geometric position, used only by DetailFull buses.
type Location struct {
	X, Y float64
}

func (l Location) distance(o Location) float64 {
	dx, dy := l.X-o.X, l.Y-o.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// ErrAlreadyAttached indicates the node already has an interface on this
// bus (spec.md §6: "Fails if node already attached").
var ErrAlreadyAttached = errors.New("ether: node already attached to this bus")

// Bus is the shared Ethernet medium (spec.md §3's "Link"): an
// insertion-ordered set of attached interfaces, a bandwidth, a fixed
// Detail, and optional per-interface locations when Detail is DetailFull.
type Bus struct {
	bandwidth float64 // bits/sec
	detail    Detail

	interfaces []*Interface
	byNode     map[int]*Interface

	// loopbackReceive selects whether a broadcasting interface also
	// receives its own broadcast (spec.md §8 scenario E's
	// rx_own_broadcast). This is bus-wide policy, not per-packet state.
	loopbackReceive bool
}

// BusOption configures optional Bus parameters.
type BusOption func(*Bus)

// WithLoopbackReceive sets rx_own_broadcast (spec.md §8 scenario E).
func WithLoopbackReceive(enabled bool) BusOption {
	return func(b *Bus) { b.loopbackReceive = enabled }
}

// NewBus constructs a Bus with the given bandwidth (bits/sec) and detail
// level.
func NewBus(bandwidthBPS float64, detail Detail, opts ...BusOption) *Bus {
	b := &Bus{
		bandwidth: bandwidthBPS,
		detail:    detail,
		byNode:    make(map[int]*Interface),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Bandwidth returns the bus's bandwidth in bits/sec.
func (b *Bus) Bandwidth() float64 { return b.bandwidth }

// Detail returns the bus's fixed detail level.
func (b *Bus) Detail() Detail { return b.detail }

// LoopbackReceive reports whether broadcasting interfaces receive their
// own broadcast.
func (b *Bus) LoopbackReceive() bool { return b.loopbackReceive }

// AllInterfaces returns every attached interface in attachment order,
// including self when queried from within that interface's own logic —
// spec.md §3's invariant that "peer_interfaces(link) contains every
// attached interface including self". Use Peers to iterate the common
// J != I case.
func (b *Bus) AllInterfaces() []*Interface {
	out := make([]*Interface, len(b.interfaces))
	copy(out, b.interfaces)
	return out
}

// Peers returns every attached interface other than of, in attachment
// order — the J != I iteration used throughout spec.md §4.2.3–§4.2.5.
func (b *Bus) Peers(of *Interface) []*Interface {
	out := make([]*Interface, 0, len(b.interfaces))
	for _, j := range b.interfaces {
		if j != of {
			out = append(out, j)
		}
	}
	return out
}

// Delay returns the propagation delay from i to j (spec.md §4.2.8):
// euclidean_distance(loc(i), loc(j)) / c on a DetailFull bus, zero
// otherwise.
func (b *Bus) Delay(i, j *Interface) float64 {
	if b.detail != DetailFull || i == j {
		return 0
	}
	return i.location.distance(j.location) / speedOfLight
}
