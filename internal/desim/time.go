// Package desim implements the discrete-event scheduler at the core of
// ethersim: a min-heap of time-stamped callbacks driving a monotonic
// simulated clock. There is no wall-clock involvement and no goroutine —
// Run is a synchronous pop-advance-invoke loop, and every "wait N seconds"
// in the rest of the simulator becomes a Schedule call here.
package desim

import "fmt"

// Time is a simulated instant, in seconds since the scheduler was created
// or last Reset. It is monotonically non-decreasing across the lifetime of
// a Run.
type Time float64

// String renders a Time the way trace output does: fixed 3-decimal seconds.
func (t Time) String() string {
	return fmt.Sprintf("%.3f", float64(t))
}

// Before reports whether t occurs strictly before u.
func (t Time) Before(u Time) bool { return t < u }

// Add returns t advanced by delta seconds.
func (t Time) Add(delta float64) Time { return t + Time(delta) }
