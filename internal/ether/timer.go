package ether

import "github.com/dantte-lp/ethersim/internal/desim"

// timerKind enumerates the MAC's self-timer slots. spec.md §9 replaces the
// source's per-callback-object timer table with "a map from a small
// enumeration of MAC timer kinds (Retransmit, ChanAcq, Receive) to a
// scheduler handle", making find/cancel O(1) and independent of
// function-object identity.
type timerKind uint8

const (
	timerRetransmit timerKind = iota
	timerChanAcq
	timerReceive
)

// timerTable holds at most one outstanding desim.Handle per timerKind, per
// spec.md §3's "at most one outstanding self-timer per (callback,
// interface) pair" invariant.
type timerTable struct {
	handles map[timerKind]desim.Handle
}

func newTimerTable() timerTable {
	return timerTable{handles: make(map[timerKind]desim.Handle)}
}

// pending reports whether a timer of this kind is currently armed.
func (t timerTable) pending(kind timerKind) bool {
	_, ok := t.handles[kind]
	return ok
}

// arm schedules fn to fire after delay and records its handle, replacing
// any previously pending timer of the same kind. Callers typically check
// pending(kind) first per the spec's "if no timer pending, arm one"
// idiom; arm itself always (re-)arms unconditionally so cancelAndArm can
// build on it directly.
func (t timerTable) arm(s *desim.Scheduler, kind timerKind, delay float64, fn func()) {
	h := s.Schedule(delay, fn)
	t.handles[kind] = h
}

// cancel removes a pending timer of this kind, both from the table and
// from the scheduler. Idempotent: cancelling an already-fired or never-set
// timer is a no-op (spec.md §5).
func (t timerTable) cancel(s *desim.Scheduler, kind timerKind) {
	h, ok := t.handles[kind]
	if !ok {
		return
	}
	s.Cancel(h)
	delete(t.handles, kind)
}

// cancelAndArm cancels any pending timer of kind and arms a fresh one,
// matching the spec's repeated "cancel and re-arm retransmit" idiom
// (spec.md §4.2.4, §4.2.5).
func (t timerTable) cancelAndArm(s *desim.Scheduler, kind timerKind, delay float64, fn func()) {
	t.cancel(s, kind)
	t.arm(s, kind, delay, fn)
}
