package desim_test

import (
	"testing"

	"github.com/dantte-lp/ethersim/internal/desim"
	"pgregory.net/rapid"
)

func TestScheduleFIFOAtEqualTime(t *testing.T) {
	t.Parallel()

	s := desim.New()
	var order []int

	for i := range 5 {
		i := i
		s.Schedule(1.0, func() { order = append(order, i) })
	}
	s.Run()

	want := []int{0, 1, 2, 3, 4}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestRunAdvancesClockMonotonically(t *testing.T) {
	t.Parallel()

	s := desim.New()
	var times []desim.Time

	s.Schedule(3, func() { times = append(times, s.Now()) })
	s.Schedule(1, func() { times = append(times, s.Now()) })
	s.Schedule(2, func() { times = append(times, s.Now()) })
	s.Run()

	for i := 1; i < len(times); i++ {
		if times[i] < times[i-1] {
			t.Fatalf("time went backwards: %v", times)
		}
	}
	if times[0] != 1 || times[1] != 2 || times[2] != 3 {
		t.Fatalf("unexpected firing order: %v", times)
	}
}

func TestZeroDelayRunsAfterCurrentCallback(t *testing.T) {
	t.Parallel()

	s := desim.New()
	var order []string

	s.Schedule(1, func() {
		order = append(order, "first")
		s.Schedule(0, func() { order = append(order, "chained") })
		order = append(order, "first-tail")
	})
	s.Schedule(1, func() { order = append(order, "second-same-time") })

	s.Run()

	// "second-same-time" was inserted before "chained" at the same
	// timestamp, so FIFO order puts it first.
	want := []string{"first", "first-tail", "second-same-time", "chained"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestCancelIsIdempotentAndSkipsFiring(t *testing.T) {
	t.Parallel()

	s := desim.New()
	fired := false
	h := s.Schedule(1, func() { fired = true })

	if !s.Cancel(h) {
		t.Fatal("expected first cancel to report pending")
	}
	if s.Cancel(h) {
		t.Fatal("expected second cancel to be a no-op")
	}

	s.Run()

	if fired {
		t.Fatal("cancelled event must not fire")
	}
}

func TestNegativeDelayPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on negative delay")
		}
	}()

	desim.New().Schedule(-1, func() {})
}

func TestRunUntilDeadlineStopsClock(t *testing.T) {
	t.Parallel()

	s := desim.New()
	fired := false
	s.Schedule(10, func() { fired = true })

	s.Run(desim.Time(5))

	if fired {
		t.Fatal("event past the deadline must not fire")
	}
	if s.Now() != 5 {
		t.Fatalf("Now() = %v, want 5", s.Now())
	}
}

func TestResetIdempotence(t *testing.T) {
	t.Parallel()

	s := desim.New()
	hookCalls := 0
	s.OnReset(func() { hookCalls++ })

	s.Schedule(1, func() {})
	s.Reset()
	s.Reset()

	if hookCalls != 2 {
		t.Fatalf("hookCalls = %d, want 2", hookCalls)
	}
	if s.Now() != 0 {
		t.Fatalf("Now() after reset = %v, want 0", s.Now())
	}
	if s.Pending() != 0 {
		t.Fatalf("Pending() after reset = %d, want 0", s.Pending())
	}
}

// TestRapidFIFOAtEqualTime is a property-based version of the scheduler
// FIFO law (spec.md §8): for any sequence of events scheduled at the same
// simulated time, they fire in insertion order regardless of how many
// there are. Grounded on doismellburning-samoyed's use of pgregory.net/rapid
// for property tests.
func TestRapidFIFOAtEqualTime(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 64).Draw(t, "n")
		when := rapid.Float64Range(0, 1000).Draw(t, "when")

		s := desim.New()
		var order []int
		for i := range n {
			i := i
			s.Schedule(when, func() { order = append(order, i) })
		}
		s.Run()

		if len(order) != n {
			t.Fatalf("fired %d events, want %d", len(order), n)
		}
		for i := range order {
			if order[i] != i {
				t.Fatalf("order = %v, not FIFO", order)
			}
		}
	})
}

// TestRapidClockMonotone checks that across an arbitrary set of delays, Now
// never decreases between successive callback invocations.
func TestRapidClockMonotone(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		delays := rapid.SliceOfN(rapid.Float64Range(0, 100), 1, 32).Draw(t, "delays")

		s := desim.New()
		var last desim.Time = -1
		for _, d := range delays {
			s.Schedule(d, func() {
				if s.Now() < last {
					t.Fatalf("clock went backwards: now=%v last=%v", s.Now(), last)
				}
				last = s.Now()
			})
		}
		s.Run()
	})
}
