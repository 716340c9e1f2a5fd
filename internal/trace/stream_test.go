package trace_test

import (
	"strings"
	"testing"

	"github.com/dantte-lp/ethersim/internal/desim"
	"github.com/dantte-lp/ethersim/internal/trace"
)

func newTestStream(t *testing.T, now *desim.Time) (*trace.Stream, *strings.Builder) {
	t.Helper()
	var buf strings.Builder
	s := trace.NewStream(&buf, func() desim.Time { return *now })
	s.SetDefaultEnabled(true)
	return s, &buf
}

func eth0() trace.ProtocolRef {
	return trace.ProtocolRef{
		Node:  trace.NodeEntity(0),
		Self:  trace.ProtocolEntity("eth0"),
		Layer: trace.LayerEntity(2),
		Tag:   "eth",
	}
}

func TestWriteTraceDisabledByDefaultIsSilent(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	now := desim.Time(0)
	s := trace.NewStream(&buf, func() desim.Time { return now })

	s.WriteTrace(0, eth0(), "", "", "", "hello")

	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func TestWriteTraceFormatsLine(t *testing.T) {
	t.Parallel()

	now := desim.Time(0)
	s, buf := newTestStream(t, &now)

	s.WriteTrace(3, eth0(), trace.CodeRetransmit, "", "", "attempt 1")

	out := buf.String()
	if !strings.Contains(out, "N3") {
		t.Fatalf("expected node prefix N3 in %q", out)
	}
	if !strings.Contains(out, "[eth]") || !strings.Contains(out, "[L2-RA]") {
		t.Fatalf("expected protocol/event tags in %q", out)
	}
	if !strings.Contains(out, "attempt 1") {
		t.Fatalf("expected text in %q", out)
	}
	// A single WriteTrace call has nothing after it to force a line break,
	// so the record is flushed but the line stays open (spec.md §4.3): no
	// trailing newline is forced just because the call returned.
	if strings.HasSuffix(out, "\n") {
		t.Fatalf("expected no forced trailing newline in %q", out)
	}
}

// TestWriteTraceCollapsesSharedPrefix confirms the invariant spec.md §3
// calls out explicitly: two records sharing the same (time, node) prefix
// land on a single physical line, not two.
func TestWriteTraceCollapsesSharedPrefix(t *testing.T) {
	t.Parallel()

	now := desim.Time(1.5)
	s, buf := newTestStream(t, &now)

	s.WriteTrace(3, eth0(), trace.CodeRetransmit, "", "", "attempt 1")
	s.WriteTrace(3, eth0(), trace.CodeCollision, "", "", "collided")

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected records sharing a time+node prefix to collapse onto one line, got %d: %q", len(lines), out)
	}
	if strings.Count(out, "N3") != 1 {
		t.Fatalf("expected a single N3 prefix, got %q", out)
	}
	if !strings.Contains(out, "[L2-RA]") || !strings.Contains(out, "[L2-C]") {
		t.Fatalf("expected both event tags on the collapsed line, got %q", out)
	}
}

func TestNodeStatusOverridesProtocolStatus(t *testing.T) {
	t.Parallel()

	now := desim.Time(0)
	s, buf := newTestStream(t, &now)
	s.SetDefaultEnabled(false)

	ref := eth0()
	s.SetStatus(ref.Node, trace.StatusEnabled)
	s.SetStatus(ref.Self, trace.StatusDisabled)

	s.WriteTrace(0, ref, "", "", "", "line should appear")

	if buf.Len() == 0 {
		t.Fatal("expected node-level enabled to win over protocol-level disabled (scenario F)")
	}
}

func TestEmbeddedNewlineIsReplacedWithSpace(t *testing.T) {
	t.Parallel()

	now := desim.Time(0)
	s, buf := newTestStream(t, &now)

	s.WriteTrace(0, eth0(), "", "", "", "line one\nline two")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected a single physical line, got %d: %q", len(lines), buf.String())
	}
	if strings.Contains(buf.String(), "\nline two") {
		t.Fatalf("embedded newline should have become a space: %q", buf.String())
	}
}

func TestDetailFilterDropsUnlistedTags(t *testing.T) {
	t.Parallel()

	now := desim.Time(0)
	s, buf := newTestStream(t, &now)

	ref := eth0()
	s.SetDetail(ref.Self, trace.TagDetail(trace.CodeCollision))

	s.WriteTrace(0, ref, trace.CodeBackoff, "", "", "should be filtered")
	if buf.Len() != 0 {
		t.Fatalf("expected backoff to be filtered out, got %q", buf.String())
	}

	s.WriteTrace(0, ref, trace.CodeCollision, "", "", "should pass")
	if buf.Len() == 0 {
		t.Fatal("expected collision tag to pass the detail filter")
	}
}

func TestClosedStreamSilentlyDropsWrites(t *testing.T) {
	t.Parallel()

	now := desim.Time(0)
	s, buf := newTestStream(t, &now)
	s.Close()

	s.WriteTrace(0, eth0(), "", "", "", "dropped")

	if buf.Len() != 0 {
		t.Fatalf("expected closed stream to drop writes silently, got %q", buf.String())
	}
	if s.Enabled() {
		t.Fatal("expected Enabled() to report false after Close")
	}
}

func TestResetStampsLastLogTime(t *testing.T) {
	t.Parallel()

	now := desim.Time(1.5)
	s, _ := newTestStream(t, &now)

	s.WriteTrace(0, eth0(), "", "", "", "before reset")
	s.Reset()

	// Reset must not panic and must leave the stream writable.
	now = 2.0
	s.WriteTrace(0, eth0(), "", "", "", "after reset")
}
