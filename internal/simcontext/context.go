// Package simcontext threads the Event Scheduler (desim.Scheduler) and the
// Trace Fabric (trace.Stream) through one scenario's construction,
// replacing the source's global mutable state (spec.md §9: "Global
// mutable state") with an explicit object built once per run. It owns no
// MAC or scheduling semantics of its own — it only wires ether.Bus,
// ether.Interface, and the configured sends together from a loaded
// config.ScenarioConfig.
package simcontext

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/dantte-lp/ethersim/internal/config"
	"github.com/dantte-lp/ethersim/internal/desim"
	"github.com/dantte-lp/ethersim/internal/ether"
	"github.com/dantte-lp/ethersim/internal/trace"
)

// ErrUnknownNode is returned by ScheduleSends when a send references a
// node uid that was never attached.
var ErrUnknownNode = errors.New("simcontext: send references an unattached node")

// Context is one scenario's construction-time object graph: the shared
// Scheduler, the shared trace Stream, the Bus, and every attached
// Interface keyed by node uid.
type Context struct {
	Sched *desim.Scheduler
	Trace *trace.Stream
	Bus   *ether.Bus

	logger     *slog.Logger
	interfaces map[int]*ether.Interface
}

// Reporter is the subset of ether.Reporter a Context forwards into every
// attached Interface. Satisfied by *simmetrics.Collector; a nil Reporter
// leaves each Interface on its own no-op default.
type Reporter = ether.Reporter

// New builds a Context from cfg: a fresh Scheduler, a Stream writing to
// sink with the trace overrides from cfg.Trace applied, and a Bus per
// cfg.Scenario.Bus. It attaches every node in cfg.Scenario.Nodes but does
// not schedule any sends — call ScheduleSends once construction succeeds.
func New(cfg *config.ScenarioConfig, sink io.Writer, reporter Reporter, logger *slog.Logger) (*Context, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sched := desim.New()
	tr := trace.NewStream(sink, sched.Now)
	sched.OnReset(tr.Reset)

	tr.SetDefaultEnabled(cfg.Trace.DefaultEnabled)
	if err := applyTraceOverrides(tr, cfg.Trace); err != nil {
		return nil, fmt.Errorf("apply trace overrides: %w", err)
	}

	bus := ether.NewBus(
		cfg.Scenario.Bus.BandwidthBPS,
		ether.ParseDetail(cfg.Scenario.Bus.Detail),
		ether.WithLoopbackReceive(cfg.Scenario.Bus.LoopbackReceive),
	)

	sc := &Context{
		Sched:      sched,
		Trace:      tr,
		Bus:        bus,
		logger:     logger,
		interfaces: make(map[int]*ether.Interface, len(cfg.Scenario.Nodes)),
	}

	for _, n := range cfg.Scenario.Nodes {
		opts := []ether.InterfaceOption{ether.WithSeed(cfg.Scenario.Seed + uint64(n.UID))}
		if reporter != nil {
			opts = append(opts, ether.WithMetrics(reporter))
		}

		iface, err := bus.Attach(n.UID, nodeMAC(n.UID), sched, tr, opts...)
		if err != nil {
			return nil, fmt.Errorf("attach node %d: %w", n.UID, err)
		}

		sc.interfaces[n.UID] = iface
		logger.Debug("interface attached",
			slog.Int("node", n.UID),
			slog.String("mac", iface.MAC().String()),
		)
	}

	return sc, nil
}

// Interface returns the attached Interface for nodeUID, or nil if no such
// node was attached.
func (c *Context) Interface(nodeUID int) *ether.Interface {
	return c.interfaces[nodeUID]
}

// ScheduleSends arms every configured send as a desim.Scheduler event at
// its configured time, resolving from_uid/to_uid against the interfaces
// this Context attached. Each send builds a fresh ether.Packet with
// RetxCount reset to zero, per spec.md §3's "fresh higher-layer send"
// contract, and hands it to the sending Interface's Send method.
func (c *Context) ScheduleSends(sends []config.SendConfig) error {
	for idx, snd := range sends {
		src, ok := c.interfaces[snd.FromUID]
		if !ok {
			return fmt.Errorf("sends[%d] from_uid %d: %w", idx, snd.FromUID, ErrUnknownNode)
		}

		dst := ether.BroadcastMAC
		if !snd.Broadcast {
			dstIface, ok := c.interfaces[snd.ToUID]
			if !ok {
				return fmt.Errorf("sends[%d] to_uid %d: %w", idx, snd.ToUID, ErrUnknownNode)
			}
			dst = dstIface.MAC()
		}

		size := snd.SizeBytes
		delay := snd.At - float64(c.Sched.Now())
		if delay < 0 {
			delay = 0
		}

		c.Sched.Schedule(delay, func() {
			p := ether.NewPacket(src.MAC(), dst, size)
			src.Send(p, dst)
		})
	}

	return nil
}

// nodeMAC derives a locally-administered, deterministic MAC address from
// a node uid (02:00:00:00:xx:xx, the IEEE-reserved locally-administered
// unicast range) so scenarios need not hand-author hardware addresses.
func nodeMAC(uid int) net.HardwareAddr {
	return net.HardwareAddr{0x02, 0x00, 0x00, 0x00, byte(uid >> 8), byte(uid)}
}

// applyTraceOverrides installs the node/protocol/layer status overrides
// from a TraceConfig onto stream, per spec.md §4.3's resolution chain.
func applyTraceOverrides(stream *trace.Stream, cfg config.TraceConfig) error {
	if err := applyStatusMap(stream, trace.NodeEntity, cfg.NodeStatus, parseNodeUID); err != nil {
		return fmt.Errorf("node_status: %w", err)
	}
	for key, val := range cfg.ProtocolStatus {
		status, err := parseStatus(val)
		if err != nil {
			return fmt.Errorf("protocol_status[%s]: %w", key, err)
		}
		stream.SetStatus(trace.ProtocolEntity(key), status)
	}
	if err := applyStatusMap(stream, trace.LayerEntity, cfg.LayerStatus, parseLayerNum); err != nil {
		return fmt.Errorf("layer_status: %w", err)
	}
	return nil
}

func applyStatusMap(
	stream *trace.Stream,
	entityOf func(int) trace.Entity,
	m map[string]string,
	parseKey func(string) (int, error),
) error {
	for key, val := range m {
		id, err := parseKey(key)
		if err != nil {
			return err
		}
		status, err := parseStatus(val)
		if err != nil {
			return err
		}
		stream.SetStatus(entityOf(id), status)
	}
	return nil
}

func parseStatus(s string) (trace.Status, error) {
	switch s {
	case "enabled":
		return trace.StatusEnabled, nil
	case "disabled":
		return trace.StatusDisabled, nil
	default:
		return trace.StatusDefault, fmt.Errorf("unrecognized status %q (want enabled or disabled)", s)
	}
}

func parseNodeUID(key string) (int, error) {
	var uid int
	if _, err := fmt.Sscanf(key, "%d", &uid); err != nil {
		return 0, fmt.Errorf("node_status key %q is not an integer uid: %w", key, err)
	}
	return uid, nil
}

func parseLayerNum(key string) (int, error) {
	var layer int
	if _, err := fmt.Sscanf(key, "%d", &layer); err != nil {
		return 0, fmt.Errorf("layer_status key %q is not an integer layer: %w", key, err)
	}
	return layer, nil
}
