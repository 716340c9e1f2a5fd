package ether

import (
	"net"
	"strconv"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/rs/xid"
)

// BroadcastMAC is the all-ones Ethernet broadcast address.
var BroadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// Packet is the opaque higher-layer payload the MAC carries (spec.md §3).
// size, src, dst and the layer tag stack are owned by the higher-layer
// protocol that built the packet; retxCount may only be mutated by the
// owning Interface's retransmit path.
type Packet struct {
	// ID uniquely identifies this packet for trace correlation across its
	// retransmit attempts and its in-flight copies on the bus. Grounded on
	// runZeroInc-sockstats's use of github.com/rs/xid for compact globally
	// unique identifiers.
	ID xid.ID

	Size int // bytes, must be positive

	Src net.HardwareAddr
	Dst net.HardwareAddr

	// RetxCount is the number of transmit attempts made so far. Reset to
	// zero whenever a fresh higher-layer send begins; incremented only by
	// the owning interface's retransmit path (spec.md §3 invariant).
	RetxCount int

	// Tags is the opaque protocol-layer tag stack (spec.md §3): payload
	// identifiers the MAC never inspects, only carries.
	Tags []string

	// pdu caches the serialized layer-2 frame built by buildPDU, so a
	// retransmit of the same Packet does not re-serialize.
	pdu []byte
}

// NewPacket constructs a fresh outbound packet with retxCount reset to
// zero, per spec.md §3's "reset to 0 when a fresh higher-layer send begins".
func NewPacket(src, dst net.HardwareAddr, size int, tags ...string) *Packet {
	return &Packet{
		ID:   xid.New(),
		Size: size,
		Src:  src,
		Dst:  dst,
		Tags: append([]string(nil), tags...),
	}
}

// IsBroadcast reports whether the packet's destination is the broadcast
// address (spec.md §3: "dst may be broadcast").
func (p *Packet) IsBroadcast() bool {
	return p.Dst != nil && string(p.Dst) == string(BroadcastMAC)
}

// Summary renders a short human-readable description for trace lines.
func (p *Packet) Summary() string {
	return p.ID.String()[:8] + "/" + p.Dst.String() + "/" + strconv.Itoa(p.Size) + "B"
}

// buildPDU attaches the layer-2 header (src/dst MAC + EtherType) to the
// packet and serializes it with gopacket, matching spec.md §4.2.7's
// external "Layer-2 protocol.build_pdu(src_mac, dst_mac, packet,
// llc_snap_type?)" collaborator. The result is cached on the packet so
// repeated retransmit attempts of the same Packet reuse the same bytes.
//
// Grounded on the pack's own use of gopacket/layers.Ethernet for L2 framing
// (malbeclabs-doublezero/telemetry/enricher/internal/enricher/decode.go,
// m-lab-etl/parser/pcap.go).
func buildPDU(p *Packet) ([]byte, error) {
	if p.pdu != nil {
		return p.pdu, nil
	}

	payload := make([]byte, max(p.Size-14, 0))

	eth := &layers.Ethernet{
		SrcMAC:       p.Src,
		DstMAC:       p.Dst,
		EthernetType: layers.EthernetTypeLLC,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: false, ComputeChecksums: false}
	if err := gopacket.SerializeLayers(buf, opts, eth, gopacket.Payload(payload)); err != nil {
		return nil, err
	}

	p.pdu = buf.Bytes()
	return p.pdu, nil
}
