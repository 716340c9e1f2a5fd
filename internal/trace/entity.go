package trace

import "fmt"

// entityKind distinguishes the three levels an effective-status or
// effective-detail lookup can be pinned to (spec.md §4.3).
type entityKind uint8

const (
	kindNode entityKind = iota
	kindProtocol
	kindLayer
)

// Entity identifies a node, a protocol instance, or a layer number as a
// trace_status / trace_detail key. Entity values are comparable and usable
// as map keys.
type Entity struct {
	kind entityKind
	id   string
}

// NodeEntity identifies a node by uid.
func NodeEntity(uid int) Entity { return Entity{kind: kindNode, id: fmt.Sprintf("%d", uid)} }

// ProtocolEntity identifies a single protocol instance by its unique key
// (e.g. "eth0/mac" for an Interface's trace identity).
func ProtocolEntity(key string) Entity { return Entity{kind: kindProtocol, id: key} }

// LayerEntity identifies every protocol instance at a given stack layer
// number (spec.md §3's "protocol-layer tag stack").
func LayerEntity(layer int) Entity { return Entity{kind: kindLayer, id: fmt.Sprintf("%d", layer)} }

// String renders the entity for logging/debugging.
func (e Entity) String() string {
	switch e.kind {
	case kindNode:
		return "node:" + e.id
	case kindProtocol:
		return "protocol:" + e.id
	case kindLayer:
		return "layer:" + e.id
	default:
		return "entity:" + e.id
	}
}

// ProtocolRef is the (node, protocol-instance, layer) triple a single
// trace-worthy protocol (here: one ether.Interface) resolves status and
// detail against, per spec.md §4.3's "first non-default value among
// status[node(p)], status[p], status[layer(p)]".
type ProtocolRef struct {
	Node     Entity
	Self     Entity
	Layer    Entity
	Tag      string // protocol_tag rendered into the trace line, e.g. "eth"
}
