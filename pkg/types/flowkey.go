package types

import (
	"fmt"
	"net/netip"
)

// FlowKey identifies a Flow by host pair and protocol. Ports are
// deliberately excluded: flows group an entire conversation between two
// hosts over one protocol rather than a single TCP/UDP session, trading
// per-connection granularity for a smaller, steadier flow population (see
// DESIGN.md's "Open Question" decision on this point).
type FlowKey struct {
	SrcIP    netip.Addr
	DstIP    netip.Addr
	Protocol Protocol
}

// NewFlowKey builds a FlowKey from raw addresses and a protocol number.
func NewFlowKey(src, dst netip.Addr, proto Protocol) FlowKey {
	return FlowKey{SrcIP: src, DstIP: dst, Protocol: proto}
}

// String renders the key for logging.
func (k FlowKey) String() string {
	return fmt.Sprintf("%s<->%s/%s", k.SrcIP, k.DstIP, k.Protocol)
}

// reversed returns the key with source/destination swapped, used to detect
// that a packet belongs to an already-tracked flow observed from the other
// direction.
func (k FlowKey) reversed() FlowKey {
	return FlowKey{SrcIP: k.DstIP, DstIP: k.SrcIP, Protocol: k.Protocol}
}

// Reversed exposes reversed for other packages (e.g. the flow tracker's
// initiator lookup).
func (k FlowKey) Reversed() FlowKey { return k.reversed() }
