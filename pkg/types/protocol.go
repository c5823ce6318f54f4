package types

// Protocol is the IANA transport-protocol number carried in the IPv4
// header. Only TCP and UDP participate in flow tracking; the others are
// recognized so callers can cheaply reject them before any further
// parsing.
type Protocol byte

// Enumeration of protocol numbers this module inspects.
const (
	ProtocolICMP Protocol = 1
	ProtocolTCP  Protocol = 6
	ProtocolUDP  Protocol = 17
)

// String returns a human-readable protocol name.
func (p Protocol) String() string {
	switch p {
	case ProtocolICMP:
		return "icmp"
	case ProtocolTCP:
		return "tcp"
	case ProtocolUDP:
		return "udp"
	default:
		return "unknown"
	}
}

// TrackedByFlowTracker reports whether the flow tracker maintains
// statistics for this protocol: TCP and UDP only, IPv6/ICMP/ARP are
// ignored at this layer.
func (p Protocol) TrackedByFlowTracker() bool {
	return p == ProtocolTCP || p == ProtocolUDP
}
