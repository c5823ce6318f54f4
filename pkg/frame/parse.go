package frame

import (
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/edoardooldani/honeysensor/pkg/flowtracker"
	"github.com/edoardooldani/honeysensor/pkg/types"
)

// Parsed is a decoded frame with its layers of interest pulled out. Layers
// the frame doesn't carry are left nil; callers check before use.
type Parsed struct {
	Raw       gopacket.Packet
	Timestamp time.Time

	Ethernet *layers.Ethernet
	ARP      *layers.ARP
	IPv4     *layers.IPv4
	TCP      *layers.TCP
	UDP      *layers.UDP
}

func parse(pkt gopacket.Packet) *Parsed {
	eth, ok := pkt.LinkLayer().(*layers.Ethernet)
	if !ok {
		return nil
	}

	p := &Parsed{
		Raw:       pkt,
		Timestamp: pkt.Metadata().CaptureInfo.Timestamp,
		Ethernet:  eth,
	}

	if arpLayer := pkt.Layer(layers.LayerTypeARP); arpLayer != nil {
		p.ARP, _ = arpLayer.(*layers.ARP)
	}
	if ipLayer := pkt.Layer(layers.LayerTypeIPv4); ipLayer != nil {
		p.IPv4, _ = ipLayer.(*layers.IPv4)
	}
	if tcpLayer := pkt.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		p.TCP, _ = tcpLayer.(*layers.TCP)
	}
	if udpLayer := pkt.Layer(layers.LayerTypeUDP); udpLayer != nil {
		p.UDP, _ = udpLayer.(*layers.UDP)
	}

	return p
}

// ToFlowFrame converts a decoded IPv4 TCP/UDP packet into the flowtracker's
// input type. The second return value is false for ARP, IPv6, or any
// packet lacking an IPv4+TCP/UDP stack, since the Flow Tracker only
// inspects TCP and UDP over IPv4.
func (p *Parsed) ToFlowFrame() (flowtracker.Frame, bool) {
	if p.IPv4 == nil {
		return flowtracker.Frame{}, false
	}

	src, ok1 := netip.AddrFromSlice(p.IPv4.SrcIP.To4())
	dst, ok2 := netip.AddrFromSlice(p.IPv4.DstIP.To4())
	if !ok1 || !ok2 {
		return flowtracker.Frame{}, false
	}

	f := flowtracker.Frame{
		SrcIP:     src,
		DstIP:     dst,
		Length:    p.IPv4.Length,
		Timestamp: p.Timestamp,
	}

	switch {
	case p.TCP != nil:
		f.Protocol = types.ProtocolTCP
		f.SrcPort = uint16(p.TCP.SrcPort)
		f.DstPort = uint16(p.TCP.DstPort)
		f.IsTCP = true
		f.TCPFlags = tcpFlagByte(p.TCP)
		f.HeaderLen = uint32(p.TCP.DataOffset) * 4
		f.HasPayload = len(p.TCP.Payload) > 0
	case p.UDP != nil:
		f.Protocol = types.ProtocolUDP
		f.SrcPort = uint16(p.UDP.SrcPort)
		f.DstPort = uint16(p.UDP.DstPort)
		f.HeaderLen = 8
		f.HasPayload = len(p.UDP.Payload) > 0
	default:
		return flowtracker.Frame{}, false
	}

	return f, true
}

// tcpFlagByte packs gopacket's exploded TCP flag booleans back into the
// single bitmask the flow tracker's Welford-style counters expect (FIN
// 0x01, SYN 0x02, RST 0x04, PSH 0x08, ACK 0x10, URG 0x20, ECE 0x40, CWR
// 0x80).
func tcpFlagByte(tcp *layers.TCP) byte {
	var b byte
	if tcp.FIN {
		b |= 0x01
	}
	if tcp.SYN {
		b |= 0x02
	}
	if tcp.RST {
		b |= 0x04
	}
	if tcp.PSH {
		b |= 0x08
	}
	if tcp.ACK {
		b |= 0x10
	}
	if tcp.URG {
		b |= 0x20
	}
	if tcp.ECE {
		b |= 0x40
	}
	if tcp.CWR {
		b |= 0x80
	}
	return b
}
