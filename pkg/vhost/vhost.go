// Package vhost implements the Virtual-Host Responder:
// synthesizing ARP replies and TCP handshake responses on behalf of
// honeypot identities allocated in the Network Graph.
package vhost

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/edoardooldani/honeysensor/pkg/frame"
	"github.com/edoardooldani/honeysensor/pkg/graph"
)

// sender writes synthesized frames to the wire. pkg/frame.Source
// satisfies this; tests substitute a recorder.
type sender interface {
	Send(l ...gopacket.SerializableLayer) error
}

// arpPair is the (my_ip, target_ip) dedupe key for suppressing repeated
// ARP replies to the same requester/target pair.
type arpPair struct {
	mine   netip.Addr
	target netip.Addr
}

// Responder holds the process-wide ARP-reply dedupe set and emits
// synthesized frames through a frame.Source.
type Responder struct {
	out sender

	mu      sync.Mutex
	replied map[arpPair]struct{}
}

// New builds a Responder that writes frames via out.
func New(out sender) *Responder {
	return &Responder{out: out, replied: make(map[arpPair]struct{})}
}

// HandleARP answers an ARP Request targeting node's IPv4, at most once per
// (node IP, requester IP) pair for the process lifetime.
// It is a no-op for anything other than a matching ARP Request.
func (r *Responder) HandleARP(p *frame.Parsed, node *graph.Node) error {
	if p.ARP == nil || p.Ethernet == nil {
		return nil
	}
	if p.ARP.Operation != layers.ARPRequest {
		return nil
	}
	if !node.HasIPv4() {
		return nil
	}

	targetIP, ok := netip.AddrFromSlice(p.ARP.DstProtAddress)
	if !ok || !targetIP.Is4() || targetIP != node.IPv4 {
		return nil
	}

	requesterIP, ok := netip.AddrFromSlice(p.ARP.SourceProtAddress)
	if !ok {
		return nil
	}

	pair := arpPair{mine: node.IPv4, target: requesterIP}
	r.mu.Lock()
	_, already := r.replied[pair]
	if !already {
		r.replied[pair] = struct{}{}
	}
	r.mu.Unlock()
	if already {
		return nil
	}

	virtualMAC, err := net.ParseMAC(node.MAC)
	if err != nil {
		return fmt.Errorf("vhost: parse virtual MAC %q: %w", node.MAC, err)
	}
	requesterMAC := net.HardwareAddr(p.ARP.SourceHwAddress)

	eth := &layers.Ethernet{
		SrcMAC:       virtualMAC,
		DstMAC:       requesterMAC,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPReply,
		SourceHwAddress:   virtualMAC,
		SourceProtAddress: node.IPv4.AsSlice(),
		DstHwAddress:      requesterMAC,
		DstProtAddress:    requesterIP.AsSlice(),
	}

	return r.out.Send(eth, arp)
}

// tcpFlagSYN and friends mirror the single-byte flag encoding used
// throughout this module (see pkg/frame.tcpFlagByte).
const (
	tcpFlagFIN = 0x01
	tcpFlagSYN = 0x02
	tcpFlagRST = 0x04
	tcpFlagACK = 0x10
)

// honeypotPorts are the ports the responder completes a handshake for;
// anything else gets an RST.
var honeypotPorts = map[uint16]bool{22: true, 80: true}

// HandleTCP answers a TCP frame destined for node. SSH (port 22) never
// receives application-layer replies beyond the handshake; no proxy is
// implemented here.
func (r *Responder) HandleTCP(p *frame.Parsed, node *graph.Node) error {
	if p.TCP == nil || p.IPv4 == nil || p.Ethernet == nil {
		return nil
	}

	flags := tcpFlagsOf(p.TCP)

	switch {
	case flags == tcpFlagSYN:
		if honeypotPorts[uint16(p.TCP.DstPort)] {
			return r.replyTCP(p, node, tcpFlagSYN|tcpFlagACK)
		}
		return r.replyTCP(p, node, tcpFlagRST)
	case flags == tcpFlagACK && uint16(p.TCP.DstPort) == 22:
		// Deliberate no-op: the legacy SSH proxy is out of scope.
		return nil
	default:
		return nil
	}
}

func tcpFlagsOf(tcp *layers.TCP) byte {
	var b byte
	if tcp.FIN {
		b |= tcpFlagFIN
	}
	if tcp.SYN {
		b |= tcpFlagSYN
	}
	if tcp.RST {
		b |= tcpFlagRST
	}
	if tcp.ACK {
		b |= tcpFlagACK
	}
	return b
}

func (r *Responder) replyTCP(p *frame.Parsed, node *graph.Node, replyFlags byte) error {
	virtualMAC, err := net.ParseMAC(node.MAC)
	if err != nil {
		return fmt.Errorf("vhost: parse virtual MAC %q: %w", node.MAC, err)
	}

	seq, err := randomUint32()
	if err != nil {
		return fmt.Errorf("vhost: generate sequence number: %w", err)
	}

	eth := &layers.Ethernet{
		SrcMAC:       virtualMAC,
		DstMAC:       p.Ethernet.SrcMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    node.IPv4.AsSlice(),
		DstIP:    p.IPv4.SrcIP,
	}
	tcp := &layers.TCP{
		SrcPort:    p.TCP.DstPort,
		DstPort:    p.TCP.SrcPort,
		Seq:        seq,
		Ack:        p.TCP.Seq + 1,
		DataOffset: 5,
		Window:     64240,
	}
	tcp.SYN = replyFlags&tcpFlagSYN != 0
	tcp.ACK = replyFlags&tcpFlagACK != 0
	tcp.RST = replyFlags&tcpFlagRST != 0

	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return fmt.Errorf("vhost: set checksum network layer: %w", err)
	}

	return r.out.Send(eth, ip, tcp)
}

func randomUint32() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}
