// Package frame implements the Frame Source: promiscuous raw
// capture and synthesis of Ethernet frames on the sensor's primary network
// interface.
package frame

import (
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

var defaultDecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}

// DefaultSnapLen captures full-size Ethernet frames; honeypot traffic is
// small but the capture length is kept generous to avoid truncating TCP
// options the classifier depends on.
const DefaultSnapLen = 65535

// Source is a live promiscuous capture handle on one interface, doubling as
// the raw frame sender used by the Virtual-Host Responder.
type Source struct {
	handle   *pcap.Handle
	iface    string
	localMAC net.HardwareAddr
}

// Open activates promiscuous capture on iface. bufSize is the kernel ring
// buffer size in bytes; zero selects pcap's default.
func Open(iface string, bufSize int) (*Source, error) {
	ifc, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("frame: resolve interface %q: %w", iface, err)
	}

	inactive, err := pcap.NewInactiveHandle(iface)
	if err != nil {
		return nil, fmt.Errorf("frame: create handle for %q: %w", iface, err)
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(DefaultSnapLen); err != nil {
		return nil, err
	}
	if err := inactive.SetPromisc(true); err != nil {
		return nil, err
	}
	if err := inactive.SetTimeout(time.Second); err != nil {
		return nil, err
	}
	if bufSize > 0 {
		if err := inactive.SetBufferSize(bufSize); err != nil {
			return nil, err
		}
	}

	handle, err := inactive.Activate()
	if err != nil {
		return nil, fmt.Errorf("frame: activate %q: %w", iface, err)
	}

	if handle.LinkType() != layers.LinkTypeEthernet {
		handle.Close()
		return nil, fmt.Errorf("frame: %q is not an Ethernet link", iface)
	}

	return &Source{handle: handle, iface: iface, localMAC: ifc.HardwareAddr}, nil
}

// LocalMAC returns the capturing interface's own hardware address, used to
// filter out frames the sensor itself emitted.
func (s *Source) LocalMAC() net.HardwareAddr {
	return s.localMAC
}

// Next blocks until the next frame arrives, decodes it, and skips frames
// that originated from this interface's own MAC (our synthesized ARP/TCP
// replies loop back through a promiscuous handle otherwise).
func (s *Source) Next() (*Parsed, error) {
	for {
		data, ci, err := s.handle.ZeroCopyReadPacketData()
		if err != nil {
			return nil, err
		}

		pkt := gopacket.NewPacket(data, layers.LinkTypeEthernet, defaultDecodeOptions)
		pkt.Metadata().CaptureInfo = ci

		parsed := parse(pkt)
		if parsed == nil {
			continue
		}
		if parsed.Ethernet != nil && sameMAC(parsed.Ethernet.SrcMAC, s.localMAC) {
			continue
		}
		return parsed, nil
	}
}

// Send serializes layers and writes the resulting frame to the wire.
// Callers are responsible for supplying a complete, correctly stacked set
// of layers (typically Ethernet + one of ARP/IPv4+TCP).
func (s *Source) Send(l ...gopacket.SerializableLayer) error {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, l...); err != nil {
		return fmt.Errorf("frame: serialize: %w", err)
	}
	return s.handle.WritePacketData(buf.Bytes())
}

// Close releases the capture handle.
func (s *Source) Close() {
	s.handle.Close()
}

func sameMAC(a, b net.HardwareAddr) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return a.String() == b.String()
}
