package vhost

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"

	"github.com/edoardooldani/honeysensor/pkg/frame"
	"github.com/edoardooldani/honeysensor/pkg/graph"
)

type recorder struct {
	sent [][]gopacket.SerializableLayer
}

func (r *recorder) Send(l ...gopacket.SerializableLayer) error {
	r.sent = append(r.sent, l)
	return nil
}

func virtualNode() *graph.Node {
	return &graph.Node{
		MAC:  "b8:27:eb:11:22:33",
		Kind: graph.KindVirtual,
		IPv4: netip.MustParseAddr("192.168.1.107"),
	}
}

func arpRequestFrame(t *testing.T, requesterMAC string, requesterIP, targetIP string) *frame.Parsed {
	t.Helper()
	rMAC, _ := net.ParseMAC(requesterMAC)

	eth := &layers.Ethernet{SrcMAC: rMAC, DstMAC: net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, EthernetType: layers.EthernetTypeARP}
	arp := &layers.ARP{
		AddrType: layers.LinkTypeEthernet, Protocol: layers.EthernetTypeIPv4,
		HwAddressSize: 6, ProtAddressSize: 4, Operation: layers.ARPRequest,
		SourceHwAddress: rMAC, SourceProtAddress: netip.MustParseAddr(requesterIP).AsSlice(),
		DstHwAddress: net.HardwareAddr{0, 0, 0, 0, 0, 0}, DstProtAddress: netip.MustParseAddr(targetIP).AsSlice(),
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, eth, arp))
	pkt := gopacket.NewPacket(buf.Bytes(), layers.LinkTypeEthernet, gopacket.DecodeOptions{})
	pkt.Metadata().CaptureInfo.Timestamp = time.Now()

	return &frame.Parsed{
		Raw:      pkt,
		Ethernet: eth,
		ARP:      arp,
	}
}

func TestHandleARPRepliesOnceThenDedupes(t *testing.T) {
	rec := &recorder{}
	r := New(rec)
	node := virtualNode()

	f := arpRequestFrame(t, "aa:bb:cc:dd:ee:01", "192.168.1.50", "192.168.1.107")

	require.NoError(t, r.HandleARP(f, node))
	require.Len(t, rec.sent, 1)

	require.NoError(t, r.HandleARP(f, node))
	require.Len(t, rec.sent, 1, "second identical request must not trigger a second reply")
}

func TestHandleARPIgnoresWrongTarget(t *testing.T) {
	rec := &recorder{}
	r := New(rec)
	node := virtualNode()

	f := arpRequestFrame(t, "aa:bb:cc:dd:ee:01", "192.168.1.50", "192.168.1.200")
	require.NoError(t, r.HandleARP(f, node))
	require.Empty(t, rec.sent)
}

func tcpFrame(t *testing.T, flags layers.TCP, dstPort uint16) *frame.Parsed {
	t.Helper()
	srcMAC := net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x01}
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: net.HardwareAddr{0xb8, 0x27, 0xeb, 0x11, 0x22, 0x33}, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: net.ParseIP("192.168.1.50").To4(), DstIP: net.ParseIP("192.168.1.107").To4()}
	tcp := flags
	tcp.SrcPort = 51000
	tcp.DstPort = layers.TCPPort(dstPort)
	tcp.Seq = 1000
	tcp.DataOffset = 5
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}, eth, ip, &tcp))
	pkt := gopacket.NewPacket(buf.Bytes(), layers.LinkTypeEthernet, gopacket.DecodeOptions{})

	return &frame.Parsed{Raw: pkt, Ethernet: eth, IPv4: ip, TCP: &tcp}
}

func TestHandleTCPSynOnHoneypotPortRepliesSynAck(t *testing.T) {
	rec := &recorder{}
	r := New(rec)
	node := virtualNode()

	f := tcpFrame(t, layers.TCP{SYN: true}, 80)
	require.NoError(t, r.HandleTCP(f, node))
	require.Len(t, rec.sent, 1)

	tcp := rec.sent[0][2].(*layers.TCP)
	require.True(t, tcp.SYN)
	require.True(t, tcp.ACK)
	require.EqualValues(t, 1001, tcp.Ack)
}

func TestHandleTCPSynOnOtherPortRepliesRst(t *testing.T) {
	rec := &recorder{}
	r := New(rec)
	node := virtualNode()

	f := tcpFrame(t, layers.TCP{SYN: true}, 443)
	require.NoError(t, r.HandleTCP(f, node))
	require.Len(t, rec.sent, 1)

	tcp := rec.sent[0][2].(*layers.TCP)
	require.True(t, tcp.RST)
	require.False(t, tcp.SYN)
}

func TestHandleTCPAckOnPort22IsNoop(t *testing.T) {
	rec := &recorder{}
	r := New(rec)
	node := virtualNode()

	f := tcpFrame(t, layers.TCP{ACK: true}, 22)
	require.NoError(t, r.HandleTCP(f, node))
	require.Empty(t, rec.sent)
}
