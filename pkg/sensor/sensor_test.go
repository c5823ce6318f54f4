package sensor

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"

	"github.com/edoardooldani/honeysensor/pkg/anomaly"
	"github.com/edoardooldani/honeysensor/pkg/flowtracker"
	"github.com/edoardooldani/honeysensor/pkg/frame"
	"github.com/edoardooldani/honeysensor/pkg/graph"
	"github.com/edoardooldani/honeysensor/pkg/transport"
	"github.com/edoardooldani/honeysensor/pkg/types"
	"github.com/edoardooldani/honeysensor/pkg/vhost"
)

type passthroughScaler struct{}

func (passthroughScaler) Normalize(vec []float64) ([]float64, error) { return vec, nil }

type fakeModel struct {
	mae   float64
	class int
}

func (f fakeModel) AutoencoderMAE(normalized []float64) (float64, error) { return f.mae, nil }
func (f fakeModel) ClassifierArgmax(normalized []float64) (int, error)   { return f.class, nil }

type recordingSender struct {
	sent [][]gopacket.SerializableLayer
}

func (s *recordingSender) Send(l ...gopacket.SerializableLayer) error {
	s.sent = append(s.sent, l)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func netAddr(ip net.IP) netip.Addr {
	a, _ := netip.AddrFromSlice(ip.To4())
	return a
}

func buildPacket(t *testing.T, layerList ...gopacket.SerializableLayer) gopacket.Packet {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, layerList...))
	pkt := gopacket.NewPacket(buf.Bytes(), layers.LinkTypeEthernet, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	pkt.Metadata().CaptureInfo = gopacket.CaptureInfo{Timestamp: time.Now(), Length: len(buf.Bytes())}
	return pkt
}

func newTestSensor(t *testing.T, mae float64, class int) (*Sensor, *graph.Graph, *recordingSender) {
	t.Helper()

	localMAC := net.HardwareAddr{0x02, 0, 0, 0, 0, 1}
	g := graph.New(localMAC, graph.WithVirtualIPv4Range(200, 210))
	sender := &recordingSender{}
	responder := vhost.New(sender)
	tracker := flowtracker.New()
	engine := anomaly.NewEngine(anomaly.DefaultConfig(), passthroughScaler{}, passthroughScaler{}, fakeModel{mae: mae, class: class}, g)
	client := transport.NewClient(transport.DefaultClientConfig())

	s := New(DefaultConfig(), nil, tracker, g, responder, engine, client)
	return s, g, sender
}

func TestSeedVirtualHostsAllocatesConfiguredCount(t *testing.T) {
	s, g, _ := newTestSensor(t, 0.01, 0)
	s.cfg.VirtualHostCount = 4

	require.NoError(t, s.SeedVirtualHosts())

	seen := 0
	for octet := 200; octet <= 210; octet++ {
		addr := netip.AddrFrom4([4]byte{192, 168, 1, byte(octet)})
		if _, ok := g.FindByIP(addr); ok {
			seen++
		}
	}
	require.Equal(t, 4, seen)
}

func TestHandleARPRequestTargetingVirtualNodeTriggersReply(t *testing.T) {
	s, g, sender := newTestSensor(t, 0.01, 0)
	virtual, err := g.AddVirtual()
	require.NoError(t, err)
	virtualMAC, _ := net.ParseMAC(virtual.MAC)

	requesterMAC := net.HardwareAddr{0x02, 0, 0, 0, 0, 9}
	requesterIP := net.ParseIP("192.168.1.50").To4()

	eth := &layers.Ethernet{SrcMAC: requesterMAC, DstMAC: layers.EthernetBroadcast, EthernetType: layers.EthernetTypeARP}
	arp := &layers.ARP{
		AddrType: layers.LinkTypeEthernet, Protocol: layers.EthernetTypeIPv4,
		HwAddressSize: 6, ProtAddressSize: 4, Operation: layers.ARPRequest,
		SourceHwAddress: requesterMAC, SourceProtAddress: requesterIP,
		DstHwAddress: net.HardwareAddr{0, 0, 0, 0, 0, 0}, DstProtAddress: virtual.IPv4.AsSlice(),
	}
	pkt := buildPacket(t, eth, arp)

	p := &frame.Parsed{Raw: pkt, Timestamp: time.Now(), Ethernet: eth, ARP: arp}
	srcNode, dstNode := g.Observe(requesterMAC, virtualMAC, netAddr(requesterIP), virtual.IPv4)

	s.handleARP(p, srcNode, dstNode, discardLogger())

	require.Len(t, sender.sent, 1)
}

func TestHandleIPAboveThresholdRecordsAnomaly(t *testing.T) {
	s, g, _ := newTestSensor(t, 0.9, int(types.PortScan))

	srcMAC := net.HardwareAddr{0x02, 0, 0, 0, 0, 5}
	dstMAC := net.HardwareAddr{0x02, 0, 0, 0, 0, 6}
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP,
		SrcIP: net.ParseIP("10.0.0.5").To4(), DstIP: net.ParseIP("10.0.0.9").To4()}
	tcp := &layers.TCP{SrcPort: 4000, DstPort: 80, DataOffset: 5, ACK: true}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	pkt := buildPacket(t, eth, ip, tcp)

	p := &frame.Parsed{Raw: pkt, Timestamp: time.Now(), Ethernet: eth, IPv4: ip, TCP: tcp}
	srcNode, dstNode := g.Observe(srcMAC, dstMAC, netAddr(ip.SrcIP), netAddr(ip.DstIP))

	s.handleIP(p, srcNode, dstNode, discardLogger())

	require.Len(t, srcNode.Anomalies, 1)
	require.Equal(t, types.PortScan, srcNode.Anomalies[0].Class)
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	s, _, _ := newTestSensor(t, 0.01, 0)
	s.cfg.EvictionInterval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx)
	require.Error(t, err)
}
