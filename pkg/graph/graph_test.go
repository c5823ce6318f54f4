package graph

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edoardooldani/honeysensor/pkg/types"
)

func TestObserveCreatesNodesAndEdge(t *testing.T) {
	local, _ := net.ParseMAC("02:00:00:00:00:01")
	g := New(local)

	a, _ := net.ParseMAC("02:00:00:00:00:02")
	srcIP := netip.MustParseAddr("10.0.0.5")
	dstIP := netip.MustParseAddr("10.0.0.9")

	src, dst := g.Observe(local, a, srcIP, dstIP)
	require.Equal(t, KindDevice, src.Kind)
	require.Equal(t, KindPhysical, dst.Kind)
	require.Equal(t, srcIP, src.IPv4)
	require.Equal(t, dstIP, dst.IPv4)

	found, ok := g.FindByIP(dstIP)
	require.True(t, ok)
	require.Equal(t, dst, found)
}

func TestObserveKindFixedAtInsertion(t *testing.T) {
	local, _ := net.ParseMAC("02:00:00:00:00:01")
	g := New(local)
	a, _ := net.ParseMAC("02:00:00:00:00:02")

	_, dst1 := g.Observe(local, a, netip.Addr{}, netip.Addr{})
	src2, _ := g.Observe(a, local, netip.Addr{}, netip.Addr{})
	require.Equal(t, dst1, src2, "a node looked up a second time must be the same instance with the same kind")
	require.Equal(t, KindPhysical, dst1.Kind)
}

func TestAddVirtualProducesUniqueIdentities(t *testing.T) {
	local, _ := net.ParseMAC("02:00:00:00:00:01")
	g := New(local)

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		n, err := g.AddVirtual()
		require.NoError(t, err)
		require.Equal(t, KindVirtual, n.Kind)
		require.False(t, seen[n.MAC], "MAC must be unique across allocations")
		seen[n.MAC] = true

		octet := n.IPv4.As4()[3]
		require.GreaterOrEqual(t, int(octet), defaultIPv4RangeStart)
		require.LessOrEqual(t, int(octet), defaultIPv4RangeEnd)
	}
}

func TestWithVirtualIPv4RangeConstrainsAllocation(t *testing.T) {
	local, _ := net.ParseMAC("02:00:00:00:00:01")
	g := New(local, WithVirtualIPv4Range(200, 210))

	for i := 0; i < 5; i++ {
		n, err := g.AddVirtual()
		require.NoError(t, err)
		octet := n.IPv4.As4()[3]
		require.GreaterOrEqual(t, int(octet), 200)
		require.LessOrEqual(t, int(octet), 210)
	}
}

func TestRecordAnomalyAppendsAndReturnsCount(t *testing.T) {
	local, _ := net.ParseMAC("02:00:00:00:00:01")
	g := New(local)
	a, _ := net.ParseMAC("02:00:00:00:00:02")
	_, node := g.Observe(local, a, netip.Addr{}, netip.Addr{})

	n1 := g.RecordAnomaly(node, types.PortScan, time.Now())
	require.Equal(t, 1, n1)
	n2 := g.RecordAnomaly(node, types.DDoS, time.Now())
	require.Equal(t, 2, n2)
	require.Len(t, node.Anomalies, 2)
}
