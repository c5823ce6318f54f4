package flowtracker

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edoardooldani/honeysensor/pkg/types"
)

func mkFrame(src, dst string, srcPort, dstPort uint16, proto types.Protocol, ts time.Time) Frame {
	return Frame{
		SrcIP:     netip.MustParseAddr(src),
		DstIP:     netip.MustParseAddr(dst),
		SrcPort:   srcPort,
		DstPort:   dstPort,
		Protocol:  proto,
		Length:    100,
		HeaderLen: 20,
		Timestamp: ts,
	}
}

func TestTrackerIgnoresMDNS(t *testing.T) {
	tr := New()
	now := time.Now()

	_, tracked := tr.Update(mkFrame("10.0.0.5", "224.0.0.251", 5353, 5353, types.ProtocolUDP, now))
	require.False(t, tracked)
	require.Equal(t, 0, tr.Len())

	_, tracked = tr.Update(mkFrame("10.0.0.5", "10.0.0.9", 5353, 5353, types.ProtocolUDP, now))
	require.False(t, tracked)
}

func TestTrackerIgnoresNonTCPUDP(t *testing.T) {
	tr := New()
	_, tracked := tr.Update(mkFrame("10.0.0.5", "10.0.0.9", 0, 0, types.ProtocolICMP, time.Now()))
	require.False(t, tracked)
	require.Equal(t, 0, tr.Len())
}

func TestTrackerMatchesReverseDirection(t *testing.T) {
	tr := New()
	now := time.Now()

	f1, tracked := tr.Update(mkFrame("10.0.0.5", "10.0.0.9", 4000, 80, types.ProtocolTCP, now))
	require.True(t, tracked)
	require.Equal(t, 1, tr.Len())
	require.EqualValues(t, 1, f1.TotFwdPkts)

	f2, tracked := tr.Update(mkFrame("10.0.0.9", "10.0.0.5", 80, 4000, types.ProtocolTCP, now.Add(time.Millisecond)))
	require.True(t, tracked)
	require.Equal(t, 1, tr.Len(), "reverse-direction packet must join the existing flow, not create a new one")
	require.Same(t, f1, f2)
	require.EqualValues(t, 1, f2.TotFwdPkts)
	require.EqualValues(t, 1, f2.TotBwdPkts)
}

func TestTrackerCountersNeverDecrease(t *testing.T) {
	tr := New()
	now := time.Now()

	var last *FlowFeatures
	for i := 0; i < 20; i++ {
		feat, tracked := tr.Update(mkFrame("10.0.0.5", "10.0.0.9", 4000, 80, types.ProtocolTCP, now.Add(time.Duration(i)*time.Millisecond)))
		require.True(t, tracked)
		if last != nil {
			require.GreaterOrEqual(t, feat.TotFwdPkts, last.TotFwdPkts)
			require.GreaterOrEqual(t, feat.TotlenFwdPkts, last.TotlenFwdPkts)
		}
		last = feat
	}
	require.EqualValues(t, 20, last.TotFwdPkts)
}

func TestTrackerEvictsOnRST(t *testing.T) {
	tr := New()
	now := time.Now()

	_, tracked := tr.Update(mkFrame("10.0.0.5", "10.0.0.9", 4000, 80, types.ProtocolTCP, now))
	require.True(t, tracked)
	require.Equal(t, 1, tr.Len())

	f := mkFrame("10.0.0.9", "10.0.0.5", 80, 4000, types.ProtocolTCP, now.Add(time.Millisecond))
	f.IsTCP = true
	f.TCPFlags = tcpFlagRST
	_, tracked = tr.Update(f)
	require.True(t, tracked)
	require.Equal(t, 0, tr.Len())
}

func TestTrackerSurvivesHalfClose(t *testing.T) {
	tr := New()
	now := time.Now()

	_, tracked := tr.Update(mkFrame("10.0.0.5", "10.0.0.9", 4000, 80, types.ProtocolTCP, now))
	require.True(t, tracked)

	fwdFin := mkFrame("10.0.0.5", "10.0.0.9", 4000, 80, types.ProtocolTCP, now.Add(time.Millisecond))
	fwdFin.IsTCP = true
	fwdFin.TCPFlags = tcpFlagFIN
	_, tracked = tr.Update(fwdFin)
	require.True(t, tracked)
	require.Equal(t, 1, tr.Len(), "a FIN in one direction only half-closes the flow")

	feat, tracked := tr.Update(mkFrame("10.0.0.9", "10.0.0.5", 80, 4000, types.ProtocolTCP, now.Add(2*time.Millisecond)))
	require.True(t, tracked)
	require.EqualValues(t, 3, feat.TotFwdPkts+feat.TotBwdPkts, "continuing data on the open direction must accumulate on the same accumulator")
}

func TestTrackerEvictsOnBidirectionalFin(t *testing.T) {
	tr := New()
	now := time.Now()

	_, tracked := tr.Update(mkFrame("10.0.0.5", "10.0.0.9", 4000, 80, types.ProtocolTCP, now))
	require.True(t, tracked)

	fwdFin := mkFrame("10.0.0.5", "10.0.0.9", 4000, 80, types.ProtocolTCP, now.Add(time.Millisecond))
	fwdFin.IsTCP = true
	fwdFin.TCPFlags = tcpFlagFIN
	_, tracked = tr.Update(fwdFin)
	require.True(t, tracked)
	require.Equal(t, 1, tr.Len())

	bwdFin := mkFrame("10.0.0.9", "10.0.0.5", 80, 4000, types.ProtocolTCP, now.Add(2*time.Millisecond))
	bwdFin.IsTCP = true
	bwdFin.TCPFlags = tcpFlagFIN
	_, tracked = tr.Update(bwdFin)
	require.True(t, tracked)
	require.Equal(t, 0, tr.Len(), "the flow must only be evicted once both directions have sent FIN")
}

func TestTrackerEvictIdle(t *testing.T) {
	tr := New()
	old := time.Now().Add(-time.Hour)

	_, tracked := tr.Update(mkFrame("10.0.0.5", "10.0.0.9", 4000, 80, types.ProtocolTCP, old))
	require.True(t, tracked)
	require.Equal(t, 1, tr.Len())

	evicted := tr.EvictIdle(time.Minute)
	require.Equal(t, 1, evicted)
	require.Equal(t, 0, tr.Len())
}

func TestFlowDurationClampsBelowOneMillisecond(t *testing.T) {
	f := NewFlowFeatures(1234, 80, types.ProtocolTCP)
	now := time.Now()
	f.Update(now, types.Forward, 100, true, 0x02, 20, false)
	f.Update(now.Add(10*time.Microsecond), types.Forward, 100, true, 0x10, 20, false)

	require.Less(t, f.FlowDuration, 1.0)
	require.Greater(t, f.FlowBytsPerS, 0.0, "rate computation must clamp duration to the 1ms floor instead of dividing by ~0")
}
