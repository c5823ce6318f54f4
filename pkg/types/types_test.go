package types

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlowKeyReversed(t *testing.T) {
	a := netip.MustParseAddr("10.0.0.5")
	b := netip.MustParseAddr("10.0.0.9")
	k := NewFlowKey(a, b, ProtocolTCP)

	rev := k.Reversed()
	require.Equal(t, b, rev.SrcIP)
	require.Equal(t, a, rev.DstIP)
	require.Equal(t, ProtocolTCP, rev.Protocol)
	require.Equal(t, k, rev.Reversed())
}

func TestAnomalyClassFromIndex(t *testing.T) {
	c, err := AnomalyClassFromIndex(0)
	require.NoError(t, err)
	require.Equal(t, Benign, c)

	c, err = AnomalyClassFromIndex(7)
	require.NoError(t, err)
	require.Equal(t, PortScan, c)

	_, err = AnomalyClassFromIndex(8)
	require.Error(t, err)

	_, err = AnomalyClassFromIndex(-1)
	require.Error(t, err)
}

func TestPriorityFromAnomalyCount(t *testing.T) {
	require.Equal(t, PriorityLow, PriorityFromAnomalyCount(4, 5, 10))
	require.Equal(t, PriorityMedium, PriorityFromAnomalyCount(5, 5, 10))
	require.Equal(t, PriorityMedium, PriorityFromAnomalyCount(9, 5, 10))
	require.Equal(t, PriorityHigh, PriorityFromAnomalyCount(10, 5, 10))
}

func TestProtocolTrackedByFlowTracker(t *testing.T) {
	require.True(t, ProtocolTCP.TrackedByFlowTracker())
	require.True(t, ProtocolUDP.TrackedByFlowTracker())
	require.False(t, ProtocolICMP.TrackedByFlowTracker())
}

func TestDataTypeAttackTypeValid(t *testing.T) {
	require.True(t, DataTypeAlert.Valid())
	require.False(t, DataType(99).Valid())
	require.True(t, AttackTypeTCPSyn.Valid())
	require.False(t, AttackType(99).Valid())
}

func TestValidateIfaceName(t *testing.T) {
	require.NoError(t, ValidateIfaceName("eth0"))
	require.Error(t, ValidateIfaceName(""))
	require.Error(t, ValidateIfaceName("eth0; rm -rf /"))
}
