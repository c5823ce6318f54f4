package anomaly

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edoardooldani/honeysensor/pkg/flowtracker"
	"github.com/edoardooldani/honeysensor/pkg/graph"
	"github.com/edoardooldani/honeysensor/pkg/types"
)

type passthroughScaler struct{}

func (passthroughScaler) Normalize(vec []float64) ([]float64, error) { return vec, nil }

type fakeModel struct {
	mae   float64
	maeErr error
	class int
	clsErr error
}

func (f fakeModel) AutoencoderMAE(normalized []float64) (float64, error) { return f.mae, f.maeErr }
func (f fakeModel) ClassifierArgmax(normalized []float64) (int, error)   { return f.class, f.clsErr }

func TestScoreNilFeaturesAborts(t *testing.T) {
	g := graph.New(net.HardwareAddr{0x02, 0, 0, 0, 0, 1})
	e := NewEngine(DefaultConfig(), passthroughScaler{}, passthroughScaler{}, fakeModel{}, g)

	v, ok, err := e.Score(nil, nil, time.Now())
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, Verdict{}, v)
}

func TestScoreBelowThresholdIsBenign(t *testing.T) {
	g := graph.New(net.HardwareAddr{0x02, 0, 0, 0, 0, 1})
	node := &graph.Node{MAC: "aa:bb:cc:dd:ee:ff", Kind: graph.KindPhysical}
	e := NewEngine(DefaultConfig(), passthroughScaler{}, passthroughScaler{}, fakeModel{mae: 0.01}, g)

	feat := flowtracker.NewFlowFeatures(1234, 80, types.ProtocolTCP)
	v, ok, err := e.Score(feat, node, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, v.Anomalous)
	require.Equal(t, types.Benign, v.Class)
	require.Empty(t, node.Anomalies)
}

func TestScoreAboveThresholdRecordsOnSourceNode(t *testing.T) {
	g := graph.New(net.HardwareAddr{0x02, 0, 0, 0, 0, 1})
	node := &graph.Node{MAC: "aa:bb:cc:dd:ee:ff", Kind: graph.KindPhysical}
	e := NewEngine(DefaultConfig(), passthroughScaler{}, passthroughScaler{}, fakeModel{mae: 0.9, class: int(types.PortScan)}, g)

	feat := flowtracker.NewFlowFeatures(1234, 80, types.ProtocolTCP)
	v, ok, err := e.Score(feat, node, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, v.Anomalous)
	require.Equal(t, types.PortScan, v.Class)
	require.Equal(t, 1, v.AnomalyCount)
	require.Len(t, node.Anomalies, 1)
	require.Equal(t, types.PriorityLow, v.Priority)
}

func TestScoreInferenceFailureMapsToNoAnomaly(t *testing.T) {
	g := graph.New(net.HardwareAddr{0x02, 0, 0, 0, 0, 1})
	node := &graph.Node{MAC: "aa:bb:cc:dd:ee:ff", Kind: graph.KindPhysical}
	e := NewEngine(DefaultConfig(), passthroughScaler{}, passthroughScaler{}, fakeModel{maeErr: errBoom{}}, g)

	feat := flowtracker.NewFlowFeatures(1234, 80, types.ProtocolTCP)
	v, ok, err := e.Score(feat, node, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, v.Anomalous)
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
