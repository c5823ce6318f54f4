package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edoardooldani/honeysensor/pkg/types"
)

func TestEncodeDecodeAlertRoundTrip(t *testing.T) {
	p := Packet{
		Header: Header{
			ID:         7,
			TimestampS: time.Now().Unix(),
			DataType:   types.DataTypeAlert,
			Priority:   types.PriorityHigh,
			MAC:        [6]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
		},
		Payload: Alert{
			MAC:      [6]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
			IP:       net.ParseIP("10.0.0.5").To4(),
			Features: []float64{1.5, -2.25, 0, 3.14159},
		},
	}

	data, err := Encode(p)
	require.NoError(t, err)
	require.NoError(t, VerifyChecksum(data))

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, p.Header.ID, decoded.Header.ID)
	require.Equal(t, types.DataTypeAlert, decoded.Header.DataType)

	alert := decoded.Payload.(Alert)
	require.Equal(t, p.Payload.(Alert).Features, alert.Features)
	require.True(t, alert.IP.Equal(net.ParseIP("10.0.0.5")))
}

func TestVerifyChecksumDetectsTamper(t *testing.T) {
	p := Packet{
		Header:  Header{ID: 1, DataType: types.DataTypeTCPAlert, Priority: types.PriorityLow},
		Payload: TcpAlert{DstPort: 80, AttackType: types.AttackTypeTCPSyn},
	}
	data, err := Encode(p)
	require.NoError(t, err)

	data[len(data)-1] ^= 0xFF // mutate payload tail, checksum unchanged
	require.Error(t, VerifyChecksum(data))
}

func TestDecodeRejectsUnknownDataType(t *testing.T) {
	p := Packet{
		Header:  Header{ID: 1, DataType: types.DataTypeAlert, Priority: types.PriorityLow},
		Payload: Alert{},
	}
	data, err := Encode(p)
	require.NoError(t, err)
	data[4+8] = 99 // overwrite data_type byte

	_, err = Decode(data)
	require.Error(t, err)
}

func TestSessionSequenceIsMonotonic(t *testing.T) {
	s := NewSession(42)
	require.EqualValues(t, 43, s.NextID())
	require.EqualValues(t, 44, s.NextID())
	require.EqualValues(t, 45, s.Peek())
}

func TestRingBufferEvictsOldestOnOverflow(t *testing.T) {
	r := newRingBuffer(2)
	r.push(Packet{Header: Header{ID: 1}})
	r.push(Packet{Header: Header{ID: 2}})
	r.push(Packet{Header: Header{ID: 3}})

	out := r.drain()
	require.Len(t, out, 2)
	require.EqualValues(t, 2, out[0].Header.ID)
	require.EqualValues(t, 3, out[1].Header.ID)
}

func TestArpDetectorCooldown(t *testing.T) {
	d := NewArpDetector()
	now := time.Now()

	require.True(t, d.ObserveRequest("aa:bb:cc:dd:ee:01", now))
	require.False(t, d.ObserveRequest("aa:bb:cc:dd:ee:01", now.Add(time.Second)))
	require.True(t, d.ObserveRequest("aa:bb:cc:dd:ee:01", now.Add(301*time.Second)))
}

func TestArpDetectorFloodThreshold(t *testing.T) {
	d := NewArpDetector()
	now := time.Now()

	var fired bool
	for i := 0; i < 60; i++ {
		if d.ObserveReply("aa:bb:cc:dd:ee:02", now) {
			fired = true
		}
	}
	require.True(t, fired)
}

func TestTCPSynDetectorSlidingWindow(t *testing.T) {
	d := NewTCPSynDetector()
	now := time.Now()

	var fired bool
	for i := 0; i < 20; i++ {
		if d.ObserveSyn("10.0.0.77", now.Add(time.Duration(i)*time.Millisecond)) {
			fired = true
		}
	}
	require.True(t, fired)
}

func TestTCPSynDetectorWindowExpires(t *testing.T) {
	d := NewTCPSynDetector()
	now := time.Now()

	for i := 0; i < 16; i++ {
		d.ObserveSyn("10.0.0.77", now)
	}
	// all 16 fall outside the window by the time of this observation
	fired := d.ObserveSyn("10.0.0.77", now.Add(11*time.Second))
	require.False(t, fired)
}
