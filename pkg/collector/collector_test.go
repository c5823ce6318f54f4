package collector

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edoardooldani/honeysensor/pkg/transport"
	"github.com/edoardooldani/honeysensor/pkg/types"
)

type fakeWriter struct {
	written []transport.Packet
	err     error
}

func (w *fakeWriter) WriteAlert(p transport.Packet) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, p)
	return nil
}
func (w *fakeWriter) Close() error { return nil }

func encodedAt(t *testing.T, id uint32, ts time.Time) []byte {
	t.Helper()
	p := transport.Packet{
		Header: transport.Header{
			ID:         id,
			TimestampS: ts.Unix(),
			DataType:   types.DataTypeTCPAlert,
			Priority:   types.PriorityLow,
		},
		Payload: transport.TcpAlert{DstPort: 80, AttackType: types.AttackTypeTCPSyn},
	}
	data, err := transport.Encode(p)
	require.NoError(t, err)
	return data
}

func TestHandleMessageAcceptsInOrderSequence(t *testing.T) {
	w := &fakeWriter{}
	ing := New(100, w)

	require.NoError(t, ing.HandleMessage(encodedAt(t, 101, time.Now())))
	require.NoError(t, ing.HandleMessage(encodedAt(t, 102, time.Now())))
	require.Len(t, w.written, 2)
}

func TestHandleMessageRejectsSequenceGap(t *testing.T) {
	w := &fakeWriter{}
	ing := New(100, w)

	require.NoError(t, ing.HandleMessage(encodedAt(t, 101, time.Now())))
	require.NoError(t, ing.HandleMessage(encodedAt(t, 102, time.Now())))
	err := ing.HandleMessage(encodedAt(t, 104, time.Now()))
	require.Error(t, err)
}

func TestHandleMessageRejectsStaleTimestamp(t *testing.T) {
	w := &fakeWriter{}
	ing := New(5, w)

	err := ing.HandleMessage(encodedAt(t, 6, time.Now().Add(-200*time.Second)))
	require.Error(t, err)
}

func TestHandleMessageRejectsTamperedChecksum(t *testing.T) {
	w := &fakeWriter{}
	ing := New(5, w)

	data := encodedAt(t, 6, time.Now())
	data[len(data)-1] ^= 0xFF
	require.Error(t, ing.HandleMessage(data))
}

func TestHandleMessageRejectsWriterFailure(t *testing.T) {
	w := &fakeWriter{err: fmt.Errorf("tsdb down")}
	ing := New(5, w)
	require.Error(t, ing.HandleMessage(encodedAt(t, 6, time.Now())))
}
