// Package collector implements Collector Ingest: per-message
// validation of checksum, sequence, and timestamp skew, dispatching
// accepted alerts to the TSDB writer.
package collector

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/edoardooldani/honeysensor/pkg/transport"
	"github.com/edoardooldani/honeysensor/pkg/tsdb"
)

// MaxTimestampSkew is the accepted window between a packet's embedded
// timestamp and wall-clock time at the collector.
const MaxTimestampSkew = 180 * time.Second

// Ingest validates and persists one WebSocket connection's worth of
// alerts. A fresh Ingest is created per accepted connection, seeded with
// the session id derived from that connection's TLS handshake.
type Ingest struct {
	session *transport.Session
	writer  tsdb.Writer
	now     func() time.Time
}

// New builds an Ingest bound to a freshly derived session id.
func New(sessionID uint32, writer tsdb.Writer) *Ingest {
	return &Ingest{session: transport.NewSession(sessionID), writer: writer, now: time.Now}
}

// HandleMessage validates and, on success, persists one binary WebSocket
// message. It returns an error for any rejection — callers are expected
// to close the connection when this returns non-nil.
func (i *Ingest) HandleMessage(data []byte) error {
	if err := transport.VerifyChecksum(data); err != nil {
		return fmt.Errorf("collector: %w", err)
	}

	p, err := transport.Decode(data)
	if err != nil {
		return fmt.Errorf("collector: %w", err)
	}

	expected := i.session.Peek()
	if p.Header.ID != expected {
		return fmt.Errorf("collector: sequence mismatch: expected %d, got %d", expected, p.Header.ID)
	}
	i.session.Advance()

	skew := i.now().Unix() - p.Header.TimestampS
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > MaxTimestampSkew {
		return fmt.Errorf("collector: timestamp skew %ds exceeds %s", skew, MaxTimestampSkew)
	}

	if err := i.writer.WriteAlert(p); err != nil {
		return fmt.Errorf("collector: persist alert: %w", err)
	}
	return nil
}

// Serve reads binary messages off conn until HandleMessage rejects one or
// the connection errors, closing the socket with an error-coded close
// frame on rejection.
func (i *Ingest) Serve(conn *websocket.Conn) error {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("collector: read: %w", err)
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		if err := i.HandleMessage(data); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseUnsupportedData, err.Error()),
				time.Now().Add(time.Second))
			return err
		}
	}
}
