package collector

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// PingInterval and DefaultMaxMissedPings are the keepalive defaults: the
// server pings every 15s and closes the connection once the count of
// unanswered pings reaches the maximum.
const (
	PingInterval          = 15 * time.Second
	DefaultMaxMissedPings = 2
)

// Keepalive drives the server side of the WebSocket ping/pong exchange:
// it sends a Ping every PingInterval and tracks consecutive misses via
// the connection's Pong handler.
type Keepalive struct {
	conn           *websocket.Conn
	maxMissedPings int
	missed         atomic.Int32
}

// NewKeepalive wires conn's Pong handler to reset the miss counter and
// returns a Keepalive ready to Run.
func NewKeepalive(conn *websocket.Conn, maxMissedPings int) *Keepalive {
	if maxMissedPings <= 0 {
		maxMissedPings = DefaultMaxMissedPings
	}
	k := &Keepalive{conn: conn, maxMissedPings: maxMissedPings}
	conn.SetPongHandler(func(string) error {
		k.missed.Store(0)
		return nil
	})
	return k
}

// Run sends pings on PingInterval until stopCh closes or the missed-pong
// count reaches maxMissedPings, at which point it closes the connection
// and returns.
func (k *Keepalive) Run(stopCh <-chan struct{}) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if k.missed.Load() >= int32(k.maxMissedPings) {
				_ = k.conn.Close()
				return
			}
			if err := k.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				_ = k.conn.Close()
				return
			}
			k.missed.Add(1)
		}
	}
}
