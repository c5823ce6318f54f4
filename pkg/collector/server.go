package collector

import (
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/edoardooldani/honeysensor/pkg/logging"
	"github.com/edoardooldani/honeysensor/pkg/transport"
	"github.com/edoardooldani/honeysensor/pkg/tsdb"
)

// Server accepts mTLS WebSocket connections from sensors and runs one
// Ingest per connection.
type Server struct {
	addr      string
	tlsConfig *tls.Config
	writer    tsdb.Writer

	maxMissedPings int

	upgrader websocket.Upgrader
	srv      *http.Server
}

// NewServer builds a Server bound to addr, requiring client certificates
// per tlsConfig.
func NewServer(addr string, tlsConfig *tls.Config, writer tsdb.Writer, maxMissedPings int) *Server {
	if maxMissedPings <= 0 {
		maxMissedPings = DefaultMaxMissedPings
	}
	return &Server{
		addr:           addr,
		tlsConfig:      tlsConfig,
		writer:         writer,
		maxMissedPings: maxMissedPings,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.WithContext(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.With("error", err).Error("websocket upgrade failed")
		return
	}
	defer conn.Close()

	tlsConn, ok := conn.UnderlyingConn().(*tls.Conn)
	if !ok {
		logger.Error("connection did not negotiate TLS")
		return
	}

	sessionID, err := transport.DeriveSessionID(tlsConn)
	if err != nil {
		logger.With("error", err).Error("failed to derive session id")
		return
	}
	logger = logger.With("session_id", sessionID)

	keepalive := NewKeepalive(conn, s.maxMissedPings)
	stopCh := make(chan struct{})
	defer close(stopCh)
	go keepalive.Run(stopCh)

	ing := New(sessionID, s.writer)
	if err := ing.Serve(conn); err != nil {
		logger.With("error", err).Warn("ingest session closed")
	}
}

// Serve starts the mTLS listener and blocks until it returns an error.
func (s *Server) Serve() error {
	s.srv = &http.Server{
		Addr:      s.addr,
		Handler:   s,
		TLSConfig: s.tlsConfig,
	}
	err := s.srv.ListenAndServeTLS("", "")
	if err != nil {
		return fmt.Errorf("collector: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown() error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Close()
}
