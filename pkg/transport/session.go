package transport

import (
	"crypto/sha256"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"sync"
)

// sessionIDLabel is the exported-keying-material label both peers derive
// the shared session id from.
const sessionIDLabel = "session-id-export"

// sessionIDMaterialLen is the number of EKM bytes exported before hashing.
const sessionIDMaterialLen = 32

// DeriveSessionID exports keying material from an established TLS
// connection and folds it into the 32-bit session id both peers agree on
//.
func DeriveSessionID(conn *tls.Conn) (uint32, error) {
	state := conn.ConnectionState()
	material, err := state.ExportKeyingMaterial(sessionIDLabel, nil, sessionIDMaterialLen)
	if err != nil {
		return 0, fmt.Errorf("transport: export keying material: %w", err)
	}
	sum := sha256.Sum256(material)
	return binary.BigEndian.Uint32(sum[:4]), nil
}

// Session tracks the per-connection monotonic sequence counter. The
// sender starts from the session id and increments by one per outbound
// message; the receiver tracks the same counter to detect
// gaps.
type Session struct {
	mu   sync.Mutex
	id   uint32
	next uint32
}

// NewSession seeds a Session from a freshly derived session id. The first
// outbound/expected packet id is id+1, not id itself — the session id
// identifies the session, it is never reused as a packet id.
func NewSession(id uint32) *Session {
	return &Session{id: id, next: id + 1}
}

// ID returns the session's 32-bit identifier.
func (s *Session) ID() uint32 {
	return s.id
}

// NextID returns the next outbound/expected packet id and advances the
// counter, guarded so concurrent senders can't race the increment.
func (s *Session) NextID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	return id
}

// Peek returns the next expected id without advancing, used by the
// receiver side to validate an incoming packet before accepting it.
func (s *Session) Peek() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Advance accepts the current Peek() value as received, moving the
// expected counter forward by one. Callers must have already validated
// the incoming id against Peek().
func (s *Session) Advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
}
