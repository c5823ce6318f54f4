// Package transport implements the Alert Transport: a
// session-bound, checksummed, strictly-ordered WebSocket framing layer
// that ships alerts to the collector over mTLS.
package transport

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"net"

	"github.com/edoardooldani/honeysensor/pkg/types"
)

// Header is the wire header: {id, timestamp_s, data_type, priority, mac,
// checksum}.
type Header struct {
	ID         uint32
	TimestampS int64
	DataType   types.DataType
	Priority   types.Priority
	MAC        [6]byte
	Checksum   [32]byte
}

// Packet is the top-level wire message: a header plus one closed-union
// payload variant.
type Packet struct {
	Header  Header
	Payload Payload
}

// Payload is implemented by the three alert variants. Each knows its own
// DataType tag and how to encode itself.
type Payload interface {
	DataType() types.DataType
	encode(w *bytes.Buffer)
}

// Alert carries a flow's raw feature vector alongside the originating
// node identity.
type Alert struct {
	MAC      [6]byte
	IP       net.IP
	Features []float64
}

func (Alert) DataType() types.DataType { return types.DataTypeAlert }

func (a Alert) encode(w *bytes.Buffer) {
	w.Write(a.MAC[:])
	writeIP(w, a.IP)
	writeUint32(w, uint32(len(a.Features)))
	for _, f := range a.Features {
		writeFloat64(w, f)
	}
}

// ArpAlert reports an ARP-scan or ARP-flood detection; MACs is the list of
// hardware addresses observed participating in the burst.
type ArpAlert struct {
	MACs       [][6]byte
	IP         net.IP
	AttackType types.AttackType
}

func (ArpAlert) DataType() types.DataType { return types.DataTypeArpAlert }

func (a ArpAlert) encode(w *bytes.Buffer) {
	writeUint32(w, uint32(len(a.MACs)))
	for _, m := range a.MACs {
		w.Write(m[:])
	}
	writeIP(w, a.IP)
	w.WriteByte(byte(a.AttackType))
}

// TcpAlert reports a TCP-SYN flood / scan detection against dst_port.
type TcpAlert struct {
	MAC        [6]byte
	IP         net.IP
	DstPort    uint16
	AttackType types.AttackType
}

func (TcpAlert) DataType() types.DataType { return types.DataTypeTCPAlert }

func (a TcpAlert) encode(w *bytes.Buffer) {
	w.Write(a.MAC[:])
	writeIP(w, a.IP)
	writeUint16(w, a.DstPort)
	w.WriteByte(byte(a.AttackType))
}

func writeUint16(w *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.Write(b[:])
}

func writeUint32(w *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func writeUint64(w *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.Write(b[:])
}

func writeFloat64(w *bytes.Buffer, f float64) {
	writeUint64(w, math.Float64bits(f))
}

// writeIP encodes a 4-byte IPv4 address, zero-padding if the address is
// unset. The collector side only ever expects IPv4 here.
func writeIP(w *bytes.Buffer, ip net.IP) {
	var b [4]byte
	if v4 := ip.To4(); v4 != nil {
		copy(b[:], v4)
	}
	w.Write(b[:])
}

// encodeHeader serializes the fixed-size header fields in bincode-style
// little-endian order, with checksum bytes as given (zeroed by the caller
// when computing the checksum itself).
func encodeHeader(w *bytes.Buffer, h Header) {
	writeUint32(w, h.ID)
	writeUint64(w, uint64(h.TimestampS))
	w.WriteByte(byte(h.DataType))
	w.WriteByte(byte(h.Priority))
	w.Write(h.MAC[:])
	w.Write(h.Checksum[:])
}

// Encode serializes p with its checksum computed and embedded: SHA-256
// over the full serialized packet with the checksum field zeroed.
func Encode(p Packet) ([]byte, error) {
	if !p.Header.DataType.Valid() {
		return nil, fmt.Errorf("transport: encode: invalid data_type %d", p.Header.DataType)
	}
	if p.Payload == nil || p.Payload.DataType() != p.Header.DataType {
		return nil, fmt.Errorf("transport: encode: payload does not match header data_type")
	}

	zeroed := p.Header
	zeroed.Checksum = [32]byte{}

	var body bytes.Buffer
	encodeHeader(&body, zeroed)
	p.Payload.encode(&body)

	sum := sha256.Sum256(body.Bytes())

	var out bytes.Buffer
	final := p.Header
	final.Checksum = sum
	encodeHeader(&out, final)
	p.Payload.encode(&out)

	return out.Bytes(), nil
}

// VerifyChecksum recomputes the checksum over data with the checksum
// field zeroed and compares it against the embedded one.
func VerifyChecksum(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("transport: packet too short for header: %d bytes", len(data))
	}

	embedded := data[checksumOffset : checksumOffset+32]

	zeroed := make([]byte, len(data))
	copy(zeroed, data)
	for i := range zeroed[checksumOffset : checksumOffset+32] {
		zeroed[checksumOffset+i] = 0
	}

	sum := sha256.Sum256(zeroed)
	if !bytes.Equal(sum[:], embedded) {
		return fmt.Errorf("transport: checksum mismatch")
	}
	return nil
}

// Fixed header layout offsets: id(4) + timestamp(8) + data_type(1) +
// priority(1) + mac(6) = 20 bytes before the 32-byte checksum.
const (
	checksumOffset = 4 + 8 + 1 + 1 + 6
	headerSize     = checksumOffset + 32
)
