package transport

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"

	"github.com/edoardooldani/honeysensor/pkg/types"
)

// reader walks a byte slice left to right, erroring once it runs past the
// end instead of panicking on a short/malformed message.
type reader struct {
	data []byte
	pos  int
	err  error
}

// remaining reports how many unread bytes are left, used to bound a
// length-prefixed allocation against the actual message size before
// trusting an attacker-controlled count.
func (r *reader) remaining() int {
	return len(r.data) - r.pos
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.data) {
		r.err = fmt.Errorf("transport: decode: unexpected end of message at offset %d, need %d bytes", r.pos, n)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) byte() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) float64() float64 {
	return math.Float64frombits(r.uint64())
}

func (r *reader) mac6() [6]byte {
	var out [6]byte
	b := r.take(6)
	if b != nil {
		copy(out[:], b)
	}
	return out
}

func (r *reader) ipv4() net.IP {
	b := r.take(4)
	if b == nil {
		return nil
	}
	ip := make(net.IP, 4)
	copy(ip, b)
	return ip
}

// Decode parses a wire message into a Packet, validating the closed
// DataType/Priority/AttackType enumerations along the way.
func Decode(data []byte) (Packet, error) {
	r := &reader{data: data}

	var h Header
	h.ID = r.uint32()
	h.TimestampS = int64(r.uint64())
	h.DataType = types.DataType(r.byte())
	h.Priority = types.Priority(r.byte())
	h.MAC = r.mac6()
	copy(h.Checksum[:], r.take(32))

	if r.err != nil {
		return Packet{}, r.err
	}
	if !h.DataType.Valid() {
		return Packet{}, fmt.Errorf("transport: decode: unknown data_type %d", h.DataType)
	}
	if !h.Priority.Valid() {
		return Packet{}, fmt.Errorf("transport: decode: unknown priority %d", h.Priority)
	}

	var payload Payload
	switch h.DataType {
	case types.DataTypeAlert:
		a := Alert{MAC: r.mac6(), IP: r.ipv4()}
		n := r.uint32()
		if r.err == nil && int(n) > r.remaining()/8 {
			return Packet{}, fmt.Errorf("transport: decode: feature count %d exceeds remaining message size", n)
		}
		a.Features = make([]float64, n)
		for i := range a.Features {
			a.Features[i] = r.float64()
		}
		payload = a
	case types.DataTypeArpAlert:
		n := r.uint32()
		if r.err == nil && int(n) > r.remaining()/6 {
			return Packet{}, fmt.Errorf("transport: decode: mac count %d exceeds remaining message size", n)
		}
		macs := make([][6]byte, n)
		for i := range macs {
			macs[i] = r.mac6()
		}
		ip := r.ipv4()
		attack := types.AttackType(r.byte())
		if r.err == nil && !attack.Valid() {
			return Packet{}, fmt.Errorf("transport: decode: unknown attack_type %d", attack)
		}
		payload = ArpAlert{MACs: macs, IP: ip, AttackType: attack}
	case types.DataTypeTCPAlert:
		mac := r.mac6()
		ip := r.ipv4()
		port := r.uint16()
		attack := types.AttackType(r.byte())
		if r.err == nil && !attack.Valid() {
			return Packet{}, fmt.Errorf("transport: decode: unknown attack_type %d", attack)
		}
		payload = TcpAlert{MAC: mac, IP: ip, DstPort: port, AttackType: attack}
	}

	if r.err != nil {
		return Packet{}, r.err
	}

	return Packet{Header: h, Payload: payload}, nil
}
