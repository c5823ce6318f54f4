package types

import jsoniter "github.com/json-iterator/go"

// Direction indicates which side of a Flow a packet belongs to, relative to
// the flow's first-seen initiator.
type Direction int

// Enumeration of directions a packet can be attributed to within a flow.
const (
	DirectionUnknown Direction = iota
	// Forward means the packet's source IP equals the flow key's SrcIP,
	// i.e. it was sent by the flow's initiator.
	Forward
	// Backward means the packet's source IP equals the flow key's DstIP.
	Backward
)

// String implements human-readable printing of the direction.
func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	}
	return "unknown"
}

// MarshalJSON implements the jsoniter.Marshaler interface.
func (d Direction) MarshalJSON() ([]byte, error) {
	return jsoniter.Marshal(d.String())
}

// UnmarshalJSON implements the jsoniter.Unmarshaler interface.
func (d *Direction) UnmarshalJSON(b []byte) error {
	var str string
	if err := jsoniter.Unmarshal(b, &str); err != nil {
		return err
	}
	switch str {
	case "forward":
		*d = Forward
	case "backward":
		*d = Backward
	default:
		*d = DirectionUnknown
	}
	return nil
}
