package types

import "fmt"

// DataType tags the kind of payload carried by a wire Packet. Closed
// enumerations like this one are modeled as tagged unions; unmarshaling an
// unknown tag is a hard error.
type DataType uint8

// Enumeration of wire data types.
const (
	DataTypeAlert DataType = iota + 1
	DataTypeArpAlert
	DataTypeTCPAlert
)

// Valid reports whether d is a known DataType.
func (d DataType) Valid() bool {
	switch d {
	case DataTypeAlert, DataTypeArpAlert, DataTypeTCPAlert:
		return true
	default:
		return false
	}
}

func (d DataType) String() string {
	switch d {
	case DataTypeAlert:
		return "alert"
	case DataTypeArpAlert:
		return "arp_alert"
	case DataTypeTCPAlert:
		return "tcp_alert"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(d))
	}
}

// AttackType is the closed set of attack classifications a sensor may
// attach to an ArpAlert or TcpAlert payload.
type AttackType uint8

// Enumeration of attack types.
const (
	AttackTypeArpScanning AttackType = iota + 1
	AttackTypeArpFlooding
	AttackTypeTCPSyn
)

// Valid reports whether a is a known AttackType.
func (a AttackType) Valid() bool {
	switch a {
	case AttackTypeArpScanning, AttackTypeArpFlooding, AttackTypeTCPSyn:
		return true
	default:
		return false
	}
}

func (a AttackType) String() string {
	switch a {
	case AttackTypeArpScanning:
		return "arp_scanning"
	case AttackTypeArpFlooding:
		return "arp_flooding"
	case AttackTypeTCPSyn:
		return "tcp_syn"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}
