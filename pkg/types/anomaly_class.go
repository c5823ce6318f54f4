package types

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// AnomalyClass is the closed set of labels the classifier model can emit.
// Its numeric values are the classifier's softmax output indices and are
// part of the wire contract with the trained model: they must not be
// reordered.
type AnomalyClass int

// Enumeration of classifier outputs.
const (
	Benign AnomalyClass = iota
	DDoS
	DoSGoldenEye
	DoSHulk
	DoSSlowhttptest
	DoSSlowloris
	FTPPatator
	PortScan
)

var anomalyClassNames = [...]string{
	Benign:          "Benign",
	DDoS:            "DDoS",
	DoSGoldenEye:    "DoSGoldenEye",
	DoSHulk:         "DoSHulk",
	DoSSlowhttptest: "DoSSlowhttptest",
	DoSSlowloris:    "DoSSlowloris",
	FTPPatator:      "FTPPatator",
	PortScan:        "PortScan",
}

// String renders the classifier label.
func (c AnomalyClass) String() string {
	if int(c) < 0 || int(c) >= len(anomalyClassNames) {
		return "Unknown"
	}
	return anomalyClassNames[c]
}

// MarshalJSON implements the jsoniter.Marshaler interface.
func (c AnomalyClass) MarshalJSON() ([]byte, error) {
	return jsoniter.Marshal(c.String())
}

// AnomalyClassFromIndex maps a classifier argmax index to the closed
// AnomalyClass set. An out-of-range index is a hard error: unknown tags in
// a closed enumeration must fail loudly rather than silently default to
// Benign.
func AnomalyClassFromIndex(i int) (AnomalyClass, error) {
	if i < 0 || i >= len(anomalyClassNames) {
		return Benign, fmt.Errorf("classifier produced out-of-range class index %d", i)
	}
	return AnomalyClass(i), nil
}
