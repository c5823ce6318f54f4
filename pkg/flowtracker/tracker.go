package flowtracker

import (
	"net/netip"
	"time"

	"github.com/alphadose/haxmap"

	"github.com/edoardooldani/honeysensor/pkg/types"
)

// mDNSPort is the well-known mDNS port; mDNS chatter is noisy link-local
// housekeeping traffic and is explicitly excluded from flow tracking.
const mDNSPort = 5353

// mDNSMulticastAddr is the IPv4 mDNS multicast destination.
var mDNSMulticastAddr = netip.MustParseAddr("224.0.0.251")

// defaultMaxAge is the idle timeout after which EvictIdle reclaims a flow
// that saw no RST/FIN teardown.
const defaultMaxAge = 300 * time.Second

// entry pairs a flow's accumulator with the directional key it was first
// observed under, so a later lookup under the reversed key can still find
// it and determine direction.
type entry struct {
	key      types.FlowKey
	features *FlowFeatures
	finFwd   bool
	finBwd   bool
}

// Tracker maintains one FlowFeatures accumulator per five-tuple-minus-ports
// flow. It is safe for
// concurrent use by multiple frame-processing goroutines.
type Tracker struct {
	flows *haxmap.Map[string, *entry]
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{flows: haxmap.New[string, *entry]()}
}

// Frame is the subset of a parsed packet the tracker needs. Callers
// (pkg/frame) build this from an Ethernet/IPv4/TCP|UDP decode.
type Frame struct {
	SrcIP      netip.Addr
	DstIP      netip.Addr
	SrcPort    uint16
	DstPort    uint16
	Protocol   types.Protocol
	Length     uint16
	HeaderLen  uint32
	IsTCP      bool
	TCPFlags   byte
	HasPayload bool
	Timestamp  time.Time
}

// isMDNS reports whether f is mDNS chatter that the tracker must ignore
// outright.
func isMDNS(f Frame) bool {
	if f.SrcPort == mDNSPort && f.DstPort == mDNSPort {
		return true
	}
	return f.DstIP == mDNSMulticastAddr
}

// Update routes a frame into its flow's feature accumulator, creating the
// accumulator on first sight, and reports whether the frame was tracked.
// Frames for protocols other than TCP/UDP, and mDNS chatter, are dropped
// and reported untracked.
func (t *Tracker) Update(f Frame) (*FlowFeatures, bool) {
	if !f.Protocol.TrackedByFlowTracker() {
		return nil, false
	}
	if isMDNS(f) {
		return nil, false
	}

	fwdKey := types.NewFlowKey(f.SrcIP, f.DstIP, f.Protocol)
	revKey := fwdKey.Reversed()

	e, ok := t.flows.Get(fwdKey.String())
	dir := types.Forward
	if !ok {
		if e2, ok2 := t.flows.Get(revKey.String()); ok2 {
			e = e2
			dir = types.Backward
		}
	}

	if e == nil {
		feat := NewFlowFeatures(f.SrcPort, f.DstPort, f.Protocol)
		e = &entry{key: fwdKey, features: feat}
		t.flows.Set(fwdKey.String(), e)
		dir = types.Forward
		flowsStarted.Inc()
		activeFlows.Inc()
	}

	e.features.Update(f.Timestamp, dir, f.Length, f.IsTCP, f.TCPFlags, f.HeaderLen, f.HasPayload)

	if f.IsTCP && f.TCPFlags&tcpFlagRST != 0 {
		t.flows.Del(e.key.String())
		flowsEvicted.WithLabelValues("teardown").Inc()
		activeFlows.Dec()
		return e.features, true
	}

	if f.IsTCP && f.TCPFlags&tcpFlagFIN != 0 {
		if dir == types.Forward {
			e.finFwd = true
		} else {
			e.finBwd = true
		}
		if e.finFwd && e.finBwd {
			t.flows.Del(e.key.String())
			flowsEvicted.WithLabelValues("teardown").Inc()
			activeFlows.Dec()
		}
	}

	return e.features, true
}

const (
	tcpFlagFIN = 0x01
	tcpFlagRST = 0x04
)

// EvictIdle removes every flow whose last packet is older than maxAge and
// returns how many were evicted. A zero maxAge selects defaultMaxAge.
func (t *Tracker) EvictIdle(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}

	cutoff := time.Now().Add(-maxAge)
	var stale []string
	t.flows.ForEach(func(key string, e *entry) bool {
		if e.features.LastSeen().Before(cutoff) {
			stale = append(stale, key)
		}
		return true
	})

	for _, key := range stale {
		t.flows.Del(key)
	}
	if n := len(stale); n > 0 {
		flowsEvicted.WithLabelValues("idle").Add(float64(n))
		activeFlows.Sub(float64(n))
	}
	return len(stale)
}

// Len reports the number of flows currently tracked.
func (t *Tracker) Len() int {
	return int(t.flows.Len())
}
