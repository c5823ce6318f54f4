package transport

import (
	"sync"
	"time"
)

// arpCooldown, arpFloodThreshold, and tcpSynWindow/tcpSynThreshold are the
// rate/dedup policy constants gating sensor-side detection before an
// alert is ever sent.
const (
	arpCooldown       = 300 * time.Second
	arpFloodThreshold = 50
	tcpSynWindow      = 10 * time.Second
	tcpSynThreshold   = 15
)

// ArpDetector suppresses duplicate ARP-scan/flood alerts from the same
// MAC within a cooldown window, and separately counts ARP replies per MAC
// to detect flooding.
type ArpDetector struct {
	mu          sync.Mutex
	lastAlertAt map[string]time.Time
	replyCounts map[string]int
}

// NewArpDetector creates an empty ArpDetector.
func NewArpDetector() *ArpDetector {
	return &ArpDetector{
		lastAlertAt: make(map[string]time.Time),
		replyCounts: make(map[string]int),
	}
}

// ObserveRequest records an ARP request/scan event from mac and reports
// whether a fresh scan alert should be emitted (at most once per MAC per
// 300s cooldown).
func (d *ArpDetector) ObserveRequest(mac string, now time.Time) bool {
	return d.shouldAlert(mac, now)
}

// ObserveReply records one ARP reply from mac and reports whether its
// count exceeds the flood threshold and a flood alert is due, subject to
// the same per-MAC cooldown.
func (d *ArpDetector) ObserveReply(mac string, now time.Time) bool {
	d.mu.Lock()
	d.replyCounts[mac]++
	count := d.replyCounts[mac]
	d.mu.Unlock()

	if count <= arpFloodThreshold {
		return false
	}
	return d.shouldAlert(mac, now)
}

func (d *ArpDetector) shouldAlert(mac string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.lastAlertAt[mac]; ok && now.Sub(last) < arpCooldown {
		return false
	}
	d.lastAlertAt[mac] = now
	return true
}

// TCPSynDetector counts SYN packets per source IP within a sliding
// window and fires when the count exceeds the threshold.
type TCPSynDetector struct {
	mu        sync.Mutex
	timestamps map[string][]time.Time
}

// NewTCPSynDetector creates an empty TCPSynDetector.
func NewTCPSynDetector() *TCPSynDetector {
	return &TCPSynDetector{timestamps: make(map[string][]time.Time)}
}

// ObserveSyn records a SYN from srcIP at now and reports whether the
// count within the trailing window now exceeds the threshold.
func (d *TCPSynDetector) ObserveSyn(srcIP string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := now.Add(-tcpSynWindow)
	ts := d.timestamps[srcIP]
	kept := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	d.timestamps[srcIP] = kept

	return len(kept) > tcpSynThreshold
}
