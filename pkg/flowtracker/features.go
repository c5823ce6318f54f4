// Package flowtracker implements the Flow Tracker: a
// concurrent map of feature aggregators, keyed by host pair and protocol
// (no ports), that compute
// CICFlowMeter-style statistics incrementally from raw frames.
package flowtracker

import (
	"math"
	"time"

	"github.com/edoardooldani/honeysensor/pkg/types"
)

// FlowFeatures holds the CICFlowMeter-style feature set accumulated for one
// Flow. Exported fields are the public feature surface consumed
// by the Feature Scaler; fields below the "accumulator-only" marker are
// private bookkeeping used to compute the public ones incrementally and
// never leave this package.
type FlowFeatures struct {
	SrcPort     uint16
	DstPort     uint16
	FlowDuration float64 // milliseconds

	TotFwdPkts uint32
	TotBwdPkts uint32

	TotlenFwdPkts uint32
	TotlenBwdPkts uint32

	FwdPktLenMax  uint16
	FwdPktLenMin  uint16
	FwdPktLenMean float64
	FwdPktLenStd  float64

	BwdPktLenMax  uint16
	BwdPktLenMin  uint16
	BwdPktLenMean float64
	BwdPktLenStd  float64

	FlowBytsPerS float64
	FlowPktsPerS float64

	FlowIATMean float64
	FlowIATStd  float64
	FlowIATMax  float64
	FlowIATMin  float64

	FwdIATTot  float64
	FwdIATMean float64
	FwdIATStd  float64
	FwdIATMax  float64
	FwdIATMin  float64

	BwdIATTot  float64
	BwdIATMean float64
	BwdIATStd  float64
	BwdIATMax  float64
	BwdIATMin  float64

	FwdPSHFlags uint32
	BwdPSHFlags uint32
	FwdURGFlags uint32
	BwdURGFlags uint32

	FwdHeaderLen uint32
	BwdHeaderLen uint32

	FwdPktsPerS float64
	BwdPktsPerS float64

	PktLenMin  uint16
	PktLenMax  uint16
	PktLenMean float64
	PktLenStd  float64
	PktLenVar  float64

	FinFlagCnt uint32
	SynFlagCnt uint32
	RstFlagCnt uint32
	PshFlagCnt uint32
	AckFlagCnt uint32
	UrgFlagCnt uint32
	CWEFlagCnt uint32
	ECEFlagCnt uint32

	DownUpRatio float64

	PktSizeAvg    float64
	FwdSegSizeAvg float64
	BwdSegSizeAvg float64

	FwdBytsBAvg   float64
	FwdPktsBAvg   float64
	FwdBlkRateAvg float64
	BwdBytsBAvg   float64
	BwdPktsBAvg   float64
	BwdBlkRateAvg float64

	SubflowFwdPkts uint32
	SubflowFwdByts uint32
	SubflowBwdPkts uint32
	SubflowBwdByts uint32

	// InitFwdWinByts/InitBwdWinByts are pinned to training-set constants
	// rather than observed TCP window values: the original
	// model was trained against a dataset that happened to encode these
	// this way, and inference-input parity takes priority over accuracy
	// here.
	InitFwdWinByts int16
	InitBwdWinByts uint16

	FwdActDataPkts uint32

	// FwdSegSizeMin is carried in the tensor for training-set parity but
	// is never assigned; it was always zero in the original dataset too.
	FwdSegSizeMin uint16

	ActiveMean float64
	ActiveStd  float64
	ActiveMax  float64
	ActiveMin  float64

	IdleMean float64
	IdleStd  float64
	IdleMax  float64
	IdleMin  float64

	Protocol types.Protocol

	// --- accumulator-only fields (never exposed to the scaler) ---

	fwdPktLenSqSum float64
	bwdPktLenSqSum float64
	pktLenSqSum    float64

	startTime    time.Time
	endTime      time.Time
	lastFwdTime  time.Time
	lastBwdTime  time.Time

	fwdBulkStart    time.Time
	fwdBulkBytes    uint64
	fwdBulkPkts     uint32
	fwdBulkDuration float64

	bwdBulkStart    time.Time
	bwdBulkBytes    uint64
	bwdBulkPkts     uint32
	bwdBulkDuration float64

	packetTimes []time.Time
}

const (
	idleThresholdMS   = 1000.0
	subflowTimeoutMS  = 1000.0
	bulkGapMS         = 1.0
	minDurationFloor  = 1.0 // ms, clamps flow_duration before computing rates
)

// NewFlowFeatures creates an empty feature accumulator for a flow first
// observed with the given source/destination ports and protocol.
func NewFlowFeatures(srcPort, dstPort uint16, proto types.Protocol) *FlowFeatures {
	return &FlowFeatures{SrcPort: srcPort, DstPort: dstPort, Protocol: proto}
}

// Update folds one packet's worth of information into the flow's running
// statistics. pktLen is the IPv4 total_length field; tcpFlags is the raw
// TCP flag byte and is only consulted when Protocol is TCP.
func (f *FlowFeatures) Update(now time.Time, dir types.Direction, pktLen uint16, isTCP bool, tcpFlags byte, headerLen uint32, hasPayload bool) {
	f.updateTimestampsAndDuration(now)
	f.updateFlowRates()

	if f.PktLenMin == 0 || pktLen < f.PktLenMin {
		f.PktLenMin = pktLen
	}
	if pktLen > f.PktLenMax {
		f.PktLenMax = pktLen
	}
	f.pktLenSqSum += float64(pktLen) * float64(pktLen)

	f.updateFlowIAT(now, dir)

	switch dir {
	case types.Forward:
		f.updateForwardMetrics(pktLen, now)
	case types.Backward:
		f.updateBackwardMetrics(pktLen, now)
	}

	f.updatePacketLengthStats()

	if isTCP {
		f.updateTCPFlags(dir, tcpFlags, headerLen, hasPayload)
	}

	if f.TotFwdPkts > 0 {
		f.DownUpRatio = float64(f.TotBwdPkts) / float64(f.TotFwdPkts)
	} else {
		f.DownUpRatio = 0
	}

	f.updateBulkStats()
	f.updateActiveIdle(idleThresholdMS)
}

func (f *FlowFeatures) updateTimestampsAndDuration(now time.Time) {
	f.packetTimes = append(f.packetTimes, now)

	if f.startTime.IsZero() {
		f.startTime = now
	}
	f.endTime = now

	f.FlowDuration = float64(f.endTime.Sub(f.startTime).Microseconds()) / 1000.0
}

func (f *FlowFeatures) updateFlowRates() {
	durationSecs := math.Max(f.FlowDuration, minDurationFloor) / 1000.0
	if durationSecs > 0.0001 {
		totalBytes := float64(f.TotlenFwdPkts + f.TotlenBwdPkts)
		totalPkts := float64(f.TotFwdPkts + f.TotBwdPkts)
		f.FlowBytsPerS = totalBytes / durationSecs
		f.FlowPktsPerS = totalPkts / durationSecs
		f.FwdPktsPerS = float64(f.TotFwdPkts) / durationSecs
		f.BwdPktsPerS = float64(f.TotBwdPkts) / durationSecs
	} else {
		f.FlowBytsPerS, f.FlowPktsPerS, f.FwdPktsPerS, f.BwdPktsPerS = 0, 0, 0, 0
	}
}

func (f *FlowFeatures) updatePacketLengthStats() {
	totalPkts := float64(f.TotFwdPkts + f.TotBwdPkts)
	if totalPkts > 0 {
		totalLen := float64(f.TotlenFwdPkts + f.TotlenBwdPkts)
		f.PktLenMean = totalLen / totalPkts
		f.PktLenVar = (f.pktLenSqSum / totalPkts) - f.PktLenMean*f.PktLenMean
		if f.PktLenVar < 0 {
			f.PktLenVar = 0
		}
		f.PktLenStd = math.Sqrt(f.PktLenVar)
		f.PktSizeAvg = totalLen / totalPkts
	}
	if f.TotFwdPkts > 0 {
		f.FwdSegSizeAvg = float64(f.TotlenFwdPkts) / float64(f.TotFwdPkts)
	}
	if f.TotBwdPkts > 0 {
		f.BwdSegSizeAvg = float64(f.TotlenBwdPkts) / float64(f.TotBwdPkts)
	}
}

func (f *FlowFeatures) updateTCPFlags(dir types.Direction, flags byte, headerLen uint32, hasPayload bool) {
	if flags&0x01 != 0 {
		f.FinFlagCnt++
	}
	if flags&0x02 != 0 {
		f.SynFlagCnt++
	}
	if flags&0x04 != 0 {
		f.RstFlagCnt++
	}
	if flags&0x08 != 0 {
		f.PshFlagCnt++
	}
	if flags&0x10 != 0 {
		f.AckFlagCnt++
	}
	if flags&0x20 != 0 {
		f.UrgFlagCnt++
	}
	if flags&0x40 != 0 {
		f.ECEFlagCnt++
	}
	if flags&0x80 != 0 {
		f.CWEFlagCnt++
	}

	switch dir {
	case types.Forward:
		if flags&0x08 != 0 {
			f.FwdPSHFlags++
		}
		if flags&0x20 != 0 {
			f.FwdURGFlags++
		}
		f.FwdHeaderLen = headerLen
		f.InitFwdWinByts = -1
		if hasPayload {
			f.FwdActDataPkts++
		}
	case types.Backward:
		if flags&0x08 != 0 {
			f.BwdPSHFlags++
		}
		if flags&0x20 != 0 {
			f.BwdURGFlags++
		}
		f.BwdHeaderLen = headerLen
		f.InitBwdWinByts = 64240
	}
}

func (f *FlowFeatures) updateFlowIAT(now time.Time, dir types.Direction) {
	var last time.Time
	switch dir {
	case types.Forward:
		last = f.lastFwdTime
	case types.Backward:
		last = f.lastBwdTime
	}
	if last.IsZero() {
		return
	}

	iat := float64(now.Sub(last).Microseconds()) / 1000.0
	totalPkts := float64(f.TotFwdPkts + f.TotBwdPkts)

	if totalPkts > 1 {
		prevMean := f.FlowIATMean
		f.FlowIATMean = (f.FlowIATMean*(totalPkts-1) + iat) / totalPkts
		variance := (f.FlowIATStd*f.FlowIATStd*(totalPkts-1) + (iat-prevMean)*(iat-prevMean)) / totalPkts
		if variance < 0 {
			variance = 0
		}
		f.FlowIATStd = math.Sqrt(variance)
	} else {
		f.FlowIATMean = iat
		f.FlowIATStd = 0
	}

	if iat > f.FlowIATMax {
		f.FlowIATMax = iat
	}
	if f.FlowIATMin == 0 || iat < f.FlowIATMin {
		f.FlowIATMin = iat
	}
}

func (f *FlowFeatures) updateBulkStats() {
	if f.fwdBulkPkts > 0 && f.fwdBulkDuration > 0 {
		f.FwdBytsBAvg = float64(f.fwdBulkBytes) / float64(f.fwdBulkPkts)
		f.FwdPktsBAvg = float64(f.fwdBulkPkts) / f.fwdBulkDuration
		f.FwdBlkRateAvg = float64(f.fwdBulkBytes) / f.fwdBulkDuration
	}
	if f.bwdBulkPkts > 0 && f.bwdBulkDuration > 0 {
		f.BwdBytsBAvg = float64(f.bwdBulkBytes) / float64(f.bwdBulkPkts)
		f.BwdPktsBAvg = float64(f.bwdBulkPkts) / f.bwdBulkDuration
		f.BwdBlkRateAvg = float64(f.bwdBulkBytes) / f.bwdBulkDuration
	}
}

func calcStats(vals []float64) (mean, std, min, max float64) {
	if len(vals) == 0 {
		return 0, 0, 0, 0
	}
	n := float64(len(vals))
	var sum float64
	min, max = vals[0], vals[0]
	for _, v := range vals {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean = sum / n
	var sqDiff float64
	for _, v := range vals {
		d := v - mean
		sqDiff += d * d
	}
	std = math.Sqrt(sqDiff / n)
	return
}

// updateActiveIdle recomputes active/idle window statistics: contiguous runs of inter-packet gaps at or below
// idleThresholdMS count as "active"; any gap above it ends the active run
// and is itself recorded as an "idle" period.
func (f *FlowFeatures) updateActiveIdle(idleThresholdMS float64) {
	var actives, idles []float64
	var currentActive float64

	for i := 1; i < len(f.packetTimes); i++ {
		delta := float64(f.packetTimes[i].Sub(f.packetTimes[i-1]).Microseconds()) / 1000.0
		if delta <= idleThresholdMS {
			currentActive += delta
		} else {
			if currentActive > 0 {
				actives = append(actives, currentActive)
				currentActive = 0
			}
			idles = append(idles, delta)
		}
	}
	if currentActive > 0 {
		actives = append(actives, currentActive)
	}

	f.ActiveMean, f.ActiveStd, f.ActiveMin, f.ActiveMax = calcStats(actives)
	f.IdleMean, f.IdleStd, f.IdleMin, f.IdleMax = calcStats(idles)
}

func (f *FlowFeatures) updateForwardMetrics(pktLen uint16, now time.Time) {
	f.TotFwdPkts++
	f.TotlenFwdPkts += uint32(pktLen)
	f.fwdPktLenSqSum += float64(pktLen) * float64(pktLen)

	if pktLen > f.FwdPktLenMax {
		f.FwdPktLenMax = pktLen
	}
	if f.FwdPktLenMin == 0 || pktLen < f.FwdPktLenMin {
		f.FwdPktLenMin = pktLen
	}

	f.FwdPktLenMean = float64(f.TotlenFwdPkts) / float64(f.TotFwdPkts)
	variance := (f.fwdPktLenSqSum / float64(f.TotFwdPkts)) - f.FwdPktLenMean*f.FwdPktLenMean
	if variance < 0 {
		variance = 0
	}
	f.FwdPktLenStd = math.Sqrt(variance)

	if !f.lastFwdTime.IsZero() {
		prev := f.lastFwdTime
		iat := float64(now.Sub(prev).Microseconds()) / 1000.0
		f.FwdIATTot += iat

		n := float64(f.TotFwdPkts)
		prevMean := f.FwdIATMean
		f.FwdIATMean = ((n-1)*f.FwdIATMean + iat) / n
		v := (f.FwdIATStd*f.FwdIATStd*(n-1) + (iat-prevMean)*(iat-prevMean)) / n
		if v < 0 {
			v = 0
		}
		f.FwdIATStd = math.Sqrt(v)
		if iat > f.FwdIATMax {
			f.FwdIATMax = iat
		}
		if f.FwdIATMin == 0 || iat < f.FwdIATMin {
			f.FwdIATMin = iat
		}

		gap := iat
		if gap > subflowTimeoutMS {
			f.SubflowFwdPkts = 1
			f.SubflowFwdByts = uint32(pktLen)
		} else {
			f.SubflowFwdPkts++
			f.SubflowFwdByts += uint32(pktLen)
		}

		if gap <= bulkGapMS {
			f.fwdBulkBytes += uint64(pktLen)
			f.fwdBulkPkts++
			if f.fwdBulkStart.IsZero() {
				f.fwdBulkStart = prev
			}
			f.fwdBulkDuration = now.Sub(f.fwdBulkStart).Seconds()
		} else {
			f.fwdBulkStart = time.Time{}
		}
	} else {
		f.SubflowFwdPkts = 1
		f.SubflowFwdByts = uint32(pktLen)
	}

	f.lastFwdTime = now
}

func (f *FlowFeatures) updateBackwardMetrics(pktLen uint16, now time.Time) {
	f.TotBwdPkts++
	f.TotlenBwdPkts += uint32(pktLen)
	f.bwdPktLenSqSum += float64(pktLen) * float64(pktLen)

	if pktLen > f.BwdPktLenMax {
		f.BwdPktLenMax = pktLen
	}
	if f.BwdPktLenMin == 0 || pktLen < f.BwdPktLenMin {
		f.BwdPktLenMin = pktLen
	}

	f.BwdPktLenMean = float64(f.TotlenBwdPkts) / float64(f.TotBwdPkts)
	variance := (f.bwdPktLenSqSum / float64(f.TotBwdPkts)) - f.BwdPktLenMean*f.BwdPktLenMean
	if variance < 0 {
		variance = 0
	}
	f.BwdPktLenStd = math.Sqrt(variance)

	if !f.lastBwdTime.IsZero() {
		prev := f.lastBwdTime
		iat := float64(now.Sub(prev).Microseconds()) / 1000.0
		f.BwdIATTot += iat

		n := float64(f.TotBwdPkts)
		prevMean := f.BwdIATMean
		f.BwdIATMean = ((n-1)*f.BwdIATMean + iat) / n
		v := (f.BwdIATStd*f.BwdIATStd*(n-1) + (iat-prevMean)*(iat-prevMean)) / n
		if v < 0 {
			v = 0
		}
		f.BwdIATStd = math.Sqrt(v)
		if iat > f.BwdIATMax {
			f.BwdIATMax = iat
		}
		if f.BwdIATMin == 0 || iat < f.BwdIATMin {
			f.BwdIATMin = iat
		}

		gap := iat
		if gap > subflowTimeoutMS {
			f.SubflowBwdPkts = 1
			f.SubflowBwdByts = uint32(pktLen)
		} else {
			f.SubflowBwdPkts++
			f.SubflowBwdByts += uint32(pktLen)
		}

		if gap <= bulkGapMS {
			f.bwdBulkBytes += uint64(pktLen)
			f.bwdBulkPkts++
			if f.bwdBulkStart.IsZero() {
				f.bwdBulkStart = prev
			}
			f.bwdBulkDuration = now.Sub(f.bwdBulkStart).Seconds()
		} else {
			f.bwdBulkStart = time.Time{}
		}
	} else {
		f.SubflowBwdPkts = 1
		f.SubflowBwdByts = uint32(pktLen)
	}

	f.lastBwdTime = now
}

// LastSeen returns the timestamp of the most recent update, used by the
// eviction sweep.
func (f *FlowFeatures) LastSeen() time.Time {
	return f.endTime
}
