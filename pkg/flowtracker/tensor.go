package flowtracker

import "github.com/edoardooldani/honeysensor/pkg/types"

// AutoencoderVector returns the 81-feature vector fed to the autoencoder,
// in exactly the column order the trained model expects. The last three slots are a one-hot protocol encoding, in
// the order ICMP, TCP, UDP.
func (f *FlowFeatures) AutoencoderVector() []float64 {
	var icmp, tcp, udp float64
	switch f.Protocol {
	case types.ProtocolTCP:
		tcp = 1
	case types.ProtocolUDP:
		udp = 1
	case types.ProtocolICMP:
		icmp = 1
	}

	return []float64{
		float64(f.SrcPort),
		float64(f.DstPort),
		f.FlowDuration,
		float64(f.TotFwdPkts),
		float64(f.TotBwdPkts),
		float64(f.TotlenFwdPkts),
		float64(f.TotlenBwdPkts),
		float64(f.FwdPktLenMax),
		float64(f.FwdPktLenMin),
		f.FwdPktLenMean,
		f.FwdPktLenStd,
		float64(f.BwdPktLenMax),
		float64(f.BwdPktLenMin),
		f.BwdPktLenMean,
		f.BwdPktLenStd,
		f.FlowBytsPerS,
		f.FlowPktsPerS,
		f.FlowIATMean,
		f.FlowIATStd,
		f.FlowIATMax,
		f.FlowIATMin,
		f.FwdIATTot,
		f.FwdIATMean,
		f.FwdIATStd,
		f.FwdIATMax,
		f.FwdIATMin,
		f.BwdIATTot,
		f.BwdIATMean,
		f.BwdIATStd,
		f.BwdIATMax,
		f.BwdIATMin,
		float64(f.FwdPSHFlags),
		float64(f.BwdPSHFlags),
		float64(f.FwdURGFlags),
		float64(f.BwdURGFlags),
		float64(f.FwdHeaderLen),
		float64(f.BwdHeaderLen),
		f.FwdPktsPerS,
		f.BwdPktsPerS,
		float64(f.PktLenMin),
		float64(f.PktLenMax),
		f.PktLenMean,
		f.PktLenStd,
		f.PktLenVar,
		float64(f.FinFlagCnt),
		float64(f.SynFlagCnt),
		float64(f.RstFlagCnt),
		float64(f.PshFlagCnt),
		float64(f.AckFlagCnt),
		float64(f.UrgFlagCnt),
		float64(f.CWEFlagCnt),
		float64(f.ECEFlagCnt),
		f.DownUpRatio,
		f.PktSizeAvg,
		f.FwdSegSizeAvg,
		f.BwdSegSizeAvg,
		f.FwdBytsBAvg,
		f.FwdPktsBAvg,
		f.FwdBlkRateAvg,
		f.BwdBytsBAvg,
		f.BwdPktsBAvg,
		f.BwdBlkRateAvg,
		float64(f.SubflowFwdPkts),
		float64(f.SubflowFwdByts),
		float64(f.SubflowBwdPkts),
		float64(f.SubflowBwdByts),
		float64(f.InitFwdWinByts),
		float64(f.InitBwdWinByts),
		float64(f.FwdActDataPkts),
		float64(f.FwdSegSizeMin),
		f.ActiveMean,
		f.ActiveStd,
		f.ActiveMax,
		f.ActiveMin,
		f.IdleMean,
		f.IdleStd,
		f.IdleMax,
		f.IdleMin,
		icmp,
		tcp,
		udp,
	}
}

// ClassifierVector returns the 78-feature vector fed to the classifier, in
// exactly the column order the trained model expects. Note fwd_header_len
// appears twice (once in its natural position, once again right after
// bwd_seg_size_avg) — that
// duplication is preserved from the training pipeline, not a bug.
func (f *FlowFeatures) ClassifierVector() []float64 {
	return []float64{
		float64(f.DstPort),
		f.FlowDuration,
		float64(f.TotFwdPkts),
		float64(f.TotBwdPkts),
		float64(f.TotlenFwdPkts),
		float64(f.TotlenBwdPkts),
		float64(f.FwdPktLenMax),
		float64(f.FwdPktLenMin),
		f.FwdPktLenMean,
		f.FwdPktLenStd,
		float64(f.BwdPktLenMax),
		float64(f.BwdPktLenMin),
		f.BwdPktLenMean,
		f.BwdPktLenStd,
		f.FlowBytsPerS,
		f.FlowPktsPerS,
		f.FlowIATMean,
		f.FlowIATStd,
		f.FlowIATMax,
		f.FlowIATMin,
		f.FwdIATTot,
		f.FwdIATMean,
		f.FwdIATStd,
		f.FwdIATMax,
		f.FwdIATMin,
		f.BwdIATTot,
		f.BwdIATMean,
		f.BwdIATStd,
		f.BwdIATMax,
		f.BwdIATMin,
		float64(f.FwdPSHFlags),
		float64(f.BwdPSHFlags),
		float64(f.FwdURGFlags),
		float64(f.BwdURGFlags),
		float64(f.FwdHeaderLen),
		float64(f.BwdHeaderLen),
		f.FwdPktsPerS,
		f.BwdPktsPerS,
		float64(f.PktLenMin),
		float64(f.PktLenMax),
		f.PktLenMean,
		f.PktLenStd,
		f.PktLenVar,
		float64(f.FinFlagCnt),
		float64(f.SynFlagCnt),
		float64(f.RstFlagCnt),
		float64(f.PshFlagCnt),
		float64(f.AckFlagCnt),
		float64(f.UrgFlagCnt),
		float64(f.CWEFlagCnt),
		float64(f.ECEFlagCnt),
		f.DownUpRatio,
		f.PktSizeAvg,
		f.FwdSegSizeAvg,
		f.BwdSegSizeAvg,
		float64(f.FwdHeaderLen), // duplicated, see doc comment above
		f.FwdBytsBAvg,
		f.FwdPktsBAvg,
		f.FwdBlkRateAvg,
		f.BwdBytsBAvg,
		f.BwdPktsBAvg,
		f.BwdBlkRateAvg,
		float64(f.SubflowFwdPkts),
		float64(f.SubflowFwdByts),
		float64(f.SubflowBwdPkts),
		float64(f.SubflowBwdByts),
		float64(f.InitFwdWinByts),
		float64(f.InitBwdWinByts),
		float64(f.FwdActDataPkts),
		float64(f.FwdSegSizeMin),
		f.ActiveMean,
		f.ActiveStd,
		f.ActiveMax,
		f.ActiveMin,
		f.IdleMean,
		f.IdleStd,
		f.IdleMax,
		f.IdleMin,
	}
}
