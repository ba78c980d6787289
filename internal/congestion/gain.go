package congestion

// bbrMode is BBR's operating mode (spec.md §3.B and GLOSSARY).
type bbrMode int

const (
	bbrStartup bbrMode = iota
	bbrDrain
	bbrProbeBW
	bbrProbeRTT
)

func (m bbrMode) String() string {
	switch m {
	case bbrStartup:
		return "STARTUP"
	case bbrDrain:
		return "DRAIN"
	case bbrProbeBW:
		return "PROBE_BW"
	case bbrProbeRTT:
		return "PROBE_RTT"
	default:
		return "UNKNOWN"
	}
}

const (
	// bbrHighGain is 2/ln(2) ≈ 2.885, scaled by gainScale — STARTUP's
	// pacing and cwnd gain, and DRAIN's cwnd gain (spec.md §4.3).
	bbrHighGain = 739
	// bbrDrainGain is ln(2)/2 ≈ 0.3466, scaled by gainScale — DRAIN's
	// pacing gain.
	bbrDrainGain = 88
	// bbrCwndGainProbeBW is PROBE_BW's cwnd gain, a flat 2.0.
	bbrCwndGainProbeBW = 2 * gainUnit
	// bbrUnitGain is 1.0 scaled by gainScale, used for PROBE_RTT's
	// pacing/cwnd gains and for the LT-estimator's forced pacing gain.
	bbrUnitGain = gainUnit
)

// bbrPacingGainCycle is the 8-phase PROBE_BW pacing-gain cycle from
// spec.md §4.3: [5/4, 3/4, 1, 1, 1, 1, 1, 1], scaled by gainScale.
var bbrPacingGainCycle = [8]uint64{
	gainUnit * 5 / 4,
	gainUnit * 3 / 4,
	gainUnit, gainUnit, gainUnit, gainUnit, gainUnit, gainUnit,
}

const bbrGainCycleLength = len(bbrPacingGainCycle)

// bbrDrainPhaseIndex is the cycle index whose gain is below 1.0 (the
// "drain" phase within PROBE_BW's own cycle, not BBR's DRAIN mode).
const bbrDrainPhaseIndex = 1

// bbrCwndMinTargetPackets is the cwnd floor enforced in PROBE_RTT (spec.md §3
// invariant: "mode = PROBE_RTT implies cwnd ≤ bbr_cwnd_min_target").
const bbrCwndMinTargetPackets = 4

// bbrFullBWThresholdPercent and bbrFullBWCountThreshold drive STARTUP's
// plateau detector (spec.md §4.3, bbr_state.go checkFullPipe).
const bbrFullBWThresholdPercent = 125 // 25% growth required to extend the plateau window
const bbrFullBWCountThreshold = 3     // rounds without growth before full_bw_reached
