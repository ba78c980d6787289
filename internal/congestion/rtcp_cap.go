package congestion

import "github.com/mclab-cuhk/rtcp-go/internal/protocol"

// rtcpCapController is spec.md §4.6: once the detector has locked in
// (classify = 1) and optimize_flag is on, cap BBR's pacing rate with the
// detector's best rate candidate, and periodically probe upward for new
// headroom. It is a thin behavior layered on *rtcpDetector's fields
// (round_count, upper_bound, nominator, mem_B, mem_R) rather than a
// separate struct, matching spec.md §3.C listing these as detector
// fields, not a distinct sub-record.
//
// Grounded on spec.md §4.6 and the cap/probe machinery pattern (a
// threshold counter driving a one-shot mode override) used by
// prague_sender.go's own alpha-update cadence — no pack file implements
// rate capping, so the counter/state transitions below are a literal,
// carefully-commented transcription of the spec.

// capActive reports whether the cap is presently engaged for this
// sample: classify has locked in and the operator hasn't disabled the
// controller.
func (d *rtcpDetector) capActive() bool {
	return d.classify == classifyDetected && d.cfg != nil && d.cfg.OptimizeFlag.Load()
}

// capRate computes the pacing ceiling spec.md §4.6 specifies: R[best] at
// gain 1.0, inflated by gain*probe_per/20 while a probe is in flight
// (nominator != 0). This is the literal integer formula (DESIGN.md Open
// Question 4): EffectiveProbeGainPercent exposes the documented
// closed-form percentage separately, for introspection only.
func (d *rtcpDetector) capRate(mss protocol.ByteCount) Bandwidth {
	if !d.capActive() {
		return infBandwidth
	}
	rate := d.r[d.bestIndex]
	if d.nominator != 0 && d.cfg != nil {
		probePer := uint64(d.cfg.ProbePercent.Load())
		rate = applyGain(rate, gainUnit*probePer/20)
	}
	return bwToBytesPerSecond(rate, mss)
}

// EffectiveProbeGainPercent is the human-readable equivalent of the
// capRate inflation factor, documented in spec.md §4.6 as "probe_per*5 -
// 100 %" — exposed purely for introspection/logging (DESIGN.md Open
// Question 4), never used to drive the control value itself.
func (d *rtcpDetector) EffectiveProbeGainPercent() int64 {
	if d.cfg == nil {
		return 0
	}
	return d.cfg.ProbePercent.Load()*5 - 100
}

// onProbeBWRound runs once per round while the state machine is in
// PROBE_BW (spec.md §4.6's probe/probe-close/re-estimation logic).
// Returns true if a probe should force the gain cycle back to phase 0
// this round.
func (d *rtcpDetector) onProbeBWRound() (forcePhaseZero bool) {
	if d.cfg == nil {
		return false
	}

	if d.upperBound == 1 && d.nominator == 0 {
		// Cap active, not probing: count toward the next probe.
		d.roundCount++
		if d.roundCount >= int(d.cfg.ProbeInterval.Load()) {
			d.roundCount = 0
			d.nominator = 1
			d.memB = d.b[d.bestIndex]
			d.memR = d.r[d.bestIndex]
			d.roundCountNo = 0
			return true
		}
		return false
	}

	// Either the cap is not (or no longer) the active ceiling, or a probe
	// is already underway: watch for probe-induced re-estimation vs.
	// probe-close.
	if d.memB != d.b[d.bestIndex] || d.memR != d.r[d.bestIndex] {
		// New headroom found mid-probe: suspend the cap and re-seed.
		d.upperBound = 2
		d.memB = d.b[d.bestIndex]
		d.memR = d.r[d.bestIndex]
		d.roundCountNo = 0
		return false
	}

	d.roundCountNo++
	if d.roundCountNo >= int(d.cfg.MonitorPeriod.Load()) {
		// No new capacity discovered: reactivate the cap.
		d.upperBound = 1
		d.nominator = 0
		d.roundCountNo = 0
	}
	return false
}
