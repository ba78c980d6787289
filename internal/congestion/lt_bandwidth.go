package congestion

import (
	"github.com/mclab-cuhk/rtcp-go/internal/monotime"
	"github.com/mclab-cuhk/rtcp-go/internal/protocol"
)

const (
	// ltMinRounds and ltMaxRounds bound how long an LT sampling interval
	// may run before it's either too short to trust or too long to still
	// call "an interval" (spec.md §4.4: "Require ≥ 4 and ≤ 16 rounds").
	ltMinRounds = 4
	ltMaxRounds = 16

	// ltLossRateNumerator/Denominator encode the 20% loss-rate commit
	// threshold as an integer ratio (spec.md §4.4, §6 lossThresh=50/256).
	ltLossRateNumerator   = 1
	ltLossRateDenominator = 5

	// ltUseBWRounds is the bounded horizon lt_use_bw holds for once
	// committed (spec.md §4.4, P4): 48 rounds of PROBE_BW.
	ltUseBWRounds = 48

	// ltBWDeltaAbsoluteThresholdBps is the "4 Kbit/s" absolute-agreement
	// threshold from spec.md §4.4, converted to bytes/s.
	ltBWDeltaAbsoluteThresholdBps Bandwidth = 4000 / 8
)

// ltBandwidthEstimator is sub-record A's LT estimator (spec.md §3): it
// detects a token-bucket policer by looking for two consecutive
// intervals of consistent throughput under high loss, and if it finds
// one, locks BBR's bandwidth estimate to that value for a bounded
// horizon. Grounded on spec.md §4.4; no file in the pack implements an
// LT/long-term bandwidth estimator (BBR's own is C, filtered out of
// original_source/), so this is a direct, idiomatic-Go transcription of
// the algorithm as specified.
type ltBandwidthEstimator struct {
	sampling bool

	startStamp    monotime.Time
	startDelivered protocol.ByteCount
	startLost      protocol.ByteCount
	roundsElapsed  int

	hasPrevIntervalBW bool
	prevIntervalBW    scaledBW

	bw                   scaledBW
	useBW                bool
	useBWRoundsRemaining int
}

// onRateSample runs the LT estimator's sampling/commit state machine for
// one rate sample. It does nothing once useBW is latched; the bounded
// horizon's countdown is driven separately by tickProbeBWRound, because
// spec.md §4.4 only decrements it "at start-of-round during PROBE_BW", a
// fact only the state machine (bbr_state.go) knows.
func (lt *ltBandwidthEstimator) onRateSample(rs *RateSample, roundStart bool, mss protocol.ByteCount) {
	if lt.useBW {
		return
	}
	if rs.IsAppLimited {
		lt.abort()
		return
	}
	if !lt.sampling {
		if rs.Losses > 0 {
			lt.start(rs)
		}
		return
	}

	if roundStart {
		lt.roundsElapsed++
	}
	if rs.Losses == 0 {
		return // interval hasn't closed yet
	}

	// This sample's loss closes the interval.
	if lt.roundsElapsed < ltMinRounds {
		return // too short to trust yet; keep accumulating
	}
	if lt.roundsElapsed > ltMaxRounds {
		// Too long: the interval is stale. Start over from this loss.
		lt.start(rs)
		return
	}

	delivered := rs.Delivered - lt.startDelivered
	lost := rs.Lost - lt.startLost
	total := delivered + lost
	if total <= 0 || lost*ltLossRateDenominator < total*ltLossRateNumerator {
		// Loss rate below 20%: not a policer symptom. Abort and wait for
		// the next loss to try again.
		lt.abort()
		return
	}

	elapsed := rs.DeliveredAt.Sub(lt.startStamp)
	curBW := rateSampleToScaledBW(delivered, elapsed)

	if lt.hasPrevIntervalBW {
		if ltBandwidthsAgree(curBW, lt.prevIntervalBW, mss) {
			lt.bw = (lt.prevIntervalBW + curBW) / 2
			lt.useBW = true
			lt.useBWRoundsRemaining = ltUseBWRounds
			lt.hasPrevIntervalBW = false
			return
		}
	}

	lt.prevIntervalBW = curBW
	lt.hasPrevIntervalBW = true
	lt.start(rs)
}

// ltBandwidthsAgree implements spec.md §4.4's commit test: "if |Δ| ≤
// lt_bw/8 (relative) or |Δ rate| ≤ 4 Kbit/s (absolute), commit." scaledBW
// is unsigned, so the subtraction is done in int64 (as tooCloseToDistinguish
// does) rather than relying on a dead diff<0 branch that never fires and
// underflows whenever a < b.
func ltBandwidthsAgree(a, b scaledBW, mss protocol.ByteCount) bool {
	diff := int64(a) - int64(b)
	if diff < 0 {
		diff = -diff
	}
	if uint64(diff) <= uint64(b)/8 {
		return true
	}
	return scaledBWToBandwidthRaw(scaledBW(diff), mss) <= ltBWDeltaAbsoluteThresholdBps
}

func (lt *ltBandwidthEstimator) start(rs *RateSample) {
	lt.sampling = true
	lt.startStamp = rs.DeliveredAt
	lt.startDelivered = rs.Delivered
	lt.startLost = rs.Lost
	lt.roundsElapsed = 0
}

func (lt *ltBandwidthEstimator) abort() {
	lt.sampling = false
	lt.hasPrevIntervalBW = false
}

// tickProbeBWRound must be called once per round while mode is
// PROBE_BW. It implements the bounded-horizon reset: "after 48 rounds at
// start-of-round during PROBE_BW, reset and resume normal gain cycling."
// Returns true the round useBW is cleared, so the caller can log/trace
// the transition.
func (lt *ltBandwidthEstimator) tickProbeBWRound() bool {
	if !lt.useBW {
		return false
	}
	lt.useBWRoundsRemaining--
	if lt.useBWRoundsRemaining > 0 {
		return false
	}
	lt.useBW = false
	lt.hasPrevIntervalBW = false
	return true
}

// reset fully clears the estimator, used on idle-restart and spurious-
// loss undo (spec.md §4.8).
func (lt *ltBandwidthEstimator) reset() {
	*lt = ltBandwidthEstimator{}
}

// scaledBWToBandwidthRaw converts without the 1% pacing margin applied
// by bwToBytesPerSecond — used only for the LT estimator's absolute
// agreement comparison, which must compare the modeled rate itself, not
// a margined pacing rate.
func scaledBWToBandwidthRaw(bw scaledBW, mss protocol.ByteCount) Bandwidth {
	if bw == 0 {
		return 0
	}
	rate := uint64(bw) * uint64(mss)
	return Bandwidth((rate * usecPerSec) >> bwScale)
}
