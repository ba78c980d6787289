package congestion

import (
	"math"
	"time"

	"github.com/mclab-cuhk/rtcp-go/internal/protocol"
)

// Bandwidth is a rate in bytes per second, the unit the engine hands back
// to the transport (spec.md §6 "pacing_rate (bytes/s)"). Grounded on the
// Bandwidth type returned by BandwidthEstimate() in prague_sender.go and
// the cubic_sender examples.
type Bandwidth int64

// infBandwidth is returned when no RTT sample exists yet to derive a rate
// from (see other_examples cubic senders' `return infBandwidth` guard).
const infBandwidth Bandwidth = math.MaxInt64

const usecPerSec = 1_000_000

// BandwidthFromDelta computes a bytes/second rate from a byte count
// delivered over a duration, in the order (bytes * usecPerSec / usec)
// chosen so the intermediate product doesn't overflow int64 for any
// realistic (bytes, duration) pair — see bwScaleToBandwidth for the same
// concern applied to the scaled internal representation.
func BandwidthFromDelta(bytes protocol.ByteCount, d time.Duration) Bandwidth {
	if d <= 0 {
		return infBandwidth
	}
	return Bandwidth(int64(bytes) * usecPerSec / d.Microseconds())
}

// scaledBW is "packets per microsecond, left-shifted by bwScale" — the
// internal fixed-point representation spec.md §4.1 specifies for the
// bandwidth filter and the R-TCP candidate grid, so BBR's model update and
// the bucket/rate estimator can compare bandwidths with pure integer
// arithmetic and no repeated float conversions on the hot path.
type scaledBW uint64

const (
	// bwScale is BW_SCALE in spec.md §6: the fractional-bit width of the
	// scaledBW fixed-point representation.
	bwScale = 24
	// bwUnit is BW_UNIT: 1 packet/µs in scaledBW units, and also the scale
	// spec.md §4.5's bucket/rate estimator multiplies delivered-byte
	// counts by before comparing against a scaledBW rate.
	bwUnit scaledBW = 1 << bwScale

	// gainScale is BBR_SCALE in spec.md §6: the fractional-bit width of a
	// pacing/cwnd gain multiplier. A gain of 1.0 is represented as
	// 1<<gainScale.
	gainScale = 8
	gainUnit  = 1 << gainScale

	// basedScale is BASED_SCALE in spec.md §6, used for the R-TCP percent
	// vector and abrupt-decrease threshold.
	basedScale           = 8
	basedUnit            = 1 << basedScale
	lossThresh           = 50  // 50/256 ≈ 20%, spec.md §4.5 step 2
	abruptDecreaseThresh = 150 // 150/256 ≈ 59%, spec.md §4.5 step 5
)

// pacingMarginPercent is the fixed 1% pacing margin from spec.md §4.1:
// the rate handed to the transport is 99% of the modeled rate.
const pacingMarginPercent = 99

// rateSampleToScaledBW converts a delivered-byte-count-over-interval
// sample into scaledBW, guarding against the interval being too short to
// represent (spec.md §7 "Arithmetic overflow risk").
func rateSampleToScaledBW(delivered protocol.ByteCount, interval time.Duration) scaledBW {
	if interval <= 0 || delivered <= 0 {
		return 0
	}
	us := interval.Microseconds()
	if us <= 0 {
		return 0
	}
	// (delivered << bwScale) / us. delivered is bounded by what a single
	// connection can deliver within min_rtt horizons (far below 2^40), so
	// the left shift by 24 bits cannot overflow an int64 accumulator.
	return scaledBW((int64(delivered) << bwScale) / us)
}

// bwToBytesPerSecond converts a scaledBW rate to Bandwidth (bytes/s),
// applying mss and the pacing margin. Spec.md §4.1: "operation order
// chosen so a 64-bit accumulator does not overflow for rates up to
// several Tbit/s" — we multiply by mss and usecPerSec before removing the
// bwScale shift, same order as the divide-last trick used throughout the
// BBR reference implementation, but bound the mss multiply first so the
// usecPerSec multiply (by far the largest constant) happens on an
// already-mss-scaled value rather than compounding two large multipliers
// before any division.
func bwToBytesPerSecond(bw scaledBW, mss protocol.ByteCount) Bandwidth {
	if bw == 0 {
		return 0
	}
	// rate (bytes/µs, scaled) = bw * mss; bytes/s = rate * usecPerSec >> bwScale.
	rate := uint64(bw) * uint64(mss)
	bps := (rate * usecPerSec) >> bwScale
	bps = bps * pacingMarginPercent / 100
	return Bandwidth(bps)
}

// applyGain multiplies a scaledBW rate by a gainScale-scaled gain,
// rounding down, without overflowing for bw values up to bwUnit<<16 (far
// beyond any real bandwidth).
func applyGain(bw scaledBW, gain uint64) scaledBW {
	if gain == 0 || bw == 0 {
		return 0
	}
	return scaledBW((uint64(bw) * gain) >> gainScale)
}

// bdpFromBW computes the bandwidth-delay product in bytes, ceiling the
// result so an under-estimate never starves the pipe (spec.md §4.1: "BDP
// = ⌈bw × min_rtt × gain⌉ with ceiling to avoid negative feedback").
func bdpFromBW(bw scaledBW, minRTT time.Duration, gain uint64, mss protocol.ByteCount) protocol.ByteCount {
	if bw == 0 || minRTT <= 0 {
		// No bandwidth/RTT sample yet: fall back to one MSS so the
		// connection can always send its first probe (spec.md §7
		// "Insufficient history").
		return mss
	}
	gained := applyGain(bw, gain)
	us := uint64(minRTT.Microseconds())
	// bytes = gained(pkts/µs scaled) * us * mss >> bwScale, ceiling division.
	numerator := uint64(gained) * us * uint64(mss)
	bdp := numerator >> bwScale
	if numerator&((1<<bwScale)-1) != 0 {
		bdp++
	}
	return protocol.ByteCount(bdp)
}
