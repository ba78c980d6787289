package congestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mclab-cuhk/rtcp-go/internal/monotime"
	"github.com/mclab-cuhk/rtcp-go/internal/protocol"
)

// ltBandwidthsAgree must compare scaledBW (unsigned) via a signed diff, not
// an unsigned subtraction that underflows whenever a < b.
func TestLTBandwidthsAgreeHandlesLowerCurrentEstimate(t *testing.T) {
	const prev scaledBW = 2_000_000
	const cur scaledBW = 1_900_000 // within prev/8 (=250000) of prev, so should agree
	require.True(t, ltBandwidthsAgree(cur, prev, protocol.DefaultTCPMSS))
	require.True(t, ltBandwidthsAgree(prev, cur, protocol.DefaultTCPMSS), "agreement must be symmetric regardless of argument order")
}

// scenario 2: a sustained token-bucket policer produces two consecutive
// high-loss intervals whose throughput agrees (the second slightly lower
// than the first, spec.md §4.4) — the LT estimator must commit (useBW)
// instead of silently failing the way the unsigned-subtraction bug did
// whenever the newer interval's bandwidth was the lower of the two.
func TestLTEstimatorCommitsWhenNewerIntervalIsSlower(t *testing.T) {
	lt := &ltBandwidthEstimator{}
	start := monotime.Now()

	var delivered, lost protocol.ByteCount

	// Kick off sampling with an initial loss.
	lost += 5000
	rs := &RateSample{Delivered: delivered, Lost: lost, Losses: 5000, DeliveredAt: start}
	lt.onRateSample(rs, false, protocol.DefaultTCPMSS)
	require.True(t, lt.sampling)

	// Four lossless round-start samples: roundsElapsed 1..4.
	ts := start
	for i := 0; i < 4; i++ {
		ts = ts.Add(250 * time.Millisecond)
		rs := &RateSample{Delivered: delivered, Lost: lost, Losses: 0, DeliveredAt: ts}
		lt.onRateSample(rs, true, protocol.DefaultTCPMSS)
	}

	// Closing sample for interval 1: 100000B delivered, 30000B lost over 1.25s.
	ts = ts.Add(250 * time.Millisecond)
	delivered += 100000
	lost += 30000
	rs = &RateSample{Delivered: delivered, Lost: lost, Losses: 30000, DeliveredAt: ts}
	lt.onRateSample(rs, true, protocol.DefaultTCPMSS)
	require.True(t, lt.hasPrevIntervalBW, "first interval should be stashed as prevIntervalBW")
	require.False(t, lt.useBW)
	firstIntervalBW := lt.prevIntervalBW

	// Four more lossless round-start samples for interval 2.
	for i := 0; i < 4; i++ {
		ts = ts.Add(250 * time.Millisecond)
		rs := &RateSample{Delivered: delivered, Lost: lost, Losses: 0, DeliveredAt: ts}
		lt.onRateSample(rs, true, protocol.DefaultTCPMSS)
	}

	// Closing sample for interval 2: 95000B delivered (slightly lower
	// throughput than interval 1), 28000B lost over 1.25s.
	ts = ts.Add(250 * time.Millisecond)
	delivered += 95000
	lost += 28000
	rs = &RateSample{Delivered: delivered, Lost: lost, Losses: 28000, DeliveredAt: ts}
	lt.onRateSample(rs, true, protocol.DefaultTCPMSS)

	require.True(t, lt.useBW, "two agreeing high-loss intervals must commit lt_use_bw")
	require.Equal(t, ltUseBWRounds, lt.useBWRoundsRemaining)
	require.Less(t, int64(lt.bw), int64(firstIntervalBW), "committed rate should reflect the slower second interval pulling the average down")
}
