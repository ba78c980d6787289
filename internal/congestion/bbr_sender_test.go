package congestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mclab-cuhk/rtcp-go/internal/monotime"
	"github.com/mclab-cuhk/rtcp-go/internal/protocol"
	"github.com/mclab-cuhk/rtcp-go/internal/utils"
)

func newTestSender(t *testing.T, enableRTCP bool) (*BBRSender, *mockClock) {
	t.Helper()
	clock := &mockClock{}
	clock.Advance(time.Second) // avoid colliding with the zero-time sentinel
	rttStats := &utils.RTTStats{}
	connStats := &utils.ConnectionStats{}
	cfg := DefaultConfig()
	s := newBBRSender(clock, rttStats, connStats, cfg, protocol.DefaultTCPMSS, enableRTCP)
	return s, clock
}

// scenario 1 (spec.md §8): ideal link, no loss. STARTUP should plateau
// and hand off to DRAIN/PROBE_BW within a handful of rounds, and
// classify must stay 0 throughout.
func TestIdealLinkReachesProbeBW(t *testing.T) {
	s, clock := newTestSender(t, true)

	const bwPktsPerMs = 10
	const rtt = 50 * time.Millisecond
	const roundBytes protocol.ByteCount = bwPktsPerMs * protocol.DefaultTCPMSS // delivered per round (1ms slice)

	var delivered protocol.ByteCount
	for round := 0; round < 60; round++ {
		delivered += roundBytes
		clock.Advance(time.Millisecond)
		rs := &RateSample{
			Delivered:      delivered,
			PriorDelivered: delivered - roundBytes,
			AckedSacked:    roundBytes,
			Interval:       time.Millisecond,
			RTT:            rtt,
			DeliveredAt:    clock.Now(),
			SndUna:         delivered,
		}
		s.OnRateSample(rs, roundBytes, protocol.CAStateOpen)
	}

	require.Equal(t, classifyNone, s.detector.classify)
	require.Contains(t, []bbrMode{bbrDrain, bbrProbeBW}, s.state.mode)
}

// P1: cycle_idx stays within [0,8) and advancing stamps the last sample
// time.
func TestProbeBWCycleIndexBounded(t *testing.T) {
	s, clock := newTestSender(t, false)
	s.state.mode = bbrProbeBW
	s.model.minRTT = 10 * time.Millisecond
	s.model.fullBWReached = true

	var delivered protocol.ByteCount
	for i := 0; i < 20; i++ {
		delivered += 1000
		clock.Advance(20 * time.Millisecond)
		rs := &RateSample{
			Delivered:      delivered,
			PriorDelivered: delivered - 1000,
			AckedSacked:    1000,
			Interval:       20 * time.Millisecond,
			RTT:            10 * time.Millisecond,
			DeliveredAt:    clock.Now(),
		}
		s.OnRateSample(rs, 1000, protocol.CAStateOpen)
		require.GreaterOrEqual(t, s.state.cycleIndex, 0)
		require.Less(t, s.state.cycleIndex, bbrGainCycleLength)
	}
}

// P2: in PROBE_RTT, cwnd is clamped to 4 packets and both gains are unity.
func TestProbeRTTClampsCwnd(t *testing.T) {
	s, _ := newTestSender(t, false)
	s.state.mode = bbrProbeRTT
	s.state.pickGains(&s.model)
	s.updateCongestionWindow(&RateSample{AckedSacked: 1000})

	require.Equal(t, protocol.ByteCount(bbrCwndMinTargetPackets)*protocol.DefaultTCPMSS, s.congestionWindow)
	require.Equal(t, uint64(bbrUnitGain), s.state.pacingGain)
	require.Equal(t, uint64(bbrUnitGain), s.state.cwndGain)
}

// P6: classify can only move 0->1 or 1->2, never back to 0.
func TestClassifyNeverRevertsToZero(t *testing.T) {
	d := &rtcpDetector{cfg: DefaultConfig()}
	d.classify = classifyDetected
	d.befEmptyGoodput = 1000
	d.r[0] = 10000 // far above abruptDecreaseThresh * goodput, forces abrupt-decrease=false
	d.classifyStep(10*time.Millisecond, monotime.Now())
	require.Equal(t, classifyDismissed, d.classify)
	require.NotEqual(t, classifyNone, d.classify)
}

// R1: a null sample (interval=0) is a no-op.
func TestInvalidSampleIsNoOp(t *testing.T) {
	s, _ := newTestSender(t, false)
	before := s.model
	s.OnRateSample(&RateSample{Interval: 0}, 0, protocol.CAStateOpen)
	require.Equal(t, before.roundCount, s.model.roundCount)
}

// R2: an app-limited sample whose bw is below the filtered max does not
// lower the filtered max.
func TestAppLimitedSampleDoesNotLowerMaxBW(t *testing.T) {
	s, clock := newTestSender(t, false)
	clock.Advance(time.Millisecond)
	s.OnRateSample(&RateSample{
		Delivered: 10000, PriorDelivered: 0, AckedSacked: 10000,
		Interval: time.Millisecond, RTT: 10 * time.Millisecond, DeliveredAt: clock.Now(),
	}, 10000, protocol.CAStateOpen)
	maxBefore := s.model.maxBW()

	clock.Advance(time.Millisecond)
	s.OnRateSample(&RateSample{
		Delivered: 10100, PriorDelivered: 10000, AckedSacked: 100,
		Interval: time.Millisecond, RTT: 10 * time.Millisecond, DeliveredAt: clock.Now(),
		IsAppLimited: true,
	}, 100, protocol.CAStateOpen)

	require.Equal(t, maxBefore, s.model.maxBW())
}
