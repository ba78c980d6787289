package congestion

import (
	"time"

	"github.com/mclab-cuhk/rtcp-go/internal/monotime"
	"github.com/mclab-cuhk/rtcp-go/internal/protocol"
	"github.com/mclab-cuhk/rtcp-go/internal/utils"
)

// bwFilterWindowRounds is the ~10 packet-timed-round horizon spec.md
// §4.2 specifies for the bottleneck-bandwidth filter.
const bwFilterWindowRounds = 10

// minRTTWindow is the 10-second sliding window spec.md §3 specifies for
// min_rtt_us.
const minRTTWindow = 10 * time.Second

// extraAckedWinRoundsLimit is the "every 5 rounds" ping-pong period for
// the ACK-aggregation compensator (spec.md §4.2).
const extraAckedWinRoundsLimit = 5

// bbrModel is the per-connection path model: sub-record A of spec.md §3.
type bbrModel struct {
	minRTT      time.Duration
	minRTTStamp monotime.Time

	bwFilter *utils.WindowedFilter[scaledBW]

	roundCount         uint64
	nextRoundDelivered protocol.ByteCount
	roundStart         bool

	fullBW        scaledBW
	fullBWCount   int
	fullBWReached bool

	// ACK-aggregation compensator.
	ackEpochTime   monotime.Time
	ackEpochAcked  protocol.ByteCount
	extraAcked     [2]protocol.ByteCount
	extraAckedWinRounds int
	extraAckedWinIdx    int

	lt ltBandwidthEstimator
}

func newBBRModel() bbrModel {
	return bbrModel{
		bwFilter: utils.NewWindowedFilter[scaledBW](bwFilterWindowRounds, func(a, b scaledBW) bool { return a > b }),
	}
}

// maxBW returns the windowed-max bandwidth filter's current best sample.
func (m *bbrModel) maxBW() scaledBW { return m.bwFilter.Best() }

// onRateSample runs the path-model updater (spec.md §4.2) for one rate
// sample. It must run before the state machine and detector see the
// sample, since both depend on roundStart/maxBW having been refreshed.
func (m *bbrModel) onRateSample(rs *RateSample, mss protocol.ByteCount) {
	m.updateRound(rs)
	m.lt.onRateSample(rs, m.roundStart, mss)

	sampleBW := rateSampleToScaledBW(rs.Delivered-rs.PriorDelivered, rs.Interval)
	if !rs.IsAppLimited || sampleBW >= m.maxBW() {
		m.bwFilter.Update(sampleBW, m.roundCount)
	}

	m.updateAckAggregation(rs, mss)
	m.updateMinRTT(rs)
}

// updateRound marks round_start and advances the round counter
// (spec.md §4.2): "Mark round_start iff prior_delivered ≥
// next_rtt_delivered; on new round, advance next_rtt_delivered :=
// delivered, increment rtt_cnt, clear packet_conservation." Clearing
// packet_conservation is the state machine's concern (it owns that
// field), signaled back via the roundStart flag this method sets.
func (m *bbrModel) updateRound(rs *RateSample) {
	m.roundStart = false
	if rs.PriorDelivered >= m.nextRoundDelivered {
		m.nextRoundDelivered = rs.Delivered
		m.roundCount++
		m.roundStart = true
	}
}

// updateAckAggregation tracks the burstiness BBR must add on top of BDP
// to avoid under-filling the pipe when ACKs arrive in a bunch (spec.md
// §4.2). expected is how much the model predicted would be delivered in
// the elapsed epoch at the filtered max bandwidth; if the sender
// delivered no more than that, there's no aggregation to compensate for
// and the epoch resets. Otherwise the excess is tracked as a per-window
// max via a two-slot ping-pong that advances every 5 rounds.
func (m *bbrModel) updateAckAggregation(rs *RateSample, mss protocol.ByteCount) {
	if m.ackEpochTime.IsZero() {
		m.ackEpochTime = rs.DeliveredAt
		m.ackEpochAcked = 0
	}

	if m.roundStart {
		m.extraAckedWinRounds++
		if m.extraAckedWinRounds >= extraAckedWinRoundsLimit {
			m.extraAckedWinRounds = 0
			m.extraAckedWinIdx = 1 - m.extraAckedWinIdx
			m.extraAcked[m.extraAckedWinIdx] = 0
		}
	}

	epoch := rs.DeliveredAt.Sub(m.ackEpochTime)
	expected := bwToBytesOverInterval(m.maxBW(), epoch, mss)

	m.ackEpochAcked += rs.AckedSacked
	if m.ackEpochAcked <= expected {
		m.ackEpochTime = rs.DeliveredAt
		m.ackEpochAcked = 0
		return
	}

	extra := m.ackEpochAcked - expected
	if extra > m.extraAcked[m.extraAckedWinIdx] {
		m.extraAcked[m.extraAckedWinIdx] = extra
	}
}

// aggregationCwnd is the current ACK-aggregation compensation to add on
// top of BDP when sizing the congestion window (spec.md §4.7).
func (m *bbrModel) aggregationCwnd() protocol.ByteCount {
	if m.extraAcked[0] > m.extraAcked[1] {
		return m.extraAcked[0]
	}
	return m.extraAcked[1]
}

// bwToBytesOverInterval is the byte count the model predicts would be
// delivered over d at rate bw; used only by the ACK-aggregation
// compensator, which needs a plain (not margin-adjusted, not
// pacing-rounded) conversion.
func bwToBytesOverInterval(bw scaledBW, d time.Duration, mss protocol.ByteCount) protocol.ByteCount {
	if bw == 0 || d <= 0 {
		return 0
	}
	us := uint64(d.Microseconds())
	// bw is in packets/µs scaled by bwScale; convert to packets over the
	// interval, then to bytes via mss.
	packets := (uint64(bw) * us) >> bwScale
	return protocol.ByteCount(packets * uint64(mss))
}

// updateMinRTT updates the 10-second windowed min-RTT filter (spec.md
// §4.2): "if the sample RTT is ≤ current min_rtt_us, or if the 10s filter
// has expired and the sample is not marked delayed ACK, adopt it and
// restamp."
func (m *bbrModel) updateMinRTT(rs *RateSample) {
	if rs.RTT <= 0 {
		return
	}
	expired := !m.minRTTStamp.IsZero() && rs.DeliveredAt.Sub(m.minRTTStamp) > minRTTWindow
	if m.minRTTStamp.IsZero() || rs.RTT <= m.minRTT || (expired && !rs.IsAckDelayed) {
		m.minRTT = rs.RTT
		m.minRTTStamp = rs.DeliveredAt
	}
}

// forceRoundBoundary manually closes the current round, used by the
// loss-entry event hook (spec.md §4.7: "start a new round").
func (m *bbrModel) forceRoundBoundary(delivered protocol.ByteCount) {
	m.nextRoundDelivered = delivered
	m.roundCount++
	m.roundStart = true
}

// minRTTFilterExpired reports whether the 10s min-RTT window has expired
// without a qualifying replacement sample — the PROBE_RTT entry
// condition (spec.md §4.3).
func (m *bbrModel) minRTTFilterExpired(now monotime.Time) bool {
	return !m.minRTTStamp.IsZero() && now.Sub(m.minRTTStamp) > minRTTWindow
}
