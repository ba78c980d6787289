package congestion

import (
	"time"

	"github.com/mclab-cuhk/rtcp-go/internal/monotime"
	"github.com/mclab-cuhk/rtcp-go/internal/protocol"
)

// probeRTTDuration is the minimum hold time spec.md §4.3 requires PROBE_RTT
// to keep cwnd at its floor once in-flight has drained enough.
const probeRTTDuration = 200 * time.Millisecond

// bbrStateMachine is sub-record B of spec.md §3: the mode state machine,
// its gain cycling, and the full-pipe/PROBE_RTT bookkeeping that only the
// state machine (not the path model) needs to track. Grounded on the
// mode-select/cycle-advance logic sketched for prague_sender.go's
// STARTUP-analog (Prague doesn't cycle gains, but its mode field and
// `maybeExitSlowStart` shape the method split used here) and on the BBR
// state diagram in spec.md §3.B/§4.3.
type bbrStateMachine struct {
	mode bbrMode

	pacingGain uint64 // gainScale-scaled
	cwndGain   uint64 // gainScale-scaled

	cycleIndex int
	cycleStamp monotime.Time

	packetConservation bool

	probeRTTRoundDone  bool
	probeRTTDoneStamp  monotime.Time
	priorCwndBeforeRTT protocol.ByteCount
	idleRestart        bool
}

func newBBRStateMachine() bbrStateMachine {
	return bbrStateMachine{
		mode:       bbrStartup,
		pacingGain: bbrHighGain,
		cwndGain:   bbrHighGain,
	}
}

// advance runs the state machine for one rate sample, after the model
// (bbrModel.onRateSample) and LT estimator have already observed it.
// rs.DeliveredAt is the sample's delivery time; inFlight/cwnd are the transport's current
// view, needed for the DRAIN and PROBE_RTT exit conditions.
func (s *bbrStateMachine) advance(m *bbrModel, rs *RateSample, mss protocol.ByteCount, inFlight, cwnd protocol.ByteCount) {
	s.checkFullPipe(m, rs)
	s.checkDrain(m, inFlight, mss)
	s.checkProbeRTTEntry(m, rs.DeliveredAt)
	// idle_restart is "set on restart-from-idle until a new data sample
	// arrives" (spec.md §3.B); this sample's checkProbeRTTEntry call above
	// is that arrival, so the flag clears once consulted.
	s.idleRestart = false

	switch s.mode {
	case bbrProbeBW:
		s.advanceCycle(m, rs)
	case bbrProbeRTT:
		s.handleProbeRTT(m, rs.DeliveredAt, inFlight, cwnd)
	}

	if s.mode == bbrProbeBW && m.roundStart {
		if m.lt.tickProbeBWRound() {
			// Horizon expired: resume normal gain cycling from phase 0.
			s.cycleIndex = 0
			s.cycleStamp = rs.DeliveredAt
		}
	}

	s.pickGains(m)
}

// checkFullPipe implements spec.md §4.3's plateau detector: STARTUP ends
// once max_bw fails to grow by ≥25% for bbrFullBWCountThreshold
// consecutive rounds.
func (s *bbrStateMachine) checkFullPipe(m *bbrModel, rs *RateSample) {
	if s.mode != bbrStartup || m.fullBWReached || !m.roundStart || rs.IsAppLimited {
		return
	}
	current := m.maxBW()
	if m.fullBW == 0 || current >= m.fullBW*bbrFullBWThresholdPercent/100 {
		m.fullBW = current
		m.fullBWCount = 0
		return
	}
	m.fullBWCount++
	if m.fullBWCount >= bbrFullBWCountThreshold {
		m.fullBWReached = true
		s.mode = bbrDrain
	}
}

// checkDrain transitions DRAIN to PROBE_BW once in-flight has fallen to
// the unity-gain BDP (spec.md §4.3).
func (s *bbrStateMachine) checkDrain(m *bbrModel, inFlight protocol.ByteCount, mss protocol.ByteCount) {
	if s.mode != bbrDrain {
		return
	}
	target := bdpFromBW(m.maxBW(), m.minRTT, gainUnit, mss)
	if inFlight <= target {
		s.enterProbeBW()
	}
}

func (s *bbrStateMachine) enterProbeBW() {
	s.mode = bbrProbeBW
	s.cycleIndex = 0
}

// advanceCycle rotates PROBE_BW's 8-phase pacing-gain cycle once per
// min_rtt-ish round (spec.md §4.3): advance on round_start once the
// current phase has had at least one round to take effect.
func (s *bbrStateMachine) advanceCycle(m *bbrModel, rs *RateSample) {
	if !m.roundStart {
		return
	}
	elapsed := rs.DeliveredAt.Sub(s.cycleStamp)
	if elapsed < m.minRTT {
		return
	}
	s.cycleIndex = (s.cycleIndex + 1) % bbrGainCycleLength
	s.cycleStamp = rs.DeliveredAt
}

// checkProbeRTTEntry enters PROBE_RTT once the 10s min-RTT window has
// expired without a qualifying replacement sample, unless we are
// restarting from idle (spec.md §4.3: "triggered when ... we are not
// restarting from idle").
func (s *bbrStateMachine) checkProbeRTTEntry(m *bbrModel, now monotime.Time) {
	if s.mode == bbrProbeRTT || s.idleRestart {
		return
	}
	if !m.minRTTFilterExpired(now) {
		return
	}
	s.mode = bbrProbeRTT
	s.probeRTTRoundDone = false
	s.probeRTTDoneStamp = monotime.Time{}
}

// handleProbeRTT clamps cwnd at the floor for probeRTTDuration once
// in-flight has drained to it, then exits back to PROBE_BW (or STARTUP if
// the pipe was never found to be full) — spec.md §4.3.
func (s *bbrStateMachine) handleProbeRTT(m *bbrModel, now monotime.Time, inFlight, cwnd protocol.ByteCount) {
	target := protocol.ByteCount(bbrCwndMinTargetPackets) * protocol.DefaultTCPMSS
	if inFlight > target {
		s.probeRTTDoneStamp = monotime.Time{}
		return
	}
	if s.probeRTTDoneStamp.IsZero() {
		s.probeRTTDoneStamp = now.Add(probeRTTDuration)
		s.probeRTTRoundDone = false
		return
	}
	if !s.probeRTTRoundDone && m.roundStart {
		s.probeRTTRoundDone = true
	}
	if s.probeRTTRoundDone && !now.Before(s.probeRTTDoneStamp) {
		if m.fullBWReached {
			s.enterProbeBW()
		} else {
			s.mode = bbrStartup
		}
	}
}

// pickGains sets pacing_gain/cwnd_gain for the current mode, applying the
// LT estimator's forced-unity-gain override when it holds the bandwidth
// estimate locked (spec.md §4.4).
func (s *bbrStateMachine) pickGains(m *bbrModel) {
	switch s.mode {
	case bbrStartup:
		s.pacingGain = bbrHighGain
		s.cwndGain = bbrHighGain
	case bbrDrain:
		s.pacingGain = bbrDrainGain
		s.cwndGain = bbrHighGain
	case bbrProbeBW:
		if m.lt.useBW {
			s.pacingGain = bbrUnitGain
		} else {
			s.pacingGain = bbrPacingGainCycle[s.cycleIndex]
		}
		s.cwndGain = bbrCwndGainProbeBW
	case bbrProbeRTT:
		s.pacingGain = bbrUnitGain
		s.cwndGain = bbrUnitGain
	}
}

// onIdleRestart marks that the connection was idle and applies spec.md
// §4.8's TX-start-while-app-limited effect: "re-pace at filtered max at
// gain 1.0 (PROBE_BW) or finalize PROBE_RTT exit (PROBE_RTT)". In
// PROBE_BW this forces pacing_gain/cwnd_gain back to unity rather than
// leaving whatever aggressive/conservative phase the gain cycle was in
// when traffic stopped; in PROBE_RTT it completes the exit immediately
// instead of waiting out the normal drain-and-hold sequence, since that
// sequence assumes in-flight data that idle restart doesn't have.
func (s *bbrStateMachine) onIdleRestart(m *bbrModel) {
	s.idleRestart = true
	switch s.mode {
	case bbrProbeBW:
		s.pacingGain = bbrUnitGain
		s.cwndGain = bbrUnitGain
	case bbrProbeRTT:
		s.probeRTTDoneStamp = monotime.Time{}
		s.probeRTTRoundDone = false
		if m.fullBWReached {
			s.enterProbeBW()
			s.pacingGain = bbrUnitGain
			s.cwndGain = bbrUnitGain
		} else {
			s.mode = bbrStartup
			s.pacingGain = bbrHighGain
			s.cwndGain = bbrHighGain
		}
	}
}
