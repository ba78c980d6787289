package congestion

import (
	"fmt"

	"github.com/mclab-cuhk/rtcp-go/internal/monotime"
	"github.com/mclab-cuhk/rtcp-go/internal/protocol"
	"github.com/mclab-cuhk/rtcp-go/internal/utils"
	"github.com/mclab-cuhk/rtcp-go/logging"
)

const (
	// bbrInitialCwndPackets is the starting congestion window, in packets.
	// Not specified by spec.md (silent on the exact initial value); chosen
	// to match the conventional BBR/TCP default rather than invent a new
	// constant.
	bbrInitialCwndPackets = 10
	// defaultTSOSegsGoal is the flat tso_segs_goal spec.md §4.7's
	// quantization_budget adds 3x of. Spec.md treats TSO sizing as an
	// external scheduler concern (§1 non-goal), so this is a fixed
	// placeholder rather than a modeled quantity.
	defaultTSOSegsGoal = 1
)

// BBRSender is the control loop driver: spec.md §3's per-connection
// control block, plus the orchestration described in §4.7/§4.8 that spans
// the path model, state machine, and detector. It implements
// SendAlgorithm/SendAlgorithmWithDebugInfos for the transport, and adds
// OnRateSample/OnIdleRestart/OnSpuriousLossUndo as the BBR-specific
// extensions beyond that generic interface — the same shape
// prague_sender.go uses for its own OnECNFeedback extension.
type BBRSender struct {
	clock     Clock
	rttStats  *utils.RTTStats
	connStats *utils.ConnectionStats
	cfg       *Config

	model bbrModel
	state bbrStateMachine

	// detector is an owned optional (spec.md §9): nil means plain BBR,
	// the R-TCP overlay is absent or was disabled at construction.
	detector *rtcpDetector

	maxDatagramSize  protocol.ByteCount
	congestionWindow protocol.ByteCount
	priorCwnd        protocol.ByteCount

	pacer *pacer

	largestSentPacketNumber  protocol.PacketNumber
	largestAckedPacketNumber protocol.PacketNumber
	largestSentAtLastCutback protocol.PacketNumber

	inRecovery   bool
	prevCAState  protocol.CAState
	ssthresh     protocol.ByteCount

	tsoSegsGoal int

	lastInFlight protocol.ByteCount

	tracer *logging.ConnectionTracer
}

// SetTracer installs (or clears, with nil) the diagnostic callback set
// (spec.md §6 "Event callbacks expected" / §7 "optional log channel").
func (b *BBRSender) SetTracer(t *logging.ConnectionTracer) { b.tracer = t }

var (
	_ SendAlgorithm               = &BBRSender{}
	_ SendAlgorithmWithDebugInfos = &BBRSender{}
)

// NewBBRSender constructs a BBRSender. When enableRTCP is true, the
// detector is allocated and the cap & probe controller is live from the
// start of the transfer (spec.md §4.5: "runs alongside BBR from the
// start of a transfer"). When false, the detector is left nil: the
// sender runs as plain BBRv1 (spec.md §7 "allocation failure ... core
// still operates as plain BBR").
func NewBBRSender(
	clock Clock,
	rttStats *utils.RTTStats,
	connStats *utils.ConnectionStats,
	cfg *Config,
	initialMaxDatagramSize protocol.ByteCount,
	enableRTCP bool,
) *BBRSender {
	return newBBRSender(clock, rttStats, connStats, cfg, initialMaxDatagramSize, enableRTCP)
}

func newBBRSender(
	clock Clock,
	rttStats *utils.RTTStats,
	connStats *utils.ConnectionStats,
	cfg *Config,
	initialMaxDatagramSize protocol.ByteCount,
	enableRTCP bool,
) *BBRSender {
	b := &BBRSender{
		clock:           clock,
		rttStats:        rttStats,
		connStats:       connStats,
		cfg:             cfg,
		model:           newBBRModel(),
		state:           newBBRStateMachine(),
		maxDatagramSize: initialMaxDatagramSize,
		tsoSegsGoal:     defaultTSOSegsGoal,
		ssthresh:        protocol.MaxByteCount,
	}
	b.congestionWindow = protocol.ByteCount(bbrInitialCwndPackets) * initialMaxDatagramSize
	b.pacer = newPacer(b.BandwidthEstimate)
	if enableRTCP {
		b.detector = newRTCPDetector(cfg, clock.Now())
	}
	return b
}

// SendAlgorithm interface implementation.

func (b *BBRSender) TimeUntilSend(bytesInFlight protocol.ByteCount) monotime.Time {
	return b.pacer.TimeUntilSend()
}

func (b *BBRSender) HasPacingBudget(now monotime.Time) bool {
	return b.pacer.Budget(now) >= b.maxDatagramSize
}

func (b *BBRSender) OnPacketSent(
	sentTime monotime.Time,
	bytesInFlight protocol.ByteCount,
	packetNumber protocol.PacketNumber,
	bytes protocol.ByteCount,
	isRetransmittable bool,
) {
	if bytesInFlight == 0 {
		b.OnIdleRestart(sentTime)
	}
	b.pacer.SentPacket(sentTime, bytes)
	if !isRetransmittable {
		return
	}
	if packetNumber > b.largestSentPacketNumber {
		b.largestSentPacketNumber = packetNumber
	}
}

func (b *BBRSender) CanSend(bytesInFlight protocol.ByteCount) bool {
	return bytesInFlight < b.congestionWindow
}

// MaybeExitSlowStart is a no-op for BBR: STARTUP is left only via the
// plateau detector (checkFullPipe, driven from OnRateSample), not an
// out-of-band signal. Kept to satisfy SendAlgorithm.
func (b *BBRSender) MaybeExitSlowStart() {}

// OnCongestionEvent is the loss-entry event hook (spec.md §4.7, §4.8).
func (b *BBRSender) OnCongestionEvent(packetNumber protocol.PacketNumber, lostBytes, priorInFlight protocol.ByteCount) {
	if packetNumber <= b.largestSentAtLastCutback {
		return // already responded to this loss
	}
	b.largestSentAtLastCutback = b.largestSentPacketNumber

	b.priorCwnd = b.congestionWindow
	b.state.packetConservation = true
	b.inRecovery = true

	now := b.clock.Now()
	b.model.forceRoundBoundary(b.model.nextRoundDelivered)
	b.model.fullBW = 0
	b.model.fullBWCount = 0
	b.model.lt.onRateSample(&RateSample{Losses: 1, DeliveredAt: now}, true, b.maxDatagramSize)
	b.connStats.OnPacketLost(lostBytes, b.InSlowStart())

	// cwnd := in_flight + acked (spec.md §4.7); this callback carries no
	// acked-bytes parameter, so acked is taken as 0 here — the next
	// OnRateSample's growth step applies any acked bytes from this same
	// round on top.
	newCwnd := priorInFlight
	if min := b.minCongestionWindow(); newCwnd < min {
		newCwnd = min
	}
	b.congestionWindow = newCwnd
	b.ssthresh = b.congestionWindow
}

func (b *BBRSender) OnRetransmissionTimeout(packetsRetransmitted bool) {
	if !packetsRetransmitted {
		return
	}
	b.largestSentAtLastCutback = protocol.InvalidPacketNumber
	b.congestionWindow = b.minCongestionWindow()
}

func (b *BBRSender) SetMaxDatagramSize(maxDatagramSize protocol.ByteCount) {
	if maxDatagramSize < b.maxDatagramSize {
		panic(fmt.Sprintf("congestion BUG: decreasing max datagram size from %d to %d", b.maxDatagramSize, maxDatagramSize))
	}
	cwndAtMin := b.congestionWindow == b.minCongestionWindow()
	b.maxDatagramSize = maxDatagramSize
	b.pacer.SetMaxDatagramSize(maxDatagramSize)
	if cwndAtMin {
		b.congestionWindow = b.minCongestionWindow()
	}
}

// SendAlgorithmWithDebugInfos interface implementation.

func (b *BBRSender) InSlowStart() bool { return b.state.mode == bbrStartup }
func (b *BBRSender) InRecovery() bool  { return b.inRecovery }
func (b *BBRSender) GetCongestionWindow() protocol.ByteCount { return b.congestionWindow }

// Ssthresh returns the ssthresh value reported to the transport on loss
// entry (spec.md §6 "Provided to transport"). BBR doesn't gate anything
// on it internally; it's maintained purely for transports that expect
// one.
func (b *BBRSender) Ssthresh() protocol.ByteCount { return b.ssthresh }

// OnRateSample is the main per-sample driver (spec.md §1/§4): the
// transport hands it a closed rate sample plus the scalars spec.md §6
// lists alongside it (current in-flight bytes and CA state). It runs the
// path model, the state machine, the detector, and the cwnd setter in
// that order, matching §4.2's "run before the state machine and detector
// see the sample" ordering.
func (b *BBRSender) OnRateSample(rs *RateSample, inFlight protocol.ByteCount, caState protocol.CAState) {
	if !rs.valid() {
		return // spec.md §7 "Invalid sample": silently skip
	}
	b.lastInFlight = inFlight
	if rs.SndUna == 0 {
		rs.SndUna = rs.Delivered
	}

	// Seed the windowed min-RTT filter from the transport's own RTT
	// estimator (spec.md §1 treats RTT measurement as the transport's job)
	// the first time a sample arrives, the same way cubic_sender.go reads
	// rttStats.MinRTT() rather than starting cold — after this, the
	// windowed filter (bbr_model.go) is authoritative and rttStats is never
	// written back to.
	if b.model.minRTT == 0 {
		if seed := b.rttStats.MinRTT(); seed > 0 {
			b.model.minRTT = seed
			b.model.minRTTStamp = rs.DeliveredAt
		}
	}

	b.handleCAStateTransition(caState)

	mss := b.maxDatagramSize
	wasLTUsing := b.model.lt.useBW
	modeBefore := b.state.mode
	upperBoundBefore, nominatorBefore := 0, 0
	if b.detector != nil {
		upperBoundBefore, nominatorBefore = b.detector.upperBound, b.detector.nominator
	}

	b.model.onRateSample(rs, mss)
	if b.model.roundStart {
		b.state.packetConservation = false
	}
	b.state.advance(&b.model, rs, mss, inFlight, b.congestionWindow)

	if b.detector != nil {
		excluded := (b.cfg.ExcludeAppLimited.Load() && rs.IsAppLimited)
		if excluded {
			b.detector.reset(rs.DeliveredAt, rs.Delivered, rs.Lost, resetReasonAppLimited)
		} else {
			b.detector.onRateSample(rs, b.model.minRTT)
			if b.detector.resetLTBWFlag {
				b.model.lt.reset()
				b.detector.resetLTBWFlag = false
			}
		}
		if b.state.mode == bbrProbeBW && b.model.roundStart {
			if b.detector.onProbeBWRound() {
				b.state.cycleIndex = 0
				b.state.cycleStamp = rs.DeliveredAt
			}
		}
	}

	b.updateCongestionWindow(rs)
	b.traceTransitions(modeBefore, wasLTUsing, upperBoundBefore, nominatorBefore)
}

// traceTransitions emits the optional diagnostic events spec.md §7
// describes ("all diagnostic output is through the optional log
// channel") by diffing state observed before/after this sample against
// what it is now.
func (b *BBRSender) traceTransitions(modeBefore bbrMode, wasLTUsing bool, upperBoundBefore, nominatorBefore int) {
	if b.tracer == nil {
		return
	}
	if b.state.mode != modeBefore && b.tracer.ModeTransition != nil {
		b.tracer.ModeTransition(modeBefore.String(), b.state.mode.String())
	}
	if !wasLTUsing && b.model.lt.useBW && b.tracer.LTEstimatorCommitted != nil {
		b.tracer.LTEstimatorCommitted(int64(bwToBytesPerSecond(b.model.lt.bw, b.maxDatagramSize)))
	}
	if b.detector == nil {
		return
	}
	if upperBoundBefore != 1 && b.detector.upperBound == 1 && b.tracer.CapEngaged != nil {
		b.tracer.CapEngaged(int64(b.detector.capRate(b.maxDatagramSize)))
	}
	if upperBoundBefore == 1 && b.detector.upperBound != 1 && b.tracer.CapSuspended != nil {
		b.tracer.CapSuspended()
	}
	if nominatorBefore == 0 && b.detector.nominator == 1 && b.tracer.ProbeStarted != nil {
		b.tracer.ProbeStarted(b.detector.roundCount)
	}
}

// handleCAStateTransition mirrors spec.md §3.B's prev_ca_state field:
// restoring cwnd to max(cwnd, prior_cwnd) on exit from Recovery/Loss
// (spec.md §4.7 "Exiting Recovery restores max(cwnd, prior_cwnd)").
func (b *BBRSender) handleCAStateTransition(caState protocol.CAState) {
	wasRecovering := b.prevCAState == protocol.CAStateRecovery || b.prevCAState == protocol.CAStateLoss
	isRecovering := caState == protocol.CAStateRecovery || caState == protocol.CAStateLoss
	if wasRecovering && !isRecovering {
		b.inRecovery = false
		if b.congestionWindow < b.priorCwnd {
			b.congestionWindow = b.priorCwnd
		}
	}
	b.prevCAState = caState
}

// modelBW returns the bandwidth the state machine should pace/size cwnd
// against: the LT estimate while it holds the estimate locked, otherwise
// the filtered max (spec.md §3 invariant: "exactly one of lt_use_bw ...
// holds").
func (b *BBRSender) modelBW() scaledBW {
	if b.model.lt.useBW {
		return b.model.lt.bw
	}
	return b.model.maxBW()
}

// targetCwnd computes slow-start/steady-state's sizing target (spec.md
// §4.7): BDP at the current cwnd_gain, plus the ACK-aggregation
// compensation, run through quantization_budget.
func (b *BBRSender) targetCwnd() protocol.ByteCount {
	bdp := bdpFromBW(b.modelBW(), b.model.minRTT, b.state.cwndGain, b.maxDatagramSize)
	return b.quantizationBudget(bdp + b.model.aggregationCwnd())
}

// quantizationBudget implements spec.md §4.7's budget padding: add
// 3·tso_segs_goal segments, round up to an even segment count, and add 2
// more while cycling through PROBE_BW's phase 0.
func (b *BBRSender) quantizationBudget(c protocol.ByteCount) protocol.ByteCount {
	mss := b.maxDatagramSize
	segs := (c + mss - 1) / mss
	segs += protocol.ByteCount(3 * b.tsoSegsGoal)
	if segs%2 != 0 {
		segs++
	}
	if b.state.mode == bbrProbeBW && b.state.cycleIndex == 0 {
		segs += 2
	}
	return segs * mss
}

// minCongestionWindow is the floor cwnd may never fall below (spec.md
// §6's MinCongestionWindowPackets).
func (b *BBRSender) minCongestionWindow() protocol.ByteCount {
	return protocol.ByteCount(protocol.MinCongestionWindowPackets) * b.maxDatagramSize
}

// updateCongestionWindow implements spec.md §4.7's slow-start/steady-state
// growth and PROBE_RTT's clamp.
func (b *BBRSender) updateCongestionWindow(rs *RateSample) {
	if b.state.mode == bbrProbeRTT {
		b.congestionWindow = protocol.ByteCount(bbrCwndMinTargetPackets) * b.maxDatagramSize
		return
	}
	if b.inRecovery {
		return // cwnd already cut by OnCongestionEvent; grown again only on exit
	}

	target := b.targetCwnd()
	if !b.model.fullBWReached {
		b.congestionWindow += rs.AckedSacked
	} else if b.congestionWindow < target {
		b.congestionWindow += rs.AckedSacked
		if b.congestionWindow > target {
			b.congestionWindow = target
		}
	}
	if min := b.minCongestionWindow(); b.congestionWindow < min {
		b.congestionWindow = min
	}
}

// BandwidthEstimate is the pacer's rate source: the modeled bandwidth at
// the current pacing_gain, margined and mss-converted (spec.md §4.1),
// capped by the detector's cap_rate when the R-TCP overlay has locked in
// (spec.md §4.6, P7).
func (b *BBRSender) BandwidthEstimate() Bandwidth {
	gained := applyGain(b.modelBW(), b.state.pacingGain)
	rate := bwToBytesPerSecond(gained, b.maxDatagramSize)
	if b.detector == nil {
		return rate
	}
	if cap := b.detector.capRate(b.maxDatagramSize); cap < rate {
		return cap
	}
	return rate
}

// OnIdleRestart is the TX-start-while-app-limited event hook (spec.md
// §4.8): mark idle_restart, restart the ACK-aggregation epoch, re-pace at
// the filtered max at gain 1.0, and let PROBE_RTT know a fresh round is
// starting rather than a resumed one.
func (b *BBRSender) OnIdleRestart(now monotime.Time) {
	b.state.onIdleRestart(&b.model)
	b.model.ackEpochTime = monotime.Time{}
	b.model.ackEpochAcked = 0
	if b.detector != nil {
		// Detector resets its transfer origin (spec.md §4.8); the
		// delivered/lost counters it would also reset aren't available at
		// this callback (OnPacketSent carries no delivery counters), so
		// only the timestamp origin is restamped here.
		b.detector.bbrStartStamp = now
	}
}

// OnSpuriousLossUndo is the spurious-loss-undo event hook (spec.md §4.8):
// reset the full-pipe plateau detector and the LT estimator, and return
// the (unmodified) current cwnd — spec.md is explicit that no undo
// adjustment beyond resetting detectors applies.
func (b *BBRSender) OnSpuriousLossUndo() protocol.ByteCount {
	b.model.fullBW = 0
	b.model.fullBWCount = 0
	b.model.lt.reset()
	return b.congestionWindow
}
