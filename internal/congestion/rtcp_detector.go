package congestion

import (
	"time"

	"github.com/mclab-cuhk/rtcp-go/internal/monotime"
	"github.com/mclab-cuhk/rtcp-go/internal/protocol"
)

// rtcpGridSize is N in spec.md §3.C: the candidate (bucket, rate) grid
// size.
const rtcpGridSize = 9

// rtcpPercentVector is the fixed percent vector p = [8/8, 7/8, ..., 1/8,
// 0], scaled by basedScale (spec.md §3.C, §4.5). With the zero entry at
// index rtcpGridSize-1, buildCandidates' B formula keeps only its
// lower-bound term there, so B[rtcpGridSize-1] is
// before_loss_delivered*(basedUnit-abruptDecreaseThresh)/basedUnit, the
// smallest bucket candidate, not zero (see DESIGN.md Open Question 1).
var rtcpPercentVector = func() [rtcpGridSize]uint64 {
	var p [rtcpGridSize]uint64
	for i := range p {
		p[i] = uint64(rtcpGridSize-1-i) * basedUnit / (rtcpGridSize - 1)
	}
	return p
}()

// sustainedLossArmRTTs is the "7·min_rtt" threshold spec.md §4.5 step 2
// requires before the detector will compute goodput/candidates off a
// sustained-loss window.
const sustainedLossArmRTTs = 7

// candidateStableRTTs is the "> 10·min_rtt unchanged" stability
// requirement spec.md §4.5 step 5 imposes before classify may commit.
const candidateStableRTTs = 10

// classify values (spec.md §3.C).
const (
	classifyNone      = 0 // not classified
	classifyDetected  = 1 // rate-limited (locked)
	classifyDismissed = 2 // disclassified
)

// Reset reason codes, diagnostic-only per DESIGN.md Open Question 3 —
// they never feed back into comp or classification transitions.
const (
	resetReasonNone          = 0
	resetReasonHighLossNoAbr = 5
	resetReasonRTO           = 6
	resetReasonRWND          = 7
	resetReasonAppLimited    = 8
	resetReasonIdleRestart   = 9
	resetReasonExplicit      = 10
)

// rtcpDetector is sub-record C of spec.md §3, the "PMODRL" bucket/rate
// estimator. It is owned exclusively by the enclosing sender and may be
// absent (spec.md §9 "owned optional"): a nil *rtcpDetector anywhere in
// this package means "plain BBR, no R-TCP overlay", matching spec.md §7
// "allocation failure ... core still operates as plain BBR."
//
// Grounded on spec.md §4.5/§3.C; no file in the pack implements a
// token-bucket detector (this is the spec's novel contribution), so the
// candidate-grid/percent-vector machinery below is a direct,
// carefully-commented transcription of the algorithm as specified, in
// the same struct-of-fixed-arrays shape prague_sender.go uses for its
// own per-connection auxiliary state.
type rtcpDetector struct {
	cfg *Config

	b [rtcpGridSize]protocol.ByteCount // B[i], bucket-size candidates
	r [rtcpGridSize]scaledBW           // R[i], sustained-rate candidates

	bestIndex int
	classify  int
	lastResetReason int

	highLossFlag bool

	lossStartStamp      monotime.Time
	beforeLossDelivered  protocol.ByteCount
	beforeLossStamp      monotime.Time
	beforeLossLost       protocol.ByteCount
	befEmptyGoodput      scaledBW

	bbrStartStamp          monotime.Time
	transferStartDelivered protocol.ByteCount
	transferStartLost      protocol.ByteCount

	candidateSinceStamp monotime.Time
	memB                protocol.ByteCount
	memR                scaledBW

	upperBound int // 0 = inactive, 1 = cap active, 2 = cap suspended
	nominator  int // 0 or 1; selects probe gain

	roundCount   int
	roundCountNo int

	detectedTime        monotime.Time
	detectedBytesAcked  protocol.ByteCount

	resetLTBWFlag bool
}

// newRTCPDetector allocates a detector and initializes its transfer
// origin. cfg must outlive the detector (it is the process-wide,
// lock-free tunable surface, spec.md §5).
func newRTCPDetector(cfg *Config, now monotime.Time) *rtcpDetector {
	d := &rtcpDetector{cfg: cfg}
	d.initOrigin(now, 0, 0)
	return d
}

func (d *rtcpDetector) initOrigin(now monotime.Time, delivered, lost protocol.ByteCount) {
	d.bbrStartStamp = now
	d.transferStartDelivered = delivered
	d.transferStartLost = lost
}

// onRateSample runs the detector's full per-sample pipeline (spec.md
// §4.5 steps 1-5). minRTT is the path model's current min-RTT estimate.
// now is always rs.DeliveredAt — threaded through explicitly (rather than
// read from the wall clock inside selectBest/classifyStep) so the whole
// pipeline stays driven off the sample timeline, the same way
// bbr_model.go/bbr_state.go/lt_bandwidth.go do.
func (d *rtcpDetector) onRateSample(rs *RateSample, minRTT time.Duration) {
	now := rs.DeliveredAt
	d.snapshotPreEmpty(rs)
	armed := d.armOnSustainedLoss(rs, minRTT)
	d.refineCandidates(rs)
	if armed {
		d.selectBest(minRTT, now)
		d.classifyStep(minRTT, now)
	}
}

// snapshotPreEmpty implements spec.md §4.5 step 1: each time the loss
// counter doesn't advance between samples, snapshot the pre-empty point.
func (d *rtcpDetector) snapshotPreEmpty(rs *RateSample) {
	if rs.Losses == 0 {
		d.beforeLossDelivered = rs.Delivered
		d.beforeLossStamp = rs.DeliveredAt
		d.beforeLossLost = rs.Lost
		return
	}
	if d.lossStartStamp.IsZero() {
		d.lossStartStamp = rs.DeliveredAt
	}
}

// armOnSustainedLoss implements spec.md §4.5 step 2. Returns whether the
// detector is "armed" this sample: the held high_loss_flag while no loss
// window is open or it is younger than 7·min_rtt, true when the window
// passes the loss threshold, and false when it does not (even if
// high_loss_flag is held from a prior arm).
func (d *rtcpDetector) armOnSustainedLoss(rs *RateSample, minRTT time.Duration) bool {
	if d.lossStartStamp.IsZero() || minRTT <= 0 {
		return d.highLossFlag
	}
	if rs.DeliveredAt.Sub(d.lossStartStamp) < time.Duration(sustainedLossArmRTTs)*minRTT {
		return d.highLossFlag
	}

	delivered, lost := d.deliveredSinceBucketEmpty(rs)
	total := delivered + lost
	if total <= 0 || lost*basedUnit/total < lossThresh {
		d.lossStartStamp = monotime.Time{}
		return false
	}

	d.highLossFlag = true
	elapsedBeforeLoss := d.beforeLossStamp.Sub(d.bbrStartStamp)
	d.befEmptyGoodput = rateSampleToScaledBW(d.beforeLossDelivered, elapsedBeforeLoss)
	d.buildCandidates(rs, delivered)
	return true
}

// deliveredSinceBucketEmpty picks the delivery counter spec.md §6's
// use_goodput tunable selects (SndUna vs. Delivered, both bytes), and the loss
// counter since the pre-empty snapshot.
func (d *rtcpDetector) deliveredSinceBucketEmpty(rs *RateSample) (delivered, lost protocol.ByteCount) {
	deliveredCounter := rs.Delivered
	if d.cfg != nil && d.cfg.UseGoodput.Load() {
		deliveredCounter = rs.SndUna
	}
	delivered = deliveredCounter - d.beforeLossDelivered
	lost = rs.Lost - d.beforeLossLost
	return
}

// buildCandidates implements spec.md §4.5 step 2's B[i]/R[i] formulas.
func (d *rtcpDetector) buildCandidates(rs *RateSample, delivered protocol.ByteCount) {
	lowerBoundScale := uint64(basedUnit - abruptDecreaseThresh)
	for i := 0; i < rtcpGridSize; i++ {
		p := rtcpPercentVector[i]
		d.b[i] = protocol.ByteCount(
			uint64(d.beforeLossDelivered)*p/basedUnit +
				(basedUnit-p)*uint64(d.beforeLossDelivered)*lowerBoundScale/(basedUnit*basedUnit),
		)
	}
	elapsed := rs.DeliveredAt.Sub(d.bbrStartStamp)
	for i := 0; i < rtcpGridSize; i++ {
		scaledDelivered := scaledBW(uint64(delivered) << bwScale)
		scaledB := scaledBW(uint64(d.b[i]) << bwScale)
		if scaledDelivered <= scaledB {
			continue
		}
		candidate := rateSampleToScaledBW(protocol.ByteCount(uint64(scaledDelivered-scaledB)>>bwScale), elapsed)
		if candidate > d.r[i] {
			d.r[i] = candidate
		}
	}
}

// refineCandidates implements spec.md §4.5 step 3: every subsequent
// sample updates R[i] for candidates the current delivered count has
// outgrown.
func (d *rtcpDetector) refineCandidates(rs *RateSample) {
	if !d.highLossFlag {
		return
	}
	elapsed := rs.DeliveredAt.Sub(d.bbrStartStamp)
	if elapsed <= 0 {
		return
	}
	scaledDelivered := scaledBW(uint64(rs.Delivered) << bwScale)
	for i := 0; i < rtcpGridSize; i++ {
		scaledB := scaledBW(uint64(d.b[i]) << bwScale)
		if scaledDelivered <= scaledB {
			continue
		}
		candidate := rateSampleToScaledBW(protocol.ByteCount(uint64(scaledDelivered-scaledB)>>bwScale), elapsed)
		if candidate > d.r[i] {
			d.r[i] = candidate
		}
	}
}

// selectBest implements spec.md §4.5 step 4 (`comp`): advance best_index
// from 0 while adjacent candidates are too close to distinguish, and
// re-grow the grid if the winner ends up at index 0 (the grid has been
// outgrown).
func (d *rtcpDetector) selectBest(minRTT time.Duration, now monotime.Time) {
	for {
		best := 0
		for i := 1; i < rtcpGridSize; i++ {
			if d.r[i] == d.r[best] || d.tooCloseToDistinguish(i, best, now) {
				best = i
				continue
			}
			break
		}
		if best != 0 {
			d.bestIndex = best
			return
		}
		// Winner is index 0: the grid has been outgrown (DESIGN.md Open
		// Question 2 — growGrid's shift loop ends with i == 0, so the
		// synthesized candidate lands at index 0).
		d.growGrid()
	}
}

// tooCloseToDistinguish implements the `comp` advance condition:
// |B[i]-B[best]| / |R[i]-R[best]| ≤ flow_len_us / 2. now is the sample's
// DeliveredAt, not the wall clock — flow_len is measured against the
// sample timeline so the grid-distinguishing threshold stays reproducible
// under mockClock.
func (d *rtcpDetector) tooCloseToDistinguish(i, best int, now monotime.Time) bool {
	dr := int64(d.r[i]) - int64(d.r[best])
	if dr == 0 {
		return true
	}
	if dr < 0 {
		dr = -dr
	}
	db := int64(d.b[i]) - int64(d.b[best])
	if db < 0 {
		db = -db
	}
	flowLenUs := now.Sub(d.bbrStartStamp).Microseconds()
	return db/dr <= flowLenUs/2
}

// growGrid implements spec.md §4.5 step 4's grid-shift branch: shift
// right by one (dropping the lowest-B entry), and synthesize a new
// leftmost candidate with an enlarged B and R=0. The synthesized
// candidate is stored at the loop-terminal index `i`, which the
// downward shift loop leaves at 0, so it becomes the new B[0]/R[0]
// (DESIGN.md Open Question 2).
func (d *rtcpDetector) growGrid() {
	gap := d.b[0] - d.b[1]
	if gap < 0 {
		gap = 0
	}
	var i int
	for i = rtcpGridSize - 1; i > 0; i-- {
		d.b[i] = d.b[i-1]
		d.r[i] = d.r[i-1]
	}
	d.b[i] = d.b[0] + gap
	d.r[i] = 0
}

// classifyStep implements spec.md §4.5 step 5's classification
// transitions (invariant: 0→1, 0→2, 1→2 only; spec.md §3 invariant,
// P6).
func (d *rtcpDetector) classifyStep(minRTT time.Duration, now monotime.Time) {
	best := d.r[d.bestIndex]
	abruptDecrease := uint64(best)*basedUnit <= abruptDecreaseThresh*uint64(d.befEmptyGoodput)

	if d.classify == classifyDetected && !abruptDecrease {
		d.classify = classifyDismissed
		d.lastResetReason = resetReasonHighLossNoAbr
		return
	}

	if d.classify != classifyNone {
		return
	}
	if !d.highLossFlag || !abruptDecrease {
		return
	}

	if d.memB != d.b[d.bestIndex] || d.memR != d.r[d.bestIndex] {
		d.memB = d.b[d.bestIndex]
		d.memR = d.r[d.bestIndex]
		d.candidateSinceStamp = now
		return
	}
	if d.candidateSinceStamp.IsZero() || minRTT <= 0 {
		return
	}
	if now.Sub(d.candidateSinceStamp) <= time.Duration(candidateStableRTTs)*minRTT {
		return
	}

	d.classify = classifyDetected
	d.upperBound = 1
	d.detectedTime = now
	d.detectedBytesAcked = d.b[d.bestIndex]
	if !d.resetLTBWFlag {
		d.resetLTBWFlag = true
	}
}

// reset restores the detector to its pre-transfer state, recording reason
// for diagnostics only (DESIGN.md Open Question 3) — it is never read by
// comp or classifyStep.
func (d *rtcpDetector) reset(now monotime.Time, delivered, lost protocol.ByteCount, reason int) {
	preservedClassify := d.classify
	*d = rtcpDetector{cfg: d.cfg}
	d.classify = preservedClassify
	d.lastResetReason = reason
	d.initOrigin(now, delivered, lost)
}
