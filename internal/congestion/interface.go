// Package congestion implements the sender-side congestion-control engine
// specified in spec.md: BBRv1 plus the R-TCP bucket/rate detector and cap
// & probe controller overlaid on top of it. All state in this package is
// per-connection (spec.md §3 "Lifecycle"); there is no cross-connection
// coordination (spec.md §5).
package congestion

import (
	"time"

	"github.com/mclab-cuhk/rtcp-go/internal/monotime"
	"github.com/mclab-cuhk/rtcp-go/internal/protocol"
)

// Clock abstracts wall/monotonic time so tests can control it without
// sleeping. Grounded on the Clock seam prague_sender.go and the
// other_examples cubic senders both take as a constructor argument.
type Clock interface {
	Now() monotime.Time
}

// realClock is the production Clock, backed by the runtime's monotonic
// clock reading.
type realClock struct{}

func (realClock) Now() monotime.Time { return monotime.Now() }

// RealClock is the Clock implementation used outside of tests.
var RealClock Clock = realClock{}

// SendAlgorithm is the fixed, tagged set of operations the transport
// invokes the core through (spec.md §6 "Event callbacks expected"),
// implemented as an interface rather than function pointers with hidden
// state (spec.md §9 "Dynamic dispatch"). Grounded on the SendAlgorithm
// interface referenced by prague_sender.go (`var _ SendAlgorithm =
// &pragueSender{}`) and defined in full in
// other_examples/2b66a3fd_kalelpida-quic-go__internal-congestion-cubic_sender.go.go.
type SendAlgorithm interface {
	// TimeUntilSend returns when the next packet may be sent, given the
	// current number of bytes in flight. The pacing scheduler that
	// actually times departures is an external collaborator (spec.md §1);
	// this only reports the deadline.
	TimeUntilSend(bytesInFlight protocol.ByteCount) monotime.Time
	// HasPacingBudget reports whether at least one full-sized datagram
	// could be sent right now without violating the pacing rate.
	HasPacingBudget(now monotime.Time) bool
	// CanSend reports whether bytesInFlight is within the congestion
	// window.
	CanSend(bytesInFlight protocol.ByteCount) bool
	// OnPacketSent records that a packet was sent, for pacer bookkeeping.
	OnPacketSent(sentTime monotime.Time, bytesInFlight protocol.ByteCount, packetNumber protocol.PacketNumber, bytes protocol.ByteCount, isRetransmittable bool)
	// MaybeExitSlowStart gives the sender a chance to leave slow start
	// without waiting for the next rate sample (e.g. on an ECN-free
	// plateau check from the transport's own loop).
	MaybeExitSlowStart()
	// OnCongestionEvent is the loss-entry event hook (spec.md §4.8).
	OnCongestionEvent(packetNumber protocol.PacketNumber, lostBytes, priorInFlight protocol.ByteCount)
	// OnRetransmissionTimeout resets state after an RTO.
	OnRetransmissionTimeout(packetsRetransmitted bool)
	// SetMaxDatagramSize updates the MSS used for BDP/cwnd math. MSS is a
	// stable per-connection scalar (spec.md Non-goals: "modeling variable
	// MSS"), so this may only ever increase.
	SetMaxDatagramSize(protocol.ByteCount)
}

// SendAlgorithmWithDebugInfos adds the read-only queries the transport
// uses for logging and ssthresh/cwnd-undo decisions (spec.md §6).
// Grounded on the same interface name in prague_sender.go and the
// cubic_sender examples.
type SendAlgorithmWithDebugInfos interface {
	SendAlgorithm
	InSlowStart() bool
	InRecovery() bool
	GetCongestionWindow() protocol.ByteCount
}

// timeUntilSend converts a Bandwidth-derived interval into a monotime
// deadline. Neither the pacer nor BBRSender calls it.
func timeUntilSend(now monotime.Time, d time.Duration) monotime.Time {
	return now.Add(d)
}
