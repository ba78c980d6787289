package congestion

import (
	"time"

	"github.com/mclab-cuhk/rtcp-go/internal/monotime"
	"github.com/mclab-cuhk/rtcp-go/internal/protocol"
)

// RateSample summarizes what was delivered/lost/acked in the interval a
// single ACK closed. Building it is the transport's job (spec.md §1: ACK
// parsing, loss accounting, and RTT measurement are all external
// collaborators) — this struct is simply the wire between that and the
// control loop's per-sample driver, OnRateSample. Field set matches
// spec.md §6 "Consumed from transport (per sample)" exactly.
type RateSample struct {
	// Delivered is the lifetime count of bytes delivered so far,
	// including this sample.
	Delivered protocol.ByteCount
	// Lost is the lifetime count of bytes declared lost so far.
	Lost protocol.ByteCount
	// PriorDelivered is the Delivered value recorded when the packet this
	// sample closes the interval for was sent.
	PriorDelivered protocol.ByteCount
	// Losses is the number of bytes newly declared lost in this sample.
	Losses protocol.ByteCount
	// AckedSacked is the number of bytes newly acked or sacked in this
	// sample.
	AckedSacked protocol.ByteCount
	// IsAppLimited reports whether the sender was application-limited
	// (had no more data to send) at any point during this interval.
	IsAppLimited bool
	// IsAckDelayed reports whether the peer's delayed-ACK timer pushed
	// this ACK out, making RTT an overestimate.
	IsAckDelayed bool
	// Interval is the duration this sample covers.
	Interval time.Duration
	// RTT is the round-trip time measured for the packet(s) this sample
	// acknowledges.
	RTT time.Duration
	// PriorInFlight is bytes in flight immediately before this ACK was
	// processed.
	PriorInFlight protocol.ByteCount
	// DeliveredAt is the wall-clock (monotonic) time this sample was
	// generated.
	DeliveredAt monotime.Time
	// SndUna is snd_una as a byte count, the alternate delivery counter
	// the bucket/rate estimator uses instead of Delivered when
	// Config.UseGoodput is set (spec.md §4.5). OnRateSample fills it from
	// Delivered when it is zero.
	SndUna protocol.ByteCount
}

// valid reports whether the sample is usable. An invalid sample is
// silently skipped, advancing no filters or counters (spec.md §7
// "Invalid sample").
func (rs *RateSample) valid() bool {
	return rs.Interval > 0 && rs.Delivered >= 0
}
