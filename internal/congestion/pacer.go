package congestion

import (
	"time"

	"github.com/mclab-cuhk/rtcp-go/internal/monotime"
	"github.com/mclab-cuhk/rtcp-go/internal/protocol"
)

// maxBurstPackets bounds how much pacing budget can accumulate while the
// sender is idle, matching the maxBurstPackets/maxBurstBytes constant
// both cubic_sender examples define.
const maxBurstPackets = 10

// pacer spreads packets at the rate BandwidthEstimate reports rather than
// bursting the whole congestion window at once. The engine's own pacing
// decision (spec.md §4.1's 1% margin) only sets *what* rate to pace at;
// actually timing departures at that rate is this type's job, which is
// still internal bookkeeping, not the external "pacing scheduler"
// collaborator spec.md §1 excludes (that collaborator is whatever calls
// TimeUntilSend/HasPacingBudget and waits).
//
// Grounded on the `pacer` field and `newPacer(c.BandwidthEstimate)`
// constructor call in both cubic_sender examples and prague_sender.go.
type pacer struct {
	budgetAtLastSent  protocol.ByteCount
	maxDatagramSize   protocol.ByteCount
	lastSentTime      monotime.Time
	bandwidthEstimate func() Bandwidth
}

func newPacer(bandwidthEstimate func() Bandwidth) *pacer {
	p := &pacer{
		maxDatagramSize:   protocol.DefaultTCPMSS,
		bandwidthEstimate: bandwidthEstimate,
	}
	p.budgetAtLastSent = maxBurstPackets * p.maxDatagramSize
	return p
}

// Budget returns how many bytes could be sent right now without
// exceeding the paced rate, accounting for time elapsed since the last
// send.
func (p *pacer) Budget(now monotime.Time) protocol.ByteCount {
	if p.lastSentTime.IsZero() {
		return p.budgetAtLastSent
	}
	budget := p.budgetAtLastSent + p.bytesFor(now.Sub(p.lastSentTime))
	if max := maxBurstPackets * p.maxDatagramSize; budget > max {
		return max
	}
	return budget
}

func (p *pacer) bytesFor(d time.Duration) protocol.ByteCount {
	bw := p.bandwidthEstimate()
	if bw <= 0 {
		return 0
	}
	return protocol.ByteCount(int64(bw) * d.Microseconds() / usecPerSec)
}

// SentPacket records a send, debiting the pacing budget.
func (p *pacer) SentPacket(sentTime monotime.Time, size protocol.ByteCount) {
	budget := p.Budget(sentTime)
	p.lastSentTime = sentTime
	if size > budget {
		p.budgetAtLastSent = 0
		return
	}
	p.budgetAtLastSent = budget - size
}

// TimeUntilSend returns the deadline by which the next full datagram may
// be sent.
func (p *pacer) TimeUntilSend() monotime.Time {
	if p.Budget(p.lastSentTime) >= p.maxDatagramSize {
		return p.lastSentTime
	}
	bw := p.bandwidthEstimate()
	if bw <= 0 {
		return p.lastSentTime
	}
	missing := p.maxDatagramSize - p.Budget(p.lastSentTime)
	d := time.Duration(int64(missing) * usecPerSec / int64(bw) * int64(time.Microsecond))
	return p.lastSentTime.Add(d)
}

// SetMaxDatagramSize updates the MSS used for budget accounting.
func (p *pacer) SetMaxDatagramSize(s protocol.ByteCount) {
	p.maxDatagramSize = s
}
