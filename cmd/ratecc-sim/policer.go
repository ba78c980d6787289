package main

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/mclab-cuhk/rtcp-go/internal/protocol"
)

// tokenBucketPolicer simulates the token-bucket middlebox spec.md §1
// treats as the thing R-TCP exists to detect, using
// golang.org/x/time/rate's own token-bucket limiter as the simulated
// policer rather than hand-rolling one — this repo's detector consumes
// the *effects* of such a policer (delivered/lost counts), never the
// limiter's internals.
type tokenBucketPolicer struct {
	limiter *rate.Limiter
	mss     protocol.ByteCount
}

func newTokenBucketPolicer(burstPackets int, ratePktsPerS float64, mss protocol.ByteCount) *tokenBucketPolicer {
	return &tokenBucketPolicer{
		limiter: rate.NewLimiter(rate.Limit(ratePktsPerS), burstPackets),
		mss:     mss,
	}
}

// admit returns how many of offeredPackets the bucket allows through this
// round; the remainder counts as lost. now is the simulated round time
// (not the wall clock): the limiter's own token replenishment is a
// function of elapsed time, and a scenario's rounds are meant to model
// real seconds while actually executing in milliseconds, so the time fed
// to it must track the simulated clock rather than rate.Limiter's default
// of reading time.Now() itself.
func (p *tokenBucketPolicer) admit(offeredPackets int, now time.Time) (admitted, lost int) {
	for i := 0; i < offeredPackets; i++ {
		if p.limiter.AllowN(now, 1) {
			admitted++
		} else {
			lost++
		}
	}
	return
}
