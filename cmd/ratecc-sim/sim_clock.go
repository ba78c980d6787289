package main

import (
	"time"

	"github.com/mclab-cuhk/rtcp-go/internal/monotime"
)

// simClock is the harness's own Clock (congestion.Clock), advanced one
// round at a time by the scenario's RoundPeriod rather than by reading the
// wall clock. Grounded on the same seam internal/congestion's mockClock
// test helper uses, but driven by simulated rather than test-asserted
// time: a scenario's Rounds*RoundPeriod is meant to model many real
// seconds (PROBE_RTT's 10s min-RTT window, the LT estimator's multi-round
// sampling horizon) in a loop that actually runs in milliseconds, so the
// loop must advance the clock itself instead of letting real time elapse.
type simClock struct {
	now monotime.Time
}

func newSimClock() *simClock {
	return &simClock{now: monotime.Now()}
}

func (c *simClock) Now() monotime.Time { return c.now }

func (c *simClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
