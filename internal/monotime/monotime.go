// Package monotime provides a monotonic-only timestamp, so the congestion
// engine never observes a wall-clock jump (NTP step, leap second) as a
// negative interval. Grounded on the teacher's own
// github.com/quic-go/quic-go/internal/monotime import in prague_sender.go.
package monotime

import "time"

// Time is a point on the monotonic clock. The zero value means "unset",
// matching the sentinel-zero convention spec.md uses for e.g. min_rtt_stamp.
type Time time.Time

// Now returns the current monotonic time.
func Now() Time {
	return Time(time.Now())
}

// Sub returns the duration between two monotonic times.
func (t Time) Sub(u Time) time.Duration {
	return time.Time(t).Sub(time.Time(u))
}

// Add returns t+d.
func (t Time) Add(d time.Duration) Time {
	return Time(time.Time(t).Add(d))
}

// Before reports whether t occurred before u.
func (t Time) Before(u Time) bool {
	return time.Time(t).Before(time.Time(u))
}

// After reports whether t occurred after u.
func (t Time) After(u Time) bool {
	return time.Time(t).After(time.Time(u))
}

// IsZero reports whether t is the unset sentinel.
func (t Time) IsZero() bool {
	return time.Time(t).IsZero()
}
