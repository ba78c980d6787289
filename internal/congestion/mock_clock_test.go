package congestion

import (
	"time"

	"github.com/mclab-cuhk/rtcp-go/internal/monotime"
)

// mockClock lets tests control time deterministically instead of
// sleeping. Grounded on the `mockClock` seam prague_sender_test.go
// constructs (`var clock mockClock`) and advances explicitly.
type mockClock struct {
	now monotime.Time
}

func (c *mockClock) Now() monotime.Time { return c.now }

func (c *mockClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
