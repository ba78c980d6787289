package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRTTStatsFirstSampleSeedsSmoothedRTT(t *testing.T) {
	r := &RTTStats{}
	r.UpdateRTT(100*time.Millisecond, 0)

	require.Equal(t, 100*time.Millisecond, r.LatestRTT())
	require.Equal(t, 100*time.Millisecond, r.SmoothedRTT())
	require.Equal(t, 100*time.Millisecond, r.MinRTT())
	require.Equal(t, 50*time.Millisecond, r.MeanDeviation())
}

func TestRTTStatsTracksMinAcrossSamples(t *testing.T) {
	r := &RTTStats{}
	r.UpdateRTT(100*time.Millisecond, 0)
	r.UpdateRTT(40*time.Millisecond, 0)
	r.UpdateRTT(80*time.Millisecond, 0)

	require.Equal(t, 40*time.Millisecond, r.MinRTT())
	require.Equal(t, 80*time.Millisecond, r.LatestRTT())
}

func TestRTTStatsIgnoresNonPositiveSample(t *testing.T) {
	r := &RTTStats{}
	r.UpdateRTT(100*time.Millisecond, 0)
	r.UpdateRTT(0, 0)
	r.UpdateRTT(-5*time.Millisecond, 0)

	require.Equal(t, 100*time.Millisecond, r.LatestRTT())
}

func TestRTTStatsAckDelayNeverAdjustsMinRTT(t *testing.T) {
	r := &RTTStats{}
	r.UpdateRTT(100*time.Millisecond, 0)
	r.UpdateRTT(110*time.Millisecond, 50*time.Millisecond)

	// min_rtt must reflect the raw sample, not the ack-delay-adjusted one.
	require.Equal(t, 100*time.Millisecond, r.MinRTT())
}
