package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func maxFilter(window uint64) *WindowedFilter[uint64] {
	return NewWindowedFilter(window, func(a, b uint64) bool { return a > b })
}

func TestWindowedFilterTracksMaxWithinWindow(t *testing.T) {
	f := maxFilter(100)
	f.Update(10, 0)
	f.Update(20, 10)
	f.Update(5, 20)
	require.Equal(t, uint64(20), f.Best())
}

func TestWindowedFilterExpiresStaleBest(t *testing.T) {
	f := maxFilter(100)
	f.Update(50, 0)
	f.Update(10, 50)
	require.Equal(t, uint64(50), f.Best())

	// Once the window fully slides past the original sample's time, the
	// stale best must be evicted even though nothing bigger arrived.
	f.Update(10, 250)
	require.LessOrEqual(t, f.Best(), uint64(10))
}

func TestWindowedFilterResetDiscardsHistory(t *testing.T) {
	f := maxFilter(100)
	f.Update(50, 0)
	f.Reset(1, 1000)
	require.Equal(t, uint64(1), f.Best())
	require.Equal(t, uint64(1), f.SecondBest())
}

func TestWindowedFilterNewSampleDominatingResetsAllCandidates(t *testing.T) {
	f := maxFilter(100)
	f.Update(10, 0)
	f.Update(20, 10)
	f.Update(30, 20) // beats candidate 0, so it becomes the whole window's state
	require.Equal(t, uint64(30), f.Best())
	require.Equal(t, uint64(30), f.SecondBest())
}

func minFilter(window uint64) *WindowedFilter[uint64] {
	return NewWindowedFilter(window, func(a, b uint64) bool { return a < b })
}

func TestWindowedFilterMinVariantForRTT(t *testing.T) {
	f := minFilter(10_000_000) // 10s in microseconds, matching spec.md's min-RTT horizon
	f.Update(50_000, 0)
	f.Update(40_000, 1_000_000)
	f.Update(60_000, 2_000_000)
	require.Equal(t, uint64(40_000), f.Best())
}
