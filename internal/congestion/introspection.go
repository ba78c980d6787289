package congestion

// Snapshot is spec.md §6's read-only introspection export. Field
// semantics are deliberately asymmetric between the two branches (see
// spec.md): when the detector hasn't locked in, BwLo doubles as the
// classify code itself; once locked in, the remaining fields repurpose
// their names to carry detection-specific scalars rather than literal
// bandwidth/RTT/gain values. This mirrors spec.md's own external
// interface table exactly rather than "fixing" the naming into a more
// orthogonal struct, since a reader matching this engine against its
// logs needs the field names to line up with the spec's.
type Snapshot struct {
	BwLo      int64
	BwHi      int64
	MinRTT    int64
	PacingGain int64
	CwndGain   int64
}

// Introspect implements spec.md §6's introspection query.
func (b *BBRSender) Introspect() Snapshot {
	if b.detector == nil || b.detector.classify != classifyDetected {
		classify := classifyNone
		if b.detector != nil {
			classify = b.detector.classify
		}
		return Snapshot{BwLo: int64(classify)}
	}

	d := b.detector
	best := d.bestIndex
	mss := int64(b.maxDatagramSize)
	return Snapshot{
		BwLo:       1,
		BwHi:       d.detectedTime.Sub(d.bbrStartStamp).Milliseconds(),
		MinRTT:     int64(d.detectedBytesAcked),
		PacingGain: (int64(d.b[best]) * mss / 1024) >> bwScale,
		CwndGain:   (int64(d.r[best]) * mss * 1000) >> bwScale,
	}
}
