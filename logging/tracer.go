// Package logging provides the ConnectionTracer callback surface the
// engine's optional diagnostic channel emits through (spec.md §7
// "propagation policy: ... all diagnostic output is through the optional
// log channel"). Grounded in shape on prague_sender.go/prague_logger.go's
// ConnectionTracer + Log* method pattern, retargeted from Prague's
// alpha/ECN events to this engine's mode-transition/bucket-rate/cap
// events, and backed by zap instead of the teacher's raw `log.Logger`
// (DESIGN.md: ambient logging follows the pack's ecosystem choice,
// go.uber.org/zap, rather than the teacher's own bare stdlib pick for
// this one file).
package logging

import (
	"go.uber.org/zap"

	"github.com/mclab-cuhk/rtcp-go/internal/protocol"
)

// ConnectionTracer is the fixed set of diagnostic callbacks the engine
// invokes (spec.md §6 "Event callbacks expected"). Any field may be left
// nil; the engine checks before calling.
type ConnectionTracer struct {
	UpdatedCongestionState func(protocol.CongestionState)
	ModeTransition         func(from, to string)
	BucketRateCommitted    func(bucketBytes protocol.ByteCount, rateBytesPerSec int64)
	CapEngaged             func(capBytesPerSec int64)
	CapSuspended           func()
	ProbeStarted           func(round int)
	LTEstimatorCommitted   func(bwBytesPerSec int64)
}

// RTCPLogger adapts ConnectionTracer to a zap.Logger, mirroring
// prague_logger.go's `PragueLogger` shape (a named, per-connection
// logger plus an enabled flag) but emitting R-TCP/BBR events instead of
// ECN/alpha ones.
type RTCPLogger struct {
	log     *zap.Logger
	enabled bool
}

// NewRTCPLogger builds a logger scoped to one connection ID.
func NewRTCPLogger(base *zap.Logger, connectionID string, enabled bool) *RTCPLogger {
	return &RTCPLogger{
		log:     base.Named("rtcp").With(zap.String("conn", connectionID)),
		enabled: enabled,
	}
}

func (l *RTCPLogger) LogModeTransition(from, to string) {
	if !l.enabled {
		return
	}
	l.log.Info("mode transition", zap.String("from", from), zap.String("to", to))
}

func (l *RTCPLogger) LogBucketRateCommitted(bucketBytes protocol.ByteCount, rateBps int64) {
	if !l.enabled {
		return
	}
	l.log.Info("bucket/rate committed",
		zap.Int64("bucket_bytes", int64(bucketBytes)),
		zap.Int64("rate_bytes_per_sec", rateBps))
}

func (l *RTCPLogger) LogCapEngaged(capBps int64) {
	if !l.enabled {
		return
	}
	l.log.Info("cap engaged", zap.Int64("cap_bytes_per_sec", capBps))
}

func (l *RTCPLogger) LogCapSuspended() {
	if !l.enabled {
		return
	}
	l.log.Info("cap suspended")
}

func (l *RTCPLogger) LogProbeStarted(round int) {
	if !l.enabled {
		return
	}
	l.log.Info("probe started", zap.Int("round", round))
}

func (l *RTCPLogger) LogLTEstimatorCommitted(bwBps int64) {
	if !l.enabled {
		return
	}
	l.log.Info("lt estimator committed", zap.Int64("bandwidth_bytes_per_sec", bwBps))
}

// NewRTCPConnectionTracer wires an RTCPLogger into a ConnectionTracer, the
// way prague_logger.go's CreatePragueConnectionTracer wires a PragueLogger
// into the old ConnectionTracer shape.
func NewRTCPConnectionTracer(base *zap.Logger, connectionID string, enabled bool) *ConnectionTracer {
	if !enabled {
		return nil
	}
	l := NewRTCPLogger(base, connectionID, true)
	return &ConnectionTracer{
		UpdatedCongestionState: func(s protocol.CongestionState) {
			l.log.Info("congestion state", zap.String("state", s.String()))
		},
		ModeTransition:       l.LogModeTransition,
		BucketRateCommitted:  l.LogBucketRateCommitted,
		CapEngaged:           l.LogCapEngaged,
		CapSuspended:         l.LogCapSuspended,
		ProbeStarted:         l.LogProbeStarted,
		LTEstimatorCommitted: l.LogLTEstimatorCommitted,
	}
}
