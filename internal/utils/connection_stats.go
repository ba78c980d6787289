package utils

import "github.com/mclab-cuhk/rtcp-go/internal/protocol"

// ConnectionStats accumulates counters the congestion engine updates and
// an operator-facing introspection surface reads. Grounded on
// prague_sender.go's *utils.ConnectionStats field and the lowercase
// connectionStats struct in other_examples' cubic_sender.go.go
// (slowstartPacketsLost, slowstartBytesLost), generalized into an
// exported type because internal/congestion and cmd/ratecc-sim construct
// and update it from outside this package. Introspect does not read it.
type ConnectionStats struct {
	SlowStartPacketsLost int
	SlowStartBytesLost   protocol.ByteCount
	PacketsLost          int
	BytesLost            protocol.ByteCount
	RecoveryEvents        int
}

// OnPacketLost records a loss, tracking whether it happened during slow
// start for later diagnosis of "large reduction" behavior.
func (s *ConnectionStats) OnPacketLost(bytes protocol.ByteCount, inSlowStart bool) {
	s.PacketsLost++
	s.BytesLost += bytes
	if inSlowStart {
		s.SlowStartPacketsLost++
		s.SlowStartBytesLost += bytes
	}
}
