// Package rtt provides the round-trip-time estimators the Reordering
// Classifier consumes through a single directional interface, and three
// interchangeable implementations grounded on different observable
// signals: the three-way handshake, data/ack sequence numbers, and TCP
// timestamp options.
package rtt

import "github.com/m-lab/tcp-reorder/packet"

// maxSampleAge is the ceiling past which an RTT sample is considered
// stale and discarded rather than folded into the smoothed estimate.
const maxSampleAge = 20.0

// Estimator is the directional-RTT interface the Reordering Classifier
// depends on. It does not care which concrete algorithm produced the
// numbers.
type Estimator interface {
	// InsideRTT returns the smoothed round-trip time attributable to
	// direction 0 (outbound), or false if no sample has been accepted
	// yet.
	InsideRTT() (float64, bool)
	// OutsideRTT returns the smoothed round-trip time attributable to
	// direction 1 (inbound), or false if no sample has been accepted
	// yet.
	OutsideRTT() (float64, bool)
}

func other(dir packet.Direction) packet.Direction {
	if dir == packet.DirectionOutbound {
		return packet.DirectionInbound
	}
	return packet.DirectionOutbound
}

func dirIndex(dir packet.Direction) int {
	if dir == packet.DirectionInbound {
		return 1
	}
	return 0
}
