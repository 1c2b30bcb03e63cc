package rtt

import "github.com/m-lab/tcp-reorder/packet"

// Handshake estimates directional RTT purely from the three-way
// handshake: SYN, SYN+ACK, final ACK. It produces exactly one sample per
// direction and then freezes (grounded on rtthandshake.c's pair of
// signed accumulators, expressed here as explicit send/receive times for
// clarity).
type Handshake struct {
	sendTime [2]float64
	haveSend [2]bool
	value    [2]float64
	have     [2]bool
}

// NewHandshake creates an empty Handshake estimator.
func NewHandshake() *Handshake {
	return &Handshake{}
}

// OnPacket feeds one packet's handshake-relevant flags to the estimator.
// Non-handshake packets are ignored.
func (h *Handshake) OnPacket(dir packet.Direction, flags packet.Flags, now float64) {
	idx := dirIndex(dir)
	switch {
	case flags.SYN && !flags.ACK:
		if !h.haveSend[idx] {
			h.sendTime[idx] = now
			h.haveSend[idx] = true
		}
	case flags.SYN && flags.ACK:
		// This packet completes the handshake-initiator's half (the
		// direction that sent the bare SYN) and starts the clock for
		// the remaining half, completed by the final ACK.
		if h.haveSend[idx^1] && !h.have[idx^1] {
			h.value[idx^1] = now - h.sendTime[idx^1]
			h.have[idx^1] = true
		}
		if !h.haveSend[idx] {
			h.sendTime[idx] = now
			h.haveSend[idx] = true
		}
	case flags.ACK:
		// A plain ACK acknowledges the other direction's SYN+ACK,
		// completing that direction's half of the handshake.
		if h.haveSend[idx^1] && !h.have[idx^1] {
			h.value[idx^1] = now - h.sendTime[idx^1]
			h.have[idx^1] = true
		}
	}
}

// Established reports whether both directional samples have been taken;
// once true, the estimator is frozen and ignores further packets.
func (h *Handshake) Established() bool {
	return h.have[0] && h.have[1]
}

func (h *Handshake) InsideRTT() (float64, bool) {
	return h.value[0], h.have[0]
}

func (h *Handshake) OutsideRTT() (float64, bool) {
	return h.value[1], h.have[1]
}
