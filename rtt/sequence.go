package rtt

import (
	"math"

	"github.com/m-lab/tcp-reorder/packet"
	"github.com/m-lab/tcp-reorder/ringqueue"
)

const (
	sequenceSmooth    = 0.875
	sequenceVarSmooth = 0.75
)

type sequenceSample struct {
	expectedAck uint32
	timeSent    float64
}

// Sequence estimates directional RTT from data/ack sequence numbers: each
// data segment's expected_ack is queued on its own direction's FIFO, and
// popped (in order) by an ack arriving from the other direction that
// reaches or passes it. Grounded on rttnsequence.c.
type Sequence struct {
	queue    [2]*ringqueue.Queue[sequenceSample]
	rtt      [2]float64
	haveRTT  [2]bool
	variance [2]float64
	sum      [2]float64
	count    [2]int
	lastRTT  float64
	haveLast bool
}

// NewSequence creates an empty Sequence estimator.
func NewSequence() *Sequence {
	return &Sequence{
		queue: [2]*ringqueue.Queue[sequenceSample]{
			ringqueue.New[sequenceSample](16),
			ringqueue.New[sequenceSample](16),
		},
	}
}

// OnPacket feeds one packet to the estimator. dir is the packet's own
// direction; seq/ack/payloadLen come from its TCP header; now is its
// capture time.
func (s *Sequence) OnPacket(dir packet.Direction, seq, ack uint32, payloadLen uint32, now float64) {
	s.lastRTT = 0
	s.haveLast = false

	if payloadLen > 0 {
		idx := dirIndex(dir)
		newExpectedAck := seq + payloadLen
		if top, ok := s.queue[idx].PeekTop(); !ok || newExpectedAck > top.expectedAck {
			s.queue[idx].Add(sequenceSample{expectedAck: newExpectedAck, timeSent: now})
		} else {
			// newExpectedAck <= top: this segment does not extend the
			// outstanding range, so it is a retransmit. Restart
			// measurement rather than risk attributing a stale sample.
			s.queue[idx].Clear()
		}
	}

	reverse := dirIndex(other(dir))
	q := s.queue[reverse]
	var sample float64
	haveSample := false
	for {
		item, ok := q.PeekBottom()
		if !ok || item.expectedAck > ack {
			break
		}
		sample = now - item.timeSent
		q.PopBottom()
		haveSample = true
	}
	if haveSample {
		s.lastRTT = sample
		s.haveLast = true
		if sample <= maxSampleAge {
			s.accept(reverse, sample)
		}
	}
}

func (s *Sequence) accept(idx int, sample float64) {
	if !s.haveRTT[idx] {
		s.rtt[idx] = sample
		s.variance[idx] = sample / 2
		s.haveRTT[idx] = true
	} else {
		s.rtt[idx] = sequenceSmooth*s.rtt[idx] + (1-sequenceSmooth)*sample
		s.variance[idx] = sequenceVarSmooth*s.rtt[idx] + (1-sequenceVarSmooth)*math.Abs(s.rtt[idx]-sample)
	}
	s.sum[idx] += sample
	s.count[idx]++
}

// LastSample returns the RTT sample popped by the most recent OnPacket
// call, if any.
func (s *Sequence) LastSample() (float64, bool) {
	return s.lastRTT, s.haveLast
}

// Average returns the mean of all accepted samples for direction dir.
func (s *Sequence) Average(dir packet.Direction) (float64, bool) {
	idx := dirIndex(dir)
	if s.count[idx] == 0 {
		return 0, false
	}
	return s.sum[idx] / float64(s.count[idx]), true
}

func (s *Sequence) InsideRTT() (float64, bool) {
	return s.rtt[0], s.haveRTT[0]
}

func (s *Sequence) OutsideRTT() (float64, bool) {
	return s.rtt[1], s.haveRTT[1]
}
