// Package reorder implements the Reordering Classifier: it tracks, per
// direction, the outstanding sequence ranges of a TCP flow and labels
// each incoming data segment as in-order, one of several kinds of
// retransmission, a network duplicate, a network reordering, or
// "higher than expected" — using an injected RTT estimator, a derived
// retransmission timeout, and the observed time lag of the matching
// record. Grounded on reordering.c.
package reorder

import (
	"github.com/m-lab/tcp-reorder/packet"
	"github.com/m-lab/tcp-reorder/ringqueue"
	"github.com/m-lab/tcp-reorder/rtt"
)

// Type is the coarse classification of a data segment.
type Type int

const (
	INORDER Type = iota
	HIGH
	RETRANSMISSION
	NETWORK_DUPLICATE
	NETWORK_REORDERING
	UNKNOWN
)

var typeName = [...]string{
	INORDER:             "inorder",
	HIGH:                "high",
	RETRANSMISSION:      "retransmission",
	NETWORK_DUPLICATE:   "network_duplicate",
	NETWORK_REORDERING:  "network_reordering",
	UNKNOWN:             "unknown",
}

// String returns the metric/CSV-friendly label for t.
func (t Type) String() string {
	if int(t) < 0 || int(t) >= len(typeName) {
		return "unknown"
	}
	return typeName[t]
}

// messages is the fixed 12-entry table exposed verbatim; tests depend on
// these exact strings.
var messages = [12]string{
	0:  "packet in order",
	1:  "sequence number higher than expected",
	2:  "unneeded retransmission (packet record not found)",
	3:  "unneeded retransmission (already acked)",
	4:  "retransmission (cannot find dup acks)",
	5:  "retransmission (IP ID different)",
	6:  "retransmission (time_lag > rto)",
	7:  "retransmission (duplicate acks >= 3)",
	8:  "retransmission (in recovery)",
	9:  "network duplicate",
	10: "unknown",
	11: "network reordering",
}

var messageType = [12]Type{
	0: INORDER, 1: HIGH, 2: RETRANSMISSION, 3: RETRANSMISSION, 4: RETRANSMISSION,
	5: RETRANSMISSION, 6: RETRANSMISSION, 7: RETRANSMISSION, 8: RETRANSMISSION,
	9: NETWORK_DUPLICATE, 10: UNKNOWN, 11: NETWORK_REORDERING,
}

const dupAckThreshold = 3

// PacketRecord is one entry of a direction's outstanding-range queue. A
// record with IsMissing true is a placeholder synthesized for a gap; its
// MissingLink chain subdivides that gap as further packets reveal its
// true segmentation.
type PacketRecord struct {
	Seq          uint32
	Time         float64
	IPID         uint16
	NumAcks      int
	IsMissing    bool
	IsMisaligned bool
	MissingLink  *PacketRecord
}

// Classifier is the per-flow Reordering Classifier. It wraps an
// rtt.Estimator (injected, per spec.md's dependency-injection design
// note) and consumes the same packet stream the estimator does.
type Classifier struct {
	estimator   rtt.Estimator
	records     [2]*ringqueue.Queue[*PacketRecord]
	expectedSeq [2]uint32
	haveExpSeq  [2]bool
	inRecovery  [2]bool

	haveMinRTT bool
	minRTT     float64

	lastType    Type
	lastMessage int
	lastTimeLag float64
}

// New creates a Classifier driven by estimator.
func New(estimator rtt.Estimator) *Classifier {
	return &Classifier{
		estimator: estimator,
		records: [2]*ringqueue.Queue[*PacketRecord]{
			ringqueue.New[*PacketRecord](32),
			ringqueue.New[*PacketRecord](32),
		},
	}
}

// OnPacket classifies one packet. dir/seq/ack/ipID/payloadLen/now are the
// fields the packet accessor exposes (spec.md §6).
func (c *Classifier) OnPacket(dir packet.Direction, seq, ack uint32, ipID uint16, payloadLen uint32, now float64) {
	idx := dirIndex(dir)
	reverseIdx := dirIndex(other(dir))

	c.ackProcess(reverseIdx, ack)

	rttVal, haveRTT, rto, haveRTO := c.estimateWindow()

	c.lastType = INORDER
	c.lastMessage = 0
	c.lastTimeLag = 0

	if payloadLen == 0 {
		return
	}

	if !c.haveExpSeq[idx] {
		c.expectedSeq[idx] = seq
		c.haveExpSeq[idx] = true
	}
	expected := c.expectedSeq[idx]

	switch {
	case seq > expected:
		c.records[idx].Add(&PacketRecord{Seq: expected, Time: now, IsMissing: true})
		c.records[idx].Add(&PacketRecord{Seq: seq, Time: now, IPID: ipID})
		c.expectedSeq[idx] = seq + payloadLen
		c.inRecovery[idx] = false
		c.setOutcome(1)

	case seq == expected:
		c.records[idx].Add(&PacketRecord{Seq: seq, Time: now, IPID: ipID})
		c.expectedSeq[idx] = seq + payloadLen
		c.inRecovery[idx] = false
		c.setOutcome(0)

	default:
		c.classifyPast(idx, seq, ipID, payloadLen, now, rttVal, haveRTT, rto, haveRTO)
	}
}

func dirIndex(dir packet.Direction) int {
	if dir == packet.DirectionInbound {
		return 1
	}
	return 0
}

func other(dir packet.Direction) packet.Direction {
	if dir == packet.DirectionOutbound {
		return packet.DirectionInbound
	}
	return packet.DirectionOutbound
}

func (c *Classifier) setOutcome(message int) {
	c.lastMessage = message
	c.lastType = messageType[message]
}

// estimateWindow derives rtt (a damped running minimum of inside+outside)
// and rto (2x their sum) from the embedded estimator, per spec.md §4.5.
func (c *Classifier) estimateWindow() (rttVal float64, haveRTT bool, rto float64, haveRTO bool) {
	inside, haveInside := c.estimator.InsideRTT()
	outside, haveOutside := c.estimator.OutsideRTT()
	if !haveInside || !haveOutside {
		return 0, false, 0, false
	}
	combined := inside + outside
	rto = 2 * combined
	if !c.haveMinRTT || combined < c.minRTT {
		c.minRTT = combined
		c.haveMinRTT = true
	}
	return 0.9 * c.minRTT, true, rto, true
}

// findFloor returns the record governing target: the greatest record
// with Seq <= target in the main array, descending its missing-link
// chain while the chain continues to cover target.
func (c *Classifier) findFloor(idx int, target uint32) (*PacketRecord, bool) {
	it, ok := c.records[idx].Begin()
	var floor *PacketRecord
	for ok {
		r := *it.Item()
		if r.Seq <= target {
			floor = r
		} else {
			break
		}
		ok = it.Next()
	}
	if floor == nil {
		return nil, false
	}
	for floor.MissingLink != nil && floor.MissingLink.Seq <= target {
		floor = floor.MissingLink
	}
	return floor, true
}

func (c *Classifier) classifyPast(idx int, seq uint32, ipID uint16, payloadLen uint32, now float64, rttVal float64, haveRTT bool, rto float64, haveRTO bool) {
	floor, found := c.findFloor(idx, seq)
	if !found {
		c.setOutcome(2)
		return
	}
	if floor.NumAcks > 0 && floor.Seq == seq {
		c.setOutcome(3)
		return
	}

	var dupAcks int
	if seq == 0 {
		c.setOutcome(4)
		return
	}
	pred, foundPred := c.findFloor(idx, seq-1)
	if !foundPred {
		c.setOutcome(4)
		return
	}
	dupAcks = pred.NumAcks

	timeLag := now - floor.Time
	c.lastTimeLag = timeLag

	if !floor.IsMissing {
		if next, ok := c.recordAfter(idx, floor); ok && next.Seq != seq+payloadLen {
			floor.IsMisaligned = true
			next.IsMisaligned = true
		}
		switch {
		case floor.IPID != ipID:
			c.inRecovery[idx] = true
			c.setOutcome(5)
		case haveRTO && timeLag > rto:
			c.inRecovery[idx] = true
			c.setOutcome(6)
		case dupAcks >= dupAckThreshold:
			c.inRecovery[idx] = true
			c.setOutcome(7)
		case c.inRecovery[idx]:
			c.setOutcome(8)
		case haveRTT && timeLag < rttVal:
			c.setOutcome(9)
		default:
			c.setOutcome(10)
		}
		return
	}

	// floor is a placeholder: this segment fills (some of) a previously
	// unknown gap. If it does not fully cover the gap, subdivide by
	// splicing a new placeholder at seq+payload, inheriting floor's
	// detection time.
	gapEnd, haveGapEnd := c.gapEnd(idx, floor)
	if !haveGapEnd || seq+payloadLen < gapEnd {
		splice := &PacketRecord{Seq: seq + payloadLen, Time: floor.Time, IsMissing: true, MissingLink: floor.MissingLink}
		floor.MissingLink = splice
	}
	switch {
	case dupAcks >= dupAckThreshold:
		c.inRecovery[idx] = true
		c.setOutcome(7)
	case haveRTO && timeLag > rto:
		c.inRecovery[idx] = true
		c.setOutcome(6)
	case c.inRecovery[idx]:
		c.setOutcome(8)
	case haveRTT && timeLag < rttVal:
		c.setOutcome(11)
	default:
		c.setOutcome(10)
	}
}

// recordAfter returns the record immediately following r in the main
// array (not its missing-link chain), if any.
func (c *Classifier) recordAfter(idx int, r *PacketRecord) (*PacketRecord, bool) {
	it, ok := c.records[idx].Begin()
	prevMatched := false
	for ok {
		item := *it.Item()
		if prevMatched {
			return item, true
		}
		if item == r {
			prevMatched = true
		}
		ok = it.Next()
	}
	return nil, false
}

// gapEnd returns the sequence number the gap represented by placeholder r
// extends up to: the next entry in r's own missing-link chain, or (if
// none) the seq of the main-array record following r's chain's owner.
func (c *Classifier) gapEnd(idx int, r *PacketRecord) (uint32, bool) {
	if r.MissingLink != nil {
		return r.MissingLink.Seq, true
	}
	it, ok := c.records[idx].Begin()
	ownerFound := false
	for ok {
		item := *it.Item()
		if ownerFound {
			return item.Seq, true
		}
		for l := item; l != nil; l = l.MissingLink {
			if l == r {
				ownerFound = true
				break
			}
		}
		ok = it.Next()
	}
	return 0, false
}

// ackProcess advances the lower index of the acknowledged direction's
// queue past every record strictly below ack, except the last such
// record: that one is kept as a sentinel so a predecessor is always
// available for a later dup-ack lookup, and it is the one whose ack
// count gets bumped. The same rule is then applied to that sentinel's
// missing-link chain.
func (c *Classifier) ackProcess(idx int, ack uint32) {
	q := c.records[idx]
	if q.Len() == 0 {
		return
	}
	it, ok := q.Begin()
	below := 0
	for ok {
		if (*it.Item()).Seq >= ack {
			break
		}
		below++
		ok = it.Next()
	}
	for i := 0; i < below-1; i++ {
		q.PopBottom()
	}
	bottom, ok := q.PeekBottom()
	if !ok {
		return
	}
	r := *bottom
	r.MissingLink = trimMissingLink(r.MissingLink, ack)
	r.NumAcks++
}

// trimMissingLink applies ackProcess's keep-the-last-sentinel rule to a
// missing-link chain, returning the new head.
func trimMissingLink(head *PacketRecord, ack uint32) *PacketRecord {
	if head == nil || head.Seq >= ack {
		return head
	}
	last := head
	for last.MissingLink != nil && last.MissingLink.Seq < ack {
		last = last.MissingLink
	}
	return last
}

// GetType returns the most recently classified packet's coarse type.
func (c *Classifier) GetType() Type {
	return c.lastType
}

// GetMessage returns the most recently classified packet's message.
func (c *Classifier) GetMessage() string {
	return messages[c.lastMessage]
}

// GetTimeLag returns the most recently classified packet's time lag, in
// seconds, against the matched record (0 for INORDER/HIGH packets, which
// have no prior record to lag behind).
func (c *Classifier) GetTimeLag() float64 {
	return c.lastTimeLag
}
