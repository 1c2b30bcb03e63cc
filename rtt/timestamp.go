package rtt

import (
	"encoding/binary"

	"github.com/m-lab/tcp-reorder/packet"
	"github.com/m-lab/tcp-reorder/ringqueue"
)

// timestampOptionKind is the TCP option kind for RFC 1323 timestamps.
const timestampOptionKind = 8

const timestampSmooth = 0.75

// spikeRejectMultiplier is the threshold that, with spike rejection
// enabled, a sample must exceed (relative to the current estimate) to be
// smoothed in; samples at or below it are discarded.
const spikeRejectMultiplier = 5

type timestampSample struct {
	tsval    uint32
	timeSeen float64
}

// Timestamp estimates directional RTT from TCP timestamp options (kind
// 8): each data segment's tsval is queued on its own direction's FIFO,
// and matched against the tsecr echoed back by the other direction.
// Grounded on rtttimestamp.c.
type Timestamp struct {
	queue       [2]*ringqueue.Queue[timestampSample]
	rtt         [2]float64
	haveRTT     [2]bool
	spikeReject bool
}

// NewTimestamp creates an empty Timestamp estimator. If spikeReject is
// true, the smoothed RTT only updates on a sample that exceeds 5x the
// current estimate; samples at or below that multiple are left out of
// the smoothing update.
func NewTimestamp(spikeReject bool) *Timestamp {
	return &Timestamp{spikeReject: spikeReject}
}

func (t *Timestamp) ensureQueues() {
	if t.queue[0] == nil {
		t.queue[0] = ringqueue.New[timestampSample](16)
		t.queue[1] = ringqueue.New[timestampSample](16)
	}
}

// OnPacket feeds one packet to the estimator.
func (t *Timestamp) OnPacket(dir packet.Direction, payloadLen uint32, now float64, opts []packet.Option) {
	t.ensureQueues()
	idx := dirIndex(dir)
	reverse := dirIndex(other(dir))

	for _, opt := range opts {
		tsval, tsecr, ok := parseTimestamp(opt)
		if !ok {
			continue
		}
		q := t.queue[reverse]
		for {
			item, ok := q.PeekBottom()
			if !ok {
				break
			}
			if item.tsval < tsecr {
				q.PopBottom()
				continue
			}
			if item.tsval == tsecr {
				sample := now - item.timeSeen
				q.PopBottom()
				if sample <= maxSampleAge {
					t.accept(reverse, sample)
				}
			}
			break
		}
		if payloadLen > 0 {
			t.queue[idx].Add(timestampSample{tsval: tsval, timeSeen: now})
		}
	}
}

func (t *Timestamp) accept(idx int, sample float64) {
	if !t.haveRTT[idx] {
		t.rtt[idx] = sample
		t.haveRTT[idx] = true
		return
	}
	if t.spikeReject && sample <= spikeRejectMultiplier*t.rtt[idx] {
		return
	}
	t.rtt[idx] = timestampSmooth*t.rtt[idx] + (1-timestampSmooth)*sample
}

func (t *Timestamp) InsideRTT() (float64, bool) {
	return t.rtt[0], t.haveRTT[0]
}

func (t *Timestamp) OutsideRTT() (float64, bool) {
	return t.rtt[1], t.haveRTT[1]
}

// parseTimestamp extracts (tsval, tsecr) from a TCP timestamp option's
// payload (8 bytes: 4-byte tsval, 4-byte tsecr, both in big-endian wire
// order as the option bytes carry them).
func parseTimestamp(opt packet.Option) (tsval, tsecr uint32, ok bool) {
	if opt.Kind != timestampOptionKind || len(opt.Data) < 8 {
		return 0, 0, false
	}
	return binary.BigEndian.Uint32(opt.Data[0:4]), binary.BigEndian.Uint32(opt.Data[4:8]), true
}
