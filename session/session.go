// Package session implements the Session Manager: it indexes flows by
// their canonical 5-tuple, drives each flow's TCP state machine, schedules
// TIME_WAIT and half-open expiry, and multiplexes packets to registered
// analyzers.
package session

import (
	"log"

	"github.com/m-lab/tcp-reorder/analyzer"
	"github.com/m-lab/tcp-reorder/flowid"
	"github.com/m-lab/tcp-reorder/flowindex"
	"github.com/m-lab/tcp-reorder/metrics"
	"github.com/m-lab/tcp-reorder/packet"
	"github.com/m-lab/tcp-reorder/ringqueue"
	"github.com/m-lab/tcp-reorder/tcpstate"
)

const (
	timeWaitSeconds     = 60
	handshakeTimeout    = 60
	timeWaitCapacity    = 100000
	lastAccessModulus   = 256
	sentinelExpectedAck = 0xFFFFFFFF
)

// Flow is the record the Session Manager owns for one observed connection.
type Flow struct {
	ID             flowid.ID
	State          tcpstate.State
	ExpectedAck    uint32
	Waiting        bool
	LastAccess     uint8
	AnalyzerStates []analyzer.State
}

type timeWaitEntry struct {
	flow          *Flow
	enqueueSecond int64
}

// Manager is the Session Manager. It is not safe for concurrent Update
// calls; callers must serialize and must deliver packets in capture
// order.
type Manager struct {
	registry *analyzer.Registry
	index    *flowindex.Index[*Flow]
	timeWait *ringqueue.Queue[timeWaitEntry]

	lastWholeSecond    int64
	haveLastWhole      bool
	lastHandshakeSweep int64

	closedSession *Flow
}

// NewManager creates a Manager bound to registry. registry must not be
// mutated (via Register) after the first call to Update.
func NewManager(registry *analyzer.Registry) *Manager {
	return &Manager{
		registry: registry,
		index:    flowindex.New[*Flow](),
		timeWait: ringqueue.NewBounded[timeWaitEntry](timeWaitCapacity),
	}
}

// LiveFlows returns the number of flows currently indexed.
func (m *Manager) LiveFlows() int {
	return m.index.Len()
}

// Update ingests one packet and returns the flow it belongs to. It returns
// (nil, false) if the packet carries no usable IP+TCP header, has an
// unrecognized direction, or is a non-SYN packet referencing no known
// flow.
func (m *Manager) Update(p packet.Packet) (*Flow, bool) {
	whole := p.WholeSeconds()
	if !m.haveLastWhole || whole != m.lastWholeSecond {
		m.freeExpiredTimeWait(whole)
		m.lastWholeSecond = whole
		m.haveLastWhole = true
	}
	if m.closedSession != nil {
		if !m.closedSession.Waiting {
			m.destroyFlow(m.closedSession)
		}
		m.closedSession = nil
	}
	if whole-m.lastHandshakeSweep > handshakeTimeout {
		m.sweepHalfOpen(whole)
		m.lastHandshakeSweep = whole
	}

	ip, err := p.IP()
	if err != nil {
		return nil, false
	}
	tcp, err := p.TCP()
	if err != nil {
		return nil, false
	}
	dir := p.Direction()
	if dir != packet.DirectionOutbound && dir != packet.DirectionInbound {
		return nil, false
	}

	id := flowid.Canonicalize(ip.Src, ip.Dst, tcp.SrcPort, tcp.DstPort)
	flow, ok := m.index.Retrieve(id)
	payloadLen := uint32(packet.PayloadLen(ip, tcp))

	if !ok {
		if !tcp.Flags.SYN || tcp.Flags.ACK {
			return nil, false
		}
		flow = &Flow{
			ID:             id,
			AnalyzerStates: m.registry.CreateAll(),
		}
		if dir == packet.DirectionOutbound {
			flow.State = tcpstate.SYN_SENT
			flow.ExpectedAck = tcp.Seq + payloadLen
		} else {
			flow.State = tcpstate.SYN_RCVD
			flow.ExpectedAck = sentinelExpectedAck
		}
		m.index.Insert(id, flow)
		metrics.FlowsCreated.Inc()
	} else {
		if tcp.Flags.RST {
			flow.State = tcpstate.RESET
			m.closedSession = flow
			metrics.FlowsReset.Inc()
		} else if flow.State == tcpstate.TIME_WAIT && tcp.Flags.SYN {
			m.freeEarly(flow)
			return m.Update(p)
		} else {
			m.transition(flow, dir, tcp, payloadLen, whole)
		}
	}

	flow.LastAccess = uint8(whole % lastAccessModulus)
	m.registry.Dispatch(flow.AnalyzerStates, p, dir)
	return flow, true
}

// transition applies the state-transition table of spec.md §4.3 to flow
// for one non-RST packet.
func (m *Manager) transition(flow *Flow, dir packet.Direction, tcp packet.TCPHeader, payloadLen uint32, whole int64) {
	ackOK := tcp.Ack >= flow.ExpectedAck

	switch flow.State {
	case tcpstate.SYN_RCVD:
		if dir == packet.DirectionOutbound && tcp.Flags.SYN && tcp.Flags.ACK {
			flow.ExpectedAck = tcp.Seq + payloadLen
		} else if dir == packet.DirectionInbound && tcp.Flags.ACK && ackOK {
			flow.State = tcpstate.ESTABLISHED
		}

	case tcpstate.SYN_SENT:
		if dir == packet.DirectionInbound && tcp.Flags.SYN && tcp.Flags.ACK {
			if ackOK {
				flow.State = tcpstate.ESTABLISHED
			}
			// else: invalid ACK, stay SYN_SENT; expect a RST later.
		} else if dir == packet.DirectionInbound && tcp.Flags.SYN && !tcp.Flags.ACK {
			flow.State = tcpstate.SYN_RCVD
		}

	case tcpstate.ESTABLISHED:
		if dir == packet.DirectionOutbound && tcp.Flags.FIN {
			flow.State = tcpstate.FIN_WAIT_1
			flow.ExpectedAck = tcp.Seq + payloadLen + 1
		} else if dir == packet.DirectionInbound && tcp.Flags.FIN {
			flow.State = tcpstate.CLOSE_WAIT
		}

	case tcpstate.FIN_WAIT_1:
		if dir == packet.DirectionInbound && tcp.Flags.ACK && ackOK {
			if tcp.Flags.FIN {
				flow.State = tcpstate.TIME_WAIT
				m.enqueueTimeWait(flow, whole)
			} else {
				flow.State = tcpstate.FIN_WAIT_2
			}
		} else if dir == packet.DirectionInbound && tcp.Flags.FIN && !tcp.Flags.ACK {
			flow.State = tcpstate.CLOSING
		}

	case tcpstate.FIN_WAIT_2:
		if dir == packet.DirectionInbound && tcp.Flags.FIN {
			flow.State = tcpstate.TIME_WAIT
			m.enqueueTimeWait(flow, whole)
		}

	case tcpstate.CLOSING:
		if dir == packet.DirectionInbound && tcp.Flags.ACK && ackOK {
			flow.State = tcpstate.TIME_WAIT
			m.enqueueTimeWait(flow, whole)
		}

	case tcpstate.CLOSE_WAIT:
		if dir == packet.DirectionOutbound && tcp.Flags.FIN {
			flow.State = tcpstate.LAST_ACK
			flow.ExpectedAck = tcp.Seq + payloadLen + 1
		}

	case tcpstate.LAST_ACK:
		if dir == packet.DirectionInbound && tcp.Flags.ACK && ackOK {
			flow.State = tcpstate.CLOSED
			m.closedSession = flow
		}

	case tcpstate.CLOSED, tcpstate.RESET:
		// No further transitions.
	}
}

func (m *Manager) enqueueTimeWait(flow *Flow, whole int64) {
	flow.Waiting = true
	if _, ok := m.timeWait.Add(timeWaitEntry{flow: flow, enqueueSecond: whole}); !ok {
		log.Printf("session: TIME_WAIT queue full (capacity %d), dropping expiry tracking for flow %+v", timeWaitCapacity, flow.ID)
		metrics.TimeWaitOverflows.Inc()
	}
	metrics.TimeWaitQueueDepth.Set(float64(m.timeWait.Len()))
}

// freeExpiredTimeWait pops and destroys every TIME_WAIT entry older than
// timeWaitSeconds, stopping at the first entry that is not yet expired.
func (m *Manager) freeExpiredTimeWait(now int64) {
	for {
		entry, ok := m.timeWait.PeekBottom()
		if !ok || entry.enqueueSecond >= now-timeWaitSeconds {
			break
		}
		flow := entry.flow
		m.timeWait.PopBottom()
		if flow != nil {
			m.destroyFlow(flow)
		}
	}
	metrics.TimeWaitQueueDepth.Set(float64(m.timeWait.Len()))
}

// freeEarly destroys a TIME_WAIT flow immediately, nulling its slot in the
// timer queue so freeExpiredTimeWait skips it later.
func (m *Manager) freeEarly(flow *Flow) {
	it, ok := m.timeWait.Begin()
	for ok {
		if it.Item().flow == flow {
			it.Item().flow = nil
			break
		}
		ok = it.Next()
	}
	m.destroyFlow(flow)
}

// sweepHalfOpen removes every SYN_SENT/SYN_RCVD flow whose last_access is
// more than handshakeTimeout (mod lastAccessModulus) behind now.
func (m *Manager) sweepHalfOpen(now int64) {
	nowMod := uint8(now % lastAccessModulus)
	it, ok := m.index.Iterate()
	for ok {
		flow := it.Value()
		if (flow.State == tcpstate.SYN_SENT || flow.State == tcpstate.SYN_RCVD) && modDiff(nowMod, flow.LastAccess) > handshakeTimeout {
			it.Remove()
			m.registry.DestroyAll(flow.AnalyzerStates)
			metrics.FlowsExpiredHalfOpen.Inc()
			ok = it.Valid()
			continue
		}
		ok = it.Next()
	}
}

// modDiff returns the forward circular distance from b to a, modulo
// lastAccessModulus.
func modDiff(a, b uint8) int {
	d := int(a) - int(b)
	if d < 0 {
		d += lastAccessModulus
	}
	return d
}

// destroyFlow tears down an indexed flow's analyzer states and removes it
// from the Flow Index.
func (m *Manager) destroyFlow(flow *Flow) {
	m.registry.DestroyAll(flow.AnalyzerStates)
	m.index.Remove(flow.ID)
}

// Destroy tears down every live flow in arbitrary order.
func (m *Manager) Destroy() {
	it, ok := m.index.Iterate()
	for ok {
		m.registry.DestroyAll(it.Value().AnalyzerStates)
		it.Remove()
		ok = it.Valid()
	}
}
