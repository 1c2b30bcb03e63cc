package session

import (
	"testing"

	"github.com/m-lab/tcp-reorder/analyzer"
	"github.com/m-lab/tcp-reorder/packet"
	"github.com/m-lab/tcp-reorder/tcpstate"
)

// fakePacket is a minimal packet.Packet for driving the Session Manager
// through hand-built traces without a real capture source.
type fakePacket struct {
	ip      packet.IPHeader
	tcp     packet.TCPHeader
	dir     packet.Direction
	seconds float64
}

func (p fakePacket) IP() (packet.IPHeader, error)  { return p.ip, nil }
func (p fakePacket) TCP() (packet.TCPHeader, error) { return p.tcp, nil }
func (p fakePacket) TCPOptions() []packet.Option    { return nil }
func (p fakePacket) Direction() packet.Direction    { return p.dir }
func (p fakePacket) Seconds() float64               { return p.seconds }
func (p fakePacket) WholeSeconds() int64            { return int64(p.seconds) }

const (
	ipA = 0x0A000001
	ipB = 0x0A000002
)

func seg(dir packet.Direction, seq, ack uint32, flags packet.Flags, payload int, t float64) fakePacket {
	srcIP, dstIP := uint32(ipA), uint32(ipB)
	srcPort, dstPort := uint16(1234), uint16(80)
	if dir == packet.DirectionInbound {
		srcIP, dstIP = ipB, ipA
		srcPort, dstPort = 80, 1234
	}
	return fakePacket{
		ip:      packet.IPHeader{Src: srcIP, Dst: dstIP, TotalLen: 40 + payload, HeaderLen: 5},
		tcp:     packet.TCPHeader{SrcPort: srcPort, DstPort: dstPort, Seq: seq, Ack: ack, Flags: flags, DataOffset: 5},
		dir:     dir,
		seconds: t,
	}
}

func newTestManager() *Manager {
	return NewManager(analyzer.NewRegistry())
}

func TestCleanHandshakeAndGracefulClose(t *testing.T) {
	m := newTestManager()

	flow, ok := m.Update(seg(packet.DirectionOutbound, 1000, 0, packet.Flags{SYN: true}, 0, 0.00))
	if !ok || flow.State != tcpstate.SYN_SENT {
		t.Fatalf("after SYN: state = %v, ok = %v, want SYN_SENT, true", flow.State, ok)
	}

	flow, ok = m.Update(seg(packet.DirectionInbound, 5000, 1001, packet.Flags{SYN: true, ACK: true}, 0, 0.10))
	if !ok || flow.State != tcpstate.ESTABLISHED {
		t.Fatalf("after SYN+ACK: state = %v, ok = %v, want ESTABLISHED, true", flow.State, ok)
	}

	flow, ok = m.Update(seg(packet.DirectionOutbound, 1001, 5001, packet.Flags{ACK: true}, 0, 0.20))
	if !ok || flow.State != tcpstate.ESTABLISHED {
		t.Fatalf("after final ACK: state = %v, ok = %v, want ESTABLISHED, true", flow.State, ok)
	}

	flow, ok = m.Update(seg(packet.DirectionOutbound, 1001, 5001, packet.Flags{}, 100, 0.30))
	if !ok || flow.State != tcpstate.ESTABLISHED {
		t.Fatalf("after data segment: state = %v, ok = %v, want ESTABLISHED, true", flow.State, ok)
	}

	flow, ok = m.Update(seg(packet.DirectionInbound, 5001, 1101, packet.Flags{ACK: true}, 0, 0.40))
	if !ok || flow.State != tcpstate.ESTABLISHED {
		t.Fatalf("after data ack: state = %v, ok = %v, want ESTABLISHED, true", flow.State, ok)
	}

	flow, ok = m.Update(seg(packet.DirectionOutbound, 1101, 5001, packet.Flags{FIN: true}, 0, 0.50))
	if !ok || flow.State != tcpstate.FIN_WAIT_1 {
		t.Fatalf("after FIN: state = %v, ok = %v, want FIN_WAIT_1, true", flow.State, ok)
	}

	flow, ok = m.Update(seg(packet.DirectionInbound, 5001, 1102, packet.Flags{ACK: true, FIN: true}, 0, 0.60))
	if !ok || flow.State != tcpstate.TIME_WAIT {
		t.Fatalf("after ACK+FIN: state = %v, ok = %v, want TIME_WAIT, true", flow.State, ok)
	}
	if !flow.Waiting {
		t.Error("flow should be enqueued for TIME_WAIT expiry")
	}

	flow, ok = m.Update(seg(packet.DirectionOutbound, 1102, 5002, packet.Flags{ACK: true}, 0, 0.70))
	if !ok || flow.State != tcpstate.TIME_WAIT {
		t.Fatalf("final ack in TIME_WAIT: state = %v, ok = %v, want TIME_WAIT, true", flow.State, ok)
	}

	if m.LiveFlows() != 1 {
		t.Fatalf("LiveFlows() = %d, want 1 before expiry", m.LiveFlows())
	}

	// Advance time past the 60s TIME_WAIT timeout; any subsequent Update
	// (even an unrelated one) runs the sweep.
	m.Update(seg(packet.DirectionOutbound, 1, 0, packet.Flags{SYN: true}, 0, 62.0))
	if m.LiveFlows() != 1 {
		t.Fatalf("LiveFlows() = %d after TIME_WAIT expiry, want 1 (only the new trigger flow)", m.LiveFlows())
	}
}

func TestHalfOpenSweepRemovesUnansweredSYNs(t *testing.T) {
	m := newTestManager()
	for i := 0; i < 100; i++ {
		ipSrc := uint32(0x0B000000 + i)
		p := fakePacket{
			ip:      packet.IPHeader{Src: ipSrc, Dst: ipB, TotalLen: 40, HeaderLen: 5},
			tcp:     packet.TCPHeader{SrcPort: uint16(2000 + i), DstPort: 80, Seq: 1, Flags: packet.Flags{SYN: true}, DataOffset: 5},
			dir:     packet.DirectionOutbound,
			seconds: 0.0,
		}
		if _, ok := m.Update(p); !ok {
			t.Fatalf("SYN %d should create a flow", i)
		}
	}
	if m.LiveFlows() != 100 {
		t.Fatalf("LiveFlows() = %d, want 100", m.LiveFlows())
	}

	_, ok := m.Update(seg(packet.DirectionOutbound, 9999, 0, packet.Flags{SYN: true}, 0, 61.0))
	if !ok {
		t.Fatal("trigger SYN should create a flow")
	}
	if m.LiveFlows() != 1 {
		t.Errorf("LiveFlows() = %d after half-open sweep, want 1 (only the trigger)", m.LiveFlows())
	}
}

func TestTimeWaitReuse(t *testing.T) {
	m := newTestManager()
	m.Update(seg(packet.DirectionOutbound, 1000, 0, packet.Flags{SYN: true}, 0, 0.0))
	m.Update(seg(packet.DirectionInbound, 5000, 1001, packet.Flags{SYN: true, ACK: true}, 0, 0.1))
	m.Update(seg(packet.DirectionOutbound, 1001, 5001, packet.Flags{ACK: true}, 0, 0.2))
	m.Update(seg(packet.DirectionOutbound, 1001, 5001, packet.Flags{FIN: true}, 0, 0.3))
	flow, _ := m.Update(seg(packet.DirectionInbound, 5001, 1002, packet.Flags{ACK: true, FIN: true}, 0, 0.4))
	if flow.State != tcpstate.TIME_WAIT {
		t.Fatalf("state = %v, want TIME_WAIT", flow.State)
	}
	m.Update(seg(packet.DirectionOutbound, 1002, 5002, packet.Flags{ACK: true}, 0, 0.5))

	newFlow, ok := m.Update(seg(packet.DirectionOutbound, 2000, 0, packet.Flags{SYN: true}, 0, 0.6))
	if !ok {
		t.Fatal("new SYN on TIME_WAIT-ed 5-tuple should create a fresh flow")
	}
	if newFlow.State != tcpstate.SYN_SENT {
		t.Errorf("new flow state = %v, want SYN_SENT", newFlow.State)
	}
	if newFlow == flow {
		t.Error("new flow must not be the same record as the freed TIME_WAIT flow")
	}
	if m.LiveFlows() != 1 {
		t.Errorf("LiveFlows() = %d, want 1", m.LiveFlows())
	}
}

func TestResetDestroysFlowOnNextUpdate(t *testing.T) {
	m := newTestManager()
	m.Update(seg(packet.DirectionOutbound, 1000, 0, packet.Flags{SYN: true}, 0, 0.0))
	m.Update(seg(packet.DirectionInbound, 5000, 1001, packet.Flags{SYN: true, ACK: true}, 0, 0.1))
	flow, ok := m.Update(seg(packet.DirectionInbound, 5000, 1001, packet.Flags{RST: true}, 0, 0.2))
	if !ok || flow.State != tcpstate.RESET {
		t.Fatalf("state = %v, ok = %v, want RESET, true", flow.State, ok)
	}
	if m.LiveFlows() != 1 {
		t.Fatalf("LiveFlows() = %d immediately after RST, want 1 (one-packet grace)", m.LiveFlows())
	}

	unrelated := fakePacket{
		ip:      packet.IPHeader{Src: 0x0C000001, Dst: 0x0C000002, TotalLen: 40, HeaderLen: 5},
		tcp:     packet.TCPHeader{SrcPort: 9001, DstPort: 443, Seq: 1, Flags: packet.Flags{SYN: true}, DataOffset: 5},
		dir:     packet.DirectionOutbound,
		seconds: 0.3,
	}
	m.Update(unrelated)
	if m.LiveFlows() != 1 {
		t.Errorf("LiveFlows() = %d, want 1 (reset flow freed, unrelated SYN flow created)", m.LiveFlows())
	}
}

func TestIgnoresNonSYNOnUnknownFlow(t *testing.T) {
	m := newTestManager()
	_, ok := m.Update(seg(packet.DirectionOutbound, 1, 0, packet.Flags{ACK: true}, 0, 0.0))
	if ok {
		t.Error("a non-SYN packet referencing no known flow should be ignored")
	}
	if m.LiveFlows() != 0 {
		t.Errorf("LiveFlows() = %d, want 0", m.LiveFlows())
	}
}
