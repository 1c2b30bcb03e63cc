// Package packet defines the accessor interface the Session Manager, RTT
// estimators, and Reordering Classifier consume, decoupling the core from
// any particular capture library.
package packet

import "errors"

// ErrNoIPHeader and ErrNoTCPHeader mark packets the core is instructed to
// drop silently: they carry no usable header of the relevant kind.
var (
	ErrNoIPHeader  = errors.New("packet: no IPv4 header")
	ErrNoTCPHeader = errors.New("packet: no TCP header")
)

// Flags holds the TCP control bits the core inspects. Other bits (PSH,
// URG, ECE, CWR) are part of the wire format but never consulted by the
// state machine or classifier, so they are not exposed here.
type Flags struct {
	SYN bool
	ACK bool
	FIN bool
	RST bool
}

// IPHeader is the subset of the IPv4 header the core reads. Addresses are
// host-order uint32s; callers decoding wire bytes must byte-swap first
// (see flowid.IPv4ToUint32).
type IPHeader struct {
	Src       uint32
	Dst       uint32
	TotalLen  int
	HeaderLen int // hl, in 32-bit words
	ID        uint16
}

// TCPHeader is the subset of the TCP header the core reads.
type TCPHeader struct {
	SrcPort    uint16
	DstPort    uint16
	Seq        uint32
	Ack        uint32
	Flags      Flags
	DataOffset int // tcp.off, in 32-bit words
}

// Option is one parsed TCP option (kind, its payload bytes excluding the
// kind/length octets themselves).
type Option struct {
	Kind uint8
	Data []byte
}

// Direction is 0 (outbound, relative to the observation point) or 1
// (inbound). A negative value means the capture source could not assign
// a direction and the packet must be dropped.
type Direction int

const (
	DirectionOutbound Direction = 0
	DirectionInbound  Direction = 1
	DirectionUnknown  Direction = -1
)

// Packet is the opaque handle the core operates on.
type Packet interface {
	// IP returns the IPv4 header, or ErrNoIPHeader if the packet has none.
	IP() (IPHeader, error)
	// TCP returns the TCP header, or ErrNoTCPHeader if the packet has none.
	TCP() (TCPHeader, error)
	// TCPOptions returns the parsed TCP options, valid only if TCP
	// succeeded.
	TCPOptions() []Option
	// Direction reports which side of the flow sent this packet.
	Direction() Direction
	// Seconds is the capture timestamp as a floating-point number of
	// seconds.
	Seconds() float64
	// WholeSeconds is the capture timestamp truncated to whole seconds.
	WholeSeconds() int64
}

// PayloadLen computes the TCP payload length from the IP and TCP headers,
// per spec.md §4.3: ip.total_length - (ip.hl + tcp.off) * 4.
func PayloadLen(ip IPHeader, tcp TCPHeader) int {
	n := ip.TotalLen - (ip.HeaderLen+tcp.DataOffset)*4
	if n < 0 {
		return 0
	}
	return n
}
