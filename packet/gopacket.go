package packet

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// GopacketAdapter wraps a gopacket.Packet plus the direction and capture
// time a replay loop has already computed for it, presenting the fixed
// Packet interface the core consumes. Direction must be supplied by the
// caller (the capture substrate, e.g. comparing against a configured
// local-address set) — gopacket has no notion of it.
type GopacketAdapter struct {
	pkt       gopacket.Packet
	direction Direction
	seconds   float64
}

// NewGopacketAdapter builds an adapter around a decoded packet. seconds is
// the capture timestamp as a float; direction is the caller-determined
// 0/1/negative value (see packet.Direction).
func NewGopacketAdapter(pkt gopacket.Packet, direction Direction, seconds float64) *GopacketAdapter {
	return &GopacketAdapter{pkt: pkt, direction: direction, seconds: seconds}
}

func (a *GopacketAdapter) IP() (IPHeader, error) {
	layer := a.pkt.Layer(layers.LayerTypeIPv4)
	if layer == nil {
		return IPHeader{}, ErrNoIPHeader
	}
	ip := layer.(*layers.IPv4)
	return IPHeader{
		Src:       be32(ip.SrcIP.To4()),
		Dst:       be32(ip.DstIP.To4()),
		TotalLen:  int(ip.Length),
		HeaderLen: int(ip.IHL),
		ID:        ip.Id,
	}, nil
}

func (a *GopacketAdapter) TCP() (TCPHeader, error) {
	layer := a.pkt.Layer(layers.LayerTypeTCP)
	if layer == nil {
		return TCPHeader{}, ErrNoTCPHeader
	}
	tcp := layer.(*layers.TCP)
	return TCPHeader{
		SrcPort: uint16(tcp.SrcPort),
		DstPort: uint16(tcp.DstPort),
		Seq:     tcp.Seq,
		Ack:     tcp.Ack,
		Flags: Flags{
			SYN: tcp.SYN,
			ACK: tcp.ACK,
			FIN: tcp.FIN,
			RST: tcp.RST,
		},
		DataOffset: int(tcp.DataOffset),
	}, nil
}

// TCPOptions returns the parsed TCP options. Only meaningful if TCP
// returned no error.
func (a *GopacketAdapter) TCPOptions() []Option {
	layer := a.pkt.Layer(layers.LayerTypeTCP)
	if layer == nil {
		return nil
	}
	tcp := layer.(*layers.TCP)
	opts := make([]Option, 0, len(tcp.Options))
	for _, o := range tcp.Options {
		opts = append(opts, Option{Kind: uint8(o.OptionType), Data: o.OptionData})
	}
	return opts
}

func (a *GopacketAdapter) Direction() Direction {
	return a.direction
}

func (a *GopacketAdapter) Seconds() float64 {
	return a.seconds
}

func (a *GopacketAdapter) WholeSeconds() int64 {
	return int64(a.seconds)
}

func be32(b []byte) uint32 {
	if len(b) != 4 {
		return 0
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
