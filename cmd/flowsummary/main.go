// Main package in flowsummary implements a command line tool for
// replaying a pcap capture through the Session Manager and, once the
// capture is exhausted, emitting one CSV row per flow ever observed:
// its canonical 5-tuple, final TCP state, handshake RTT (if the
// handshake completed), and reordering-classifier outcome tallies.
//
// This is a reporting shim consuming the core's output; see
// cmd/csvtool in the teacher repo for the gocsv pattern it follows.
package main

import (
	"encoding/binary"
	"flag"
	"log"
	"net"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"

	"github.com/m-lab/tcp-reorder/analyzer"
	"github.com/m-lab/tcp-reorder/analyzers"
	"github.com/m-lab/tcp-reorder/flowid"
	"github.com/m-lab/tcp-reorder/packet"
	"github.com/m-lab/tcp-reorder/session"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	pcapFile = flag.String("pcap", "", "Path to a pcap file to replay. Empty reads from stdin.")
	localNet = flag.String("local-net", "", "CIDR of the local network; packets sourced from it are classified outbound, packets destined to it inbound, all others dropped.")

	// logFatal is mocked out in tests.
	logFatal = log.Fatal
)

// FlowSummary is one CSV row: a flow's canonical identity, final state,
// handshake RTT (if ever established), and reordering tallies.
type FlowSummary struct {
	IPA                string  `csv:"ip_a"`
	IPB                string  `csv:"ip_b"`
	PortA              uint16  `csv:"port_a"`
	PortB              uint16  `csv:"port_b"`
	FinalState         string  `csv:"final_state"`
	HandshakeRTTKnown  bool    `csv:"handshake_rtt_known"`
	HandshakeInsideS   float64 `csv:"handshake_rtt_inside_s"`
	HandshakeOutsideS  float64 `csv:"handshake_rtt_outside_s"`
	InOrder            int     `csv:"in_order"`
	High               int     `csv:"high"`
	Retransmissions    int     `csv:"retransmissions"`
	NetworkDuplicates  int     `csv:"network_duplicates"`
	NetworkReorderings int     `csv:"network_reorderings"`
	Unknown            int     `csv:"unknown"`
}

func main() {
	flag.Parse()
	flagx.ArgsFromEnv(flag.CommandLine)

	if *localNet == "" {
		logFatal("flowsummary: -local-net is required, e.g. -local-net=192.168.1.0/24")
	}
	_, localCIDR, err := net.ParseCIDR(*localNet)
	rtx.Must(err, "Could not parse -local-net %q", *localNet)

	source := os.Stdin
	if *pcapFile != "" {
		f, err := os.Open(*pcapFile)
		rtx.Must(err, "Could not open %q", *pcapFile)
		defer f.Close()
		source = f
	}

	reader, err := pcapgo.NewReader(source)
	rtx.Must(err, "Could not read pcap header")

	registry := analyzer.NewRegistry()
	handshakeIdx := registry.Register(analyzers.NewHandshakeAnalyzer())
	reorderIdx := registry.Register(analyzers.NewReorderAnalyzer())

	mgr := session.NewManager(registry)
	defer mgr.Destroy()

	seen, flowsByID := replayAndTrack(mgr, reader, localCIDR)
	log.Printf("flowsummary: processed %d packets, %d distinct flows", seen, len(flowsByID))

	summaries := make([]*FlowSummary, 0, len(flowsByID))
	for _, flow := range flowsByID {
		summaries = append(summaries, summarize(flow, handshakeIdx, reorderIdx))
	}
	rtx.Must(gocsv.Marshal(summaries, os.Stdout), "Could not write CSV output")
}

// replayAndTrack feeds every packet decodable from reader through mgr,
// remembering every flow ever seen keyed by its canonical ID so a flow's
// last known state survives its eventual destruction by the Session
// Manager (TIME_WAIT expiry, RESET, or the half-open sweep).
func replayAndTrack(mgr *session.Manager, reader *pcapgo.Reader, localCIDR *net.IPNet) (seen int, flowsByID map[flowid.ID]*session.Flow) {
	flowsByID = map[flowid.ID]*session.Flow{}
	for {
		data, ci, err := reader.ReadPacketData()
		if err != nil {
			break
		}
		seen++

		gp := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Lazy)
		dir := classifyDirection(gp, localCIDR)
		seconds := float64(ci.Timestamp.UnixNano()) / 1e9

		adapter := packet.NewGopacketAdapter(gp, dir, seconds)
		flow, ok := mgr.Update(adapter)
		if ok {
			flowsByID[flow.ID] = flow
		}
	}
	return seen, flowsByID
}

func classifyDirection(gp gopacket.Packet, localCIDR *net.IPNet) packet.Direction {
	layer := gp.Layer(layers.LayerTypeIPv4)
	if layer == nil {
		return packet.DirectionUnknown
	}
	ip := layer.(*layers.IPv4)
	switch {
	case localCIDR.Contains(ip.SrcIP):
		return packet.DirectionOutbound
	case localCIDR.Contains(ip.DstIP):
		return packet.DirectionInbound
	default:
		return packet.DirectionUnknown
	}
}

func summarize(flow *session.Flow, handshakeIdx, reorderIdx int) *FlowSummary {
	s := &FlowSummary{
		IPA:        ipString(flow.ID.IPA),
		IPB:        ipString(flow.ID.IPB),
		PortA:      flow.ID.PortA,
		PortB:      flow.ID.PortB,
		FinalState: flow.State.String(),
	}
	if inside, outside, ok := analyzers.HandshakeRTT(flow.AnalyzerStates[handshakeIdx]); ok {
		s.HandshakeRTTKnown = true
		s.HandshakeInsideS = inside
		s.HandshakeOutsideS = outside
	}
	if tally, ok := analyzers.ReorderTally(flow.AnalyzerStates[reorderIdx]); ok {
		s.InOrder = tally[0]
		s.High = tally[1]
		s.Retransmissions = tally[2]
		s.NetworkDuplicates = tally[3]
		s.NetworkReorderings = tally[4]
		s.Unknown = tally[5]
	}
	return s
}

func ipString(ip uint32) string {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, ip)
	return net.IP(b).String()
}
