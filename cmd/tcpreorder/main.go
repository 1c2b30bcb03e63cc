// Main package in tcpreorder replays a pcap capture through the Session
// Manager, driving the handshake and sequence RTT estimators and the
// Reordering Classifier for every flow observed, and serving the
// resulting Prometheus metrics until the capture is exhausted.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/m-lab/tcp-reorder/analyzer"
	"github.com/m-lab/tcp-reorder/analyzers"
	"github.com/m-lab/tcp-reorder/packet"
	"github.com/m-lab/tcp-reorder/session"
)

func init() {
	// Always prepend the filename and line number.
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	pcapFile = flag.String("pcap", "", "Path to a pcap file to replay. Empty reads from stdin.")
	localNet = flag.String("local-net", "", "CIDR of the local network; packets sourced from it are classified outbound, packets destined to it inbound, all others dropped.")
	promAddr = flag.String("prom", ":9090", "Prometheus metrics export address and port.")

	ctx, cancel = context.WithCancel(context.Background())

	// logFatal is mocked out in tests.
	logFatal = log.Fatal
)

func main() {
	flag.Parse()
	flagx.ArgsFromEnv(flag.CommandLine)
	defer cancel()

	if *localNet == "" {
		logFatal("tcpreorder: -local-net is required, e.g. -local-net=192.168.1.0/24")
	}
	_, localCIDR, err := net.ParseCIDR(*localNet)
	rtx.Must(err, "Could not parse -local-net %q", *localNet)

	promSrv := prometheusx.MustStartPrometheus(*promAddr)
	defer promSrv.Shutdown(ctx)

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
	registry.Register(analyzers.NewHandshakeAnalyzer())
	registry.Register(analyzers.NewReorderAnalyzer())

	mgr := session.NewManager(registry)
	defer mgr.Destroy()

	seen, dropped := replay(mgr, reader, localCIDR)
	log.Printf("tcpreorder: processed %d packets (%d dropped), %d flows still live", seen, dropped, mgr.LiveFlows())
}

// replay feeds every packet decodable from reader through mgr, returning
// the total packets seen and the number the Session Manager dropped
// (no usable header, unclassifiable direction, or a non-SYN on an
// unknown flow).
func replay(mgr *session.Manager, reader *pcapgo.Reader, localCIDR *net.IPNet) (seen, dropped int) {
	for {
		data, ci, err := reader.ReadPacketData()
		if err != nil {
			break
		}
		seen++

		gp := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Lazy)
		dir := direction(gp, localCIDR)
		seconds := float64(ci.Timestamp.UnixNano()) / 1e9

		adapter := packet.NewGopacketAdapter(gp, dir, seconds)
		if _, ok := mgr.Update(adapter); !ok {
			dropped++
		}
	}
	return seen, dropped
}

// direction classifies a decoded packet as outbound (source in localCIDR),
// inbound (destination in localCIDR), or unknown (neither, or no IPv4
// layer present).
func direction(gp gopacket.Packet, localCIDR *net.IPNet) packet.Direction {
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
