package main

import (
	"testing"

	"github.com/go-test/deep"

	"github.com/m-lab/tcp-reorder/analyzer"
	"github.com/m-lab/tcp-reorder/analyzers"
	"github.com/m-lab/tcp-reorder/flowid"
	"github.com/m-lab/tcp-reorder/session"
	"github.com/m-lab/tcp-reorder/tcpstate"
)

func TestIPStringRoundTrips(t *testing.T) {
	want := "192.168.1.10"
	ip := flowid.IPv4ToUint32([4]byte{192, 168, 1, 10})
	if got := ipString(ip); got != want {
		t.Errorf("ipString(%d) = %q, want %q", ip, got, want)
	}
}

func TestSummarizeReadsAnalyzerStatesByIndex(t *testing.T) {
	registry := analyzer.NewRegistry()
	handshakeIdx := registry.Register(analyzers.NewHandshakeAnalyzer())
	reorderIdx := registry.Register(analyzers.NewReorderAnalyzer())

	flow := &session.Flow{
		ID:             flowid.ID{IPA: 1, IPB: 2, PortA: 1234, PortB: 80},
		State:          tcpstate.ESTABLISHED,
		AnalyzerStates: registry.CreateAll(),
	}

	got := summarize(flow, handshakeIdx, reorderIdx)
	want := &FlowSummary{
		IPA:        "0.0.0.1",
		IPB:        "0.0.0.2",
		PortA:      1234,
		PortB:      80,
		FinalState: "ESTABLISHED",
	}
	if diff := deep.Equal(got, want); diff != nil {
		t.Errorf("summarize() mismatch: %v", diff)
	}
}
