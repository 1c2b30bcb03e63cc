// Package analyzers supplies the concrete analyzer.Descriptors this
// repository ships: handshake RTT estimation and sequence-RTT-driven
// reordering classification, wired for registration with a
// session.Manager via analyzer.Registry.Register.
package analyzers

import (
	"github.com/m-lab/tcp-reorder/analyzer"
	"github.com/m-lab/tcp-reorder/metrics"
	"github.com/m-lab/tcp-reorder/packet"
	"github.com/m-lab/tcp-reorder/reorder"
	"github.com/m-lab/tcp-reorder/rtt"
)

// handshakeState is the per-flow state behind the "handshake_rtt" analyzer.
type handshakeState struct {
	estimator *rtt.Handshake
}

// NewHandshakeAnalyzer returns the descriptor that estimates RTT from the
// three-way handshake alone. Its output is a one-shot sample per
// direction. The reorder analyzer keeps its own continuously updated
// sequence estimator, which is not exposed outside this package.
func NewHandshakeAnalyzer() analyzer.Descriptor {
	return analyzer.Descriptor{
		Name: "handshake_rtt",
		Create: func() analyzer.State {
			return &handshakeState{estimator: rtt.NewHandshake()}
		},
		OnPacket: func(s analyzer.State, p packet.Packet, dir packet.Direction) {
			tcp, err := p.TCP()
			if err != nil {
				return
			}
			st := s.(*handshakeState)
			wasEstablished := st.estimator.Established()
			st.estimator.OnPacket(dir, tcp.Flags, p.Seconds())
			if !wasEstablished && st.estimator.Established() {
				if v, ok := st.estimator.InsideRTT(); ok {
					metrics.RTTSampleHistogram.WithLabelValues("handshake").Observe(v)
				}
				if v, ok := st.estimator.OutsideRTT(); ok {
					metrics.RTTSampleHistogram.WithLabelValues("handshake").Observe(v)
				}
			}
		},
	}
}

// HandshakeRTT extracts the handshake estimator's inside/outside samples
// from a state value produced by the handshake_rtt analyzer's Create, for
// callers (e.g. cmd/flowsummary) reading a flow's AnalyzerStates slot
// directly by its registered index.
func HandshakeRTT(state analyzer.State) (inside, outside float64, ok bool) {
	st, matches := state.(*handshakeState)
	if !matches {
		return 0, 0, false
	}
	insideVal, insideOK := st.estimator.InsideRTT()
	outsideVal, outsideOK := st.estimator.OutsideRTT()
	return insideVal, outsideVal, insideOK && outsideOK
}

// reorderState is the per-flow state behind the "reorder" analyzer: a
// sequence-number RTT estimator feeding a Reordering Classifier it alone
// drives, per spec.md's dependency-injection design for the classifier.
type reorderState struct {
	estimator  *rtt.Sequence
	classifier *reorder.Classifier
	tally      [6]int
}

// NewReorderAnalyzer returns the descriptor that drives sequence-based RTT
// estimation and reordering classification for every flow.
func NewReorderAnalyzer() analyzer.Descriptor {
	return analyzer.Descriptor{
		Name: "reorder",
		Create: func() analyzer.State {
			estimator := rtt.NewSequence()
			return &reorderState{estimator: estimator, classifier: reorder.New(estimator)}
		},
		OnPacket: func(s analyzer.State, p packet.Packet, dir packet.Direction) {
			ip, err := p.IP()
			if err != nil {
				return
			}
			tcp, err := p.TCP()
			if err != nil {
				return
			}
			st := s.(*reorderState)
			payloadLen := uint32(packet.PayloadLen(ip, tcp))
			now := p.Seconds()

			st.estimator.OnPacket(dir, tcp.Seq, tcp.Ack, payloadLen, now)
			if sample, ok := st.estimator.LastSample(); ok {
				metrics.RTTSampleHistogram.WithLabelValues("sequence").Observe(sample)
			}

			// Always let the classifier see the packet: its ack processing
			// (reorder.go's ackProcess) must run for every packet, not just
			// ones carrying a payload. Only tally a classification outcome
			// for segments it actually classified.
			st.classifier.OnPacket(dir, tcp.Seq, tcp.Ack, ip.ID, payloadLen, now)
			if payloadLen == 0 {
				return
			}
			st.tally[st.classifier.GetType()]++
			metrics.ClassifierOutcomes.WithLabelValues(st.classifier.GetType().String()).Inc()
		},
	}
}

// ReorderTally extracts the per-outcome classification counts accumulated
// by the reorder analyzer, for a flow's AnalyzerStates slot at its
// registered index.
func ReorderTally(state analyzer.State) (tally [6]int, ok bool) {
	st, matches := state.(*reorderState)
	if !matches {
		return tally, false
	}
	return st.tally, true
}
