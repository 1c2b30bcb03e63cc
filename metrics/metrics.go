// Package metrics defines the Prometheus metric types for the flow core
// and provides convenience accounting calls for the session manager, RTT
// estimators, and reordering classifier.
package metrics

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FlowsCreated counts flows created from an unsolicited bare SYN.
	FlowsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tcpreorder_flows_created_total",
			Help: "Number of flow records created from an observed SYN.",
		},
	)

	// FlowsReset counts flows torn down because a RST was observed.
	FlowsReset = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tcpreorder_flows_reset_total",
			Help: "Number of flows that transitioned to RESET.",
		},
	)

	// FlowsExpiredHalfOpen counts flows removed by the handshake sweep.
	FlowsExpiredHalfOpen = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tcpreorder_flows_expired_half_open_total",
			Help: "Number of SYN_SENT/SYN_RCVD flows removed by the handshake sweep.",
		},
	)

	// TimeWaitQueueDepth tracks the current number of flows pending
	// TIME_WAIT expiry.
	TimeWaitQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tcpreorder_time_wait_queue_depth",
			Help: "Current number of flows queued for TIME_WAIT expiry.",
		},
	)

	// TimeWaitOverflows counts attempts to enqueue a flow for TIME_WAIT
	// expiry once the bounded queue is already full.
	TimeWaitOverflows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tcpreorder_time_wait_overflow_total",
			Help: "Number of TIME_WAIT enqueue attempts dropped because the queue was full.",
		},
	)

	// ClassifierOutcomes tracks the reordering classifier's verdict for
	// each data-bearing packet, labeled by the classification name.
	ClassifierOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcpreorder_classifier_outcomes_total",
			Help: "Count of data-segment classifications by outcome.",
		}, []string{"outcome"})

	// RTTSampleHistogram tracks RTT samples taken by the estimators,
	// labeled by estimator kind. Sequence samples are recorded whether or
	// not they pass the estimator's 20 s age limit.
	RTTSampleHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "tcpreorder_rtt_sample_seconds",
			Help: "Distribution of round-trip-time samples taken by the estimators.",
			Buckets: []float64{
				0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20,
			},
		}, []string{"estimator"})
)

func init() {
	log.Println("Prometheus metrics in tcp-reorder/metrics are registered.")
}
