package usecase

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics updated by the mirror loop, served at /metrics.
var (
	mtxPollCycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mirror_poll_cycles_total",
			Help: "Completed poll cycles",
		},
	)

	mtxMirrorOpens = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mirror_opens_total",
			Help: "Reverse positions opened and linked",
		},
	)

	mtxMirrorCloses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_closes_total",
			Help: "Mirror pairs closed, split by reason",
		},
		[]string{"reason"}, // ORIGINAL_CLOSED | REVERSE_CLOSED
	)

	mtxOrderErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_order_errors_total",
			Help: "Bridge/terminal request failures, split by operation",
		},
		[]string{"op"}, // positions | select | tick | open | close | sltp
	)

	gaugeActivePairs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mirror_active_pairs",
			Help: "Live original->reverse pairs",
		},
	)
)

func init() {
	prometheus.MustRegister(
		mtxPollCycles,
		mtxMirrorOpens,
		mtxMirrorCloses,
		mtxOrderErrors,
		gaugeActivePairs,
	)
}
