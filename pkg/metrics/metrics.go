// Package metrics is the ambient Prometheus bridge: a handful of
// controller-internal counters/gauges, plus a poller that folds
// varnishstat's own counters into the same registry. spec.md treats the
// HTTP metrics endpoint itself as an external collaborator; this package
// only owns what gets incremented/observed and the promhttp.Handler a
// caller mounts.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RenderDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "vingress_render_duration_seconds",
		Help: "Time spent rendering the cache process configuration.",
	})

	ReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vingress_reloads_total",
			Help: "Total number of cache process reload attempts by outcome.",
		},
		[]string{"outcome"},
	)

	IsLeader = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vingress_is_leader",
		Help: "Whether this replica currently holds the leader lease (1) or not (0).",
	})

	BackendsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vingress_backends_total",
		Help: "Number of backends in the most recently rendered configuration.",
	})

	VarnishMainCounter = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vingress_varnish_main",
			Help: "Raw MAIN.* counters reported by varnishstat.",
		},
		[]string{"counter"},
	)
)

func init() {
	prometheus.MustRegister(RenderDuration)
	prometheus.MustRegister(ReloadsTotal)
	prometheus.MustRegister(IsLeader)
	prometheus.MustRegister(BackendsTotal)
	prometheus.MustRegister(VarnishMainCounter)
}

// Handler exposes the registry for a caller to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
