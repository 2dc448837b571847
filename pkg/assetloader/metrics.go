package assetloader

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	resolveTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zenassets_resolve_total",
		Help: "Total number of asset resolution attempts",
	}, []string{"asset", "resolver", "status"})

	resolveDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zenassets_resolve_duration_seconds",
		Help:    "Duration of asset resolution attempts, including decoding",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 10), // 0.5ms to ~250ms
	}, []string{"asset", "resolver"})

	unavailableTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zenassets_unavailable_total",
		Help: "Total number of loads where no location yielded the asset",
	}, []string{"asset"})
)

func init() {
	// Register all metrics with controller-runtime's registry
	metrics.Registry.MustRegister(
		resolveTotal,
		resolveDuration,
		unavailableTotal,
	)
}

// RecordResolve records a single resolution attempt
func RecordResolve(asset, resolverType, status string, durationSeconds float64) {
	resolveDuration.WithLabelValues(asset, resolverType).Observe(durationSeconds)
	resolveTotal.WithLabelValues(asset, resolverType, status).Inc()
}

// RecordUnavailable records an asset for which every attempt failed
func RecordUnavailable(asset string) {
	unavailableTotal.WithLabelValues(asset).Inc()
}
