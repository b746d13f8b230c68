package segcache

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "hlscache"

type metrics struct {
	registered    prometheus.Counter
	fetches       *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	serves        *prometheus.CounterVec
	waitDuration  prometheus.Histogram
	evicted       prometheus.Counter
}

func newMetrics(reg prometheus.Registerer, store *Store) *metrics {
	m := &metrics{
		registered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "segments_registered_total",
			Help:      "Segments registered by playlist rewrites.",
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fetches_total",
			Help:      "Finished segment fetches by result.",
		}, []string{"result"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time spent downloading one segment from its origin.",
			Buckets:   prometheus.DefBuckets,
		}),
		serves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "serves_total",
			Help:      "Segment requests by result.",
		}, []string{"result"}),
		waitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "serve_wait_seconds",
			Help:      "Time segment requests spent waiting for a pending download.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45},
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "segments_evicted_total",
			Help:      "Segments removed by the janitor.",
		}),
	}

	size := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "segments",
		Help:      "Segment records currently held in the store.",
	}, func() float64 {
		return float64(store.Len())
	})

	reg.MustRegister(
		m.registered,
		m.fetches,
		m.fetchDuration,
		m.serves,
		m.waitDuration,
		m.evicted,
		size,
	)

	return m
}
