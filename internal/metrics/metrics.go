package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	pollBatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "telegram_poll_batches_total",
			Help: "Non-empty getUpdates batches received.",
		},
	)

	transportErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_transport_errors_total",
			Help: "Failed Bot API calls per endpoint.",
		},
		[]string{"endpoint"},
	)

	updatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_updates_total",
			Help: "Updates classified by payload kind.",
		},
		[]string{"kind"},
	)

	dispatchFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_dispatch_failures_total",
			Help: "Handler failures per payload kind.",
		},
		[]string{"kind"},
	)

	pollOffset = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "telegram_poll_offset",
			Help: "Offset the poller will request next.",
		},
	)
)

// MustRegister registers the collectors with the default registry (idempotent).
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(
			pollBatchesTotal, transportErrorsTotal,
			updatesTotal, dispatchFailuresTotal,
			pollOffset,
		)
	})
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func IncBatch() { pollBatchesTotal.Inc() }

func IncTransportError(endpoint string) {
	transportErrorsTotal.WithLabelValues(norm(endpoint)).Inc()
}

func IncUpdate(kind string) {
	updatesTotal.WithLabelValues(norm(kind)).Inc()
}

func IncDispatchFailure(kind string) {
	dispatchFailuresTotal.WithLabelValues(norm(kind)).Inc()
}

func SetOffset(offset int64) { pollOffset.Set(float64(offset)) }
