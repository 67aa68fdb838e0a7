package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FlushTotal counts flush attempts by transport and result
	FlushTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tqingest_flush_total",
			Help: "Total number of buffer flushes",
		},
		[]string{"transport", "result"},
	)

	// FlushBytes tracks the payload size of each flush
	FlushBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tqingest_flush_bytes",
			Help:    "Bytes sent per flush",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		},
		[]string{"transport"},
	)

	// FlushRows tracks the number of rows in each flush
	FlushRows = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tqingest_flush_rows",
			Help:    "Rows sent per flush",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
		[]string{"transport"},
	)

	// FlushLatency tracks flush latency, retries included
	FlushLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tqingest_flush_latency_seconds",
			Help:    "Flush latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"transport"},
	)

	// RetriesTotal counts retried HTTP requests
	RetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tqingest_retries_total",
			Help: "Total number of retried ILP/HTTP requests",
		},
	)

	// AutoFlushTotal counts automatic flushes by the threshold that fired
	AutoFlushTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tqingest_auto_flush_total",
			Help: "Total number of automatic flushes",
		},
		[]string{"reason"},
	)

	// TransactionsTotal counts finished transactions by result
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tqingest_transactions_total",
			Help: "Total number of committed, failed and rolled back transactions",
		},
		[]string{"result"},
	)

	once sync.Once
)

// Init registers all metrics with Prometheus
func Init() {
	once.Do(func() {
		prometheus.MustRegister(FlushTotal)
		prometheus.MustRegister(FlushBytes)
		prometheus.MustRegister(FlushRows)
		prometheus.MustRegister(FlushLatency)
		prometheus.MustRegister(RetriesTotal)
		prometheus.MustRegister(AutoFlushTotal)
		prometheus.MustRegister(TransactionsTotal)
	})
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
