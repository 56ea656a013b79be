// Package metrics is the library's optional observability surface:
// per-transaction outcome counters and latency histograms, registered with
// a caller-supplied prometheus.Registerer (ambient stack — never required
// to use the library, never the thing being specified).
//
// Grounded on the teacher's metrics.go, which declares package-level
// CounterVec/HistogramVec/GaugeVec with prometheus.NewCounterVec etc. and
// registers them with prometheus.MustRegister. Here those collectors live
// on a struct instead of as package globals, since a Registry must support
// more than one Context (and more than one registerer, e.g. in tests) per
// process, unlike the teacher's single-process-wide server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry holds the collectors this package registers. ObserveTransaction
// feeds TransactionsTotal and TransactionDuration; nothing in the library
// writes to DNSQueriesTotal, CompressionRatio or SubscribeBatchSize.
type Registry struct {
	TransactionsTotal   *prometheus.CounterVec
	TransactionDuration *prometheus.HistogramVec
	DNSQueriesTotal     *prometheus.CounterVec
	CompressionRatio    prometheus.Histogram
	SubscribeBatchSize  prometheus.Histogram
}

// NewRegistry creates and registers a Registry's collectors against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		TransactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pubnub",
			Name:      "transactions_total",
			Help:      "Total transactions by kind and terminal outcome.",
		}, []string{"kind", "outcome"}),
		TransactionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pubnub",
			Name:      "transaction_duration_seconds",
			Help:      "Transaction wall-clock duration by kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		DNSQueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pubnub",
			Name:      "dns_queries_total",
			Help:      "DNS queries issued by the resolver, by result.",
		}, []string{"result"}),
		CompressionRatio: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pubnub",
			Name:      "publish_compression_ratio",
			Help:      "Achieved gzip compression ratio for publish bodies that were compressed.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9},
		}),
		SubscribeBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pubnub",
			Name:      "subscribe_batch_messages",
			Help:      "Number of messages delivered per successful subscribe response.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
	}

	reg.MustRegister(
		r.TransactionsTotal,
		r.TransactionDuration,
		r.DNSQueriesTotal,
		r.CompressionRatio,
		r.SubscribeBatchSize,
	)
	return r
}

// ObserveTransaction records one finished transaction's kind, outcome, and
// duration in seconds.
func (r *Registry) ObserveTransaction(kind, outcomeName string, seconds float64) {
	r.TransactionsTotal.WithLabelValues(kind, outcomeName).Inc()
	r.TransactionDuration.WithLabelValues(kind).Observe(seconds)
}
