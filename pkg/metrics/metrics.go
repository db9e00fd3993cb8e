// Package metrics holds the prometheus collectors of one store instance.
package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
)

type Metrics struct {
	Batches     *prometheus.CounterVec
	Conflicts   prometheus.Counter
	Pruned      prometheus.Counter
	ActiveTxns  prometheus.Gauge
	ClaimedKeys prometheus.Gauge
	CommitOps   prometheus.Histogram
}

func New(namespace string) *Metrics {
	return &Metrics{
		Batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "batch",
				Name:      "total",
				Help:      "Counter of finished batches by outcome.",
			}, []string{"outcome"}),
		Conflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "txn",
				Name:      "conflicts_total",
				Help:      "Counter of writes rejected because the key was claimed by another txn.",
			}),
		Pruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "txn",
				Name:      "pruned_total",
				Help:      "Counter of txn records removed from the txn table.",
			}),
		ActiveTxns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "txn",
				Name:      "active",
				Help:      "Number of txns created and not yet completed.",
			}),
		ClaimedKeys: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "txn",
				Name:      "claimed_keys",
				Help:      "Number of keys currently claimed in the ownership table.",
			}),
		CommitOps: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "batch",
				Name:      "commit_ops",
				Help:      "Bucketed histogram of operations replayed per commit.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Batches, m.Conflicts, m.Pruned, m.ActiveTxns, m.ClaimedKeys, m.CommitOps}
}

// Register adds every collector to r. A nil r is a no-op.
func (m *Metrics) Register(r prometheus.Registerer) error {
	if r == nil {
		return nil
	}
	for _, c := range m.collectors() {
		if err := r.Register(c); err != nil {
			return errors.Wrap(err, "register store metrics")
		}
	}
	return nil
}
