package pool

// PoolStats is the narrow statistics contract spec.md §1/§7 leaves in
// scope: plain counts, no aggregation, no JMX/exporter. SinglePool and
// KeyedPool both expose a Stats() snapshot of this shape. Code inside this
// module can mirror those counts onto Prometheus by copying them into a
// metrics.Snapshot for internal/metrics.PrometheusRecorder (SPEC_FULL.md
// §3); as an internal package it cannot be imported from outside this
// module, and this package does not depend on Prometheus.
type PoolStats struct {
	NumIdle                    int
	NumActive                  int
	CreatedCount               int64
	DestroyedCount             int64
	DestroyedByEvictorCount    int64
	DestroyedByValidationCount int64
	BorrowedCount              int64
	ReturnedCount              int64
}
