// Package metrics mirrors a pool's PoolStats snapshot onto Prometheus
// counters and gauges. It is entirely optional: nothing in the pool package
// imports this package, a caller wires it explicitly (SPEC_FULL.md §3),
// keeping statistics aggregation out of the pool's own scope per spec.md
// §1's non-goal while still giving it a contract-shaped home.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Snapshot is the subset of pool.PoolStats this recorder needs. Pool does
// not import this package, so the field names are duplicated rather than
// shared via a type alias.
type Snapshot struct {
	NumIdle                    int
	NumActive                  int
	CreatedCount               int64
	DestroyedCount             int64
	DestroyedByEvictorCount    int64
	DestroyedByValidationCount int64
	BorrowedCount              int64
	ReturnedCount              int64
}

// PrometheusRecorder exposes a pool's PoolStats as six counters and two
// gauges under the given namespace/subsystem.
type PrometheusRecorder struct {
	idle      prometheus.Gauge
	active    prometheus.Gauge
	created   prometheus.Counter
	destroyed prometheus.Counter
	evicted   prometheus.Counter
	invalid   prometheus.Counter
	borrowed  prometheus.Counter
	returned  prometheus.Counter
}

// NewPrometheusRecorder builds and registers the recorder's metrics against
// reg. Pass prometheus.DefaultRegisterer to use the global registry.
func NewPrometheusRecorder(reg prometheus.Registerer, namespace, subsystem string) *PrometheusRecorder {
	r := &PrometheusRecorder{
		idle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "idle_objects",
			Help: "Number of idle pooled objects.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "active_objects",
			Help: "Number of borrowed pooled objects.",
		}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "created_total",
			Help: "Total objects created by the factory.",
		}),
		destroyed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "destroyed_total",
			Help: "Total objects destroyed for any reason.",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "destroyed_by_evictor_total",
			Help: "Total objects destroyed by the background evictor.",
		}),
		invalid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "destroyed_by_validation_total",
			Help: "Total objects destroyed for failing validation.",
		}),
		borrowed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "borrowed_total",
			Help: "Total successful borrows.",
		}),
		returned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "returned_total",
			Help: "Total successful returns.",
		}),
	}
	reg.MustRegister(r.idle, r.active, r.created, r.destroyed, r.evicted, r.invalid, r.borrowed, r.returned)
	return r
}

// Observe sets the gauges from snap and advances each counter by the
// difference between snap and prev. The recorder keeps no totals of its
// own: prev is the snapshot the caller passed as snap on the previous call
// (the zero Snapshot on the first), and snap's counters must be no smaller
// than prev's.
func (r *PrometheusRecorder) Observe(prev, snap Snapshot) {
	r.idle.Set(float64(snap.NumIdle))
	r.active.Set(float64(snap.NumActive))
	r.created.Add(float64(snap.CreatedCount - prev.CreatedCount))
	r.destroyed.Add(float64(snap.DestroyedCount - prev.DestroyedCount))
	r.evicted.Add(float64(snap.DestroyedByEvictorCount - prev.DestroyedByEvictorCount))
	r.invalid.Add(float64(snap.DestroyedByValidationCount - prev.DestroyedByValidationCount))
	r.borrowed.Add(float64(snap.BorrowedCount - prev.BorrowedCount))
	r.returned.Add(float64(snap.ReturnedCount - prev.ReturnedCount))
}
