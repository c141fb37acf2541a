// Package metrics exposes the spool's Prometheus instrumentation. It is
// optional: every recorder is a no-op until Init is called, so a caller
// that never wires a registry pays nothing for it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps the Prometheus collectors for the spool.
type Metrics struct {
	registry *prometheus.Registry

	messagesStoredTotal     *prometheus.CounterVec
	messagesPublishedTotal  prometheus.Counter
	messagesConfirmedTotal  prometheus.Counter
	messagesDroppedTotal    prometheus.Counter
	capacityRejectionsTotal prometheus.Counter
	identityResetsTotal     prometheus.Counter

	staleMessagesPurgedTotal     *prometheus.CounterVec
	repairDuplicatesRemovedTotal prometheus.Counter

	housekeeperTickDuration prometheus.Histogram
	spoolDepth              prometheus.Gauge

	poolTotalConns    prometheus.Gauge
	poolIdleConns     prometheus.Gauge
	poolAcquiredConns prometheus.Gauge
	poolMaxConns      prometheus.Gauge
}

var m *Metrics

// Init builds the registry and registers every collector. Safe to call
// once at process start; subsequent calls are no-ops.
func Init(namespace string) *Metrics {
	if m != nil {
		return m
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	mm := &Metrics{
		registry: registry,

		messagesStoredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_stored_total", Help: "Total messages accepted by Store, by priority.",
		}, []string{"priority"}),

		messagesPublishedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_published_total", Help: "Total messages marked published.",
		}),
		messagesConfirmedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_confirmed_total", Help: "Total messages marked confirmed.",
		}),
		messagesDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_dropped_total", Help: "Total in-flight messages marked dropped.",
		}),
		capacityRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "capacity_rejections_total", Help: "Total Store calls rejected with CapacityReached.",
		}),
		identityResetsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "identity_resets_total", Help: "Total identity-sequence reset-and-retry attempts.",
		}),

		staleMessagesPurgedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stale_messages_purged_total", Help: "Total rows purged by DeleteStale, by sweep.",
		}, []string{"sweep"}),
		repairDuplicatesRemovedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "repair_duplicates_removed_total", Help: "Total rows removed by the repair routine.",
		}),

		housekeeperTickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "housekeeper_tick_duration_seconds", Help: "Duration of each housekeeper tick.",
			Buckets: prometheus.DefBuckets,
		}),
		spoolDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "spool_depth", Help: "Row count observed after the last housekeeper tick.",
		}),

		poolTotalConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "db_pool_total_conns", Help: "Total pooled connections.",
		}),
		poolIdleConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "db_pool_idle_conns", Help: "Idle pooled connections.",
		}),
		poolAcquiredConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "db_pool_acquired_conns", Help: "Acquired pooled connections.",
		}),
		poolMaxConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "db_pool_max_conns", Help: "Configured maximum pooled connections.",
		}),
	}

	registry.MustRegister(
		mm.messagesStoredTotal, mm.messagesPublishedTotal, mm.messagesConfirmedTotal,
		mm.messagesDroppedTotal, mm.capacityRejectionsTotal, mm.identityResetsTotal,
		mm.staleMessagesPurgedTotal, mm.repairDuplicatesRemovedTotal,
		mm.housekeeperTickDuration, mm.spoolDepth,
		mm.poolTotalConns, mm.poolIdleConns, mm.poolAcquiredConns, mm.poolMaxConns,
	)

	m = mm
	return m
}

// Registry returns the Prometheus registry, or nil if Init was never called.
func Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func RecordStored(priority int) {
	if m == nil {
		return
	}
	m.messagesStoredTotal.WithLabelValues(priorityLabel(priority)).Inc()
}

func RecordPublished() {
	if m == nil {
		return
	}
	m.messagesPublishedTotal.Inc()
}

func RecordConfirmed() {
	if m == nil {
		return
	}
	m.messagesConfirmedTotal.Inc()
}

func RecordDropped() {
	if m == nil {
		return
	}
	m.messagesDroppedTotal.Inc()
}

func RecordCapacityRejection() {
	if m == nil {
		return
	}
	m.capacityRejectionsTotal.Inc()
}

func RecordIdentityReset() {
	if m == nil {
		return
	}
	m.identityResetsTotal.Inc()
}

func RecordStalePurged(sweep string, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.staleMessagesPurgedTotal.WithLabelValues(sweep).Add(float64(n))
}

func RecordRepairRemoved(n int64) {
	if m == nil || n == 0 {
		return
	}
	m.repairDuplicatesRemovedTotal.Add(float64(n))
}

func ObserveHousekeeperTick(seconds float64) {
	if m == nil {
		return
	}
	m.housekeeperTickDuration.Observe(seconds)
}

func SetSpoolDepth(n int64) {
	if m == nil {
		return
	}
	m.spoolDepth.Set(float64(n))
}

func SetPoolStats(total, idle, acquired, max int32) {
	if m == nil {
		return
	}
	m.poolTotalConns.Set(float64(total))
	m.poolIdleConns.Set(float64(idle))
	m.poolAcquiredConns.Set(float64(acquired))
	m.poolMaxConns.Set(float64(max))
}

func priorityLabel(priority int) string {
	switch {
	case priority == 0:
		return "lifecycle"
	case priority == 1:
		return "remote_management"
	default:
		return "application"
	}
}
