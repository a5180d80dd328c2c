// Package metrics provides Prometheus metrics for pagestore
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for pagestore
type Metrics struct {
	// Socket server request metrics
	SocketRequestsTotal    *prometheus.CounterVec
	SocketRequestDuration  *prometheus.HistogramVec
	SocketRequestsInFlight prometheus.Gauge

	// Table operation metrics
	TableOperationsTotal   *prometheus.CounterVec
	TableOperationDuration *prometheus.HistogramVec
	TableRowsTotal         *prometheus.GaugeVec

	// Page cache / buffer pool metrics, published as snapshots of the
	// per-table pager's own counters.
	CacheHitsTotal        prometheus.Gauge
	CacheMissesTotal      prometheus.Gauge
	CacheEvictionsTotal   prometheus.Gauge
	CacheSize             prometheus.Gauge
	BufferPoolAllocations prometheus.Gauge
	BufferPoolReuses      prometheus.Gauge

	// B+ tree shape metrics
	TreeHeightGauge    *prometheus.GaugeVec
	TreeNodeCountGauge *prometheus.GaugeVec

	// Server metrics
	ServerUptimeSeconds prometheus.Gauge
	ServerStartTime     time.Time
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		ServerStartTime: time.Now(),
	}

	// Socket server request metrics
	m.SocketRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagestore_socket_requests_total",
			Help: "Total number of line-socket requests",
		},
		[]string{"method", "status"},
	)

	m.SocketRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagestore_socket_request_duration_seconds",
			Help:    "Duration of line-socket requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	m.SocketRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pagestore_socket_requests_in_flight",
			Help: "Number of line-socket requests currently being processed",
		},
	)

	// Table operation metrics
	m.TableOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagestore_table_operations_total",
			Help: "Total number of table operations",
		},
		[]string{"table", "operation", "status"},
	)

	m.TableOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagestore_table_operation_duration_seconds",
			Help:    "Duration of table operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"table", "operation"},
	)

	m.TableRowsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pagestore_table_rows_total",
			Help: "Current row count per table, as of the last count() call",
		},
		[]string{"table"},
	)

	// Page cache / buffer pool metrics
	m.CacheHitsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pagestore_cache_hits",
			Help: "Page cache hits, as of the last published snapshot",
		},
	)

	m.CacheMissesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pagestore_cache_misses",
			Help: "Page cache misses, as of the last published snapshot",
		},
	)

	m.CacheEvictionsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pagestore_cache_evictions",
			Help: "LRU page cache evictions, as of the last published snapshot",
		},
	)

	m.CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pagestore_cache_entries",
			Help: "Current page cache entry count",
		},
	)

	m.BufferPoolAllocations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pagestore_buffer_pool_allocations",
			Help: "Buffer pool acquisitions that required a fresh allocation",
		},
	)

	m.BufferPoolReuses = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pagestore_buffer_pool_reuses",
			Help: "Buffer pool acquisitions served from the free list",
		},
	)

	// B+ tree shape metrics
	m.TreeHeightGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pagestore_tree_height",
			Help: "Current B+ tree height per table",
		},
		[]string{"table"},
	)

	m.TreeNodeCountGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pagestore_tree_nodes_total",
			Help: "Current allocated page count per table",
		},
		[]string{"table"},
	)

	// Server metrics
	m.ServerUptimeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pagestore_server_uptime_seconds",
			Help: "Server uptime in seconds",
		},
	)

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime periodically updates the server uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.ServerUptimeSeconds.Set(time.Since(m.ServerStartTime).Seconds())
	}
}

// RecordSocketRequest records a line-socket request with its status
func (m *Metrics) RecordSocketRequest(method string, status string, duration time.Duration) {
	m.SocketRequestsTotal.WithLabelValues(method, status).Inc()
	m.SocketRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordTableOperation records a table operation
func (m *Metrics) RecordTableOperation(table string, operation string, status string, duration time.Duration) {
	m.TableOperationsTotal.WithLabelValues(table, operation, status).Inc()
	m.TableOperationDuration.WithLabelValues(table, operation).Observe(duration.Seconds())
}

// UpdateTableStats records a snapshot of a table's row count and tree shape.
func (m *Metrics) UpdateTableStats(table string, rowCount int64, treeHeight int64, nodeCount int64) {
	m.TableRowsTotal.WithLabelValues(table).Set(float64(rowCount))
	m.TreeHeightGauge.WithLabelValues(table).Set(float64(treeHeight))
	m.TreeNodeCountGauge.WithLabelValues(table).Set(float64(nodeCount))
}

// UpdateCacheStats publishes a snapshot of a pager's cache and buffer
// pool counters.
func (m *Metrics) UpdateCacheStats(hits, misses, evictions int64, size int, allocations, reuses int64) {
	m.CacheHitsTotal.Set(float64(hits))
	m.CacheMissesTotal.Set(float64(misses))
	m.CacheEvictionsTotal.Set(float64(evictions))
	m.CacheSize.Set(float64(size))
	m.BufferPoolAllocations.Set(float64(allocations))
	m.BufferPoolReuses.Set(float64(reuses))
}
