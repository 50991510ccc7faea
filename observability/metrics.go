// Package observability provides Prometheus metrics instrumentation for
// the event bus, reflection traversal, and RPC surface.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// EVENT BUS METRICS
// =============================================================================

var (
	busDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velcro_bus_dispatch_total",
			Help: "Total number of event bus dispatches",
		},
		[]string{"bus", "kind", "status"}, // kind: event, broadcast, reverse; status: ok, no_handler, error
	)

	busDispatchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "velcro_bus_dispatch_duration_seconds",
			Help:    "Event bus dispatch duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"bus", "kind"},
	)

	busQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "velcro_bus_queue_depth",
			Help: "Number of events currently pending in a bus's queue",
		},
		[]string{"bus"},
	)

	busCircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "velcro_bus_circuit_state",
			Help: "CircuitBreakerRouter state per address: 0=closed, 1=half-open, 2=open",
		},
		[]string{"bus", "address"},
	)
)

// =============================================================================
// SERIALIZATION METRICS
// =============================================================================

var (
	traversalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velcro_serialize_traversals_total",
			Help: "Total number of EnumerateInstance/clone/hierarchy traversals",
		},
		[]string{"operation", "status"}, // operation: enumerate, clone, get_hierarchy, set_hierarchy
	)

	traversalDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "velcro_serialize_traversal_duration_seconds",
			Help:    "Traversal duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"operation"},
	)

	upgradesAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velcro_serialize_upgrades_applied_total",
			Help: "Total number of version upgrade steps applied while reading a document",
		},
		[]string{"kind"}, // rename, type_change
	)

	allocatedBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "velcro_allocator_bytes_outstanding",
			Help: "Outstanding allocated bytes per named allocator",
		},
		[]string{"allocator"},
	)
)

// =============================================================================
// GRPC METRICS
// =============================================================================

var (
	grpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velcro_grpc_requests_total",
			Help: "Total gRPC requests",
		},
		[]string{"method", "status"}, // status: OK, InvalidArgument, Internal, etc.
	)

	grpcRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "velcro_grpc_request_duration_seconds",
			Help:    "gRPC request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordBusDispatch records one event bus dispatch.
func RecordBusDispatch(bus, kind, status string, durationSeconds float64) {
	busDispatchTotal.WithLabelValues(bus, kind, status).Inc()
	busDispatchDurationSeconds.WithLabelValues(bus, kind).Observe(durationSeconds)
}

// SetBusQueueDepth reports the current number of queued events for bus.
func SetBusQueueDepth(bus string, depth int) {
	busQueueDepth.WithLabelValues(bus).Set(float64(depth))
}

// SetBusCircuitState reports a CircuitBreakerRouter's state for one address.
func SetBusCircuitState(bus, address string, state int) {
	busCircuitState.WithLabelValues(bus, address).Set(float64(state))
}

// RecordTraversal records one serialize package traversal operation.
func RecordTraversal(operation, status string, durationSeconds float64) {
	traversalsTotal.WithLabelValues(operation, status).Inc()
	traversalDurationSeconds.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordUpgradeApplied records one version upgrade step applied by an
// UpgradeHandler while reading a document.
func RecordUpgradeApplied(kind string) {
	upgradesAppliedTotal.WithLabelValues(kind).Inc()
}

// SetAllocatedBytes reports an allocator's current outstanding byte count.
func SetAllocatedBytes(allocatorName string, bytes int64) {
	allocatedBytes.WithLabelValues(allocatorName).Set(float64(bytes))
}

// RecordGRPCRequest records gRPC request metrics.
// This should be called from gRPC interceptors.
func RecordGRPCRequest(method string, status string, durationMS int) {
	grpcRequestsTotal.WithLabelValues(method, status).Inc()
	grpcRequestDurationSeconds.WithLabelValues(method).Observe(float64(durationMS) / 1000.0)
}
