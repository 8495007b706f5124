package store

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Store operation names used as metric labels.
const (
	opList   = "list"
	opGet    = "get"
	opCreate = "create"
	opUpdate = "update"
	opDelete = "delete"
	opPing   = "ping"
)

// Prometheus metrics.
var (
	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operations_total",
			Help: "Total number of record store operations",
		},
		[]string{"operation", "result"},
	)

	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Record store operation duration in seconds, including document load and save",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	storeRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_records",
			Help: "Number of records in the most recently loaded document",
		},
	)
)

// observe records the outcome of a store operation started at start.
func observe(operation string, start time.Time, err error) {
	storeOperationsTotal.WithLabelValues(operation, resultLabel(err)).Inc()
	storeOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidID):
		return "invalid"
	case errors.Is(err, ErrCorruptDocument):
		return "corrupt"
	case errors.Is(err, ErrStoreUnavailable):
		return "unavailable"
	case errors.Is(err, ErrIDExhausted):
		return "exhausted"
	default:
		return "error"
	}
}
