// Package metrics holds the prometheus instrumentation for the pipeline:
// storage-level observations fed through the pebble metrics hook, trim
// volumes through the eventlog archiver hook, and per-operation timings for
// both transports. Everything registers on the default registry at init and
// is served by Handler.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rzbill/evpipe/pkg/id"
)

var (
	storageWriteSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "evpipe",
		Subsystem: "storage",
		Name:      "write_seconds",
		Help:      "Latency of single-key storage writes.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
	})
	storageReadSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "evpipe",
		Subsystem: "storage",
		Name:      "read_seconds",
		Help:      "Latency of single-key storage reads.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
	})
	storageCommitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "evpipe",
		Subsystem: "storage",
		Name:      "batch_commit_seconds",
		Help:      "Latency of batch commits.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
	})
	storageWriteBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "evpipe",
		Subsystem: "storage",
		Name:      "write_bytes_total",
		Help:      "Bytes written through single-key writes.",
	})
	storageCommitOps = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "evpipe",
		Subsystem: "storage",
		Name:      "batch_ops_total",
		Help:      "Operations committed in batches.",
	})

	trimDeleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evpipe",
		Subsystem: "log",
		Name:      "trim_deleted_total",
		Help:      "Entries removed by trims and flushes, per log.",
	}, []string{"log"})

	wireOpSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "evpipe",
		Subsystem: "wire",
		Name:      "op_seconds",
		Help:      "Latency of wire protocol operations.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"op", "status"})

	httpRequestSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "evpipe",
		Subsystem: "http",
		Name:      "request_seconds",
		Help:      "Latency of HTTP API requests.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"method", "route", "status"})
)

func init() {
	prometheus.MustRegister(
		storageWriteSeconds, storageReadSeconds, storageCommitSeconds,
		storageWriteBytes, storageCommitOps,
		trimDeleted,
		wireOpSeconds,
		httpRequestSeconds,
	)
}

// Handler serves the default registry, mounted at /metrics.
func Handler() http.Handler { return promhttp.Handler() }

// StorageHook feeds pebble-level observations into prometheus. It satisfies
// the storage layer's metrics hook.
type StorageHook struct{}

func (StorageHook) ObserveWrite(elapsed time.Duration, bytes int) {
	storageWriteSeconds.Observe(elapsed.Seconds())
	storageWriteBytes.Add(float64(bytes))
}

func (StorageHook) ObserveRead(elapsed time.Duration, _ int) {
	storageReadSeconds.Observe(elapsed.Seconds())
}

func (StorageHook) ObserveBatchCommit(elapsed time.Duration, numOps int, _ int) {
	storageCommitSeconds.Observe(elapsed.Seconds())
	storageCommitOps.Add(float64(numOps))
}

// TrimArchiver counts trimmed entries per log. It satisfies the eventlog
// archiver hook.
type TrimArchiver struct{}

func (TrimArchiver) EmitTrimRange(log string, _, _ id.ID, deleted int) {
	trimDeleted.WithLabelValues(log).Add(float64(deleted))
}

// ObserveWireOp records one wire operation.
func ObserveWireOp(op string, elapsed time.Duration, failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}
	wireOpSeconds.WithLabelValues(op, status).Observe(elapsed.Seconds())
}

// GinMiddleware times every HTTP request by route template and status.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		t0 := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestSeconds.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(t0).Seconds())
	}
}
