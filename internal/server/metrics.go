package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/catabozan/fdbridge/internal/logger"
)

// Prometheus collectors for the bridge server. Registered once at package
// init via promauto and updated on every request whether or not the metrics
// endpoint is enabled; the endpoint only decides whether they are exposed.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fdbridge",
		Name:      "requests_total",
		Help:      "RPC requests served, by procedure and accept status.",
	}, []string{"procedure", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fdbridge",
		Name:      "request_duration_seconds",
		Help:      "Wall time spent serving a request, by procedure.",
		Buckets:   prometheus.ExponentialBuckets(0.000025, 4, 10),
	}, []string{"procedure"})

	bytesRead = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fdbridge",
		Name:      "bytes_read_total",
		Help:      "Payload bytes returned by READ and PREAD.",
	})

	bytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fdbridge",
		Name:      "bytes_written_total",
		Help:      "Payload bytes accepted by WRITE and PWRITE.",
	})

	connectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fdbridge",
		Name:      "connections_open",
		Help:      "Currently served client connections.",
	})

	descriptorsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fdbridge",
		Name:      "descriptors_live",
		Help:      "Kernel descriptors currently held on behalf of clients.",
	})
)

// observeRequest records one served request.
func observeRequest(procedure string, status uint32, start time.Time) {
	requestsTotal.WithLabelValues(procedure, acceptStatName(status)).Inc()
	requestDuration.WithLabelValues(procedure).Observe(time.Since(start).Seconds())
}

// acceptStatName renders an RPC accept status for the metrics label.
func acceptStatName(status uint32) string {
	switch status {
	case 0:
		return "success"
	case 1:
		return "prog_unavail"
	case 2:
		return "prog_mismatch"
	case 3:
		return "proc_unavail"
	case 4:
		return "garbage_args"
	default:
		return "system_err"
	}
}

// serveMetrics exposes the Prometheus registry over HTTP until the server
// shuts down. Errors other than graceful close are logged, not fatal; a
// broken metrics endpoint must never take the bridge down.
func (s *Server) serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.metricsSrv = srv

	logger.Info("Metrics endpoint started", "port", port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("Metrics endpoint failed", "error", err)
	}
}
