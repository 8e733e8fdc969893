package device

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bagremote_device_requests_total",
		Help: "Requests sent to the bagging-machine controller by operation and result",
	}, []string{
		"operation",
		"result", // ok|unreachable|rejected|bad_response
	})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bagremote_device_request_duration_seconds",
		Help:    "Latency of requests to the bagging-machine controller",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
	}, []string{"operation"})
)

func observeRequest(op string, err error, elapsed time.Duration) {
	requestsTotal.WithLabelValues(op, resultLabel(err)).Inc()
	requestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsRejected(err):
		return "rejected"
	case errors.Is(err, ErrBadResponse):
		return "bad_response"
	default:
		return "unreachable"
	}
}
