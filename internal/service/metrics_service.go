package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and
// the background reconciliation loop.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	dispatchTotal   *prometheus.CounterVec
	webhookRetries  *prometheus.CounterVec
	sweepDuration   *prometheus.HistogramVec
	sweepItems      *prometheus.CounterVec
	sweepFailures   *prometheus.CounterVec
}

// NewMetricsService registers the collectors on a dedicated registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	dispatchTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_dispatch_total",
		Help: "Lifecycle event deliveries by event, channel and outcome",
	}, []string{"event", "channel", "outcome"})

	webhookRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_webhook_retries_total",
		Help: "Webhook delivery re-attempts by integration",
	}, []string{"webhook_type"})

	sweepDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "custody_sweep_duration_seconds",
		Help:    "Duration of reconciliation sweeps",
		Buckets: prometheus.DefBuckets,
	}, []string{"task"})

	sweepItems := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_sweep_items_total",
		Help: "Items acted on per reconciliation sweep",
	}, []string{"task"})

	sweepFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_sweep_failures_total",
		Help: "Failed reconciliation sweeps",
	}, []string{"task"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, dispatchTotal, webhookRetries, sweepDuration, sweepItems, sweepFailures, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		dispatchTotal:   dispatchTotal,
		webhookRetries:  webhookRetries,
		sweepDuration:   sweepDuration,
		sweepItems:      sweepItems,
		sweepFailures:   sweepFailures,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveDispatch records one delivery attempt on a dispatch channel.
func (m *MetricsService) ObserveDispatch(event, channel string, success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.dispatchTotal.WithLabelValues(event, channel, outcome).Inc()
}

// ObserveWebhookRetry counts a webhook re-attempt.
func (m *MetricsService) ObserveWebhookRetry(webhookType string) {
	if m == nil {
		return
	}
	m.webhookRetries.WithLabelValues(webhookType).Inc()
}

// ObserveSweep records one reconciliation sweep outcome.
func (m *MetricsService) ObserveSweep(task string, duration time.Duration, count int, success bool) {
	if m == nil {
		return
	}
	m.sweepDuration.WithLabelValues(task).Observe(duration.Seconds())
	m.sweepItems.WithLabelValues(task).Add(float64(count))
	if !success {
		m.sweepFailures.WithLabelValues(task).Inc()
	}
}
