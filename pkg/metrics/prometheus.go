package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusObserver folds pipeline and backend events into Prometheus
// collectors on its own registry.
type PrometheusObserver struct {
	registry        *prometheus.Registry
	stageLatency    *prometheus.HistogramVec
	stageErrors     *prometheus.CounterVec
	runs            *prometheus.CounterVec
	ttsWarnings     prometheus.Counter
	backendRequests *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
}

func NewPrometheusObserver(namespace string) *PrometheusObserver {
	if namespace == "" {
		namespace = "voxrelay"
	}
	o := &PrometheusObserver{
		registry: prometheus.NewRegistry(),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_seconds",
			Help:      "Latency of pipeline stage calls",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{TagStage}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Pipeline stage failures",
		}, []string{TagStage, TagReason}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome",
		}, []string{TagOutcome}),
		ttsWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_warnings_total",
			Help:      "Runs that ended without audio because synthesis failed",
		}),
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Dev backend requests by route and status",
		}, []string{TagRoute, TagStatus}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Dev backend request duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{TagRoute}),
	}
	o.registry.MustRegister(
		o.stageLatency,
		o.stageErrors,
		o.runs,
		o.ttsWarnings,
		o.backendRequests,
		o.backendLatency,
	)
	return o
}

func (o *PrometheusObserver) RecordEvent(ev MetricsEvent) {
	tag := func(k string) string {
		if ev.Tags == nil {
			return ""
		}
		return ev.Tags[k]
	}
	switch ev.Name {
	case EventStageLatency:
		o.stageLatency.WithLabelValues(tag(TagStage)).Observe((time.Duration(ev.Value) * time.Microsecond).Seconds())
	case EventStageError:
		o.stageErrors.WithLabelValues(tag(TagStage), tag(TagReason)).Inc()
	case EventRunDone:
		o.runs.WithLabelValues(tag(TagOutcome)).Inc()
	case EventTTSWarning:
		o.ttsWarnings.Inc()
	case EventBackendRequest:
		o.backendRequests.WithLabelValues(tag(TagRoute), tag(TagStatus)).Inc()
		o.backendLatency.WithLabelValues(tag(TagRoute)).Observe((time.Duration(ev.Value) * time.Microsecond).Seconds())
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (o *PrometheusObserver) Registry() *prometheus.Registry { return o.registry }

// Handler serves the registry in the Prometheus exposition format.
func (o *PrometheusObserver) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}
