package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration    *prom.HistogramVec
	runDuration      prom.Histogram
	stageResults     *prom.CounterVec
	runOutcomes      *prom.CounterVec
	objectsPublished prom.Counter
	runsInFlight     prom.Gauge
}

// NewPrometheusRecorder constructs and registers pipeline metrics on
// the given registry. A nil registry gets a private one.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "docship",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		runDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "docship",
			Name:      "run_duration_seconds",
			Help:      "Total pipeline run duration",
			Buckets:   prom.ExponentialBuckets(1, 2, 12),
		}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docship",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		runOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docship",
			Name:      "run_outcomes_total",
			Help:      "Run outcomes by final status",
		}, []string{"outcome"}),
		objectsPublished: prom.NewCounter(prom.CounterOpts{
			Namespace: "docship",
			Name:      "objects_published_total",
			Help:      "Bucket objects written by publish stages",
		}),
		runsInFlight: prom.NewGauge(prom.GaugeOpts{
			Namespace: "docship",
			Name:      "runs_in_flight",
			Help:      "Pipeline runs currently executing",
		}),
	}
	reg.MustRegister(pr.stageDuration, pr.runDuration, pr.stageResults,
		pr.runOutcomes, pr.objectsPublished, pr.runsInFlight)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncRunOutcome(outcome string) {
	if p == nil {
		return
	}
	p.runOutcomes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) AddObjectsPublished(n int) {
	if p == nil || n <= 0 {
		return
	}
	p.objectsPublished.Add(float64(n))
}

func (p *PrometheusRecorder) SetRunsInFlight(n int) {
	if p == nil {
		return
	}
	p.runsInFlight.Set(float64(n))
}

// HTTPHandler serves Prometheus metrics for the provided registry.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
