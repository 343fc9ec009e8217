package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sitebuilder"

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	generationRequests *prometheus.CounterVec
	generationTokens   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	orchestrations     *prometheus.CounterVec
	confidence         prometheus.Histogram
	orchestrationTime  prometheus.Histogram
	deploySteps        *prometheus.CounterVec
	deployStepDuration *prometheus.HistogramVec
	deployments        *prometheus.CounterVec
	deploymentDuration prometheus.Histogram
}

// NewPrometheusRecorder registers the pipeline metrics on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		generationRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_requests_total",
				Help:      "Total number of generator calls by model, agent and status",
			},
			[]string{"model", "agent", "status", "error_type"},
		),
		generationTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_tokens_total",
				Help:      "Approximate tokens sent to and received from the generator",
			},
			[]string{"model", "agent", "type"},
		),
		generationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Duration of generator calls in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
			},
			[]string{"model", "agent"},
		),
		orchestrations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orchestrations_total",
				Help:      "Total orchestration runs by outcome",
			},
			[]string{"status"},
		),
		confidence: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "orchestration_confidence",
			Help:      "Overall confidence of completed orchestration runs",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		orchestrationTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "orchestration_duration_seconds",
			Help:      "Wall time of orchestration runs",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		deploySteps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deploy_steps_total",
				Help:      "Deployment steps by kind and terminal status",
			},
			[]string{"step_kind", "status"},
		),
		deployStepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "deploy_step_duration_seconds",
				Help:      "Duration of deployment steps",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"step_kind"},
		),
		deployments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deployments_total",
				Help:      "Deployments by terminal status",
			},
			[]string{"status"},
		),
		deploymentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deployment_duration_seconds",
			Help:      "Wall time of deployments",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
}

// ObserveGeneration records one generator call.
func (p *PrometheusRecorder) ObserveGeneration(
	model, agent string,
	promptTokens, completionTokens int,
	success bool,
	errorType string,
	duration time.Duration,
) {
	status := "success"
	if !success {
		status = "error"
	}
	p.generationRequests.WithLabelValues(model, agent, status, errorType).Inc()

	if success {
		p.generationTokens.WithLabelValues(model, agent, "prompt").Add(float64(promptTokens))
		p.generationTokens.WithLabelValues(model, agent, "completion").Add(float64(completionTokens))
	}
	p.generationDuration.WithLabelValues(model, agent).Observe(duration.Seconds())
}

// ObserveOrchestration records one orchestration run.
func (p *PrometheusRecorder) ObserveOrchestration(status string, confidence float64, duration time.Duration) {
	p.orchestrations.WithLabelValues(status).Inc()
	if status != StatusAborted {
		p.confidence.Observe(confidence)
	}
	p.orchestrationTime.Observe(duration.Seconds())
}

// ObserveDeployStep records the terminal status of one deployment step.
func (p *PrometheusRecorder) ObserveDeployStep(stepKind, status string, duration time.Duration) {
	p.deploySteps.WithLabelValues(stepKind, status).Inc()
	p.deployStepDuration.WithLabelValues(stepKind).Observe(duration.Seconds())
}

// ObserveDeployment records one deployment run's terminal status.
func (p *PrometheusRecorder) ObserveDeployment(status string, duration time.Duration) {
	p.deployments.WithLabelValues(status).Inc()
	p.deploymentDuration.Observe(duration.Seconds())
}

// Orchestration status labels.
const (
	StatusSucceeded = "succeeded"
	StatusPartial   = "partial"
	StatusAborted   = "aborted"
)
