// Package metrics provides metrics recording for generation, orchestration and deployment.
package metrics

import "time"

// Recorder defines the interface for recording pipeline metrics.
type Recorder interface {
	// ObserveGeneration records one generator call.
	ObserveGeneration(
		model, agent string,
		promptTokens, completionTokens int,
		success bool,
		errorType string,
		duration time.Duration,
	)

	// ObserveOrchestration records one orchestration run. confidence is ignored when aborted.
	ObserveOrchestration(status string, confidence float64, duration time.Duration)

	// ObserveDeployStep records the terminal status of one deployment step.
	ObserveDeployStep(stepKind, status string, duration time.Duration)

	// ObserveDeployment records one deployment run's terminal status.
	ObserveDeployment(status string, duration time.Duration)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveGeneration does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveGeneration(_, _ string, _, _ int, _ bool, _ string, _ time.Duration) {}

// ObserveOrchestration does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveOrchestration(_ string, _ float64, _ time.Duration) {}

// ObserveDeployStep does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveDeployStep(_, _ string, _ time.Duration) {}

// ObserveDeployment does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveDeployment(_ string, _ time.Duration) {}
