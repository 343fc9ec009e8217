package deploy

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrInvalidTransition is returned when a step record would move backwards.
var ErrInvalidTransition = errors.New("invalid step transition")

// StepStatus is the execution status of one step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed
}

// validStepTransitions never leads back to pending and never re-enters running.
//
//nolint:gochecknoglobals // Fixed transition table
var validStepTransitions = map[StepStatus][]StepStatus{
	StepPending: {StepRunning},
	StepRunning: {StepCompleted, StepFailed},
}

// SiteStatus is the deployment status of a site.
type SiteStatus string

const (
	SitePending   SiteStatus = "pending"
	SiteDeploying SiteStatus = "deploying"
	SiteDeployed  SiteStatus = "deployed"
	SiteFailed    SiteStatus = "failed"
)

// StepRecord is the execution record of one step.
//
//nolint:govet // Field grouping follows meaning, not alignment
type StepRecord struct {
	Seq        int        `json:"seq"`
	Name       string     `json:"name"`
	Kind       Kind       `json:"kind"`
	Status     StepStatus `json:"status"`
	Message    string     `json:"message,omitempty"`
	Optional   bool       `json:"optional,omitempty"`
	StartedAt  time.Time  `json:"started_at,omitzero"`
	FinishedAt time.Time  `json:"finished_at,omitzero"`
}

// transition moves the record to status or returns ErrInvalidTransition.
func (r *StepRecord) transition(to StepStatus, message string, now time.Time) error {
	if !slices.Contains(validStepTransitions[r.Status], to) {
		return fmt.Errorf("%w: %s cannot go from %s to %s", ErrInvalidTransition, r.Name, r.Status, to)
	}
	r.Status = to
	r.Message = message
	switch to {
	case StepRunning:
		r.StartedAt = now
	case StepCompleted, StepFailed:
		r.FinishedAt = now
	}
	return nil
}

// Duration returns how long the step ran, zero if it never finished.
func (r *StepRecord) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
