// Package agents implements the specialist agents. Each agent pairs a domain prompt, a payload
// schema and a confidence threshold with a genclient.Client, and converts every fault into a
// failed Output instead of returning an error.
package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Agent names, also used as progress steps and metric labels.
const (
	NamePlanning        = "planning"
	NameDesign          = "design"
	NameContent         = "content"
	NamePosts           = "posts"
	NamePluginSelection = "plugin_selection"
	NameDeploymentPlan  = "deployment_plan"
)

// Agent is the capability shared by all specialist agents.
type Agent interface {
	Name() string
	// Execute never returns a Go error; failures are reported in Output.
	Execute(ctx context.Context, in Input, deps Deps) Output
}

// Input describes the business. It is built once per request and never mutated.
type Input struct {
	BusinessName   string `json:"business_name"`
	BusinessType   string `json:"business_type"`
	Description    string `json:"description"`
	Industry       string `json:"industry,omitempty"`
	TargetAudience string `json:"target_audience,omitempty"`
}

// Validate checks the required fields.
func (in Input) Validate() error {
	var missing []string
	if strings.TrimSpace(in.BusinessName) == "" {
		missing = append(missing, "business name")
	}
	if strings.TrimSpace(in.BusinessType) == "" {
		missing = append(missing, "business type")
	}
	if strings.TrimSpace(in.Description) == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return fmt.Errorf("invalid input: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Deps carries the upstream results an agent consumes. Agents read only the fields they need
// and fail if a required one is nil.
type Deps struct {
	Architecture *SiteArchitecture
	Design       *DesignConfig
	Plugins      *PluginSelection
}

// Output is the result of one agent call.
type Output struct {
	Agent       string          `json:"agent"`
	Success     bool            `json:"success"`
	Confidence  float64         `json:"confidence"` // 0 unless Success
	Payload     json.RawMessage `json:"payload,omitempty"`
	Assumptions []string        `json:"assumptions,omitempty"`
	Errors      []string        `json:"errors,omitempty"`
	// LowConfidence marks a schema-valid result below the agent's threshold.
	LowConfidence bool `json:"low_confidence,omitempty"`
}

// ErrNoPayload is returned by Decode for failed outputs.
var ErrNoPayload = errors.New("agent output has no payload")

// Decode unmarshals the payload of a successful output into v.
func (o Output) Decode(v any) error {
	if !o.Success || len(o.Payload) == 0 {
		return fmt.Errorf("%s: %w", o.Agent, ErrNoPayload)
	}
	if err := json.Unmarshal(o.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", o.Agent, err)
	}
	return nil
}

// DecodeAs is the generic form of Output.Decode.
func DecodeAs[T any](o Output) (T, error) {
	var v T
	err := o.Decode(&v)
	return v, err
}

// Err returns the output's errors joined, or nil on success.
func (o Output) Err() error {
	if o.Success {
		return nil
	}
	if len(o.Errors) == 0 {
		return fmt.Errorf("%s failed", o.Agent)
	}
	return fmt.Errorf("%s: %s", o.Agent, strings.Join(o.Errors, "; "))
}

func failed(agent string, errs ...error) Output {
	out := Output{Agent: agent}
	for _, err := range errs {
		if err != nil {
			out.Errors = append(out.Errors, err.Error())
		}
	}
	if len(out.Errors) == 0 {
		out.Errors = []string{"unknown failure"}
	}
	return out
}
