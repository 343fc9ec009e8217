package agents

import (
	"context"
	"fmt"
	"slices"

	"sitebuilder/pkg/genclient"
	"sitebuilder/pkg/templates"
)

// DefaultDeploymentPlanThreshold is the deployment-plan confidence floor.
const DefaultDeploymentPlanThreshold = 0.80

// DeploymentPlanAgent orders the deployment steps.
type DeploymentPlanAgent struct {
	caller
}

// NewDeploymentPlanAgent creates the deployment-plan agent.
func NewDeploymentPlanAgent(gen genclient.Client, opts ...Option) *DeploymentPlanAgent {
	return &DeploymentPlanAgent{caller: newCaller(NameDeploymentPlan, DefaultDeploymentPlanThreshold, gen, opts)}
}

// Execute plans the deployment. It needs the design and the plugin selection; the architecture
// is optional and only informs the prompt.
func (a *DeploymentPlanAgent) Execute(ctx context.Context, in Input, deps Deps) Output {
	return a.run(ctx, in, func(ctx context.Context) (result, error) {
		if deps.Design == nil {
			return result{}, missingDep(NameDesign)
		}
		if deps.Plugins == nil {
			return result{}, missingDep(NamePluginSelection)
		}

		data, assumptions := a.baseData(in)
		data.SuggestedTheme = deps.Design.Theme
		slugs := make([]string, 0, len(deps.Plugins.Plugins))
		for _, p := range deps.Plugins.Plugins {
			slugs = append(slugs, p.Slug)
		}
		data.Extra = map[string]any{"Plugins": slugs}
		if deps.Architecture != nil {
			data.Pages = pageRefs(deps.Architecture.Pages)
		}

		env, err := a.generate(ctx, templates.DeploymentPlanTemplate, data, deploymentPlanSchema())
		if err != nil {
			return result{}, err
		}

		var plan DeploymentPlan
		if err := decodeResult(env, &plan); err != nil {
			return result{}, err
		}
		notes := canonicalizePlan(&plan, len(slugs) > 0)

		return result{
			payload:     plan,
			confidence:  env.Confidence,
			assumptions: mergeAssumptions(mergeAssumptions(assumptions, env.Assumptions...), notes...),
		}, nil
	})
}

// canonicalizePlan drops duplicate kinds, adds missing mandatory kinds, marks every kind except
// navigation critical and sorts steps into canonical order.
func canonicalizePlan(plan *DeploymentPlan, hasPlugins bool) []string {
	var notes []string

	byKind := make(map[string]PlanStep, len(plan.Steps))
	for _, step := range plan.Steps {
		if _, dup := byKind[step.Kind]; dup {
			notes = append(notes, fmt.Sprintf("dropped duplicate %s step", step.Kind))
			continue
		}
		if step.Name == "" {
			step.Name = step.Kind
		}
		if step.Kind != StepNavigation && !step.Critical {
			step.Critical = true
			notes = append(notes, fmt.Sprintf("%s step is always critical", step.Kind))
		}
		byKind[step.Kind] = step
	}

	mandatory := []string{StepVerify, StepCore, StepTheme, StepContent, StepFinalize}
	if hasPlugins {
		mandatory = append(mandatory, StepPlugins)
	}
	for _, kind := range mandatory {
		if _, ok := byKind[kind]; !ok {
			byKind[kind] = PlanStep{Name: kind, Kind: kind, Critical: true}
			notes = append(notes, fmt.Sprintf("added missing %s step", kind))
		}
	}

	steps := make([]PlanStep, 0, len(byKind))
	for _, kind := range CanonicalStepKinds {
		if step, ok := byKind[kind]; ok {
			steps = append(steps, step)
		}
	}
	if !slices.Equal(kindsOf(plan.Steps), kindsOf(steps)) && len(notes) == 0 {
		notes = append(notes, "steps reordered into canonical order")
	}
	plan.Steps = steps
	return notes
}

func kindsOf(steps []PlanStep) []string {
	kinds := make([]string, len(steps))
	for i, s := range steps {
		kinds[i] = s.Kind
	}
	return kinds
}
