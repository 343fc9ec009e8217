package agents

import (
	"sitebuilder/pkg/config"
	"sitebuilder/pkg/genclient"
)

// Set bundles the six agents sharing one generator.
type Set struct {
	Planning        Agent
	Design          Agent
	Content         Agent
	Posts           Agent
	PluginSelection Agent
	DeploymentPlan  Agent
}

// NewSet builds all agents with thresholds from cfg. opts apply to every agent, before the
// per-agent threshold.
func NewSet(gen genclient.Client, thresholds config.ThresholdConfig, batchSize int, opts ...Option) *Set {
	with := func(threshold float64) []Option {
		all := append([]Option{WithBatchSize(batchSize)}, opts...)
		if threshold > 0 {
			all = append(all, WithThreshold(threshold))
		}
		return all
	}
	return &Set{
		Planning:        NewPlanningAgent(gen, with(thresholds.Planning)...),
		Design:          NewDesignAgent(gen, with(thresholds.Design)...),
		Content:         NewContentAgent(gen, with(thresholds.Content)...),
		Posts:           NewPostsAgent(gen, with(thresholds.Posts)...),
		PluginSelection: NewPluginSelectionAgent(gen, with(thresholds.PluginSelection)...),
		DeploymentPlan:  NewDeploymentPlanAgent(gen, with(thresholds.DeploymentPlan)...),
	}
}
