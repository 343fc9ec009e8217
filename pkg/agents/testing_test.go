package agents

import "sitebuilder/pkg/config"

func thresholdsForTest() config.ThresholdConfig {
	return config.ThresholdConfig{
		Planning:        DefaultPlanningThreshold,
		Design:          DefaultDesignThreshold,
		Content:         DefaultContentThreshold,
		Posts:           DefaultPostsThreshold,
		PluginSelection: DefaultPluginSelectionThreshold,
		DeploymentPlan:  DefaultDeploymentPlanThreshold,
	}
}
