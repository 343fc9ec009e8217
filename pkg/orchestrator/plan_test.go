package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitebuilder/pkg/agents"
	"sitebuilder/pkg/deploy"
	"sitebuilder/pkg/genclient"
)

func pluginBySlug(plan deploy.Plan, slug string) (deploy.Plugin, bool) {
	for _, p := range plan.Plugins {
		if p.Slug == slug {
			return p, true
		}
	}
	return deploy.Plugin{}, false
}

func TestBuildPlanJoesPizza(t *testing.T) {
	o, sink := newOrchestrator(t, genclient.NewMock())
	res := o.Run(context.Background(), "run-plan", joesPizza)
	require.True(t, res.Success, "errors: %v", res.Errors)

	plan, report, err := o.BuildPlan(context.Background(), joesPizza, res, PlanOptions{Permalink: "/blog/%postname%/"})
	require.NoError(t, err)
	require.NoError(t, plan.Validate())

	assert.Equal(t, "astra", plan.Theme)
	assert.Equal(t, "/blog/%postname%/", plan.Permalink)
	assert.Equal(t, "home", plan.FrontPage)
	assert.True(t, plan.Navigation)
	assert.Empty(t, report.Warnings)
	assert.Len(t, report.Agents, 3)
	require.NotNil(t, report.Confidence)

	seo, ok := pluginBySlug(plan, "wordpress-seo")
	require.True(t, ok)
	assert.True(t, seo.Required)
	reservations, ok := pluginBySlug(plan, "restaurant-reservations")
	require.True(t, ok)
	assert.False(t, reservations.Required)

	seen := map[string]bool{}
	for _, p := range plan.Plugins {
		assert.False(t, seen[p.Slug], "duplicate plugin %s", p.Slug)
		seen[p.Slug] = true
	}

	require.Len(t, plan.Pages, len(res.Architecture.Pages))
	for i, page := range plan.Pages {
		assert.Equal(t, res.Architecture.Pages[i].Slug, page.Slug)
		assert.Equal(t, i+1, page.Order)
		assert.NotEmpty(t, page.Body, page.Slug)
	}

	assert.Len(t, plan.Posts, 3)
	assert.NotEmpty(t, plan.Menu)

	last := sink.events[len(sink.events)-1]
	assert.Equal(t, "plan", last.Step)
	assert.Equal(t, "run-plan", last.RunID)
	assert.Equal(t, MilestoneComplete, last.Progress)
}

func TestBuildPlanFallsBackToCatalog(t *testing.T) {
	o, _ := newOrchestrator(t, failing("plugin_selection", "deployment_plan"))
	res := o.Run(context.Background(), "run-fallback", joesPizza)
	require.True(t, res.Success, "errors: %v", res.Errors)

	plan, report, err := o.BuildPlan(context.Background(), joesPizza, res, PlanOptions{})
	require.NoError(t, err)

	assert.Len(t, report.Warnings, 2)
	assert.False(t, report.Agents[agents.NamePluginSelection].Success)
	assert.False(t, report.Agents[agents.NameDeploymentPlan].Success)
	require.NotNil(t, report.Confidence)
	assert.InDelta(t, report.Agents[agents.NamePosts].Confidence, *report.Confidence, 1e-9)

	// Catalog baseline for food service.
	_, ok := pluginBySlug(plan, "wordpress-seo")
	assert.True(t, ok)
	_, ok = pluginBySlug(plan, "restaurant-reservations")
	assert.True(t, ok)
	_, ok = pluginBySlug(plan, "instagram-feed")
	assert.False(t, ok)

	// The canonical order keeps navigation.
	assert.True(t, plan.Navigation)
	assert.Len(t, plan.Posts, 3)
}

func TestBuildPlanWithoutPosts(t *testing.T) {
	o, _ := newOrchestrator(t, failing("posts"))
	res := o.Run(context.Background(), "run-noposts", joesPizza)
	require.True(t, res.Success)

	plan, report, err := o.BuildPlan(context.Background(), joesPizza, res, PlanOptions{})
	require.NoError(t, err)
	assert.Empty(t, plan.Posts)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "posts failed")
}

func TestBuildPlanNeedsArchitectureAndDesign(t *testing.T) {
	o, _ := newOrchestrator(t, failing("design"))
	res := o.Run(context.Background(), "run-partial", joesPizza)
	require.False(t, res.Success)

	_, _, err := o.BuildPlan(context.Background(), joesPizza, res, PlanOptions{})
	assert.ErrorIs(t, err, ErrNotPlannable)

	_, _, err = o.BuildPlan(context.Background(), joesPizza, Result{RunID: "empty"}, PlanOptions{})
	assert.ErrorIs(t, err, ErrNotPlannable)
}

func TestAssembleUsesAgentPlanOnlyForNavigation(t *testing.T) {
	res := Result{
		Architecture: &agents.SiteArchitecture{Pages: []agents.Page{{Slug: "home", Title: "Home"}}},
		Design:       &agents.DesignConfig{Theme: "astra"},
	}
	sel := agents.PluginSelection{Plugins: []agents.PluginChoice{{Slug: "wordpress-seo", Required: true}}}

	var shuffled agents.DeploymentPlan
	canonical := canonicalSteps()
	for i := len(canonical.Steps) - 1; i >= 0; i-- {
		step := canonical.Steps[i]
		step.Critical = !step.Critical
		shuffled.Steps = append(shuffled.Steps, step)
	}

	want := assemble(res, sel, agents.PostsOutput{}, canonical, PlanOptions{})
	got := assemble(res, sel, agents.PostsOutput{}, shuffled, PlanOptions{})
	assert.Equal(t, want, got)
	assert.True(t, got.Navigation)
}

func TestAssembleSkipsClashingPosts(t *testing.T) {
	res := Result{
		Architecture: &agents.SiteArchitecture{Pages: []agents.Page{
			{Slug: "about", Title: "About"},
			{Slug: "blog", Title: "Blog"},
		}},
		Design: &agents.DesignConfig{Theme: "neve"},
	}
	posts := agents.PostsOutput{Posts: []agents.Post{
		{Slug: "about", Title: "About us"},
		{Slug: "hello", Title: "Hello"},
		{Slug: "hello", Title: "Hello again"},
	}}
	sel := agents.PluginSelection{Plugins: []agents.PluginChoice{
		{Slug: "wordpress-seo", Required: true},
		{Slug: "wordpress-seo"},
	}}

	plan := assemble(res, sel, posts, agents.DeploymentPlan{}, PlanOptions{})

	assert.Equal(t, "neve", plan.Theme)
	assert.False(t, plan.Navigation)
	assert.Empty(t, plan.FrontPage)
	require.Len(t, plan.Plugins, 1)
	assert.True(t, plan.Plugins[0].Required)
	require.Len(t, plan.Posts, 1)
	assert.Equal(t, "hello", plan.Posts[0].Slug)
	assert.Equal(t, "About", plan.Pages[0].Title)
	assert.Empty(t, plan.Pages[0].Body)
}
