package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"sitebuilder/pkg/agents"
	"sitebuilder/pkg/deploy"
	"sitebuilder/pkg/logx"
	"sitebuilder/pkg/progress"
)

// Plan-building milestones, reported under the orchestration run id.
const (
	MilestonePlugins        = 20
	MilestonePosts          = 40
	MilestoneDeploymentPlan = 80
)

// ErrNotPlannable is returned when a result lacks the architecture or design a plan needs.
var ErrNotPlannable = errors.New("orchestration result cannot be turned into a deployment plan")

// PlanOptions tunes plan construction.
type PlanOptions struct {
	Permalink string
	Core      *deploy.CoreInstall
}

// PlanReport describes how a plan was built.
type PlanReport struct {
	Agents   map[string]agents.Output `json:"agents"`
	Warnings []string                 `json:"warnings,omitempty"`
	// Confidence is the mean over the plan agents that succeeded; nil if none did.
	Confidence *float64 `json:"confidence,omitempty"`
}

// BuildPlan runs plugin selection and posts concurrently, then the deployment-plan agent, and
// assembles the engine plan from them and res. A failed plan agent degrades to catalog defaults
// with a warning instead of failing the plan.
//
// The deployment-plan agent only decides Plan.Navigation. Its step order and critical flags are
// advisory; the engine always rebuilds the canonical order and criticality from the plan itself.
func (o *Orchestrator) BuildPlan(ctx context.Context, in agents.Input, res Result, opts PlanOptions) (deploy.Plan, PlanReport, error) {
	report := PlanReport{Agents: make(map[string]agents.Output, 3)}
	if res.Architecture == nil || res.Design == nil {
		return deploy.Plan{}, report, fmt.Errorf("%w: architecture and design are required", ErrNotPlannable)
	}

	em := progress.NewEmitter(o.sink, res.RunID)
	ctx = logx.WithComponent(ctx, "orchestrator/"+res.RunID)
	deps := agents.Deps{Architecture: res.Architecture, Design: res.Design}

	em.Emit(agents.NamePluginSelection, MilestonePlugins, progress.StatusStarted, "selecting plugins")
	em.Emit(agents.NamePosts, MilestonePosts, progress.StatusStarted, "drafting blog posts")

	var pluginsOut, postsOut agents.Output
	var g errgroup.Group
	g.Go(func() error {
		pluginsOut = o.agents.PluginSelection.Execute(ctx, in, deps)
		return nil
	})
	g.Go(func() error {
		postsOut = o.agents.Posts.Execute(ctx, in, deps)
		return nil
	})
	_ = g.Wait()
	report.Agents[pluginsOut.Agent] = pluginsOut
	report.Agents[postsOut.Agent] = postsOut

	selection, err := agents.DecodeAs[agents.PluginSelection](pluginsOut)
	if err != nil {
		selection = o.catalogPlugins(in)
		report.warn(o.logger, "plugin selection failed (%s), using catalog defaults", joinErrors(pluginsOut.Errors))
	}
	posts, err := agents.DecodeAs[agents.PostsOutput](postsOut)
	if err != nil {
		report.warn(o.logger, "posts failed (%s), deploying without blog posts", joinErrors(postsOut.Errors))
	}

	em.Emit(agents.NameDeploymentPlan, MilestoneDeploymentPlan, progress.StatusStarted, "ordering deployment steps")
	deps.Plugins = &selection
	planOut := o.agents.DeploymentPlan.Execute(ctx, in, deps)
	report.Agents[planOut.Agent] = planOut

	steps, err := agents.DecodeAs[agents.DeploymentPlan](planOut)
	if err != nil {
		report.warn(o.logger, "deployment plan failed (%s), using the canonical step order", joinErrors(planOut.Errors))
		steps = canonicalSteps()
	}

	if pluginsOut.Success || postsOut.Success || planOut.Success {
		conf := meanConfidence(pluginsOut, postsOut, planOut)
		report.Confidence = &conf
	}

	plan := assemble(res, selection, posts, steps, opts)
	if err := plan.Validate(); err != nil {
		em.Emit("plan", MilestoneDeploymentPlan, progress.StatusFailed, "plan invalid: %v", err)
		return deploy.Plan{}, report, fmt.Errorf("%w: %w", ErrNotPlannable, err)
	}
	em.Emit("plan", MilestoneComplete, progress.StatusCompleted, "deployment plan ready: %d plugins, %d pages, %d posts",
		len(plan.Plugins), len(plan.Pages), len(plan.Posts))
	return plan, report, nil
}

func (r *PlanReport) warn(logger *logx.Logger, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logger.Warn("⚠️ %s", msg)
	r.Warnings = append(r.Warnings, msg)
}

func (o *Orchestrator) catalogPlugins(in agents.Input) agents.PluginSelection {
	industry := in.Industry
	if industry == "" {
		industry = o.catalog.InferIndustry(in.BusinessType)
	}
	var sel agents.PluginSelection
	for _, p := range o.catalog.PluginsFor(industry) {
		sel.Plugins = append(sel.Plugins, agents.PluginChoice{Slug: p.Slug, Name: p.Name, Reason: p.Reason, Required: p.Required})
	}
	return sel
}

func canonicalSteps() agents.DeploymentPlan {
	var plan agents.DeploymentPlan
	for _, kind := range agents.CanonicalStepKinds {
		plan.Steps = append(plan.Steps, agents.PlanStep{Name: kind, Kind: kind, Critical: kind != agents.StepNavigation})
	}
	return plan
}

// assemble merges the agent payloads into the engine plan. Pages keep architecture order; a page
// without generated content is published with its title only.
func assemble(res Result, sel agents.PluginSelection, posts agents.PostsOutput, steps agents.DeploymentPlan, opts PlanOptions) deploy.Plan {
	plan := deploy.Plan{
		Theme:      res.Design.Theme,
		Navigation: steps.Has(agents.StepNavigation),
		Permalink:  opts.Permalink,
		Core:       opts.Core,
	}

	seen := map[string]bool{}
	for _, p := range sel.Plugins {
		if seen[p.Slug] {
			continue
		}
		seen[p.Slug] = true
		plan.Plugins = append(plan.Plugins, deploy.Plugin{Slug: p.Slug, Required: p.Required})
	}

	bodies := map[string]agents.ContentPage{}
	if res.Content != nil {
		for _, c := range res.Content.Pages {
			bodies[c.Slug] = c
		}
	}
	for i, p := range res.Architecture.Pages {
		page := deploy.Page{Slug: p.Slug, Title: p.Title, Order: i + 1}
		if c, ok := bodies[p.Slug]; ok {
			page.Body = c.Body
			page.SEOTitle = c.SEO.Title
			page.MetaDescription = c.SEO.Description
			if c.Title != "" {
				page.Title = c.Title
			}
		}
		plan.Pages = append(plan.Pages, page)
	}
	if res.Architecture.HasPage("home") {
		plan.FrontPage = "home"
	}

	for _, n := range res.Architecture.Navigation {
		plan.Menu = append(plan.Menu, deploy.MenuItem{Label: n.Label, Slug: n.Slug})
	}

	postSlugs := map[string]bool{}
	for _, p := range posts.Posts {
		if postSlugs[p.Slug] || slices.ContainsFunc(plan.Pages, func(pg deploy.Page) bool { return pg.Slug == p.Slug }) {
			continue
		}
		postSlugs[p.Slug] = true
		plan.Posts = append(plan.Posts, deploy.Post{Slug: p.Slug, Title: p.Title, Excerpt: p.Excerpt, Body: p.Body})
	}
	return plan
}
