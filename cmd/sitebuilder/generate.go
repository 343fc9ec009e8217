package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"sitebuilder/pkg/agents"
	"sitebuilder/pkg/catalog"
	"sitebuilder/pkg/deploy"
	"sitebuilder/pkg/genclient"
	"sitebuilder/pkg/orchestrator"
	"sitebuilder/pkg/persistence"
)

type generateOptions struct {
	input  agents.Input
	siteID string
	json   bool
	mock   bool
}

// generateOutput is the --json document.
type generateOutput struct {
	SiteID string                   `json:"site_id"`
	Result orchestrator.Result      `json:"result"`
	Plan   *deploy.Plan             `json:"plan,omitempty"`
	Report *orchestrator.PlanReport `json:"plan_report,omitempty"`
}

func newGenerateCmd(root *rootOptions) *cobra.Command {
	opts := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run the agents for a business and store the site and its deployment plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.input.BusinessName, "name", "", "Business name")
	f.StringVar(&opts.input.BusinessType, "type", "", "Business type, e.g. restaurant")
	f.StringVar(&opts.input.Description, "description", "", "Short business description")
	f.StringVar(&opts.input.Industry, "industry", "", "Industry (inferred from the type when empty)")
	f.StringVar(&opts.input.TargetAudience, "audience", "", "Target audience")
	f.StringVar(&opts.siteID, "site-id", "", "Site id (generated when empty; reuse to regenerate a site)")
	f.BoolVar(&opts.json, "json", false, "Print the result as JSON")
	f.BoolVar(&opts.mock, "mock", false, "Use the deterministic mock generator")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func runGenerate(cmd *cobra.Command, root *rootOptions, opts *generateOptions) error {
	if err := opts.input.Validate(); err != nil {
		return err
	}

	a, err := openApp(root, cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	genCfg := a.cfg.Generator
	if opts.mock {
		genCfg.Mock = true
	}
	gen, err := genclient.New(genCfg, genclient.WithRecorder(a.recorder))
	if err != nil {
		return err
	}

	set := agents.NewSet(gen, a.cfg.Thresholds, a.cfg.Deploy.ContentBatchSize)
	orch := orchestrator.New(set, a.sink, orchestrator.WithRecorder(a.recorder))

	siteID := opts.siteID
	if siteID == "" {
		siteID = uuid.NewString()
	}
	industry := opts.input.Industry
	if industry == "" {
		industry = catalog.Default().InferIndustry(opts.input.BusinessType)
	}

	ctx := cmd.Context()
	res := orch.Orchestrate(ctx, opts.input)
	site := persistence.Site{
		ID:           siteID,
		Name:         opts.input.BusinessName,
		BusinessType: opts.input.BusinessType,
		Industry:     industry,
	}
	if err := a.store.SaveResult(ctx, site, res); err != nil {
		return err
	}

	out := generateOutput{SiteID: siteID, Result: res}
	plan, report, planErr := orch.BuildPlan(ctx, opts.input, res, orchestrator.PlanOptions{Permalink: a.cfg.Deploy.Permalink})
	if planErr == nil {
		if err := a.store.SavePlan(ctx, siteID, plan); err != nil {
			return err
		}
		out.Plan = &plan
		out.Report = &report
	}

	if opts.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
	} else {
		printGenerate(cmd.OutOrStdout(), out)
	}

	if planErr != nil {
		if errors.Is(planErr, orchestrator.ErrNotPlannable) {
			return fmt.Errorf("site %s was stored without a deployment plan: %w", siteID, planErr)
		}
		return planErr
	}
	return nil
}

func printGenerate(w io.Writer, out generateOutput) {
	res := out.Result
	status := "✅ generated"
	if !res.Success {
		status = "⚠️ generated with errors"
	}
	fmt.Fprintf(w, "%s site %s (run %s)\n", status, out.SiteID, res.RunID)
	if res.OverallConfidence != nil {
		fmt.Fprintf(w, "   confidence: %.2f\n", *res.OverallConfidence)
	}
	for _, e := range res.Errors {
		fmt.Fprintf(w, "   ❌ %s\n", e)
	}
	if out.Plan == nil {
		return
	}

	p := out.Plan
	fmt.Fprintf(w, "   theme: %s\n", p.Theme)
	fmt.Fprintf(w, "   pages: %d, posts: %d, plugins: %d\n", len(p.Pages), len(p.Posts), len(p.Plugins))
	for _, warning := range out.Report.Warnings {
		fmt.Fprintf(w, "   ⚠️ %s\n", warning)
	}
	fmt.Fprintf(w, "Deploy with: sitebuilder deploy --site-id %s --url <site url> --ssh-host <host> ...\n", out.SiteID)
}
