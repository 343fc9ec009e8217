package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"sitebuilder/pkg/config"
	"sitebuilder/pkg/deploy"
	"sitebuilder/pkg/eventlog"
	"sitebuilder/pkg/persistence"
	"sitebuilder/pkg/progress"
)

type statusOptions struct {
	siteID string
	runID  string
	json   bool
	events bool
}

// statusOutput is the --json document.
type statusOutput struct {
	Site   *persistence.Site   `json:"site"`
	Steps  []deploy.StepRecord `json:"steps"`
	Events []progress.Event    `json:"events,omitempty"`
}

func newStatusCmd(root *rootOptions) *cobra.Command {
	opts := &statusOptions{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a site's deployment status and step records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.siteID, "site-id", "", "Site to inspect")
	f.StringVar(&opts.runID, "run-id", "", "Deployment run (default: the latest)")
	f.BoolVar(&opts.json, "json", false, "Print as JSON")
	f.BoolVar(&opts.events, "events", false, "Include the progress events of the run")
	_ = cmd.MarkFlagRequired("site-id")
	return cmd
}

func runStatus(cmd *cobra.Command, root *rootOptions, opts *statusOptions) error {
	a, err := openApp(root, cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	site, err := a.store.GetSite(ctx, opts.siteID)
	if err != nil {
		return err
	}
	runID := opts.runID
	if runID == "" {
		runID = site.LastRunID
	}
	steps, err := a.store.ListSteps(ctx, opts.siteID, runID)
	if err != nil {
		return err
	}

	out := statusOutput{Site: site, Steps: steps}
	if opts.events && runID != "" {
		if out.Events, err = runEvents(cmd, a, runID); err != nil {
			return err
		}
	}

	if opts.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("failed to encode status: %w", err)
		}
		return nil
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "site %s (%s)\n", site.ID, site.Name)
	fmt.Fprintf(w, "  status:   %s\n", site.Status)
	if site.Confidence != nil {
		fmt.Fprintf(w, "  confidence: %.2f\n", *site.Confidence)
	}
	if runID != "" {
		fmt.Fprintf(w, "  run:      %s\n", runID)
	}
	if site.LastError != "" {
		fmt.Fprintf(w, "  error:    %s\n", site.LastError)
	}
	printSteps(w, steps)
	for _, e := range out.Events {
		fmt.Fprintf(w, "%s %3d%% %-24s %-9s %s\n", e.Time.Format("15:04:05"), e.Progress, e.Step, e.Status, e.Message)
	}
	return nil
}

// runEvents returns the progress history of a run: from Redis when configured, else from the
// local event log.
func runEvents(cmd *cobra.Command, a *app, runID string) ([]progress.Event, error) {
	if a.redis != nil {
		events, err := a.redis.History(cmd.Context(), runID)
		if err == nil {
			return events, nil
		}
		a.logger.Warn("⚠️ progress history unavailable from redis, reading the event log: %v", err)
	}
	return eventlog.ReadRun(config.ResolvePath(a.cfg.Progress.EventLogDir), runID)
}

func printSteps(w io.Writer, steps []deploy.StepRecord) {
	if len(steps) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  SEQ\tSTEP\tSTATUS\tDURATION\tMESSAGE")
	for i := range steps {
		s := &steps[i]
		name := s.Name
		if s.Optional {
			name += " (optional)"
		}
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\n", s.Seq, name, s.Status, stepDuration(s), s.Message)
	}
	_ = tw.Flush()
}

func stepDuration(s *deploy.StepRecord) string {
	if s.StartedAt.IsZero() || s.FinishedAt.IsZero() {
		return "-"
	}
	return s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond).String()
}
