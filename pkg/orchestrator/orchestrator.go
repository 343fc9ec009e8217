// Package orchestrator sequences the specialist agents for one site: planning first, then design
// and content as a concurrent join, then aggregation.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sitebuilder/pkg/agents"
	"sitebuilder/pkg/catalog"
	"sitebuilder/pkg/logx"
	"sitebuilder/pkg/metrics"
	"sitebuilder/pkg/progress"
)

// Progress milestones.
const (
	MilestonePlanning  = 10
	MilestoneDesign    = 30
	MilestoneContent   = 50
	MilestoneAggregate = 90
	MilestoneComplete  = 100
)

// Orchestration outcomes, used as metric labels.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeAborted = "aborted"
)

// Result is the outcome of one orchestration run. It is not persisted here.
//
//nolint:govet // Field grouping follows meaning, not alignment
type Result struct {
	RunID        string                   `json:"run_id"`
	Success      bool                     `json:"success"`
	Architecture *agents.SiteArchitecture `json:"site_architecture,omitempty"`
	Design       *agents.DesignConfig     `json:"design,omitempty"`
	Content      *agents.ContentOutput    `json:"content,omitempty"`
	// OverallConfidence is the mean confidence of the agents that succeeded; nil when the run
	// aborted at planning.
	OverallConfidence *float64                 `json:"overall_confidence,omitempty"`
	Errors            []string                 `json:"errors,omitempty"`
	Assumptions       []string                 `json:"assumptions,omitempty"`
	Agents            map[string]agents.Output `json:"agents"`
}

// Orchestrator runs the agent pipeline. It keeps no per-run state.
type Orchestrator struct {
	agents   *agents.Set
	sink     progress.Sink
	recorder metrics.Recorder
	catalog  *catalog.Catalog
	logger   *logx.Logger
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithCatalog replaces the embedded catalog used for plan fallbacks.
func WithCatalog(c *catalog.Catalog) Option {
	return func(o *Orchestrator) { o.catalog = c }
}

// New creates an orchestrator. A nil sink discards progress.
func New(set *agents.Set, sink progress.Sink, opts ...Option) *Orchestrator {
	if sink == nil {
		sink = progress.Discard()
	}
	o := &Orchestrator{
		agents:   set,
		sink:     sink,
		recorder: metrics.Nop(),
		catalog:  catalog.Default(),
		logger:   logx.NewLogger("orchestrator"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Orchestrate runs the pipeline under a fresh run id.
func (o *Orchestrator) Orchestrate(ctx context.Context, in agents.Input) Result {
	return o.Run(ctx, uuid.NewString(), in)
}

// Run runs the pipeline under runID. It always returns a structured result.
func (o *Orchestrator) Run(ctx context.Context, runID string, in agents.Input) Result {
	start := o.now()
	em := progress.NewEmitter(o.sink, runID)
	ctx = logx.WithComponent(ctx, "orchestrator/"+runID)
	res := Result{RunID: runID, Agents: make(map[string]agents.Output, 3)}

	em.Emit(agents.NamePlanning, MilestonePlanning, progress.StatusStarted, "planning site structure for %s", in.BusinessName)
	planning := o.agents.Planning.Execute(ctx, in, agents.Deps{})
	res.record(planning)

	arch, err := agents.DecodeAs[agents.SiteArchitecture](planning)
	if err != nil {
		if planning.Success {
			res.Errors = append(res.Errors, err.Error())
		}
		res.Success = false
		em.Emit(agents.NamePlanning, MilestonePlanning, progress.StatusFailed, "planning failed: %s", joinErrors(res.Errors))
		o.logger.Error("❌ run %s aborted at planning: %s", runID, joinErrors(res.Errors))
		o.recorder.ObserveOrchestration(OutcomeAborted, 0, o.now().Sub(start))
		return res
	}
	res.Architecture = &arch
	logx.DebugFlow(ctx, "orchestrator", agents.NamePlanning, "completed", fmt.Sprintf("%d pages", len(arch.Pages)))

	// Both starts are emitted before either agent runs so their order is fixed.
	em.Emit(agents.NameDesign, MilestoneDesign, progress.StatusStarted, "choosing theme and palette")
	em.Emit(agents.NameContent, MilestoneContent, progress.StatusStarted, "writing content for %d pages", len(arch.Pages))

	var design, content agents.Output
	deps := agents.Deps{Architecture: res.Architecture}
	var g errgroup.Group
	g.Go(func() error {
		design = o.agents.Design.Execute(ctx, in, deps)
		return nil
	})
	g.Go(func() error {
		content = o.agents.Content.Execute(ctx, in, deps)
		return nil
	})
	_ = g.Wait()

	res.record(design)
	res.record(content)
	if d, err := agents.DecodeAs[agents.DesignConfig](design); err == nil {
		res.Design = &d
	}
	if c, err := agents.DecodeAs[agents.ContentOutput](content); err == nil {
		res.Content = &c
	}
	for _, out := range []agents.Output{design, content} {
		em.Emit(out.Agent, MilestoneAggregate, agentStatus(out), "%s", summary(out))
	}

	conf := meanConfidence(planning, design, content)
	res.OverallConfidence = &conf
	res.Success = planning.Success && design.Success && content.Success

	outcome := OutcomeSuccess
	if !res.Success {
		outcome = OutcomePartial
		o.logger.Warn("⚠️ run %s completed with errors: %s", runID, joinErrors(res.Errors))
		em.Emit("complete", MilestoneComplete, progress.StatusWarning, "completed with %d error(s), confidence %.2f", len(res.Errors), conf)
	} else {
		o.logger.Info("✅ run %s completed, confidence %.2f", runID, conf)
		em.Emit("complete", MilestoneComplete, progress.StatusCompleted, "site plan ready, confidence %.2f", conf)
	}
	o.recorder.ObserveOrchestration(outcome, conf, o.now().Sub(start))
	return res
}

// record stores out and folds its errors and assumptions into the result.
func (r *Result) record(out agents.Output) {
	r.Agents[out.Agent] = out
	for _, e := range out.Errors {
		r.Errors = append(r.Errors, out.Agent+": "+e)
	}
	r.Assumptions = append(r.Assumptions, out.Assumptions...)
}

// meanConfidence averages the confidences of successful outputs.
func meanConfidence(outs ...agents.Output) float64 {
	var sum float64
	n := 0
	for _, out := range outs {
		if out.Success {
			sum += out.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func agentStatus(out agents.Output) progress.Status {
	switch {
	case !out.Success:
		return progress.StatusFailed
	case out.LowConfidence:
		return progress.StatusWarning
	default:
		return progress.StatusCompleted
	}
}

func summary(out agents.Output) string {
	if !out.Success {
		return fmt.Sprintf("%s failed: %s", out.Agent, joinErrors(out.Errors))
	}
	if out.LowConfidence {
		return fmt.Sprintf("%s done with low confidence %.2f", out.Agent, out.Confidence)
	}
	return fmt.Sprintf("%s done, confidence %.2f", out.Agent, out.Confidence)
}

func joinErrors(errs []string) string {
	if len(errs) == 0 {
		return "unknown failure"
	}
	return strings.Join(errs, "; ")
}
