// Package deploy applies a site plan to a WordPress target, one step at a time.
//
// Steps run sequentially in the order of Kinds. A failed critical step stops the run and leaves
// the site Failed; a failed optional step (optional plugin, navigation) is recorded, logged as a
// warning, and the run continues. Changes already applied to the target are never rolled back;
// Report.Applied lists them for manual remediation.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sitebuilder/pkg/contentapi"
	"sitebuilder/pkg/logx"
	"sitebuilder/pkg/metrics"
	"sitebuilder/pkg/progress"
	"sitebuilder/pkg/remote"
)

// SiteRepository stores deployment state. The engine is the only writer of the terminal status.
type SiteRepository interface {
	MarkDeploying(ctx context.Context, siteID, runID string) error
	RecordStep(ctx context.Context, siteID, runID string, rec StepRecord) error
	MarkDeployed(ctx context.Context, siteID, runID string) error
	MarkFailed(ctx context.Context, siteID, runID, reason string) error
}

// ContentAPI is the part of the content API client the engine uses.
type ContentAPI interface {
	Ping(ctx context.Context) error
	Upsert(ctx context.Context, col contentapi.Collection, doc contentapi.Document) (*contentapi.Resource, error)
}

// ChannelFactory opens the command channel for a target.
type ChannelFactory func(remote.Target) remote.Channel

// ContentFactory builds the content API client for a site.
type ContentFactory func(siteURL string, creds contentapi.Credentials) (ContentAPI, error)

// Report is the outcome of one deployment.
//
//nolint:govet // Field grouping follows meaning, not alignment
type Report struct {
	SiteID     string       `json:"site_id"`
	RunID      string       `json:"run_id"`
	Status     SiteStatus   `json:"status"`
	Steps      []StepRecord `json:"steps"`
	Applied    []string     `json:"applied,omitempty"`
	Warnings   []string     `json:"warnings,omitempty"`
	Error      string       `json:"error,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Step returns the record named name.
func (r *Report) Step(name string) (StepRecord, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepRecord{}, false
}

// Engine runs deployments. It holds no per-site state and may run deployments for different
// sites concurrently.
type Engine struct {
	repo             SiteRepository
	sink             progress.Sink
	recorder         metrics.Recorder
	channels         ChannelFactory
	content          ContentFactory
	parallelOptional bool
	maxParallel      int
	now              func() time.Time
	logger           *logx.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithProgress sets the sink receiving step events.
func WithProgress(sink progress.Sink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithChannelFactory replaces the SSH channel factory.
func WithChannelFactory(f ChannelFactory) Option {
	return func(e *Engine) { e.channels = f }
}

// WithContentFactory replaces the content API client factory.
func WithContentFactory(f ContentFactory) Option {
	return func(e *Engine) { e.content = f }
}

// WithParallelOptionalPlugins lets optional plugins install concurrently, at most limit at a time.
// It only takes effect when the channel reports Serialized.
func WithParallelOptionalPlugins(limit int) Option {
	return func(e *Engine) {
		e.parallelOptional = limit > 1
		e.maxParallel = limit
	}
}

// New creates an engine persisting through repo.
func New(repo SiteRepository, opts ...Option) *Engine {
	e := &Engine{
		repo:     repo,
		sink:     progress.Discard(),
		recorder: metrics.Nop(),
		channels: func(t remote.Target) remote.Channel { return remote.NewSSH(t) },
		content: func(siteURL string, creds contentapi.Credentials) (ContentAPI, error) {
			c, err := contentapi.New(siteURL, creds)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		now:    time.Now,
		logger: logx.NewLogger("deploy"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Deploy applies req.Plan to req.Target. The returned report is non-nil whenever the request
// was valid; err is non-nil when the site ends Failed or its terminal status could not be stored.
//
// Cancelling ctx stops the run at the next step boundary. A step already running completes.
func (e *Engine) Deploy(ctx context.Context, req Request) (*Report, error) {
	if req.SiteID == "" {
		return nil, errors.New("deploy request has no site id")
	}
	if err := req.Plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan for site %s: %w", req.SiteID, err)
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	specs := req.Plan.steps()
	r := &run{
		engine:  e,
		req:     req,
		specs:   specs,
		ch:      e.channels(req.Target.SSH),
		emitter: progress.NewEmitter(e.sink, req.RunID),
		pageIDs: map[string]int{},
		logger:  e.logger.With(req.SiteID),
		report: &Report{
			SiteID:    req.SiteID,
			RunID:     req.RunID,
			Status:    SitePending,
			StartedAt: e.now(),
		},
	}
	for i, s := range specs {
		r.report.Steps = append(r.report.Steps, StepRecord{
			Seq:      i + 1,
			Name:     s.name,
			Kind:     s.kind,
			Status:   StepPending,
			Optional: s.optional,
		})
	}

	// Remote calls are never aborted mid-flight.
	calls := context.WithoutCancel(ctx)

	if err := e.repo.MarkDeploying(calls, req.SiteID, req.RunID); err != nil {
		r.report.Status = SiteFailed
		r.report.Error = err.Error()
		r.report.FinishedAt = e.now()
		return r.report, fmt.Errorf("mark site %s deploying: %w", req.SiteID, err)
	}
	r.report.Status = SiteDeploying
	// Every planned step is on record before the first one runs.
	for _, rec := range r.report.Steps {
		if err := e.repo.RecordStep(calls, req.SiteID, req.RunID, rec); err != nil {
			r.logger.Warn("failed to persist step %s as %s: %v", rec.Name, rec.Status, err)
		}
	}
	r.logger.Info("🚀 deploying %d steps to %s", len(specs), req.Target.SSH.Host)
	r.emitter.Emit("deploy", 0, progress.StatusStarted, "deploying %d steps", len(specs))

	failure := r.execute(ctx, calls)
	return r.finish(calls, failure)
}

// run is the state of one deployment.
type run struct {
	engine  *Engine
	req     Request
	specs   []stepSpec
	ch      remote.Channel
	emitter *progress.Emitter
	logger  *logx.Logger

	mu      sync.Mutex
	report  *Report
	pageIDs map[string]int
}

// execute runs the steps and returns the error that stopped the run, if any.
func (r *run) execute(ctx, calls context.Context) error {
	for i := 0; i < len(r.specs); i++ {
		spec := r.specs[i]
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled before step %s: %w", spec.name, err)
		}

		if spec.kind == KindPlugin && spec.optional && r.parallelPlugins() {
			end := i
			for end < len(r.specs) && r.specs[end].kind == KindPlugin && r.specs[end].optional {
				end++
			}
			r.runOptionalPlugins(calls, i, end)
			i = end - 1
			continue
		}

		if err := r.step(calls, i); err != nil && !spec.optional {
			return fmt.Errorf("step %s: %w", spec.name, err)
		}
	}
	return nil
}

func (r *run) parallelPlugins() bool {
	return r.engine.parallelOptional && r.ch.Serialized()
}

// runOptionalPlugins installs specs[from:to] concurrently. Failures are warnings only.
func (r *run) runOptionalPlugins(ctx context.Context, from, to int) {
	var g errgroup.Group
	g.SetLimit(r.engine.maxParallel)
	for i := from; i < to; i++ {
		g.Go(func() error {
			_ = r.step(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

// step runs specs[i] with its record going pending -> running -> completed|failed.
func (r *run) step(ctx context.Context, i int) error {
	spec := r.specs[i]
	r.transition(ctx, i, StepRunning, "")
	r.emitter.Emit(spec.name, r.percent(i), progress.StatusRunning, "%s started", spec.name)

	msg, err := r.apply(ctx, spec)
	if err != nil {
		rec := r.transition(ctx, i, StepFailed, err.Error())
		r.engine.recorder.ObserveDeployStep(string(spec.kind), string(StepFailed), rec.Duration())
		if spec.optional {
			r.warn("optional step %s failed: %v", spec.name, err)
			r.emitter.Emit(spec.name, r.percent(i+1), progress.StatusWarning, "%s failed (optional): %v", spec.name, err)
			return err
		}
		r.logger.Error("❌ step %s failed: %v", spec.name, err)
		r.emitter.Emit(spec.name, r.percent(i), progress.StatusFailed, "%s failed: %v", spec.name, err)
		return err
	}

	rec := r.transition(ctx, i, StepCompleted, msg)
	r.engine.recorder.ObserveDeployStep(string(spec.kind), string(StepCompleted), rec.Duration())
	r.logger.Info("✅ step %s: %s", spec.name, msg)
	r.emitter.Emit(spec.name, r.percent(i+1), progress.StatusCompleted, "%s", msg)
	return nil
}

// transition updates and persists the record of step i and returns a copy.
func (r *run) transition(ctx context.Context, i int, to StepStatus, message string) StepRecord {
	r.mu.Lock()
	rec := &r.report.Steps[i]
	if err := rec.transition(to, message, r.engine.now()); err != nil {
		r.mu.Unlock()
		// Only reachable through a bug in the step loop.
		r.logger.Error("%v", err)
		return *rec
	}
	snapshot := *rec
	r.mu.Unlock()

	if err := r.engine.repo.RecordStep(ctx, r.req.SiteID, r.req.RunID, snapshot); err != nil {
		r.logger.Warn("failed to persist step %s as %s: %v", snapshot.Name, to, err)
	}
	return snapshot
}

// percent maps completed steps to 0..99; 100 is reserved for the terminal event.
func (r *run) percent(done int) int {
	return done * 99 / len(r.specs)
}

func (r *run) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.logger.Warn("⚠️ %s", msg)
	r.mu.Lock()
	r.report.Warnings = append(r.report.Warnings, msg)
	r.mu.Unlock()
}

func (r *run) applied(format string, args ...any) {
	r.mu.Lock()
	r.report.Applied = append(r.report.Applied, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

func (r *run) finish(ctx context.Context, failure error) (*Report, error) {
	e := r.engine
	r.report.FinishedAt = e.now()
	elapsed := r.report.FinishedAt.Sub(r.report.StartedAt)

	if failure != nil {
		r.report.Status = SiteFailed
		r.report.Error = failure.Error()
		e.recorder.ObserveDeployment(string(SiteFailed), elapsed)
		r.emitter.Emit("deploy", r.percent(r.completed()), progress.StatusFailed, "deployment failed: %v", failure)
		if len(r.report.Applied) > 0 {
			r.logger.Warn("remote changes left in place: %s", strings.Join(r.report.Applied, "; "))
		}
		if err := e.repo.MarkFailed(ctx, r.req.SiteID, r.req.RunID, failure.Error()); err != nil {
			return r.report, errors.Join(failure, fmt.Errorf("record failed status: %w", err))
		}
		return r.report, failure
	}

	r.report.Status = SiteDeployed
	e.recorder.ObserveDeployment(string(SiteDeployed), elapsed)
	msg := fmt.Sprintf("deployed in %s", elapsed.Round(time.Second))
	if n := len(r.report.Warnings); n > 0 {
		msg += fmt.Sprintf(" with %d warning(s)", n)
	}
	r.logger.Info("🎉 %s", msg)
	r.emitter.Emit("deploy", 100, progress.StatusCompleted, "%s", msg)
	if err := e.repo.MarkDeployed(ctx, r.req.SiteID, r.req.RunID); err != nil {
		return r.report, fmt.Errorf("record deployed status: %w", err)
	}
	return r.report, nil
}

func (r *run) completed() int {
	n := 0
	for _, s := range r.report.Steps {
		if s.Status.Terminal() {
			n++
		}
	}
	return n
}

// wp runs one wp-cli command through the channel.
func (r *run) wp(ctx context.Context, args []string) (string, error) {
	cmd, err := remote.Command("wp", args...)
	if err != nil {
		return "", err
	}
	return r.ch.Run(ctx, cmd)
}
