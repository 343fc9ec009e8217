package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitebuilder/pkg/agents"
	"sitebuilder/pkg/config"
	"sitebuilder/pkg/faults"
	"sitebuilder/pkg/genclient"
	"sitebuilder/pkg/logx"
	"sitebuilder/pkg/progress"
)

var joesPizza = agents.Input{
	BusinessName: "Joe's Pizza",
	BusinessType: "restaurant",
	Description:  "Family pizza restaurant in Brooklyn",
}

func isTask(prompt, task string) bool {
	return strings.Contains(prompt, "### TASK: "+task+"\n")
}

// failing wraps the mock and breaks the listed tasks.
func failing(tasks ...string) genclient.Client {
	mock := genclient.NewMock()
	return genclient.Func(func(ctx context.Context, prompt, system string) (string, error) {
		for _, task := range tasks {
			if isTask(prompt, task) {
				return "", faults.Network(errors.New("connection reset"), "generator unreachable")
			}
		}
		return mock.Generate(ctx, prompt, system)
	})
}

type recorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recorder) Publish(e progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) steps() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Step+":"+string(e.Status))
	}
	return out
}

type metricsRecorder struct {
	outcomes    []string
	confidences []float64
}

func (m *metricsRecorder) ObserveGeneration(string, string, int, int, bool, string, time.Duration) {}

func (m *metricsRecorder) ObserveOrchestration(status string, confidence float64, _ time.Duration) {
	m.outcomes = append(m.outcomes, status)
	m.confidences = append(m.confidences, confidence)
}

func (m *metricsRecorder) ObserveDeployStep(string, string, time.Duration) {}

func (m *metricsRecorder) ObserveDeployment(string, time.Duration) {}

func newOrchestrator(t *testing.T, gen genclient.Client, opts ...Option) (*Orchestrator, *recorder) {
	t.Helper()
	t.Cleanup(logx.SetOutput(&bytes.Buffer{}))
	sink := &recorder{}
	set := agents.NewSet(gen, config.ThresholdConfig{}, config.DefaultContentBatch)
	return New(set, sink, opts...), sink
}

func TestOrchestrateJoesPizza(t *testing.T) {
	m := &metricsRecorder{}
	o, sink := newOrchestrator(t, genclient.NewMock(), WithRecorder(m))

	res := o.Run(context.Background(), "run-1", joesPizza)

	require.True(t, res.Success, "errors: %v", res.Errors)
	assert.Empty(t, res.Errors)
	require.NotNil(t, res.Architecture)
	assert.True(t, res.Architecture.HasPage("home"))
	assert.True(t, res.Architecture.HasPage("contact"))
	assert.True(t, res.Architecture.HasPage("menu"))

	require.NotNil(t, res.Design)
	assert.Equal(t, "astra", res.Design.Theme)

	require.NotNil(t, res.Content)
	assert.Len(t, res.Content.Pages, len(res.Architecture.Pages))
	for _, p := range res.Content.Pages {
		assert.True(t, res.Architecture.HasPage(p.Slug), p.Slug)
	}

	require.NotNil(t, res.OverallConfidence)
	want := (res.Agents[agents.NamePlanning].Confidence +
		res.Agents[agents.NameDesign].Confidence +
		res.Agents[agents.NameContent].Confidence) / 3
	assert.InDelta(t, want, *res.OverallConfidence, 1e-9)
	assert.Len(t, res.Agents, 3)

	assert.Equal(t, []string{
		"planning:started",
		"design:started",
		"content:started",
		"design:completed",
		"content:completed",
		"complete:completed",
	}, sink.steps())

	prev := 0
	for _, e := range sink.events {
		assert.Equal(t, "run-1", e.RunID)
		assert.GreaterOrEqual(t, e.Progress, prev)
		prev = e.Progress
	}
	assert.Equal(t, MilestonePlanning, sink.events[0].Progress)
	assert.Equal(t, MilestoneDesign, sink.events[1].Progress)
	assert.Equal(t, MilestoneContent, sink.events[2].Progress)
	assert.Equal(t, MilestoneComplete, sink.events[len(sink.events)-1].Progress)

	assert.Equal(t, []string{OutcomeSuccess}, m.outcomes)
}

func TestPlanningFailureAbortsRun(t *testing.T) {
	var calls sync.Map
	mock := genclient.NewMock()
	gen := genclient.Func(func(ctx context.Context, prompt, system string) (string, error) {
		for _, task := range []string{"design", "content"} {
			if isTask(prompt, task) {
				calls.Store(task, true)
			}
		}
		if isTask(prompt, "planning") {
			return "I would suggest a homepage and a menu page.", nil
		}
		return mock.Generate(ctx, prompt, system)
	})
	m := &metricsRecorder{}
	o, sink := newOrchestrator(t, gen, WithRecorder(m))

	res := o.Orchestrate(context.Background(), joesPizza)

	assert.False(t, res.Success)
	assert.Nil(t, res.OverallConfidence)
	assert.Nil(t, res.Architecture)
	assert.Nil(t, res.Design)
	assert.Nil(t, res.Content)
	require.NotEmpty(t, res.Errors)
	assert.True(t, strings.HasPrefix(res.Errors[0], "planning: "))
	assert.NotEmpty(t, res.RunID)

	_, designCalled := calls.Load("design")
	_, contentCalled := calls.Load("content")
	assert.False(t, designCalled)
	assert.False(t, contentCalled)

	assert.Equal(t, []string{"planning:started", "planning:failed"}, sink.steps())
	assert.Equal(t, []string{OutcomeAborted}, m.outcomes)
}

func TestDesignFailureIsPartial(t *testing.T) {
	m := &metricsRecorder{}
	o, sink := newOrchestrator(t, failing("design"), WithRecorder(m))

	res := o.Run(context.Background(), "run-2", joesPizza)

	assert.False(t, res.Success)
	assert.NotNil(t, res.Architecture)
	assert.NotNil(t, res.Content)
	assert.Nil(t, res.Design)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "design: ")

	require.NotNil(t, res.OverallConfidence)
	want := (res.Agents[agents.NamePlanning].Confidence + res.Agents[agents.NameContent].Confidence) / 2
	assert.InDelta(t, want, *res.OverallConfidence, 1e-9)

	steps := sink.steps()
	assert.Contains(t, steps, "design:failed")
	assert.Equal(t, "complete:warning", steps[len(steps)-1])
	assert.Equal(t, []string{OutcomePartial}, m.outcomes)
}

func TestContentFailureKeepsArchitecture(t *testing.T) {
	o, _ := newOrchestrator(t, failing("content"))

	res := o.Run(context.Background(), "run-3", joesPizza)

	assert.False(t, res.Success)
	assert.NotNil(t, res.Architecture)
	assert.NotNil(t, res.Design)
	assert.Nil(t, res.Content)
	assert.False(t, res.Agents[agents.NameContent].Success)
	assert.Zero(t, res.Agents[agents.NameContent].Confidence)
}

func TestDesignAndContentRunConcurrently(t *testing.T) {
	mock := genclient.NewMock()
	arrived := map[string]chan struct{}{"design": make(chan struct{}), "content": make(chan struct{})}
	var once sync.Map

	gen := genclient.Func(func(ctx context.Context, prompt, system string) (string, error) {
		for task, ch := range arrived {
			if !isTask(prompt, task) {
				continue
			}
			if _, loaded := once.LoadOrStore(task, true); !loaded {
				close(ch)
			}
			other := arrived["content"]
			if task == "content" {
				other = arrived["design"]
			}
			select {
			case <-other:
			case <-time.After(2 * time.Second):
				return "", faults.Network(errors.New("timeout"), task+" ran alone")
			}
		}
		return mock.Generate(ctx, prompt, system)
	})

	o, _ := newOrchestrator(t, gen)
	res := o.Run(context.Background(), "run-4", joesPizza)
	assert.True(t, res.Success, "errors: %v", res.Errors)
}

func TestInvalidGeneratorFailsRun(t *testing.T) {
	gen := genclient.Func(func(context.Context, string, string) (string, error) {
		return "not json at all", nil
	})
	o, _ := newOrchestrator(t, gen)

	res := o.Run(context.Background(), "run-5", joesPizza)
	assert.False(t, res.Success)
	assert.Nil(t, res.OverallConfidence)
	out := res.Agents[agents.NamePlanning]
	assert.Zero(t, out.Confidence)
	assert.NotEmpty(t, out.Errors)
}

func TestMeanConfidence(t *testing.T) {
	assert.Zero(t, meanConfidence())
	assert.Zero(t, meanConfidence(agents.Output{Success: false, Confidence: 0.9}))
	assert.InDelta(t, 0.7, meanConfidence(
		agents.Output{Success: true, Confidence: 0.8},
		agents.Output{Success: false},
		agents.Output{Success: true, Confidence: 0.6},
	), 1e-9)
}
