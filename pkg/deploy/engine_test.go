package deploy

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitebuilder/pkg/contentapi"
	"sitebuilder/pkg/faults"
	"sitebuilder/pkg/logx"
	"sitebuilder/pkg/progress"
	"sitebuilder/pkg/remote"
)

func samplePlan() Plan {
	return Plan{
		Theme: "astra",
		Plugins: []Plugin{
			{Slug: "wordpress-seo", Required: true},
			{Slug: "restaurant-reservations", Required: false},
		},
		Pages: []Page{
			{Slug: "home", Title: "Home", Body: "<p>Welcome to Joe's Pizza</p>", Order: 1},
			{Slug: "menu", Title: "Menu", Body: "<p>Margherita</p>", Order: 2},
			{Slug: "contact", Title: "Contact", Body: "<p>Call us</p>", Order: 3},
		},
		Posts:      []Post{{Slug: "grand-opening", Title: "Grand opening", Body: "<p>We are open</p>"}},
		Navigation: true,
	}
}

func sampleRequest(plan Plan) Request {
	return Request{
		SiteID: "site-1",
		RunID:  "run-1",
		Target: Target{
			URL: "https://joes.example.com",
			SSH: remote.Target{Host: "joes.example.com", Username: "deploy", WorkingDirectory: "/var/www/html"},
		},
		Plan: plan,
	}
}

type harness struct {
	ch     *fakeChannel
	repo   *memoryRepo
	api    *fakeContentAPI
	events []progress.Event
	mu     sync.Mutex
	engine *Engine
}

func newHarness(ch *fakeChannel, opts ...Option) *harness {
	h := &harness{ch: ch, repo: newMemoryRepo(), api: &fakeContentAPI{}}
	all := []Option{
		WithChannelFactory(func(remote.Target) remote.Channel { return h.ch }),
		WithContentFactory(func(string, contentapi.Credentials) (ContentAPI, error) { return h.api, nil }),
		WithProgress(progress.Func(func(e progress.Event) {
			h.mu.Lock()
			h.events = append(h.events, e)
			h.mu.Unlock()
		})),
	}
	h.engine = New(h.repo, append(all, opts...)...)
	return h
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	t.Cleanup(logx.SetOutput(&buf))
	return &buf
}

func TestDeployAllStepsSucceed(t *testing.T) {
	captureLogs(t)
	h := newHarness(newFakeChannel())

	report, err := h.engine.Deploy(context.Background(), sampleRequest(samplePlan()))
	require.NoError(t, err)

	assert.Equal(t, SiteDeployed, report.Status)
	assert.Equal(t, SiteDeployed, h.repo.status["site-1"])
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "no content API credentials")

	names := make([]string, 0, len(report.Steps))
	for _, s := range report.Steps {
		names = append(names, s.Name)
		assert.Equal(t, StepCompleted, s.Status, s.Name)
	}
	assert.Equal(t, []string{
		"verify", "core", "theme", "plugin:wordpress-seo", "plugin:restaurant-reservations",
		"content", "navigation", "finalize",
	}, names)

	assert.True(t, h.ch.ran("wp theme install astra --activate"))
	assert.True(t, h.ch.ran("wp plugin install wordpress-seo --activate"))
	assert.Equal(t, 4, h.ch.count("wp post create"))
	assert.True(t, h.ch.ran("wp rewrite structure"))
	assert.True(t, h.ch.ran("wp option update page_on_front 101"), "home page id comes from the post create output")
	assert.Contains(t, report.Applied, "theme astra activated")

	last := h.events[len(h.events)-1]
	assert.Equal(t, 100, last.Progress)
	assert.Equal(t, progress.StatusCompleted, last.Status)
	assert.Equal(t, "run-1", last.RunID)

	assert.Equal(t, 0, h.events[0].Progress)
	prev := 0
	for _, e := range h.events {
		assert.GreaterOrEqual(t, e.Progress, prev, "progress follows finished steps: %s", e.Step)
		prev = e.Progress
	}
}

func TestRequiredPluginFailureAbortsDeployment(t *testing.T) {
	captureLogs(t)
	plan := samplePlan()
	plan.Plugins = []Plugin{{Slug: "woocommerce", Required: true}, {Slug: "wordfence", Required: false}}

	h := newHarness(newFakeChannel(rule{
		match: "wp plugin install woocommerce",
		err:   commandFailure("wp plugin install woocommerce --activate", "Error: download failed"),
	}))

	report, err := h.engine.Deploy(context.Background(), sampleRequest(plan))
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.TypeRemoteCommand))

	assert.Equal(t, SiteFailed, report.Status)
	assert.Equal(t, SiteFailed, h.repo.status["site-1"])
	assert.Contains(t, h.repo.reasons["site-1"], "plugin:woocommerce")

	rec, ok := report.Step("plugin:woocommerce")
	require.True(t, ok)
	assert.Equal(t, StepFailed, rec.Status)
	assert.Contains(t, rec.Message, "download failed")

	for _, name := range []string{"plugin:wordfence", "content", "navigation", "finalize"} {
		rec, ok := report.Step(name)
		require.True(t, ok)
		assert.Equal(t, StepPending, rec.Status, name)
		assert.Equal(t, []StepStatus{StepPending}, h.repo.history(name), name)
	}
	assert.False(t, h.ch.ran("wp plugin install wordfence"))
	assert.False(t, h.ch.ran("wp post create"))
	assert.False(t, h.ch.ran("wp rewrite"))

	last := h.events[len(h.events)-1]
	assert.Equal(t, progress.StatusFailed, last.Status)
}

func TestOptionalPluginFailureWarnsAndContinues(t *testing.T) {
	logs := captureLogs(t)
	h := newHarness(newFakeChannel(rule{
		match: "wp plugin install restaurant-reservations",
		err:   commandFailure("wp plugin install restaurant-reservations --activate", "Error: not compatible"),
	}))

	report, err := h.engine.Deploy(context.Background(), sampleRequest(samplePlan()))
	require.NoError(t, err)
	assert.Equal(t, SiteDeployed, report.Status)

	rec, ok := report.Step("plugin:restaurant-reservations")
	require.True(t, ok)
	assert.Equal(t, StepFailed, rec.Status)
	assert.True(t, rec.Optional)

	fin, _ := report.Step("finalize")
	assert.Equal(t, StepCompleted, fin.Status)

	assert.Contains(t, logs.String(), "WARN: ⚠️ optional step plugin:restaurant-reservations failed")
	found := false
	for _, w := range report.Warnings {
		if strings.Contains(w, "restaurant-reservations") {
			found = true
		}
	}
	assert.True(t, found, "warning for the failed plugin: %v", report.Warnings)

	var warned bool
	for _, e := range h.events {
		if e.Step == "plugin:restaurant-reservations" && e.Status == progress.StatusWarning {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestStepStatusesAreMonotonic(t *testing.T) {
	captureLogs(t)
	runs := map[string]*fakeChannel{
		"success": newFakeChannel(),
		"theme failure": newFakeChannel(rule{
			match: "wp theme install",
			err:   commandFailure("wp theme install astra --activate", "Error: theme not found"),
		}),
		"optional failure": newFakeChannel(rule{
			match: "wp menu create",
			err:   commandFailure("wp menu create", "Error: menus unsupported"),
		}),
	}

	rank := map[StepStatus]int{StepPending: 0, StepRunning: 1, StepCompleted: 2, StepFailed: 2}
	for name, ch := range runs {
		t.Run(name, func(t *testing.T) {
			h := newHarness(ch)
			report, _ := h.engine.Deploy(context.Background(), sampleRequest(samplePlan()))
			require.NotNil(t, report)

			for _, step := range report.Steps {
				history := h.repo.history(step.Name)
				require.NotEmpty(t, history, step.Name)
				assert.Equal(t, StepPending, history[0], "%s is recorded before it runs", step.Name)
				running := 0
				prev := StepPending
				for _, s := range history[1:] {
					assert.Greater(t, rank[s], rank[prev], "%s: %v", step.Name, history)
					if s == StepRunning {
						running++
					}
					prev = s
				}
				assert.LessOrEqual(t, running, 1, step.Name)
				assert.Equal(t, step.Status, history[len(history)-1])
			}
		})
	}
}

func TestContentThroughAPI(t *testing.T) {
	captureLogs(t)
	h := newHarness(newFakeChannel())
	req := sampleRequest(samplePlan())
	req.Target.API = contentapi.Credentials{Username: "admin", AppPassword: "abcd efgh"}

	report, err := h.engine.Deploy(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, SiteDeployed, report.Status)
	assert.Empty(t, report.Warnings)

	require.Len(t, h.api.docs, 4)
	assert.Equal(t, "home", h.api.docs[0].Slug)
	assert.Equal(t, "publish", h.api.docs[0].Status)
	assert.Equal(t, "grand-opening", h.api.docs[3].Slug)

	assert.False(t, h.ch.ran("wp post create"))
	assert.False(t, h.ch.ran("wp post list"), "page ids come from the API responses")
	assert.True(t, h.ch.ran("wp option update page_on_front 1"))
}

func TestContentFallsBackWhenAPIUnreachable(t *testing.T) {
	captureLogs(t)
	h := newHarness(newFakeChannel())
	h.api.upsertErr = faults.Network(errors.New("connection reset"), "POST /wp-json/wp/v2/pages")
	h.api.failAfter = 2
	req := sampleRequest(samplePlan())
	req.Target.API = contentapi.Credentials{Token: "tok"}

	report, err := h.engine.Deploy(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, SiteDeployed, report.Status)

	assert.Len(t, h.api.docs, 2)
	assert.Equal(t, 2, h.ch.count("wp post create"))
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "content API lost after 2 item(s)")

	rec, _ := report.Step("content")
	assert.Contains(t, rec.Message, "2 through remote commands")
}

func TestContentPingFailureFallsBack(t *testing.T) {
	captureLogs(t)
	h := newHarness(newFakeChannel())
	h.api.pingErr = faults.Network(errors.New("no route to host"), "GET /users/me")
	req := sampleRequest(samplePlan())
	req.Target.API = contentapi.Credentials{Token: "tok"}

	report, err := h.engine.Deploy(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, h.api.docs)
	assert.Equal(t, 4, h.ch.count("wp post create"))
	assert.Contains(t, report.Warnings[0], "content API unreachable")
}

func TestContentAuthFailureIsFatal(t *testing.T) {
	captureLogs(t)
	h := newHarness(newFakeChannel())
	h.api.pingErr = faults.Auth(nil, "rest_not_logged_in")
	req := sampleRequest(samplePlan())
	req.Target.API = contentapi.Credentials{Username: "admin", AppPassword: "wrong"}

	report, err := h.engine.Deploy(context.Background(), req)
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.TypeAuthentication))
	assert.Equal(t, SiteFailed, report.Status)

	rec, _ := report.Step("content")
	assert.Equal(t, StepFailed, rec.Status)
	fin, _ := report.Step("finalize")
	assert.Equal(t, StepPending, fin.Status)
	assert.False(t, h.ch.ran("wp post create"))
}

func TestCoreInstalledWhenMissing(t *testing.T) {
	captureLogs(t)
	missing := func(cmd string) rule {
		return rule{match: cmd, err: commandFailure(cmd, "")}
	}
	h := newHarness(newFakeChannel(
		missing("wp core is-installed"),
		missing("wp core version"),
		missing("wp config path"),
	))
	plan := samplePlan()
	plan.Core = &CoreInstall{
		DBName: "wp", DBUser: "wp", DBPassword: "pw", Title: "Joe's Pizza",
		AdminUser: "joe", AdminPassword: "pw", AdminEmail: "joe@example.com",
	}

	report, err := h.engine.Deploy(context.Background(), sampleRequest(plan))
	require.NoError(t, err)

	assert.True(t, h.ch.ran("wp core download"))
	assert.True(t, h.ch.ran("wp config create"))
	assert.True(t, h.ch.ran("wp core install"))
	assert.Contains(t, report.Applied, "WordPress installed")
}

func TestCoreMissingWithoutSettingsFails(t *testing.T) {
	captureLogs(t)
	h := newHarness(newFakeChannel(rule{
		match: "wp core is-installed",
		err:   commandFailure("wp core is-installed", ""),
	}))

	report, err := h.engine.Deploy(context.Background(), sampleRequest(samplePlan()))
	require.Error(t, err)
	rec, _ := report.Step("core")
	assert.Equal(t, StepFailed, rec.Status)
	assert.False(t, h.ch.ran("wp core download"))
	assert.False(t, h.ch.ran("wp theme install"))
}

func TestUnreachableTargetFailsAtVerify(t *testing.T) {
	captureLogs(t)
	h := newHarness(newFakeChannel(rule{
		match: "wp cli version",
		err:   faults.Network(errors.New("connection refused"), "dial joes.example.com:22"),
	}))

	report, err := h.engine.Deploy(context.Background(), sampleRequest(samplePlan()))
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.TypeNetwork))
	rec, _ := report.Step("verify")
	assert.Equal(t, StepFailed, rec.Status)
	assert.Empty(t, report.Applied)
}

func TestCancellationHonoredAtStepBoundary(t *testing.T) {
	captureLogs(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := newFakeChannel()
	ch.onRun = func(cmd string) {
		if cmd == "wp theme install astra --activate" {
			cancel()
		}
	}
	h := newHarness(ch)

	report, err := h.engine.Deploy(ctx, sampleRequest(samplePlan()))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	theme, _ := report.Step("theme")
	assert.Equal(t, StepCompleted, theme.Status, "the running step finishes")
	plugin, _ := report.Step("plugin:wordpress-seo")
	assert.Equal(t, StepPending, plugin.Status)
	assert.Equal(t, SiteFailed, h.repo.status["site-1"])
}

func TestParallelOptionalPluginsNeedSerializedChannel(t *testing.T) {
	captureLogs(t)
	plan := samplePlan()
	plan.Plugins = []Plugin{
		{Slug: "wordpress-seo", Required: true},
		{Slug: "wordfence"},
		{Slug: "litespeed-cache"},
		{Slug: "updraftplus"},
	}

	ch := newFakeChannel(rule{match: "wp plugin install wordfence", err: commandFailure("wp plugin install wordfence", "boom")})
	ch.serialized = true
	h := newHarness(ch, WithParallelOptionalPlugins(3))

	report, err := h.engine.Deploy(context.Background(), sampleRequest(plan))
	require.NoError(t, err)
	assert.Equal(t, SiteDeployed, report.Status)
	assert.Equal(t, 4, h.ch.count("wp plugin install"))

	rec, _ := report.Step("plugin:wordfence")
	assert.Equal(t, StepFailed, rec.Status)
	for _, slug := range []string{"litespeed-cache", "updraftplus"} {
		rec, _ := report.Step("plugin:" + slug)
		assert.Equal(t, StepCompleted, rec.Status, slug)
	}
}

func TestInvalidRequests(t *testing.T) {
	h := newHarness(newFakeChannel())

	_, err := h.engine.Deploy(context.Background(), Request{Plan: samplePlan()})
	require.Error(t, err)

	plan := samplePlan()
	plan.Theme = ""
	report, err := h.engine.Deploy(context.Background(), sampleRequest(plan))
	require.Error(t, err)
	assert.Nil(t, report)
	assert.Empty(t, h.ch.commands)
	assert.Empty(t, h.repo.status)
}

func TestRepositoryFailureBeforeFirstStep(t *testing.T) {
	captureLogs(t)
	h := newHarness(newFakeChannel())
	h.repo.failOn = "deploying"

	report, err := h.engine.Deploy(context.Background(), sampleRequest(samplePlan()))
	require.Error(t, err)
	assert.Equal(t, SiteFailed, report.Status)
	assert.Empty(t, h.ch.commands)
}

func TestRunIDGenerated(t *testing.T) {
	captureLogs(t)
	h := newHarness(newFakeChannel())
	req := sampleRequest(samplePlan())
	req.RunID = ""

	report, err := h.engine.Deploy(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, report.RunID, 36)
}
