package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitebuilder/pkg/config"
	"sitebuilder/pkg/deploy"
	"sitebuilder/pkg/logx"
)

// execute runs the CLI in dir and returns stdout.
func execute(t *testing.T, dir string, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	restore := logx.SetOutput(io.Discard)
	defer restore()
	t.Cleanup(func() { config.SetDecryptedSecrets(map[string]string{}) })

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	if stdin != nil {
		cmd.SetIn(stdin)
	} else {
		cmd.SetIn(strings.NewReader(""))
	}
	cmd.SetArgs(append([]string{"--projectdir", dir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func generateSite(t *testing.T, dir string) generateOutput {
	t.Helper()
	out, err := execute(t, dir, nil, "generate", "--mock", "--json",
		"--name", "Joe's Pizza", "--type", "restaurant",
		"--description", "Family-owned pizzeria serving wood-fired pies since 1985")
	require.NoError(t, err)

	var res generateOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	return res
}

func TestGenerateStoresSiteAndPlan(t *testing.T) {
	dir := t.TempDir()
	res := generateSite(t, dir)

	require.NotEmpty(t, res.SiteID)
	assert.True(t, res.Result.Success)
	require.NotNil(t, res.Plan)
	assert.NotEmpty(t, res.Plan.Pages)
	assert.NotEmpty(t, res.Plan.Plugins)

	out, err := execute(t, dir, nil, "status", "--site-id", res.SiteID)
	require.NoError(t, err)
	assert.Contains(t, out, "Joe's Pizza")
	assert.Contains(t, out, string(deploy.SitePending))
}

func TestGenerateRequiresDescription(t *testing.T) {
	_, err := execute(t, t.TempDir(), nil, "generate", "--mock", "--name", "Joe's Pizza", "--type", "restaurant")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "description")
}

func TestStatusUnknownSite(t *testing.T) {
	_, err := execute(t, t.TempDir(), nil, "status", "--site-id", "missing")
	require.Error(t, err)
}

func TestSecretsSetAndList(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envPassword, "project-pass")

	_, err := execute(t, dir, strings.NewReader("s3cret\n"), "secrets", "set", "WP_APP_PASSWORD")
	require.NoError(t, err)
	require.True(t, config.SecretsFileExists(dir))

	_, err = execute(t, dir, strings.NewReader("other\n"), "secrets", "set", "SSH_PASSWORD")
	require.NoError(t, err)

	secrets, err := config.DecryptSecretsFile(dir, "project-pass")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"WP_APP_PASSWORD": "s3cret", "SSH_PASSWORD": "other"}, secrets)

	out, err := execute(t, dir, nil, "secrets", "list")
	require.NoError(t, err)
	assert.Equal(t, "SSH_PASSWORD\nWP_APP_PASSWORD\n", out)
	assert.NotContains(t, out, "s3cret")
}

func TestSecretsSetRejectsEmptyValue(t *testing.T) {
	t.Setenv(envPassword, "project-pass")
	_, err := execute(t, t.TempDir(), strings.NewReader("\n"), "secrets", "set", "EMPTY")
	require.Error(t, err)
}

func TestSecretsSetNeedsPassword(t *testing.T) {
	t.Setenv(envPassword, "")
	_, err := execute(t, t.TempDir(), strings.NewReader("value\n"), "secrets", "set", "NAME")
	require.Error(t, err)
	assert.Contains(t, err.Error(), envPassword)
}

func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestDeployUnreachableHostFailsAndIsRecorded(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envPassword, "project-pass")
	t.Setenv("TEST_SSH_PASSWORD", "hunter2")
	site := generateSite(t, dir)

	out, err := execute(t, dir, nil, "deploy", "--json",
		"--site-id", site.SiteID,
		"--url", "http://127.0.0.1:1",
		"--ssh-host", "127.0.0.1",
		"--ssh-port", strconv.Itoa(closedPort(t)),
		"--ssh-user", "deploy",
		"--ssh-password-secret", "TEST_SSH_PASSWORD",
		"--insecure-host-key")
	require.Error(t, err)

	var report deploy.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, deploy.SiteFailed, report.Status)
	require.NotEmpty(t, report.Steps)
	assert.Equal(t, deploy.StepFailed, report.Steps[0].Status)
	for _, s := range report.Steps[1:] {
		assert.Equal(t, deploy.StepPending, s.Status, s.Name)
	}

	out, err = execute(t, dir, nil, "status", "--json", "--events", "--site-id", site.SiteID)
	require.NoError(t, err)
	var status statusOutput
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, deploy.SiteFailed, status.Site.Status)
	assert.Equal(t, report.RunID, status.Site.LastRunID)
	assert.Len(t, status.Steps, len(report.Steps))
	assert.NotEmpty(t, status.Events)

	// The stored target is reused, credentials included.
	_, err = execute(t, dir, nil, "deploy", "--site-id", site.SiteID)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "no stored target")
}

func TestDeployWithoutTarget(t *testing.T) {
	dir := t.TempDir()
	site := generateSite(t, dir)

	_, err := execute(t, dir, nil, "deploy", "--site-id", site.SiteID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no stored target")
}
