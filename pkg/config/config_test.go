package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigCreatesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { SetConfigForTesting(nil) })

	require.NoError(t, LoadConfig(dir))

	cfg, err := GetConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, cfg.Generator.Model)
	assert.InDelta(t, 0.75, cfg.Thresholds.Planning, 1e-9)
	assert.InDelta(t, 0.60, cfg.Thresholds.Design, 1e-9)
	assert.InDelta(t, 0.75, cfg.Thresholds.Content, 1e-9)
	assert.InDelta(t, 0.80, cfg.Thresholds.DeploymentPlan, 1e-9)
	assert.Equal(t, "/%postname%/", cfg.Deploy.Permalink)
	assert.Equal(t, 5, cfg.Deploy.ContentBatchSize)
	assert.False(t, cfg.Generator.Retry.Enabled)

	_, err = os.Stat(filepath.Join(dir, ProjectConfigDir, ProjectConfigFilename))
	assert.NoError(t, err)
}

func TestLoadConfigAppliesDefaultsToPartialFile(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { SetConfigForTesting(nil) })
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ProjectConfigDir), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, ProjectConfigDir, ProjectConfigFilename),
		[]byte(`{"generator":{"mock":true},"deploy":{"content_batch_size":2}}`),
		0644,
	))

	require.NoError(t, LoadConfig(dir))
	cfg, err := GetConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Generator.Mock)
	assert.Equal(t, 2, cfg.Deploy.ContentBatchSize)
	assert.Equal(t, DefaultWorkingDir, cfg.Deploy.WorkingDirectory)

	provider, err := cfg.Generator.ResolveProvider()
	require.NoError(t, err)
	assert.Equal(t, ProviderMock, provider)
}

func TestLoadConfigRejectsUnparseableFile(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { SetConfigForTesting(nil) })
	path := filepath.Join(dir, ProjectConfigDir, ProjectConfigFilename)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	err := LoadConfig(dir)
	require.Error(t, err)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "{not json", string(data))
}

func TestValidateConfig(t *testing.T) {
	cfg := Default()
	assert.NoError(t, validateConfig(&cfg))

	bad := Default()
	bad.Thresholds.Design = 1.5
	assert.Error(t, validateConfig(&bad))

	bad = Default()
	bad.Deploy.Permalink = "%postname%"
	assert.Error(t, validateConfig(&bad))

	bad = Default()
	bad.Generator.Model = "unknown-model"
	assert.Error(t, validateConfig(&bad))
}

func TestGetModelProvider(t *testing.T) {
	cases := map[string]string{
		"claude-sonnet-4-5": ProviderAnthropic,
		"gpt-5":             ProviderOpenAI,
		"gemini-2.5-pro":    ProviderGoogle,
		"llama3.1":          ProviderOllama,
		"mock":              ProviderMock,
	}
	for model, want := range cases {
		got, err := GetModelProvider(model)
		require.NoError(t, err, model)
		assert.Equal(t, want, got, model)
	}
}

func TestGetAPIKey(t *testing.T) {
	SetDecryptedSecrets(nil)
	t.Setenv(EnvAnthropicAPIKey, "sk-ant")
	t.Setenv(EnvOllamaHost, "")

	key, err := GetAPIKey(ProviderAnthropic)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant", key)

	host, err := GetAPIKey(ProviderOllama)
	require.NoError(t, err)
	assert.Equal(t, DefaultOllamaHost, host)

	_, err = GetAPIKey("nope")
	assert.Error(t, err)
}

func TestUpdateGenerator(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { SetConfigForTesting(nil) })
	require.NoError(t, LoadConfig(dir))

	gen := GeneratorConfig{Model: "gpt-5", Retry: RetryConfig{Enabled: true}}
	require.NoError(t, UpdateGenerator(&gen))

	cfg, err := GetConfig()
	require.NoError(t, err)
	assert.Equal(t, "gpt-5", cfg.Generator.Model)
	assert.True(t, cfg.Generator.Retry.Enabled)
	assert.Equal(t, 3, cfg.Generator.Retry.MaxAttempts)

	bad := GeneratorConfig{Model: "gpt-5", Temperature: 5}
	assert.Error(t, UpdateGenerator(&bad))
}
