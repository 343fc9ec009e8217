// Package config provides configuration loading, validation, and management for the site builder.
//
// Configuration lives in <projectDir>/.sitebuilder/config.json and is held in a global singleton
// protected by a mutex. GetConfig returns the config BY VALUE; changes go through Update* functions
// which validate before persisting.
//
// Secrets (provider API keys, target credentials) never live in config.json. They are resolved by
// GetSecret: the decrypted secrets file first, then environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sitebuilder/pkg/logx"
)

//nolint:gochecknoglobals // Intentional singleton pattern for config management
var (
	config     *Config
	projectDir string // Immutable after LoadConfig
	logger     *logx.Logger
	mu         sync.RWMutex
)

func getLogger() *logx.Logger {
	if logger == nil {
		logger = logx.NewLogger("config")
	}
	return logger
}

// LogInfo logs an info message using the config logger.
func LogInfo(format string, args ...any) {
	getLogger().Info(format, args...)
}

const (
	ProjectConfigFilename = "config.json"
	ProjectConfigDir      = ".sitebuilder"
	DatabaseFilename      = "sitebuilder.db"
	SchemaVersion         = "1.0"

	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
	ProviderMock      = "mock"

	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_GENAI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"

	DefaultModel         = "claude-sonnet-4-5"
	DefaultOllamaHost    = "http://localhost:11434"
	DefaultPermalink     = "/%postname%/"
	DefaultWorkingDir    = "/var/www/html"
	DefaultContentBatch  = 5
	DefaultProgressTopic = "sitebuilder:progress"
)

// ProviderPattern maps a model name prefix to a provider.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns infers providers from model names.
//
//nolint:gochecknoglobals // Intentional global for inference rules
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"phi", ProviderOllama},
	{"ollama:", ProviderOllama}, // Explicit prefix like "ollama:llama3.1"
	{"mock", ProviderMock},
}

// GetModelProvider returns the API provider for a given model.
func GetModelProvider(modelName string) (string, error) {
	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}
	return "", fmt.Errorf("unknown model '%s': no provider pattern match", modelName)
}

// RetryConfig defines configuration for opt-in generation retries.
type RetryConfig struct {
	Enabled       bool          `json:"enabled"`
	MaxAttempts   int           `json:"max_attempts"`   // Including the initial attempt
	InitialDelay  time.Duration `json:"initial_delay"`  // Delay before the first retry
	MaxDelay      time.Duration `json:"max_delay"`      // Cap between retries
	BackoffFactor float64       `json:"backoff_factor"` // Multiplier for exponential backoff
}

// RateLimitConfig bounds generator usage per model.
type RateLimitConfig struct {
	TokensPerMinute int `json:"tokens_per_minute"`
	MaxConcurrency  int `json:"max_concurrency"`
}

// GeneratorConfig selects and tunes the text generator.
type GeneratorConfig struct {
	Provider    string          `json:"provider"` // anthropic, openai, google, ollama, mock ("" = infer from model)
	Model       string          `json:"model"`
	Temperature float32         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
	Mock        bool            `json:"mock"` // Forces the deterministic mock generator
	Timeout     time.Duration   `json:"timeout"`
	Retry       RetryConfig     `json:"retry"`
	RateLimit   RateLimitConfig `json:"rate_limit"`
}

// ThresholdConfig holds the per-agent confidence floors.
type ThresholdConfig struct {
	Planning        float64 `json:"planning"`
	Design          float64 `json:"design"`
	Content         float64 `json:"content"`
	Posts           float64 `json:"posts"`
	PluginSelection float64 `json:"plugin_selection"`
	DeploymentPlan  float64 `json:"deployment_plan"`
}

// DeployConfig tunes the deployment engine.
type DeployConfig struct {
	WorkingDirectory        string        `json:"working_directory"`
	Permalink               string        `json:"permalink"`
	ContentBatchSize        int           `json:"content_batch_size"`
	ParallelOptionalPlugins bool          `json:"parallel_optional_plugins"`
	MaxParallelPlugins      int           `json:"max_parallel_plugins"`
	SSHDialTimeout          time.Duration `json:"ssh_dial_timeout"`
	HTTPTimeout             time.Duration `json:"http_timeout"`
	KnownHostsFile          string        `json:"known_hosts_file"`
	Navigation              bool          `json:"navigation"`
}

// ProgressConfig configures progress delivery.
type ProgressConfig struct {
	RedisAddr   string        `json:"redis_addr"` // Empty disables the Redis sink
	RedisTopic  string        `json:"redis_topic"`
	HistoryTTL  time.Duration `json:"history_ttl"`
	EventLogDir string        `json:"event_log_dir"` // Relative to the project dir
}

// MetricsConfig defines configuration for metrics collection.
type MetricsConfig struct {
	Enabled    bool   `json:"enabled"`
	ListenAddr string `json:"listen_addr"`
}

// DatabaseConfig locates the site repository.
type DatabaseConfig struct {
	Path string `json:"path"` // Relative to the project dir
}

// Config is the whole project configuration.
type Config struct {
	SchemaVersion string          `json:"schema_version"`
	Generator     GeneratorConfig `json:"generator"`
	Thresholds    ThresholdConfig `json:"thresholds"`
	Deploy        DeployConfig    `json:"deploy"`
	Progress      ProgressConfig  `json:"progress"`
	Metrics       MetricsConfig   `json:"metrics"`
	Database      DatabaseConfig  `json:"database"`
}

// GetConfig returns a copy of the loaded config.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not initialized - call LoadConfig first")
	}
	return *config, nil
}

// SetConfigForTesting sets the global config. Pass nil to reset.
func SetConfigForTesting(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	config = cfg
	if cfg == nil {
		projectDir = ""
	}
}

// GetProjectDir returns the directory passed to LoadConfig.
func GetProjectDir() string {
	mu.RLock()
	defer mu.RUnlock()
	return projectDir
}

// ResolvePath makes p absolute relative to the project directory.
func ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(GetProjectDir(), p)
}

// LoadConfig loads <projectDir>/.sitebuilder/config.json into the global singleton.
//
// Missing file: defaults are written to disk. Unparseable file: error, the file is left untouched.
func LoadConfig(inputProjectDir string) error {
	mu.Lock()
	defer mu.Unlock()

	projectDir = inputProjectDir
	configPath := filepath.Join(projectDir, ProjectConfigDir, ProjectConfigFilename)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		getLogger().Info("📝 Config file not found, creating new config at %s", configPath)
		config = createDefaultConfig()
		if err := validateConfig(config); err != nil {
			return fmt.Errorf("default config validation failed: %w", err)
		}
		if err := saveConfigLocked(); err != nil {
			return fmt.Errorf("failed to save initial config: %w", err)
		}
		return nil
	}

	getLogger().Info("📝 Loading config from %s", configPath)
	loadedConfig, err := loadConfigFromFile(configPath)
	if err != nil {
		return fmt.Errorf("fatal: config file exists but cannot be parsed (to avoid overwriting your changes): %w", err)
	}

	applyDefaults(loadedConfig)
	if err := validateConfig(loadedConfig); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	config = loadedConfig

	if err := saveConfigLocked(); err != nil {
		return fmt.Errorf("failed to save config with applied defaults: %w", err)
	}
	getLogger().Info("✅ Config loaded and validated successfully")
	return nil
}

// UpdateGenerator validates and persists a new generator section.
func UpdateGenerator(gen *GeneratorConfig) error {
	mu.Lock()
	defer mu.Unlock()

	if config == nil {
		return fmt.Errorf("config not initialized - call LoadConfig first")
	}
	updated := *config
	updated.Generator = *gen
	applyDefaults(&updated)
	if err := validateConfig(&updated); err != nil {
		return fmt.Errorf("generator config invalid: %w", err)
	}
	config = &updated
	return saveConfigLocked()
}

func loadConfigFromFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON %s: %w", configPath, err)
	}
	return &cfg, nil
}

// SaveConfig saves config to <projectDir>/.sitebuilder/config.json.
func SaveConfig(cfg *Config, dir string) error {
	configPath := filepath.Join(dir, ProjectConfigDir, ProjectConfigFilename)
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func saveConfigLocked() error {
	if projectDir == "" {
		return nil
	}
	return SaveConfig(config, projectDir)
}

// Default returns a config with every default applied.
func Default() Config {
	return *createDefaultConfig()
}

func createDefaultConfig() *Config {
	cfg := &Config{SchemaVersion: SchemaVersion}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills zero values. Booleans keep their zero value.
func applyDefaults(cfg *Config) {
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SchemaVersion
	}

	gen := &cfg.Generator
	if gen.Model == "" {
		gen.Model = DefaultModel
	}
	if gen.Temperature == 0 {
		gen.Temperature = 0.7
	}
	if gen.MaxTokens == 0 {
		gen.MaxTokens = 4096
	}
	if gen.Timeout == 0 {
		gen.Timeout = 2 * time.Minute
	}
	if gen.Retry.MaxAttempts == 0 {
		gen.Retry.MaxAttempts = 3
	}
	if gen.Retry.InitialDelay == 0 {
		gen.Retry.InitialDelay = 500 * time.Millisecond
	}
	if gen.Retry.MaxDelay == 0 {
		gen.Retry.MaxDelay = 10 * time.Second
	}
	if gen.Retry.BackoffFactor == 0 {
		gen.Retry.BackoffFactor = 2.0
	}
	if gen.RateLimit.TokensPerMinute == 0 {
		gen.RateLimit.TokensPerMinute = 300000
	}
	if gen.RateLimit.MaxConcurrency == 0 {
		gen.RateLimit.MaxConcurrency = 4
	}

	th := &cfg.Thresholds
	if th.Planning == 0 {
		th.Planning = 0.75
	}
	if th.Design == 0 {
		th.Design = 0.60
	}
	if th.Content == 0 {
		th.Content = 0.75
	}
	if th.Posts == 0 {
		th.Posts = 0.70
	}
	if th.PluginSelection == 0 {
		th.PluginSelection = 0.70
	}
	if th.DeploymentPlan == 0 {
		th.DeploymentPlan = 0.80
	}

	dep := &cfg.Deploy
	if dep.WorkingDirectory == "" {
		dep.WorkingDirectory = DefaultWorkingDir
	}
	if dep.Permalink == "" {
		dep.Permalink = DefaultPermalink
	}
	if dep.ContentBatchSize == 0 {
		dep.ContentBatchSize = DefaultContentBatch
	}
	if dep.MaxParallelPlugins == 0 {
		dep.MaxParallelPlugins = 2
	}
	if dep.SSHDialTimeout == 0 {
		dep.SSHDialTimeout = 15 * time.Second
	}
	if dep.HTTPTimeout == 0 {
		dep.HTTPTimeout = 30 * time.Second
	}

	if cfg.Progress.RedisTopic == "" {
		cfg.Progress.RedisTopic = DefaultProgressTopic
	}
	if cfg.Progress.HistoryTTL == 0 {
		cfg.Progress.HistoryTTL = 24 * time.Hour
	}
	if cfg.Progress.EventLogDir == "" {
		cfg.Progress.EventLogDir = filepath.Join(ProjectConfigDir, "events")
	}

	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = "127.0.0.1:9464"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(ProjectConfigDir, DatabaseFilename)
	}
}

func validateConfig(cfg *Config) error {
	gen := &cfg.Generator
	if !gen.Mock {
		provider := gen.Provider
		if provider == "" {
			inferred, err := GetModelProvider(gen.Model)
			if err != nil {
				return err
			}
			provider = inferred
		}
		switch provider {
		case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderOllama, ProviderMock:
		default:
			return fmt.Errorf("unknown generator provider %q", provider)
		}
	}
	if gen.Temperature < 0 || gen.Temperature > 2 {
		return fmt.Errorf("generator temperature %.2f out of range [0,2]", gen.Temperature)
	}
	if gen.MaxTokens < 0 {
		return fmt.Errorf("generator max_tokens must be positive")
	}

	for name, v := range map[string]float64{
		"planning":         cfg.Thresholds.Planning,
		"design":           cfg.Thresholds.Design,
		"content":          cfg.Thresholds.Content,
		"posts":            cfg.Thresholds.Posts,
		"plugin_selection": cfg.Thresholds.PluginSelection,
		"deployment_plan":  cfg.Thresholds.DeploymentPlan,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("threshold %s=%.2f out of range [0,1]", name, v)
		}
	}

	if !strings.HasPrefix(cfg.Deploy.Permalink, "/") {
		return fmt.Errorf("permalink structure %q must start with '/'", cfg.Deploy.Permalink)
	}
	if cfg.Deploy.ContentBatchSize < 1 {
		return fmt.Errorf("content_batch_size must be at least 1")
	}
	return nil
}

// ResolveProvider returns the effective provider for the generator section.
func (g *GeneratorConfig) ResolveProvider() (string, error) {
	if g.Mock {
		return ProviderMock, nil
	}
	if g.Provider != "" {
		return g.Provider, nil
	}
	return GetModelProvider(g.Model)
}

// GetAPIKey returns the credential for a provider (host URL for ollama).
func GetAPIKey(provider string) (string, error) {
	var envVar string
	switch provider {
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOpenAI:
		envVar = EnvOpenAIAPIKey
	case ProviderGoogle:
		envVar = EnvGoogleAPIKey
	case ProviderOllama:
		if host, err := GetSecret(EnvOllamaHost); err == nil && host != "" {
			return host, nil
		}
		return DefaultOllamaHost, nil
	case ProviderMock:
		return "", nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	key, err := GetSecret(envVar)
	if err == nil && key != "" {
		return key, nil
	}
	return "", fmt.Errorf("API key not found: %s not found in secrets file or environment variables", envVar)
}
