// Package config handles configuration loading and management for modernity.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	appName           = "modernity"
	projectConfigName = ".modernity.yaml"
)

// Provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// MCP transports accepted in tools.mcp_servers.
const (
	TransportSSE        = "sse"
	TransportStreamable = "streamable"
)

// Config holds all configuration for modernity.
type Config struct {
	Provider  ProviderConfig  `mapstructure:"provider"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Log       LogConfig       `mapstructure:"log"`
}

// ProviderConfig selects and tunes the text-generation provider.
type ProviderConfig struct {
	// Name is anthropic or gemini.
	Name string `mapstructure:"name"`
	// Model overrides the provider's default model.
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Bedrock     BedrockConfig `mapstructure:"bedrock"`
}

// BedrockConfig routes Anthropic calls through AWS Bedrock.
type BedrockConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Region  string `mapstructure:"region"`
	Profile string `mapstructure:"profile"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	// RequestsPerSecond throttles calls client-side. Zero disables throttling.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// AnalysisConfig tunes the artefact branch.
type AnalysisConfig struct {
	// MaxParallel bounds concurrent category analyzers (1-5).
	MaxParallel int `mapstructure:"max_parallel"`
	// Synthesize adds an executive summary to reports.
	Synthesize bool `mapstructure:"synthesize"`
	// RubricsFile overrides the built-in rubrics per category.
	RubricsFile string `mapstructure:"rubrics_file"`
}

// ToolsConfig lists tool servers offered to analyzers.
type ToolsConfig struct {
	MCPServers []MCPServerConfig `mapstructure:"mcp_servers"`
}

// MCPServerConfig is one MCP server endpoint.
type MCPServerConfig struct {
	Name      string `mapstructure:"name"`
	URL       string `mapstructure:"url"`
	Transport string `mapstructure:"transport"`
}

// ProgressConfig holds progress sink settings.
type ProgressConfig struct {
	// RedisAddr enables the Redis pub/sub sink when set.
	RedisAddr    string `mapstructure:"redis_addr"`
	RedisChannel string `mapstructure:"redis_channel"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	// File receives JSON logs in addition to stderr. Empty means no file.
	File string `mapstructure:"file"`
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case ProviderAnthropic, ProviderGemini:
	default:
		return fmt.Errorf("provider.name must be %q or %q, got %q", ProviderAnthropic, ProviderGemini, c.Provider.Name)
	}
	if c.Analysis.MaxParallel < 1 || c.Analysis.MaxParallel > 5 {
		return fmt.Errorf("analysis.max_parallel must be between 1 and 5, got %d", c.Analysis.MaxParallel)
	}
	if c.Gemini.RequestsPerSecond < 0 {
		return fmt.Errorf("gemini.requests_per_second cannot be negative")
	}
	seen := make(map[string]bool, len(c.Tools.MCPServers))
	for i, s := range c.Tools.MCPServers {
		if s.Name == "" || s.URL == "" {
			return fmt.Errorf("tools.mcp_servers[%d]: name and url are required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("tools.mcp_servers[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true
		switch s.Transport {
		case "", TransportSSE, TransportStreamable:
		default:
			return fmt.Errorf("tools.mcp_servers[%d]: unknown transport %q", i, s.Transport)
		}
	}
	return nil
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, GEMINI_API_KEY, MODERNITY_REDIS_ADDR)
// 2. Project config (.modernity.yaml in current directory or parent)
// 3. User config (~/.config/modernity/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	bindEnv(v)
	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	bindEnv(v)
	return unmarshal(v)
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("progress.redis_addr", "MODERNITY_REDIS_ADDR")
	_ = v.BindEnv("log.level", "MODERNITY_LOG_LEVEL")
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.Gemini.APIKey = expandEnv(cfg.Gemini.APIKey)
	cfg.Analysis.RubricsFile = expandEnv(cfg.Analysis.RubricsFile)
	cfg.Log.File = expandEnv(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to the user config file. API keys are written as given,
// so prefer ${VAR} references over literal keys.
func Save(cfg *Config) error {
	return SaveTo(cfg, GetUserConfigPath())
}

// SaveTo writes cfg to path, creating parent directories.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)

	v.Set("provider.name", cfg.Provider.Name)
	v.Set("provider.model", cfg.Provider.Model)
	v.Set("provider.max_tokens", cfg.Provider.MaxTokens)
	v.Set("provider.temperature", cfg.Provider.Temperature)
	v.Set("provider.max_retries", cfg.Provider.MaxRetries)
	v.Set("provider.timeout", cfg.Provider.Timeout.String())
	v.Set("provider.bedrock.enabled", cfg.Provider.Bedrock.Enabled)
	v.Set("provider.bedrock.region", cfg.Provider.Bedrock.Region)
	v.Set("provider.bedrock.profile", cfg.Provider.Bedrock.Profile)
	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("gemini.api_key", cfg.Gemini.APIKey)
	v.Set("gemini.requests_per_second", cfg.Gemini.RequestsPerSecond)
	v.Set("analysis.max_parallel", cfg.Analysis.MaxParallel)
	v.Set("analysis.synthesize", cfg.Analysis.Synthesize)
	v.Set("analysis.rubrics_file", cfg.Analysis.RubricsFile)
	servers := make([]map[string]any, 0, len(cfg.Tools.MCPServers))
	for _, s := range cfg.Tools.MCPServers {
		servers = append(servers, map[string]any{"name": s.Name, "url": s.URL, "transport": s.Transport})
	}
	v.Set("tools.mcp_servers", servers)
	v.Set("progress.redis_addr", cfg.Progress.RedisAddr)
	v.Set("progress.redis_channel", cfg.Progress.RedisChannel)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.file", cfg.Log.File)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("provider.name", d.Provider.Name)
	v.SetDefault("provider.model", d.Provider.Model)
	v.SetDefault("provider.max_tokens", d.Provider.MaxTokens)
	v.SetDefault("provider.temperature", d.Provider.Temperature)
	v.SetDefault("provider.max_retries", d.Provider.MaxRetries)
	v.SetDefault("provider.timeout", d.Provider.Timeout.String())
	v.SetDefault("provider.bedrock.enabled", false)
	v.SetDefault("provider.bedrock.region", "")
	v.SetDefault("provider.bedrock.profile", "")

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.requests_per_second", d.Gemini.RequestsPerSecond)

	v.SetDefault("analysis.max_parallel", d.Analysis.MaxParallel)
	v.SetDefault("analysis.synthesize", d.Analysis.Synthesize)
	v.SetDefault("analysis.rubrics_file", "")

	v.SetDefault("progress.redis_addr", "")
	v.SetDefault("progress.redis_channel", d.Progress.RedisChannel)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", "")
}

// getUserConfigDir returns the XDG config directory for modernity.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, appName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", appName)
	}
	return filepath.Join(home, ".config", appName)
}

// findProjectConfig searches for .modernity.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, projectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name:        ProviderAnthropic,
			MaxTokens:   8192,
			Temperature: 0.2,
			MaxRetries:  2,
			Timeout:     2 * time.Minute,
		},
		Gemini: GeminiConfig{
			RequestsPerSecond: 2,
		},
		Analysis: AnalysisConfig{
			MaxParallel: 5,
		},
		Progress: ProgressConfig{
			RedisChannel: "modernity:progress",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
