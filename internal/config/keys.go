package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when no API key is configured for the provider.
var ErrNoAPIKey = errors.New("no API key configured")

// apiKeyEnv maps providers to their environment variable.
var apiKeyEnv = map[string]string{
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderGemini:    "GEMINI_API_KEY",
}

func configuredKey(cfg *Config) string {
	if cfg == nil {
		return ""
	}
	var raw string
	switch cfg.Provider.Name {
	case ProviderGemini:
		raw = cfg.Gemini.APIKey
	default:
		raw = cfg.Anthropic.APIKey
	}
	key := os.ExpandEnv(raw)
	if strings.HasPrefix(key, "${") {
		return ""
	}
	return key
}

func providerName(cfg *Config) string {
	if cfg == nil || cfg.Provider.Name == "" {
		return ProviderAnthropic
	}
	return cfg.Provider.Name
}

// GetAPIKey returns the API key of the configured provider.
// It checks in order: environment variable, config file.
func GetAPIKey(cfg *Config) (string, error) {
	name := providerName(cfg)
	if key := os.Getenv(apiKeyEnv[name]); key != "" {
		return key, nil
	}
	if key := configuredKey(cfg); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%w for %s (set %s)", ErrNoAPIKey, name, apiKeyEnv[name])
}

// ValidateAPIKey performs basic format validation on a provider key.
// It does not verify the key with the provider.
func ValidateAPIKey(provider, key string) error {
	if key == "" {
		return ErrNoAPIKey
	}
	if len(key) < 20 {
		return errors.New("invalid API key format: key too short")
	}
	if provider == ProviderAnthropic && !strings.HasPrefix(key, "sk-ant-") {
		return errors.New("invalid API key format: expected 'sk-ant-' prefix")
	}
	return nil
}

// MaskAPIKey returns a masked version of the API key for display.
// Shows the first 7 characters and last 4 characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}

	if len(key) <= 15 {
		return "***"
	}

	return key[:7] + "..." + key[len(key)-4:]
}

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
	// KeySourceBedrock means AWS credentials are used instead of a key.
	KeySourceBedrock KeySource = "aws_bedrock"
)

// GetAPIKeySource returns where the provider key was sourced from.
func GetAPIKeySource(cfg *Config) KeySource {
	name := providerName(cfg)
	if name == ProviderAnthropic && cfg != nil && cfg.Provider.Bedrock.Enabled {
		return KeySourceBedrock
	}
	if os.Getenv(apiKeyEnv[name]) != "" {
		return KeySourceEnv
	}
	if configuredKey(cfg) != "" {
		return KeySourceConfig
	}
	return KeySourceNone
}
