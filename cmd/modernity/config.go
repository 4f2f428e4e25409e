package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/modernity/internal/config"
)

var (
	configInitProject bool
	configInitForce   bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View or modify modernity configuration.

Without a subcommand, displays the effective configuration.

Configuration is stored at ~/.config/modernity/config.yaml
Project-specific overrides can be placed in .modernity.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowCmd.RunE(cmd, args)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		displayAllConfig(cfg)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		value, err := getConfigValue(cfg, args[0])
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a value in the user configuration",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.GetUserConfigPath()
		cfg := config.Default()
		if _, err := os.Stat(path); err == nil {
			if cfg, err = config.LoadFromPath(path); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
		}
		if err := setConfigValue(cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.SaveTo(cfg, path); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		printStatus("✓", fmt.Sprintf("Set %s = %s", args[0], displayValue(args[0], args[1])), color.FgGreen)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file locations",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("user:    %s\n", config.GetUserConfigPath())
		project := config.GetProjectConfigPath()
		if project == "" {
			project = "(none)"
		}
		fmt.Printf("project: %s\n", project)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.GetUserConfigPath()
		if configInitProject {
			path = ".modernity.yaml"
		}
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.SaveTo(config.Default(), path); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		printStatus("✓", "Wrote "+path, color.FgGreen)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitProject, "project", false, "Write .modernity.yaml in the current directory")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
}

// configKeys lists the scalar keys get and set understand, in display order.
var configKeys = []string{
	"provider.name",
	"provider.model",
	"provider.max_tokens",
	"provider.temperature",
	"provider.max_retries",
	"provider.timeout",
	"provider.bedrock.enabled",
	"provider.bedrock.region",
	"provider.bedrock.profile",
	"anthropic.api_key",
	"gemini.api_key",
	"gemini.requests_per_second",
	"analysis.max_parallel",
	"analysis.synthesize",
	"analysis.rubrics_file",
	"progress.redis_addr",
	"progress.redis_channel",
	"log.level",
	"log.file",
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	for _, key := range configKeys {
		value, _ := getConfigValue(cfg, key)
		fmt.Printf("%s: %s\n", key, value)
	}
	fmt.Printf("api_key.source: %s\n", config.GetAPIKeySource(cfg))
	if len(cfg.Tools.MCPServers) == 0 {
		fmt.Println("tools.mcp_servers: (none)")
		return
	}
	fmt.Println("tools.mcp_servers:")
	for _, s := range cfg.Tools.MCPServers {
		transport := s.Transport
		if transport == "" {
			transport = config.TransportStreamable
		}
		fmt.Printf("  - %s %s (%s)\n", s.Name, s.URL, transport)
	}
}

func isSecretKey(key string) bool {
	return strings.HasSuffix(strings.ToLower(key), ".api_key")
}

func displayValue(key, value string) string {
	if isSecretKey(key) {
		return config.MaskAPIKey(value)
	}
	return value
}

// getConfigValue retrieves a configuration value by dot-notation key.
// API keys are masked.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "provider.name":
		return cfg.Provider.Name, nil
	case "provider.model":
		if cfg.Provider.Model == "" {
			return "(provider default)", nil
		}
		return cfg.Provider.Model, nil
	case "provider.max_tokens":
		return strconv.Itoa(cfg.Provider.MaxTokens), nil
	case "provider.temperature":
		return strconv.FormatFloat(cfg.Provider.Temperature, 'g', -1, 64), nil
	case "provider.max_retries":
		return strconv.Itoa(cfg.Provider.MaxRetries), nil
	case "provider.timeout":
		return cfg.Provider.Timeout.String(), nil
	case "provider.bedrock.enabled":
		return strconv.FormatBool(cfg.Provider.Bedrock.Enabled), nil
	case "provider.bedrock.region":
		return cfg.Provider.Bedrock.Region, nil
	case "provider.bedrock.profile":
		return cfg.Provider.Bedrock.Profile, nil
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "gemini.api_key":
		return config.MaskAPIKey(cfg.Gemini.APIKey), nil
	case "gemini.requests_per_second":
		return strconv.FormatFloat(cfg.Gemini.RequestsPerSecond, 'g', -1, 64), nil
	case "analysis.max_parallel":
		return strconv.Itoa(cfg.Analysis.MaxParallel), nil
	case "analysis.synthesize":
		return strconv.FormatBool(cfg.Analysis.Synthesize), nil
	case "analysis.rubrics_file":
		return cfg.Analysis.RubricsFile, nil
	case "progress.redis_addr":
		return cfg.Progress.RedisAddr, nil
	case "progress.redis_channel":
		return cfg.Progress.RedisChannel, nil
	case "log.level":
		return cfg.Log.Level, nil
	case "log.file":
		return cfg.Log.File, nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "provider.name":
		cfg.Provider.Name = value
	case "provider.model":
		cfg.Provider.Model = value
	case "provider.max_tokens":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for provider.max_tokens: %w", err)
		}
		cfg.Provider.MaxTokens = n
	case "provider.temperature":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for provider.temperature: %w", err)
		}
		cfg.Provider.Temperature = f
	case "provider.max_retries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for provider.max_retries: %w", err)
		}
		cfg.Provider.MaxRetries = n
	case "provider.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for provider.timeout: %w", err)
		}
		cfg.Provider.Timeout = d
	case "provider.bedrock.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for provider.bedrock.enabled: %w", err)
		}
		cfg.Provider.Bedrock.Enabled = b
	case "provider.bedrock.region":
		cfg.Provider.Bedrock.Region = value
	case "provider.bedrock.profile":
		cfg.Provider.Bedrock.Profile = value
	case "anthropic.api_key":
		if err := config.ValidateAPIKey(config.ProviderAnthropic, value); err != nil {
			return err
		}
		cfg.Anthropic.APIKey = value
	case "gemini.api_key":
		if err := config.ValidateAPIKey(config.ProviderGemini, value); err != nil {
			return err
		}
		cfg.Gemini.APIKey = value
	case "gemini.requests_per_second":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for gemini.requests_per_second: %w", err)
		}
		cfg.Gemini.RequestsPerSecond = f
	case "analysis.max_parallel":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for analysis.max_parallel: %w", err)
		}
		cfg.Analysis.MaxParallel = n
	case "analysis.synthesize":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for analysis.synthesize: %w", err)
		}
		cfg.Analysis.Synthesize = b
	case "analysis.rubrics_file":
		cfg.Analysis.RubricsFile = value
	case "progress.redis_addr":
		cfg.Progress.RedisAddr = value
	case "progress.redis_channel":
		cfg.Progress.RedisChannel = value
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
