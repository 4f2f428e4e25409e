package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Provider.Name != ProviderAnthropic {
		t.Errorf("expected default provider 'anthropic', got %q", cfg.Provider.Name)
	}

	if cfg.Provider.MaxTokens != 8192 {
		t.Errorf("expected default max tokens 8192, got %d", cfg.Provider.MaxTokens)
	}

	if cfg.Provider.Timeout != 2*time.Minute {
		t.Errorf("expected timeout 2m, got %v", cfg.Provider.Timeout)
	}

	if cfg.Analysis.MaxParallel != 5 {
		t.Errorf("expected max_parallel 5, got %d", cfg.Analysis.MaxParallel)
	}

	if cfg.Analysis.Synthesize {
		t.Error("expected synthesis to be off by default")
	}

	if cfg.Progress.RedisChannel != "modernity:progress" {
		t.Errorf("unexpected redis channel %q", cfg.Progress.RedisChannel)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("MODERNITY_REDIS_ADDR", "")
	t.Setenv("MODERNITY_LOG_LEVEL", "")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
provider:
  name: gemini
  model: gemini-2.5-pro
  timeout: 30s
  bedrock:
    region: eu-west-1
gemini:
  api_key: gem-key
  requests_per_second: 0.5
analysis:
  max_parallel: 2
  synthesize: true
tools:
  mcp_servers:
    - name: eol
      url: http://localhost:8080/mcp
    - name: cves
      url: http://localhost:9090/sse
      transport: sse
progress:
  redis_addr: localhost:6379
log:
  level: debug
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Provider.Name != ProviderGemini {
		t.Errorf("expected provider 'gemini', got %q", cfg.Provider.Name)
	}

	if cfg.Provider.Timeout != 30*time.Second {
		t.Errorf("expected timeout 30s, got %v", cfg.Provider.Timeout)
	}

	if cfg.Provider.MaxTokens != 8192 {
		t.Errorf("default max tokens should survive a partial file, got %d", cfg.Provider.MaxTokens)
	}

	if cfg.Provider.Bedrock.Region != "eu-west-1" {
		t.Errorf("expected bedrock region 'eu-west-1', got %q", cfg.Provider.Bedrock.Region)
	}

	if cfg.Gemini.APIKey != "gem-key" {
		t.Errorf("expected gemini api_key 'gem-key', got %q", cfg.Gemini.APIKey)
	}

	if cfg.Gemini.RequestsPerSecond != 0.5 {
		t.Errorf("expected 0.5 requests per second, got %v", cfg.Gemini.RequestsPerSecond)
	}

	if cfg.Analysis.MaxParallel != 2 || !cfg.Analysis.Synthesize {
		t.Errorf("unexpected analysis config %+v", cfg.Analysis)
	}

	if len(cfg.Tools.MCPServers) != 2 {
		t.Fatalf("expected 2 MCP servers, got %d", len(cfg.Tools.MCPServers))
	}

	if cfg.Tools.MCPServers[1].Transport != TransportSSE {
		t.Errorf("expected sse transport, got %q", cfg.Tools.MCPServers[1].Transport)
	}

	if cfg.Progress.RedisAddr != "localhost:6379" {
		t.Errorf("expected redis addr, got %q", cfg.Progress.RedisAddr)
	}

	if cfg.Progress.RedisChannel != "modernity:progress" {
		t.Errorf("expected default redis channel, got %q", cfg.Progress.RedisChannel)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %q", cfg.Log.Level)
	}
}

func TestLoadFromPath_EnvOverrides(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-from-env-0000000")
	t.Setenv("MODERNITY_REDIS_ADDR", "redis:6379")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := "anthropic:\n  api_key: sk-ant-from-file\n"
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Anthropic.APIKey != "sk-ant-from-env-0000000" {
		t.Errorf("environment should win, got %q", cfg.Anthropic.APIKey)
	}

	if cfg.Progress.RedisAddr != "redis:6379" {
		t.Errorf("expected redis addr from env, got %q", cfg.Progress.RedisAddr)
	}
}

func TestLoadFromPath_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "unknown provider",
			content: "provider:\n  name: openai\n",
			want:    "provider.name",
		},
		{
			name:    "parallelism out of range",
			content: "analysis:\n  max_parallel: 9\n",
			want:    "max_parallel",
		},
		{
			name:    "server without url",
			content: "tools:\n  mcp_servers:\n    - name: eol\n",
			want:    "name and url are required",
		},
		{
			name:    "unknown transport",
			content: "tools:\n  mcp_servers:\n    - name: eol\n      url: http://x\n      transport: stdio\n",
			want:    "unknown transport",
		},
		{
			name:    "duplicate server",
			content: "tools:\n  mcp_servers:\n    - name: eol\n      url: http://x\n    - name: eol\n      url: http://y\n",
			want:    "duplicate name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadFromPath(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadFromPath() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestSaveTo_RoundTrip(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("MODERNITY_REDIS_ADDR", "")
	t.Setenv("MODERNITY_LOG_LEVEL", "")

	cfg := Default()
	cfg.Provider.Model = "claude-3-5-haiku-latest"
	cfg.Analysis.MaxParallel = 3
	cfg.Tools.MCPServers = []MCPServerConfig{{Name: "eol", URL: "http://localhost/mcp", Transport: TransportStreamable}}

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if loaded.Provider.Model != cfg.Provider.Model {
		t.Errorf("model = %q, want %q", loaded.Provider.Model, cfg.Provider.Model)
	}
	if loaded.Provider.Timeout != cfg.Provider.Timeout {
		t.Errorf("timeout = %v, want %v", loaded.Provider.Timeout, cfg.Provider.Timeout)
	}
	if loaded.Analysis.MaxParallel != 3 {
		t.Errorf("max_parallel = %d, want 3", loaded.Analysis.MaxParallel)
	}
	if len(loaded.Tools.MCPServers) != 1 || loaded.Tools.MCPServers[0].Name != "eol" {
		t.Errorf("mcp servers = %+v", loaded.Tools.MCPServers)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "expanded-value")

	result := expandEnv("${TEST_VAR}")
	if result != "expanded-value" {
		t.Errorf("expected 'expanded-value', got %q", result)
	}

	result = expandEnv("prefix-${TEST_VAR}-suffix")
	if result != "prefix-expanded-value-suffix" {
		t.Errorf("expected 'prefix-expanded-value-suffix', got %q", result)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	dir := getUserConfigDir()
	expected := filepath.Join("/custom/config", "modernity")
	if dir != expected {
		t.Errorf("expected %q, got %q", expected, dir)
	}

	if got := GetUserConfigPath(); got != filepath.Join(expected, "config.yaml") {
		t.Errorf("unexpected user config path %q", got)
	}
}

func TestFindProjectConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(root, projectConfigName)
	if err := os.WriteFile(want, []byte("log:\n  level: warn\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(nested)

	got := GetProjectConfigPath()
	// Temp dirs may sit behind a symlink (macOS /var), compare resolved paths.
	gotResolved, _ := filepath.EvalSymlinks(got)
	wantResolved, _ := filepath.EvalSymlinks(want)
	if gotResolved != wantResolved {
		t.Errorf("GetProjectConfigPath() = %q, want %q", got, want)
	}
}
