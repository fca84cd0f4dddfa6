package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultDir  = ".nava"
	defaultFile = "nava.json"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file, overlays NAVA_* environment variables and
// provider key variables, and merges the remote server list file. A missing
// file yields the defaults.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()

	v := viper.New()
	registerDefaults(v, DefaultConfig())

	v.SetEnvPrefix("NAVA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType(configType(configPath))
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyKeyEnv(cfg)

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, defaultDir)
	}
	cfg.DataDir = expandUserPath(cfg.DataDir)
	cfg.Workspace.Path = expandUserPath(cfg.Workspace.Path)
	cfg.Logging.File = expandUserPath(cfg.Logging.File)

	if cfg.MCP.ServersFile != "" {
		path := expandUserPath(cfg.MCP.ServersFile)
		if !filepath.IsAbs(path) && configPath != "" {
			path = filepath.Join(filepath.Dir(configPath), path)
		}
		servers, err := LoadServers(path)
		if err != nil {
			return nil, err
		}
		cfg.MCP.Servers = MergeServers(cfg.MCP.Servers, servers)
	}

	return cfg, nil
}

// Save writes cfg as JSON to the config path
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to resolve config path")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType(configType(configPath))

	v.Set("llm", cfg.LLM)
	v.Set("fallback", cfg.Fallback)
	v.Set("agent", cfg.Agent)
	v.Set("mcp", cfg.MCP)
	v.Set("workspace", cfg.Workspace)
	v.Set("gateway", cfg.Gateway)
	v.Set("logging", cfg.Logging)
	v.Set("browser", cfg.Browser)
	v.Set("tools", cfg.Tools)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return expandUserPath(l.configPath)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, defaultDir, defaultFile)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}

// registerDefaults makes every leaf key known to viper so environment
// variables override it even when no file sets it.
func registerDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("llm.provider", cfg.LLM.Provider)
	v.SetDefault("llm.model", cfg.LLM.Model)
	v.SetDefault("llm.api_key", cfg.LLM.APIKey)
	v.SetDefault("llm.base_url", cfg.LLM.BaseURL)
	v.SetDefault("llm.temperature", cfg.LLM.Temperature)
	v.SetDefault("llm.max_tokens", cfg.LLM.MaxTokens)
	v.SetDefault("llm.max_retries", cfg.LLM.MaxRetries)
	v.SetDefault("llm.timeout", cfg.LLM.Timeout)

	v.SetDefault("fallback.enabled", cfg.Fallback.Enabled)
	v.SetDefault("fallback.model", cfg.Fallback.Model)
	v.SetDefault("fallback.api_key", cfg.Fallback.APIKey)
	v.SetDefault("fallback.base_url", cfg.Fallback.BaseURL)
	v.SetDefault("fallback.temperature", cfg.Fallback.Temperature)
	v.SetDefault("fallback.max_tokens", cfg.Fallback.MaxTokens)
	v.SetDefault("fallback.timeout", cfg.Fallback.Timeout)
	v.SetDefault("fallback.referer", cfg.Fallback.Referer)
	v.SetDefault("fallback.title", cfg.Fallback.Title)

	v.SetDefault("agent.name", cfg.Agent.Name)
	v.SetDefault("agent.max_steps", cfg.Agent.MaxSteps)
	v.SetDefault("agent.max_observe", cfg.Agent.MaxObserve)
	v.SetDefault("agent.memory_window", cfg.Agent.MemoryWindow)
	v.SetDefault("agent.tool_timeout", cfg.Agent.ToolTimeout)
	v.SetDefault("agent.max_tool_output", cfg.Agent.MaxToolOutput)

	v.SetDefault("mcp.servers_file", cfg.MCP.ServersFile)
	v.SetDefault("mcp.connect_timeout", cfg.MCP.ConnectTimeout)

	v.SetDefault("workspace.path", cfg.Workspace.Path)
	v.SetDefault("workspace.retention", cfg.Workspace.Retention)
	v.SetDefault("workspace.prune_schedule", cfg.Workspace.PruneSchedule)

	v.SetDefault("gateway.host", cfg.Gateway.Host)
	v.SetDefault("gateway.port", cfg.Gateway.Port)
	v.SetDefault("gateway.shared_secret", cfg.Gateway.SharedSecret)
	v.SetDefault("gateway.requests_per_minute", cfg.Gateway.RequestsPerMinute)
	v.SetDefault("gateway.max_concurrent", cfg.Gateway.MaxConcurrent)
	v.SetDefault("gateway.shutdown_timeout", cfg.Gateway.ShutdownTimeout)
	v.SetDefault("gateway.dispatch_warn_after", cfg.Gateway.DispatchWarnAfter)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)
	v.SetDefault("logging.redaction", cfg.Logging.Redaction)

	v.SetDefault("browser.enabled", cfg.Browser.Enabled)
	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.no_sandbox", cfg.Browser.NoSandbox)
	v.SetDefault("browser.chrome_path", cfg.Browser.ChromePath)
	v.SetDefault("browser.navigate_timeout", cfg.Browser.NavigateTimeout)
	v.SetDefault("browser.max_text_length", cfg.Browser.MaxTextLength)

	v.SetDefault("tools.wikipedia_url", cfg.Tools.WikipediaURL)
	v.SetDefault("tools.http_timeout", cfg.Tools.HTTPTimeout)
	v.SetDefault("tools.policy.allow", cfg.Tools.Policy.Allow)
	v.SetDefault("tools.policy.deny", cfg.Tools.Policy.Deny)

	v.SetDefault("data_dir", cfg.DataDir)
}

// applyKeyEnv fills empty API keys from the conventional provider variables.
func applyKeyEnv(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		var names []string
		switch {
		case cfg.LLM.Provider == "anthropic":
			names = []string{"ANTHROPIC_API_KEY"}
		case strings.Contains(cfg.LLM.BaseURL, "openrouter.ai"):
			names = []string{"OPENROUTER_API_KEY", "OPENAI_API_KEY"}
		default:
			names = []string{"OPENAI_API_KEY", "OPENROUTER_API_KEY"}
		}
		cfg.LLM.APIKey = firstEnv(names...)
	}
	if cfg.Fallback.APIKey == "" {
		cfg.Fallback.APIKey = firstEnv("OPENROUTER_API_KEY")
	}
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return "json"
	}
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil && strings.TrimSpace(home) != "" {
			return filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return path
}
