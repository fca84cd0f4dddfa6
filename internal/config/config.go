package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/harun/nava/pkg/browser"
	"github.com/harun/nava/pkg/mcp"
	"github.com/harun/nava/pkg/toolexecutor"
)

// DefaultBaseURL is the OpenAI-compatible endpoint used when none is configured.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// Config represents the main Nava configuration
type Config struct {
	// Reasoning provider used by the agent loop
	LLM LLMConfig `json:"llm" mapstructure:"llm"`

	// Direct completion used when the agent fails to authenticate
	Fallback FallbackConfig `json:"fallback" mapstructure:"fallback"`

	// Agent loop limits and prompts
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Remote tool servers
	MCP MCPConfig `json:"mcp" mapstructure:"mcp"`

	// Workspace directory
	Workspace WorkspaceConfig `json:"workspace" mapstructure:"workspace"`

	// HTTP server
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// browser_use capability
	Browser BrowserConfig `json:"browser" mapstructure:"browser"`

	// Local tools
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Data directory for the PID file. Defaults to ~/.nava
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// LLMConfig holds the reasoning provider configuration
type LLMConfig struct {
	Provider    string            `json:"provider" mapstructure:"provider"` // openai, anthropic
	Model       string            `json:"model" mapstructure:"model"`
	APIKey      string            `json:"api_key" mapstructure:"api_key"`
	BaseURL     string            `json:"base_url" mapstructure:"base_url"`
	Temperature float64           `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int               `json:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries  int               `json:"max_retries" mapstructure:"max_retries"`
	Timeout     time.Duration     `json:"timeout" mapstructure:"timeout"`
	Headers     map[string]string `json:"headers,omitempty" mapstructure:"headers"`
}

// FallbackConfig holds the direct completion configuration
type FallbackConfig struct {
	Enabled     bool          `json:"enabled" mapstructure:"enabled"`
	Model       string        `json:"model" mapstructure:"model"`
	APIKey      string        `json:"api_key" mapstructure:"api_key"`
	BaseURL     string        `json:"base_url" mapstructure:"base_url"`
	Temperature float64       `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int           `json:"max_tokens" mapstructure:"max_tokens"`
	Timeout     time.Duration `json:"timeout" mapstructure:"timeout"`
	Referer     string        `json:"referer" mapstructure:"referer"`
	Title       string        `json:"title" mapstructure:"title"`
}

// AgentConfig holds agent loop settings
type AgentConfig struct {
	Name           string        `json:"name" mapstructure:"name"`
	MaxSteps       int           `json:"max_steps" mapstructure:"max_steps"`
	MaxObserve     int           `json:"max_observe" mapstructure:"max_observe"`
	MemoryWindow   int           `json:"memory_window" mapstructure:"memory_window"`
	ToolTimeout    time.Duration `json:"tool_timeout" mapstructure:"tool_timeout"`
	MaxToolOutput  int           `json:"max_tool_output" mapstructure:"max_tool_output"`
	SystemPrompt   string        `json:"system_prompt,omitempty" mapstructure:"system_prompt"`
	NextStepPrompt string        `json:"next_step_prompt,omitempty" mapstructure:"next_step_prompt"`
}

// MCPConfig lists remote tool servers
type MCPConfig struct {
	// ServersFile is a standalone {"mcpServers": {...}} file merged into Servers.
	ServersFile    string             `json:"servers_file,omitempty" mapstructure:"servers_file"`
	Servers        []mcp.ServerConfig `json:"servers" mapstructure:"servers"`
	ConnectTimeout time.Duration      `json:"connect_timeout" mapstructure:"connect_timeout"`
}

// WorkspaceConfig holds workspace settings
type WorkspaceConfig struct {
	Path string `json:"path" mapstructure:"path"`
	// Retention is the age after which files are pruned. Zero disables pruning.
	Retention     time.Duration `json:"retention" mapstructure:"retention"`
	PruneSchedule string        `json:"prune_schedule" mapstructure:"prune_schedule"`
}

// GatewayConfig holds HTTP server configuration
type GatewayConfig struct {
	Host              string        `json:"host" mapstructure:"host"`
	Port              int           `json:"port" mapstructure:"port"`
	SharedSecret      string        `json:"shared_secret" mapstructure:"shared_secret"`
	RequestsPerMinute int           `json:"requests_per_minute" mapstructure:"requests_per_minute"`
	MaxConcurrent     int           `json:"max_concurrent" mapstructure:"max_concurrent"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	DispatchWarnAfter time.Duration `json:"dispatch_warn_after" mapstructure:"dispatch_warn_after"`
}

// Addr returns host:port.
func (g GatewayConfig) Addr() string {
	return net.JoinHostPort(g.Host, strconv.Itoa(g.Port))
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// BrowserConfig enables and configures the browser_use capability
type BrowserConfig struct {
	Enabled        bool `json:"enabled" mapstructure:"enabled"`
	browser.Config `mapstructure:",squash"`
}

// ToolsConfig holds local tool settings
type ToolsConfig struct {
	WikipediaURL string        `json:"wikipedia_url,omitempty" mapstructure:"wikipedia_url"`
	HTTPTimeout  time.Duration `json:"http_timeout" mapstructure:"http_timeout"`

	// Policy filters the registry after remote servers are connected.
	Policy toolexecutor.Policy `json:"policy" mapstructure:"policy"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "openai/gpt-4o-mini",
			BaseURL:     DefaultBaseURL,
			Temperature: 0,
			MaxTokens:   4096,
			MaxRetries:  2,
			Timeout:     2 * time.Minute,
		},
		Fallback: FallbackConfig{
			Enabled:     true,
			Model:       "openai/gpt-4o-mini",
			BaseURL:     DefaultBaseURL,
			Temperature: 0,
			MaxTokens:   2048,
			Timeout:     60 * time.Second,
			Title:       "nava",
		},
		Agent: AgentConfig{
			Name:          "nava",
			MaxSteps:      20,
			MaxObserve:    10000,
			MemoryWindow:  100,
			ToolTimeout:   2 * time.Minute,
			MaxToolOutput: 50000,
		},
		MCP: MCPConfig{
			Servers:        []mcp.ServerConfig{},
			ConnectTimeout: 30 * time.Second,
		},
		Workspace: WorkspaceConfig{
			Path:          "./workspace",
			PruneSchedule: "@hourly",
		},
		Gateway: GatewayConfig{
			Host:              "127.0.0.1",
			Port:              8000,
			ShutdownTimeout:   30 * time.Second,
			DispatchWarnAfter: 2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
		Browser: BrowserConfig{
			Enabled: false,
			Config:  browser.DefaultConfig(),
		},
		Tools: ToolsConfig{
			HTTPTimeout: 30 * time.Second,
		},
	}
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	masked.LLM.APIKey = mask(c.LLM.APIKey)
	masked.Fallback.APIKey = mask(c.Fallback.APIKey)
	masked.Gateway.SharedSecret = mask(c.Gateway.SharedSecret)
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("llm: invalid provider %q (must be: openai, anthropic)", c.LLM.Provider))
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		errs = append(errs, errors.New("llm: model is required"))
	}
	if c.Agent.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("agent: max_steps must be positive, got %d", c.Agent.MaxSteps))
	}
	if c.Agent.MaxObserve < 0 {
		errs = append(errs, fmt.Errorf("agent: max_observe must be >= 0, got %d", c.Agent.MaxObserve))
	}
	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		errs = append(errs, fmt.Errorf("gateway: port %d out of range", c.Gateway.Port))
	}
	if c.Gateway.RequestsPerMinute < 0 || c.Gateway.MaxConcurrent < 0 {
		errs = append(errs, errors.New("gateway: rate limits must be >= 0"))
	}
	if strings.TrimSpace(c.Workspace.Path) == "" {
		errs = append(errs, errors.New("workspace: path is required"))
	}
	if err := c.Tools.Policy.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tools: %w", err))
	} else if !c.Tools.Policy.IsAllowed("terminate") {
		errs = append(errs, errors.New("tools: policy must allow terminate"))
	}
	if c.Workspace.Retention < 0 {
		errs = append(errs, errors.New("workspace: retention must be >= 0"))
	}

	seen := make(map[string]bool, len(c.MCP.Servers))
	for i, s := range c.MCP.Servers {
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("mcp server %d: %w", i, err))
			continue
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("mcp server %d: duplicate id %q", i, s.ID))
		}
		seen[s.ID] = true
	}

	return errors.Join(errs...)
}
