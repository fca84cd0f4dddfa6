package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearKeyEnv keeps the host environment out of key resolution.
func clearKeyEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"OPENROUTER_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY"} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.configPath)
	assert.Equal(t, "/path/to/config.json", loader.GetConfigPath())

	def := NewLoader("")
	assert.Contains(t, def.GetConfigPath(), filepath.Join(".nava", "nava.json"))
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		clearKeyEnv(t)
		configPath := filepath.Join(t.TempDir(), "nonexistent.json")

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, DefaultConfig().LLM, cfg.LLM)
		assert.Equal(t, 20, cfg.Agent.MaxSteps)
	})

	t.Run("load config from JSON file", func(t *testing.T) {
		clearKeyEnv(t)
		configPath := writeConfig(t, "config.json", `{
			"llm": {"provider": "anthropic", "model": "claude-sonnet-4-5", "api_key": "sk-ant-test"},
			"agent": {"max_steps": 7, "tool_timeout": "45s"},
			"gateway": {"port": 9100},
			"mcp": {"servers": [{"id": "fs", "type": "stdio", "command": "mcp-fs", "args": ["--root", "/tmp"], "timeout": "10s"}]}
		}`)

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, "anthropic", cfg.LLM.Provider)
		assert.Equal(t, "claude-sonnet-4-5", cfg.LLM.Model)
		assert.Equal(t, "sk-ant-test", cfg.LLM.APIKey)
		assert.Equal(t, 7, cfg.Agent.MaxSteps)
		assert.Equal(t, 45*time.Second, cfg.Agent.ToolTimeout)
		assert.Equal(t, 9100, cfg.Gateway.Port)
		assert.Equal(t, "127.0.0.1", cfg.Gateway.Host, "unset keys keep defaults")

		require.Len(t, cfg.MCP.Servers, 1)
		s := cfg.MCP.Servers[0]
		assert.Equal(t, "fs", s.ID)
		assert.Equal(t, "stdio", s.Transport)
		assert.Equal(t, []string{"--root", "/tmp"}, s.Args)
		assert.Equal(t, 10*time.Second, s.Timeout)
		require.NoError(t, cfg.Validate())
	})

	t.Run("load config from YAML file", func(t *testing.T) {
		clearKeyEnv(t)
		configPath := writeConfig(t, "config.yaml", `
llm:
  model: openai/gpt-4o
workspace:
  path: /tmp/nava-ws
  retention: 24h
`)

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, "openai/gpt-4o", cfg.LLM.Model)
		assert.Equal(t, "/tmp/nava-ws", cfg.Workspace.Path)
		assert.Equal(t, 24*time.Hour, cfg.Workspace.Retention)
	})

	t.Run("environment overrides", func(t *testing.T) {
		clearKeyEnv(t)
		t.Setenv("NAVA_LLM_MODEL", "openai/gpt-4.1")
		t.Setenv("NAVA_GATEWAY_PORT", "9200")
		t.Setenv("NAVA_FALLBACK_ENABLED", "false")

		cfg, err := NewLoader(filepath.Join(t.TempDir(), "missing.json")).Load()

		require.NoError(t, err)
		assert.Equal(t, "openai/gpt-4.1", cfg.LLM.Model)
		assert.Equal(t, 9200, cfg.Gateway.Port)
		assert.False(t, cfg.Fallback.Enabled)
	})

	t.Run("provider key variables fill empty keys", func(t *testing.T) {
		clearKeyEnv(t)
		t.Setenv("OPENROUTER_API_KEY", "sk-or-v1-abc")

		cfg, err := NewLoader(filepath.Join(t.TempDir(), "missing.json")).Load()

		require.NoError(t, err)
		assert.Equal(t, "sk-or-v1-abc", cfg.LLM.APIKey)
		assert.Equal(t, "sk-or-v1-abc", cfg.Fallback.APIKey)
	})

	t.Run("anthropic reads its own key", func(t *testing.T) {
		clearKeyEnv(t)
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-xyz")
		t.Setenv("OPENROUTER_API_KEY", "sk-or-v1-abc")
		configPath := writeConfig(t, "config.json", `{"llm": {"provider": "anthropic", "model": "claude-sonnet-4-5", "base_url": ""}}`)

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, "sk-ant-xyz", cfg.LLM.APIKey)
		assert.Equal(t, "sk-or-v1-abc", cfg.Fallback.APIKey)
	})

	t.Run("explicit key wins over environment", func(t *testing.T) {
		clearKeyEnv(t)
		t.Setenv("OPENROUTER_API_KEY", "sk-or-v1-env")
		configPath := writeConfig(t, "config.json", `{"llm": {"api_key": "sk-or-v1-file"}}`)

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, "sk-or-v1-file", cfg.LLM.APIKey)
	})

	t.Run("servers file merged relative to config", func(t *testing.T) {
		clearKeyEnv(t)
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "servers.yaml"), []byte(`
mcpServers:
  fs:
    command: mcp-fs-v2
  search:
    url: http://localhost:9000/mcp
`), 0644))
		configPath := filepath.Join(dir, "nava.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{
			"mcp": {
				"servers_file": "servers.yaml",
				"servers": [{"id": "fs", "type": "stdio", "command": "mcp-fs"}]
			}
		}`), 0644))

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		require.Len(t, cfg.MCP.Servers, 2)
		assert.Equal(t, "fs", cfg.MCP.Servers[0].ID)
		assert.Equal(t, "mcp-fs-v2", cfg.MCP.Servers[0].Command)
		assert.Equal(t, "search", cfg.MCP.Servers[1].ID)
		assert.Equal(t, "http", cfg.MCP.Servers[1].Transport)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		configPath := writeConfig(t, "invalid.json", "invalid json")

		_, err := NewLoader(configPath).Load()

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})
}

func TestLoaderSave(t *testing.T) {
	clearKeyEnv(t)
	configPath := filepath.Join(t.TempDir(), "sub", "nava.json")
	loader := NewLoader(configPath)

	cfg := DefaultConfig()
	cfg.LLM.Model = "openai/gpt-4.1"
	cfg.Agent.MaxSteps = 12
	cfg.Workspace.Retention = 48 * time.Hour

	require.NoError(t, loader.Save(cfg))
	assert.FileExists(t, configPath)

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4.1", loaded.LLM.Model)
	assert.Equal(t, 12, loaded.Agent.MaxSteps)
	assert.Equal(t, 48*time.Hour, loaded.Workspace.Retention)
}

func TestLoad(t *testing.T) {
	clearKeyEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestExpandUserPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "ws"), expandUserPath("~/ws"))
	assert.Equal(t, "/abs/ws", expandUserPath("/abs/ws"))
	assert.Equal(t, "rel", expandUserPath("rel"))
}
