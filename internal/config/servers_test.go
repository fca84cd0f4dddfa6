package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/nava/pkg/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServers(t *testing.T) {
	t.Run("JSON", func(t *testing.T) {
		path := writeConfig(t, "servers.json", `{
			"mcpServers": {
				"search": {"type": "sse", "url": "http://localhost:9000/sse", "headers": {"Authorization": "Bearer x"}},
				"fs": {"command": "npx", "args": ["-y", "server-fs", "/tmp"], "env": {"DEBUG": "1"}, "timeout": "5s"}
			}
		}`)

		servers, err := LoadServers(path)
		require.NoError(t, err)
		require.Len(t, servers, 2)

		assert.Equal(t, "fs", servers[0].ID, "sorted by id")
		assert.Equal(t, "npx", servers[0].Command)
		assert.Equal(t, []string{"-y", "server-fs", "/tmp"}, servers[0].Args)
		assert.Equal(t, map[string]string{"DEBUG": "1"}, servers[0].Env)
		assert.Equal(t, 5*time.Second, servers[0].Timeout)
		kind, err := servers[0].Kind()
		require.NoError(t, err)
		assert.Equal(t, mcp.TransportStdio, kind)

		assert.Equal(t, "search", servers[1].ID)
		kind, err = servers[1].Kind()
		require.NoError(t, err)
		assert.Equal(t, mcp.TransportHTTP, kind)
		assert.Equal(t, "Bearer x", servers[1].Headers["Authorization"])
	})

	t.Run("YAML", func(t *testing.T) {
		path := writeConfig(t, "servers.yml", `
mcpServers:
  web:
    transport: streamable-http
    url: http://localhost:8931/mcp
`)

		servers, err := LoadServers(path)
		require.NoError(t, err)
		require.Len(t, servers, 1)
		assert.Equal(t, "streamable-http", servers[0].Transport)
		assert.NoError(t, servers[0].Validate())
	})

	t.Run("bad timeout", func(t *testing.T) {
		path := writeConfig(t, "servers.json", `{"mcpServers": {"fs": {"command": "x", "timeout": "soon"}}}`)

		_, err := LoadServers(path)
		assert.ErrorContains(t, err, "invalid timeout")
	})

	t.Run("unsupported format", func(t *testing.T) {
		path := writeConfig(t, "servers.ini", "")

		_, err := LoadServers(path)
		assert.ErrorContains(t, err, "unsupported servers file format")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadServers(filepath.Join(t.TempDir(), "nope.json"))
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestMergeServers(t *testing.T) {
	base := []mcp.ServerConfig{
		{ID: "a", Command: "a1"},
		{ID: "b", Command: "b1"},
	}
	extra := []mcp.ServerConfig{
		{ID: "c", Command: "c1"},
		{ID: "a", Command: "a2"},
	}

	merged := MergeServers(base, extra)

	require.Len(t, merged, 3)
	assert.Equal(t, "a2", merged[0].Command)
	assert.Equal(t, "b1", merged[1].Command)
	assert.Equal(t, "c", merged[2].ID)
	assert.Equal(t, "a1", base[0].Command, "base is not modified")
}
