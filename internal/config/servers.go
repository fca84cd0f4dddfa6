package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/harun/nava/pkg/mcp"
	"gopkg.in/yaml.v3"
)

// serversFile is the {"mcpServers": {id: {...}}} shape shared with other MCP hosts.
type serversFile struct {
	Servers map[string]serverEntry `json:"mcpServers" yaml:"mcpServers"`
}

type serverEntry struct {
	Type      string            `json:"type" yaml:"type"`
	Transport string            `json:"transport" yaml:"transport"`
	Command   string            `json:"command" yaml:"command"`
	Args      []string          `json:"args" yaml:"args"`
	Env       map[string]string `json:"env" yaml:"env"`
	WorkDir   string            `json:"workdir" yaml:"workdir"`
	URL       string            `json:"url" yaml:"url"`
	Headers   map[string]string `json:"headers" yaml:"headers"`
	Timeout   string            `json:"timeout" yaml:"timeout"`
}

// LoadServers reads a remote server list from a JSON or YAML file. Servers
// are returned sorted by id.
func LoadServers(path string) ([]mcp.ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read servers file: %w", err)
	}

	var file serversFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse JSON servers file: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse YAML servers file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported servers file format: %s (supported: .json, .yaml, .yml)", ext)
	}

	ids := make([]string, 0, len(file.Servers))
	for id := range file.Servers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	servers := make([]mcp.ServerConfig, 0, len(ids))
	for _, id := range ids {
		entry := file.Servers[id]
		transport := entry.Type
		if transport == "" {
			transport = entry.Transport
		}
		if transport == "" && entry.URL != "" {
			transport = string(mcp.TransportHTTP)
		}

		var timeout time.Duration
		if entry.Timeout != "" {
			timeout, err = time.ParseDuration(entry.Timeout)
			if err != nil {
				return nil, fmt.Errorf("server %s: invalid timeout %q: %w", id, entry.Timeout, err)
			}
		}

		servers = append(servers, mcp.ServerConfig{
			ID:        id,
			Transport: transport,
			Command:   entry.Command,
			Args:      entry.Args,
			Env:       entry.Env,
			WorkDir:   entry.WorkDir,
			URL:       entry.URL,
			Headers:   entry.Headers,
			Timeout:   timeout,
		})
	}
	return servers, nil
}

// MergeServers returns base with extra appended. An extra server replaces a
// base server with the same id in place.
func MergeServers(base, extra []mcp.ServerConfig) []mcp.ServerConfig {
	merged := make([]mcp.ServerConfig, 0, len(base)+len(extra))
	index := make(map[string]int, len(base))
	for _, s := range base {
		index[s.ID] = len(merged)
		merged = append(merged, s)
	}
	for _, s := range extra {
		if i, ok := index[s.ID]; ok {
			merged[i] = s
			continue
		}
		index[s.ID] = len(merged)
		merged = append(merged, s)
	}
	return merged
}
