package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

const maxToolNameLen = 64

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// ToolName builds the registry name for a remote tool.
func ToolName(serverID, tool string) string {
	name := unsafeNameChars.ReplaceAllString("mcp_"+serverID+"_"+tool, "_")
	if len(name) > maxToolNameLen {
		name = name[:maxToolNameLen]
	}
	return name
}

type toolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*CallToolResult, error)
}

// RemoteTool exposes one remote server tool through the registry.
type RemoteTool struct {
	name        string
	remoteName  string
	description string
	schema      map[string]interface{}
	serverID    string
	client      toolCaller
}

// NewRemoteTool wraps info as a registry tool owned by serverID.
func NewRemoteTool(serverID string, info ToolInfo, client toolCaller) *RemoteTool {
	schema := map[string]interface{}{}
	if len(info.InputSchema) > 0 {
		_ = json.Unmarshal(info.InputSchema, &schema)
	}
	if len(schema) == 0 {
		schema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}

	description := info.Description
	if description == "" {
		description = "Remote tool " + info.Name + " from " + serverID
	}

	return &RemoteTool{
		name:        ToolName(serverID, info.Name),
		remoteName:  info.Name,
		description: description,
		schema:      schema,
		serverID:    serverID,
		client:      client,
	}
}

func (t *RemoteTool) Name() string                       { return t.name }
func (t *RemoteTool) Description() string                { return t.description }
func (t *RemoteTool) Parameters() map[string]interface{} { return t.schema }

// Source returns the owning server ID.
func (t *RemoteTool) Source() string { return t.serverID }

// RemoteName is the tool name on the server.
func (t *RemoteTool) RemoteName() string { return t.remoteName }

// Execute calls the tool on the remote server.
func (t *RemoteTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	result, err := t.client.CallTool(ctx, t.remoteName, params)
	if err != nil {
		return nil, err
	}

	text := result.Text()
	if result.IsError {
		if strings.TrimSpace(text) == "" {
			text = "remote tool reported an error"
		}
		return nil, errors.New(text)
	}
	return text, nil
}
