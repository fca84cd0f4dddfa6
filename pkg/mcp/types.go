package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TransportKind selects how a remote server is reached.
type TransportKind string

const (
	// TransportStdio runs the server as a subprocess and talks over its pipes.
	TransportStdio TransportKind = "stdio"
	// TransportHTTP posts JSON-RPC requests to a streaming HTTP endpoint.
	TransportHTTP TransportKind = "http"
)

// ParseTransportKind accepts the canonical names and their common aliases.
func ParseTransportKind(s string) (TransportKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stdio", "subprocess", "":
		return TransportStdio, nil
	case "http", "stream", "sse", "streamable-http", "streamable_http":
		return TransportHTTP, nil
	default:
		return "", fmt.Errorf("unknown transport %q", s)
	}
}

// ServerConfig describes one remote tool server.
type ServerConfig struct {
	ID        string            `json:"id" yaml:"id" mapstructure:"id"`
	Transport string            `json:"type" yaml:"type" mapstructure:"type"`
	Command   string            `json:"command,omitempty" yaml:"command" mapstructure:"command"`
	Args      []string          `json:"args,omitempty" yaml:"args" mapstructure:"args"`
	Env       map[string]string `json:"env,omitempty" yaml:"env" mapstructure:"env"`
	WorkDir   string            `json:"workdir,omitempty" yaml:"workdir" mapstructure:"workdir"`
	URL       string            `json:"url,omitempty" yaml:"url" mapstructure:"url"`
	Headers   map[string]string `json:"headers,omitempty" yaml:"headers" mapstructure:"headers"`
	Timeout   time.Duration     `json:"timeout,omitempty" yaml:"timeout" mapstructure:"timeout"`
}

// Kind returns the parsed transport kind.
func (c ServerConfig) Kind() (TransportKind, error) {
	return ParseTransportKind(c.Transport)
}

// Validate checks the fields required by the selected transport.
func (c ServerConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("server id is required")
	}
	kind, err := c.Kind()
	if err != nil {
		return err
	}
	switch kind {
	case TransportStdio:
		if c.Command == "" {
			return fmt.Errorf("server %s: command is required for stdio transport", c.ID)
		}
	case TransportHTTP:
		if c.URL == "" {
			return fmt.Errorf("server %s: url is required for http transport", c.ID)
		}
	}
	return nil
}

// Endpoint returns the command or URL, for logging.
func (c ServerConfig) Endpoint() string {
	if c.URL != "" {
		return c.URL
	}
	return strings.TrimSpace(c.Command + " " + strings.Join(c.Args, " "))
}

// ConnectError reports a failed connect, handshake or enumeration for one server.
type ConnectError struct {
	ServerID string
	Stage    string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %s: %v", e.ServerID, e.Stage, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// ToolInfo is a tool as listed by a remote server.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ServerInfo identifies the remote implementation.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Content is one block of a tool call result.
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// CallToolResult is the result of tools/call.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Text joins the text blocks and summarizes the others.
func (r *CallToolResult) Text() string {
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		switch c.Type {
		case "text", "":
			if c.Text != "" {
				parts = append(parts, c.Text)
			}
		default:
			parts = append(parts, fmt.Sprintf("[%s content: %s]", c.Type, c.MimeType))
		}
	}
	return strings.Join(parts, "\n")
}
