package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog/log"
)

// ClientName and ClientVersion are announced to remote servers.
const (
	ClientName    = "nava"
	ClientVersion = "0.1.0"
)

// DefaultCallTimeout bounds the handshake and each HTTP request.
const DefaultCallTimeout = 30 * time.Second

// Session is the part of an mcp-go client the connector drives.
type Session interface {
	Initialize(ctx context.Context, req mcpgo.InitializeRequest) (*mcpgo.InitializeResult, error)
	ListTools(ctx context.Context, req mcpgo.ListToolsRequest) (*mcpgo.ListToolsResult, error)
	CallTool(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error)
	Close() error
}

// Dial opens a session to the server described by cfg. For stdio servers the
// subprocess is started here and its stderr lines are copied to stderr,
// prefixed with the server ID. A nil stderr discards them.
func Dial(ctx context.Context, cfg ServerConfig, stderr io.Writer) (Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kind, _ := cfg.Kind()
	if kind == TransportHTTP {
		return dialHTTP(ctx, cfg)
	}
	return dialStdio(cfg, stderr)
}

func dialStdio(cfg ServerConfig, stderr io.Writer) (Session, error) {
	env := envList(cfg.Env)

	var opts []transport.StdioOption
	if cfg.WorkDir != "" {
		opts = append(opts, transport.WithCommandFunc(
			func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
				cmd := exec.CommandContext(ctx, command, args...)
				cmd.Env = append(os.Environ(), env...)
				cmd.Dir = cfg.WorkDir
				return cmd, nil
			}))
	}

	c, err := client.NewStdioMCPClientWithOptions(cfg.Command, env, cfg.Args, opts...)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", cfg.Command, err)
	}

	if r, ok := client.GetStderr(c); ok {
		go forwardStderr(cfg.ID, r, stderr)
	}
	return c, nil
}

func dialHTTP(ctx context.Context, cfg ServerConfig) (Session, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	opts := []transport.StreamableHTTPCOption{transport.WithHTTPTimeout(timeout)}
	if len(cfg.Headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
	}

	c, err := client.NewStreamableHttpClient(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("start http client: %w", err)
	}
	return c, nil
}

// forwardStderr copies subprocess diagnostics line by line until the pipe
// closes. The pipe is always drained so a chatty server cannot block.
func forwardStderr(serverID string, r io.Reader, w io.Writer) {
	if w == nil {
		_, _ = io.Copy(io.Discard, r)
		return
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fmt.Fprintf(w, "[%s] %s\n", serverID, scanner.Text())
	}
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// Client speaks MCP to one remote server over a Session.
type Client struct {
	config     ServerConfig
	session    Session
	serverInfo ServerInfo
}

// NewClient creates a client for cfg on top of session.
func NewClient(cfg ServerConfig, session Session) *Client {
	return &Client{config: cfg, session: session}
}

// ServerInfo returns what the server reported during Initialize.
func (c *Client) ServerInfo() ServerInfo {
	return c.serverInfo
}

// Initialize performs the MCP handshake.
func (c *Client) Initialize(ctx context.Context) error {
	req := mcpgo.InitializeRequest{}
	req.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcpgo.Implementation{Name: ClientName, Version: ClientVersion}

	result, err := c.session.Initialize(ctx, req)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	c.serverInfo = ServerInfo{Name: result.ServerInfo.Name, Version: result.ServerInfo.Version}

	log.Debug().
		Str("server", c.config.ID).
		Str("name", result.ServerInfo.Name).
		Str("version", result.ServerInfo.Version).
		Str("protocol", result.ProtocolVersion).
		Msg("Remote tool server initialized")
	return nil
}

// ListTools enumerates every tool, following pagination cursors.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var tools []ToolInfo
	req := mcpgo.ListToolsRequest{}

	for {
		page, err := c.session.ListTools(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("tools/list: %w", err)
		}

		for _, t := range page.Tools {
			info, err := toolInfo(t)
			if err != nil {
				return nil, err
			}
			tools = append(tools, info)
		}

		if page.NextCursor == "" || page.NextCursor == req.Params.Cursor {
			return tools, nil
		}
		req.Params.Cursor = page.NextCursor
	}
}

func toolInfo(t mcpgo.Tool) (ToolInfo, error) {
	schema := t.RawInputSchema
	if len(schema) == 0 {
		data, err := json.Marshal(t.InputSchema)
		if err != nil {
			return ToolInfo{}, fmt.Errorf("encode schema for %s: %w", t.Name, err)
		}
		schema = data
	}
	return ToolInfo{Name: t.Name, Description: t.Description, InputSchema: schema}, nil
}

// CallTool invokes a remote tool.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (*CallToolResult, error) {
	if args == nil {
		args = map[string]interface{}{}
	}

	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := c.session.CallTool(ctx, req)
	if err != nil {
		return nil, err
	}
	return convertResult(result), nil
}

func convertResult(r *mcpgo.CallToolResult) *CallToolResult {
	out := &CallToolResult{IsError: r.IsError}
	for _, content := range r.Content {
		switch v := content.(type) {
		case mcpgo.TextContent:
			out.Content = append(out.Content, Content{Type: "text", Text: v.Text})
		case *mcpgo.TextContent:
			out.Content = append(out.Content, Content{Type: "text", Text: v.Text})
		case mcpgo.ImageContent:
			out.Content = append(out.Content, Content{Type: "image", Data: v.Data, MimeType: v.MIMEType})
		case *mcpgo.ImageContent:
			out.Content = append(out.Content, Content{Type: "image", Data: v.Data, MimeType: v.MIMEType})
		case mcpgo.AudioContent:
			out.Content = append(out.Content, Content{Type: "audio", Data: v.Data, MimeType: v.MIMEType})
		case *mcpgo.AudioContent:
			out.Content = append(out.Content, Content{Type: "audio", Data: v.Data, MimeType: v.MIMEType})
		default:
			out.Content = append(out.Content, Content{Type: "resource"})
		}
	}
	return out
}

// Close ends the session.
func (c *Client) Close() error {
	return c.session.Close()
}
