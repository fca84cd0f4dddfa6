package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/harun/nava/internal/observability"
	"github.com/harun/nava/internal/tracing"
	"github.com/harun/nava/pkg/toolexecutor"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// Dialer opens a session to a server.
type Dialer func(ctx context.Context, cfg ServerConfig) (Session, error)

// Connector attaches remote tool servers to a registry and detaches them again.
type Connector struct {
	registry *toolexecutor.Registry
	dial     Dialer
	stderr   io.Writer

	mu      sync.Mutex
	clients map[string]*Client
}

// ConnectorOption configures a Connector.
type ConnectorOption func(*Connector)

// WithDialer replaces the default session construction.
func WithDialer(d Dialer) ConnectorOption {
	return func(c *Connector) { c.dial = d }
}

// WithStderr sends subprocess stderr lines to w.
func WithStderr(w io.Writer) ConnectorOption {
	return func(c *Connector) { c.stderr = w }
}

// NewConnector creates a connector feeding registry.
func NewConnector(registry *toolexecutor.Registry, opts ...ConnectorOption) *Connector {
	c := &Connector{
		registry: registry,
		clients:  make(map[string]*Client),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dial == nil {
		c.dial = func(ctx context.Context, cfg ServerConfig) (Session, error) { return Dial(ctx, cfg, c.stderr) }
	}
	return c
}

// Connect attaches one server: transport, handshake, tool enumeration and
// registration. A server already connected under the same ID is replaced.
func (c *Connector) Connect(ctx context.Context, cfg ServerConfig) (err error) {
	ctx, span := tracing.StartSpan(ctx, "nava.mcp", "mcp.connect",
		attribute.String("server", cfg.ID),
		attribute.String("transport", cfg.Transport),
	)
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	if err := cfg.Validate(); err != nil {
		return &ConnectError{ServerID: cfg.ID, Stage: "config", Err: err}
	}

	if err := c.Disconnect(cfg.ID); err != nil {
		log.Warn().Str("server", cfg.ID).Err(err).Msg("Failed to release previous connection")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	session, err := c.dial(hctx, cfg)
	if err != nil {
		return &ConnectError{ServerID: cfg.ID, Stage: "transport", Err: err}
	}
	client := NewClient(cfg, session)

	if err := client.Initialize(hctx); err != nil {
		_ = client.Close()
		return &ConnectError{ServerID: cfg.ID, Stage: "handshake", Err: err}
	}

	infos, err := client.ListTools(hctx)
	if err != nil {
		_ = client.Close()
		return &ConnectError{ServerID: cfg.ID, Stage: "enumerate", Err: err}
	}

	tools := make([]toolexecutor.Tool, 0, len(infos))
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		rt := NewRemoteTool(cfg.ID, info, client)
		tools = append(tools, rt)
		names = append(names, rt.Name())
	}

	if err := c.registry.AddAll(tools...); err != nil {
		c.registry.RemoveWhere(func(t toolexecutor.Tool) bool { return toolexecutor.SourceOf(t) == cfg.ID })
		_ = client.Close()
		return &ConnectError{ServerID: cfg.ID, Stage: "register", Err: err}
	}

	c.mu.Lock()
	c.clients[cfg.ID] = client
	c.mu.Unlock()
	observability.AddRemoteServers(1)

	log.Info().
		Str("server", cfg.ID).
		Str("endpoint", cfg.Endpoint()).
		Strs("tools", names).
		Msg("Connected to remote tool server")
	return nil
}

// ConnectAll connects each server independently. Failures are logged and
// returned per server; they never stop the remaining servers.
func (c *Connector) ConnectAll(ctx context.Context, cfgs []ServerConfig) map[string]error {
	failures := make(map[string]error)
	for _, cfg := range cfgs {
		if err := c.Connect(ctx, cfg); err != nil {
			failures[cfg.ID] = err
			log.Error().Str("server", cfg.ID).Err(err).Msg("Failed to connect remote tool server")
		}
	}
	return failures
}

// Disconnect detaches a server and removes its tools. An empty serverID
// detaches every server. Unknown IDs are ignored.
func (c *Connector) Disconnect(serverID string) error {
	c.mu.Lock()
	var targets map[string]*Client
	if serverID == "" {
		targets = c.clients
		c.clients = make(map[string]*Client)
	} else if client, ok := c.clients[serverID]; ok {
		targets = map[string]*Client{serverID: client}
		delete(c.clients, serverID)
	}
	c.mu.Unlock()

	if serverID == "" {
		c.registry.RemoveWhere(func(t toolexecutor.Tool) bool { return toolexecutor.SourceOf(t) != "" })
	}

	var errs []error
	for id, client := range targets {
		c.registry.RemoveWhere(func(t toolexecutor.Tool) bool { return toolexecutor.SourceOf(t) == id })
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
		observability.AddRemoteServers(-1)
		log.Info().Str("server", id).Msg("Disconnected remote tool server")
	}
	return errors.Join(errs...)
}

// Servers returns the connected server IDs, sorted.
func (c *Connector) Servers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.clients))
	for id := range c.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close disconnects every server.
func (c *Connector) Close() error {
	return c.Disconnect("")
}
