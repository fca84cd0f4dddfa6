package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harun/nava/internal/config"
	"github.com/harun/nava/internal/logger"
	"github.com/harun/nava/internal/observability"
	"github.com/harun/nava/internal/tracing"
	"github.com/harun/nava/pkg/agent"
	"github.com/harun/nava/pkg/commandqueue"
	"github.com/harun/nava/pkg/gateway"
	"github.com/harun/nava/pkg/routing"
	"github.com/harun/nava/pkg/workspace"
	"github.com/rs/zerolog"
)

// Daemon wires the agent runtime, the dispatch gateway and the HTTP server.
type Daemon struct {
	config *config.Config
	logger *logger.Logger
	log    zerolog.Logger

	queue     *commandqueue.CommandQueue
	workspace *workspace.Workspace
	handle    *agent.Handle
	router    *routing.Gateway
	server    *gateway.Server

	eventLoop *EventLoop
	lifecycle *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	closed    bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Status is a point-in-time view of the daemon.
type Status struct {
	Running   bool          `json:"running"`
	Ready     bool          `json:"ready"`
	StartTime time.Time     `json:"start_time,omitempty"`
	Uptime    time.Duration `json:"uptime"`
	Sessions  int           `json:"sessions"`
	Addr      string        `json:"addr"`
}

// New creates a daemon. Nothing listens and the agent runtime is not
// initialized until Start, or Handle().Start for one-shot use.
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	observability.EnsureRegistered()

	d := &Daemon{
		config: cfg,
		logger: log,
		log:    log.Zerolog(),
		ctx:    ctx,
		cancel: cancel,
	}

	if err := tracing.InitOpenTelemetry("nava"); err != nil {
		d.log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
	} else {
		d.tracingEnabled = true
	}

	if err := d.initializeCoreModules(); err != nil {
		d.release()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeServices(); err != nil {
		d.release()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.eventLoop = NewEventLoop(d)
	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// initializeCoreModules creates the queue, the workspace and the agent handle.
func (d *Daemon) initializeCoreModules() error {
	d.queue = commandqueue.New()
	d.log.Info().Msg("Command queue initialized")

	ws, err := workspace.New(d.config.Workspace.Path)
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	d.workspace = ws
	d.log.Info().Str("path", ws.Root()).Msg("Workspace initialized")

	d.handle = agent.NewHandle(d.initRuntime)
	return nil
}

// initializeServices creates the dispatch gateway and the HTTP server.
func (d *Daemon) initializeServices() error {
	fb := d.config.Fallback
	var completer routing.Completer
	if fb.Enabled {
		completer = routing.NewDirectCompleter(routing.CompleterConfig{
			APIKey:      fb.APIKey,
			BaseURL:     fb.BaseURL,
			Model:       fb.Model,
			Temperature: float32(fb.Temperature),
			MaxTokens:   fb.MaxTokens,
			Timeout:     fb.Timeout,
			Referer:     fb.Referer,
			Title:       fb.Title,
		})
	}

	router, err := routing.NewGateway(routing.GatewayConfig{
		Handle:          d.handle,
		Fallback:        completer,
		FallbackEnabled: fb.Enabled,
		Queue:           d.queue,
		Logger:          d.log,
		WarnAfter:       d.config.Gateway.DispatchWarnAfter,
	})
	if err != nil {
		return fmt.Errorf("failed to create routing gateway: %w", err)
	}
	d.router = router

	server, err := gateway.NewServer(gateway.ServerConfig{
		Addr:              d.config.Gateway.Addr(),
		Handle:            d.handle,
		Gateway:           router,
		Workspace:         d.workspace,
		Logger:            d.log,
		SharedSecret:      d.config.Gateway.SharedSecret,
		RequestsPerMinute: d.config.Gateway.RequestsPerMinute,
		MaxConcurrent:     d.config.Gateway.MaxConcurrent,
		BridgeOutput:      logger.Output(),
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway server: %w", err)
	}
	d.server = server
	return nil
}

// Start serves HTTP and initializes the agent runtime in the background.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("daemon is closed")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	log := d.log.With().Str("trace_id", tracing.NewTraceID()).Logger()
	log.Info().Msg("Starting Nava daemon")

	if err := d.lifecycle.Start(); err != nil {
		d.setStopped()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := d.workspace.Watch(); err != nil {
		log.Warn().Err(err).Msg("Failed to watch workspace, listings will be rescanned on every request")
	}
	if err := d.workspace.StartPruner(d.config.Workspace.PruneSchedule, d.config.Workspace.Retention); err != nil {
		log.Warn().Err(err).Msg("Failed to start workspace pruner")
	}

	d.handle.Start(d.ctx)

	if err := d.server.Start(); err != nil {
		_ = d.lifecycle.Stop()
		d.setStopped()
		return fmt.Errorf("failed to start gateway server: %w", err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.eventLoop.Run(d.ctx)
	}()

	log.Info().Str("addr", d.server.Addr()).Msg("Daemon started successfully")
	return nil
}

func (d *Daemon) setStopped() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// Stop shuts the server down gracefully and releases every resource.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	log := d.log.With().Str("trace_id", tracing.NewTraceID()).Logger()
	log.Info().Msg("Stopping Nava daemon")

	timeout := d.config.Gateway.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := d.server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to stop gateway server")
	}

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("All goroutines stopped")
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if err := d.lifecycle.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	d.release()

	log.Info().Msg("Daemon stopped successfully")
	return nil
}

// Close releases resources of a daemon that was never started, such as one
// built for a single dispatch.
func (d *Daemon) Close() error {
	d.mu.RLock()
	running := d.running
	d.mu.RUnlock()
	if running {
		return d.Stop()
	}
	d.cancel()
	d.release()
	return nil
}

func (d *Daemon) release() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()

	if d.queue != nil {
		if err := d.queue.Close(); err != nil {
			d.log.Error().Err(err).Msg("Failed to close command queue")
		}
	}
	if d.workspace != nil {
		if err := d.workspace.Close(); err != nil {
			d.log.Error().Err(err).Msg("Failed to close workspace")
		}
	}
	if d.tracingEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
			d.log.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		cancel()
		d.tracingEnabled = false
	}
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, err := d.handle.Acquire()
	status := Status{
		Running:  d.running,
		Ready:    err == nil,
		Sessions: len(d.server.Sessions()),
		Addr:     d.server.Addr(),
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// Wait blocks until SIGINT or SIGTERM and then stops the daemon. It returns
// early when the daemon is stopped elsewhere.
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		d.log.Info().Str("signal", sig.String()).Msg("Received signal")
	case <-d.ctx.Done():
		return
	}

	if err := d.Stop(); err != nil {
		d.log.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetLogger returns the daemon logger
func (d *Daemon) GetLogger() *logger.Logger {
	return d.logger
}

// GetQueue returns the command queue
func (d *Daemon) GetQueue() *commandqueue.CommandQueue {
	return d.queue
}

// Handle returns the readiness-gated agent handle.
func (d *Daemon) Handle() *agent.Handle {
	return d.handle
}

// Router returns the dispatch gateway.
func (d *Daemon) Router() *routing.Gateway {
	return d.router
}

// Server returns the HTTP server.
func (d *Daemon) Server() *gateway.Server {
	return d.server
}

// Workspace returns the workspace.
func (d *Daemon) Workspace() *workspace.Workspace {
	return d.workspace
}
