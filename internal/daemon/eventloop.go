package daemon

import (
	"context"
	"time"

	"github.com/harun/nava/internal/observability"
)

const maintenanceInterval = 30 * time.Second

// EventLoop reports runtime readiness and runs periodic maintenance.
type EventLoop struct {
	daemon   *Daemon
	interval time.Duration
}

// NewEventLoop creates a new event loop
func NewEventLoop(d *Daemon) *EventLoop {
	return &EventLoop{
		daemon:   d,
		interval: maintenanceInterval,
	}
}

// Run blocks until ctx is cancelled.
func (e *EventLoop) Run(ctx context.Context) {
	log := e.daemon.log
	log.Info().Msg("Event loop started")

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	ready := e.daemon.handle.Ready()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Event loop stopping")
			return

		case <-ready:
			ready = nil
			e.reportReady()

		case <-ticker.C:
			e.processTasks()
		}
	}
}

func (e *EventLoop) reportReady() {
	if _, err := e.daemon.handle.Acquire(); err != nil {
		e.daemon.log.Warn().
			Bool("fallback", e.daemon.config.Fallback.Enabled).
			Msg("Serving without an agent runtime")
	}
}

// processTasks publishes queue gauges and logs busy lanes.
func (e *EventLoop) processTasks() {
	for lane, stats := range e.daemon.queue.Stats() {
		observability.SetDispatchQueueSize(lane, stats["queued"])
		if stats["queued"] > 0 || stats["running"] > 0 {
			e.daemon.log.Debug().
				Str("lane", lane).
				Int("queued", stats["queued"]).
				Int("running", stats["running"]).
				Msg("Queue stats")
		}
	}

	if sessions := len(e.daemon.server.Sessions()); sessions > 0 {
		e.daemon.log.Debug().Int("sessions", sessions).Msg("Active sessions")
	}
}
