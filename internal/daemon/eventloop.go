package daemon

import (
	"context"
	"time"
)

const statsInterval = 30 * time.Second

// EventLoop runs periodic maintenance while the daemon is up
type EventLoop struct {
	daemon *Daemon
}

// NewEventLoop creates a new event loop
func NewEventLoop(d *Daemon) *EventLoop {
	return &EventLoop{
		daemon: d,
	}
}

// Run logs runtime stats until ctx is done
func (e *EventLoop) Run(ctx context.Context) {
	e.daemon.logger.Info().Msg("Event loop started")

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.daemon.logger.Info().Msg("Event loop stopping")
			return

		case <-ticker.C:
			e.processTasks()
		}
	}
}

func (e *EventLoop) processTasks() {
	active := e.daemon.machine.ActiveCount()
	lanes := e.daemon.queue.LaneCount()
	if active > 0 || lanes > 0 {
		e.daemon.logger.Debug().
			Int("active_conversations", active).
			Int("busy_lanes", lanes).
			Msg("Runtime stats")
	}
}

// drainTimeout lets a provider call that started just before shutdown run
// to its own timeout before the queue cancels it.
func (e *EventLoop) drainTimeout() time.Duration {
	return e.daemon.config.ProviderTimeout() + shutdownTimeout
}

// HandleShutdown waits for running steps to finish
func (e *EventLoop) HandleShutdown() {
	timeout := e.drainTimeout()
	e.daemon.logger.Info().Dur("timeout", timeout).Msg("Handling graceful shutdown")

	if e.daemon.queue.WaitForActive(timeout) {
		e.daemon.logger.Info().Msg("All active tasks completed")
	} else {
		e.daemon.logger.Warn().Msg("Active tasks still running, cancelling")
	}
}
