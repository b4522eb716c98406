// Package supervisor owns start/stop sequencing for the proxy components
// selected at startup, and ties their lifetime to OS shutdown signals.
package supervisor

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
)

// Component is anything the supervisor can start and stop. The RTSP and
// FTP proxies satisfy it directly, the Chamber proxy through a small
// adapter in cmd/pandaproxy; Start/Stop are expected to be
// idempotent per component, as each is called at most once by the
// supervisor.
type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop()
}

// Supervisor starts an ordered list of components, blocks until a
// shutdown signal or the parent context is cancelled, then stops every
// started component in reverse order.
type Supervisor struct {
	logger     *slog.Logger
	components []Component
}

// New creates a Supervisor over components, started in the given order.
func New(logger *slog.Logger, components ...Component) *Supervisor {
	return &Supervisor{logger: logger, components: components}
}

// Run starts every component in order, aborting and unwinding already-
// started components on the first start error. If all start successfully,
// it blocks until ctx is cancelled or SIGINT/SIGTERM is received, then
// stops every started component in reverse order, each Stop running to
// completion before the next. Component.Stop reports no error, so no stop
// failure is logged.
func (s *Supervisor) Run(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	started := make([]Component, 0, len(s.components))
	for _, c := range s.components {
		s.logger.Info("starting component", "component", c.Name())
		if err := c.Start(sigCtx); err != nil {
			s.logger.Error("component failed to start, shutting down", "component", c.Name(), "error", err)
			s.stopAll(started)
			return err
		}
		started = append(started, c)
	}

	<-sigCtx.Done()
	s.logger.Info("shutdown signal received, stopping components")
	s.stopAll(started)
	return nil
}

// stopAll stops components in reverse start order, logging each one
// before its Stop call.
func (s *Supervisor) stopAll(started []Component) {
	for i := len(started) - 1; i >= 0; i-- {
		c := started[i]
		s.logger.Info("stopping component", "component", c.Name())
		c.Stop()
	}
}
