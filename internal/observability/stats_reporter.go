// Package observability provides a minimal, log-only status surface: a
// periodic StatsReporter logging subscriber counts and host resource
// usage on a ticker, stoppable via context cancellation.
package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const reportInterval = 30 * time.Second

// Source supplies the live counters a report snapshots. The chamber
// package's Proxy satisfies this via a small accessor; other proxies may
// report zero subscribers.
type Source interface {
	SubscriberCount() int
}

// StatsReporter periodically logs subscriber counts alongside host
// CPU/memory usage at debug level.
type StatsReporter struct {
	logger    *slog.Logger
	source    Source
	startTime time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewStatsReporter creates a reporter over source, which may be nil if no
// subscriber-counted component is running (reports will show zero).
func NewStatsReporter(logger *slog.Logger, source Source) *StatsReporter {
	return &StatsReporter{
		logger:    logger.With("component", "observability"),
		source:    source,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
}

// Start begins the periodic reporting goroutine.
func (sr *StatsReporter) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	sr.cancel = cancel

	go func() {
		defer close(sr.done)
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				sr.report(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	sr.logger.Debug("stats reporter started", "interval", reportInterval)
}

// Stop cancels the reporting goroutine and waits for it to exit.
func (sr *StatsReporter) Stop() {
	if sr.cancel != nil {
		sr.cancel()
	}
	<-sr.done
}

func (sr *StatsReporter) report(ctx context.Context) {
	uptime := time.Since(sr.startTime).Seconds()

	subscribers := 0
	if sr.source != nil {
		subscribers = sr.source.SubscriberCount()
	}

	attrs := []any{
		"uptime_seconds", int64(uptime),
		"subscribers", subscribers,
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		attrs = append(attrs, "cpu_percent", percents[0])
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		attrs = append(attrs, "mem_used_percent", vm.UsedPercent)
	}

	sr.logger.Debug("proxy stats", attrs...)
}
