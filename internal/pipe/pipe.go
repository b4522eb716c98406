// Package pipe implements the full-duplex byte copy at the heart of the
// FTP passthrough: given two connections, copy bytes in both directions
// until either side is done, without inspecting or buffering beyond the
// copy buffer.
package pipe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/karaktaka/pandaproxy/internal/netutil"
)

// bufferSize is the per-direction read buffer. The spec requires at least
// 64 KiB.
const bufferSize = 64 * 1024

// Copy copies bytes between a and b in both directions concurrently, and
// returns once both directions have terminated. When either direction ends
// (EOF or error on its side), the other direction is cancelled. A clean
// peer reset is logged at debug and never surfaces as an error. Copy does
// not close a or b; the caller owns their lifecycle. A nil limiter copies
// at full speed; a non-nil limiter caps the aggregate rate of both
// directions against the same token bucket.
func Copy(ctx context.Context, logger *slog.Logger, a, b net.Conn, limiter *rate.Limiter) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer cancel()
		copyDirection(ctx, logger, "a->b", b, a, limiter)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		copyDirection(ctx, logger, "b->a", a, b, limiter)
	}()

	wg.Wait()
}

// copyDirection copies from src to dst until EOF, error, or ctx is done.
// Cancellation unblocks the read by closing the read side of src (via
// SetReadDeadline) so the goroutine does not leak past ctx cancellation.
func copyDirection(ctx context.Context, logger *slog.Logger, direction string, dst io.Writer, src net.Conn, limiter *rate.Limiter) {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
			_ = src.SetReadDeadline(timeInPast())
		case <-stop:
		}
	}()

	dst = netutil.NewThrottledWriter(ctx, dst, limiter)

	buf := make([]byte, bufferSize)
	_, err := io.CopyBuffer(dst, src, buf)
	if err != nil && !isBenign(err) {
		logger.Debug("pipe direction ended", "direction", direction, "error", err)
		return
	}
	logger.Debug("pipe direction ended", "direction", direction)
}

func timeInPast() time.Time {
	return time.Now().Add(-time.Hour)
}

func isBenign(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
