package netutil

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// maxThrottleChunk bounds how many bytes a single Write reserves from the
// limiter at once, so one oversized write doesn't demand a burst larger
// than the limiter grants.
const maxThrottleChunk = 64 * 1024

// ThrottledWriter is an io.Writer bounded by a token-bucket rate limiter,
// splitting large writes into chunks so throughput is capped smoothly
// rather than in bursts the size of the caller's buffer.
type ThrottledWriter struct {
	w       io.Writer
	limiter *rate.Limiter
	ctx     context.Context
}

// NewThrottledWriter wraps w so writes through it consume tokens from
// limiter before proceeding. A nil limiter disables throttling and
// returns w unchanged, so callers can pass an optional cap without a
// branch at every call site.
func NewThrottledWriter(ctx context.Context, w io.Writer, limiter *rate.Limiter) io.Writer {
	if limiter == nil {
		return w
	}
	return &ThrottledWriter{w: w, limiter: limiter, ctx: ctx}
}

func (tw *ThrottledWriter) Write(p []byte) (int, error) {
	written := 0

	for len(p) > 0 {
		chunk := len(p)
		if chunk > maxThrottleChunk {
			chunk = maxThrottleChunk
		}
		if burst := tw.limiter.Burst(); chunk > burst {
			chunk = burst
		}

		if err := tw.limiter.WaitN(tw.ctx, chunk); err != nil {
			return written, err
		}

		n, err := tw.w.Write(p[:chunk])
		written += n
		if err != nil {
			return written, err
		}
		p = p[n:]
	}

	return written, nil
}
