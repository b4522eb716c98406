package chamber

import (
	"log/slog"
	"net"
	"time"

	"github.com/karaktaka/pandaproxy/internal/netutil"
)

// subscriberQueueDepth is the number of frames buffered per subscriber
// before the oldest is dropped.
const subscriberQueueDepth = 2

// writeDeadline bounds how long a subscriber write may block before it is
// treated as a slow consumer and disconnected.
const writeDeadline = 2 * time.Second

// subscriber is a downstream TLS client currently attached to the proxy.
// Its queue is fed exclusively by the publisher goroutine; its writer
// goroutine drains the queue and is the only goroutine that writes to
// conn.
type subscriber struct {
	conn   net.Conn
	addr   string
	queue  chan []byte
	closed chan struct{}
}

func newSubscriber(conn net.Conn) *subscriber {
	return &subscriber{
		conn:   conn,
		addr:   conn.RemoteAddr().String(),
		queue:  make(chan []byte, subscriberQueueDepth),
		closed: make(chan struct{}),
	}
}

// enqueue performs a non-blocking best-effort send of frame. On a full
// queue, the oldest buffered frame is dropped and frame is enqueued in its
// place, avoiding any mutex on the hot publish path.
func (s *subscriber) enqueue(frame []byte) {
	select {
	case s.queue <- frame:
		return
	default:
	}

	select {
	case <-s.queue:
	default:
	}

	select {
	case s.queue <- frame:
	default:
		// The publisher is the only sender and the writer goroutine only
		// removes frames, so the drain above leaves room; this default just
		// guarantees the publisher never blocks here.
	}
}

// runWriter drains the queue and writes frames to conn until stop closes
// the queue, the connection errors, or a write exceeds writeDeadline. It
// calls onDone exactly once when it stops, so the publisher can remove the
// subscriber from its set.
func (s *subscriber) runWriter(logger *slog.Logger, onDone func(*subscriber)) {
	defer onDone(s)
	defer close(s.closed)

	for frame := range s.queue {
		err := netutil.WithDeadline(s.conn, writeDeadline, func() error {
			_, err := s.conn.Write(frame)
			return err
		})
		if err != nil {
			logger.Debug("subscriber write error, disconnecting", "addr", s.addr, "error", err)
			return
		}
	}
}

// stop closes the subscriber's queue, waking its writer goroutine so it
// exits and calls onDone.
func (s *subscriber) stop() {
	defer func() { recover() }() // queue may already be closed by a concurrent stop
	close(s.queue)
}
