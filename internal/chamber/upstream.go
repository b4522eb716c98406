package chamber

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/karaktaka/pandaproxy/internal/chamberproto"
	"github.com/karaktaka/pandaproxy/internal/netutil"
	"github.com/karaktaka/pandaproxy/internal/pki"
)

const (
	upstreamPort = 6000
	dialTimeout  = 10 * time.Second
)

// runUpstream is the upstream session manager. It waits for the first
// subscriber before dialing, then loops: connect, send the Auth Block,
// read frames and hand them to pub, until the link fails. Every failed
// session drains all current subscribers before reconnecting with
// exponential backoff, so a fresh session always starts from a clean
// subscriber set. The delay doubles after every failed session up to
// backoff.Max and is not reset after a successful connection.
func runUpstream(ctx context.Context, logger *slog.Logger, printerIP, accessCode string, pub *publisher, backoff Backoff) {
	select {
	case <-pub.firstSubscriber:
	case <-ctx.Done():
		return
	}

	delay := backoff.Initial
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := streamOnce(ctx, logger, printerIP, accessCode, pub)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}

		pub.requestDrainAll()

		logger.Warn("chamber upstream session ended, reconnecting", "printer", printerIP, "error", err, "retry_in", delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > backoff.Max {
			delay = backoff.Max
		}
	}
}

// streamOnce dials the printer once, authenticates, and runs the frame
// loop until the link errors or ctx is cancelled. A nil error only occurs
// on clean cancellation.
func streamOnce(ctx context.Context, logger *slog.Logger, printerIP, accessCode string, pub *publisher) error {
	addr := net.JoinHostPort(printerIP, fmt.Sprintf("%d", upstreamPort))

	dialer := &net.Dialer{Timeout: dialTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dialing printer: %w", err)
	}

	tlsConn := tls.Client(rawConn, pki.NewPermissiveClientTLSConfig())
	if err := netutil.WithDeadline(tlsConn, dialTimeout, tlsConn.Handshake); err != nil {
		tlsConn.Close()
		return fmt.Errorf("upstream TLS handshake: %w", err)
	}

	defer tlsConn.Close()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-sessionCtx.Done()
		_ = tlsConn.SetDeadline(time.Now().Add(-time.Hour))
	}()

	block := chamberproto.EncodeAuthBlock(accessCode)
	if _, err := tlsConn.Write(block[:]); err != nil {
		return fmt.Errorf("writing auth block: %w", err)
	}

	logger.Info("chamber upstream connected", "printer", printerIP)

	first := true
	for {
		n, magic, err := chamberproto.DecodeFrameHeader(tlsConn)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if first {
				return fmt.Errorf("auth rejected or protocol error: %w", err)
			}
			return fmt.Errorf("frame header: %w", err)
		}
		first = false

		payload, err := chamberproto.ReadFramePayload(tlsConn, n)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("frame payload: %w", err)
		}

		if chamberproto.FrameMagic != magic {
			logger.Debug("unexpected frame magic", "magic", magic)
		}

		pub.publishFrame(magic, payload)
	}
}
