// Package chamber implements the Chamber Image proxy: one upstream TLS
// session to the printer's JPEG frame stream, fanned out to any number of
// downstream TLS subscribers.
package chamber

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/karaktaka/pandaproxy/internal/netutil"
	"github.com/karaktaka/pandaproxy/internal/pki"
)

// downstreamCloseDrain bounds how long a closed downstream connection is
// drained before the final Close, giving the client's TLS close_notify a
// chance to land.
const downstreamCloseDrain = 500 * time.Millisecond

// Port is the well-known Chamber Image TLS port, used both for the
// downstream listener and the upstream printer connection.
const Port = 6000

// Backoff tunes the upstream reconnect delay: it starts at Initial and
// doubles after every failed session, capped at Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

func (b Backoff) withDefaults() Backoff {
	if b.Initial <= 0 {
		b.Initial = time.Second
	}
	if b.Max <= 0 {
		b.Max = 30 * time.Second
	}
	return b
}

// Proxy owns one upstream Chamber session and fans its frames out to
// downstream TLS subscribers. Start and Stop are each safe to call
// multiple times; extra calls are no-ops.
type Proxy struct {
	logger  *slog.Logger
	backoff Backoff

	state atomic.Value // state

	listener net.Listener
	pub      *publisher

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu sync.Mutex // serializes Start/Stop transitions
}

// New creates a Chamber proxy in the Idle state, using backoff to tune the
// upstream reconnect delay (zero values fall back to 1s/30s).
func New(logger *slog.Logger, backoff Backoff) *Proxy {
	p := &Proxy{logger: logger.With("component", "chamber"), backoff: backoff.withDefaults()}
	p.state.Store(stateIdle)
	return p
}

// State reports the proxy's current lifecycle state (for tests and
// observability only).
func (p *Proxy) State() string {
	return string(p.state.Load().(state))
}

// SubscriberCount reports the number of currently attached downstream
// subscribers. Safe to call from any goroutine; satisfies
// observability.Source.
func (p *Proxy) SubscriberCount() int {
	p.mu.Lock()
	pub := p.pub
	p.mu.Unlock()

	if pub == nil {
		return 0
	}
	return int(pub.subCount.Load())
}

// Name identifies this component for the supervisor and its logs.
func (p *Proxy) Name() string { return "chamber" }

// Start binds a TLS listener on bindAddress:6000 using ephemeral
// self-signed server material, and begins accepting downstream
// subscribers. The upstream printer connection is not opened until the
// first subscriber attaches. Calling Start while not Idle is a no-op.
func (p *Proxy) Start(ctx context.Context, printerIP, accessCode, bindAddress string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.Load().(state) != stateIdle {
		return nil
	}
	p.state.Store(stateStarting)

	host, ip := splitBindHost(bindAddress)
	mat, err := pki.NewEphemeralServerMaterial(host, []string{host}, ip)
	if err != nil {
		p.state.Store(stateIdle)
		return fmt.Errorf("generating chamber TLS material: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", bindAddress, Port)
	ln, err := tls.Listen("tcp", addr, mat.Config)
	if err != nil {
		mat.Cleanup()
		p.state.Store(stateIdle)
		return fmt.Errorf("binding chamber listener on %s: %w", addr, err)
	}

	p.listener = ln
	p.pub = newPublisher(p.logger)

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(3)
	go func() {
		defer p.wg.Done()
		defer mat.Cleanup()
		<-runCtx.Done()
		_ = ln.Close()
	}()
	go func() {
		defer p.wg.Done()
		p.pub.run(runCtx.Done())
	}()
	go func() {
		defer p.wg.Done()
		runUpstream(runCtx, p.logger, printerIP, accessCode, p.pub, p.backoff)
	}()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.acceptLoop(runCtx, ln)
	}()

	p.state.Store(stateRunning)
	p.logger.Info("chamber proxy listening", "address", addr)
	return nil
}

// Stop ceases accepting, cancels the upstream session and all
// subscribers, and awaits completion. Idempotent: calling Stop while not
// Running (or Starting) is a no-op.
func (p *Proxy) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.state.Load().(state)
	if st == stateIdle || st == stateStopped || st == stateStopping {
		return
	}
	p.state.Store(stateStopping)

	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.state.Store(stateStopped)
	p.logger.Info("chamber proxy stopped")
}

func (p *Proxy) acceptLoop(ctx context.Context, ln net.Listener) {
	var connWG sync.WaitGroup
	defer connWG.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				p.logger.Debug("chamber accept error", "error", err)
				return
			}
		}

		connWG.Add(1)
		go func() {
			defer connWG.Done()
			p.handleDownstream(ctx, conn)
		}()
	}
}

// handleDownstream completes the downstream TLS handshake and registers
// the connection as a subscriber until its writer goroutine exits.
func (p *Proxy) handleDownstream(ctx context.Context, conn net.Conn) {
	tlsConn, ok := conn.(*tls.Conn)
	if ok {
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			p.logger.Debug("downstream TLS handshake failed", "error", err)
			_ = netutil.GracefulClose(conn, downstreamCloseDrain)
			return
		}
	}

	sub := newSubscriber(conn)
	p.pub.postAdd(sub)

	sub.runWriter(p.logger, func(s *subscriber) {
		p.pub.postRemove(s)
		if err := netutil.GracefulClose(s.conn, downstreamCloseDrain); err != nil {
			p.logger.Debug("downstream close error", "addr", s.addr, "error", err)
		}
	})
}

// splitBindHost turns a bind address into a usable certificate CN plus an
// optional IP SAN list. "0.0.0.0" has no meaningful CN/IP SAN, so it falls
// back to a generic name with no IP SAN.
func splitBindHost(bindAddress string) (string, []net.IP) {
	if ip := net.ParseIP(bindAddress); ip != nil && !ip.IsUnspecified() {
		return bindAddress, []net.IP{ip}
	}
	return "pandaproxy", nil
}
