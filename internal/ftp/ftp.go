// Package ftp implements the FTP/FTPS passthrough: raw TCP (and TLS, via
// the client and printer negotiating it themselves) byte splicing between
// downstream clients and the printer on the control port and the PASV
// data-port range. No FTP control traffic is inspected or rewritten.
// Ported from the original Python FTPProxy (original_source/ftp_proxy.py),
// idiomatic-Go'd onto net.Listener + internal/pipe.Copy.
package ftp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/karaktaka/pandaproxy/internal/netutil"
	"github.com/karaktaka/pandaproxy/internal/pipe"
)

// ControlPort is the FTP control channel port. Its bind failure is fatal.
const ControlPort = 990

// DataPortStart and DataPortEnd bound the PASV data-channel port range.
// Individual bind failures within the range are non-fatal.
const (
	DataPortStart = 2000
	DataPortEnd   = 2100
)

const dialTimeout = 10 * time.Second

// closeDrain bounds how long a spliced connection is drained of trailing
// bytes before the final Close, once Copy hands it back.
const closeDrain = 2 * time.Second

type state string

const (
	stateIdle     state = "idle"
	stateStarting state = "starting"
	stateRunning  state = "running"
	stateStopping state = "stopping"
	stateStopped  state = "stopped"
)

// Proxy owns the control-port and data-port-range listeners and every
// in-flight connection spawned from them.
type Proxy struct {
	logger    *slog.Logger
	printerIP string
	bind      string
	limiter   *rate.Limiter

	state atomic.Value

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// New creates an FTP passthrough proxy in the Idle state. maxBytesPerSec
// caps the aggregate transfer rate shared by every connection's data
// stream in both directions; 0 or negative means unlimited.
func New(logger *slog.Logger, printerIP, bindAddress string, maxBytesPerSec int64) *Proxy {
	p := &Proxy{
		logger:    logger.With("component", "ftp"),
		printerIP: printerIP,
		bind:      bindAddress,
		limiter:   newLimiter(maxBytesPerSec),
	}
	p.state.Store(stateIdle)
	return p
}

// newLimiter builds a shared token bucket for the proxy's lifetime, sized
// so a single connection can still burst up to one second's worth of its
// capped rate.
func newLimiter(maxBytesPerSec int64) *rate.Limiter {
	if maxBytesPerSec <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(maxBytesPerSec), int(maxBytesPerSec))
}

// State reports the proxy's lifecycle state.
func (p *Proxy) State() string {
	return string(p.state.Load().(state))
}

// Name identifies this component for the supervisor and its logs.
func (p *Proxy) Name() string { return "ftp" }

// Start binds the control port (990, fatal on failure) and every bindable
// port in [DataPortStart, DataPortEnd] (non-fatal per-port). Calling Start
// while not Idle is a no-op.
func (p *Proxy) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.Load().(state) != stateIdle {
		return nil
	}
	p.state.Store(stateStarting)

	controlLn, err := net.Listen("tcp", fmt.Sprintf("%s:%d", p.bind, ControlPort))
	if err != nil {
		p.state.Store(stateIdle)
		return fmt.Errorf("binding ftp control port %d: %w", ControlPort, err)
	}

	var dataLns []net.Listener
	for port := DataPortStart; port <= DataPortEnd; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", p.bind, port))
		if err != nil {
			p.logger.Debug("could not bind ftp data port, skipping", "port", port, "error", err)
			continue
		}
		dataLns = append(dataLns, ln)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1 + len(dataLns))
	go func() {
		defer p.wg.Done()
		p.serve(runCtx, controlLn, ControlPort)
	}()
	for _, ln := range dataLns {
		ln := ln
		port := ln.Addr().(*net.TCPAddr).Port
		go func() {
			defer p.wg.Done()
			p.serve(runCtx, ln, port)
		}()
	}

	p.state.Store(stateRunning)
	p.logger.Info("ftp proxy listening", "control_port", ControlPort, "data_ports_bound", len(dataLns))
	return nil
}

// Stop cancels every in-flight connection and closes every listener,
// completing in bounded time even if peers are idle. Calling Stop while
// not Running is a no-op.
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
	p.logger.Info("ftp proxy stopped")
}

// serve runs a single listener's accept loop, closing ln when ctx is
// cancelled and tracking every accepted connection's handler goroutine.
func (p *Proxy) serve(ctx context.Context, ln net.Listener, port int) {
	defer ln.Close()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var connWG sync.WaitGroup
	defer connWG.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				p.logger.Debug("ftp accept error", "port", port, "error", err)
				return
			}
		}

		connWG.Add(1)
		go func() {
			defer connWG.Done()
			p.handleConnection(ctx, conn, port)
		}()
	}
}

// handleConnection dials the printer on the same port the client
// connected to and splices bytes bidirectionally. Every byte, TLS
// included, passes through untouched.
func (p *Proxy) handleConnection(ctx context.Context, clientConn net.Conn, port int) {
	defer func() {
		if err := netutil.GracefulClose(clientConn, closeDrain); err != nil {
			p.logger.Debug("ftp client close error", "peer", clientConn.RemoteAddr(), "error", err)
		}
	}()

	portType := "data"
	if port == ControlPort {
		portType = "control"
	}
	p.logger.Debug("ftp connection accepted", "type", portType, "port", port, "peer", clientConn.RemoteAddr())

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	dialer := &net.Dialer{}
	upstreamConn, err := dialer.DialContext(dialCtx, "tcp", fmt.Sprintf("%s:%d", p.printerIP, port))
	if err != nil {
		p.logger.Debug("ftp upstream dial failed", "type", portType, "port", port, "error", err)
		return
	}
	defer func() {
		if err := netutil.GracefulClose(upstreamConn, closeDrain); err != nil {
			p.logger.Debug("ftp upstream close error", "type", portType, "port", port, "error", err)
		}
	}()

	pipe.Copy(ctx, p.logger, clientConn, upstreamConn, p.limiter)
	p.logger.Debug("ftp connection closed", "type", portType, "port", port)
}
