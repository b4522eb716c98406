package ftp

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoServer accepts connections on addr, each served on its own goroutine,
// and echoes whatever it receives back to the sender, standing in for the
// printer's FTP port.
func echoServer(t *testing.T, addr string) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("listening on %s: %v", addr, err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				io.Copy(conn, conn)
			}()
		}
	}()
	return ln
}

// testPrinterIP is a loopback alias distinct from the proxy's own bind
// address, for the same reason internal/chamber's tests use one: the
// printer and the proxy bind the same port numbers in production, on
// different hosts.
const testPrinterIP = "127.0.0.3"

func TestFTPPassthroughEchoesBytes(t *testing.T) {
	echoServer(t, testPrinterIP+":2010")

	p := New(discardLogger(), testPrinterIP, "127.0.0.1", 0)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	time.Sleep(100 * time.Millisecond)

	conn, err := net.Dial("tcp", "127.0.0.1:2010")
	if err != nil {
		t.Fatalf("dialing proxy data port: %v", err)
	}
	defer conn.Close()

	msg := []byte("USER anonymous\r\n")
	if _, err := conn.Write(msg); err != nil {
		t.Fatalf("write: %v", err)
	}

	buf := make([]byte, len(msg))
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("reading echoed bytes: %v", err)
	}
	if string(buf) != string(msg) {
		t.Fatalf("got %q, want %q", buf, msg)
	}
}

func TestFTPStopBoundedWithIdlePeer(t *testing.T) {
	echoServer(t, testPrinterIP+":2011")

	p := New(discardLogger(), testPrinterIP, "127.0.0.1", 0)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	// An idle client that never sends or reads anything.
	conn, err := net.Dial("tcp", "127.0.0.1:2011")
	if err != nil {
		t.Fatalf("dialing proxy data port: %v", err)
	}
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not complete in bounded time with an idle peer connected")
	}
}

func TestFTPStartIdempotent(t *testing.T) {
	echoServer(t, testPrinterIP+":2012")

	p := New(discardLogger(), testPrinterIP, "127.0.0.1", 0)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer p.Stop()

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("second Start should be a no-op, got: %v", err)
	}
}

func TestFTPThrottlesDataTransfer(t *testing.T) {
	echoServer(t, testPrinterIP+":2013")

	// 16 KiB/s cap shared by both directions; the 48 KiB payload below is
	// echoed back, so 96 KiB pass the limiter, which unthrottled would take
	// well under a second.
	p := New(discardLogger(), testPrinterIP, "127.0.0.1", 16*1024)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	time.Sleep(100 * time.Millisecond)

	conn, err := net.Dial("tcp", "127.0.0.1:2013")
	if err != nil {
		t.Fatalf("dialing proxy data port: %v", err)
	}
	defer conn.Close()

	payload := make([]byte, 48*1024)
	start := time.Now()
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	buf := make([]byte, len(payload))
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("reading echoed bytes: %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < time.Second {
		t.Fatalf("expected throttled transfer to take at least 1s, took %v", elapsed)
	}
}
