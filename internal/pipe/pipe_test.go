package pipe

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestCopyByteExact proves that concatenated bytes forwarded in each
// direction equal the concatenated bytes read from the peer, byte-exact,
// no reorder, no insertion.
func TestCopyByteExact(t *testing.T) {
	clientLeft, clientRight := net.Pipe()
	printerLeft, printerRight := net.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		Copy(ctx, discardLogger(), clientRight, printerLeft, nil)
		close(done)
	}()

	payload := make([]byte, 256*1024)
	if _, err := rand.Read(payload); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	echoDone := make(chan struct{})
	go func() {
		defer close(echoDone)
		buf := make([]byte, len(payload))
		if _, err := io.ReadFull(printerRight, buf); err != nil {
			t.Errorf("printer read: %v", err)
			return
		}
		if _, err := printerRight.Write(buf); err != nil {
			t.Errorf("printer write: %v", err)
		}
	}()

	if _, err := clientLeft.Write(payload); err != nil {
		t.Fatalf("client write: %v", err)
	}

	got := make([]byte, len(payload))
	if _, err := io.ReadFull(clientLeft, got); err != nil {
		t.Fatalf("client read: %v", err)
	}

	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte mismatch at offset %d", i)
			break
		}
	}

	<-echoDone
	clientLeft.Close()
	printerRight.Close()
	cancel()
	<-done
}

// TestCopyReturnsOnEitherSideClosing proves Copy returns once either
// direction terminates: only a's peer closes, b's peer stays open.
func TestCopyReturnsOnEitherSideClosing(t *testing.T) {
	a1, a2 := net.Pipe()
	b1, b2 := net.Pipe()
	defer b2.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		Copy(ctx, discardLogger(), a2, b1, nil)
		close(done)
	}()

	a1.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Copy did not return after peer closed")
	}
}

// TestCopyStopsOnCancel proves cancellation unblocks both directions even
// when the peers are otherwise idle.
func TestCopyStopsOnCancel(t *testing.T) {
	a1, a2 := net.Pipe()
	b1, b2 := net.Pipe()
	defer a1.Close()
	defer b2.Close()

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Copy(ctx, discardLogger(), a2, b1, nil)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Copy did not return after cancellation")
	}
}

// TestCopyRespectsRateLimit proves a non-nil limiter actually caps
// throughput rather than being a no-op once wired through.
func TestCopyRespectsRateLimit(t *testing.T) {
	clientLeft, clientRight := net.Pipe()
	printerLeft, printerRight := net.Pipe()
	defer clientLeft.Close()
	defer printerRight.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(32*1024), 32*1024)

	done := make(chan struct{})
	go func() {
		Copy(ctx, discardLogger(), clientRight, printerLeft, limiter)
		close(done)
	}()

	payload := make([]byte, 96*1024)
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		_, _ = clientLeft.Write(payload)
	}()

	start := time.Now()
	buf := make([]byte, len(payload))
	if _, err := io.ReadFull(printerRight, buf); err != nil {
		t.Fatalf("printer read: %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < time.Second {
		t.Fatalf("expected throttled transfer to take at least 1s, took %v", elapsed)
	}

	<-writeDone
	cancel()
	<-done
}
