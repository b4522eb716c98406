// Package diag archives a small ring buffer of recent log lines to a
// gzip file when the supervisor shuts down abnormally, so an operator
// running the proxy unattended next to a printer has something to inspect
// after a crash. This is ambient diagnostics, not a spec feature: the
// proxy itself persists no other state to disk.
package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/pgzip"
)

// Ring is a fixed-capacity, thread-safe buffer of the most recent log
// lines, fed by a slog.Handler wrapper (see Handler in handler.go).
type Ring struct {
	mu    sync.Mutex
	lines []string
	cap   int
	next  int
	full  bool
}

// NewRing creates a ring buffer holding up to capacity lines.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{lines: make([]string, capacity), cap: capacity}
}

// Add appends a line, overwriting the oldest entry once the ring is full.
func (r *Ring) Add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.next] = line
	r.next = (r.next + 1) % r.cap
	if r.next == 0 {
		r.full = true
	}
}

// Snapshot returns the buffered lines in chronological order.
func (r *Ring) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]string, r.next)
		copy(out, r.lines[:r.next])
		return out
	}

	out := make([]string, r.cap)
	copy(out, r.lines[r.next:])
	copy(out[r.cap-r.next:], r.lines[:r.next])
	return out
}

// WriteCrashDump gzips the ring's current contents to a timestamped file
// under dir using parallel gzip compression, returning the path written.
func WriteCrashDump(dir string, r *Ring, when time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating crash dump directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("pandaproxy-crash-%s.log.gz", when.UTC().Format("20060102T150405Z")))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating crash dump file: %w", err)
	}
	defer f.Close()

	gz := pgzip.NewWriter(f)
	for _, line := range r.Snapshot() {
		if _, err := gz.Write([]byte(line + "\n")); err != nil {
			gz.Close()
			return "", fmt.Errorf("writing crash dump: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("closing crash dump writer: %w", err)
	}

	return path, nil
}
