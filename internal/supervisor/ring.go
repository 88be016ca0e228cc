// Package supervisor manages long-lived auxiliary project processes,
// one per project, with a bounded in-memory log of their output.
//
// Import rules:
//   - CAN import: internal/clock, internal/constants, internal/domain, internal/errors,
//     internal/proc, std lib
//   - MUST NOT import: internal/engine, internal/job, internal/cli
package supervisor

import "sync"

// logRing is a bounded ring of output lines. Once capacity is reached
// the oldest lines are dropped.
type logRing struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func newLogRing(capacity int) *logRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &logRing{lines: make([]string, capacity)}
}

// Append adds a line, evicting the oldest when full.
func (r *logRing) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

// Tail returns the most recent n lines in chronological order.
func (r *logRing) Tail(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.full {
		size = len(r.lines)
	}
	if n > size {
		n = size
	}
	if n <= 0 {
		return nil
	}

	out := make([]string, 0, n)
	start := r.next - n
	if start < 0 {
		start += len(r.lines)
	}
	for i := 0; i < n; i++ {
		out = append(out, r.lines[(start+i)%len(r.lines)])
	}
	return out
}
