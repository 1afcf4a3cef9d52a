package stream

import "sync"

// DefaultLogCapacity caps the rolling diagnostic log at the 50 most recent
// lines. The log is intentionally bounded and kept separate from the
// unbounded (up to the dataset size) evaluation-result list.
const DefaultLogCapacity = 50

// RollingLog retains the most recent diagnostic lines from the event stream.
// Older entries are evicted once capacity is reached. Safe for concurrent use.
type RollingLog struct {
	mu    sync.Mutex
	cap   int
	lines []string
	start int
	count int
}

// NewRollingLog creates a rolling log with the given capacity.
// A non-positive capacity falls back to DefaultLogCapacity.
func NewRollingLog(capacity int) *RollingLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &RollingLog{cap: capacity, lines: make([]string, capacity)}
}

// Append records a line, evicting the oldest entry when full.
func (l *RollingLog) Append(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := (l.start + l.count) % l.cap
	l.lines[idx] = line
	if l.count < l.cap {
		l.count++
	} else {
		l.start = (l.start + 1) % l.cap
	}
}

// Lines returns the retained entries oldest-first.
func (l *RollingLog) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, 0, l.count)
	for i := 0; i < l.count; i++ {
		out = append(out, l.lines[(l.start+i)%l.cap])
	}
	return out
}

// Len returns the number of retained entries.
func (l *RollingLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Reset discards all retained entries.
func (l *RollingLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.start, l.count = 0, 0
}
