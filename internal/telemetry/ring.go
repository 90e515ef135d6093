package telemetry

// logRing is a fixed-capacity ring buffer of log entries. Oldest entries
// are evicted first, so memory stays bounded regardless of volume. Not
// safe for concurrent use: the hub serializes access under its own lock.
type logRing struct {
	buf   []LogEntry
	next  int
	count int
}

func newLogRing(capacity int) *logRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &logRing{buf: make([]LogEntry, capacity)}
}

func (r *logRing) push(e LogEntry) {
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// entries returns the retained entries oldest-first.
func (r *logRing) entries() []LogEntry {
	out := make([]LogEntry, 0, r.count)
	start := r.next - r.count
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

func (r *logRing) len() int { return r.count }
