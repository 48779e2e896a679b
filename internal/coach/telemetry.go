package coach

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// traceCapacity bounds the per-session telemetry ring.
const traceCapacity = 256

// TraceEntry is one recorded session action.
type TraceEntry struct {
	At       time.Time     `json:"at"`
	Kind     string        `json:"kind"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`
}

// Trace is a fixed-capacity ring of session actions: turn boundaries,
// time to first token, tool executions, pass transitions. Written by
// the session task, read by the debug endpoint.
type Trace struct {
	mu      sync.Mutex
	entries [traceCapacity]TraceEntry
	next    int
	filled  bool
}

// NewTrace creates an empty trace ring.
func NewTrace() *Trace {
	return &Trace{}
}

// Record appends an entry, overwriting the oldest once full.
func (t *Trace) Record(kind, detail string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[t.next] = TraceEntry{At: time.Now(), Kind: kind, Detail: detail, Duration: d}
	t.next = (t.next + 1) % traceCapacity
	if t.next == 0 {
		t.filled = true
	}
}

// Snapshot returns the recorded entries, oldest first.
func (t *Trace) Snapshot() []TraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.filled {
		out := make([]TraceEntry, t.next)
		copy(out, t.entries[:t.next])
		return out
	}
	out := make([]TraceEntry, 0, traceCapacity)
	out = append(out, t.entries[t.next:]...)
	out = append(out, t.entries[:t.next]...)
	return out
}

// TraceRegistry maps live session ids to their traces so the debug
// endpoint can inspect them. Sessions register on construction and
// deregister on close.
type TraceRegistry struct {
	mu     sync.RWMutex
	traces map[uuid.UUID]*Trace
}

// NewTraceRegistry creates an empty registry.
func NewTraceRegistry() *TraceRegistry {
	return &TraceRegistry{traces: make(map[uuid.UUID]*Trace)}
}

// Register associates a session id with its trace.
func (r *TraceRegistry) Register(sessionID uuid.UUID, t *Trace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.traces[sessionID] = t
}

// Deregister removes a session's trace.
func (r *TraceRegistry) Deregister(sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.traces, sessionID)
}

// Lookup returns the trace for a session id, if registered.
func (r *TraceRegistry) Lookup(sessionID uuid.UUID) (*Trace, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.traces[sessionID]
	return t, ok
}
