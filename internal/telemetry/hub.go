package telemetry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devlane/devlane/internal/metrics"
	"github.com/devlane/devlane/internal/state"
)

// HistoryCapacity is the size of the replay buffer for late joiners.
const HistoryCapacity = 1000

// observerQueueSlack is extra queue room beyond the history replay so a
// fresh observer never drops its own backlog.
const observerQueueSlack = 256

// Observer is one attached telemetry consumer. Messages arrive on C in
// hub order; the queue is bounded and drops oldest entries when the
// consumer cannot keep up.
type Observer struct {
	id   string
	ch   chan Envelope
	hub  *Hub
	once sync.Once

	droppedOnce sync.Once
}

// ID returns the observer's unique identifier.
func (o *Observer) ID() string { return o.id }

// C is the observer's receive channel. It is closed on detach.
func (o *Observer) C() <-chan Envelope { return o.ch }

// Close detaches the observer from the hub.
func (o *Observer) Close() { o.hub.detach(o) }

// enqueue delivers under the hub lock. On overflow the oldest queued
// message is discarded so the newest state always gets through.
func (o *Observer) enqueue(e Envelope) {
	for {
		select {
		case o.ch <- e:
			return
		default:
		}
		select {
		case <-o.ch:
			metrics.IncDroppedMessages(o.id)
			o.droppedOnce.Do(func() {
				slog.Warn("telemetry observer is lagging, dropping oldest messages", "observer", o.id)
			})
		default:
		}
	}
}

// Hub fans telemetry out to every attached observer and retains recent
// log history for replay. All mutation happens under one mutex, which
// preserves per-source ordering end to end: entries enter the ring and
// every observer queue in the same order they arrive at the hub.
type Hub struct {
	mu        sync.Mutex
	observers map[string]*Observer
	history   *logRing

	// snapshot provides the current project table for new observers.
	snapshot func() []state.Project
}

// NewHub builds a hub. snapshot may be nil when no state store is wired
// (the status envelope is then an empty table).
func NewHub(snapshot func() []state.Project) *Hub {
	return &Hub{
		observers: make(map[string]*Observer),
		history:   newLogRing(HistoryCapacity),
		snapshot:  snapshot,
	}
}

// Attach registers a new observer. Before any live traffic the observer
// receives a status snapshot followed by the buffered log history,
// oldest first. Registration and replay happen under the hub lock, so
// there is no gap or duplication at the live boundary.
func (h *Hub) Attach() *Observer {
	o := &Observer{
		id: uuid.NewString(),
		ch: make(chan Envelope, HistoryCapacity+observerQueueSlack),
	}
	o.hub = h

	var projects []state.Project
	if h.snapshot != nil {
		projects = h.snapshot()
	}
	if projects == nil {
		projects = []state.Project{}
	}

	h.mu.Lock()
	o.enqueue(Envelope{Type: TypeStatus, Payload: projects, Timestamp: time.Now()})
	for _, entry := range h.history.entries() {
		o.enqueue(Envelope{Type: TypeLog, Payload: entry, Timestamp: entry.Timestamp})
	}
	h.observers[o.id] = o
	n := len(h.observers)
	h.mu.Unlock()

	metrics.SetConnectedObservers(n)
	return o
}

func (h *Hub) detach(o *Observer) {
	h.mu.Lock()
	_, ok := h.observers[o.id]
	if ok {
		delete(h.observers, o.id)
	}
	n := len(h.observers)
	h.mu.Unlock()
	if ok {
		o.once.Do(func() { close(o.ch) })
		metrics.SetConnectedObservers(n)
	}
}

// ObserverCount returns the number of attached observers.
func (h *Hub) ObserverCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Broadcast pushes an envelope to every attached observer.
func (h *Hub) Broadcast(e Envelope) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	h.mu.Lock()
	if e.Type == TypeLog {
		if entry, ok := e.Payload.(LogEntry); ok {
			h.history.push(entry)
		}
	}
	for _, o := range h.observers {
		o.enqueue(e)
	}
	h.mu.Unlock()
}

// PushLog forwards one log line, recording it in the replay buffer.
func (h *Hub) PushLog(level LogLevel, message, projectID string) {
	entry := LogEntry{
		Level:     level,
		Message:   message,
		ProjectID: projectID,
		Timestamp: time.Now(),
	}
	h.Broadcast(Envelope{Type: TypeLog, Payload: entry, Timestamp: entry.Timestamp})
}

// PushBuildProgress forwards a build progress event. Progress events are
// not replayed for late joiners.
func (h *Hub) PushBuildProgress(p BuildProgress) {
	h.Broadcast(Envelope{Type: TypeBuild, Payload: p})
}

// PushPerformance forwards a readiness timing sample. Like build
// progress, timing samples are not replayed for late joiners.
func (h *Hub) PushPerformance(p Performance) {
	h.Broadcast(Envelope{Type: TypePerformance, Payload: p})
}

// PushProject forwards an updated project record.
func (h *Hub) PushProject(p state.Project) {
	h.Broadcast(Envelope{Type: TypeProject, Payload: p})
}

// HistoryLen reports how many log entries the replay buffer holds.
func (h *Hub) HistoryLen() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.history.len()
}
