// Package history exports workload lifecycle events to external systems
// for audit and analytics. Sinks are additive: the control plane runs
// identically with none configured, and registries stay memory-resident.
package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/devlane/devlane/internal/event"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventDevStarted     EventType = "dev_started"
	EventDevError       EventType = "dev_error"
	EventPreviewStarted EventType = "preview_started"
	EventPreviewError   EventType = "preview_error"
	EventBuildDone      EventType = "build_done"
	EventBuildError     EventType = "build_error"
	EventDestroyed      EventType = "destroyed"
)

// Event is one exported lifecycle record.
type Event struct {
	Type       EventType `json:"type"`
	ProjectID  string    `json:"project_id"`
	Engine     string    `json:"engine"`
	Port       int       `json:"port"`
	Detail     string    `json:"detail"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink is a destination for history events. Implementations must be safe
// for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

const sendTimeout = 5 * time.Second

var topicEvents = map[event.Topic]EventType{
	event.DevStarted:     EventDevStarted,
	event.DevError:       EventDevError,
	event.PreviewStarted: EventPreviewStarted,
	event.PreviewError:   EventPreviewError,
	event.BuildDone:      EventBuildDone,
	event.BuildError:     EventBuildError,
	event.Destroyed:      EventDestroyed,
}

// Watch subscribes to every lifecycle topic and forwards events to the
// sink best-effort. Send failures are logged, never propagated. The
// returned func stops forwarding and waits for in-flight sends.
func Watch(bus *event.Bus, sink Sink, log *slog.Logger) func() {
	if log == nil {
		log = slog.Default()
	}
	var wg sync.WaitGroup
	cancels := make([]func(), 0, len(topicEvents))

	for topic, et := range topicEvents {
		ch, cancel := bus.Subscribe(topic)
		cancels = append(cancels, cancel)
		wg.Add(1)
		go func(et EventType, ch <-chan event.Event) {
			defer wg.Done()
			for e := range ch {
				detail := ""
				if e.Err != nil {
					detail = e.Err.Error()
				}
				ctx, done := context.WithTimeout(context.Background(), sendTimeout)
				err := sink.Send(ctx, Event{
					Type:       et,
					ProjectID:  e.Project,
					Engine:     e.Engine,
					Port:       e.Port,
					Detail:     detail,
					OccurredAt: e.At,
				})
				done()
				if err != nil {
					log.Warn("history sink send failed", "type", string(et), "err", err)
				}
			}
		}(et, ch)
	}

	return func() {
		for _, c := range cancels {
			c()
		}
		wg.Wait()
	}
}
