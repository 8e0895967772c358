package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is one fleet lifecycle notice: a launch reaching READY, a process
// stopping, a discovery pass completing.
// Minimal and stable: name + model ID and optional fields via key/values.
type Event struct {
	ID      string
	Name    string
	ModelID string
	Time    time.Time
	Fields  map[string]any
}

// New stamps an event with a fresh ID and the current time.
func New(name, modelID string, fields map[string]any) Event {
	return Event{
		ID:      uuid.NewString(),
		Name:    name,
		ModelID: modelID,
		Time:    time.Now().UTC(),
		Fields:  fields,
	}
}

// Publisher receives fleet events. Implementations should be lightweight and
// non-blocking; Publish must not panic.
type Publisher interface {
	Publish(Event)
}

// NoopPublisher is the default; it drops events.
type NoopPublisher struct{}

func (NoopPublisher) Publish(Event) {}
