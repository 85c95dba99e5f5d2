// Package notify decouples outbound notifications from the operations that
// trigger them. Handlers publish an Event after an operation has committed;
// a Notifier delivers it to its sinks in the background, so a slow or failing
// sink never affects an HTTP response.
package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the operation an Event describes.
type Kind string

const (
	KindUpload       Kind = "upload"
	KindMove         Kind = "move"
	KindDelete       Kind = "delete"
	KindCreateFolder Kind = "create-folder"
)

// Event is a committed change to the object store.
type Event struct {
	ID     string    `json:"id"`
	Kind   Kind      `json:"kind"`
	Key    string    `json:"key"`
	NewKey string    `json:"newKey,omitempty"`
	Count  int       `json:"count"`
	At     time.Time `json:"at"`
}

// NewEvent stamps a new Event with a unique ID and the current time.
func NewEvent(kind Kind, key, newKey string, count int) Event {
	return Event{
		ID:     uuid.NewString(),
		Kind:   kind,
		Key:    key,
		NewKey: newKey,
		Count:  count,
		At:     time.Now().UTC(),
	}
}

// Text renders a short human readable description of the event.
func (e Event) Text() string {
	switch e.Kind {
	case KindUpload:
		return fmt.Sprintf("Uploaded %s", e.Key)
	case KindMove:
		if e.Count == 1 {
			return fmt.Sprintf("Moved %s to %s", e.Key, e.NewKey)
		}
		return fmt.Sprintf("Moved %s to %s (%d objects)", e.Key, e.NewKey, e.Count)
	case KindDelete:
		if e.Count == 1 {
			return fmt.Sprintf("Deleted %s", e.Key)
		}
		return fmt.Sprintf("Deleted %d objects", e.Count)
	case KindCreateFolder:
		return fmt.Sprintf("Created folder %s", e.Key)
	default:
		return fmt.Sprintf("%s %s", e.Kind, e.Key)
	}
}

// Publisher accepts events without blocking the caller.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(Event)

func (f PublisherFunc) Publish(e Event) { f(e) }

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(Event) {})
