// Package notify delivers fire-and-forget signals about accepted punches.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind of a punch event.
type Kind string

const (
	KindPunchIn  Kind = "punch_in"
	KindPunchOut Kind = "punch_out"
)

// Event is emitted once per successful punch.
type Event struct {
	ID       string    `json:"id"`
	Kind     Kind      `json:"kind"`
	Identity string    `json:"identity"`
	Date     string    `json:"date"`
	Slot     int       `json:"slot"`
	At       time.Time `json:"at"`
	Duration string    `json:"duration,omitempty"`
	Total    string    `json:"total"`
}

// NewEventID returns a random event identifier.
func NewEventID() string {
	return uuid.NewString()
}

// Notifier receives punch events. Implementations must not block the caller
// for long and never report failures back.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

// Multi fans an event out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, e)
		}
	}
}
