package domain

import (
	"context"
	"time"
)

// Event is a single calendar entry.
type Event struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day,omitempty"`
	Attendees   []string  `json:"attendees,omitempty"`
}

// CalendarProvider is the boundary to the user's calendar.
type CalendarProvider interface {
	// EventsForDay returns up to max events overlapping the given civil
	// date, ordered by start time.
	EventsForDay(ctx context.Context, day time.Time, max int) ([]Event, error)
	// CreateEvent adds an event and returns it with its assigned ID.
	CreateEvent(ctx context.Context, ev Event) (*Event, error)
}
