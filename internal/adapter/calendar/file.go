// Package calendar provides calendar backends. The file backend keeps
// events as JSON under a data directory.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"doppel/internal/domain"
)

// FileProvider implements domain.CalendarProvider on top of events.json
// in dataDir.
type FileProvider struct {
	mu      sync.Mutex
	dataDir string
}

// NewFileProvider returns a provider rooted at dataDir. The events file is
// created on first write; a missing file reads as an empty calendar.
func NewFileProvider(dataDir string) *FileProvider {
	return &FileProvider{dataDir: dataDir}
}

func (p *FileProvider) eventsPath() string { return filepath.Join(p.dataDir, "events.json") }

// EventsForDay implements domain.CalendarProvider. An event matches when its
// [Start, End) span overlaps the civil date of day in day's location.
func (p *FileProvider) EventsForDay(_ context.Context, day time.Time, max int) ([]domain.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	events, err := p.readEvents()
	if err != nil {
		return nil, err
	}

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var matched []domain.Event
	for _, ev := range events {
		end := ev.End
		if !end.After(ev.Start) {
			end = ev.Start
		}
		if (ev.Start.Before(dayEnd) && end.After(dayStart)) || sameInstant(ev.Start, end, dayStart, dayEnd) {
			matched = append(matched, ev)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Start.Before(matched[j].Start)
	})

	if max > 0 && len(matched) > max {
		matched = matched[:max]
	}
	return matched, nil
}

// sameInstant covers zero-duration events sitting exactly inside the day.
func sameInstant(start, end, dayStart, dayEnd time.Time) bool {
	return start.Equal(end) && !start.Before(dayStart) && start.Before(dayEnd)
}

// CreateEvent implements domain.CalendarProvider. IDs are sequential within
// the calendar file.
func (p *FileProvider) CreateEvent(_ context.Context, ev domain.Event) (*domain.Event, error) {
	if ev.Summary == "" {
		return nil, fmt.Errorf("%w: create event: summary is empty", domain.ErrCalendarUnavailable)
	}
	if !ev.End.After(ev.Start) && !ev.AllDay {
		return nil, fmt.Errorf("%w: create event: end is not after start", domain.ErrCalendarUnavailable)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	events, err := p.readEvents()
	if err != nil {
		return nil, err
	}

	ev.ID = fmt.Sprintf("evt-%d", nextEventSeq(events))
	events = append(events, ev)

	if err := p.writeEvents(events); err != nil {
		return nil, err
	}
	return &ev, nil
}

// nextEventSeq returns one past the highest sequential ID in use, so IDs
// stay unique even if the file was edited by hand.
func nextEventSeq(events []domain.Event) int {
	next := 1
	for _, ev := range events {
		var n int
		if _, err := fmt.Sscanf(ev.ID, "evt-%d", &n); err == nil && n >= next {
			next = n + 1
		}
	}
	return next
}

func (p *FileProvider) readEvents() ([]domain.Event, error) {
	data, err := os.ReadFile(p.eventsPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read events: %v", domain.ErrCalendarUnavailable, err)
	}

	var events []domain.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("%w: parse events: %v", domain.ErrCalendarUnavailable, err)
	}
	return events, nil
}

func (p *FileProvider) writeEvents(events []domain.Event) error {
	if err := os.MkdirAll(p.dataDir, 0700); err != nil {
		return fmt.Errorf("%w: create data dir: %v", domain.ErrCalendarUnavailable, err)
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal events: %v", domain.ErrCalendarUnavailable, err)
	}
	if err := os.WriteFile(p.eventsPath(), data, 0600); err != nil {
		return fmt.Errorf("%w: write events: %v", domain.ErrCalendarUnavailable, err)
	}
	return nil
}
