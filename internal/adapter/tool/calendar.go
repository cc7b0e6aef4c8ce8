package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"doppel/internal/domain"
	"doppel/internal/infra/tracer"
)

// CalendarScheduleTool reads the user's schedule for a single day.
type CalendarScheduleTool struct {
	backend domain.CalendarProvider
	limit   int
	logger  *slog.Logger
	now     func() time.Time
}

// NewCalendarScheduleTool creates the schedule lookup tool. limit caps how
// many events one call returns.
func NewCalendarScheduleTool(backend domain.CalendarProvider, limit int, logger *slog.Logger) *CalendarScheduleTool {
	if limit <= 0 {
		limit = 20
	}
	return &CalendarScheduleTool{backend: backend, limit: limit, logger: logger, now: time.Now}
}

func (t *CalendarScheduleTool) Name() string { return "calendar_schedule" }
func (t *CalendarScheduleTool) Description() string {
	return "Look up the user's calendar events for a given date. " +
		"Use this before proposing meeting times or summarizing the day."
}

func (t *CalendarScheduleTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Kind:        domain.ToolKindRead,
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"date": {
					"type": "string",
					"description": "Date to look up in YYYY-MM-DD format. Defaults to today."
				}
			}
		}`),
	}
}

type scheduleParams struct {
	Date string `json:"date,omitempty"`
}

func (t *CalendarScheduleTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.calendar_schedule", t.logger, params,
		func(ctx context.Context, span trace.Span, p scheduleParams) (any, error) {
			if err := ValidateDate("date", p.Date); err != nil {
				return ErrResult("%v", err)
			}

			day := t.now()
			if p.Date != "" {
				day, _ = time.Parse("2006-01-02", p.Date)
			}
			span.SetAttributes(tracer.StringAttr("calendar.date", day.Format("2006-01-02")))

			events, err := t.backend.EventsForDay(ctx, day, t.limit)
			if err != nil {
				return nil, domain.WrapOp("calendar_schedule", err)
			}
			if len(events) == 0 {
				return fmt.Sprintf("No events found on %s.", day.Format("2006-01-02")), nil
			}
			return formatSchedule(day, events), nil
		},
	)
}

// formatSchedule renders a day's events as a readable list for the model.
func formatSchedule(day time.Time, events []domain.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Events on %s:\n", day.Format("2006-01-02"))
	for _, ev := range events {
		if ev.AllDay {
			fmt.Fprintf(&b, "- (all day) %s", ev.Summary)
		} else {
			fmt.Fprintf(&b, "- %s to %s: %s",
				ev.Start.Format("15:04"), ev.End.Format("15:04"), ev.Summary)
		}
		if ev.Location != "" {
			fmt.Fprintf(&b, " (%s)", ev.Location)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// CreateEventTool adds an event to the user's calendar. It is a write tool:
// the agent never executes it without an explicit user confirmation.
type CreateEventTool struct {
	backend domain.CalendarProvider
	logger  *slog.Logger
}

// NewCreateEventTool creates the event creation tool.
func NewCreateEventTool(backend domain.CalendarProvider, logger *slog.Logger) *CreateEventTool {
	return &CreateEventTool{backend: backend, logger: logger}
}

func (t *CreateEventTool) Name() string { return "create_event" }
func (t *CreateEventTool) Description() string {
	return "Create a calendar event. Start and end times use RFC 3339 format. " +
		"This changes the user's calendar, so propose it and wait for confirmation."
}

func (t *CreateEventTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Kind:        domain.ToolKindWrite,
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"summary": {
					"type": "string",
					"description": "Event title"
				},
				"start_time": {
					"type": "string",
					"description": "Start time (RFC 3339)"
				},
				"end_time": {
					"type": "string",
					"description": "End time (RFC 3339)"
				},
				"description": {
					"type": "string",
					"description": "Longer event description or agenda"
				},
				"location": {
					"type": "string",
					"description": "Event location"
				},
				"attendees": {
					"type": "array",
					"items": {"type": "string"},
					"description": "Attendee email addresses"
				}
			},
			"required": ["summary", "start_time", "end_time"]
		}`),
	}
}

type createEventParams struct {
	Summary     string   `json:"summary"`
	Start       string   `json:"start_time"`
	End         string   `json:"end_time"`
	Description string   `json:"description,omitempty"`
	Location    string   `json:"location,omitempty"`
	Attendees   []string `json:"attendees,omitempty"`
}

func (t *CreateEventTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.create_event", t.logger, params,
		func(ctx context.Context, span trace.Span, p createEventParams) (any, error) {
			if err := ValidateAll(
				RequireFields("summary", p.Summary, "start_time", p.Start, "end_time", p.End),
				ValidateRFC3339("start_time", p.Start),
				ValidateRFC3339("end_time", p.End),
			); err != nil {
				return ErrResult("%v", err)
			}

			start, _ := time.Parse(time.RFC3339, p.Start)
			end, _ := time.Parse(time.RFC3339, p.End)
			if !end.After(start) {
				return ErrResult("'end_time' must be after 'start_time'")
			}

			created, err := t.backend.CreateEvent(ctx, domain.Event{
				Summary:     p.Summary,
				Description: p.Description,
				Location:    p.Location,
				Start:       start,
				End:         end,
				Attendees:   p.Attendees,
			})
			if err != nil {
				return nil, domain.WrapOp("create_event", err)
			}

			span.SetAttributes(tracer.StringAttr("calendar.event_id", created.ID))
			t.logger.Info("calendar event created", "id", created.ID, "summary", created.Summary)
			return fmt.Sprintf("Event created: %s (%s to %s), reference %s.",
				created.Summary,
				created.Start.Format(time.RFC3339),
				created.End.Format(time.RFC3339),
				created.ID), nil
		},
	)
}
