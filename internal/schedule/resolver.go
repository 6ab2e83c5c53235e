package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ent0n29/penny/internal/integrations"
	"github.com/ent0n29/penny/internal/store"
)

type OutcomeKind int

const (
	// OutcomeCreated means the event was committed to the calendar.
	OutcomeCreated OutcomeKind = iota
	// OutcomeConflict means the requested window was busy; the turn ends
	// early with alternative suggestions instead of an event.
	OutcomeConflict
	// OutcomeClarify means no usable time could be resolved from the
	// request; the user is asked to restate it.
	OutcomeClarify
	// OutcomeFailed means event creation was attempted and rejected.
	OutcomeFailed
)

// Outcome is the terminal state of one schedule request.
type Outcome struct {
	Kind        OutcomeKind
	Reply       string
	Event       map[string]any
	Suggestions []Slot

	// BusyLookupError carries a failed free/busy diagnostic. The lookup
	// failing is not fatal; creation proceeds regardless.
	BusyLookupError string
}

// Args are the schedule_event tool arguments as proposed by the model.
// Start/End are RFC3339 and may be absent, in which case the raw user
// message is parsed for a time expression.
type Args struct {
	Title       string   `json:"title"`
	Attendees   []string `json:"attendees"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Description string   `json:"description"`
	TimeZone    string   `json:"timeZone"`
}

// Resolver checks free/busy status before committing a calendar event and
// proposes alternatives on conflict.
type Resolver struct {
	store    store.Store
	calendar integrations.Calendar
	parser   *Parser
	loc      *time.Location
	slots    SlotConfig
	now      func() time.Time
}

func NewResolver(st store.Store, cal integrations.Calendar, loc *time.Location, slots SlotConfig) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{
		store:    st,
		calendar: cal,
		parser:   NewParser(loc),
		loc:      loc,
		slots:    slots.withDefaults(),
		now:      time.Now,
	}
}

// Resolve runs the schedule-request state machine for one proposed event:
// time resolution, attendee resolution, conflict check, then creation or
// alternative suggestion.
func (r *Resolver) Resolve(ctx context.Context, userID, rawMessage string, args Args) Outcome {
	start, end, ok := r.resolveWindow(rawMessage, args)
	if !ok {
		return Outcome{
			Kind:  OutcomeClarify,
			Reply: "Please provide a clear time (e.g., tomorrow 2:00pm).",
		}
	}

	attendees := args.Attendees
	if len(attendees) == 0 {
		if email := ExtractEmail(rawMessage); email != "" {
			attendees = []string{email}
		}
	}

	title := args.Title
	if title == "" {
		title = "Meeting"
	}
	description := args.Description
	if description == "" {
		description = rawMessage
	}
	timezone := args.TimeZone
	if timezone == "" {
		timezone = r.loc.String()
	}

	user, err := r.store.GetUser(ctx, userID)
	if err != nil || user.GoogleToken == "" {
		return Outcome{
			Kind:  OutcomeFailed,
			Reply: "❌ I couldn't create the event. Error: Google not connected",
		}
	}

	var busyLookupErr string
	busy, err := r.calendar.FreeBusy(ctx, user.GoogleToken, start, end)
	if err != nil {
		// Degraded backend: record the diagnostic and attempt creation
		// anyway rather than blocking the user.
		busyLookupErr = err.Error()
		busy = nil
	}

	if overlapsAny(busy, start, end) {
		suggestions := r.suggest(ctx, user.GoogleToken, start)
		return Outcome{
			Kind:        OutcomeConflict,
			Reply:       conflictReply(start, suggestions),
			Suggestions: suggestions,
		}
	}

	created, err := r.calendar.InsertEvent(ctx, user.GoogleToken, integrations.EventRequest{
		Title:       title,
		Description: description,
		Start:       start,
		End:         end,
		Attendees:   attendees,
		Timezone:    timezone,
	})
	if err != nil {
		return Outcome{
			Kind:            OutcomeFailed,
			Reply:           fmt.Sprintf("❌ I couldn't create the event. Error: %v", err),
			BusyLookupError: busyLookupErr,
		}
	}

	event := map[string]any{
		"eventId":   created.ID,
		"htmlLink":  created.HTMLLink,
		"start":     created.Start.Format(time.RFC3339),
		"end":       created.End.Format(time.RFC3339),
		"attendees": attendees,
	}
	return Outcome{Kind: OutcomeCreated, Event: event, BusyLookupError: busyLookupErr}
}

func (r *Resolver) resolveWindow(rawMessage string, args Args) (time.Time, time.Time, bool) {
	if args.Start != "" && args.End != "" {
		start, err1 := time.Parse(time.RFC3339, args.Start)
		end, err2 := time.Parse(time.RFC3339, args.End)
		if err1 == nil && err2 == nil && end.After(start) {
			return start.In(r.loc), end.In(r.loc), true
		}
	}
	return r.parser.WhenToRange(rawMessage, r.now(), r.slots.Duration)
}

func (r *Resolver) suggest(ctx context.Context, token string, desired time.Time) []Slot {
	slots, err := FindOpenSlots(desired, r.slots, func(dayStart, dayEnd time.Time) ([]integrations.Interval, error) {
		events, err := r.calendar.ListEvents(ctx, token, dayStart, dayEnd)
		if err != nil {
			return nil, err
		}
		busy := make([]integrations.Interval, 0, len(events))
		for _, ev := range events {
			busy = append(busy, integrations.Interval{Start: ev.Start, End: ev.End})
		}
		return busy, nil
	})
	if err != nil {
		return nil
	}
	return slots
}

func conflictReply(desired time.Time, suggestions []Slot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "That time (%s) is already booked.", desired.Format("Mon Jan 2 3:04pm"))
	if len(suggestions) == 0 {
		b.WriteString(" I couldn't find an open slot nearby; could you suggest another time?")
		return b.String()
	}
	b.WriteString(" Here are some open alternatives:\n")
	for i, s := range suggestions {
		fmt.Fprintf(&b, "%d. %s – %s\n", i+1, s.Start.Format("Mon Jan 2 3:04pm"), s.End.Format("3:04pm"))
	}
	b.WriteString("Would you like me to book one of these?")
	return b.String()
}
