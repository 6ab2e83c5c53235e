package tools

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ent0n29/penny/internal/integrations"
	"github.com/ent0n29/penny/internal/model"
	"github.com/ent0n29/penny/internal/schedule"
)

func (c *catalog) sendEmailDef() model.Tool {
	return model.Tool{
		Name:        "send_email",
		Description: "Send an email via the user's Gmail",
		Parameters: objectSchema(map[string]any{
			"to":      map[string]any{"type": "string"},
			"subject": map[string]any{"type": "string"},
			"body":    map[string]any{"type": "string"},
		}, "to", "body"),
	}
}

func (c *catalog) sendEmail(ctx context.Context, userID string, raw json.RawMessage) Result {
	var args struct {
		To      string `json:"to"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return Fail("bad arguments: %v", err)
	}
	if args.To == "" {
		return Fail("missing recipient")
	}
	token, res := c.googleToken(ctx, userID)
	if !res.OK {
		return res
	}
	receipt, err := c.Mail.Send(ctx, token, integrations.OutgoingMail{
		To:      args.To,
		Subject: args.Subject,
		Body:    args.Body,
	})
	if err != nil {
		return Fail("%v", err)
	}
	return OK(map[string]any{"id": receipt.ID})
}

func (c *catalog) manageThreadDef() model.Tool {
	return model.Tool{
		Name:        "manage_email_thread",
		Description: "Send or continue an email thread via the user's Gmail",
		Parameters: objectSchema(map[string]any{
			"to":       map[string]any{"type": "string"},
			"subject":  map[string]any{"type": "string"},
			"body":     map[string]any{"type": "string"},
			"threadId": map[string]any{"type": "string", "description": "Existing Gmail thread to reply into"},
		}, "to", "body"),
	}
}

func (c *catalog) manageThread(ctx context.Context, userID string, raw json.RawMessage) Result {
	var args struct {
		To       string `json:"to"`
		Subject  string `json:"subject"`
		Body     string `json:"body"`
		ThreadID string `json:"threadId"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return Fail("bad arguments: %v", err)
	}
	if args.To == "" {
		return Fail("missing recipient")
	}
	token, res := c.googleToken(ctx, userID)
	if !res.OK {
		return res
	}
	receipt, err := c.Mail.Send(ctx, token, integrations.OutgoingMail{
		To:       args.To,
		Subject:  args.Subject,
		Body:     args.Body,
		ThreadID: args.ThreadID,
	})
	if err != nil {
		return Fail("%v", err)
	}
	return OK(map[string]any{"id": receipt.ID, "threadId": receipt.ThreadID})
}

func (c *catalog) scheduleEventDef() model.Tool {
	return model.Tool{
		Name:        "schedule_event",
		Description: "Create a Google Calendar event for the user",
		Parameters: objectSchema(map[string]any{
			"title":       map[string]any{"type": "string", "description": "Event title/summary"},
			"attendees":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Attendee emails"},
			"start":       map[string]any{"type": "string", "description": "Start ISO datetime"},
			"end":         map[string]any{"type": "string", "description": "End ISO datetime"},
			"description": map[string]any{"type": "string"},
		}, "title", "attendees", "start", "end"),
	}
}

// scheduleEvent runs the conflict-checked creation path. The orchestrator
// intercepts this tool to get the full outcome; this handler serves direct
// registry callers with the same semantics.
func (c *catalog) scheduleEvent(ctx context.Context, userID string, raw json.RawMessage) Result {
	var args schedule.Args
	if err := decodeArgs(raw, &args); err != nil {
		return Fail("bad arguments: %v", err)
	}
	outcome := c.Resolver.Resolve(ctx, userID, args.Description, args)
	switch outcome.Kind {
	case schedule.OutcomeCreated:
		return OK(outcome.Event)
	case schedule.OutcomeConflict:
		return Result{
			OK:     false,
			Error:  "requested time is busy",
			Fields: map[string]any{"suggestions": slotFields(outcome.Suggestions)},
		}
	default:
		return Fail("%s", outcome.Reply)
	}
}

func (c *catalog) upcomingEventsDef() model.Tool {
	return model.Tool{
		Name:        "get_upcoming_events",
		Description: "Fetch upcoming Google Calendar events for the user",
		Parameters: objectSchema(map[string]any{
			"timeframe": map[string]any{"type": "string", "description": `Range like "today", "next 7 days", "this month"`},
		}, "timeframe"),
	}
}

func (c *catalog) upcomingEvents(ctx context.Context, userID string, raw json.RawMessage) Result {
	var args struct {
		Timeframe string `json:"timeframe"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return Fail("bad arguments: %v", err)
	}
	token, res := c.googleToken(ctx, userID)
	if !res.OK {
		return res
	}

	now := c.Now().In(c.Location)
	to := now.AddDate(0, 0, 7)
	switch tf := strings.ToLower(args.Timeframe); {
	case strings.Contains(tf, "today"):
		to = now.AddDate(0, 0, 1)
	case strings.Contains(tf, "month"):
		to = now.AddDate(0, 1, 0)
	}

	events, err := c.Calendar.ListEvents(ctx, token, now, to)
	if err != nil {
		return Fail("%v", err)
	}
	return OK(map[string]any{"events": eventFields(events)})
}

func (c *catalog) freeBusyDef() model.Tool {
	return model.Tool{
		Name:        "get_free_busy",
		Description: "Check whether a calendar window is free or busy",
		Parameters: objectSchema(map[string]any{
			"startISO": map[string]any{"type": "string"},
			"endISO":   map[string]any{"type": "string"},
		}, "startISO", "endISO"),
	}
}

func (c *catalog) freeBusy(ctx context.Context, userID string, raw json.RawMessage) Result {
	var args struct {
		StartISO string `json:"startISO"`
		EndISO   string `json:"endISO"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return Fail("bad arguments: %v", err)
	}
	start, err1 := time.Parse(time.RFC3339, args.StartISO)
	end, err2 := time.Parse(time.RFC3339, args.EndISO)
	if err1 != nil || err2 != nil || !end.After(start) {
		return Fail("invalid start/end ISO datetime")
	}
	token, res := c.googleToken(ctx, userID)
	if !res.OK {
		return res
	}
	busy, err := c.Calendar.FreeBusy(ctx, token, start, end)
	if err != nil {
		return Fail("%v", err)
	}
	windows := make([]map[string]string, 0, len(busy))
	for _, iv := range busy {
		windows = append(windows, map[string]string{
			"start": iv.Start.Format(time.RFC3339),
			"end":   iv.End.Format(time.RFC3339),
		})
	}
	return OK(map[string]any{"busy": windows})
}

func (c *catalog) suggestSlotsDef() model.Tool {
	return model.Tool{
		Name:        "suggest_slots",
		Description: "Find open meeting slots near a desired start time",
		Parameters: objectSchema(map[string]any{
			"desiredStartISO": map[string]any{"type": "string"},
			"durationMins":    map[string]any{"type": "integer"},
			"daysToScan":      map[string]any{"type": "integer"},
		}, "desiredStartISO"),
	}
}

func (c *catalog) suggestSlots(ctx context.Context, userID string, raw json.RawMessage) Result {
	var args struct {
		DesiredStartISO string `json:"desiredStartISO"`
		DurationMins    int    `json:"durationMins"`
		DaysToScan      int    `json:"daysToScan"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return Fail("bad arguments: %v", err)
	}
	desired, err := time.Parse(time.RFC3339, args.DesiredStartISO)
	if err != nil {
		return Fail("invalid desiredStartISO")
	}
	token, res := c.googleToken(ctx, userID)
	if !res.OK {
		return res
	}

	cfg := c.Slots
	if args.DurationMins > 0 {
		cfg.Duration = time.Duration(args.DurationMins) * time.Minute
	}
	if args.DaysToScan > 0 {
		cfg.DaysToScan = args.DaysToScan
	}

	slots, err := schedule.FindOpenSlots(desired.In(c.Location), cfg, func(dayStart, dayEnd time.Time) ([]integrations.Interval, error) {
		events, err := c.Calendar.ListEvents(ctx, token, dayStart, dayEnd)
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
		return Fail("%v", err)
	}
	return OK(map[string]any{"suggestions": slotFields(slots)})
}

func slotFields(slots []schedule.Slot) []map[string]string {
	out := make([]map[string]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, map[string]string{
			"startISO": s.Start.Format(time.RFC3339),
			"endISO":   s.End.Format(time.RFC3339),
		})
	}
	return out
}

func eventFields(events []integrations.Event) []map[string]any {
	out := make([]map[string]any, 0, len(events))
	for _, ev := range events {
		out = append(out, map[string]any{
			"id":        ev.ID,
			"summary":   ev.Summary,
			"start":     ev.Start.Format(time.RFC3339),
			"end":       ev.End.Format(time.RFC3339),
			"attendees": ev.Attendees,
		})
	}
	return out
}
