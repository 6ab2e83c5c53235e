package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const calendarBaseURL = "https://www.googleapis.com/calendar/v3"

// CalendarClient talks to the Google Calendar REST API on the user's
// primary calendar.
type CalendarClient struct {
	hc      *http.Client
	baseURL string
}

func NewCalendarClient(hc *http.Client) *CalendarClient {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &CalendarClient{hc: hc, baseURL: calendarBaseURL}
}

type gcalDateTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

func (dt gcalDateTime) parse() time.Time {
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return t
		}
	}
	if dt.Date != "" {
		if t, err := time.Parse("2006-01-02", dt.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}

type gcalAttendee struct {
	Email string `json:"email"`
}

type gcalEvent struct {
	ID        string         `json:"id,omitempty"`
	Summary   string         `json:"summary,omitempty"`
	Desc      string         `json:"description,omitempty"`
	Start     gcalDateTime   `json:"start"`
	End       gcalDateTime   `json:"end"`
	Attendees []gcalAttendee `json:"attendees,omitempty"`
	HTMLLink  string         `json:"htmlLink,omitempty"`
	Reminders *struct {
		UseDefault bool `json:"useDefault"`
	} `json:"reminders,omitempty"`
}

func (e gcalEvent) toEvent() Event {
	ev := Event{
		ID:       e.ID,
		Summary:  e.Summary,
		Start:    e.Start.parse(),
		End:      e.End.parse(),
		HTMLLink: e.HTMLLink,
	}
	for _, a := range e.Attendees {
		ev.Attendees = append(ev.Attendees, a.Email)
	}
	return ev
}

func (c *CalendarClient) do(ctx context.Context, token, method, url string, payload any, out any) error {
	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("calendar: marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("calendar: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("calendar: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError("calendar", resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("calendar: decode response: %w", err)
		}
	}
	return nil
}

func (c *CalendarClient) InsertEvent(ctx context.Context, token string, req EventRequest) (Event, error) {
	payload := gcalEvent{
		Summary: req.Title,
		Desc:    req.Description,
		Start:   gcalDateTime{DateTime: req.Start.Format(time.RFC3339), TimeZone: req.Timezone},
		End:     gcalDateTime{DateTime: req.End.Format(time.RFC3339), TimeZone: req.Timezone},
		Reminders: &struct {
			UseDefault bool `json:"useDefault"`
		}{UseDefault: true},
	}
	for _, a := range req.Attendees {
		if a != "" {
			payload.Attendees = append(payload.Attendees, gcalAttendee{Email: a})
		}
	}

	var created gcalEvent
	url := c.baseURL + "/calendars/primary/events?sendUpdates=all"
	if err := c.do(ctx, token, http.MethodPost, url, payload, &created); err != nil {
		return Event{}, err
	}
	return created.toEvent(), nil
}

func (c *CalendarClient) ListEvents(ctx context.Context, token string, from, to time.Time) ([]Event, error) {
	q := url.Values{}
	q.Set("timeMin", from.Format(time.RFC3339))
	q.Set("timeMax", to.Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")
	q.Set("maxResults", "25")

	var listed struct {
		Items []gcalEvent `json:"items"`
	}
	url := c.baseURL + "/calendars/primary/events?" + q.Encode()
	if err := c.do(ctx, token, http.MethodGet, url, nil, &listed); err != nil {
		return nil, err
	}

	out := make([]Event, 0, len(listed.Items))
	for _, item := range listed.Items {
		out = append(out, item.toEvent())
	}
	return out, nil
}

func (c *CalendarClient) FreeBusy(ctx context.Context, token string, from, to time.Time) ([]Interval, error) {
	payload := map[string]any{
		"timeMin": from.Format(time.RFC3339),
		"timeMax": to.Format(time.RFC3339),
		"items":   []map[string]string{{"id": "primary"}},
	}

	var result struct {
		Calendars map[string]struct {
			Busy []struct {
				Start string `json:"start"`
				End   string `json:"end"`
			} `json:"busy"`
		} `json:"calendars"`
	}
	if err := c.do(ctx, token, http.MethodPost, c.baseURL+"/freeBusy", payload, &result); err != nil {
		return nil, err
	}

	var busy []Interval
	for _, window := range result.Calendars["primary"].Busy {
		start, err1 := time.Parse(time.RFC3339, window.Start)
		end, err2 := time.Parse(time.RFC3339, window.End)
		if err1 != nil || err2 != nil {
			continue
		}
		busy = append(busy, Interval{Start: start, End: end})
	}
	return busy, nil
}
