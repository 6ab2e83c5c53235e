package integrations

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Interval is one busy window on a calendar.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (iv Interval) Overlaps(start, end time.Time) bool {
	return start.Before(iv.End) && iv.Start.Before(end)
}

type Event struct {
	ID        string    `json:"id"`
	Summary   string    `json:"summary"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Attendees []string  `json:"attendees,omitempty"`
	HTMLLink  string    `json:"htmlLink,omitempty"`
}

type EventRequest struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	Attendees   []string
	Timezone    string
}

type OutgoingMail struct {
	To       string
	Subject  string
	Body     string
	ThreadID string
}

type SendReceipt struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId,omitempty"`
}

// MailSummary is one received message as seen by the ingestion pass.
type MailSummary struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	To      string `json:"to,omitempty"`
	Subject string `json:"subject"`
	Snippet string `json:"snippet"`
}

type Contact struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstname,omitempty"`
	LastName  string `json:"lastname,omitempty"`
}

type NewContact struct {
	Email     string
	FirstName string
	LastName  string
}

// Mail sends and lists messages on behalf of a user identified by a bearer
// token.
type Mail interface {
	Send(ctx context.Context, token string, msg OutgoingMail) (SendReceipt, error)
	ListRecent(ctx context.Context, token string, max int) ([]MailSummary, error)
}

// Calendar reads and writes the user's primary calendar.
type Calendar interface {
	InsertEvent(ctx context.Context, token string, req EventRequest) (Event, error)
	ListEvents(ctx context.Context, token string, from, to time.Time) ([]Event, error)
	FreeBusy(ctx context.Context, token string, from, to time.Time) ([]Interval, error)
}

// CRM manages contacts and notes in the user's CRM account.
type CRM interface {
	CreateContact(ctx context.Context, token string, c NewContact) (Contact, error)
	SearchContacts(ctx context.Context, token, query string) ([]Contact, error)
	FindContactByEmail(ctx context.Context, token, email string) (*Contact, error)
	ListContacts(ctx context.Context, token string, limit int) ([]Contact, error)
	AttachNote(ctx context.Context, token, contactID, note string) (string, error)
}

func drainBody(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return string(b)
}

func statusError(provider string, resp *http.Response) error {
	return fmt.Errorf("%s: status %d: %s", provider, resp.StatusCode, drainBody(resp))
}
