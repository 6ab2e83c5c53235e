// Package proactive evaluates externally detected events (new mail, new
// calendar entries, new CRM contacts) against the user's standing
// instructions. It recommends tool invocations; executing them is the
// caller's decision.
package proactive

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ent0n29/penny/internal/integrations"
	"github.com/ent0n29/penny/internal/knowledge"
	"github.com/ent0n29/penny/internal/model"
	"github.com/ent0n29/penny/internal/observability"
	"github.com/ent0n29/penny/internal/store"
)

const (
	EventUnknownSenderMail = "email_from_unknown"
	EventCalendarCreated   = "calendar_event_created"
	EventContactCreated    = "hubspot_contact_created"
)

// Action is one tool invocation the model recommends.
type Action struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
	Reason     string         `json:"reason"`
}

// Decision is the structured verdict for one event.
type Decision struct {
	ShouldAct             bool     `json:"shouldAct"`
	TriggeredInstructions []string `json:"triggeredInstructions"`
	RecommendedActions    []Action `json:"recommendedActions"`
	Reasoning             string   `json:"reasoning"`
}

// Assessment wraps a Decision with the event category's fixed menu of
// suggested follow-up actions, plus sender-identity context for mail events.
type Assessment struct {
	EventType        string                `json:"event_type"`
	Decision         Decision              `json:"decision"`
	SuggestedActions []string              `json:"suggested_actions"`
	UnknownSender    bool                  `json:"unknown_sender,omitempty"`
	ExistingContact  *integrations.Contact `json:"existing_contact,omitempty"`
}

type Processor struct {
	store     store.Store
	retriever *knowledge.Retriever
	client    model.Client
	crm       integrations.CRM
	metrics   *observability.Metrics
}

func NewProcessor(st store.Store, retriever *knowledge.Retriever, client model.Client, crm integrations.CRM, metrics *observability.Metrics) *Processor {
	return &Processor{
		store:     st,
		retriever: retriever,
		client:    client,
		crm:       crm,
		metrics:   metrics,
	}
}

const decisionPromptFormat = `You are a proactive AI agent. Analyze this event and determine what actions to take based on the user's ongoing instructions.

EVENT TYPE: %s
EVENT DATA: %s
CONTEXT: %s

USER'S ONGOING INSTRUCTIONS:
%s

Determine which instructions should be triggered and what actions to take. Respond with JSON:
{
  "shouldAct": true/false,
  "triggeredInstructions": ["instruction_id_1", "instruction_id_2"],
  "recommendedActions": [
    {
      "tool": "tool_name",
      "parameters": {...},
      "reason": "why this action is needed"
    }
  ],
  "reasoning": "explanation of decisions"
}`

// ProcessEvent makes one model decision over the user's enabled instructions
// and retrieved context. A user with no enabled instructions gets an
// immediate no-act decision without a model call.
func (p *Processor) ProcessEvent(ctx context.Context, userID, eventType string, data map[string]any) (Decision, error) {
	instructions, err := p.store.ListEnabledInstructions(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("list instructions: %w", err)
	}
	if len(instructions) == 0 {
		p.countRun(eventType, "no_instructions")
		return Decision{Reasoning: "no enabled instructions"}, nil
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return Decision{}, fmt.Errorf("encode event data: %w", err)
	}
	snippets := p.retriever.Search(ctx, userID, eventType+": "+string(encoded), 3)
	contents := make([]string, 0, len(snippets))
	for _, s := range snippets {
		contents = append(contents, s.Content)
	}

	var rules strings.Builder
	for _, inst := range instructions {
		fmt.Fprintf(&rules, "- %s (trigger: %s, action: %s) [id: %s]\n", inst.Description, inst.Trigger, inst.Action, inst.ID)
	}

	temp := 0.1
	resp, err := p.client.Complete(ctx, model.Request{
		Messages: []model.Message{{
			Role: model.RoleUser,
			Content: fmt.Sprintf(decisionPromptFormat,
				eventType, string(encoded), strings.Join(contents, "\n---\n"), rules.String()),
		}},
		Temperature: &temp,
	})
	if err != nil {
		p.countRun(eventType, "error")
		return Decision{}, fmt.Errorf("decision call: %w", err)
	}

	var decision Decision
	if err := json.Unmarshal([]byte(model.ExtractJSON(resp.Content)), &decision); err != nil {
		p.countRun(eventType, "error")
		return Decision{}, fmt.Errorf("unparseable decision: %w", err)
	}

	if decision.ShouldAct {
		p.countRun(eventType, "acted")
	} else {
		p.countRun(eventType, "skipped")
	}
	return decision, nil
}

// CheckUnknownSenderEmail resolves the sender against the CRM first; a known
// contact short-circuits without a model call.
func (p *Processor) CheckUnknownSenderEmail(ctx context.Context, userID, senderEmail, subject, content string) (Assessment, error) {
	if contact := p.lookupSender(ctx, userID, senderEmail); contact != nil {
		p.countRun(EventUnknownSenderMail, "known_sender")
		return Assessment{
			EventType:       EventUnknownSenderMail,
			ExistingContact: contact,
		}, nil
	}

	decision, err := p.ProcessEvent(ctx, userID, EventUnknownSenderMail, map[string]any{
		"senderEmail":  senderEmail,
		"subject":      subject,
		"emailContent": content,
	})
	if err != nil {
		return Assessment{}, err
	}
	return Assessment{
		EventType:        EventUnknownSenderMail,
		Decision:         decision,
		UnknownSender:    true,
		SuggestedActions: []string{"create_hubspot_contact", "send_welcome_email", "add_contact_note"},
	}, nil
}

func (p *Processor) CheckCalendarEvent(ctx context.Context, userID, eventID, title string, attendees []string, start, end time.Time) (Assessment, error) {
	decision, err := p.ProcessEvent(ctx, userID, EventCalendarCreated, map[string]any{
		"eventId":   eventID,
		"title":     title,
		"attendees": attendees,
		"startTime": start.Format(time.RFC3339),
		"endTime":   end.Format(time.RFC3339),
	})
	if err != nil {
		return Assessment{}, err
	}
	return Assessment{
		EventType:        EventCalendarCreated,
		Decision:         decision,
		SuggestedActions: []string{"email_attendees", "update_hubspot_contacts", "create_follow_up_task"},
	}, nil
}

func (p *Processor) CheckContactCreated(ctx context.Context, userID, contactID, email, firstName, lastName string) (Assessment, error) {
	decision, err := p.ProcessEvent(ctx, userID, EventContactCreated, map[string]any{
		"contactId": contactID,
		"email":     email,
		"firstName": firstName,
		"lastName":  lastName,
	})
	if err != nil {
		return Assessment{}, err
	}
	return Assessment{
		EventType:        EventContactCreated,
		Decision:         decision,
		SuggestedActions: []string{"send_welcome_email", "create_follow_up_task", "add_contact_notes"},
	}, nil
}

// lookupSender returns the matching CRM contact, or nil when the sender is
// unknown or the CRM cannot answer. A lookup failure counts as unknown so
// the instruction pipeline still gets a chance to react.
func (p *Processor) lookupSender(ctx context.Context, userID, senderEmail string) *integrations.Contact {
	user, err := p.store.GetUser(ctx, userID)
	if err != nil || user.HubSpotToken == "" {
		return nil
	}
	contact, err := p.crm.FindContactByEmail(ctx, user.HubSpotToken, senderEmail)
	if err != nil {
		return nil
	}
	return contact
}

func (p *Processor) countRun(eventType, verdict string) {
	if p.metrics != nil {
		p.metrics.ProactiveRuns.WithLabelValues(eventType, verdict).Inc()
	}
}
