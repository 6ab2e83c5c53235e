package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ent0n29/penny/internal/integrations"
	"github.com/ent0n29/penny/internal/knowledge"
	"github.com/ent0n29/penny/internal/model"
	"github.com/ent0n29/penny/internal/schedule"
	"github.com/ent0n29/penny/internal/store"
)

// Deps are the capabilities the catalogue draws on. Any nil integration makes
// the corresponding tools report a not-connected failure at call time rather
// than at registration.
type Deps struct {
	Store     store.Store
	Mail      integrations.Mail
	Calendar  integrations.Calendar
	CRM       integrations.CRM
	Retriever *knowledge.Retriever
	Model     model.Client
	Resolver  *schedule.Resolver

	Slots    schedule.SlotConfig
	Location *time.Location
	Now      func() time.Time
}

type catalog struct {
	Deps
}

// NewCatalog builds the full tool registry: email, calendar, CRM, tasks,
// standing instructions and knowledge lookup. Registration order is the
// order the definitions are presented to the model.
func NewCatalog(d Deps) *Registry {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	c := &catalog{Deps: d}

	r := NewRegistry()
	r.Register(handler(c.sendEmailDef(), c.sendEmail))
	r.Register(handler(c.manageThreadDef(), c.manageThread))
	r.Register(handler(c.scheduleEventDef(), c.scheduleEvent))
	r.Register(handler(c.upcomingEventsDef(), c.upcomingEvents))
	r.Register(handler(c.freeBusyDef(), c.freeBusy))
	r.Register(handler(c.suggestSlotsDef(), c.suggestSlots))
	r.RegisterWithFollowUp(handler(c.createContactDef(), c.createContact), welcomeFollowUp)
	r.Register(handler(c.updateContactDef(), c.updateContact))
	r.Register(handler(c.findContactDef(), c.findContact))
	r.RegisterWithFollowUp(handler(c.ensureContactDef(), c.ensureContact), welcomeFollowUp)
	r.Register(handler(c.createTaskDef(), c.createTask))
	r.Register(handler(c.checkTasksDef(), c.checkTasks))
	r.Register(handler(c.completeTaskDef(), c.completeTask))
	r.Register(handler(c.addInstructionDef(), c.addInstruction))
	r.Register(handler(c.listInstructionsDef(), c.listInstructions))
	r.Register(handler(c.removeInstructionDef(), c.removeInstruction))
	r.Register(handler(c.queryKnowledgeDef(), c.queryKnowledge))
	r.Register(handler(c.parseEmailDef(), c.parseEmail))
	return r
}

func handler(def model.Tool, fn func(ctx context.Context, userID string, args json.RawMessage) Result) Handler {
	return funcHandler{def: def, fn: fn}
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// googleToken resolves the user's Google credential, or reports the
// not-connected failure tools return verbatim.
func (c *catalog) googleToken(ctx context.Context, userID string) (string, Result) {
	user, err := c.Store.GetUser(ctx, userID)
	if err != nil || user.GoogleToken == "" {
		return "", Fail("Google not connected")
	}
	return user.GoogleToken, Result{OK: true}
}

func (c *catalog) hubspotToken(ctx context.Context, userID string) (string, Result) {
	user, err := c.Store.GetUser(ctx, userID)
	if err != nil || user.HubSpotToken == "" {
		return "", Fail("HubSpot not connected")
	}
	return user.HubSpotToken, Result{OK: true}
}
