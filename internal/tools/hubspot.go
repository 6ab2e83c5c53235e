package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ent0n29/penny/internal/integrations"
	"github.com/ent0n29/penny/internal/model"
)

func (c *catalog) createContactDef() model.Tool {
	return model.Tool{
		Name:        "create_hubspot_contact",
		Description: "Create a HubSpot contact for this user",
		Parameters: objectSchema(map[string]any{
			"email":     map[string]any{"type": "string"},
			"firstname": map[string]any{"type": "string"},
			"lastname":  map[string]any{"type": "string"},
		}, "email"),
	}
}

func (c *catalog) createContact(ctx context.Context, userID string, raw json.RawMessage) Result {
	var args struct {
		Email     string `json:"email"`
		FirstName string `json:"firstname"`
		LastName  string `json:"lastname"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return Fail("bad arguments: %v", err)
	}
	if args.Email == "" {
		return Fail("email required")
	}
	token, res := c.hubspotToken(ctx, userID)
	if !res.OK {
		return res
	}
	contact, err := c.CRM.CreateContact(ctx, token, integrations.NewContact{
		Email:     args.Email,
		FirstName: args.FirstName,
		LastName:  args.LastName,
	})
	if err != nil {
		return Fail("%v", err)
	}
	return OK(map[string]any{
		"hubspotId": contact.ID,
		"contactId": contact.ID,
		"email":     args.Email,
		"firstname": args.FirstName,
		"created":   true,
	})
}

func (c *catalog) updateContactDef() model.Tool {
	return model.Tool{
		Name:        "update_hubspot_contact",
		Description: "Update a HubSpot contact by adding a note",
		Parameters: objectSchema(map[string]any{
			"contactId": map[string]any{"type": "string"},
			"note":      map[string]any{"type": "string"},
		}, "contactId", "note"),
	}
}

func (c *catalog) updateContact(ctx context.Context, userID string, raw json.RawMessage) Result {
	var args struct {
		ContactID string `json:"contactId"`
		Note      string `json:"note"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return Fail("bad arguments: %v", err)
	}
	if args.ContactID == "" || args.Note == "" {
		return Fail("contactId and note required")
	}
	token, res := c.hubspotToken(ctx, userID)
	if !res.OK {
		return res
	}
	noteID, err := c.CRM.AttachNote(ctx, token, args.ContactID, args.Note)
	if err != nil {
		return Fail("%v", err)
	}
	return OK(map[string]any{"noteId": noteID})
}

func (c *catalog) findContactDef() model.Tool {
	return model.Tool{
		Name:        "find_hubspot_contact",
		Description: "Find a HubSpot contact by name or email",
		Parameters: objectSchema(map[string]any{
			"query": map[string]any{"type": "string"},
		}, "query"),
	}
}

func (c *catalog) findContact(ctx context.Context, userID string, raw json.RawMessage) Result {
	var args struct {
		Query string `json:"query"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return Fail("bad arguments: %v", err)
	}
	if args.Query == "" {
		return Fail("query required")
	}
	token, res := c.hubspotToken(ctx, userID)
	if !res.OK {
		return res
	}
	contacts, err := c.CRM.SearchContacts(ctx, token, args.Query)
	if err != nil {
		return Fail("%v", err)
	}
	return OK(map[string]any{"results": contacts})
}

func (c *catalog) ensureContactDef() model.Tool {
	return model.Tool{
		Name:        "ensure_hubspot_contact",
		Description: "Look up a HubSpot contact by email and create it if missing",
		Parameters: objectSchema(map[string]any{
			"email":     map[string]any{"type": "string"},
			"firstname": map[string]any{"type": "string"},
			"lastname":  map[string]any{"type": "string"},
		}, "email"),
	}
}

func (c *catalog) ensureContact(ctx context.Context, userID string, raw json.RawMessage) Result {
	var args struct {
		Email     string `json:"email"`
		FirstName string `json:"firstname"`
		LastName  string `json:"lastname"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return Fail("bad arguments: %v", err)
	}
	if args.Email == "" {
		return Fail("email required")
	}
	token, res := c.hubspotToken(ctx, userID)
	if !res.OK {
		return res
	}

	existing, err := c.CRM.FindContactByEmail(ctx, token, args.Email)
	if err != nil {
		return Fail("%v", err)
	}
	if existing != nil {
		return OK(map[string]any{"created": false, "contactId": existing.ID, "email": existing.Email})
	}

	contact, err := c.CRM.CreateContact(ctx, token, integrations.NewContact{
		Email:     args.Email,
		FirstName: args.FirstName,
		LastName:  args.LastName,
	})
	if err != nil {
		return Fail("%v", err)
	}
	return OK(map[string]any{
		"created":   true,
		"contactId": contact.ID,
		"email":     args.Email,
		"firstname": args.FirstName,
	})
}

// welcomeFollowUp chains one welcome email after a brand-new contact is
// created. Lookups that matched an existing contact do not trigger it.
func welcomeFollowUp(res Result) *Invocation {
	if !res.OK {
		return nil
	}
	created, _ := res.Field("created").(bool)
	email, _ := res.Field("email").(string)
	if !created || email == "" {
		return nil
	}

	greeting := "Hi"
	if first, _ := res.Field("firstname").(string); first != "" {
		greeting = fmt.Sprintf("Hi %s", first)
	}
	args, err := json.Marshal(map[string]string{
		"to":      email,
		"subject": "Great to connect",
		"body":    fmt.Sprintf("%s,\n\nGreat to connect with you. I've added you to our records and I'm here if you need anything.\n\nBest regards", greeting),
	})
	if err != nil {
		return nil
	}
	return &Invocation{Name: "send_email", Args: args}
}
