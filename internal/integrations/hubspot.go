package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"
)

const hubspotBaseURL = "https://api.hubapi.com"

var emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

// HubSpotClient talks to the HubSpot CRM v3 REST API.
type HubSpotClient struct {
	hc      *http.Client
	baseURL string
}

func NewHubSpotClient(hc *http.Client) *HubSpotClient {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &HubSpotClient{hc: hc, baseURL: hubspotBaseURL}
}

type hubspotObject struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

func (o hubspotObject) toContact() Contact {
	return Contact{
		ID:        o.ID,
		Email:     o.Properties["email"],
		FirstName: o.Properties["firstname"],
		LastName:  o.Properties["lastname"],
	}
}

func (c *HubSpotClient) do(ctx context.Context, token, method, path string, payload any, out any) error {
	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("hubspot: marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("hubspot: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("hubspot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError("hubspot", resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("hubspot: decode response: %w", err)
		}
	}
	return nil
}

func (c *HubSpotClient) CreateContact(ctx context.Context, token string, nc NewContact) (Contact, error) {
	payload := map[string]any{
		"properties": map[string]string{
			"email":     nc.Email,
			"firstname": nc.FirstName,
			"lastname":  nc.LastName,
		},
	}
	var created hubspotObject
	if err := c.do(ctx, token, http.MethodPost, "/crm/v3/objects/contacts", payload, &created); err != nil {
		return Contact{}, err
	}
	return created.toContact(), nil
}

type hubspotSearchResult struct {
	Results []hubspotObject `json:"results"`
}

func (c *HubSpotClient) search(ctx context.Context, token string, filters []map[string]string, limit int) ([]Contact, error) {
	payload := map[string]any{
		"filterGroups": []map[string]any{{"filters": filters}},
		"properties":   []string{"email", "firstname", "lastname"},
	}
	if limit > 0 {
		payload["limit"] = limit
	}
	var result hubspotSearchResult
	if err := c.do(ctx, token, http.MethodPost, "/crm/v3/objects/contacts/search", payload, &result); err != nil {
		return nil, err
	}
	out := make([]Contact, 0, len(result.Results))
	for _, obj := range result.Results {
		out = append(out, obj.toContact())
	}
	return out, nil
}

// SearchContacts looks up contacts by exact email or fuzzy name tokens.
func (c *HubSpotClient) SearchContacts(ctx context.Context, token, query string) ([]Contact, error) {
	if emailPattern.MatchString(query) {
		return c.search(ctx, token, []map[string]string{
			{"propertyName": "email", "operator": "EQ", "value": query},
		}, 0)
	}
	return c.search(ctx, token, []map[string]string{
		{"propertyName": "firstname", "operator": "CONTAINS_TOKEN", "value": query},
		{"propertyName": "lastname", "operator": "CONTAINS_TOKEN", "value": query},
	}, 0)
}

func (c *HubSpotClient) FindContactByEmail(ctx context.Context, token, email string) (*Contact, error) {
	hits, err := c.search(ctx, token, []map[string]string{
		{"propertyName": "email", "operator": "EQ", "value": email},
	}, 1)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}
	return &hits[0], nil
}

// ListContacts pages the newest contacts for knowledge ingestion.
func (c *HubSpotClient) ListContacts(ctx context.Context, token string, limit int) ([]Contact, error) {
	if limit <= 0 {
		limit = 50
	}
	var result hubspotSearchResult
	path := fmt.Sprintf("/crm/v3/objects/contacts?limit=%d", limit)
	if err := c.do(ctx, token, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	out := make([]Contact, 0, len(result.Results))
	for _, obj := range result.Results {
		out = append(out, obj.toContact())
	}
	return out, nil
}

func (c *HubSpotClient) AttachNote(ctx context.Context, token, contactID, note string) (string, error) {
	payload := map[string]any{
		"properties": map[string]string{"hs_note_body": note},
	}
	var created hubspotObject
	if err := c.do(ctx, token, http.MethodPost, "/crm/v3/objects/notes", payload, &created); err != nil {
		return "", err
	}

	assocPath := fmt.Sprintf("/crm/v3/objects/notes/%s/associations/contacts/%s/note_to_contact", created.ID, contactID)
	if err := c.do(ctx, token, http.MethodPut, assocPath, map[string]any{}, nil); err != nil {
		return "", err
	}
	return created.ID, nil
}
