package integrations

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const gmailBaseURL = "https://gmail.googleapis.com/gmail/v1"

// GmailClient talks to the Gmail REST API on behalf of a user token.
type GmailClient struct {
	hc      *http.Client
	baseURL string
}

func NewGmailClient(hc *http.Client) *GmailClient {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &GmailClient{hc: hc, baseURL: gmailBaseURL}
}

func (c *GmailClient) Send(ctx context.Context, token string, msg OutgoingMail) (SendReceipt, error) {
	subject := msg.Subject
	if subject == "" {
		subject = "No subject"
	}
	raw := strings.Join([]string{"To: " + msg.To, "Subject: " + subject, "", msg.Body}, "\n")

	payload := map[string]string{
		"raw": base64.RawURLEncoding.EncodeToString([]byte(raw)),
	}
	if msg.ThreadID != "" {
		payload["threadId"] = msg.ThreadID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return SendReceipt{}, fmt.Errorf("gmail: marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/users/me/messages/send", bytes.NewReader(body))
	if err != nil {
		return SendReceipt{}, fmt.Errorf("gmail: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return SendReceipt{}, fmt.Errorf("gmail: send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return SendReceipt{}, statusError("gmail", resp)
	}

	var receipt SendReceipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return SendReceipt{}, fmt.Errorf("gmail: decode response: %w", err)
	}
	return receipt, nil
}

type gmailRef struct {
	ID string `json:"id"`
}

type gmailHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type gmailMessage struct {
	ID      string `json:"id"`
	Snippet string `json:"snippet"`
	Payload struct {
		Headers []gmailHeader `json:"headers"`
	} `json:"payload"`
}

func (m gmailMessage) header(name string) string {
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// ListRecent fetches the newest messages in the user's mailbox with their
// snippets and routing headers, for knowledge ingestion.
func (c *GmailClient) ListRecent(ctx context.Context, token string, max int) ([]MailSummary, error) {
	if max <= 0 {
		max = 50
	}
	var listing struct {
		Messages []gmailRef `json:"messages"`
	}
	url := fmt.Sprintf("%s/users/me/messages?maxResults=%d", c.baseURL, max)
	if err := c.get(ctx, token, url, &listing); err != nil {
		return nil, err
	}

	out := make([]MailSummary, 0, len(listing.Messages))
	for _, ref := range listing.Messages {
		var msg gmailMessage
		url := fmt.Sprintf("%s/users/me/messages/%s?format=full", c.baseURL, ref.ID)
		if err := c.get(ctx, token, url, &msg); err != nil {
			return nil, err
		}
		out = append(out, MailSummary{
			ID:      msg.ID,
			From:    msg.header("From"),
			To:      msg.header("To"),
			Subject: msg.header("Subject"),
			Snippet: msg.Snippet,
		})
	}
	return out, nil
}

func (c *GmailClient) get(ctx context.Context, token, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("gmail: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("gmail: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError("gmail", resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("gmail: decode response: %w", err)
	}
	return nil
}
