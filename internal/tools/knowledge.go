package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ent0n29/penny/internal/model"
)

func (c *catalog) queryKnowledgeDef() model.Tool {
	return model.Tool{
		Name:        "query_knowledge_base",
		Description: "Search ingested emails and CRM notes to answer questions",
		Parameters: objectSchema(map[string]any{
			"query": map[string]any{"type": "string"},
			"topK":  map[string]any{"type": "integer"},
		}, "query"),
	}
}

func (c *catalog) queryKnowledge(ctx context.Context, userID string, raw json.RawMessage) Result {
	var args struct {
		Query string `json:"query"`
		TopK  int    `json:"topK"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return Fail("bad arguments: %v", err)
	}
	if args.Query == "" {
		return Fail("query required")
	}
	if args.TopK <= 0 {
		args.TopK = 5
	}
	hits := c.Retriever.Search(ctx, userID, args.Query, args.TopK)
	return OK(map[string]any{"hits": hits})
}

func (c *catalog) parseEmailDef() model.Tool {
	return model.Tool{
		Name:        "parse_email_response",
		Description: "Parse an email reply for scheduling preferences and confirmations",
		Parameters: objectSchema(map[string]any{
			"emailContent":  map[string]any{"type": "string"},
			"originalTimes": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		}, "emailContent"),
	}
}

const parseEmailPrompt = `Parse this email response for scheduling information. Extract:
1. Preferred times mentioned
2. Availability windows
3. Any rejections of offered times
4. Alternative time suggestions
5. Confirmation of acceptance

Email content: %s

Original times offered: %s

Respond with JSON format:
{
  "preferredTimes": ["time1", "time2"],
  "rejectedTimes": ["time1", "time2"],
  "alternativeSuggestions": ["time1", "time2"],
  "confirmsMeeting": true/false,
  "needsMoreOptions": true/false,
  "notes": "any additional context"
}`

func (c *catalog) parseEmail(ctx context.Context, userID string, raw json.RawMessage) Result {
	var args struct {
		EmailContent  string   `json:"emailContent"`
		OriginalTimes []string `json:"originalTimes"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return Fail("bad arguments: %v", err)
	}
	if args.EmailContent == "" {
		return Fail("emailContent required")
	}

	temp := 0.1
	resp, err := c.Model.Complete(ctx, model.Request{
		Messages: []model.Message{{
			Role:    model.RoleUser,
			Content: fmt.Sprintf(parseEmailPrompt, args.EmailContent, strings.Join(args.OriginalTimes, ", ")),
		}},
		Temperature: &temp,
	})
	if err != nil {
		return Fail("%v", err)
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(model.ExtractJSON(resp.Content)), &parsed); err != nil {
		return Fail("unparseable model response: %v", err)
	}
	return OK(parsed)
}
