package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ent0n29/penny/internal/config"
	"github.com/ent0n29/penny/internal/integrations"
	"github.com/ent0n29/penny/internal/knowledge"
	"github.com/ent0n29/penny/internal/memory"
	"github.com/ent0n29/penny/internal/model"
	"github.com/ent0n29/penny/internal/observability"
	"github.com/ent0n29/penny/internal/orchestrator"
	"github.com/ent0n29/penny/internal/proactive"
	"github.com/ent0n29/penny/internal/schedule"
	"github.com/ent0n29/penny/internal/store"
	"github.com/ent0n29/penny/internal/tools"
)

var metricsSeq atomic.Int64

type stubClient struct {
	content string
}

func (c *stubClient) Complete(_ context.Context, _ model.Request) (model.Response, error) {
	return model.Response{Content: c.content}, nil
}

func (c *stubClient) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

type stubMail struct{}

func (stubMail) Send(_ context.Context, _ string, _ integrations.OutgoingMail) (integrations.SendReceipt, error) {
	return integrations.SendReceipt{ID: "msg-1"}, nil
}

func (stubMail) ListRecent(_ context.Context, _ string, _ int) ([]integrations.MailSummary, error) {
	return nil, nil
}

type stubCalendar struct{}

func (stubCalendar) InsertEvent(_ context.Context, _ string, req integrations.EventRequest) (integrations.Event, error) {
	return integrations.Event{ID: "evt-1", Start: req.Start, End: req.End}, nil
}

func (stubCalendar) ListEvents(_ context.Context, _ string, _, _ time.Time) ([]integrations.Event, error) {
	return nil, nil
}

func (stubCalendar) FreeBusy(_ context.Context, _ string, _, _ time.Time) ([]integrations.Interval, error) {
	return nil, nil
}

type stubCRM struct{}

func (stubCRM) CreateContact(_ context.Context, _ string, nc integrations.NewContact) (integrations.Contact, error) {
	return integrations.Contact{ID: "hs-new", Email: nc.Email}, nil
}

func (stubCRM) SearchContacts(_ context.Context, _, _ string) ([]integrations.Contact, error) {
	return nil, nil
}

func (stubCRM) FindContactByEmail(_ context.Context, _, _ string) (*integrations.Contact, error) {
	return nil, nil
}

func (stubCRM) ListContacts(_ context.Context, _ string, _ int) ([]integrations.Contact, error) {
	return nil, nil
}

func (stubCRM) AttachNote(_ context.Context, _, _, _ string) (string, error) {
	return "note-1", nil
}

func newTestServer(t *testing.T, reply string) (*httptest.Server, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	if err := st.UpsertUser(context.Background(), store.User{
		ID: "u1", Email: "advisor@example.com", GoogleToken: "g-tok", HubSpotToken: "h-tok",
	}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	client := &stubClient{content: reply}
	retriever := knowledge.NewRetriever(st, client, 3)
	resolver := schedule.NewResolver(st, stubCalendar{}, time.UTC, schedule.SlotConfig{})
	registry := tools.NewCatalog(tools.Deps{
		Store:     st,
		Mail:      stubMail{},
		Calendar:  stubCalendar{},
		CRM:       stubCRM{},
		Retriever: retriever,
		Model:     client,
		Resolver:  resolver,
		Location:  time.UTC,
	})
	engine := orchestrator.NewEngine(orchestrator.Deps{
		Store:     st,
		Memory:    memory.NewService(st, client, memory.Config{}),
		Retriever: retriever,
		Registry:  registry,
		Resolver:  resolver,
		Model:     client,
		Timezone:  "UTC",
	})
	metrics := observability.NewMetrics(fmt.Sprintf("test_httpapi_%d", metricsSeq.Add(1)))
	processor := proactive.NewProcessor(st, retriever, client, stubCRM{}, metrics)
	srv := New(config.Config{}, engine, processor, metrics)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, st
}

func postJSON(t *testing.T, url, userID string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error = %v", err)
	}
	return res
}

func TestChatMessageRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t, "Happy to help with that.")

	res := postJSON(t, ts.URL+"/v1/chat/message", "u1", map[string]string{"message": "hello"})
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["reply"] != "Happy to help with that." {
		t.Fatalf("reply = %v", payload["reply"])
	}
	if threadID, _ := payload["thread_id"].(string); threadID == "" {
		t.Fatalf("missing thread_id in response: %+v", payload)
	}
	if _, present := payload["tool_result"]; !present {
		t.Fatalf("missing tool_result key in response: %+v", payload)
	}
}

func TestChatMessageRequiresUserHeader(t *testing.T) {
	ts, _ := newTestServer(t, "hi")

	res := postJSON(t, ts.URL+"/v1/chat/message", "", map[string]string{"message": "hello"})
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["code"] != "missing_user" {
		t.Fatalf("code = %v, want missing_user", payload["code"])
	}
}

func TestChatMessageUnknownUser(t *testing.T) {
	ts, _ := newTestServer(t, "hi")

	res := postJSON(t, ts.URL+"/v1/chat/message", "ghost", map[string]string{"message": "hello"})
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["code"] != "invalid_user" {
		t.Fatalf("code = %v, want invalid_user", payload["code"])
	}
}

func TestChatMessageRejectsBlankMessage(t *testing.T) {
	ts, _ := newTestServer(t, "hi")

	res := postJSON(t, ts.URL+"/v1/chat/message", "u1", map[string]string{"message": "   "})
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestProactiveEventGenericRoute(t *testing.T) {
	ts, st := newTestServer(t, `{"shouldAct":false,"reasoning":"nothing to do"}`)
	if _, err := st.CreateInstruction(context.Background(), store.Instruction{
		UserID: "u1", Trigger: "anything", Action: "log it",
	}); err != nil {
		t.Fatalf("CreateInstruction: %v", err)
	}

	res := postJSON(t, ts.URL+"/v1/proactive/event", "u1", map[string]any{
		"event_type": "portfolio_rebalanced",
		"event_data": map[string]any{"account": "a-1"},
	})
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var assessment proactive.Assessment
	if err := json.NewDecoder(res.Body).Decode(&assessment); err != nil {
		t.Fatalf("decode assessment: %v", err)
	}
	if assessment.EventType != "portfolio_rebalanced" {
		t.Fatalf("EventType = %q", assessment.EventType)
	}
	if assessment.Decision.ShouldAct {
		t.Fatalf("ShouldAct = true, want model's false verdict")
	}
}

func TestProactiveEventRequiresType(t *testing.T) {
	ts, _ := newTestServer(t, "hi")

	res := postJSON(t, ts.URL+"/v1/proactive/event", "u1", map[string]any{
		"event_data": map[string]any{},
	})
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestHealthEndpoints(t *testing.T) {
	ts, _ := newTestServer(t, "hi")
	for _, path := range []string{"/healthz", "/readyz"} {
		res, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want %d", path, res.StatusCode, http.StatusOK)
		}
	}
}
