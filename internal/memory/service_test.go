package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/penny/internal/model"
	"github.com/ent0n29/penny/internal/store"
)

// scriptedClient answers every Complete call with the next queued reply.
type scriptedClient struct {
	replies  []string
	err      error
	requests []model.Request
}

func (c *scriptedClient) Complete(_ context.Context, req model.Request) (model.Response, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return model.Response{}, c.err
	}
	if len(c.replies) == 0 {
		return model.Response{Content: "ok"}, nil
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return model.Response{Content: reply}, nil
}

func (c *scriptedClient) Embed(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, 4), nil
}

func newTestService(t *testing.T, client model.Client) (*Service, *store.InMemoryStore, store.Conversation) {
	t.Helper()
	st := store.NewInMemoryStore()
	ctx := context.Background()
	if err := st.UpsertUser(ctx, store.User{ID: "u1", Email: "u1@example.com"}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	conv, err := st.CreateConversation(ctx, "u1")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	return NewService(st, client, Config{}), st, conv
}

func fillTurns(t *testing.T, st *store.InMemoryStore, convID string, from, n int) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i := from; i < from+n; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		msg := store.Message{
			ConversationID: convID,
			Role:           role,
			Content:        "turn",
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		if err := st.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}
}

func TestEnsureConversationReusesOwnThread(t *testing.T) {
	svc, _, conv := newTestService(t, &scriptedClient{})
	got, err := svc.EnsureConversation(context.Background(), "u1", conv.ID)
	if err != nil {
		t.Fatalf("EnsureConversation: %v", err)
	}
	if got.ID != conv.ID {
		t.Fatalf("ID = %q, want reused %q", got.ID, conv.ID)
	}
}

func TestEnsureConversationStartsFreshOnForeignThread(t *testing.T) {
	svc, st, conv := newTestService(t, &scriptedClient{})
	ctx := context.Background()
	if err := st.UpsertUser(ctx, store.User{ID: "u2", Email: "u2@example.com"}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	got, err := svc.EnsureConversation(ctx, "u2", conv.ID)
	if err != nil {
		t.Fatalf("EnsureConversation: %v", err)
	}
	if got.ID == conv.ID {
		t.Fatalf("foreign thread ID was reused")
	}
	if got.UserID != "u2" {
		t.Fatalf("UserID = %q, want u2", got.UserID)
	}
}

func TestMaybeSetTitleSetsAndSkips(t *testing.T) {
	client := &scriptedClient{replies: []string{"  Quarterly Review Planning  "}}
	svc, st, conv := newTestService(t, client)
	ctx := context.Background()
	if err := svc.SaveMessage(ctx, conv.ID, model.RoleUser, "plan the quarterly review", nil); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	svc.MaybeSetTitle(ctx, conv)
	got, err := st.GetConversation(ctx, conv.ID, "u1")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got.Title != "Quarterly Review Planning" {
		t.Fatalf("Title = %q, want trimmed model title", got.Title)
	}
	if len(client.requests) != 1 {
		t.Fatalf("model calls = %d, want 1", len(client.requests))
	}

	// A second pass on the titled conversation must not call the model.
	svc.MaybeSetTitle(ctx, got)
	if len(client.requests) != 1 {
		t.Fatalf("model calls = %d after second pass, want still 1", len(client.requests))
	}
}

func TestMaybeSetTitleSwallowsModelFailure(t *testing.T) {
	client := &scriptedClient{err: errors.New("model down")}
	svc, st, conv := newTestService(t, client)
	ctx := context.Background()
	if err := svc.SaveMessage(ctx, conv.ID, model.RoleUser, "hello", nil); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	svc.MaybeSetTitle(ctx, conv)
	got, err := st.GetConversation(ctx, conv.ID, "u1")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got.Title != store.PlaceholderTitle {
		t.Fatalf("Title = %q, want untouched placeholder", got.Title)
	}
}

func TestRollingSummaryNoOpOnShortConversation(t *testing.T) {
	client := &scriptedClient{}
	svc, st, conv := newTestService(t, client)
	fillTurns(t, st, conv.ID, 0, 10)

	svc.UpdateRollingSummaryIfNeeded(context.Background(), conv.ID, "u1")
	if len(client.requests) != 0 {
		t.Fatalf("model calls = %d for short conversation, want 0", len(client.requests))
	}
}

func TestRollingSummaryCompressesOlderTurns(t *testing.T) {
	client := &scriptedClient{replies: []string{"Client prefers morning meetings."}}
	svc, st, conv := newTestService(t, client)
	fillTurns(t, st, conv.ID, 0, 40)
	ctx := context.Background()

	svc.UpdateRollingSummaryIfNeeded(ctx, conv.ID, "u1")
	got, err := st.GetConversation(ctx, conv.ID, "u1")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got.RollingSummary != "Client prefers morning meetings." {
		t.Fatalf("RollingSummary = %q", got.RollingSummary)
	}
	if len(client.requests) != 1 {
		t.Fatalf("model calls = %d, want 1", len(client.requests))
	}
	// Only turns outside the keep window go to the summarizer: 40 - 20 lines.
	prompt := client.requests[0].Messages[0].Content
	if got := strings.Count(prompt, "turn\n"); got != 20 {
		t.Fatalf("summarized %d turns, want 20", got)
	}
}

func TestRollingSummaryRepeatCallIsNoOp(t *testing.T) {
	client := &scriptedClient{replies: []string{"Client prefers morning meetings."}}
	svc, st, conv := newTestService(t, client)
	fillTurns(t, st, conv.ID, 0, 40)
	ctx := context.Background()

	svc.UpdateRollingSummaryIfNeeded(ctx, conv.ID, "u1")
	first, err := st.GetConversation(ctx, conv.ID, "u1")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}

	// No new turns since the first pass: the summary must not grow and the
	// model must not be consulted again.
	svc.UpdateRollingSummaryIfNeeded(ctx, conv.ID, "u1")
	second, err := st.GetConversation(ctx, conv.ID, "u1")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if second.RollingSummary != first.RollingSummary {
		t.Fatalf("RollingSummary changed on repeat call: %q -> %q", first.RollingSummary, second.RollingSummary)
	}
	if len(client.requests) != 1 {
		t.Fatalf("model calls = %d after repeat call, want 1", len(client.requests))
	}
}

func TestRollingSummaryOnlyCoversNewTurns(t *testing.T) {
	client := &scriptedClient{replies: []string{"first pass", "second pass"}}
	svc, st, conv := newTestService(t, client)
	fillTurns(t, st, conv.ID, 0, 40)
	ctx := context.Background()

	svc.UpdateRollingSummaryIfNeeded(ctx, conv.ID, "u1")
	fillTurns(t, st, conv.ID, 40, 10)
	svc.UpdateRollingSummaryIfNeeded(ctx, conv.ID, "u1")

	got, err := st.GetConversation(ctx, conv.ID, "u1")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got.RollingSummary != "first pass\n---\nsecond pass" {
		t.Fatalf("RollingSummary = %q", got.RollingSummary)
	}
	if len(client.requests) != 2 {
		t.Fatalf("model calls = %d, want 2", len(client.requests))
	}
	// The second pass compresses only the 10 turns that slid past the keep
	// window since the first pass.
	prompt := client.requests[1].Messages[0].Content
	if n := strings.Count(prompt, "turn\n"); n != 10 {
		t.Fatalf("second pass summarized %d turns, want 10", n)
	}
}

func TestRollingSummaryMergeIsCapped(t *testing.T) {
	client := &scriptedClient{replies: []string{strings.Repeat("b", 7000)}}
	svc, st, conv := newTestService(t, client)
	fillTurns(t, st, conv.ID, 0, 40)
	ctx := context.Background()
	if err := st.SetConversationSummary(ctx, conv.ID, strings.Repeat("a", 500), 0); err != nil {
		t.Fatalf("SetConversationSummary: %v", err)
	}

	svc.UpdateRollingSummaryIfNeeded(ctx, conv.ID, "u1")
	got, err := st.GetConversation(ctx, conv.ID, "u1")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if len(got.RollingSummary) != 6000 {
		t.Fatalf("len(RollingSummary) = %d, want capped 6000", len(got.RollingSummary))
	}
	if !strings.HasPrefix(got.RollingSummary, strings.Repeat("a", 500)+"\n---\n") {
		t.Fatalf("merged summary does not keep old material first")
	}
}

func TestLoadRecentMessagesHonorsWindow(t *testing.T) {
	svc, st, conv := newTestService(t, &scriptedClient{})
	fillTurns(t, st, conv.ID, 0, 30)

	msgs, err := svc.LoadRecentMessages(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("LoadRecentMessages: %v", err)
	}
	if len(msgs) != defaultRecentWindow {
		t.Fatalf("len(msgs) = %d, want %d", len(msgs), defaultRecentWindow)
	}
}
