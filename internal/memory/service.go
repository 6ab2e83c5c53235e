// Package memory manages conversation state: thread resolution, durable
// message history, the recent-turn window, auto-titling, and the rolling
// summary that compresses long conversations.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/ent0n29/penny/internal/model"
	"github.com/ent0n29/penny/internal/store"
)

const (
	defaultRecentWindow  = 16
	defaultSummaryAfter  = 40
	defaultSummaryKeep   = 20
	defaultSummaryMaxLen = 6000

	titleMaxLen = 80
)

// Config tunes the memory windows. Zero values fall back to the defaults.
type Config struct {
	// RecentWindow is how many chat turns feed the model verbatim.
	RecentWindow int
	// SummaryAfter is the turn count past which older turns get compressed.
	SummaryAfter int
	// SummaryKeep is how many recent turns stay out of the compression.
	SummaryKeep int
	// SummaryMaxLen caps the merged rolling summary in characters.
	SummaryMaxLen int
}

func (c Config) withDefaults() Config {
	if c.RecentWindow <= 0 {
		c.RecentWindow = defaultRecentWindow
	}
	if c.SummaryAfter <= 0 {
		c.SummaryAfter = defaultSummaryAfter
	}
	if c.SummaryKeep <= 0 {
		c.SummaryKeep = defaultSummaryKeep
	}
	if c.SummaryMaxLen <= 0 {
		c.SummaryMaxLen = defaultSummaryMaxLen
	}
	return c
}

type Service struct {
	store  store.Store
	client model.Client
	cfg    Config
}

func NewService(st store.Store, client model.Client, cfg Config) *Service {
	return &Service{store: st, client: client, cfg: cfg.withDefaults()}
}

// EnsureConversation resolves threadID to an existing conversation owned by
// the user, or starts a fresh one. An unknown or foreign threadID silently
// gets a new conversation rather than an error.
func (s *Service) EnsureConversation(ctx context.Context, userID, threadID string) (store.Conversation, error) {
	if threadID != "" {
		conv, err := s.store.GetConversation(ctx, threadID, userID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return store.Conversation{}, fmt.Errorf("resolve thread: %w", err)
		}
	}
	conv, err := s.store.CreateConversation(ctx, userID)
	if err != nil {
		return store.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// SaveMessage appends one turn to the conversation.
func (s *Service) SaveMessage(ctx context.Context, conversationID string, role model.Role, content string, toolResults []store.ToolInvocation) error {
	msg := store.Message{
		ConversationID: conversationID,
		Role:           string(role),
		Content:        content,
		ToolResults:    toolResults,
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// LoadRecentMessages returns the last chat turns (tool traffic excluded),
// oldest first.
func (s *Service) LoadRecentMessages(ctx context.Context, conversationID string) ([]store.Message, error) {
	msgs, err := s.store.RecentMessages(ctx, conversationID, s.cfg.RecentWindow)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	return msgs, nil
}

// MaybeSetTitle asks the model for a short title once a conversation has its
// first user message. Already-titled conversations are left alone, and any
// failure is swallowed: titling is cosmetic.
func (s *Service) MaybeSetTitle(ctx context.Context, conv store.Conversation) {
	if conv.Title != "" && conv.Title != store.PlaceholderTitle {
		return
	}
	first, err := s.store.FirstUserMessage(ctx, conv.ID)
	if err != nil {
		return
	}

	temp := 0.2
	resp, err := s.client.Complete(ctx, model.Request{
		Messages: []model.Message{{
			Role:    model.RoleUser,
			Content: fmt.Sprintf("Make a 5-8 word title for this chat:\n\n%s", first.Content),
		}},
		Temperature: &temp,
	})
	if err != nil {
		log.Printf("memory: title generation failed for conversation %s: %v", conv.ID, err)
		return
	}
	title := strings.TrimSpace(resp.Content)
	if len(title) > titleMaxLen {
		title = title[:titleMaxLen]
	}
	if title == "" {
		return
	}
	if err := s.store.SetConversationTitle(ctx, conv.ID, title); err != nil {
		log.Printf("memory: set title failed for conversation %s: %v", conv.ID, err)
	}
}

// UpdateRollingSummaryIfNeeded compresses the older portion of a long
// conversation into the rolling summary. Short conversations are a no-op,
// and so are repeat calls with no new turns: the conversation tracks how
// many leading turns the summary already covers, and only turns past that
// watermark (and outside the keep window) get summarized.
// Summarization failure is logged and dropped; the next long turn retries.
func (s *Service) UpdateRollingSummaryIfNeeded(ctx context.Context, conversationID, userID string) {
	conv, err := s.store.GetConversation(ctx, conversationID, userID)
	if err != nil {
		return
	}
	msgs, err := s.store.AllMessages(ctx, conversationID)
	if err != nil || len(msgs) < s.cfg.SummaryAfter {
		return
	}

	upto := len(msgs) - s.cfg.SummaryKeep
	if conv.SummarizedTurns >= upto {
		return
	}
	older := msgs[conv.SummarizedTurns:upto]
	var b strings.Builder
	for _, m := range older {
		fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(m.Role), m.Content)
	}

	temp := 0.2
	resp, err := s.client.Complete(ctx, model.Request{
		Messages: []model.Message{{
			Role: model.RoleUser,
			Content: "Summarize the following chat turns into a concise, factual memory that preserves\n" +
				"key decisions, preferences, entities (people, companies, symbols), and open tasks. \n" +
				"Keep under 250 words.\n\n" + b.String(),
		}},
		Temperature: &temp,
	})
	if err != nil {
		log.Printf("memory: rolling summary failed for conversation %s: %v", conversationID, err)
		return
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return
	}

	merged := s.mergeSummaries(conv.RollingSummary, summary)
	if err := s.store.SetConversationSummary(ctx, conversationID, merged, upto); err != nil {
		log.Printf("memory: set summary failed for conversation %s: %v", conversationID, err)
	}
}

// mergeSummaries concatenates the old and new summaries with a separator,
// truncated to the configured cap. Oldest material falls off first only via
// the cap; no re-summarization happens here.
func (s *Service) mergeSummaries(oldSum, newSum string) string {
	if oldSum == "" {
		if len(newSum) > s.cfg.SummaryMaxLen {
			return newSum[:s.cfg.SummaryMaxLen]
		}
		return newSum
	}
	merged := oldSum + "\n---\n" + newSum
	if len(merged) > s.cfg.SummaryMaxLen {
		merged = merged[:s.cfg.SummaryMaxLen]
	}
	return merged
}
