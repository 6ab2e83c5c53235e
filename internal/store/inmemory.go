package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process store for local/dev use and tests.
// It has no vector index, so SearchDocuments always reports unavailable and
// callers exercise the brute-force fallback path.
type InMemoryStore struct {
	mu            sync.RWMutex
	users         map[string]User
	conversations map[string]Conversation
	messages      map[string][]Message
	documents     map[string][]Document
	tasks         map[string][]Task
	instructions  map[string][]Instruction
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:         make(map[string]User),
		conversations: make(map[string]Conversation),
		messages:      make(map[string][]Message),
		documents:     make(map[string][]Document),
		tasks:         make(map[string][]Task),
		instructions:  make(map[string][]Instruction),
	}
}

func (s *InMemoryStore) GetUser(_ context.Context, userID string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *InMemoryStore) ListUsers(_ context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) UpsertUser(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.ID] = user
	return nil
}

func (s *InMemoryStore) CreateConversation(_ context.Context, userID string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	conv := Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     PlaceholderTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations[conv.ID] = conv
	return conv, nil
}

func (s *InMemoryStore) GetConversation(_ context.Context, conversationID, userID string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[conversationID]
	if !ok || conv.UserID != userID {
		return Conversation{}, ErrNotFound
	}
	return conv, nil
}

func (s *InMemoryStore) SetConversationTitle(_ context.Context, conversationID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	conv.Title = title
	conv.UpdatedAt = time.Now().UTC()
	s.conversations[conversationID] = conv
	return nil
}

func (s *InMemoryStore) SetConversationSummary(_ context.Context, conversationID, summary string, summarizedTurns int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	conv.RollingSummary = summary
	conv.SummarizedTurns = summarizedTurns
	conv.UpdatedAt = time.Now().UTC()
	s.conversations[conversationID] = conv
	return nil
}

func (s *InMemoryStore) AppendMessage(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		return ErrNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	conv.UpdatedAt = time.Now().UTC()
	s.conversations[msg.ConversationID] = conv
	return nil
}

func (s *InMemoryStore) chatMessages(conversationID string) []Message {
	var out []Message
	for _, m := range s.messages[conversationID] {
		if m.Role == "user" || m.Role == "assistant" {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *InMemoryStore) RecentMessages(_ context.Context, conversationID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.chatMessages(conversationID)
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (s *InMemoryStore) AllMessages(_ context.Context, conversationID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chatMessages(conversationID), nil
}

func (s *InMemoryStore) FirstUserMessage(_ context.Context, conversationID string) (Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.chatMessages(conversationID) {
		if m.Role == "user" {
			return m, nil
		}
	}
	return Message{}, ErrNotFound
}

func (s *InMemoryStore) UpsertDocument(_ context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}
	docs := s.documents[doc.UserID]
	for i, d := range docs {
		if d.Source == doc.Source && d.SourceID == doc.SourceID {
			docs[i] = doc
			return nil
		}
	}
	s.documents[doc.UserID] = append(docs, doc)
	return nil
}

func (s *InMemoryStore) SearchDocuments(_ context.Context, _ string, _ []float32, _ int) ([]Document, error) {
	return nil, ErrVectorSearchUnavailable
}

func (s *InMemoryStore) ListDocuments(_ context.Context, userID string, limit int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.documents[userID]
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	out := make([]Document, len(docs))
	copy(out, docs)
	return out, nil
}

func (s *InMemoryStore) CreateTask(_ context.Context, task Task) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = TaskStatusPending
	}
	task.CreatedAt = now
	task.UpdatedAt = now
	s.tasks[task.UserID] = append(s.tasks[task.UserID], task)
	return task, nil
}

func (s *InMemoryStore) ListTasks(_ context.Context, userID, status string, limit int) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Task
	for _, t := range s.tasks[userID] {
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) CompleteTask(_ context.Context, userID, taskID, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := s.tasks[userID]
	for i, t := range tasks {
		if t.ID == taskID {
			now := time.Now().UTC()
			t.Status = TaskStatusCompleted
			t.UpdatedAt = now
			t.History = append(t.History, TaskEvent{At: now, Action: "completed", Notes: notes})
			tasks[i] = t
			return nil
		}
	}
	return ErrNotFound
}

func (s *InMemoryStore) CreateInstruction(_ context.Context, inst Instruction) (Instruction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	if strings.TrimSpace(inst.Description) == "" {
		inst.Description = inst.Trigger + " -> " + inst.Action
	}
	inst.Enabled = true
	inst.CreatedAt = now
	inst.UpdatedAt = now
	s.instructions[inst.UserID] = append(s.instructions[inst.UserID], inst)
	return inst, nil
}

func (s *InMemoryStore) ListEnabledInstructions(_ context.Context, userID string) ([]Instruction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Instruction
	for _, inst := range s.instructions[userID] {
		if inst.Enabled {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (s *InMemoryStore) DisableInstruction(_ context.Context, userID, instructionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	insts := s.instructions[userID]
	for i, inst := range insts {
		if inst.ID == instructionID && inst.Enabled {
			inst.Enabled = false
			inst.UpdatedAt = time.Now().UTC()
			insts[i] = inst
			return nil
		}
	}
	return ErrNotFound
}

func (s *InMemoryStore) Close() error { return nil }
