package store

import (
	"context"
	"errors"
	"time"
)

const PlaceholderTitle = "Untitled chat"

// User carries identity plus opaque per-provider credentials. Tokens are
// issued and refreshed by the auth subsystem; an empty token means the
// provider is not connected for this user.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Timezone     string    `json:"timezone,omitempty"`
	GoogleToken  string    `json:"-"`
	HubSpotToken string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Conversation struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	Title          string `json:"title"`
	RollingSummary string `json:"rolling_summary"`
	// SummarizedTurns counts the leading chat turns already folded into
	// RollingSummary, so repeat summarization passes skip covered ground.
	SummarizedTurns int       `json:"summarized_turns"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ToolInvocation is the evidence attached to an assistant message for each
// tool call executed during its turn.
type ToolInvocation struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
}

// Message is immutable once written. The engine only ever appends.
type Message struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversation_id"`
	Role           string           `json:"role"`
	Content        string           `json:"content"`
	ToolResults    []ToolInvocation `json:"tool_results,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Document is one ingested knowledge-base entry, deduplicated by
// (user_id, source, source_id).
type Document struct {
	UserID    string    `json:"user_id"`
	Source    string    `json:"source"`
	SourceID  string    `json:"source_id"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TaskEvent struct {
	At     time.Time `json:"at"`
	Action string    `json:"action"`
	Notes  string    `json:"notes,omitempty"`
}

type Task struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Status      string      `json:"status"`
	Description string      `json:"description"`
	RelatedTo   string      `json:"related_to,omitempty"`
	DueDate     *time.Time  `json:"due_date,omitempty"`
	History     []TaskEvent `json:"history"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

const (
	TaskStatusPending   = "pending"
	TaskStatusCompleted = "completed"
)

// Instruction is a user-defined standing rule of the form trigger -> action.
// Removal flips Enabled to false so historical triggers stay auditable.
type Instruction struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Trigger     string    `json:"trigger"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

var (
	ErrNotFound = errors.New("not found")

	// ErrVectorSearchUnavailable signals that the backend cannot serve a
	// similarity query; callers fall back to a brute-force scan.
	ErrVectorSearchUnavailable = errors.New("vector search unavailable")
)

// Store persists conversations, messages, knowledge documents, tasks and
// standing instructions.
type Store interface {
	GetUser(ctx context.Context, userID string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpsertUser(ctx context.Context, user User) error

	CreateConversation(ctx context.Context, userID string) (Conversation, error)
	GetConversation(ctx context.Context, conversationID, userID string) (Conversation, error)
	SetConversationTitle(ctx context.Context, conversationID, title string) error
	SetConversationSummary(ctx context.Context, conversationID, summary string, summarizedTurns int) error

	AppendMessage(ctx context.Context, msg Message) error
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	AllMessages(ctx context.Context, conversationID string) ([]Message, error)
	FirstUserMessage(ctx context.Context, conversationID string) (Message, error)

	UpsertDocument(ctx context.Context, doc Document) error
	SearchDocuments(ctx context.Context, userID string, embedding []float32, k int) ([]Document, error)
	ListDocuments(ctx context.Context, userID string, limit int) ([]Document, error)

	CreateTask(ctx context.Context, task Task) (Task, error)
	ListTasks(ctx context.Context, userID, status string, limit int) ([]Task, error)
	CompleteTask(ctx context.Context, userID, taskID, notes string) error

	CreateInstruction(ctx context.Context, inst Instruction) (Instruction, error)
	ListEnabledInstructions(ctx context.Context, userID string) ([]Instruction, error)
	DisableInstruction(ctx context.Context, userID, instructionID string) error

	Close() error
}
