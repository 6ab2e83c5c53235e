package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists all collections in PostgreSQL. Document similarity
// search uses pgvector's cosine-distance operator.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string, embeddingDim int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool, embeddingDim); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool, embeddingDim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			timezone TEXT NOT NULL DEFAULT '',
			google_token TEXT NOT NULL DEFAULT '',
			hubspot_token TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			rolling_summary TEXT NOT NULL DEFAULT '',
			summarized_turns INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`ALTER TABLE conversations ADD COLUMN IF NOT EXISTS summarized_turns INT NOT NULL DEFAULT 0;`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user_updated ON conversations (user_id, updated_at DESC);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_results JSONB NULL,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages (conversation_id, created_at);`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS documents (
			user_id TEXT NOT NULL,
			source TEXT NOT NULL,
			source_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, source, source_id)
		);`, embeddingDim),
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			status TEXT NOT NULL,
			description TEXT NOT NULL,
			related_to TEXT NOT NULL DEFAULT '',
			due_date TIMESTAMPTZ NULL,
			history JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user_updated ON tasks (user_id, updated_at DESC);`,
		`CREATE TABLE IF NOT EXISTS instructions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			trigger TEXT NOT NULL,
			action TEXT NOT NULL,
			description TEXT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_instructions_user_enabled ON instructions (user_id, enabled);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, timezone, google_token, hubspot_token, created_at FROM users WHERE id=$1`,
		userID,
	).Scan(&u.ID, &u.Email, &u.Timezone, &u.GoogleToken, &u.HubSpotToken, &u.CreatedAt)
	if err == pgx.ErrNoRows {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, email, timezone, google_token, hubspot_token, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Timezone, &u.GoogleToken, &u.HubSpotToken, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertUser(ctx context.Context, user User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, timezone, google_token, hubspot_token, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (id) DO UPDATE SET
			email=EXCLUDED.email,
			timezone=EXCLUDED.timezone,
			google_token=EXCLUDED.google_token,
			hubspot_token=EXCLUDED.hubspot_token`,
		user.ID, user.Email, user.Timezone, user.GoogleToken, user.HubSpotToken, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, userID string) (Conversation, error) {
	now := time.Now().UTC()
	conv := Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     PlaceholderTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, user_id, title, rolling_summary, created_at, updated_at)
		 VALUES ($1,$2,$3,'',$4,$5)`,
		conv.ID, conv.UserID, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, conversationID, userID string) (Conversation, error) {
	var c Conversation
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, title, rolling_summary, summarized_turns, created_at, updated_at
		 FROM conversations WHERE id=$1 AND user_id=$2`,
		conversationID, userID,
	).Scan(&c.ID, &c.UserID, &c.Title, &c.RollingSummary, &c.SummarizedTurns, &c.CreatedAt, &c.UpdatedAt)
	if err == pgx.ErrNoRows {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) SetConversationTitle(ctx context.Context, conversationID, title string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET title=$2, updated_at=now() WHERE id=$1`,
		conversationID, title)
	if err != nil {
		return fmt.Errorf("set conversation title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetConversationSummary(ctx context.Context, conversationID, summary string, summarizedTurns int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET rolling_summary=$2, summarized_turns=$3, updated_at=now() WHERE id=$1`,
		conversationID, summary, summarizedTurns)
	if err != nil {
		return fmt.Errorf("set conversation summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	var toolResults []byte
	if len(msg.ToolResults) > 0 {
		var err error
		toolResults, err = json.Marshal(msg.ToolResults)
		if err != nil {
			return fmt.Errorf("marshal tool results: %w", err)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, tool_results, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, toolResults, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	_, err = tx.Exec(ctx,
		`UPDATE conversations SET updated_at=now() WHERE id=$1`, msg.ConversationID)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return tx.Commit(ctx)
}

func scanMessages(rows pgx.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var m Message
		var toolResults []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &toolResults, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		if len(toolResults) > 0 {
			if err := json.Unmarshal(toolResults, &m.ToolResults); err != nil {
				return nil, fmt.Errorf("unmarshal tool results: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 16
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, tool_results, created_at
		 FROM messages
		 WHERE conversation_id=$1 AND role IN ('user','assistant')
		 ORDER BY created_at DESC LIMIT $2`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	items, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order for prompt coherence.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func (s *PostgresStore) AllMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, tool_results, created_at
		 FROM messages
		 WHERE conversation_id=$1 AND role IN ('user','assistant')
		 ORDER BY created_at ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *PostgresStore) FirstUserMessage(ctx context.Context, conversationID string) (Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, tool_results, created_at
		 FROM messages
		 WHERE conversation_id=$1 AND role='user'
		 ORDER BY created_at ASC LIMIT 1`,
		conversationID)
	if err != nil {
		return Message{}, fmt.Errorf("query first user message: %w", err)
	}
	defer rows.Close()

	items, err := scanMessages(rows)
	if err != nil {
		return Message{}, err
	}
	if len(items) == 0 {
		return Message{}, ErrNotFound
	}
	return items[0], nil
}

func (s *PostgresStore) UpsertDocument(ctx context.Context, doc Document) error {
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}
	var embedding any
	if len(doc.Embedding) > 0 {
		embedding = vectorLiteral(doc.Embedding)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (user_id, source, source_id, content, embedding, updated_at)
		 VALUES ($1,$2,$3,$4,$5::vector,$6)
		 ON CONFLICT (user_id, source, source_id) DO UPDATE SET
			content=EXCLUDED.content,
			embedding=EXCLUDED.embedding,
			updated_at=EXCLUDED.updated_at`,
		doc.UserID, doc.Source, doc.SourceID, doc.Content, embedding, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) SearchDocuments(ctx context.Context, userID string, embedding []float32, k int) ([]Document, error) {
	if k <= 0 {
		k = 5
	}
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, source, source_id, content, embedding::text, updated_at
		 FROM documents
		 WHERE user_id=$1 AND embedding IS NOT NULL
		 ORDER BY embedding <=> $2::vector
		 LIMIT $3`,
		userID, vectorLiteral(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVectorSearchUnavailable, err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func (s *PostgresStore) ListDocuments(ctx context.Context, userID string, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, source, source_id, content, embedding::text, updated_at
		 FROM documents WHERE user_id=$1 LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func scanDocuments(rows pgx.Rows) ([]Document, error) {
	var out []Document
	for rows.Next() {
		var d Document
		var embedding *string
		if err := rows.Scan(&d.UserID, &d.Source, &d.SourceID, &d.Content, &embedding, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		if embedding != nil {
			vec, err := parseVectorLiteral(*embedding)
			if err != nil {
				return nil, fmt.Errorf("parse embedding: %w", err)
			}
			d.Embedding = vec
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateTask(ctx context.Context, task Task) (Task, error) {
	now := time.Now().UTC()
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = TaskStatusPending
	}
	task.CreatedAt = now
	task.UpdatedAt = now
	history, err := json.Marshal(task.History)
	if err != nil {
		return Task{}, fmt.Errorf("marshal task history: %w", err)
	}
	if task.History == nil {
		history = []byte("[]")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO tasks (id, user_id, status, description, related_to, due_date, history, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		task.ID, task.UserID, task.Status, task.Description, task.RelatedTo, task.DueDate, history, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return Task{}, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, userID, status string, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, user_id, status, description, related_to, due_date, history, created_at, updated_at
		 FROM tasks WHERE user_id=$1`
	args := []any{userID}
	if status != "" {
		query += ` AND status=$2`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY updated_at DESC LIMIT %d`, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		var history []byte
		if err := rows.Scan(&t.ID, &t.UserID, &t.Status, &t.Description, &t.RelatedTo, &t.DueDate, &history, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		if len(history) > 0 {
			if err := json.Unmarshal(history, &t.History); err != nil {
				return nil, fmt.Errorf("unmarshal task history: %w", err)
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CompleteTask(ctx context.Context, userID, taskID, notes string) error {
	event, err := json.Marshal([]TaskEvent{{At: time.Now().UTC(), Action: "completed", Notes: notes}})
	if err != nil {
		return fmt.Errorf("marshal task event: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status=$3, updated_at=now(), history = history || $4::jsonb
		 WHERE id=$1 AND user_id=$2`,
		taskID, userID, TaskStatusCompleted, event)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateInstruction(ctx context.Context, inst Instruction) (Instruction, error) {
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
	_, err := s.pool.Exec(ctx,
		`INSERT INTO instructions (id, user_id, trigger, action, description, enabled, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,TRUE,$6,$7)`,
		inst.ID, inst.UserID, inst.Trigger, inst.Action, inst.Description, inst.CreatedAt, inst.UpdatedAt)
	if err != nil {
		return Instruction{}, fmt.Errorf("create instruction: %w", err)
	}
	return inst, nil
}

func (s *PostgresStore) ListEnabledInstructions(ctx context.Context, userID string) ([]Instruction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, trigger, action, description, enabled, created_at, updated_at
		 FROM instructions WHERE user_id=$1 AND enabled=TRUE ORDER BY created_at ASC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list instructions: %w", err)
	}
	defer rows.Close()

	var out []Instruction
	for rows.Next() {
		var inst Instruction
		if err := rows.Scan(&inst.ID, &inst.UserID, &inst.Trigger, &inst.Action, &inst.Description, &inst.Enabled, &inst.CreatedAt, &inst.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan instruction row: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DisableInstruction(ctx context.Context, userID, instructionID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE instructions SET enabled=FALSE, updated_at=now() WHERE id=$1 AND user_id=$2 AND enabled=TRUE`,
		instructionID, userID)
	if err != nil {
		return fmt.Errorf("disable instruction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// vectorLiteral renders a float32 slice in pgvector's text input format,
// e.g. "[0.1,0.2,0.3]".
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func parseVectorLiteral(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, err
		}
		out = append(out, float32(f))
	}
	return out, nil
}
