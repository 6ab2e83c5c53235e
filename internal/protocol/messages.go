// Package protocol defines the websocket chat envelopes.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ent0n29/penny/internal/store"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeChatMessage MessageType = "chat_message"
	TypeChatReply   MessageType = "chat_reply"
	TypeErrorEvent  MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ChatMessage is one inbound user turn. ThreadID is empty for a fresh
// conversation.
type ChatMessage struct {
	Type     MessageType `json:"type"`
	Message  string      `json:"message"`
	ThreadID string      `json:"thread_id,omitempty"`
}

// ChatReply carries the assistant's reply for one turn, with tool evidence
// when any tool ran.
type ChatReply struct {
	Type        MessageType            `json:"type"`
	Reply       string                 `json:"reply"`
	ThreadID    string                 `json:"thread_id"`
	ToolResults []store.ToolInvocation `json:"tool_result,omitempty"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

// ParseClientMessage decodes and validates one inbound frame.
func ParseClientMessage(raw []byte) (ChatMessage, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ChatMessage{}, fmt.Errorf("invalid envelope: %w", err)
	}
	if env.Type != TypeChatMessage {
		return ChatMessage{}, ErrUnsupportedType
	}

	var msg ChatMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ChatMessage{}, err
	}
	if msg.Message == "" {
		return ChatMessage{}, errors.New("invalid chat_message: empty message")
	}
	return msg, nil
}

func NewChatReply(reply, threadID string, toolResults []store.ToolInvocation) ChatReply {
	return ChatReply{
		Type:        TypeChatReply,
		Reply:       reply,
		ThreadID:    threadID,
		ToolResults: toolResults,
	}
}

func NewErrorEvent(code, detail string) ErrorEvent {
	return ErrorEvent{Type: TypeErrorEvent, Code: code, Detail: detail}
}
