package model

import (
	"strings"
	"time"
)

// Sender identifies who authored a message
type Sender string

const (
	SenderClient Sender = "client"
	SenderAI     Sender = "ai"
	SenderAgent  Sender = "agent"
)

// Valid reports whether s is one of the known senders
func (s Sender) Valid() bool {
	switch s {
	case SenderClient, SenderAI, SenderAgent:
		return true
	}
	return false
}

// TempIDPrefix marks ids synthesized on the client for optimistic entries.
const TempIDPrefix = "tmp-"

// Message represents a chat message
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         Sender    `json:"sender"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`

	// Client-side only. Set on optimistic entries until the backend copy arrives.
	Pending       bool   `json:"pending,omitempty"`
	CorrelationID string `json:"-"`
}

// IsTemporary reports whether the message carries a client-generated id
func (m Message) IsTemporary() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// SendMessageRequest is the body of POST /chat/conversations/{id}/messages
type SendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	Sender         Sender `json:"sender"`
}

// SendMessageResponse is the answer of backends that also return the AI reply
type SendMessageResponse struct {
	ClientMessage *Message `json:"client_message"`
	AIResponse    *Message `json:"ai_response"`
}

// EventNewMessage is the push event type for a freshly stored message
const EventNewMessage = "new_message"

// PushEvent is a frame delivered over the push channel
type PushEvent struct {
	Type           string   `json:"type"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Message        *Message `json:"message,omitempty"`
}
