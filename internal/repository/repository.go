// Package repository persists conversations and messages for the reference backend.
package repository

import (
	"context"
	"errors"
	"time"

	"nexusdesk/internal/model"
)

// ErrNotFound is returned when the requested conversation does not exist.
var ErrNotFound = errors.New("not found")

// ChatRepository is the persistence port of the chat API.
type ChatRepository interface {
	// ListConversations returns an organization's conversations ordered by
	// updated_at descending. An empty status means every status.
	ListConversations(ctx context.Context, organizationID, status string) ([]model.Conversation, error)
	GetConversation(ctx context.Context, id string) (model.Conversation, error)
	CreateConversation(ctx context.Context, req model.CreateConversationRequest) (model.Conversation, error)
	// TransferConversation hands the conversation to a human agent.
	TransferConversation(ctx context.Context, id string) (model.Conversation, error)

	// ListMessages returns a conversation's messages ordered by created_at.
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	// CreateMessage stores a message and moves the conversation's recency
	// and preview to it.
	CreateMessage(ctx context.Context, conversationID string, sender model.Sender, content string) (model.Message, error)

	Stats(ctx context.Context, organizationID string, now time.Time) (model.DashboardStats, error)
}
