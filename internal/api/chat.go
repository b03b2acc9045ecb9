package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"nexusdesk/internal/model"
)

// ListConversations returns the conversations of an organization, most recent first.
// An empty status means no filter.
func (c *Client) ListConversations(ctx context.Context, organizationID, status string) ([]model.Conversation, error) {
	q := orgQuery(organizationID)
	if status != "" {
		q.Set("status", status)
	}
	var out []model.Conversation
	if err := c.doJSON(ctx, "list conversations", http.MethodGet, "/chat/conversations", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetConversation fetches a single conversation.
func (c *Client) GetConversation(ctx context.Context, id string) (model.Conversation, error) {
	var out model.Conversation
	err := c.doJSON(ctx, "get conversation", http.MethodGet, "/chat/conversations/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

// CreateConversation opens a new conversation.
func (c *Client) CreateConversation(ctx context.Context, req model.CreateConversationRequest) (model.Conversation, error) {
	var out model.Conversation
	err := c.doJSON(ctx, "create conversation", http.MethodPost, "/chat/conversations", nil, req, &out)
	return out, err
}

// ListMessages returns the ordered history of a conversation.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var out []model.Message
	path := "/chat/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.doJSON(ctx, "list messages", http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessage stores a message and returns the messages the backend created,
// the sent message first. Backends answering with a bare Message yield one
// element; the {client_message, ai_response} envelope yields one or two.
func (c *Client) SendMessage(ctx context.Context, conversationID, content string, sender model.Sender) ([]model.Message, error) {
	if err := ValidateContent(content); err != nil {
		return nil, err
	}
	body := model.SendMessageRequest{
		ConversationID: conversationID,
		Content:        content,
		Sender:         sender,
	}

	var raw json.RawMessage
	path := "/chat/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.doJSON(ctx, "send message", http.MethodPost, path, nil, body, &raw); err != nil {
		return nil, err
	}
	return decodeSent(raw)
}

func decodeSent(raw json.RawMessage) ([]model.Message, error) {
	var env model.SendMessageResponse
	if err := json.Unmarshal(raw, &env); err == nil && env.ClientMessage != nil {
		out := []model.Message{*env.ClientMessage}
		if env.AIResponse != nil {
			out = append(out, *env.AIResponse)
		}
		return out, nil
	}

	var msg model.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("send message: decode response: %w", err)
	}
	if msg.ID == "" {
		return nil, errors.New("send message: response carries no message id")
	}
	return []model.Message{msg}, nil
}

// TransferConversation hands a conversation over to a human agent.
func (c *Client) TransferConversation(ctx context.Context, id string) (model.Conversation, error) {
	var out struct {
		Conversation model.Conversation `json:"conversation"`
	}
	path := "/chat/conversations/" + url.PathEscape(id) + "/transfer"
	if err := c.doJSON(ctx, "transfer conversation", http.MethodPost, path, nil, nil, &out); err != nil {
		return model.Conversation{}, err
	}
	return out.Conversation, nil
}

// DashboardStats fetches the KPI payload of an organization.
func (c *Client) DashboardStats(ctx context.Context, organizationID string) (model.DashboardStats, error) {
	var out model.DashboardStats
	err := c.doJSON(ctx, "dashboard stats", http.MethodGet, "/dashboard/stats", orgQuery(organizationID), nil, &out)
	return out, err
}
