package repository

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"nexusdesk/internal/model"
)

// Memory is an in-process ChatRepository, used when no database is configured.
type Memory struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	messages      map[string][]model.Message

	now func() time.Time
}

// NewMemory returns an empty repository. now defaults to time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]model.Message),
		now:           now,
	}
}

func (m *Memory) ListConversations(_ context.Context, organizationID, status string) ([]model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []model.Conversation{}
	for _, c := range m.conversations {
		if c.OrganizationID != organizationID {
			continue
		}
		if status != "" && string(c.Status) != status {
			continue
		}
		out = append(out, *c)
	}
	slices.SortStableFunc(out, func(a, b model.Conversation) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (m *Memory) GetConversation(_ context.Context, id string) (model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return model.Conversation{}, ErrNotFound
	}
	return *c, nil
}

func (m *Memory) CreateConversation(_ context.Context, req model.CreateConversationRequest) (model.Conversation, error) {
	now := m.now().UTC()
	c := model.Conversation{
		ID:             uuid.NewString(),
		OrganizationID: req.OrganizationID,
		ClientPhone:    req.ClientPhone,
		ClientName:     req.ClientName,
		Channel:        req.Channel,
		Status:         model.StatusActive,
		HandledBy:      model.HandledByAI,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	m.mu.Lock()
	m.conversations[c.ID] = &c
	m.mu.Unlock()
	return c, nil
}

func (m *Memory) TransferConversation(_ context.Context, id string) (model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[id]
	if !ok {
		return model.Conversation{}, ErrNotFound
	}
	c.Status = model.StatusTransferred
	c.HandledBy = model.HandledByHuman
	c.UpdatedAt = m.now().UTC()
	return *c, nil
}

func (m *Memory) ListMessages(_ context.Context, conversationID string) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(m.messages[conversationID]), nil
}

func (m *Memory) CreateMessage(_ context.Context, conversationID string, sender model.Sender, content string) (model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[conversationID]
	if !ok {
		return model.Message{}, ErrNotFound
	}
	msg := model.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
		CreatedAt:      m.now().UTC(),
	}
	m.messages[conversationID] = append(m.messages[conversationID], msg)

	c.UpdatedAt = msg.CreatedAt
	preview := msg.Content
	c.LastMessage = &preview
	return msg, nil
}

func (m *Memory) Stats(_ context.Context, organizationID string, now time.Time) (model.DashboardStats, error) {
	from := statsWindowStart(now)

	m.mu.RLock()
	var convs []statsConversation
	for _, c := range m.conversations {
		if c.OrganizationID != organizationID || c.CreatedAt.Before(from) {
			continue
		}
		convs = append(convs, statsConversation{
			ID:        c.ID,
			HandledBy: c.HandledBy,
			CreatedAt: c.CreatedAt.In(now.Location()),
			Messages:  slices.Clone(m.messages[c.ID]),
		})
	}
	m.mu.RUnlock()

	return computeStats(convs, now), nil
}
