package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"nexusdesk/internal/api"
	"nexusdesk/internal/model"
)

// RefreshConversations replaces the conversation list with the backend's.
// A conversation whose cached copy is newer than the fetched one (a push
// landed while the request was in flight) keeps its cached recency and
// preview. On failure the previous list stays in place.
func (s *Store) RefreshConversations(ctx context.Context) error {
	fetched, err := s.backend.ListConversations(ctx, s.orgID, s.status)
	if err != nil {
		s.logger.Warn("refresh conversations failed, keeping previous list",
			"organization_id", s.orgID, "error", err)
		return fmt.Errorf("refresh conversations: %w", err)
	}

	s.mu.Lock()
	next := make([]model.Conversation, 0, len(fetched))
	for _, conv := range fetched {
		if i := s.indexConversation(conv.ID); i >= 0 {
			cached := s.conversations[i]
			if cached.UpdatedAt.After(conv.UpdatedAt) {
				conv.UpdatedAt = cached.UpdatedAt
				conv.LastMessage = cached.LastMessage
			}
		}
		next = append(next, conv)
	}
	sortConversations(next)
	s.conversations = next
	s.mu.Unlock()

	s.logger.Debug("conversations refreshed", "count", len(next))
	s.emit(Change{Kind: ConversationsChanged})
	return nil
}

// SelectConversation makes id the active conversation and loads its messages.
// The previous message list is cleared when the selection moves.
func (s *Store) SelectConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	moved := s.selected != id
	s.selected = id
	if moved {
		s.messages = nil
	}
	s.mu.Unlock()

	if moved {
		s.emit(Change{Kind: SelectionChanged, ConversationID: id}, Change{Kind: MessagesChanged, ConversationID: id})
	}
	if id == "" {
		return nil
	}
	return s.LoadMessages(ctx, id)
}

// LoadMessages fetches the history of the selected conversation and replaces
// the message list with it. Each load supersedes the previous one: the older
// request is cancelled and its result, if it still arrives, is discarded with
// ErrStaleResponse. Optimistic entries whose send is still in flight, and
// pushed messages that landed during the fetch but are missing from its
// result, survive the replacement.
func (s *Store) LoadMessages(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.selected != id {
		s.mu.Unlock()
		return ErrNotSelected
	}
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
	s.loadSeq++
	token := s.loadSeq
	before := make(map[string]bool, len(s.messages))
	for _, m := range s.messages {
		before[m.ID] = true
	}
	loadCtx, cancel := context.WithCancel(ctx)
	s.cancelLoad = cancel
	s.mu.Unlock()
	defer cancel()

	msgs, err := s.backend.ListMessages(loadCtx, id)

	s.mu.Lock()
	if token != s.loadSeq || s.selected != id {
		s.mu.Unlock()
		s.logger.Debug("discarding stale message load", "conversation_id", id)
		return ErrStaleResponse
	}
	s.cancelLoad = nil
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("load messages failed, keeping previous messages",
			"conversation_id", id, "error", err)
		return fmt.Errorf("load messages %s: %w", id, err)
	}

	next := make([]model.Message, 0, len(msgs))
	fetched := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		if m.ConversationID == "" {
			m.ConversationID = id
		}
		next = append(next, m)
		fetched[m.ID] = true
	}
	// Keep what arrived while the request was in flight and is not in the
	// response yet.
	for _, m := range s.messages {
		if m.Pending || (!before[m.ID] && !fetched[m.ID]) {
			next = append(next, m)
		}
	}
	s.messages = next
	s.mu.Unlock()

	s.emit(Change{Kind: MessagesChanged, ConversationID: id})
	return nil
}

// ApplyPushedMessage folds a push event into the state. Events of other types
// are ignored. The message is appended to the selected conversation's list
// unless its id is already there, and the matching conversation's preview and
// recency move forward regardless of selection.
func (s *Store) ApplyPushedMessage(ev model.PushEvent) {
	if ev.Type != model.EventNewMessage || ev.Message == nil || ev.ConversationID == "" {
		return
	}
	msg := *ev.Message
	if msg.ConversationID == "" {
		msg.ConversationID = ev.ConversationID
	}
	msg.Pending = false
	msg.CorrelationID = ""

	var changes []Change

	s.mu.Lock()
	if s.selected == ev.ConversationID && s.indexMessage(msg.ID) < 0 {
		s.messages = append(s.messages, msg)
		changes = append(changes, Change{Kind: MessagesChanged, ConversationID: ev.ConversationID})
	}
	if s.touchConversation(ev.ConversationID, msg) {
		changes = append(changes, Change{Kind: ConversationsChanged, ConversationID: ev.ConversationID})
	}
	s.mu.Unlock()

	s.emit(changes...)
}

// touchConversation moves a conversation's preview and recency to msg when msg
// is not older than what is cached, then re-sorts. Callers hold s.mu.
func (s *Store) touchConversation(id string, msg model.Message) bool {
	i := s.indexConversation(id)
	if i < 0 {
		return false
	}
	conv := &s.conversations[i]
	if !msg.CreatedAt.IsZero() && msg.CreatedAt.Before(conv.UpdatedAt) {
		return false
	}
	content := msg.Content
	conv.LastMessage = &content
	if !msg.CreatedAt.IsZero() {
		conv.UpdatedAt = msg.CreatedAt
	}
	sortConversations(s.conversations)
	return true
}

// SendMessage appends an optimistic entry, writes the message to the backend,
// swaps the entry for the stored copy and reloads the history. Content that is
// empty after trimming is rejected before any state change or call. On write
// failure the optimistic entry is removed and the error returned.
func (s *Store) SendMessage(ctx context.Context, conversationID, content string, sender model.Sender) ([]model.Message, error) {
	if err := api.ValidateContent(content); err != nil {
		return nil, err
	}

	correlation := s.newID()
	temp := model.Message{
		ID:             model.TempIDPrefix + correlation,
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
		CreatedAt:      s.now(),
		Pending:        true,
		CorrelationID:  correlation,
	}

	s.mu.Lock()
	optimistic := s.selected == conversationID
	if optimistic {
		s.messages = append(s.messages, temp)
	}
	s.mu.Unlock()
	if optimistic {
		s.emit(Change{Kind: MessagesChanged, ConversationID: conversationID})
	}

	created, err := s.backend.SendMessage(ctx, conversationID, content, sender)
	if err != nil {
		if s.dropPending(correlation) {
			s.emit(Change{Kind: MessagesChanged, ConversationID: conversationID})
		}
		s.logger.Error("send message failed", "conversation_id", conversationID, "error", err)
		return nil, fmt.Errorf("send message: %w", err)
	}

	s.emit(s.settle(conversationID, correlation, created)...)

	if err := s.LoadMessages(ctx, conversationID); err != nil &&
		!errors.Is(err, ErrStaleResponse) && !errors.Is(err, ErrNotSelected) {
		s.logger.Warn("reload after send failed", "conversation_id", conversationID, "error", err)
	}
	return created, nil
}

// settle replaces the optimistic entry identified by correlation with the
// backend's copies. A copy that already arrived by push is not duplicated.
func (s *Store) settle(conversationID, correlation string, created []model.Message) []Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changes []Change
	pos := slices.IndexFunc(s.messages, func(m model.Message) bool { return m.CorrelationID == correlation })
	if pos >= 0 {
		s.messages = slices.Delete(s.messages, pos, pos+1)
	}
	if s.selected == conversationID {
		for _, m := range created {
			if m.ConversationID == "" {
				m.ConversationID = conversationID
			}
			if s.indexMessage(m.ID) >= 0 {
				continue
			}
			if pos >= 0 && pos <= len(s.messages) {
				s.messages = slices.Insert(s.messages, pos, m)
				pos++
			} else {
				s.messages = append(s.messages, m)
			}
		}
		changes = append(changes, Change{Kind: MessagesChanged, ConversationID: conversationID})
	}
	if len(created) > 0 && s.touchConversation(conversationID, created[len(created)-1]) {
		changes = append(changes, Change{Kind: ConversationsChanged, ConversationID: conversationID})
	}
	return changes
}

func (s *Store) dropPending(correlation string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.messages)
	s.messages = slices.DeleteFunc(s.messages, func(m model.Message) bool { return m.CorrelationID == correlation })
	return len(s.messages) != n
}
