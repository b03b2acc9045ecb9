// Package store keeps the console's view of conversations convergent with the
// backend while updates arrive from polling, the push feed and local sends.
package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"nexusdesk/internal/model"
)

var (
	// ErrStaleResponse is returned by a message load whose result was
	// discarded because a newer load or another selection superseded it.
	ErrStaleResponse = errors.New("stale response discarded")

	// ErrNotSelected is returned when loading messages for a conversation
	// that is not the selected one.
	ErrNotSelected = errors.New("conversation is not selected")
)

// Backend is the slice of the REST client the store depends on.
type Backend interface {
	ListConversations(ctx context.Context, organizationID, status string) ([]model.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	SendMessage(ctx context.Context, conversationID, content string, sender model.Sender) ([]model.Message, error)
}

// ChangeKind says which part of the state moved.
type ChangeKind int

const (
	ConversationsChanged ChangeKind = iota + 1
	MessagesChanged
	SelectionChanged
)

func (k ChangeKind) String() string {
	switch k {
	case ConversationsChanged:
		return "conversations"
	case MessagesChanged:
		return "messages"
	case SelectionChanged:
		return "selection"
	}
	return "unknown"
}

// Change is passed to listeners after every mutation.
type Change struct {
	Kind           ChangeKind
	ConversationID string
}

// Options configure a Store.
type Options struct {
	OrganizationID string
	// StatusFilter restricts RefreshConversations to one status. Empty means all.
	StatusFilter string
	Logger       *slog.Logger
	// Now and NewID are replaced in tests.
	Now   func() time.Time
	NewID func() string
}

// Store holds the conversation list and the message list of the selected
// conversation. All methods are safe for concurrent use; listeners run
// outside the lock on the goroutine that caused the change.
type Store struct {
	backend Backend
	orgID   string
	status  string
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string

	mu            sync.Mutex
	conversations []model.Conversation
	selected      string
	messages      []model.Message
	loadSeq       uint64
	cancelLoad    context.CancelFunc

	listenerMu   sync.Mutex
	listeners    map[int]func(Change)
	nextListener int
}

// New returns an empty store backed by backend.
func New(backend Backend, opts Options) *Store {
	s := &Store{
		backend:   backend,
		orgID:     opts.OrganizationID,
		status:    opts.StatusFilter,
		logger:    opts.Logger,
		now:       opts.Now,
		newID:     opts.NewID,
		listeners: make(map[int]func(Change)),
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// OnChange registers fn and returns a function that removes it.
func (s *Store) OnChange(fn func(Change)) (remove func()) {
	s.listenerMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.listenerMu.Unlock()

	return func() {
		s.listenerMu.Lock()
		delete(s.listeners, id)
		s.listenerMu.Unlock()
	}
}

func (s *Store) emit(changes ...Change) {
	if len(changes) == 0 {
		return
	}
	s.listenerMu.Lock()
	fns := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenerMu.Unlock()

	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}

// Conversations returns a copy of the list, most recently active first.
func (s *Store) Conversations() []model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.conversations)
}

// Conversation returns the cached conversation with the given id.
func (s *Store) Conversation(id string) (model.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexConversation(id); i >= 0 {
		return s.conversations[i], true
	}
	return model.Conversation{}, false
}

// Messages returns a copy of the selected conversation's messages.
func (s *Store) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// Selected returns the selected conversation id, empty when none.
func (s *Store) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Close cancels any in-flight message load.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelLoad != nil {
		s.cancelLoad()
		s.cancelLoad = nil
	}
	// Bumping the sequence makes any response still in flight stale.
	s.loadSeq++
}

func (s *Store) indexConversation(id string) int {
	return slices.IndexFunc(s.conversations, func(c model.Conversation) bool { return c.ID == id })
}

func (s *Store) indexMessage(id string) int {
	return slices.IndexFunc(s.messages, func(m model.Message) bool { return m.ID == id })
}

// sortConversations orders by updated_at descending, keeping ties stable.
func sortConversations(convs []model.Conversation) {
	slices.SortStableFunc(convs, func(a, b model.Conversation) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
}
