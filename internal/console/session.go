// Package console wires the conversation store to its update sources and
// serves the resulting state to dashboards.
package console

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"nexusdesk/internal/api"
	"nexusdesk/internal/model"
	"nexusdesk/internal/store"
)

// Backend is everything the console asks of the REST API.
type Backend interface {
	store.Backend

	GetConversation(ctx context.Context, id string) (model.Conversation, error)
	CreateConversation(ctx context.Context, req model.CreateConversationRequest) (model.Conversation, error)
	TransferConversation(ctx context.Context, id string) (model.Conversation, error)

	ListRules(ctx context.Context, organizationID string) ([]model.Rule, error)
	GetRule(ctx context.Context, id string) (model.Rule, error)
	CreateRule(ctx context.Context, rule model.Rule) (model.Rule, error)
	UpdateRule(ctx context.Context, id string, update model.RuleUpdate) (model.Rule, error)
	DeleteRule(ctx context.Context, id string) error
	ToggleRule(ctx context.Context, id string) (model.ToggleResult, error)

	ListDocuments(ctx context.Context, organizationID string) ([]model.Document, error)
	UploadDocument(ctx context.Context, organizationID, filename, contentType string, size int64, r io.Reader) (model.DocumentAccepted, error)
	CrawlURL(ctx context.Context, organizationID, rawURL string) (model.DocumentAccepted, error)
	DeleteDocument(ctx context.Context, id string) error

	DashboardStats(ctx context.Context, organizationID string) (model.DashboardStats, error)
}

// Feed is the push connection the session listens to.
type Feed interface {
	Connect(ctx context.Context) error
	Close()
	Connected() bool
	Subscribe(fn func(model.PushEvent)) (unsubscribe func())
}

// Notice tells the operator that a write did not go through.
type Notice struct {
	Op      string    `json:"op"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Notifier surfaces write failures to the operator.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// SessionOptions configure a Session.
type SessionOptions struct {
	OrganizationID string
	PollInterval   time.Duration
	Notifier       Notifier
	Logger         *slog.Logger
}

// Session is one console view: a store kept fresh by a push feed and a
// polling ticker, plus the write operations an operator can trigger.
type Session struct {
	store    *store.Store
	feed     Feed
	backend  Backend
	orgID    string
	interval time.Duration
	notifier Notifier
	logger   *slog.Logger

	mu          sync.Mutex
	started     bool
	closed      bool
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
}

// NewSession builds a session around an existing store and feed.
func NewSession(st *store.Store, feed Feed, backend Backend, opts SessionOptions) *Session {
	s := &Session{
		store:    st,
		feed:     feed,
		backend:  backend,
		orgID:    opts.OrganizationID,
		interval: opts.PollInterval,
		notifier: opts.Notifier,
		logger:   opts.Logger,
	}
	if s.interval <= 0 {
		s.interval = 10 * time.Second
	}
	if s.notifier == nil {
		s.notifier = NotifierFunc(func(Notice) {})
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// Store exposes the session's conversation store.
func (s *Session) Store() *store.Store { return s.store }

// Connected reports the push feed's connectivity.
func (s *Session) Connected() bool { return s.feed.Connected() }

// SetNotifier replaces the notifier. Call before Start.
func (s *Session) SetNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n != nil {
		s.notifier = n
	}
}

// Start subscribes the store to the feed, connects it, runs an initial
// refresh and starts polling.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("session closed")
	}
	if s.started {
		return errors.New("session already started")
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.unsubscribe = s.feed.Subscribe(s.store.ApplyPushedMessage)
	if err := s.feed.Connect(ctx); err != nil {
		s.unsubscribe()
		s.cancel()
		return err
	}

	s.wg.Add(1)
	go s.poll(ctx)
	return nil
}

func (s *Session) poll(ctx context.Context) {
	defer s.wg.Done()

	_ = s.store.RefreshConversations(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Failures are logged by the store; the next tick tries again.
			_ = s.store.RefreshConversations(ctx)
		}
	}
}

// Close stops polling, closes the feed and cancels in-flight loads. No store
// update from the feed or the ticker happens after Close returns.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel, unsubscribe := s.cancel, s.unsubscribe
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	s.feed.Close()
	s.wg.Wait()
	s.store.Close()
}

// report logs a failed write and notifies the operator. Validation failures
// are returned to the caller only.
func (s *Session) report(op string, err error) error {
	if err == nil || api.IsValidation(err) || errors.Is(err, context.Canceled) {
		return err
	}
	s.logger.Error("write failed", "op", op, "error", err)
	s.mu.Lock()
	n := s.notifier
	s.mu.Unlock()
	n.Notify(Notice{Op: op, Message: err.Error(), Time: time.Now()})
	return err
}

// SelectConversation switches the displayed conversation.
func (s *Session) SelectConversation(ctx context.Context, id string) error {
	err := s.store.SelectConversation(ctx, id)
	if errors.Is(err, store.ErrStaleResponse) {
		return nil
	}
	return err
}

// SendMessage sends content on behalf of sender through the store.
func (s *Session) SendMessage(ctx context.Context, conversationID, content string, sender model.Sender) ([]model.Message, error) {
	msgs, err := s.store.SendMessage(ctx, conversationID, content, sender)
	return msgs, s.report("send message", err)
}

// CreateConversation opens a conversation and refreshes the list.
func (s *Session) CreateConversation(ctx context.Context, req model.CreateConversationRequest) (model.Conversation, error) {
	if req.OrganizationID == "" {
		req.OrganizationID = s.orgID
	}
	conv, err := s.backend.CreateConversation(ctx, req)
	if err != nil {
		return conv, s.report("create conversation", err)
	}
	_ = s.store.RefreshConversations(ctx)
	return conv, nil
}

// GetConversation fetches one conversation from the backend, bypassing the
// cached list.
func (s *Session) GetConversation(ctx context.Context, id string) (model.Conversation, error) {
	return s.backend.GetConversation(ctx, id)
}

// TransferConversation hands a conversation to a human and refreshes the list.
func (s *Session) TransferConversation(ctx context.Context, id string) (model.Conversation, error) {
	conv, err := s.backend.TransferConversation(ctx, id)
	if err != nil {
		return conv, s.report("transfer conversation", err)
	}
	_ = s.store.RefreshConversations(ctx)
	return conv, nil
}

func (s *Session) ListRules(ctx context.Context) ([]model.Rule, error) {
	return s.backend.ListRules(ctx, s.orgID)
}

func (s *Session) GetRule(ctx context.Context, id string) (model.Rule, error) {
	return s.backend.GetRule(ctx, id)
}

func (s *Session) CreateRule(ctx context.Context, rule model.Rule) (model.Rule, error) {
	if rule.OrganizationID == "" {
		rule.OrganizationID = s.orgID
	}
	created, err := s.backend.CreateRule(ctx, rule)
	return created, s.report("create rule", err)
}

func (s *Session) UpdateRule(ctx context.Context, id string, update model.RuleUpdate) (model.Rule, error) {
	rule, err := s.backend.UpdateRule(ctx, id, update)
	return rule, s.report("update rule", err)
}

func (s *Session) DeleteRule(ctx context.Context, id string) error {
	return s.report("delete rule", s.backend.DeleteRule(ctx, id))
}

func (s *Session) ToggleRule(ctx context.Context, id string) (model.ToggleResult, error) {
	res, err := s.backend.ToggleRule(ctx, id)
	return res, s.report("toggle rule", err)
}

func (s *Session) ListDocuments(ctx context.Context) ([]model.Document, error) {
	return s.backend.ListDocuments(ctx, s.orgID)
}

// UploadDocument validates and forwards a knowledge base file.
func (s *Session) UploadDocument(ctx context.Context, filename, contentType string, size int64, r io.Reader) (model.DocumentAccepted, error) {
	res, err := s.backend.UploadDocument(ctx, s.orgID, filename, contentType, size, r)
	return res, s.report("upload document", err)
}

// CrawlURL validates and forwards a page to ingest.
func (s *Session) CrawlURL(ctx context.Context, rawURL string) (model.DocumentAccepted, error) {
	res, err := s.backend.CrawlURL(ctx, s.orgID, rawURL)
	return res, s.report("crawl url", err)
}

func (s *Session) DeleteDocument(ctx context.Context, id string) error {
	return s.report("delete document", s.backend.DeleteDocument(ctx, id))
}

func (s *Session) DashboardStats(ctx context.Context) (model.DashboardStats, error) {
	return s.backend.DashboardStats(ctx, s.orgID)
}
