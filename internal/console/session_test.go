package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"nexusdesk/internal/api"
	"nexusdesk/internal/model"
	"nexusdesk/internal/store"
	"nexusdesk/internal/testutil"
)

var t0 = time.Date(2026, 1, 15, 14, 30, 0, 0, time.UTC)

// fakeBackend implements Backend in memory.
type fakeBackend struct {
	mu          sync.Mutex
	convs       []model.Conversation
	messages    map[string][]model.Message
	rules       []model.Rule
	sendErr     error
	createErr   error
	listCalls   int
	uploadCalls int
	crawlCalls  int
	nextID      int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{messages: make(map[string][]model.Message)}
}

func (f *fakeBackend) ListConversations(ctx context.Context, org, status string) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return append([]model.Conversation(nil), f.convs...), nil
}

func (f *fakeBackend) conversationLists() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *fakeBackend) ListMessages(ctx context.Context, id string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Message(nil), f.messages[id]...), nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, id, content string, sender model.Sender) ([]model.Message, error) {
	if err := api.ValidateContent(content); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.nextID++
	msg := model.Message{ID: fmt.Sprintf("srv-%d", f.nextID), ConversationID: id, Sender: sender, Content: content, CreatedAt: t0.Add(time.Minute)}
	f.messages[id] = append(f.messages[id], msg)
	return []model.Message{msg}, nil
}

func (f *fakeBackend) GetConversation(ctx context.Context, id string) (model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.convs {
		if c.ID == id {
			return c, nil
		}
	}
	return model.Conversation{}, &api.StatusError{Op: "get conversation", StatusCode: 404, Body: "not found"}
}

func (f *fakeBackend) CreateConversation(ctx context.Context, req model.CreateConversationRequest) (model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return model.Conversation{}, f.createErr
	}
	f.nextID++
	conv := model.Conversation{
		ID:             fmt.Sprintf("conv-%d", f.nextID),
		OrganizationID: req.OrganizationID,
		ClientPhone:    req.ClientPhone,
		ClientName:     req.ClientName,
		Channel:        req.Channel,
		Status:         model.StatusActive,
		HandledBy:      model.HandledByAI,
		UpdatedAt:      t0.Add(time.Hour),
	}
	f.convs = append(f.convs, conv)
	return conv, nil
}

func (f *fakeBackend) TransferConversation(ctx context.Context, id string) (model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.convs {
		if f.convs[i].ID == id {
			f.convs[i].Status = model.StatusTransferred
			f.convs[i].HandledBy = model.HandledByHuman
			return f.convs[i], nil
		}
	}
	return model.Conversation{}, &api.StatusError{Op: "transfer conversation", StatusCode: 404, Body: "not found"}
}

func (f *fakeBackend) ListRules(ctx context.Context, org string) ([]model.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Rule(nil), f.rules...), nil
}

func (f *fakeBackend) GetRule(ctx context.Context, id string) (model.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rules {
		if r.ID == id {
			return r, nil
		}
	}
	return model.Rule{}, &api.StatusError{Op: "get rule", StatusCode: 404, Body: "not found"}
}

func (f *fakeBackend) CreateRule(ctx context.Context, rule model.Rule) (model.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	rule.ID = fmt.Sprintf("rule-%d", f.nextID)
	f.rules = append(f.rules, rule)
	return rule, nil
}

func (f *fakeBackend) UpdateRule(ctx context.Context, id string, update model.RuleUpdate) (model.Rule, error) {
	return model.Rule{}, errors.New("not implemented")
}

func (f *fakeBackend) DeleteRule(ctx context.Context, id string) error {
	return &api.StatusError{Op: "delete rule", StatusCode: 500, Body: "db down"}
}

func (f *fakeBackend) ToggleRule(ctx context.Context, id string) (model.ToggleResult, error) {
	return model.ToggleResult{IsActive: false, Rule: model.Rule{ID: id}}, nil
}

func (f *fakeBackend) ListDocuments(ctx context.Context, org string) ([]model.Document, error) {
	return []model.Document{{ID: "d1", Filename: "faq.pdf", Status: model.DocumentReady}}, nil
}

func (f *fakeBackend) UploadDocument(ctx context.Context, org, filename, contentType string, size int64, r io.Reader) (model.DocumentAccepted, error) {
	if err := api.ValidateUpload(filename, contentType, size); err != nil {
		return model.DocumentAccepted{}, err
	}
	f.mu.Lock()
	f.uploadCalls++
	f.mu.Unlock()
	return model.DocumentAccepted{DocumentID: "d2"}, nil
}

func (f *fakeBackend) CrawlURL(ctx context.Context, org, rawURL string) (model.DocumentAccepted, error) {
	if err := api.ValidateCrawlURL(rawURL); err != nil {
		return model.DocumentAccepted{}, err
	}
	f.mu.Lock()
	f.crawlCalls++
	f.mu.Unlock()
	return model.DocumentAccepted{DocumentID: "d3"}, nil
}

func (f *fakeBackend) DeleteDocument(ctx context.Context, id string) error { return nil }

func (f *fakeBackend) DashboardStats(ctx context.Context, org string) (model.DashboardStats, error) {
	return model.DashboardStats{KPIs: model.KPIs{TotalChats: 4, AIResolutionRate: 75, AvgTime: "1m 45s"}}, nil
}

// fakeFeed lets tests push events by hand.
type fakeFeed struct {
	mu        sync.Mutex
	subs      map[int]func(model.PushEvent)
	next      int
	connected bool
	closed    bool
}

func newFakeFeed() *fakeFeed { return &fakeFeed{subs: make(map[int]func(model.PushEvent))} }

func (f *fakeFeed) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.closed = true
}

func (f *fakeFeed) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeFeed) Subscribe(fn func(model.PushEvent)) func() {
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *fakeFeed) push(ev model.PushEvent) {
	f.mu.Lock()
	var fns []func(model.PushEvent)
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *noticeRecorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *noticeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}

func newTestSession(b *fakeBackend, feed *fakeFeed, interval time.Duration) (*Session, *noticeRecorder) {
	rec := &noticeRecorder{}
	st := store.New(b, store.Options{OrganizationID: "org-1"})
	s := NewSession(st, feed, b, SessionOptions{
		OrganizationID: "org-1",
		PollInterval:   interval,
		Notifier:       rec,
	})
	return s, rec
}

func TestSession_PushReachesStore(t *testing.T) {
	b := newFakeBackend()
	b.convs = []model.Conversation{{ID: "1", UpdatedAt: t0}}
	feed := newFakeFeed()
	s, _ := newTestSession(b, feed, time.Hour)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	testutil.Eventually(t, time.Second, func() bool { return len(s.Store().Conversations()) == 1 }, "initial refresh")
	if err := s.SelectConversation(context.Background(), "1"); err != nil {
		t.Fatalf("SelectConversation: %v", err)
	}

	feed.push(model.PushEvent{
		Type:           model.EventNewMessage,
		ConversationID: "1",
		Message:        &model.Message{ID: "m1", Content: "hi", CreatedAt: t0.Add(time.Minute)},
	})

	msgs := s.Store().Messages()
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Errorf("Expected pushed message in store, got %+v", msgs)
	}
	if !s.Connected() {
		t.Error("Expected feed connected")
	}
}

func TestSession_PollsOnInterval(t *testing.T) {
	b := newFakeBackend()
	s, _ := newTestSession(b, newFakeFeed(), 10*time.Millisecond)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	testutil.Eventually(t, 2*time.Second, func() bool { return b.conversationLists() >= 3 }, "three refreshes")
}

func TestSession_CloseStopsUpdates(t *testing.T) {
	b := newFakeBackend()
	b.convs = []model.Conversation{{ID: "1", UpdatedAt: t0}}
	feed := newFakeFeed()
	s, _ := newTestSession(b, feed, 5*time.Millisecond)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	testutil.Eventually(t, time.Second, func() bool { return b.conversationLists() >= 2 }, "polling running")

	s.Close()
	calls := b.conversationLists()
	var changes int
	s.Store().OnChange(func(store.Change) { changes++ })

	feed.push(model.PushEvent{
		Type:           model.EventNewMessage,
		ConversationID: "1",
		Message:        &model.Message{ID: "late", CreatedAt: t0.Add(time.Hour)},
	})
	time.Sleep(30 * time.Millisecond)

	if got := b.conversationLists(); got != calls {
		t.Errorf("Polling continued after Close: %d -> %d", calls, got)
	}
	if changes != 0 {
		t.Errorf("Store changed %d times after Close", changes)
	}
	if !feed.closed {
		t.Error("Expected feed closed")
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("Expected Start after Close to fail")
	}
}

func TestSession_WriteFailureNotifies(t *testing.T) {
	b := newFakeBackend()
	b.convs = []model.Conversation{{ID: "1", UpdatedAt: t0}}
	b.sendErr = errors.New("backend down")
	s, rec := newTestSession(b, newFakeFeed(), time.Hour)
	ctx := context.Background()
	s.SelectConversation(ctx, "1")

	if _, err := s.SendMessage(ctx, "1", "olá", model.SenderAgent); err == nil {
		t.Fatal("Expected send error")
	}
	if rec.count() != 1 {
		t.Fatalf("Expected one notice, got %d", rec.count())
	}
	if rec.notices[0].Op != "send message" {
		t.Errorf("Unexpected notice %+v", rec.notices[0])
	}

	if err := s.DeleteRule(ctx, "r1"); err == nil {
		t.Fatal("Expected delete error")
	}
	if rec.count() != 2 {
		t.Errorf("Expected a notice for the failed delete, got %d", rec.count())
	}
}

func TestSession_ValidationFailureDoesNotNotify(t *testing.T) {
	b := newFakeBackend()
	s, rec := newTestSession(b, newFakeFeed(), time.Hour)

	if _, err := s.SendMessage(context.Background(), "1", "  ", model.SenderAgent); !errors.Is(err, api.ErrEmptyContent) {
		t.Errorf("Expected ErrEmptyContent, got %v", err)
	}
	if _, err := s.CrawlURL(context.Background(), "not a url"); !errors.Is(err, api.ErrInvalidURL) {
		t.Errorf("Expected ErrInvalidURL, got %v", err)
	}
	if rec.count() != 0 {
		t.Errorf("Expected no notices, got %d", rec.count())
	}
}

func TestSession_CreateConversationRefreshesList(t *testing.T) {
	b := newFakeBackend()
	s, _ := newTestSession(b, newFakeFeed(), time.Hour)

	conv, err := s.CreateConversation(context.Background(), model.CreateConversationRequest{
		ClientPhone: "+5511999999999",
		Channel:     model.ChannelWhatsApp,
	})
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if conv.OrganizationID != "org-1" {
		t.Errorf("Expected session organization filled in, got %q", conv.OrganizationID)
	}
	if convs := s.Store().Conversations(); len(convs) != 1 || convs[0].ID != conv.ID {
		t.Errorf("Expected new conversation in list, got %+v", convs)
	}
}
