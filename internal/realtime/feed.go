// Package realtime maintains the console's push connection to the backend and
// fans parsed events out to subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"nexusdesk/internal/model"
)

var (
	ErrAlreadyStarted = errors.New("feed already started")
	ErrClosed         = errors.New("feed closed")
)

// Options configure a Feed.
type Options struct {
	// URL is the push endpoint base, e.g. ws://localhost:8002/ws. The client
	// id is appended as the last path segment.
	URL string
	// ClientID identifies the session. A random id is generated when empty.
	ClientID string
	// Reconnect redials with exponential backoff after the connection drops.
	// When false the feed stays disconnected until a new Feed is started.
	Reconnect  bool
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Dialer     *websocket.Dialer
	Logger     *slog.Logger
}

// Feed is a single push connection with a subscription interface.
type Feed struct {
	endpoint   string
	clientID   string
	reconnect  bool
	minBackoff time.Duration
	maxBackoff time.Duration
	dialer     *websocket.Dialer
	logger     *slog.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	last      *model.PushEvent
	started   bool
	closed    bool
	cancel    context.CancelFunc
	done      chan struct{}
	writeMu   sync.Mutex
	subsMu    sync.Mutex
	subs      map[int]func(model.PushEvent)
	nextSubID int
}

// New builds a feed. Nothing is dialled until Connect.
func New(opts Options) *Feed {
	f := &Feed{
		clientID:   opts.ClientID,
		reconnect:  opts.Reconnect,
		minBackoff: opts.MinBackoff,
		maxBackoff: opts.MaxBackoff,
		dialer:     opts.Dialer,
		logger:     opts.Logger,
		subs:       make(map[int]func(model.PushEvent)),
	}
	if f.clientID == "" {
		f.clientID = uuid.NewString()
	}
	if f.minBackoff <= 0 {
		f.minBackoff = time.Second
	}
	if f.maxBackoff < f.minBackoff {
		f.maxBackoff = 30 * time.Second
		if f.maxBackoff < f.minBackoff {
			f.maxBackoff = f.minBackoff
		}
	}
	if f.dialer == nil {
		f.dialer = websocket.DefaultDialer
	}
	if f.logger == nil {
		f.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	f.endpoint = strings.TrimRight(opts.URL, "/") + "/" + url.PathEscape(f.clientID)
	f.logger = f.logger.With("client_id", f.clientID)
	return f
}

// ClientID returns the session identifier the feed connects with.
func (f *Feed) ClientID() string { return f.clientID }

// Connected reports whether the connection is currently open.
func (f *Feed) Connected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.conn != nil
}

// LastEvent returns the most recently received event.
func (f *Feed) LastEvent() (model.PushEvent, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.last == nil {
		return model.PushEvent{}, false
	}
	return *f.last, true
}

// Subscribe registers fn for every well-formed event and returns a function
// that removes it. Callbacks run on the feed's reader goroutine and must not
// call Close.
func (f *Feed) Subscribe(fn func(model.PushEvent)) (unsubscribe func()) {
	f.subsMu.Lock()
	id := f.nextSubID
	f.nextSubID++
	f.subs[id] = fn
	f.subsMu.Unlock()

	return func() {
		f.subsMu.Lock()
		delete(f.subs, id)
		f.subsMu.Unlock()
	}
}

// Connect starts the connection loop in the background. The loop lives until
// ctx is cancelled or Close is called; either one closes the open connection
// and no subscriber callback starts afterwards.
func (f *Feed) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if f.started {
		return ErrAlreadyStarted
	}
	f.started = true

	ctx, f.cancel = context.WithCancel(ctx)
	f.done = make(chan struct{})
	go f.run(ctx)
	return nil
}

// Close tears the connection down and stops reconnecting. When Close returns
// no subscriber callback is running or will run.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	cancel, done, conn := f.cancel, f.done, f.conn
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		f.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		f.writeMu.Unlock()
		conn.Close()
	}
	if done != nil {
		<-done
	}
}

// Send writes v as JSON when the connection is open. Otherwise, or when the
// write fails, the message is dropped and Send returns false.
func (f *Feed) Send(v any) bool {
	f.mu.RLock()
	conn := f.conn
	f.mu.RUnlock()
	if conn == nil {
		return false
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	if err := conn.WriteJSON(v); err != nil {
		f.logger.Warn("push send failed", "error", err)
		return false
	}
	return true
}

func (f *Feed) run(ctx context.Context) {
	defer close(f.done)

	backoff := f.minBackoff
	for {
		conn, _, err := f.dialer.DialContext(ctx, f.endpoint, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.logger.Warn("push connect failed", "endpoint", f.endpoint, "error", err)
		} else {
			backoff = f.minBackoff
			if !f.attach(conn) {
				conn.Close()
				return
			}
			f.logger.Info("push connected", "endpoint", f.endpoint)
			// Unblock the read when ctx ends.
			stop := context.AfterFunc(ctx, func() { conn.Close() })
			f.readLoop(ctx, conn)
			stop()
			f.detach()
			f.logger.Info("push disconnected")
		}

		if ctx.Err() != nil {
			return
		}
		if !f.reconnect {
			return
		}

		f.logger.Debug("push reconnect scheduled", "backoff", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, f.maxBackoff)
	}
}

func (f *Feed) attach(conn *websocket.Conn) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.conn = conn
	return true
}

func (f *Feed) detach() {
	f.mu.Lock()
	conn := f.conn
	f.conn = nil
	f.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				f.logger.Debug("push read ended", "error", err)
			}
			return
		}

		ev, err := parseEvent(data)
		if err != nil {
			f.logger.Warn("dropping malformed push payload", "error", err, "payload", truncate(data, 200))
			continue
		}

		if ctx.Err() != nil {
			return
		}
		f.mu.Lock()
		f.last = &ev
		f.mu.Unlock()
		f.deliver(ev)
	}
}

func (f *Feed) deliver(ev model.PushEvent) {
	f.subsMu.Lock()
	fns := make([]func(model.PushEvent), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.subsMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// parseEvent decodes a frame. Unknown types pass through; new_message frames
// must name the conversation and carry a message with an id.
func parseEvent(data []byte) (model.PushEvent, error) {
	var ev model.PushEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, err
	}
	if ev.Type == "" {
		return ev, errors.New("missing event type")
	}
	if ev.Type == model.EventNewMessage {
		if ev.ConversationID == "" {
			return ev, errors.New("new_message without conversation_id")
		}
		if ev.Message == nil || ev.Message.ID == "" {
			return ev, errors.New("new_message without message id")
		}
	}
	return ev, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
