package console

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"nexusdesk/internal/api"
	"nexusdesk/internal/config"
	"nexusdesk/internal/hub"
	"nexusdesk/internal/model"
	"nexusdesk/internal/store"
)

// Frame types pushed to dashboards.
const (
	FrameState  = "state"
	FrameNotice = "notice"
)

// StateFrame carries the part of the store that changed.
type StateFrame struct {
	Type           string               `json:"type"`
	Kind           string               `json:"kind"`
	ConversationID string               `json:"conversation_id,omitempty"`
	Selected       string               `json:"selected"`
	Conversations  []model.Conversation `json:"conversations,omitempty"`
	Messages       []model.Message      `json:"messages,omitempty"`
}

// MarshalJSON always writes the list named by Kind, as [] when it is empty.
func (f StateFrame) MarshalJSON() ([]byte, error) {
	type plain StateFrame
	out := struct {
		plain
		Conversations *[]model.Conversation `json:"conversations,omitempty"`
		Messages      *[]model.Message      `json:"messages,omitempty"`
	}{plain: plain(f)}
	if f.Conversations != nil || f.Kind == store.ConversationsChanged.String() {
		convs := f.Conversations
		if convs == nil {
			convs = []model.Conversation{}
		}
		out.Conversations = &convs
	}
	if f.Messages != nil || f.Kind == store.MessagesChanged.String() {
		msgs := f.Messages
		if msgs == nil {
			msgs = []model.Message{}
		}
		out.Messages = &msgs
	}
	return json.Marshal(out)
}

// NoticeFrame carries a write failure.
type NoticeFrame struct {
	Type   string `json:"type"`
	Notice Notice `json:"notice"`
}

// Server is the dashboard-facing HTTP and websocket surface of a Session.
type Server struct {
	Session *Session
	Config  config.Config
	Hub     *hub.Hub

	logger *slog.Logger
}

// NewServer builds the surface and routes store changes and write failures
// to connected dashboards.
func NewServer(session *Session, cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		Session: session,
		Config:  cfg,
		Hub:     hub.New(cfg.AllowedOrigins, logger),
		logger:  logger,
	}
	session.SetNotifier(NotifierFunc(func(n Notice) {
		s.Hub.Publish(NoticeFrame{Type: FrameNotice, Notice: n})
	}))
	session.Store().OnChange(s.publishChange)
	return s
}

// Run broadcasts queued frames until ctx is done.
func (s *Server) Run(ctx context.Context) { s.Hub.Run(ctx) }

func (s *Server) publishChange(c store.Change) {
	if s.Hub.Count() == 0 {
		return
	}
	st := s.Session.Store()
	frame := StateFrame{
		Type:           FrameState,
		Kind:           c.Kind.String(),
		ConversationID: c.ConversationID,
		Selected:       st.Selected(),
	}
	switch c.Kind {
	case store.ConversationsChanged:
		frame.Conversations = st.Conversations()
	case store.MessagesChanged:
		frame.Messages = st.Messages()
	}
	s.Hub.Publish(frame)
}

// SetupRouter configures and returns the HTTP router
func (s *Server) SetupRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.Health).Methods("GET")

	// Conversations
	r.HandleFunc("/conversations", s.GetConversations).Methods("GET")
	r.HandleFunc("/conversations", s.CreateConversation).Methods("POST")
	r.HandleFunc("/conversations/{id}", s.GetConversation).Methods("GET")
	r.HandleFunc("/conversations/{id}/select", s.SelectConversation).Methods("POST")
	r.HandleFunc("/conversations/{id}/messages", s.SendMessage).Methods("POST")
	r.HandleFunc("/conversations/{id}/transfer", s.TransferConversation).Methods("POST")
	r.HandleFunc("/messages", s.GetMessages).Methods("GET")

	// Rules
	r.HandleFunc("/rules", s.ListRules).Methods("GET")
	r.HandleFunc("/rules", s.CreateRule).Methods("POST")
	r.HandleFunc("/rules/{id}", s.GetRule).Methods("GET")
	r.HandleFunc("/rules/{id}", s.UpdateRule).Methods("PATCH")
	r.HandleFunc("/rules/{id}", s.DeleteRule).Methods("DELETE")
	r.HandleFunc("/rules/{id}/toggle", s.ToggleRule).Methods("POST")

	// Knowledge base
	r.HandleFunc("/documents", s.ListDocuments).Methods("GET")
	r.HandleFunc("/documents/upload", s.UploadDocument).Methods("POST")
	r.HandleFunc("/documents/crawl", s.CrawlURL).Methods("POST")
	r.HandleFunc("/documents/{id}", s.DeleteDocument).Methods("DELETE")

	r.HandleFunc("/dashboard/stats", s.DashboardStats).Methods("GET")

	// WebSocket
	r.HandleFunc("/ws", s.HandleWebSocket).Methods("GET")

	return r
}

// HandleWebSocket handles GET /ws
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.Hub.Serve(w, r, r.RemoteAddr)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps an operation error to the status answered to the dashboard.
func statusFor(err error) int {
	var se *api.StatusError
	switch {
	case api.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotSelected):
		return http.StatusConflict
	case errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500:
		return se.StatusCode
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	s.logger.Warn("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	writeError(w, status, err.Error())
}

// decodeBody limits the body to 1MB and decodes it into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// Health handles GET /health
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"push_connected": s.Session.Connected(),
		"dashboards":     s.Hub.Count(),
	})
}
