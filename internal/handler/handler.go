// Package handler implements the chat backend's REST API and push channel.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"nexusdesk/internal/config"
	"nexusdesk/internal/hub"
	"nexusdesk/internal/repository"
)

// Handler holds application dependencies
type Handler struct {
	Repo   repository.ChatRepository
	Config config.Config
	Hub    *hub.Hub

	logger *slog.Logger
	now    func() time.Time
}

// New creates a new Handler with the given dependencies
func New(repo repository.ChatRepository, cfg config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		Repo:   repo,
		Config: cfg,
		Hub:    hub.New(cfg.AllowedOrigins, logger.With("component", "hub")),
		logger: logger,
		now:    time.Now,
	}
}

// Run broadcasts push events until ctx is done
func (h *Handler) Run(ctx context.Context) {
	h.Hub.Run(ctx)
}

// SetupRouter configures and returns the HTTP router
func (h *Handler) SetupRouter() *mux.Router {
	r := mux.NewRouter()

	// REST API
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/chat/conversations", h.ListConversations).Methods("GET")
	api.HandleFunc("/chat/conversations", h.CreateConversation).Methods("POST")
	api.HandleFunc("/chat/conversations/{id}", h.GetConversation).Methods("GET")
	api.HandleFunc("/chat/conversations/{id}/messages", h.ListMessages).Methods("GET")
	api.HandleFunc("/chat/conversations/{id}/messages", h.CreateMessage).Methods("POST")
	api.HandleFunc("/chat/conversations/{id}/transfer", h.TransferConversation).Methods("POST")
	api.HandleFunc("/dashboard/stats", h.DashboardStats).Methods("GET")

	// WebSocket
	r.HandleFunc("/ws/{client_id}", h.HandleWebSocket).Methods("GET")

	r.HandleFunc("/health", h.Health).Methods("GET")

	return r
}

// HandleWebSocket handles GET /ws/{client_id}
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.Hub.Serve(w, r, mux.Vars(r)["client_id"])
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"env":     h.Config.Env,
		"clients": h.Hub.Count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeBody reads a JSON body limited to 1MB
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
