package handler

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"nexusdesk/internal/model"
	"nexusdesk/internal/repository"
)

// ListConversations handles GET /api/chat/conversations
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("organization_id")
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "organization_id is required")
		return
	}
	status := r.URL.Query().Get("status")
	if status != "" && !model.Status(status).Valid() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	convs, err := h.Repo.ListConversations(r.Context(), orgID, status)
	if err != nil {
		h.logger.Error("[GET /api/chat/conversations] database error", "error", err)
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}

	h.logger.Debug("[GET /api/chat/conversations] returned conversations", "organization_id", orgID, "count", len(convs))
	writeJSON(w, http.StatusOK, convs)
}

// CreateConversation handles POST /api/chat/conversations
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req model.CreateConversationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OrganizationID == "" || req.ClientPhone == "" {
		writeError(w, http.StatusBadRequest, "organization_id and client_phone are required")
		return
	}
	if req.Channel == "" {
		req.Channel = model.ChannelWhatsApp
	}
	if !req.Channel.Valid() {
		writeError(w, http.StatusBadRequest, "unknown channel")
		return
	}

	conv, err := h.Repo.CreateConversation(r.Context(), req)
	if err != nil {
		h.logger.Error("[POST /api/chat/conversations] database error", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create conversation")
		return
	}

	h.logger.Info("[POST /api/chat/conversations] created conversation", "id", conv.ID, "channel", conv.Channel)
	writeJSON(w, http.StatusCreated, conv)
}

// GetConversation handles GET /api/chat/conversations/{id}
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	conv, err := h.Repo.GetConversation(r.Context(), id)
	if err != nil {
		h.repoError(w, r, err, "Conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// TransferConversation handles POST /api/chat/conversations/{id}/transfer
func (h *Handler) TransferConversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	conv, err := h.Repo.TransferConversation(r.Context(), id)
	if err != nil {
		h.repoError(w, r, err, "Conversation not found")
		return
	}

	h.logger.Info("[POST /api/chat/conversations/{id}/transfer] transferred to human", "id", id)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "Conversation transferred to human agent",
		"conversation": conv,
	})
}

// DashboardStats handles GET /api/dashboard/stats
func (h *Handler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("organization_id")
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "organization_id is required")
		return
	}

	stats, err := h.Repo.Stats(r.Context(), orgID, h.now())
	if err != nil {
		h.logger.Error("[GET /api/dashboard/stats] database error", "error", err)
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// repoError maps repository failures to 404 or 500
func (h *Handler) repoError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFound)
		return
	}
	h.logger.Error("database error", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "Database error")
}
