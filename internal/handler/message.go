package handler

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"nexusdesk/internal/model"
)

// ListMessages handles GET /api/chat/conversations/{id}/messages
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	msgs, err := h.Repo.ListMessages(r.Context(), id)
	if err != nil {
		h.repoError(w, r, err, "Conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// CreateMessage handles POST /api/chat/conversations/{id}/messages
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	h.logger.Debug("[POST /api/chat/conversations/{id}/messages] request received", "id", id, "remote", r.RemoteAddr)

	var req model.SendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if req.Sender == "" {
		req.Sender = model.SenderClient
	}
	if !req.Sender.Valid() {
		writeError(w, http.StatusBadRequest, "unknown sender")
		return
	}

	msg, err := h.Repo.CreateMessage(r.Context(), id, req.Sender, req.Content)
	if err != nil {
		h.repoError(w, r, err, "Conversation not found")
		return
	}

	h.logger.Info("[POST /api/chat/conversations/{id}/messages] created message",
		"id", msg.ID, "conversation_id", id, "sender", msg.Sender)

	// Notify every connected console
	h.Hub.Publish(model.PushEvent{
		Type:           model.EventNewMessage,
		ConversationID: id,
		Message:        &msg,
	})

	writeJSON(w, http.StatusCreated, model.SendMessageResponse{ClientMessage: &msg})
}
