package console

import (
	"net/http"

	"github.com/gorilla/mux"

	"nexusdesk/internal/api"
	"nexusdesk/internal/model"
)

// GetConversations handles GET /conversations
func (s *Server) GetConversations(w http.ResponseWriter, r *http.Request) {
	convs := s.Session.Store().Conversations()
	if convs == nil {
		convs = []model.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

// CreateConversation handles POST /conversations
func (s *Server) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req model.CreateConversationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ClientPhone == "" {
		writeError(w, http.StatusBadRequest, "client_phone is required")
		return
	}
	if req.Channel == "" {
		req.Channel = model.ChannelWhatsApp
	}
	if !req.Channel.Valid() {
		writeError(w, http.StatusBadRequest, "unknown channel")
		return
	}

	conv, err := s.Session.CreateConversation(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// GetConversation handles GET /conversations/{id}
func (s *Server) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.Session.GetConversation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// SelectConversation handles POST /conversations/{id}/select
func (s *Server) SelectConversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.Session.SelectConversation(r.Context(), id); err != nil {
		// Read failure: the store keeps what it had; report it but stay usable.
		s.logger.Warn("load messages failed", "conversation_id", id, "error", err)
	}
	s.GetMessages(w, r)
}

// GetMessages handles GET /messages
func (s *Server) GetMessages(w http.ResponseWriter, r *http.Request) {
	st := s.Session.Store()
	msgs := st.Messages()
	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": st.Selected(),
		"messages":        msgs,
	})
}

// SendMessage handles POST /conversations/{id}/messages
func (s *Server) SendMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string       `json:"content"`
		Sender  model.Sender `json:"sender"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Sender == "" {
		body.Sender = model.SenderAgent
	}
	if !body.Sender.Valid() {
		writeError(w, http.StatusBadRequest, "unknown sender")
		return
	}

	created, err := s.Session.SendMessage(r.Context(), mux.Vars(r)["id"], body.Content, body.Sender)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// TransferConversation handles POST /conversations/{id}/transfer
func (s *Server) TransferConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.Session.TransferConversation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// ListRules handles GET /rules
func (s *Server) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.Session.ListRules(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if rules == nil {
		rules = []model.Rule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

// CreateRule handles POST /rules
func (s *Server) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule model.Rule
	if !decodeBody(w, r, &rule) {
		return
	}
	if rule.Name == "" || rule.ConditionType == "" || rule.ActionType == "" {
		writeError(w, http.StatusBadRequest, "name, condition_type and action_type are required")
		return
	}
	created, err := s.Session.CreateRule(r.Context(), rule)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetRule handles GET /rules/{id}
func (s *Server) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.Session.GetRule(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// UpdateRule handles PATCH /rules/{id}
func (s *Server) UpdateRule(w http.ResponseWriter, r *http.Request) {
	var update model.RuleUpdate
	if !decodeBody(w, r, &update) {
		return
	}
	rule, err := s.Session.UpdateRule(r.Context(), mux.Vars(r)["id"], update)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// DeleteRule handles DELETE /rules/{id}
func (s *Server) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.Session.DeleteRule(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleRule handles POST /rules/{id}/toggle
func (s *Server) ToggleRule(w http.ResponseWriter, r *http.Request) {
	res, err := s.Session.ToggleRule(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListDocuments handles GET /documents
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.Session.ListDocuments(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if docs == nil {
		docs = []model.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

// UploadDocument handles POST /documents/upload
func (s *Server) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, api.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, fh, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	res, err := s.Session.UploadDocument(r.Context(), fh.Filename, fh.Header.Get("Content-Type"), fh.Size, file)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// CrawlURL handles POST /documents/crawl
func (s *Server) CrawlURL(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := s.Session.CrawlURL(r.Context(), body.URL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// DeleteDocument handles DELETE /documents/{id}
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.Session.DeleteDocument(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DashboardStats handles GET /dashboard/stats
func (s *Server) DashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Session.DashboardStats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
