package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"nexusdesk/internal/config"
	"nexusdesk/internal/database"
	"nexusdesk/internal/model"
	"nexusdesk/internal/repository"
	"nexusdesk/internal/testutil"
)

func TestMain(m *testing.M) {
	// プロジェクトルートの.envを読み込み
	_ = godotenv.Load("../../.env")
	os.Exit(m.Run())
}

var testConfig = config.Config{
	Env:            "test",
	AllowedOrigins: []string{"http://localhost:8080", "http://127.0.0.1:8080"},
}

// newTestHandler テスト用のHandlerを生成
func newTestHandler(repo repository.ChatRepository) *Handler {
	if repo == nil {
		repo = repository.NewMemory(nil)
	}
	return New(repo, testConfig, nil)
}

func do(h *Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(w, req)
	return w
}

func createConversation(t *testing.T, h *Handler, org string) model.Conversation {
	t.Helper()
	w := do(h, "POST", "/api/chat/conversations", []byte(`{"organization_id":"`+org+`","client_phone":"+5511988887777"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d. Body: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	var conv model.Conversation
	json.Unmarshal(w.Body.Bytes(), &conv)
	return conv
}

func TestCreateConversation_Success(t *testing.T) {
	h := newTestHandler(nil)

	conv := createConversation(t, h, "org-1")

	if conv.ID == "" {
		t.Error("Expected conversation ID to be set")
	}
	if conv.Channel != model.ChannelWhatsApp {
		t.Errorf("Expected default channel whatsapp, got %s", conv.Channel)
	}
	if conv.Status != model.StatusActive || conv.HandledBy != model.HandledByAI {
		t.Errorf("Unexpected initial state %s/%s", conv.Status, conv.HandledBy)
	}
}

func TestCreateConversation_Validation(t *testing.T) {
	h := newTestHandler(nil)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{bad`},
		{"missing phone", `{"organization_id":"org-1"}`},
		{"missing organization", `{"client_phone":"123"}`},
		{"unknown channel", `{"organization_id":"org-1","client_phone":"123","channel":"fax"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(h, "POST", "/api/chat/conversations", []byte(tt.body))
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
			}
		})
	}
}

func TestListConversations(t *testing.T) {
	h := newTestHandler(nil)
	createConversation(t, h, "org-1")
	createConversation(t, h, "org-2")

	w := do(h, "GET", "/api/chat/conversations?organization_id=org-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Expected Content-Type: application/json, got %s", w.Header().Get("Content-Type"))
	}
	var convs []model.Conversation
	json.Unmarshal(w.Body.Bytes(), &convs)
	if len(convs) != 1 || convs[0].OrganizationID != "org-1" {
		t.Errorf("Expected one org-1 conversation, got %+v", convs)
	}
}

func TestListConversations_Empty(t *testing.T) {
	h := newTestHandler(nil)

	w := do(h, "GET", "/api/chat/conversations?organization_id=org-1", nil)
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("Expected empty array, got %s", w.Body.String())
	}
}

func TestListConversations_RequiresOrganization(t *testing.T) {
	h := newTestHandler(nil)

	if w := do(h, "GET", "/api/chat/conversations", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if w := do(h, "GET", "/api/chat/conversations?organization_id=org-1&status=lost", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d for unknown status, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	h := newTestHandler(nil)

	w := do(h, "GET", "/api/chat/conversations/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	var errResp map[string]string
	json.Unmarshal(w.Body.Bytes(), &errResp)
	if errResp["error"] != "Conversation not found" {
		t.Errorf("Expected 'Conversation not found' error, got %s", errResp["error"])
	}
}

func TestCreateMessage_Success(t *testing.T) {
	h := newTestHandler(nil)
	conv := createConversation(t, h, "org-1")

	w := do(h, "POST", "/api/chat/conversations/"+conv.ID+"/messages", []byte(`{"content":"Qual o horário de atendimento?"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d. Body: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	var resp model.SendMessageResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.ClientMessage == nil || resp.ClientMessage.ID == "" {
		t.Fatalf("Expected client_message in response, got %s", w.Body.String())
	}
	if resp.ClientMessage.Sender != model.SenderClient {
		t.Errorf("Expected default sender client, got %s", resp.ClientMessage.Sender)
	}

	w = do(h, "GET", "/api/chat/conversations/"+conv.ID+"/messages", nil)
	var msgs []model.Message
	json.Unmarshal(w.Body.Bytes(), &msgs)
	if len(msgs) != 1 || msgs[0].ID != resp.ClientMessage.ID {
		t.Errorf("Expected the stored message, got %+v", msgs)
	}

	w = do(h, "GET", "/api/chat/conversations/"+conv.ID, nil)
	var got model.Conversation
	json.Unmarshal(w.Body.Bytes(), &got)
	if got.LastMessage == nil || *got.LastMessage != "Qual o horário de atendimento?" {
		t.Errorf("Expected last_message to be updated, got %v", got.LastMessage)
	}
}

func TestCreateMessage_Validation(t *testing.T) {
	h := newTestHandler(nil)
	conv := createConversation(t, h, "org-1")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{bad`, http.StatusBadRequest},
		{"missing content", `{}`, http.StatusBadRequest},
		{"whitespace content", `{"content":"  \n "}`, http.StatusBadRequest},
		{"unknown sender", `{"content":"oi","sender":"bot"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(h, "POST", "/api/chat/conversations/"+conv.ID+"/messages", []byte(tt.body))
			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}

	w := do(h, "POST", "/api/chat/conversations/nope/messages", []byte(`{"content":"oi"}`))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d for unknown conversation, got %d", http.StatusNotFound, w.Code)
	}
}

func TestCreateMessage_OversizedBody(t *testing.T) {
	h := newTestHandler(nil)
	conv := createConversation(t, h, "org-1")

	body := []byte(`{"content":"` + strings.Repeat("a", 1<<20+1) + `"}`)
	w := do(h, "POST", "/api/chat/conversations/"+conv.ID+"/messages", body)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestTransferConversation(t *testing.T) {
	h := newTestHandler(nil)
	conv := createConversation(t, h, "org-1")

	w := do(h, "POST", "/api/chat/conversations/"+conv.ID+"/transfer", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	var resp struct {
		Conversation model.Conversation `json:"conversation"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Conversation.HandledBy != model.HandledByHuman || resp.Conversation.Status != model.StatusTransferred {
		t.Errorf("Unexpected transferred conversation %+v", resp.Conversation)
	}

	if w := do(h, "POST", "/api/chat/conversations/nope/transfer", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestDashboardStats(t *testing.T) {
	h := newTestHandler(nil)
	createConversation(t, h, "org-1")

	w := do(h, "GET", "/api/dashboard/stats?organization_id=org-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	var stats model.DashboardStats
	json.Unmarshal(w.Body.Bytes(), &stats)
	if stats.KPIs.TotalChats != 1 || stats.KPIs.AIResolutionRate != 100 || len(stats.VolumeChart) != 7 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	if w := do(h, "GET", "/api/dashboard/stats", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d without organization, got %d", http.StatusBadRequest, w.Code)
	}
}

// TestWebSocketConnection WebSocket 接続テスト
func TestWebSocketConnection(t *testing.T) {
	h := newTestHandler(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	server := httptest.NewServer(h.SetupRouter())
	defer server.Close()

	url := strings.Replace(server.URL, "http://", "ws://", 1)

	header := http.Header{}
	header.Set("Origin", "http://localhost:8080")

	ws, _, err := websocket.DefaultDialer.Dial(url+"/ws/agent-1", header)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	defer ws.Close()
	testutil.Eventually(t, time.Second, func() bool { return h.Hub.Count() == 1 }, "client registered")

	conv := createConversation(t, h, "org-1")
	do(h, "POST", "/api/chat/conversations/"+conv.ID+"/messages", []byte(`{"content":"Olá"}`))

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev model.PushEvent
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if ev.Type != model.EventNewMessage || ev.ConversationID != conv.ID {
		t.Errorf("Unexpected event %+v", ev)
	}
	if ev.Message == nil || ev.Message.Content != "Olá" {
		t.Errorf("Expected pushed message, got %+v", ev.Message)
	}
}

// TestWebSocketOriginCheck Origin チェックテスト
func TestWebSocketOriginCheck(t *testing.T) {
	h := newTestHandler(nil)

	server := httptest.NewServer(h.SetupRouter())
	defer server.Close()

	url := strings.Replace(server.URL, "http://", "ws://", 1)

	// 許可されていない Origin で接続試行
	header := http.Header{}
	header.Set("Origin", "http://forbidden.example.com")

	_, _, err := websocket.DefaultDialer.Dial(url+"/ws/agent-1", header)
	if err == nil {
		t.Error("WebSocket connection from forbidden origin should fail")
	}
}

func TestHealth(t *testing.T) {
	h := newTestHandler(nil)

	w := do(h, "GET", "/health", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"healthy"`) {
		t.Errorf("Unexpected health answer %d %s", w.Code, w.Body.String())
	}
}

// TestMySQLBackedHandler runs the message round trip against a real database
func TestMySQLBackedHandler(t *testing.T) {
	cfg := config.Load()
	if cfg.DBHost == "" {
		t.Skip("Skipping: DB_HOST not set")
	}
	db, err := database.Init(context.Background(), cfg, nil)
	if err != nil {
		t.Skipf("Skipping: could not connect to test database: %v", err)
	}
	defer db.Close()

	org := "handler-test-" + time.Now().Format("150405.000000")
	defer func() {
		db.Exec("DELETE m FROM messages m JOIN conversations c ON c.id = m.conversation_id WHERE c.organization_id = ?", org)
		db.Exec("DELETE FROM conversations WHERE organization_id = ?", org)
	}()

	h := newTestHandler(repository.NewMySQL(db))
	conv := createConversation(t, h, org)

	w := do(h, "POST", "/api/chat/conversations/"+conv.ID+"/messages", []byte(`{"content":"Hello, World!"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d. Body: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	w = do(h, "GET", "/api/chat/conversations/"+conv.ID+"/messages", nil)
	var msgs []model.Message
	json.Unmarshal(w.Body.Bytes(), &msgs)
	if len(msgs) != 1 || msgs[0].Content != "Hello, World!" {
		t.Errorf("Expected the stored message, got %+v", msgs)
	}
}
