package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nexusdesk/internal/model"
)

// MySQL is a ChatRepository backed by MySQL/MariaDB.
type MySQL struct {
	DB  *sql.DB
	now func() time.Time
}

// NewMySQL wraps an open connection. The schema is created by database.Migrate.
func NewMySQL(db *sql.DB) *MySQL {
	return &MySQL{DB: db, now: time.Now}
}

const conversationColumns = `id, organization_id, client_phone, client_name, channel, status, handled_by, last_message, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (model.Conversation, error) {
	var c model.Conversation
	var name, last sql.NullString
	if err := row.Scan(&c.ID, &c.OrganizationID, &c.ClientPhone, &name, &c.Channel,
		&c.Status, &c.HandledBy, &last, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return model.Conversation{}, err
	}
	if name.Valid {
		c.ClientName = &name.String
	}
	if last.Valid {
		c.LastMessage = &last.String
	}
	return c, nil
}

func (m *MySQL) ListConversations(ctx context.Context, organizationID, status string) ([]model.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE organization_id = ?`
	args := []any{organizationID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY updated_at DESC, id`

	rows, err := m.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	out := []model.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return out, nil
}

func (m *MySQL) GetConversation(ctx context.Context, id string) (model.Conversation, error) {
	row := m.DB.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Conversation{}, ErrNotFound
	}
	if err != nil {
		return model.Conversation{}, fmt.Errorf("get conversation %s: %w", id, err)
	}
	return c, nil
}

func (m *MySQL) CreateConversation(ctx context.Context, req model.CreateConversationRequest) (model.Conversation, error) {
	now := m.now().UTC()
	c := model.Conversation{
		ID:             uuid.NewString(),
		OrganizationID: req.OrganizationID,
		ClientPhone:    req.ClientPhone,
		ClientName:     req.ClientName,
		Channel:        req.Channel,
		Status:         model.StatusActive,
		HandledBy:      model.HandledByAI,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err := m.DB.ExecContext(ctx,
		`INSERT INTO conversations (`+conversationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		c.ID, c.OrganizationID, c.ClientPhone, c.ClientName, c.Channel, c.Status, c.HandledBy, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

func (m *MySQL) TransferConversation(ctx context.Context, id string) (model.Conversation, error) {
	if _, err := m.DB.ExecContext(ctx,
		`UPDATE conversations SET status = ?, handled_by = ?, updated_at = ? WHERE id = ?`,
		model.StatusTransferred, model.HandledByHuman, m.now().UTC(), id); err != nil {
		return model.Conversation{}, fmt.Errorf("transfer conversation %s: %w", id, err)
	}
	return m.GetConversation(ctx, id)
}

func (m *MySQL) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	if _, err := m.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	return m.messagesOf(ctx, conversationID)
}

func (m *MySQL) messagesOf(ctx context.Context, conversationID string) ([]model.Message, error) {
	rows, err := m.DB.QueryContext(ctx,
		`SELECT id, conversation_id, sender, content, created_at FROM messages WHERE conversation_id = ? ORDER BY created_at, id`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := []model.Message{}
	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return out, nil
}

func (m *MySQL) CreateMessage(ctx context.Context, conversationID string, sender model.Sender, content string) (model.Message, error) {
	msg := model.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
		CreatedAt:      m.now().UTC(),
	}

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Message{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ? FOR UPDATE`, conversationID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, ErrNotFound
	}
	if err != nil {
		return model.Message{}, fmt.Errorf("lock conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ?, last_message = ? WHERE id = ?`,
		msg.CreatedAt, msg.Content, conversationID); err != nil {
		return model.Message{}, fmt.Errorf("touch conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Sender, msg.Content, msg.CreatedAt); err != nil {
		return model.Message{}, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Message{}, fmt.Errorf("commit: %w", err)
	}
	return msg, nil
}

func (m *MySQL) Stats(ctx context.Context, organizationID string, now time.Time) (model.DashboardStats, error) {
	rows, err := m.DB.QueryContext(ctx,
		`SELECT id, handled_by, created_at FROM conversations WHERE organization_id = ? AND created_at >= ?`,
		organizationID, statsWindowStart(now).UTC())
	if err != nil {
		return model.DashboardStats{}, fmt.Errorf("stats: %w", err)
	}

	var convs []statsConversation
	for rows.Next() {
		var c statsConversation
		if err := rows.Scan(&c.ID, &c.HandledBy, &c.CreatedAt); err != nil {
			rows.Close()
			return model.DashboardStats{}, fmt.Errorf("scan stats row: %w", err)
		}
		c.CreatedAt = c.CreatedAt.In(now.Location())
		convs = append(convs, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return model.DashboardStats{}, fmt.Errorf("stats: %w", err)
	}

	for i := range convs {
		msgs, err := m.messagesOf(ctx, convs[i].ID)
		if err != nil {
			return model.DashboardStats{}, err
		}
		convs[i].Messages = msgs
	}
	return computeStats(convs, now), nil
}
