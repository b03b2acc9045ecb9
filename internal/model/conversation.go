package model

import "time"

// Channel is the messaging surface a conversation arrived through
type Channel string

const (
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelInstagram Channel = "instagram"
	ChannelFacebook  Channel = "facebook"
	ChannelWebchat   Channel = "webchat"
)

// Valid reports whether c is a known channel
func (c Channel) Valid() bool {
	switch c {
	case ChannelWhatsApp, ChannelInstagram, ChannelFacebook, ChannelWebchat:
		return true
	}
	return false
}

// Status of a conversation
type Status string

const (
	StatusActive      Status = "active"
	StatusClosed      Status = "closed"
	StatusTransferred Status = "transferred"
	StatusWaiting     Status = "waiting"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusClosed, StatusTransferred, StatusWaiting:
		return true
	}
	return false
}

// Handler says whether the AI or a human agent owns the conversation
type Handler string

const (
	HandledByAI    Handler = "ai"
	HandledByHuman Handler = "human"
)

// Conversation represents one support thread with a client
type Conversation struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	ClientPhone    string    `json:"client_phone"`
	ClientName     *string   `json:"client_name,omitempty"`
	Channel        Channel   `json:"channel"`
	Status         Status    `json:"status"`
	HandledBy      Handler   `json:"handled_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	LastMessage    *string   `json:"last_message,omitempty"`
}

// DisplayName returns the client name, falling back to the phone number
func (c Conversation) DisplayName() string {
	if c.ClientName != nil && *c.ClientName != "" {
		return *c.ClientName
	}
	return c.ClientPhone
}

// CreateConversationRequest is the body of POST /chat/conversations
type CreateConversationRequest struct {
	OrganizationID string  `json:"organization_id"`
	ClientPhone    string  `json:"client_phone"`
	ClientName     *string `json:"client_name,omitempty"`
	Channel        Channel `json:"channel"`
}
