package model

import (
	"encoding/json"
	"time"
)

// Rule is a business rule evaluated by the backend
type Rule struct {
	ID              string          `json:"id,omitempty"`
	OrganizationID  string          `json:"organization_id"`
	Name            string          `json:"name"`
	Description     *string         `json:"description,omitempty"`
	ConditionType   string          `json:"condition_type"`
	ConditionConfig json.RawMessage `json:"condition_config"`
	ActionType      string          `json:"action_type"`
	ActionConfig    json.RawMessage `json:"action_config"`
	Priority        int             `json:"priority"`
	IsActive        bool            `json:"is_active"`
}

// RuleUpdate carries a partial rule for PATCH. Nil fields are left untouched.
type RuleUpdate struct {
	Name            *string         `json:"name,omitempty"`
	Description     *string         `json:"description,omitempty"`
	ConditionType   *string         `json:"condition_type,omitempty"`
	ConditionConfig json.RawMessage `json:"condition_config,omitempty"`
	ActionType      *string         `json:"action_type,omitempty"`
	ActionConfig    json.RawMessage `json:"action_config,omitempty"`
	Priority        *int            `json:"priority,omitempty"`
	IsActive        *bool           `json:"is_active,omitempty"`
}

// ToggleResult is returned by POST /rules/{id}/toggle
type ToggleResult struct {
	IsActive bool `json:"is_active"`
	Rule     Rule `json:"rule"`
}

// Document processing states
const (
	DocumentProcessing = "processing"
	DocumentReady      = "ready"
	DocumentError      = "error"
)

// Document is an entry of the knowledge base
type Document struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Filename       string    `json:"filename"`
	FileType       string    `json:"file_type,omitempty"`
	FileSizeBytes  int64     `json:"file_size_bytes,omitempty"`
	Status         string    `json:"status"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// DocumentAccepted is the answer of the upload and crawl endpoints
type DocumentAccepted struct {
	Message    string `json:"message"`
	DocumentID string `json:"document_id"`
}

// CrawlRequest is the body of POST /documents/crawl
type CrawlRequest struct {
	OrganizationID string `json:"organization_id"`
	URL            string `json:"url"`
}

// KPIs are the headline numbers of the dashboard
type KPIs struct {
	TotalChats       int     `json:"total_chats"`
	AIResolutionRate float64 `json:"ai_resolution_rate"`
	AvgTime          string  `json:"avg_time"`
}

// VolumePoint is one day of the volume chart
type VolumePoint struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// DashboardStats is the aggregate KPI payload
type DashboardStats struct {
	KPIs        KPIs          `json:"kpis"`
	VolumeChart []VolumePoint `json:"volume_chart"`
}
