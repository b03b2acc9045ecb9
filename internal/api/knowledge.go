package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"nexusdesk/internal/model"
)

// ListRules returns the rules of an organization, highest priority first.
func (c *Client) ListRules(ctx context.Context, organizationID string) ([]model.Rule, error) {
	var out []model.Rule
	if err := c.doJSON(ctx, "list rules", http.MethodGet, "/rules/", orgQuery(organizationID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetRule(ctx context.Context, id string) (model.Rule, error) {
	var out model.Rule
	err := c.doJSON(ctx, "get rule", http.MethodGet, "/rules/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

func (c *Client) CreateRule(ctx context.Context, rule model.Rule) (model.Rule, error) {
	var out model.Rule
	err := c.doJSON(ctx, "create rule", http.MethodPost, "/rules/", nil, rule, &out)
	return out, err
}

func (c *Client) UpdateRule(ctx context.Context, id string, update model.RuleUpdate) (model.Rule, error) {
	var out model.Rule
	err := c.doJSON(ctx, "update rule", http.MethodPatch, "/rules/"+url.PathEscape(id), nil, update, &out)
	return out, err
}

func (c *Client) DeleteRule(ctx context.Context, id string) error {
	return c.doJSON(ctx, "delete rule", http.MethodDelete, "/rules/"+url.PathEscape(id), nil, nil, nil)
}

// ToggleRule flips is_active and returns the new state.
func (c *Client) ToggleRule(ctx context.Context, id string) (model.ToggleResult, error) {
	var out model.ToggleResult
	err := c.doJSON(ctx, "toggle rule", http.MethodPost, "/rules/"+url.PathEscape(id)+"/toggle", nil, nil, &out)
	return out, err
}

// ListDocuments returns the top-level knowledge base documents.
func (c *Client) ListDocuments(ctx context.Context, organizationID string) ([]model.Document, error) {
	var out []model.Document
	if err := c.doJSON(ctx, "list documents", http.MethodGet, "/documents/", orgQuery(organizationID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UploadDocument validates the file and posts it as multipart form data.
// Validation failures return before any network call.
func (c *Client) UploadDocument(ctx context.Context, organizationID, filename, contentType string, size int64, r io.Reader) (model.DocumentAccepted, error) {
	var out model.DocumentAccepted
	if err := ValidateUpload(filename, contentType, size); err != nil {
		return out, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(header)
	if err != nil {
		return out, fmt.Errorf("upload document: %w", err)
	}
	n, err := io.Copy(part, io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return out, fmt.Errorf("upload document: read file: %w", err)
	}
	if n > MaxUploadBytes {
		return out, ErrFileTooLarge
	}
	if err := mw.WriteField("organization_id", organizationID); err != nil {
		return out, fmt.Errorf("upload document: %w", err)
	}
	if err := mw.Close(); err != nil {
		return out, fmt.Errorf("upload document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/documents/upload", nil), &buf)
	if err != nil {
		return out, fmt.Errorf("upload document: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	err = c.send("upload document", req, &out)
	return out, err
}

// CrawlURL asks the backend to ingest the page at rawURL.
func (c *Client) CrawlURL(ctx context.Context, organizationID, rawURL string) (model.DocumentAccepted, error) {
	var out model.DocumentAccepted
	if err := ValidateCrawlURL(rawURL); err != nil {
		return out, err
	}
	body := model.CrawlRequest{OrganizationID: organizationID, URL: rawURL}
	err := c.doJSON(ctx, "crawl url", http.MethodPost, "/documents/crawl", nil, body, &out)
	return out, err
}

func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	return c.doJSON(ctx, "delete document", http.MethodDelete, "/documents/"+url.PathEscape(id), nil, nil, nil)
}
