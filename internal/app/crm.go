package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// CRM is the secondary system of record for contacts, deals and meetings.
// Every call into it is best-effort: the orchestrator logs failures and
// never lets them block a booking.
type CRM interface {
	UpsertContact(ctx context.Context, c CRMContact) (string, error)
	CreateDeal(ctx context.Context, contactID, name string) (string, error)
	CreateMeeting(ctx context.Context, m CRMMeeting) (string, error)
	UpdateMeetingTime(ctx context.Context, meetingID string, start, end time.Time) error
	DeleteMeeting(ctx context.Context, meetingID string) error
}

type CRMContact struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
}

type CRMMeeting struct {
	ContactID   string    `json:"contact_id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	MeetingLink string    `json:"meeting_link,omitempty"`
}

// CRMConfig controls the REST client.
type CRMConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// CRMClient implements CRM over the CRM service's REST API.
type CRMClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewCRMClient(cfg CRMConfig) (*CRMClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("crm: API key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("crm: base URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &CRMClient{baseURL: baseURL, apiKey: cfg.APIKey, httpClient: httpClient}, nil
}

func (c *CRMClient) UpsertContact(ctx context.Context, contact CRMContact) (string, error) {
	var res struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/contacts/upsert", contact, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}

func (c *CRMClient) CreateDeal(ctx context.Context, contactID, name string) (string, error) {
	body := map[string]string{"contact_id": contactID, "name": name}
	var res struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/deals", body, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}

func (c *CRMClient) CreateMeeting(ctx context.Context, m CRMMeeting) (string, error) {
	var res struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/meetings", m, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}

func (c *CRMClient) UpdateMeetingTime(ctx context.Context, meetingID string, start, end time.Time) error {
	body := map[string]time.Time{"start": start, "end": end}
	return c.do(ctx, http.MethodPatch, "/meetings/"+meetingID, body, nil)
}

func (c *CRMClient) DeleteMeeting(ctx context.Context, meetingID string) error {
	return c.do(ctx, http.MethodDelete, "/meetings/"+meetingID, nil, nil)
}

func (c *CRMClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("crm: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("crm: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("crm: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("crm: %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("crm: decode response: %w", err)
	}
	return nil
}
