// Package ticket is the read-only ticket-tracker collaborator. The core
// only consumes ticket fields as extra prompt text; ticket-system
// semantics stay outside this module.
package ticket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mergegate/pkg/models"
)

// Client fetches ticket details for prompt enrichment
type Client interface {
	Fetch(ctx context.Context, key string) (*models.TicketInfo, error)
}

// HTTPClient is a thin tracker client. Credentials are relayed as-is via
// basic auth; nothing is interpreted beyond field mapping.
type HTTPClient struct {
	baseURL    string
	user       string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a tracker client for one base URL
func NewHTTPClient(baseURL, user, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		user:       user,
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *HTTPClient) Fetch(ctx context.Context, key string) (*models.TicketInfo, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("ticket tracker not configured")
	}

	endpoint := fmt.Sprintf("%s/rest/api/2/issue/%s", c.baseURL, url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.user, c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ticket lookup for %s failed: %s", key, resp.Status)
	}

	var payload struct {
		Key    string `json:"key"`
		Fields struct {
			Summary     string `json:"summary"`
			Description string `json:"description"`
			Status      struct {
				Name string `json:"name"`
			} `json:"status"`
			Priority struct {
				Name string `json:"name"`
			} `json:"priority"`
			Attachment []struct {
				Filename string `json:"filename"`
			} `json:"attachment"`
			// Common custom-field slot for acceptance criteria
			AcceptanceCriteria string `json:"customfield_10100"`
		} `json:"fields"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode ticket %s: %w", key, err)
	}

	info := &models.TicketInfo{
		Key:                payload.Key,
		Summary:            payload.Fields.Summary,
		Description:        payload.Fields.Description,
		AcceptanceCriteria: payload.Fields.AcceptanceCriteria,
		Status:             payload.Fields.Status.Name,
		Priority:           payload.Fields.Priority.Name,
	}
	for _, a := range payload.Fields.Attachment {
		info.Attachments = append(info.Attachments, a.Filename)
	}
	return info, nil
}
