package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ModelRetrainer/internal/domain"
	"ModelRetrainer/internal/infrastructure/notify"
	"ModelRetrainer/internal/ports"
)

// Client posts outcomes as JSON to deployment automation (a CI dispatch
// endpoint, a chat-ops bot, etc.).
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.Notifier = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Payload is the JSON document sent for every decided run.
type Payload struct {
	RunID             string                   `json:"run_id"`
	Improved          bool                     `json:"model_improved"`
	Outcome           domain.OutcomeKind       `json:"outcome"`
	NewVersion        int                      `json:"new_version,omitempty"`
	OldVersion        int                      `json:"old_version"`
	ModelFile         string                   `json:"model_file,omitempty"`
	Candidate         domain.EvaluationMetrics `json:"candidate"`
	Incumbent         domain.EvaluationMetrics `json:"incumbent"`
	PendingRecords    int                      `json:"pending_records"`
	ChangeDescription string                   `json:"change_description"`
}

// NewPayload maps an outcome onto the wire document.
func NewPayload(outcome domain.PipelineOutcome) Payload {
	p := Payload{
		RunID:             outcome.RunID,
		Improved:          outcome.Improved(),
		Outcome:           outcome.Kind,
		OldVersion:        outcome.IncumbentVersion,
		Candidate:         outcome.Candidate,
		Incumbent:         outcome.Incumbent,
		PendingRecords:    outcome.Pending,
		ChangeDescription: notify.Describe(outcome),
	}
	if outcome.Improved() {
		p.NewVersion = outcome.Version
		p.ModelFile = domain.ModelArtifact{Version: outcome.Version}.FileName()
	}
	return p
}

// PublishOutcome sends the outcome to the /outcomes endpoint.
func (c *Client) PublishOutcome(ctx context.Context, outcome domain.PipelineOutcome) error {
	if c.endpoint == "" {
		return fmt.Errorf("webhook notifier misconfigured")
	}
	return c.post(ctx, "/outcomes", NewPayload(outcome))
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return fmt.Errorf("unexpected status %s, close body: %v", resp.Status, closeErr)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}
