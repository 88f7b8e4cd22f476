// Package telegram delivers run outcomes to a chat through the Bot API.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ModelRetrainer/internal/domain"
	"ModelRetrainer/internal/infrastructure/notify"
	"ModelRetrainer/internal/ports"
)

const defaultAPIBase = "https://api.telegram.org"

var errMisconfigured = errors.New("telegram: bot token and chat id are required")

// Notifier posts outcome summaries to one chat. Promotions ring the chat;
// rejections are delivered silently.
type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// Option customizes a Notifier.
type Option func(*Notifier)

// WithHTTPClient replaces the default 5s-timeout client.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.client = c }
}

// WithAPIBase points the notifier at a Bot API compatible server.
func WithAPIBase(base string) Option {
	return func(n *Notifier) { n.apiBase = strings.TrimRight(base, "/") }
}

// NewNotifier builds a notifier for the bot token and chat.
func NewNotifier(botToken, chatID string, opts ...Option) *Notifier {
	n := &Notifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// apiResponse is the envelope every Bot API method returns.
type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// PublishOutcome sends the outcome description as a Markdown message.
func (n *Notifier) PublishOutcome(ctx context.Context, outcome domain.PipelineOutcome) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return errMisconfigured
	}

	form := url.Values{
		"chat_id":              {n.chatID},
		"text":                 {notify.Describe(outcome)},
		"parse_mode":           {"Markdown"},
		"disable_notification": {strconv.FormatBool(!outcome.Improved())},
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("telegram: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		// url.Error would echo the token-bearing URL.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("telegram: send message: %w", err)
	}
	defer resp.Body.Close()

	var body apiResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode == http.StatusOK && (decodeErr != nil || body.OK) {
		return nil
	}
	if body.Description != "" {
		return fmt.Errorf("telegram: %s (%d)", body.Description, resp.StatusCode)
	}
	return fmt.Errorf("telegram: unexpected status %s", resp.Status)
}
