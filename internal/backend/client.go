// Package backend implements the HTTP client for the external conversation
// backend, the service of record for conversation persistence. The contract:
// GET recent turns for a conversation, POST a new turn, POST to create a
// conversation. Turn creation is idempotent-safe on retry because the client
// supplies the message identifier.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/archielabs/archie/internal/conversation"
)

// ErrUnavailable indicates the backend could not be reached or answered with
// an error status. Reads degrade, writes surface as warnings.
var ErrUnavailable = errors.New("backend unavailable")

// maxErrorBodySize limits how much of an error response body is read.
const maxErrorBodySize = 1 * 1024 * 1024

// Config configures the backend client.
type Config struct {
	// Endpoint is the backend base URL.
	Endpoint string
	// Timeout applies per call.
	Timeout time.Duration
}

// Client talks to the external backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a backend client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    cfg.Endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// TurnRecord is the payload persisted for one exchanged message.
type TurnRecord struct {
	MessageID  string          `json:"message_id"`
	Role       string          `json:"role"`
	Text       string          `json:"text"`
	TextFormat string          `json:"text_format,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type turnPage struct {
	Turns []conversation.Turn `json:"turns"`
}

type createConversationResponse struct {
	ConversationID string `json:"conversation_id"`
}

// RecentTurns fetches up to limit recent turns for a conversation, oldest
// first. Implements conversation.HistorySource.
func (c *Client) RecentTurns(ctx context.Context, conversationID string, limit int) ([]conversation.Turn, error) {
	u := fmt.Sprintf("%s/conversations/%s/turns?limit=%s",
		c.baseURL, url.PathEscape(conversationID), strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, body)
	}

	var page turnPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("%w: decode turns: %v", ErrUnavailable, err)
	}
	return page.Turns, nil
}

// CreateConversation asks the backend for a new conversation identifier.
func (c *Client) CreateConversation(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/conversations", nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return "", fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, body)
	}

	var created createConversationResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("%w: decode conversation: %v", ErrUnavailable, err)
	}
	if created.ConversationID == "" {
		return "", fmt.Errorf("%w: empty conversation id", ErrUnavailable)
	}
	return created.ConversationID, nil
}

// SaveTurn persists one turn to a conversation. Safe to retry: the backend
// de-duplicates on the client-supplied message id.
func (c *Client) SaveTurn(ctx context.Context, conversationID string, rec TurnRecord) error {
	if rec.MessageID == "" {
		rec.MessageID = NewMessageID()
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	u := fmt.Sprintf("%s/conversations/%s/turns", c.baseURL, url.PathEscape(conversationID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, respBody)
	}
	return nil
}

// NewMessageID returns a fresh client-side message identifier.
func NewMessageID() string {
	return "msg_" + uuid.New().String()
}
