// Package api is the REST client for the chat backend's session
// surface. Every response is wrapped in the {code,message,data}
// envelope; code 200 is success and anything else is a business
// failure surfaced as *Error.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aria-ai/chat-engine/internal/model"
	"github.com/aria-ai/chat-engine/pkg/logger"
	"github.com/aria-ai/chat-engine/pkg/metrics"
)

// Error is a business failure reported by the backend envelope.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend error %d: %s", e.Code, e.Message)
}

// Client talks to the session REST surface.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	logger     *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAuthToken sets the bearer token attached to every request.
func WithAuthToken(token string) Option {
	return func(c *Client) { c.authToken = token }
}

// NewClient creates a REST client rooted at baseURL (including the
// API prefix, e.g. "http://localhost:8080/api/aria").
func NewClient(baseURL string, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateSession creates a conversation and returns its id.
// The request body is the bare title, JSON-encoded.
func (c *Client) CreateSession(ctx context.Context, title string) (string, error) {
	var id string
	err := c.call(ctx, http.MethodPost, "/session", nil, title, &id)
	return id, err
}

// ListSessions fetches one page of the conversation directory.
// lastConversationID is the pagination cursor; empty means the first
// page.
func (c *Client) ListSessions(ctx context.Context, lastConversationID string, pageSize int) ([]model.Conversation, error) {
	q := url.Values{}
	if lastConversationID != "" {
		q.Set("lastConversationId", lastConversationID)
	}
	q.Set("pageSize", strconv.Itoa(pageSize))

	var sessions []model.Conversation
	err := c.call(ctx, http.MethodGet, "/session/list", q, nil, &sessions)
	return sessions, err
}

// DeleteSession deletes one conversation.
func (c *Client) DeleteSession(ctx context.Context, conversationID string, clearChatMemory bool) (bool, error) {
	q := url.Values{}
	q.Set("clearChatMemory", strconv.FormatBool(clearChatMemory))

	var deleted bool
	err := c.call(ctx, http.MethodDelete, "/session/"+url.PathEscape(conversationID), q, nil, &deleted)
	return deleted, err
}

// BatchDeleteSessions deletes several conversations and returns the
// count the backend removed.
func (c *Client) BatchDeleteSessions(ctx context.Context, conversationIDs []string, clearChatMemory bool) (int, error) {
	q := url.Values{}
	q.Set("clearChatMemory", strconv.FormatBool(clearChatMemory))

	var count int
	err := c.call(ctx, http.MethodDelete, "/session/batch-delete", q, conversationIDs, &count)
	return count, err
}

// ChatHistory fetches one page of a conversation's history, newest
// first relative to the cursor. lastMessageTimestamp is the cursor;
// empty means the newest page.
func (c *Client) ChatHistory(ctx context.Context, conversationID, lastMessageTimestamp string, pageSize int) ([]model.HistoryEntry, error) {
	q := url.Values{}
	if lastMessageTimestamp != "" {
		q.Set("lastMessageTimeStamp", lastMessageTimestamp)
	}
	q.Set("pageSize", strconv.Itoa(pageSize))

	var entries []model.HistoryEntry
	err := c.call(ctx, http.MethodGet, "/session/history/"+url.PathEscape(conversationID), q, nil, &entries)
	return entries, err
}

// call performs one envelope-wrapped request. out is decoded from the
// envelope's data field on success.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordSessionCall(method, path, "network_error", time.Since(start).Seconds())
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordSessionCall(method, path, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
		c.logger.Warn("session call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	var envelope model.Envelope[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		metrics.RecordSessionCall(method, path, "decode_error", time.Since(start).Seconds())
		return fmt.Errorf("decode response: %w", err)
	}

	if !envelope.OK() {
		metrics.RecordSessionCall(method, path, "business_error", time.Since(start).Seconds())
		return &Error{Code: envelope.Code, Message: envelope.Message}
	}
	metrics.RecordSessionCall(method, path, "ok", time.Since(start).Seconds())

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
