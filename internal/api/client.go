// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the client for the remote chat service.
package api

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
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Configuration constants for the chat service API.
const (
	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 15 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for
	// transient errors.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 5 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion attacks.
	MaxResponseSize = 2 * 1024 * 1024 // 2MB limit

	// sendPath is the message submission endpoint.
	sendPath = "/api/chatbot/message/"

	// messagesPath is the polling endpoint.
	messagesPath = "/api/chatbot/conversation/messages/"
)

// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
// Shared HTTP client with connection pooling for all chat service requests.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
	Timeout: DefaultTimeout,
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotConfigured indicates the base URL is not set.
	ErrNotConfigured = errors.New("chat service base URL not configured")

	// ErrSessionRequired indicates a request was made without a session id.
	ErrSessionRequired = errors.New("session id is required")

	// ErrMessageRequired indicates an empty message was submitted.
	ErrMessageRequired = errors.New("message text is required")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")
)

// APIError represents an error response from the chat service.
type APIError struct {
	Message string
	Status  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("chat service error (HTTP %d): %s", e.Status, e.Message)
}

// apiErrorResponse is the error payload shape used by the service.
type apiErrorResponse struct {
	Error string `json:"error"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// SendResponse is the reply to a message submission.
type SendResponse struct {
	// Message is the automated reply text. Empty when the reply was
	// silently blocked.
	Message string `json:"message"`

	// ResponseTimeMs is the server-side generation latency.
	ResponseTimeMs int64 `json:"response_time_ms"`

	// SessionID echoes the conversation identity.
	SessionID string `json:"session_id"`

	// ManualReplyActive is the authoritative reply-authorship flag.
	ManualReplyActive bool `json:"manual_reply_active"`

	// SilentBlock is set when an operator has taken over and the
	// automated reply was suppressed on purpose.
	SilentBlock bool `json:"silent_block"`

	// ConversationCompleted is set when the server has ended the
	// conversation and will not accept further messages.
	ConversationCompleted bool `json:"conversation_completed"`

	// Status is the server-side conversation status.
	Status string `json:"status"`

	// UserMessageID is the server-assigned id of the submitted user
	// message, when the server reports it.
	UserMessageID *int64 `json:"user_message_id"`

	// MessageID is the server-assigned id of the automated reply, when
	// the server reports it.
	MessageID *int64 `json:"message_id"`
}

// RawMessage is one server-reported message from the polling endpoint.
type RawMessage struct {
	ID             int64     `json:"id"`
	MessageType    string    `json:"message_type"`
	Content        string    `json:"content"`
	IsAdminReply   bool      `json:"is_admin_reply"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	Timestamp      time.Time `json:"timestamp"`
}

// MessagesResponse is the reply to a poll for new messages.
type MessagesResponse struct {
	Messages          []RawMessage `json:"messages"`
	ManualReplyActive bool         `json:"manual_reply_active"`
	Status            string       `json:"status"`
	LatestMessageID   int64        `json:"latest_message_id"`
	HasNewMessages    bool         `json:"has_new_messages"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is a client for the remote chat service.
type Client struct {
	baseURL    string
	maxRetries int
	timeout    time.Duration
	userAgent  string
	log        zerolog.Logger
}

// NewClient creates a new chat service client for the given base URL.
// If the base URL is empty, the client is still created but requests fail
// with ErrNotConfigured.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		maxRetries: DefaultMaxRetries,
		timeout:    DefaultTimeout,
		userAgent:  "supportwidget/0.1.0",
		log:        zerolog.Nop(),
	}
}

// WithBaseURL sets a custom base URL.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimSuffix(strings.TrimSpace(u), "/")
	return c
}

// WithTimeout sets the per-request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.timeout = timeout
	}
	return c
}

// WithMaxRetries sets the maximum number of retry attempts.
func (c *Client) WithMaxRetries(maxRetries int) *Client {
	if maxRetries > 0 {
		c.maxRetries = maxRetries
	}
	return c
}

// WithLogger sets the logger used for request logging.
func (c *Client) WithLogger(log zerolog.Logger) *Client {
	c.log = log
	return c
}

// IsConfigured returns true if the client has a base URL.
func (c *Client) IsConfigured() bool {
	return c.baseURL != ""
}

// =============================================================================
// OPERATIONS
// =============================================================================

// sendRequest is the message submission payload.
type sendRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// SendMessage submits a user message and returns the service's reply.
// Transient failures are retried with exponential backoff.
func (c *Client) SendMessage(ctx context.Context, sessionID, text string) (*SendResponse, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if sessionID == "" {
		return nil, ErrSessionRequired
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrMessageRequired
	}

	body, err := json.Marshal(sendRequest{Message: text, SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp SendResponse
	if err := c.doWithRetry(ctx, http.MethodPost, c.baseURL+sendPath, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LatestMessages fetches messages with server ids greater than afterID.
// afterID 0 fetches the full conversation.
func (c *Client) LatestMessages(ctx context.Context, sessionID string, afterID int64) (*MessagesResponse, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if sessionID == "" {
		return nil, ErrSessionRequired
	}

	params := url.Values{}
	params.Set("session_id", sessionID)
	if afterID > 0 {
		params.Set("last_message_id", strconv.FormatInt(afterID, 10))
	}

	var resp MessagesResponse
	u := c.baseURL + messagesPath + "?" + params.Encode()
	if err := c.doWithRetry(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// =============================================================================
// TRANSPORT
// =============================================================================

// doWithRetry performs a request with retry logic and exponential backoff,
// decoding a successful response into out.
func (c *Client) doWithRetry(ctx context.Context, method, requestURL string, body []byte, out any) error {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := c.doRequest(ctx, method, requestURL, body, out)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
		c.log.Debug().Err(err).Int("attempt", attempt+1).Msg("retrying chat service request")
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request and decodes the response.
// PERFORMANCE: Uses the shared HTTP client with connection pooling.
func (c *Client) doRequest(ctx context.Context, method, requestURL string, body []byte, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, requestURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("chat service request")

	data, err := readResponse(resp)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return handleErrorResponse(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// readResponse reads the response body with a size limit.
// SECURITY: Response size limit prevents memory exhaustion.
func readResponse(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, MaxResponseSize)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// handleErrorResponse converts HTTP error responses to Go errors.
func handleErrorResponse(statusCode int, body []byte) error {
	message := strings.TrimSpace(string(body))

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		message = apiErr.Error
	}

	if statusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", ErrRateLimited, message)
	}

	return &APIError{Message: message, Status: statusCode}
}

// isRetryable determines if an error should trigger a retry.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 && apiErr.Status < 600
	}

	// Remaining transport-level failures (connection refused, resets) are
	// worth one more try; the operations are idempotent.
	return strings.Contains(err.Error(), "request failed")
}

// calculateBackoff returns the delay before the next retry attempt.
func calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
