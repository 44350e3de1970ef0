// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// SEND TESTS
// =============================================================================

func TestSendMessage_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != sendPath {
			t.Errorf("path = %s", r.URL.Path)
		}

		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Message != "hello" || req.SessionID != "sess-1" {
			t.Errorf("request = %+v", req)
		}

		userID := int64(41)
		msgID := int64(42)
		json.NewEncoder(w).Encode(SendResponse{
			Message:           "hi there",
			ResponseTimeMs:    120,
			SessionID:         "sess-1",
			ManualReplyActive: false,
			UserMessageID:     &userID,
			MessageID:         &msgID,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	resp, err := client.SendMessage(context.Background(), "sess-1", "hello")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if resp.Message != "hi there" {
		t.Errorf("message = %q", resp.Message)
	}
	if resp.UserMessageID == nil || *resp.UserMessageID != 41 {
		t.Errorf("user message id = %v", resp.UserMessageID)
	}
	if resp.MessageID == nil || *resp.MessageID != 42 {
		t.Errorf("message id = %v", resp.MessageID)
	}
}

func TestSendMessage_SilentBlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(SendResponse{
			Message:           "",
			SessionID:         "sess-1",
			ManualReplyActive: true,
			SilentBlock:       true,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	resp, err := client.SendMessage(context.Background(), "sess-1", "hello")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if !resp.SilentBlock {
		t.Error("silent block flag lost")
	}
	if !resp.ManualReplyActive {
		t.Error("manual reply flag lost")
	}
	if resp.MessageID != nil {
		t.Errorf("message id should be absent, got %v", resp.MessageID)
	}
}

func TestSendMessage_Validation(t *testing.T) {
	client := NewClient("http://localhost:1")

	if _, err := client.SendMessage(context.Background(), "", "hello"); !errors.Is(err, ErrSessionRequired) {
		t.Errorf("empty session: %v", err)
	}
	if _, err := client.SendMessage(context.Background(), "sess", "   "); !errors.Is(err, ErrMessageRequired) {
		t.Errorf("blank message: %v", err)
	}

	unconfigured := NewClient("")
	if _, err := unconfigured.SendMessage(context.Background(), "sess", "hi"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("unconfigured: %v", err)
	}
}

func TestSendMessage_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "Message is required"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.SendMessage(context.Background(), "sess-1", "hello")
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T", err)
	}
	if apiErr.Status != http.StatusBadRequest {
		t.Errorf("status = %d", apiErr.Status)
	}
	if apiErr.Message != "Message is required" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestSendMessage_RetriesOn500(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(SendResponse{Message: "recovered", SessionID: "sess-1"})
	}))
	defer server.Close()

	client := NewClient(server.URL).WithMaxRetries(3)
	resp, err := client.SendMessage(context.Background(), "sess-1", "hello")
	if err != nil {
		t.Fatalf("SendMessage failed after retries: %v", err)
	}
	if resp.Message != "recovered" {
		t.Errorf("message = %q", resp.Message)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestSendMessage_NoRetryOn400(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "bad"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL).WithMaxRetries(3)
	if _, err := client.SendMessage(context.Background(), "sess-1", "hello"); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("client errors must not be retried, calls = %d", calls.Load())
	}
}

func TestSendMessage_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "slow down"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL).WithMaxRetries(1)
	_, err := client.SendMessage(context.Background(), "sess-1", "hello")
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("error = %v, want ErrRateLimited", err)
	}
}

// =============================================================================
// POLL TESTS
// =============================================================================

func TestLatestMessages_QueryParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != messagesPath {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("session_id") != "sess-1" {
			t.Errorf("session_id = %q", q.Get("session_id"))
		}
		if q.Get("last_message_id") != "5" {
			t.Errorf("last_message_id = %q", q.Get("last_message_id"))
		}

		json.NewEncoder(w).Encode(MessagesResponse{
			Messages: []RawMessage{
				{ID: 6, MessageType: "assistant", Content: "reply", Timestamp: time.Now()},
				{ID: 7, MessageType: "assistant", Content: "operator", IsAdminReply: true, Timestamp: time.Now()},
			},
			ManualReplyActive: true,
			LatestMessageID:   7,
			HasNewMessages:    true,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	resp, err := client.LatestMessages(context.Background(), "sess-1", 5)
	if err != nil {
		t.Fatalf("LatestMessages failed: %v", err)
	}
	if len(resp.Messages) != 2 {
		t.Fatalf("got %d messages", len(resp.Messages))
	}
	if !resp.ManualReplyActive {
		t.Error("manual reply flag lost")
	}
	if resp.LatestMessageID != 7 {
		t.Errorf("latest id = %d", resp.LatestMessageID)
	}
}

func TestLatestMessages_ZeroWatermarkOmitsParam(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("last_message_id") {
			t.Error("last_message_id should be omitted for a zero watermark")
		}
		json.NewEncoder(w).Encode(MessagesResponse{})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if _, err := client.LatestMessages(context.Background(), "sess-1", 0); err != nil {
		t.Fatalf("LatestMessages failed: %v", err)
	}
}

func TestLatestMessages_SessionRequired(t *testing.T) {
	client := NewClient("http://localhost:1")
	if _, err := client.LatestMessages(context.Background(), "", 0); !errors.Is(err, ErrSessionRequired) {
		t.Errorf("error = %v", err)
	}
}

// =============================================================================
// BACKOFF TESTS
// =============================================================================

func TestCalculateBackoff(t *testing.T) {
	testCases := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, 1 * time.Second},
		{3, 2 * time.Second},
		{4, 4 * time.Second},
		{5, 5 * time.Second}, // capped
		{10, 5 * time.Second},
	}

	for _, tc := range testCases {
		if got := calculateBackoff(tc.attempt); got != tc.expected {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tc.attempt, got, tc.expected)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if isRetryable(context.Canceled) {
		t.Error("cancellation is not retryable")
	}
	if !isRetryable(&APIError{Status: 503}) {
		t.Error("5xx should be retryable")
	}
	if isRetryable(&APIError{Status: 404}) {
		t.Error("4xx should not be retryable")
	}
}
