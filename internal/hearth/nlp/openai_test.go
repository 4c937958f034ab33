package nlp_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bdobrica/hearth/common/retry"
	"github.com/bdobrica/hearth/internal/hearth/nlp"
)

// buildOAIResponse builds a minimal OpenAI-style response body whose single
// choice message has the given content string.
func buildOAIResponse(content string) []byte {
	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	type choice struct {
		Message      msg    `json:"message"`
		FinishReason string `json:"finish_reason"`
	}
	type resp struct {
		Model   string   `json:"model"`
		Choices []choice `json:"choices"`
	}
	b, _ := json.Marshal(resp{
		Model:   "test-model",
		Choices: []choice{{Message: msg{Role: "assistant", Content: content}, FinishReason: "stop"}},
	})
	return b
}

func newCompleter(url string) nlp.Completer {
	return nlp.NewOpenAI(nlp.Config{
		APIKey:  "sk-test",
		BaseURL: url,
		Retry:   retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	})
}

func TestOpenAI_SendsStructuredOutputRequest(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("authorization: got %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write(buildOAIResponse(`{"intent":"unclear","confidence":0.1}`))
	}))
	defer srv.Close()

	c, err := newCompleter(srv.URL).Complete(context.Background(), nlp.CompletionRequest{
		System:     "sys",
		User:       "hello",
		SchemaName: nlp.SchemaName,
		Schema:     json.RawMessage(nlp.IntentSchema),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Content != `{"intent":"unclear","confidence":0.1}` {
		t.Errorf("content: got %q", c.Content)
	}
	if c.Model != "test-model" {
		t.Errorf("model: got %q", c.Model)
	}

	rf, _ := got["response_format"].(map[string]any)
	if rf["type"] != "json_schema" {
		t.Errorf("response_format.type: got %v", rf["type"])
	}
	js, _ := rf["json_schema"].(map[string]any)
	if js["name"] != nlp.SchemaName {
		t.Errorf("json_schema.name: got %v", js["name"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages: got %d", len(msgs))
	}
}

func TestOpenAI_RateLimitIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newCompleter(srv.URL).Complete(context.Background(), nlp.CompletionRequest{User: "x"})
	if !errors.Is(err, nlp.ErrRateLimit) {
		t.Fatalf("expected ErrRateLimit, got %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls: got %d, want 1", n)
	}
}

func TestOpenAI_ServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write(buildOAIResponse(`{}`))
	}))
	defer srv.Close()

	if _, err := newCompleter(srv.URL).Complete(context.Background(), nlp.CompletionRequest{User: "x"}); err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("calls: got %d, want 2", n)
	}
}

func TestOpenAI_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := newCompleter(srv.URL).Complete(context.Background(), nlp.CompletionRequest{User: "x"})
	if err == nil || !strings.Contains(err.Error(), "bad key") {
		t.Fatalf("expected API error, got %v", err)
	}
}

func TestOpenAI_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newCompleter(srv.URL).Complete(ctx, nlp.CompletionRequest{User: "x"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
