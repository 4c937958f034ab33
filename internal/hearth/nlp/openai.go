package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bdobrica/hearth/common/retry"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultModel       = "gpt-4o-mini"
	defaultHTTPTimeout = 30 * time.Second
	maxReplyTokens     = 512
)

// Config configures the OpenAI-compatible completion client.
type Config struct {
	// APIKey is the bearer token used to authenticate against the API.
	APIKey string

	// BaseURL overrides the API endpoint.  Useful for local models (Ollama),
	// Azure OpenAI, or any other OpenAI-compatible endpoint.
	// Defaults to https://api.openai.com/v1 when empty.
	BaseURL string

	// Model is the chat model to use.  Defaults to gpt-4o-mini.
	Model string

	// Timeout is the HTTP client timeout.  The parser applies its own,
	// shorter, per-message deadline on top.
	Timeout time.Duration

	// Retry controls retries of transport errors and 5xx replies.
	// Zero value means retry.DefaultConfig.
	Retry retry.Config
}

// openAICompleter implements Completer using the chat completions API with
// json_schema structured output.
type openAICompleter struct {
	cfg    Config
	client *http.Client
}

// NewOpenAI returns a Completer backed by the OpenAI (or compatible) chat
// API.  The returned completer is safe for concurrent use.
func NewOpenAI(cfg Config) Completer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig
	}
	return &openAICompleter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// --- minimal OpenAI wire types ---

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiRequest struct {
	Model          string       `json:"model"`
	Messages       []oaiMessage `json:"messages"`
	MaxTokens      int          `json:"max_tokens,omitempty"`
	Temperature    float64      `json:"temperature"`
	ResponseFormat *oaiFormat   `json:"response_format,omitempty"`
}

type oaiFormat struct {
	Type       string         `json:"type"` // "json_schema"
	JSONSchema *oaiJSONSchema `json:"json_schema,omitempty"`
}

type oaiJSONSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict"`
}

type oaiResponse struct {
	Model   string      `json:"model"`
	Choices []oaiChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

// Complete sends one chat completion request.  Transport errors and 5xx
// replies are retried within ctx; 429 maps to ErrRateLimit and is not
// retried.
func (p *openAICompleter) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	body := oaiRequest{
		Model: p.cfg.Model,
		Messages: []oaiMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		MaxTokens: maxReplyTokens,
	}
	if len(req.Schema) > 0 {
		body.ResponseFormat = &oaiFormat{
			Type:       "json_schema",
			JSONSchema: &oaiJSONSchema{Name: req.SchemaName, Schema: req.Schema},
		}
	} else {
		body.ResponseFormat = &oaiFormat{Type: "json_object"}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("nlp: marshal request: %w", err)
	}

	var out *Completion
	start := time.Now()
	err = retry.Do(ctx, p.cfg.Retry, func() error {
		c, err := p.send(ctx, data)
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Latency = time.Since(start)
	return out, nil
}

func (p *openAICompleter) send(ctx context.Context, data []byte) (*Completion, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/chat/completions",
		bytes.NewReader(data),
	)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("nlp: create http request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, retry.Permanent(fmt.Errorf("nlp: http request: %w", err))
		}
		return nil, fmt.Errorf("nlp: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("nlp: read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, retry.Permanent(ErrRateLimit)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("nlp: upstream HTTP %d", resp.StatusCode)
	}

	var oaiResp oaiResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return nil, retry.Permanent(fmt.Errorf("nlp: decode API response (HTTP %d): %w", resp.StatusCode, err))
	}
	if oaiResp.Error != nil {
		return nil, retry.Permanent(fmt.Errorf("nlp: API error (%s): %s", oaiResp.Error.Type, oaiResp.Error.Message))
	}
	if resp.StatusCode >= 400 {
		return nil, retry.Permanent(fmt.Errorf("nlp: upstream HTTP %d", resp.StatusCode))
	}
	if len(oaiResp.Choices) == 0 {
		return nil, retry.Permanent(fmt.Errorf("nlp: no choices returned (HTTP %d)", resp.StatusCode))
	}

	return &Completion{
		Content: oaiResp.Choices[0].Message.Content,
		Model:   oaiResp.Model,
	}, nil
}
