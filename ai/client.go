package ai

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

	"teachprep-server-go/config"
	"teachprep-server-go/logger"
	"teachprep-server-go/models"
)

// Client is the completion API surface the rest of the server depends on.
// The production implementation talks to an OpenAI-compatible endpoint.
type Client interface {
	ChatCompletion(ctx context.Context, req Request) (string, error)
	StreamChatCompletion(ctx context.Context, req Request, onDelta func(delta string)) (string, error)
	Model() string
}

// Request mirrors the chat/completions request body. Zero-valued optional
// fields are omitted on the wire.
type Request struct {
	Model       string               `json:"model"`
	Messages    []models.ChatMessage `json:"messages"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
	Temperature float64              `json:"temperature,omitempty"`
	TopP        float64              `json:"top_p,omitempty"`
	Stream      bool                 `json:"stream,omitempty"`
}

type response struct {
	ID      string    `json:"id"`
	Model   string    `json:"model"`
	Choices []choice  `json:"choices"`
	Usage   Usage     `json:"usage"`
	Error   *APIError `json:"error,omitempty"`
}

type choice struct {
	Index        int                `json:"index"`
	Message      models.ChatMessage `json:"message"`
	Delta        delta              `json:"delta"`
	FinishReason string             `json:"finish_reason"`
}

type delta struct {
	Content string `json:"content"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("completion api http %d: %s", e.StatusCode, e.Body)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
	httpClient *http.Client
}

// NewClient builds the completion client from config.
func NewClient(cfg *config.Config, log *logger.Logger) (Client, error) {
	if cfg.AIAPIKey == "" {
		return nil, fmt.Errorf("missing SILICONFLOW_API_KEY")
	}
	return &client{
		log:        log.With("service", "AIClient"),
		baseURL:    strings.TrimRight(cfg.AIBaseURL, "/"),
		apiKey:     cfg.AIAPIKey,
		model:      cfg.AIModel,
		maxRetries: cfg.AIMaxRetries,
		httpClient: &http.Client{Timeout: cfg.AITimeout},
	}, nil
}

func (c *client) Model() string { return c.model }

// ChatCompletion performs a blocking completion call and returns the
// first choice's message content. Retries on 429/5xx and transport errors.
func (c *client) ChatCompletion(ctx context.Context, req Request) (string, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	req.Stream = false

	backoff := time.Second
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		raw, err := c.doOnce(ctx, req)
		if err == nil {
			var resp response
			if uErr := json.Unmarshal(raw, &resp); uErr != nil {
				return "", fmt.Errorf("decode completion response: %w", uErr)
			}
			if resp.Error != nil {
				return "", fmt.Errorf("completion api error: %s", resp.Error.Message)
			}
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("no choices returned by completion api")
			}
			return strings.TrimSpace(resp.Choices[0].Message.Content), nil
		}

		lastErr = err
		if !isRetryable(err) || attempt == c.maxRetries {
			return "", err
		}
		c.log.Warn("completion request retrying",
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", backoff.String(),
			"error", err.Error(),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		backoff *= 2
	}
	return "", lastErr
}

// StreamChatCompletion performs a streaming completion call, forwarding each
// content delta to onDelta. Returns the accumulated text.
func (c *client) StreamChatCompletion(ctx context.Context, req Request, onDelta func(delta string)) (string, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	req.Stream = true

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", &buf)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return "", &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var full strings.Builder
	err = streamSSE(resp.Body, func(_ string, data string) error {
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			return nil
		}
		var chunk response
		if uErr := json.Unmarshal([]byte(data), &chunk); uErr != nil {
			// Providers occasionally emit keep-alive junk; skip it.
			return nil
		}
		if chunk.Error != nil {
			return fmt.Errorf("completion stream error: %s", chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			return nil
		}
		d := chunk.Choices[0].Delta.Content
		if d == "" {
			return nil
		}
		full.WriteString(d)
		if onDelta != nil {
			onDelta(d)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return full.String(), nil
}

func (c *client) doOnce(ctx context.Context, req Request) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", &buf)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

func isRetryable(err error) bool {
	var he *httpError
	if errors.As(err, &he) {
		return he.StatusCode == http.StatusTooManyRequests || he.StatusCode >= 500
	}
	// Transport-level failures are worth one more try.
	return true
}
