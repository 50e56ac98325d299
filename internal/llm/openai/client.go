package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gmarmat/jotrack/internal/llm"
)

const defaultAPIURL = "https://api.openai.com/v1/chat/completions"

// Client implements llm.Client using OpenAI Chat Completions.
type Client struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
}

// NewClient constructs a new OpenAI client.
func NewClient(apiKey string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	timeout := 120 * time.Second
	if raw := strings.TrimSpace(os.Getenv("OPENAI_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}
	apiURL := strings.TrimSpace(os.Getenv("OPENAI_API_URL"))
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Client{
		apiKey: apiKey,
		apiURL: apiURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    *float32       `json:"temperature,omitempty"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat responseFormat `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends one JSON-mode chat completion. The caller is responsible
// for timeouts via ctx; non-2xx statuses are surfaced as UpstreamError so
// the caller can classify retryability.
func (c *Client) Complete(ctx context.Context, prompt, model string, maxTokens int) (llm.Result, error) {
	if strings.TrimSpace(model) == "" {
		return llm.Result{}, fmt.Errorf("model is required")
	}

	temp := float32(0)
	reqBody := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature:    &temp,
		MaxTokens:      maxTokens,
		ResponseFormat: responseFormat{Type: "json_object"},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return llm.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return llm.Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return llm.Result{}, fmt.Errorf("openai request timeout: %w", err)
		}
		return llm.Result{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.Result{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return llm.Result{}, &llm.UpstreamError{
			StatusCode: resp.StatusCode,
			Message:    upstreamMessage(body),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return llm.Result{}, fmt.Errorf("openai response parse: %w", err)
	}
	if parsed.Error != nil {
		return llm.Result{}, &llm.UpstreamError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s (%s)", parsed.Error.Message, parsed.Error.Type),
		}
	}
	if len(parsed.Choices) == 0 {
		return llm.Result{}, fmt.Errorf("openai response missing choices")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return llm.Result{}, fmt.Errorf("openai response empty content")
	}

	result := llm.Result{JSON: json.RawMessage(content)}
	if parsed.Usage != nil {
		result.Usage = llm.Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		}
	}
	return result, nil
}

func upstreamMessage(body []byte) string {
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil {
		return parsed.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	const maxLen = 200
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}

var _ llm.Client = (*Client)(nil)
