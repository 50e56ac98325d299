// Package llm defines the boundary to the external model provider. The
// provider is an opaque collaborator: prompt in, JSON plus token usage out.
// This core decides whether a call is necessary and how its result is
// interpreted; it never retries or times out the call itself.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Usage reports token spend for a single call.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Result is the provider's parsed response.
type Result struct {
	JSON  json.RawMessage `json:"json"`
	Usage Usage           `json:"usage"`
}

// Client abstracts the LLM provider.
type Client interface {
	Complete(ctx context.Context, prompt, model string, maxTokens int) (Result, error)
}

// UpstreamError wraps a provider failure with enough information to classify
// it as retryable. Callers own retry policy; this package only classifies.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream llm call failed: status=%d %s", e.StatusCode, e.Message)
}

// Retryable reports whether the failure class is worth retrying: rate
// limiting and server-side errors are, client errors are not.
func (e *UpstreamError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// IsRetryable classifies any error from a Complete call.
func IsRetryable(err error) bool {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Retryable()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// ErrNotImplemented is returned by the placeholder client.
var ErrNotImplemented = errors.New("LLM not implemented")

// PlaceholderClient is a stub implementation until provider wiring is added.
type PlaceholderClient struct{}

// Complete returns ErrNotImplemented.
func (PlaceholderClient) Complete(ctx context.Context, prompt, model string, maxTokens int) (Result, error) {
	_ = ctx
	_ = prompt
	_ = model
	_ = maxTokens
	return Result{}, ErrNotImplemented
}
