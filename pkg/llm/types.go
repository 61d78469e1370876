// Package llm provides the LLM provider client used for scenario generation
// and QA evaluation: a raw HTTP client speaking the chat-completions wire
// format, and a resilient decorator composing bulkhead, rate limiter, circuit
// breaker, retry, and fallback around it.
package llm

import "context"

// Message roles on the chat-completions wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ResponseFormat values accepted by the provider.
const (
	ResponseFormatJSON = "json_object"
)

// FallbackID marks a synthetic response produced when the provider is
// unavailable. Callers check AiResponse.IsFallback.
const FallbackID = "fallback"

// AiMessage is one chat message.
type AiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AiRequest is a chat-completions request.
type AiRequest struct {
	Model          string      `json:"model"`
	Messages       []AiMessage `json:"messages"`
	Temperature    float64     `json:"temperature,omitempty"`
	MaxTokens      int         `json:"max_tokens,omitempty"`
	Stream         bool        `json:"stream,omitempty"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

// WithJSONResponse requests a JSON-object response from the provider.
func (r *AiRequest) WithJSONResponse() *AiRequest {
	r.ResponseFormat = &struct {
		Type string `json:"type"`
	}{Type: ResponseFormatJSON}
	return r
}

// AiChoice is one completion choice.
type AiChoice struct {
	Message      AiMessage `json:"message"`
	FinishReason string    `json:"finish_reason"`
}

// AiUsage reports token accounting.
type AiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// AiResponse is a chat-completions response.
type AiResponse struct {
	ID      string     `json:"id"`
	Model   string     `json:"model"`
	Choices []AiChoice `json:"choices"`
	Usage   AiUsage    `json:"usage"`
}

// Content returns the first choice's message content, or "".
func (r *AiResponse) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// IsFallback reports whether the response is the synthetic unavailability
// payload rather than a real provider answer.
func (r *AiResponse) IsFallback() bool {
	return r != nil && r.ID == FallbackID
}

// Stream chunk finish reasons.
const (
	FinishReasonStop  = "stop"
	FinishReasonError = "ERROR"
)

// StreamChunk is one element of a streaming completion. A chunk with a
// non-empty FinishReason is terminal; FinishReasonError carries the failure
// in Error.
type StreamChunk struct {
	Content      string
	FinishReason string
	Error        string
}

// Client is the LLM provider port. Complete and Stream honor ctx
// cancellation; Healthy is a cheap liveness probe.
type Client interface {
	Complete(ctx context.Context, req *AiRequest) (*AiResponse, error)
	Stream(ctx context.Context, req *AiRequest) (<-chan StreamChunk, error)
	Healthy(ctx context.Context) bool
}
