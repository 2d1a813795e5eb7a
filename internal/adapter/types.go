// Package adapter defines the shared contract between the host and sandboxed
// adapter modules: domain types for the LLM and storage services, the adapter
// manifest, and the error taxonomy. Every provider module speaks these shapes
// regardless of its upstream wire format.
package adapter

import "encoding/json"

// Role tags a chat message with its author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
	RoleTool      Role = "tool"
)

// ChatMessage is a single turn in a conversation.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the generic chat request every LLM adapter module accepts.
// Provider-specific knobs travel opaquely in ProviderParams; the host never
// interprets them.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	MaxTokens   *uint32       `json:"max_tokens,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Seed        *int64        `json:"seed,omitempty"`
	Stream      bool          `json:"stream,omitempty"`

	ProviderParams json.RawMessage `json:"provider_params,omitempty"`
}

// Usage reports token accounting for a completed exchange.
// TotalTokens is always PromptTokens + CompletionTokens.
type Usage struct {
	PromptTokens     uint32 `json:"prompt_tokens"`
	CompletionTokens uint32 `json:"completion_tokens"`
	TotalTokens      uint32 `json:"total_tokens"`
}

// FinishReasonStop is the terminal finish reason reported by providers that
// expose no richer taxonomy.
const FinishReasonStop = "stop"

// ChatResponse is the generic result shape returned by parse_response.
type ChatResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`
}

// StreamChunk is one increment of a streamed chat response.
type StreamChunk struct {
	Sequence     uint64 `json:"sequence"`
	Content      string `json:"content"`
	IsFinal      bool   `json:"is_final"`
	Usage        *Usage `json:"usage,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// HTTPConfig is the external call descriptor a module returns from
// prepare_request. The host performs the described call itself; modules have
// no network capability.
type HTTPConfig struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// HTTPResponse is the raw transport result handed to parse_response.
type HTTPResponse struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body"`
}
