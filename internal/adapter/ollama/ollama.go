// Package ollama translates the generic chat contract into the Ollama HTTP
// API and back. The functions are pure: they build the external call
// descriptor and interpret raw transport results, but perform no I/O
// themselves. The guest binary under adapters/llm/ollama exports them to the
// sandbox; tests exercise them directly.
package ollama

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ChristianGrete/ai-messenger/internal/adapter"
)

const (
	// DefaultBaseURL is used when neither the adapter configuration nor the
	// request's provider_params override it.
	DefaultBaseURL = "http://localhost:11434"
	chatPath       = "/api/chat"
)

// Config is the adapter configuration accepted by the module's init call.
type Config struct {
	BaseURL string `json:"base_url,omitempty"`
}

// providerParams is the subset of provider_params this adapter understands.
type providerParams struct {
	BaseURL string `json:"base_url,omitempty"`
}

// Ollama wire types.

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []message      `json:"messages"`
	Options  map[string]any `json:"options,omitempty"`
	Stream   bool           `json:"stream"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model           string  `json:"model"`
	Message         message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount *uint32 `json:"prompt_eval_count,omitempty"`
	EvalCount       *uint32 `json:"eval_count,omitempty"`
}

// PrepareRequest maps a generic chat request onto Ollama's /api/chat wire
// format and selects the destination URL. cfg comes from the adapter's init
// configuration; the request's provider_params take precedence over it.
func PrepareRequest(cfg Config, req adapter.ChatRequest) (adapter.HTTPConfig, error) {
	wire := chatRequest{
		Model:    req.Model,
		Messages: make([]message, 0, len(req.Messages)),
		Options:  buildOptions(req),
		Stream:   req.Stream,
	}
	for _, m := range req.Messages {
		wire.Messages = append(wire.Messages, message{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return adapter.HTTPConfig{}, fmt.Errorf("serializing request: %w", err)
	}

	baseURL := cfg.BaseURL
	if len(req.ProviderParams) > 0 {
		var params providerParams
		// Unknown or malformed provider_params fall back to the configured URL.
		if err := json.Unmarshal(req.ProviderParams, &params); err == nil && params.BaseURL != "" {
			baseURL = params.BaseURL
		}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return adapter.HTTPConfig{
		URL: strings.TrimSuffix(baseURL, "/") + chatPath,
		Headers: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
		},
		Body: string(body),
	}, nil
}

// buildOptions maps the generic sampling knobs onto Ollama's option names.
func buildOptions(req adapter.ChatRequest) map[string]any {
	opts := make(map[string]any)
	if req.Temperature != nil {
		opts["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		opts["top_p"] = *req.TopP
	}
	if req.MaxTokens != nil {
		opts["num_predict"] = *req.MaxTokens
	}
	if len(req.Stop) > 0 {
		opts["stop"] = req.Stop
	}
	if req.Seed != nil {
		opts["seed"] = *req.Seed
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

// ParseResponse interprets a raw transport result as an Ollama chat response.
// Non-success statuses are errors. Ollama exposes no finish-reason taxonomy,
// so the reason is always "stop"; missing token counts default to zero.
func ParseResponse(resp adapter.HTTPResponse) (adapter.ChatResponse, error) {
	if resp.StatusCode != 200 {
		return adapter.ChatResponse{}, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	var wire chatResponse
	if err := json.Unmarshal([]byte(resp.Body), &wire); err != nil {
		return adapter.ChatResponse{}, fmt.Errorf("parsing response: %w", err)
	}

	return adapter.ChatResponse{
		Content:      wire.Message.Content,
		Model:        wire.Model,
		FinishReason: adapter.FinishReasonStop,
		Usage:        usageOf(wire.PromptEvalCount, wire.EvalCount),
	}, nil
}

// ParseStreamChunk interprets one line of Ollama's newline-delimited JSON
// stream. Blank input yields no chunk and no error. Ollama assigns no
// sequence numbers, so Sequence stays zero; usage and finish reason appear
// only on the final chunk.
func ParseStreamChunk(chunk string) (*adapter.StreamChunk, error) {
	if strings.TrimSpace(chunk) == "" {
		return nil, nil
	}

	var wire chatResponse
	if err := json.Unmarshal([]byte(chunk), &wire); err != nil {
		return nil, fmt.Errorf("parsing stream chunk: %w", err)
	}

	out := &adapter.StreamChunk{
		Content: wire.Message.Content,
		IsFinal: wire.Done,
	}
	if wire.Done {
		out.Usage = usageOf(wire.PromptEvalCount, wire.EvalCount)
		out.FinishReason = adapter.FinishReasonStop
	}
	return out, nil
}

// usageOf builds Usage from Ollama's eval counters. No prompt count means no
// usage at all, matching upstream behavior for loaded-from-cache responses.
func usageOf(prompt, eval *uint32) *adapter.Usage {
	if prompt == nil {
		return nil
	}
	completion := uint32(0)
	if eval != nil {
		completion = *eval
	}
	return &adapter.Usage{
		PromptTokens:     *prompt,
		CompletionTokens: completion,
		TotalTokens:      *prompt + completion,
	}
}
