package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jkaninda/okapi"

	"github.com/ChristianGrete/ai-messenger/internal/adapter"
	"github.com/ChristianGrete/ai-messenger/internal/adapter/services"
)

// Message is one turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessageRequest is the JSON body for POST /v1/message/{recipient}.
type MessageRequest struct {
	Sender   string    `json:"sender,omitempty"`   // Optional sender ID.
	Group    string    `json:"group,omitempty"`    // Optional group ID.
	Provider string    `json:"provider,omitempty"` // Empty = default LLM provider.
	Model    string    `json:"model,omitempty"`
	Messages []Message `json:"messages"`
}

// MessageResponse is the JSON response for POST /v1/message/{recipient}.
type MessageResponse struct {
	Success      bool           `json:"success"`
	Message      Message        `json:"message"`
	Model        string         `json:"model"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Usage        *adapter.Usage `json:"usage,omitempty"`
	Timestamp    string         `json:"timestamp"`
}

func (g *Gateway) handleMessage(c *okapi.Context) error {
	recipient := c.Param("recipient")

	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		return g.abortError(c, adapter.Errf(adapter.KindInvalidConfig, "invalid request body"))
	}
	if len(req.Messages) == 0 {
		return g.abortError(c, adapter.Errf(adapter.KindInvalidConfig, "messages is required"))
	}
	if g.config.Limiter != nil {
		if err := g.config.Limiter.Allow(senderKey(c, req)); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	llm, ok := g.registry.LLMAdapter(req.Provider)
	if !ok {
		return g.abortError(c, adapter.Errf(adapter.KindServiceUnavailable, "no LLM adapter loaded for provider %q", req.Provider))
	}

	messageID := uuid.New().String()
	g.logger.Info("message received",
		slog.String("message_id", messageID),
		slog.String("recipient", recipient),
		slog.String("provider", llm.Provider()),
		slog.Int("turns", len(req.Messages)),
	)

	resp, err := llm.SendMessage(c.Context(), chatRequest(req))
	if err != nil {
		g.logger.Error("message processing failed",
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return g.abortError(c, err)
	}

	return c.OK(MessageResponse{
		Success: true,
		Message: Message{
			Role:    string(adapter.RoleAssistant),
			Content: resp.Content,
		},
		Model:        resp.Model,
		FinishReason: resp.FinishReason,
		Usage:        resp.Usage,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	})
}

// StreamEvent is a server-sent event payload for streaming responses.
type StreamEvent struct {
	Content      string         `json:"content,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Usage        *adapter.Usage `json:"usage,omitempty"`
}

// handleMessageStream handles POST /v1/message/{recipient}/stream with SSE
// responses. Each decoded chunk becomes one "text" event; the terminal chunk
// becomes "done".
func (g *Gateway) handleMessageStream(c *okapi.Context) error {
	recipient := c.Param("recipient")

	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		return g.abortError(c, adapter.Errf(adapter.KindInvalidConfig, "invalid request body"))
	}
	if len(req.Messages) == 0 {
		return g.abortError(c, adapter.Errf(adapter.KindInvalidConfig, "messages is required"))
	}
	if g.config.Limiter != nil {
		if err := g.config.Limiter.Allow(senderKey(c, req)); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	llm, ok := g.registry.LLMAdapter(req.Provider)
	if !ok {
		return g.abortError(c, adapter.Errf(adapter.KindServiceUnavailable, "no LLM adapter loaded for provider %q", req.Provider))
	}

	messageID := uuid.New().String()
	g.logger.Info("stream started",
		slog.String("message_id", messageID),
		slog.String("recipient", recipient),
		slog.String("provider", llm.Provider()),
	)

	err := llm.StreamMessage(c.Context(), chatRequest(req), func(chunk adapter.StreamChunk) error {
		if chunk.IsFinal {
			c.SSEvent("done", StreamEvent{
				FinishReason: chunk.FinishReason,
				Usage:        chunk.Usage,
			})
			return nil
		}
		c.SSEvent("text", StreamEvent{Content: chunk.Content})
		return nil
	})
	if err != nil {
		g.logger.Error("stream failed",
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		// Headers are already out; report the failure as a terminal event.
		c.SSEvent("error", StreamEvent{Content: err.Error()})
		return nil
	}
	return nil
}

// AdapterInfo describes one loaded adapter in list responses.
type AdapterInfo struct {
	Service  string `json:"service"`
	Provider string `json:"provider"`
	Version  string `json:"version"`
	Ready    bool   `json:"ready"`
}

// AdapterListResponse is the JSON response for GET /v1/adapters.
type AdapterListResponse struct {
	Adapters []AdapterInfo `json:"adapters"`
}

func (g *Gateway) handleAdapterList(c *okapi.Context) error {
	infos := g.registry.ListAdapters()
	resp := AdapterListResponse{Adapters: make([]AdapterInfo, 0, len(infos))}
	for _, in := range infos {
		resp.Adapters = append(resp.Adapters, AdapterInfo{
			Service:  in.Service,
			Provider: in.Provider,
			Version:  in.Version,
			Ready:    in.Ready,
		})
	}
	return c.OK(resp)
}

func (g *Gateway) handleAdapterManifest(c *okapi.Context) error {
	provider := c.Param("provider")
	m, ok := g.registry.ManifestFor(services.ServiceNameLLM, provider)
	if !ok {
		return c.JSON(http.StatusNotFound, errorBody(
			adapter.Errf(adapter.KindServiceUnavailable, "no manifest for provider %q", provider)))
	}
	return c.OK(m)
}

// HealthResponse is the JSON response for the health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleLiveness is the Kubernetes liveness probe.
func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness reports 200 once at least one LLM adapter is ready.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if !g.registry.Ready() {
		return c.JSON(http.StatusServiceUnavailable, &HealthResponse{Status: "degraded"})
	}
	return c.OK(&HealthResponse{Status: "ok"})
}

// senderKey picks the bucket key for rate limiting: the declared sender when
// present, the remote address otherwise.
func senderKey(c *okapi.Context, req MessageRequest) string {
	if req.Sender != "" {
		return req.Sender
	}
	return c.Request().RemoteAddr
}

// chatRequest converts an API message request into the adapter call shape.
func chatRequest(req MessageRequest) adapter.ChatRequest {
	msgs := make([]adapter.ChatMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = adapter.ChatMessage{Role: adapter.Role(m.Role), Content: m.Content}
	}
	return adapter.ChatRequest{
		Model:    req.Model,
		Messages: msgs,
	}
}

// abortError maps an adapter error to its HTTP status and standard body.
func (g *Gateway) abortError(c *okapi.Context, err error) error {
	return c.JSON(statusFor(err), errorBody(err))
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch adapter.KindOf(err) {
	case adapter.KindInvalidConfig:
		return http.StatusBadRequest
	case adapter.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case adapter.KindInitializationFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

func errorBody(err error) ErrorBody {
	return ErrorBody{
		Success:   false,
		Error:     err.Error(),
		ErrorType: adapter.KindOf(err).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
