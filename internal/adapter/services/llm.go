package services

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ChristianGrete/ai-messenger/internal/adapter"
	"github.com/ChristianGrete/ai-messenger/internal/adapter/wasmabi"
)

// streamBufferLimit caps a single streamed line. Provider chunks are small;
// anything beyond this indicates a broken stream.
const streamBufferLimit = 1 << 20

// StreamHandler receives stream chunks in order. Returning an error aborts
// the stream.
type StreamHandler func(adapter.StreamChunk) error

// LLMAdapter is the typed wrapper around one loaded LLM adapter module.
// The module translates between the domain chat types and the provider's
// wire format; the wrapper performs the network exchange in between.
// No sandbox lock is held during the exchange.
type LLMAdapter struct {
	in       instance
	provider string
	version  string
	reg      *Registry
}

func newLLMAdapter(in instance, provider, version string, reg *Registry) *LLMAdapter {
	return &LLMAdapter{in: in, provider: provider, version: version, reg: reg}
}

// Provider returns the provider name, e.g. "ollama".
func (a *LLMAdapter) Provider() string { return a.provider }

// Version returns the configured adapter version.
func (a *LLMAdapter) Version() string { return a.version }

// ServiceName returns the service category this wrapper serves.
func (a *LLMAdapter) ServiceName() string { return ServiceNameLLM }

// Ready reports whether the underlying module can accept calls.
func (a *LLMAdapter) Ready() bool { return a.in.Ready() }

// SendMessage performs one non-streaming chat exchange. The module shapes
// the outbound request, the host executes it, and the module interprets the
// raw response.
func (a *LLMAdapter) SendMessage(ctx context.Context, req adapter.ChatRequest) (*adapter.ChatResponse, error) {
	ctx, span := a.startSpan(ctx, "llm.send_message", req.Model)
	defer span.End()

	req.Stream = false
	httpCfg, err := a.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	raw, err := a.exchange(ctx, httpCfg)
	if err != nil {
		return nil, err
	}

	out, err := a.call(ctx, wasmabi.FuncParseResponse, raw)
	if err != nil {
		return nil, err
	}

	var resp adapter.ChatResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, adapter.Errf(adapter.KindExecutionError, "decoding %s chat response: %v", a.provider, err)
	}

	if resp.Usage != nil {
		a.reg.metrics.RecordTokens(a.provider, resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	return &resp, nil
}

// StreamMessage performs a streaming chat exchange, invoking the handler
// once per decoded chunk until the terminal chunk or an error.
func (a *LLMAdapter) StreamMessage(ctx context.Context, req adapter.ChatRequest, handler StreamHandler) error {
	ctx, span := a.startSpan(ctx, "llm.stream_message", req.Model)
	defer span.End()

	req.Stream = true
	httpCfg, err := a.prepare(ctx, req)
	if err != nil {
		return err
	}

	httpResp, err := a.do(ctx, httpCfg)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return adapter.Errf(adapter.KindExecutionError, "%s returned status %d: %s",
			a.provider, httpResp.StatusCode, strings.TrimSpace(string(body)))
	}

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 64*1024), streamBufferLimit)

	var seq uint64
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		arg, err := json.Marshal(line)
		if err != nil {
			return adapter.Errf(adapter.KindExecutionError, "encoding stream chunk: %v", err)
		}
		out, err := a.call(ctx, wasmabi.FuncParseStreamChunk, arg)
		if err != nil {
			return err
		}
		if isJSONNull(out) {
			continue
		}

		var chunk adapter.StreamChunk
		if err := json.Unmarshal(out, &chunk); err != nil {
			return adapter.Errf(adapter.KindExecutionError, "decoding %s stream chunk: %v", a.provider, err)
		}
		chunk.Sequence = seq
		seq++

		if chunk.IsFinal && chunk.Usage != nil {
			a.reg.metrics.RecordTokens(a.provider, req.Model, chunk.Usage.PromptTokens, chunk.Usage.CompletionTokens)
		}
		if err := handler(chunk); err != nil {
			return err
		}
		if chunk.IsFinal {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return adapter.Errf(adapter.KindExecutionError, "reading %s stream: %v", a.provider, err)
	}
	return nil
}

// prepare asks the module to shape the outbound HTTP call.
func (a *LLMAdapter) prepare(ctx context.Context, req adapter.ChatRequest) (adapter.HTTPConfig, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return adapter.HTTPConfig{}, adapter.Errf(adapter.KindExecutionError, "encoding chat request: %v", err)
	}

	out, err := a.call(ctx, wasmabi.FuncPrepareRequest, payload)
	if err != nil {
		return adapter.HTTPConfig{}, err
	}

	var httpCfg adapter.HTTPConfig
	if err := json.Unmarshal(out, &httpCfg); err != nil {
		return adapter.HTTPConfig{}, adapter.Errf(adapter.KindExecutionError, "decoding %s request config: %v", a.provider, err)
	}
	if httpCfg.URL == "" {
		return adapter.HTTPConfig{}, adapter.Errf(adapter.KindExecutionError, "%s adapter returned no request URL", a.provider)
	}
	if httpCfg.Body == "" {
		return adapter.HTTPConfig{}, adapter.Errf(adapter.KindExecutionError, "%s adapter returned no request body", a.provider)
	}
	return httpCfg, nil
}

// exchange executes the described call and packages the raw result for
// parse_response.
func (a *LLMAdapter) exchange(ctx context.Context, httpCfg adapter.HTTPConfig) ([]byte, error) {
	httpResp, err := a.do(ctx, httpCfg)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, adapter.Errf(adapter.KindServiceUnavailable, "reading %s response: %v", a.provider, err)
	}

	headers := make(map[string]string, len(httpResp.Header))
	for k := range httpResp.Header {
		headers[k] = httpResp.Header.Get(k)
	}

	raw, err := json.Marshal(adapter.HTTPResponse{
		StatusCode: httpResp.StatusCode,
		Headers:    headers,
		Body:       string(body),
	})
	if err != nil {
		return nil, adapter.Errf(adapter.KindExecutionError, "encoding transport result: %v", err)
	}
	return raw, nil
}

func (a *LLMAdapter) do(ctx context.Context, httpCfg adapter.HTTPConfig) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, httpCfg.URL, strings.NewReader(httpCfg.Body))
	if err != nil {
		return nil, adapter.Errf(adapter.KindExecutionError, "building %s request: %v", a.provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range httpCfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.reg.httpClient.Do(req)
	if err != nil {
		return nil, adapter.Errf(adapter.KindServiceUnavailable, "calling %s: %v", a.provider, err)
	}
	return resp, nil
}

// call invokes a module function and records the outcome.
func (a *LLMAdapter) call(ctx context.Context, function string, args []byte) ([]byte, error) {
	start := time.Now()
	out, err := a.in.Call(ctx, function, args)
	status := "ok"
	if err != nil {
		status = adapter.KindOf(err).String()
	}
	a.reg.metrics.RecordAdapterCall(ServiceNameLLM, a.provider, function, status, time.Since(start), a.in.LastCallFuel())
	return out, err
}

func (a *LLMAdapter) startSpan(ctx context.Context, name, model string) (context.Context, trace.Span) {
	if a.reg.tracer == nil {
		return trace.NewNoopTracerProvider().Tracer("").Start(ctx, name)
	}
	return a.reg.tracer.Start(ctx, name,
		trace.WithAttributes(
			attribute.String("llm.provider", a.provider),
			attribute.String("llm.model", model),
		))
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
