// Package server implements the HTTP gateway for ai-messenger.
//
// The gateway exposes the messaging API under an optional base path,
// plus unauthenticated health and metrics endpoints. TLS is expected via
// reverse proxy (not handled here).
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jkaninda/okapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/ChristianGrete/ai-messenger/internal/adapter/services"
	"github.com/ChristianGrete/ai-messenger/internal/observability"
	"github.com/ChristianGrete/ai-messenger/internal/ratelimit"
)

const defaultMaxRequestSize = 1 << 20 // 1 MB

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
	Timestamp string `json:"timestamp"`
}

// Config configures the HTTP gateway.
type Config struct {
	ListenAddr string // e.g., "127.0.0.1:8080"
	BasePath   string // Optional URL prefix, e.g. "api".
	EnableDocs bool
	Limiter    *ratelimit.Limiter // nil = no rate limiting

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Gateway is the HTTP gateway.
type Gateway struct {
	config   Config
	registry *services.Registry
	logger   *slog.Logger
	server   *http.Server
	okapi    *okapi.Okapi
	group    *okapi.Group
}

// NewGateway creates an HTTP gateway serving the given adapter registry.
func NewGateway(cfg Config, reg *services.Registry, logger *slog.Logger) *Gateway {
	return &Gateway{
		config:   cfg,
		registry: reg,
		logger:   logger,
		okapi:    okapi.New(okapi.WithMaxMultipartMemory(defaultMaxRequestSize)),
	}
}

// WithOpenAPIDocs enables the generated API documentation endpoint.
func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "ai-messenger",
			Version: "v0.1.0",
		},
	)
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	// Metrics/tracing middleware (applied globally).
	if g.config.Metrics != nil || g.config.Tracer != nil {
		g.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return observability.HTTPMetricsMiddleware(g.config.Metrics, g.config.Tracer, next)
		})
	}

	g.group = g.okapi.Group(basePrefix(g.config.BasePath) + "/v1")

	g.group.Post("/message/{recipient}", g.handleMessage,
		okapi.DocSummary("Send a conversation to the configured LLM provider"),
		okapi.DocTags("Messages"),
		okapi.DocPathParam("recipient", "string", "Recipient ID"),
		okapi.DocRequestBody(MessageRequest{}),
		okapi.DocResponse(MessageResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusServiceUnavailable, ErrorBody{}),
	)
	g.group.Post("/message/{recipient}/stream", g.handleMessageStream,
		okapi.DocSummary("Stream a conversation response via SSE"),
		okapi.DocTags("Messages"),
		okapi.DocPathParam("recipient", "string", "Recipient ID"),
		okapi.DocRequestBody(MessageRequest{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusServiceUnavailable, ErrorBody{}),
	)
	g.group.Get("/adapters", g.handleAdapterList,
		okapi.DocSummary("List loaded adapter modules"),
		okapi.DocTags("Adapters"),
		okapi.DocResponse(AdapterListResponse{}),
	)
	g.group.Get("/adapters/{provider}/manifest", g.handleAdapterManifest,
		okapi.DocSummary("Get the manifest of a loaded LLM adapter"),
		okapi.DocTags("Adapters"),
		okapi.DocPathParam("provider", "string", "Provider name"),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)

	// Observability endpoints (unauthenticated, outside the base path).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // Streaming responses can be long-lived.
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http gateway starting", slog.String("addr", g.config.ListenAddr))

	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http gateway stopping")
	return g.okapi.Shutdown(g.server)
}

// basePrefix normalizes a configured base path into a leading-slash prefix.
func basePrefix(base string) string {
	base = strings.Trim(base, "/")
	if base == "" {
		return ""
	}
	return "/" + base
}
