package services

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ChristianGrete/ai-messenger/internal/adapter"
	wruntime "github.com/ChristianGrete/ai-messenger/internal/adapter/runtime"
	"github.com/ChristianGrete/ai-messenger/internal/config"
	"github.com/ChristianGrete/ai-messenger/internal/observability"
)

// Registry owns the sandbox runtime and the typed wrappers built on top of
// it. Wrappers are created during InitializeFromConfig and handed out
// read-only afterwards; reloading an adapter replaces its wrapper atomically.
type Registry struct {
	host       moduleHost
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.MetricsCollector
	tracer     trace.Tracer

	mu        sync.RWMutex
	llm       map[string]*LLMAdapter
	storage   map[string]*StorageAdapter
	manifests map[string]*adapter.Manifest
	defaults  map[ServiceKind]string
}

// Option customizes a Registry.
type Option func(*Registry)

// WithMetrics attaches a Prometheus collector. Nil is a valid no-op value.
func WithMetrics(m *observability.MetricsCollector) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithTracer attaches an OTel tracer for adapter call spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Registry) { r.tracer = t }
}

// WithHTTPClient overrides the transport used for outbound provider calls.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Registry) { r.httpClient = c }
}

// NewRegistry creates the sandbox runtime and an empty registry.
// Call InitializeFromConfig to load configured adapters.
func NewRegistry(ctx context.Context, engCfg wruntime.EngineConfig, logger *slog.Logger, opts ...Option) (*Registry, error) {
	rt, err := wruntime.New(ctx, engCfg, logger)
	if err != nil {
		return nil, err
	}
	return newRegistry(wazeroHost{rt: rt}, logger, opts...), nil
}

func newRegistry(host moduleHost, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		host:       host,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     logger,
		llm:        make(map[string]*LLMAdapter),
		storage:    make(map[string]*StorageAdapter),
		manifests:  make(map[string]*adapter.Manifest),
		defaults:   make(map[ServiceKind]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AdapterStatus describes one successfully loaded adapter.
type AdapterStatus struct {
	Service  string `json:"service"`
	Provider string `json:"provider"`
	Version  string `json:"version"`
}

// AdapterFailure describes one adapter that failed to load.
type AdapterFailure struct {
	Service  string `json:"service"`
	Provider string `json:"provider"`
	Err      error  `json:"-"`
}

// InitReport summarizes an InitializeFromConfig run. A failed service never
// prevents the others from loading.
type InitReport struct {
	Loaded []AdapterStatus
	Failed []AdapterFailure
}

// OK reports whether at least one adapter loaded and none failed.
func (rep *InitReport) OK() bool {
	return len(rep.Failed) == 0 && len(rep.Loaded) > 0
}

// InitializeFromConfig loads every configured service adapter in declared
// order. Failures are isolated per service and collected in the report.
func (r *Registry) InitializeFromConfig(ctx context.Context, cfg *config.Config, dataDir string) *InitReport {
	report := &InitReport{}

	for _, service := range cfg.Adapters.Names() {
		sc, ok := cfg.Adapters.Service(service)
		if !ok {
			continue
		}
		status, err := r.loadService(ctx, service, sc, dataDir)
		if err != nil {
			r.logger.Error("adapter load failed",
				"service", service,
				"provider", sc.Provider,
				"error", err)
			report.Failed = append(report.Failed, AdapterFailure{
				Service:  service,
				Provider: sc.Provider,
				Err:      err,
			})
			continue
		}
		r.logger.Info("adapter loaded",
			"service", status.Service,
			"provider", status.Provider,
			"version", status.Version)
		report.Loaded = append(report.Loaded, status)
	}

	r.mu.RLock()
	r.metrics.SetAdaptersLoaded(ServiceNameLLM, len(r.llm))
	r.metrics.SetAdaptersLoaded(ServiceNameStorage, len(r.storage))
	r.mu.RUnlock()

	return report
}

func (r *Registry) loadService(ctx context.Context, service string, sc *config.ServiceAdapterConfig, dataDir string) (AdapterStatus, error) {
	kind, ok := ParseServiceKind(service)
	if !ok {
		return AdapterStatus{}, adapter.Errf(adapter.KindInvalidConfig, "unknown service %q", service)
	}

	configJSON, err := sc.ConfigJSON()
	if err != nil {
		return AdapterStatus{}, adapter.Errf(adapter.KindInvalidConfig, "encoding %s adapter config: %v", service, err)
	}

	path := sc.ModulePath(dataDir, service)
	if err := r.host.Load(ctx, service, path, configJSON); err != nil {
		return AdapterStatus{}, err
	}

	in, ok := r.host.Lookup(service, sc.Provider)
	if !ok {
		return AdapterStatus{}, adapter.Errf(adapter.KindInitializationFailed, "%s adapter %q not registered after load", service, sc.Provider)
	}

	manifest := r.resolveManifest(sc, dataDir, service)

	r.mu.Lock()
	defer r.mu.Unlock()

	switch kind {
	case ServiceLLM:
		r.llm[sc.Provider] = newLLMAdapter(in, sc.Provider, sc.Version, r)
	case ServiceStorage:
		r.storage[sc.Provider] = newStorageAdapter(in, sc.Provider, sc.Version, r)
	}
	r.manifests[instanceName(service, sc.Provider)] = manifest
	if _, have := r.defaults[kind]; !have {
		r.defaults[kind] = sc.Provider
	}

	return AdapterStatus{Service: service, Provider: sc.Provider, Version: sc.Version}, nil
}

// resolveManifest prefers the unpinned manifest, falls back to the
// version-pinned one and finally to a synthesized default.
func (r *Registry) resolveManifest(sc *config.ServiceAdapterConfig, dataDir, service string) *adapter.Manifest {
	for _, path := range []string{
		sc.LatestManifestPath(dataDir, service),
		sc.ManifestPath(dataDir, service),
	} {
		m, err := adapter.LoadManifest(path)
		if err == nil {
			return m
		}
		if adapter.KindOf(err) == adapter.KindInvalidConfig {
			r.logger.Warn("ignoring malformed adapter manifest", "path", path, "error", err)
		}
	}
	return adapter.DefaultManifest(sc.Provider, sc.Version)
}

func instanceName(service, provider string) string {
	return service + "_" + provider
}

// LLMAdapter returns the wrapper for a provider, or the default provider
// when the name is empty.
func (r *Registry) LLMAdapter(provider string) (*LLMAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if provider == "" {
		provider = r.defaults[ServiceLLM]
	}
	a, ok := r.llm[provider]
	return a, ok
}

// StorageAdapter returns the wrapper for a provider, or the default provider
// when the name is empty.
func (r *Registry) StorageAdapter(provider string) (*StorageAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if provider == "" {
		provider = r.defaults[ServiceStorage]
	}
	a, ok := r.storage[provider]
	return a, ok
}

// ManifestFor returns the manifest recorded for a loaded adapter.
func (r *Registry) ManifestFor(service, provider string) (*adapter.Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.manifests[instanceName(service, provider)]
	return m, ok
}

// ListAdapters reports every loaded adapter instance.
func (r *Registry) ListAdapters() []wruntime.AdapterInfo {
	return r.host.List()
}

// Ready reports whether any LLM adapter is loaded and ready to serve.
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.llm {
		if a.Ready() {
			return true
		}
	}
	return false
}

// Shutdown drains all adapter instances and releases the runtime.
func (r *Registry) Shutdown(ctx context.Context) error {
	return r.host.Shutdown(ctx)
}
