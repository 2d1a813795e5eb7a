package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ChristianGrete/ai-messenger/internal/adapter"
	"github.com/ChristianGrete/ai-messenger/internal/config"
)

func testConfig(services ...[2]string) *config.Config {
	cfg := &config.Config{}
	for _, s := range services {
		cfg.Adapters.Set(s[0], &config.ServiceAdapterConfig{
			Provider: s[1],
			Version:  "v1",
		})
	}
	return cfg
}

func TestInitializeFromConfig_LoadsInDeclaredOrder(t *testing.T) {
	host := newFakeHost()
	host.instances["llm_ollama"] = &fakeInstance{ready: true}
	host.instances["storage_filesystem"] = &fakeInstance{ready: true}

	r := newRegistry(host, discardLogger())
	report := r.InitializeFromConfig(context.Background(),
		testConfig([2]string{"storage", "filesystem"}, [2]string{"llm", "ollama"}),
		t.TempDir())

	if !report.OK() {
		t.Fatalf("report = %+v, want all loaded", report)
	}
	if len(host.loads) != 2 || host.loads[0] != "storage" || host.loads[1] != "llm" {
		t.Errorf("load order = %v, want [storage llm]", host.loads)
	}
	if _, ok := r.LLMAdapter("ollama"); !ok {
		t.Error("llm adapter missing")
	}
	if _, ok := r.StorageAdapter("filesystem"); !ok {
		t.Error("storage adapter missing")
	}
}

func TestInitializeFromConfig_FailureIsIsolated(t *testing.T) {
	host := newFakeHost()
	host.loadErr["llm"] = adapter.Errf(adapter.KindInitializationFailed, "module not found")
	host.instances["storage_filesystem"] = &fakeInstance{ready: true}

	r := newRegistry(host, discardLogger())
	report := r.InitializeFromConfig(context.Background(),
		testConfig([2]string{"llm", "ollama"}, [2]string{"storage", "filesystem"}),
		t.TempDir())

	if len(report.Failed) != 1 || report.Failed[0].Service != "llm" {
		t.Fatalf("failed = %+v, want llm", report.Failed)
	}
	if len(report.Loaded) != 1 || report.Loaded[0].Service != "storage" {
		t.Fatalf("loaded = %+v, want storage", report.Loaded)
	}

	// The failed service never blocks the others.
	if _, ok := r.StorageAdapter("filesystem"); !ok {
		t.Error("storage adapter must load despite llm failure")
	}
	if _, ok := r.LLMAdapter("ollama"); ok {
		t.Error("failed llm adapter must not be registered")
	}
}

func TestInitializeFromConfig_UnknownService(t *testing.T) {
	host := newFakeHost()

	r := newRegistry(host, discardLogger())
	report := r.InitializeFromConfig(context.Background(),
		testConfig([2]string{"imaging", "dalle"}),
		t.TempDir())

	if len(report.Failed) != 1 {
		t.Fatalf("failed = %+v, want 1 entry", report.Failed)
	}
	if adapter.KindOf(report.Failed[0].Err) != adapter.KindInvalidConfig {
		t.Errorf("kind = %v, want invalid_config", adapter.KindOf(report.Failed[0].Err))
	}
	if len(host.loads) != 0 {
		t.Error("unknown service must never reach the sandbox")
	}
}

func TestRegistry_DefaultProvider(t *testing.T) {
	host := newFakeHost()
	host.instances["llm_ollama"] = &fakeInstance{ready: true}

	r := newRegistry(host, discardLogger())
	r.InitializeFromConfig(context.Background(),
		testConfig([2]string{"llm", "ollama"}),
		t.TempDir())

	a, ok := r.LLMAdapter("")
	if !ok {
		t.Fatal("empty provider must resolve to the default")
	}
	if a.Provider() != "ollama" {
		t.Errorf("default provider = %q, want ollama", a.Provider())
	}
	if _, ok := r.LLMAdapter("openai"); ok {
		t.Error("unconfigured provider must not resolve")
	}
}

func TestRegistry_ManifestFallsBackToDefault(t *testing.T) {
	host := newFakeHost()
	host.instances["llm_ollama"] = &fakeInstance{ready: true}

	r := newRegistry(host, discardLogger())
	r.InitializeFromConfig(context.Background(),
		testConfig([2]string{"llm", "ollama"}),
		t.TempDir())

	m, ok := r.ManifestFor(ServiceNameLLM, "ollama")
	if !ok {
		t.Fatal("expected a manifest")
	}
	if m.Name != "ollama" || m.Version != "v1" {
		t.Errorf("manifest = %s, want synthesized ollama (v1)", m)
	}
}

func TestRegistry_ManifestPrefersLatest(t *testing.T) {
	dataDir := t.TempDir()
	latestDir := filepath.Join(dataDir, "adapters", "llm", "ollama", "latest")
	if err := os.MkdirAll(latestDir, 0o755); err != nil {
		t.Fatalf("creating layout: %v", err)
	}
	manifest := `{"name": "ollama", "version": "2024-08", "display_name": "Ollama", "models": ["llama3.2"]}`
	if err := os.WriteFile(filepath.Join(latestDir, "manifest.json"), []byte(manifest), 0o600); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}

	host := newFakeHost()
	host.instances["llm_ollama"] = &fakeInstance{ready: true}

	r := newRegistry(host, discardLogger())
	r.InitializeFromConfig(context.Background(),
		testConfig([2]string{"llm", "ollama"}), dataDir)

	m, ok := r.ManifestFor(ServiceNameLLM, "ollama")
	if !ok {
		t.Fatal("expected a manifest")
	}
	if m.Version != "2024-08" || m.DisplayName != "Ollama" {
		t.Errorf("manifest = %+v, want the on-disk latest manifest", m)
	}
}

func TestRegistry_Ready(t *testing.T) {
	host := newFakeHost()
	in := &fakeInstance{ready: true}
	host.instances["llm_ollama"] = in

	r := newRegistry(host, discardLogger())
	if r.Ready() {
		t.Error("empty registry must not be ready")
	}

	r.InitializeFromConfig(context.Background(),
		testConfig([2]string{"llm", "ollama"}),
		t.TempDir())
	if !r.Ready() {
		t.Error("registry with a ready llm adapter must be ready")
	}

	in.ready = false
	if r.Ready() {
		t.Error("registry must track instance readiness")
	}
}

func TestRegistry_Shutdown(t *testing.T) {
	host := newFakeHost()
	r := newRegistry(host, discardLogger())

	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if host.shutdowns != 1 {
		t.Errorf("shutdowns = %d, want 1", host.shutdowns)
	}
}
