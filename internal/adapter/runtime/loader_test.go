package runtime

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ChristianGrete/ai-messenger/internal/adapter"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := New(context.Background(), EngineConfig{}, discardLogger())
	if err != nil {
		t.Fatalf("creating runtime: %v", err)
	}
	t.Cleanup(func() {
		_ = rt.Shutdown(context.Background())
	})
	return rt
}

func TestExtractMetadata(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		provider string
		version  string
		wantErr  bool
	}{
		{
			name:     "canonical layout",
			path:     "/home/u/.ai-messenger/data/adapters/llm/ollama/v1/adapter.wasm",
			provider: "ollama",
			version:  "v1",
		},
		{
			name:     "relative path",
			path:     "data/adapters/storage/filesystem/latest/adapter.wasm",
			provider: "filesystem",
			version:  "latest",
		},
		{
			name:     "first marker anchors extraction",
			path:     "/adapters/llm/ollama/v2/adapters/adapter.wasm",
			provider: "ollama",
			version:  "v2",
		},
		{
			name:    "no adapters directory",
			path:    "/data/modules/llm/ollama/v1/adapter.wasm",
			wantErr: true,
		},
		{
			name:    "missing provider",
			path:    "/data/adapters/llm",
			wantErr: true,
		},
		{
			name:    "missing version",
			path:    "/data/adapters/llm/ollama",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, version, err := ExtractMetadata(tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if adapter.KindOf(err) != adapter.KindInvalidConfig {
					t.Errorf("kind = %v, want invalid_config", adapter.KindOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if provider != tt.provider || version != tt.version {
				t.Errorf("metadata = (%s, %s), want (%s, %s)", provider, version, tt.provider, tt.version)
			}
		})
	}
}

func TestLoader_Load_MissingModule(t *testing.T) {
	rt := newTestRuntime(t)
	loader := NewLoader(rt)

	_, err := loader.Load(context.Background(),
		filepath.Join(t.TempDir(), "adapters", "llm", "ollama", "v1", "adapter.wasm"), "{}")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if adapter.KindOf(err) != adapter.KindInitializationFailed {
		t.Errorf("kind = %v, want initialization_failed", adapter.KindOf(err))
	}
}

func TestLoader_Load_InvalidModule(t *testing.T) {
	rt := newTestRuntime(t)
	loader := NewLoader(rt)

	dir := filepath.Join(t.TempDir(), "adapters", "llm", "ollama", "v1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("creating layout: %v", err)
	}
	path := filepath.Join(dir, "adapter.wasm")
	if err := os.WriteFile(path, []byte("not a wasm module"), 0o600); err != nil {
		t.Fatalf("writing module: %v", err)
	}

	_, err := loader.Load(context.Background(), path, "{}")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if adapter.KindOf(err) != adapter.KindInitializationFailed {
		t.Errorf("kind = %v, want initialization_failed", adapter.KindOf(err))
	}
}

func TestRuntime_LoadAdapter_BadPathLayout(t *testing.T) {
	rt := newTestRuntime(t)

	// A minimal empty module compiles but the path carries no metadata.
	path := filepath.Join(t.TempDir(), "adapter.wasm")
	if err := os.WriteFile(path, emptyModule(), 0o600); err != nil {
		t.Fatalf("writing module: %v", err)
	}

	_, err := rt.LoadAdapter(context.Background(), "llm", path, "{}")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if adapter.KindOf(err) != adapter.KindInvalidConfig {
		t.Errorf("kind = %v, want invalid_config", adapter.KindOf(err))
	}
}

func TestRuntime_LoadAdapter_NoExports(t *testing.T) {
	rt := newTestRuntime(t)

	dir := filepath.Join(t.TempDir(), "adapters", "llm", "ollama", "v1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("creating layout: %v", err)
	}
	path := filepath.Join(dir, "adapter.wasm")
	if err := os.WriteFile(path, emptyModule(), 0o600); err != nil {
		t.Fatalf("writing module: %v", err)
	}

	// The module compiles and instantiates but exports no init: the
	// initialization call must fail and nothing may be registered.
	_, err := rt.LoadAdapter(context.Background(), "llm", path, "{}")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if adapter.KindOf(err) != adapter.KindInitializationFailed {
		t.Errorf("kind = %v, want initialization_failed", adapter.KindOf(err))
	}
	if _, ok := rt.Instance("llm", "ollama"); ok {
		t.Error("failed load must not register an instance")
	}
}

func TestRuntime_List_Empty(t *testing.T) {
	rt := newTestRuntime(t)
	if infos := rt.List(); len(infos) != 0 {
		t.Errorf("list = %v, want empty", infos)
	}
}

// emptyModule returns the smallest valid wasm binary: magic and version only.
func emptyModule() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
}
