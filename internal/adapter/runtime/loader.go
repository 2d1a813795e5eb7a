package runtime

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/tetratelabs/wazero"

	"github.com/ChristianGrete/ai-messenger/internal/adapter"
)

// adaptersMarker is the well-known directory name that anchors metadata
// extraction. The on-disk layout is mandatory, not inferred from content:
// <data_dir>/adapters/<service>/<provider>/<version>/adapter.wasm
const adaptersMarker = "adapters"

// Loader compiles and validates adapter modules against a Runtime's engine.
type Loader struct {
	rt *Runtime
}

// NewLoader creates a loader bound to rt's engine.
func NewLoader(rt *Runtime) *Loader {
	return &Loader{rt: rt}
}

// Load reads the module at path, compiles and validates it, derives provider
// identity from the path, and returns an Instance that has completed its
// initialization call.
func (l *Loader) Load(ctx context.Context, path, configJSON string) (*Instance, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, adapter.Errf(adapter.KindInitializationFailed, "module not found: %s", path)
	}

	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, adapter.Errf(adapter.KindInitializationFailed, "reading module %s: %w", path, err)
	}

	compiled, err := l.rt.engine.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, adapter.Errf(adapter.KindInitializationFailed, "compiling module %s: %w", path, err)
	}

	provider, version, err := ExtractMetadata(path)
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}

	// Anonymous module name so re-loads of the same adapter don't collide.
	// Reactor builds export _initialize instead of _start.
	mod, err := l.rt.engine.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions("_initialize"))
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, adapter.Errf(adapter.KindInitializationFailed, "instantiating module %s: %w", path, err)
	}

	inst := newInstance(mod, provider, version, l.rt.cfg, l.rt.logger)
	if err := inst.initialize(ctx, configJSON); err != nil {
		_ = mod.Close(ctx)
		return nil, err
	}

	return inst, nil
}

// ExtractMetadata derives (provider, version) from the path segments that
// follow the adapters directory marker. The segment after the marker is the
// service name; the two after that are provider and version.
func ExtractMetadata(path string) (provider, version string, err error) {
	parts := strings.Split(filepath.ToSlash(path), "/")

	idx := -1
	for i, part := range parts {
		if part == adaptersMarker {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", "", adapter.Errf(adapter.KindInvalidConfig, "adapter path %s lacks the %q directory", path, adaptersMarker)
	}

	if idx+2 >= len(parts) || parts[idx+2] == "" {
		return "", "", adapter.Errf(adapter.KindInvalidConfig, "cannot extract provider from path %s", path)
	}
	if idx+3 >= len(parts) || parts[idx+3] == "" {
		return "", "", adapter.Errf(adapter.KindInvalidConfig, "cannot extract version from path %s", path)
	}

	return parts[idx+2], parts[idx+3], nil
}
