// Package runtime hosts sandboxed adapter modules on a wazero engine.
//
// One Runtime owns the engine configuration and every live Instance for the
// process. Modules are compiled and validated at load time, execute with no
// ambient I/O capability, and are metered by a per-call fuel budget. All
// real I/O happens host-side, on the caller's behalf.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/ChristianGrete/ai-messenger/internal/adapter"
)

// EngineConfig is the explicit, per-Runtime sandbox policy. It is never
// global: tests construct isolated runtimes with their own configs.
type EngineConfig struct {
	// InitFuel bounds the cost of module initialization. Default: 1,000,000.
	InitFuel uint64
	// CallFuel bounds the cost of a single function call. Default: 100,000.
	CallFuel uint64
	// FuelTick converts fuel units into the wall-clock ceiling for one call.
	// Default: 10µs per unit (100,000 units = 1s).
	FuelTick time.Duration
	// MemoryLimitPages caps guest linear memory in 64KiB pages. Default: 256.
	MemoryLimitPages uint32
	// CacheDir enables an on-disk compilation cache when non-empty.
	CacheDir string
}

const (
	defaultInitFuel         = 1_000_000
	defaultCallFuel         = 100_000
	defaultFuelTick         = 10 * time.Microsecond
	defaultMemoryLimitPages = 256 // 16 MiB
)

func (c EngineConfig) withDefaults() EngineConfig {
	if c.InitFuel == 0 {
		c.InitFuel = defaultInitFuel
	}
	if c.CallFuel == 0 {
		c.CallFuel = defaultCallFuel
	}
	if c.FuelTick <= 0 {
		c.FuelTick = defaultFuelTick
	}
	if c.MemoryLimitPages == 0 {
		c.MemoryLimitPages = defaultMemoryLimitPages
	}
	return c
}

// AdapterInfo describes one loaded instance for status listings.
type AdapterInfo struct {
	Service  string
	Provider string
	Version  string
	Ready    bool
}

// Runtime owns the wazero engine and the keyed collection of live instances.
// It is the only place instances are created or destroyed.
type Runtime struct {
	engine wazero.Runtime
	cache  wazero.CompilationCache
	cfg    EngineConfig
	logger *slog.Logger

	mu        sync.RWMutex
	instances map[string]*Instance
}

// New creates a Runtime with its own engine. The engine enables WASI imports
// (stdio only, no filesystem or sockets) and closes guest modules whose call
// context expires, which backs the fuel wall-clock ceiling.
func New(ctx context.Context, cfg EngineConfig, logger *slog.Logger) (*Runtime, error) {
	cfg = cfg.withDefaults()

	rc := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithMemoryLimitPages(cfg.MemoryLimitPages)

	var cache wazero.CompilationCache
	if cfg.CacheDir != "" {
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(cfg.CacheDir)
		if err != nil {
			return nil, adapter.Errf(adapter.KindInitializationFailed, "opening compilation cache %s: %w", cfg.CacheDir, err)
		}
		rc = rc.WithCompilationCache(cache)
	}

	engine := wazero.NewRuntimeWithConfig(ctx, rc)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, engine); err != nil {
		_ = engine.Close(ctx)
		return nil, adapter.Errf(adapter.KindInitializationFailed, "instantiating WASI: %w", err)
	}

	return &Runtime{
		engine:    engine,
		cache:     cache,
		cfg:       cfg,
		logger:    logger,
		instances: make(map[string]*Instance),
	}, nil
}

// instanceKey builds the collection key for a (service, provider) pair.
func instanceKey(service, provider string) string {
	return service + "_" + provider
}

// LoadAdapter compiles, instantiates and initializes the module at path and
// registers it under the (service, provider) key. Re-loading the same key
// replaces the prior instance; the replaced instance is shut down before it
// is dropped so engine resources are not leaked.
func (r *Runtime) LoadAdapter(ctx context.Context, service, path, configJSON string) (*Instance, error) {
	loader := NewLoader(r)
	inst, err := loader.Load(ctx, path, configJSON)
	if err != nil {
		return nil, err
	}

	r.register(ctx, service, inst)

	r.logger.Info("adapter loaded",
		slog.String("service", service),
		slog.String("provider", inst.Provider()),
		slog.String("version", inst.Version()))

	return inst, nil
}

// register installs inst under the (service, provider) key. A previous
// instance under the same key is shut down before it is dropped so engine
// resources are not leaked.
func (r *Runtime) register(ctx context.Context, service string, inst *Instance) {
	key := instanceKey(service, inst.Provider())

	r.mu.Lock()
	prev := r.instances[key]
	r.instances[key] = inst
	r.mu.Unlock()

	if prev != nil {
		if err := prev.Shutdown(ctx); err != nil {
			r.logger.Warn("shutting down replaced instance",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
	}
}

// Instance looks up the live instance for a (service, provider) pair.
func (r *Runtime) Instance(service, provider string) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[instanceKey(service, provider)]
	return inst, ok
}

// List reports every loaded adapter.
func (r *Runtime) List() []AdapterInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]AdapterInfo, 0, len(r.instances))
	for key, inst := range r.instances {
		service := key
		if n := len(key) - len(inst.Provider()) - 1; n > 0 && key[n] == '_' {
			service = key[:n]
		}
		infos = append(infos, AdapterInfo{
			Service:  service,
			Provider: inst.Provider(),
			Version:  inst.Version(),
			Ready:    inst.Ready(),
		})
	}
	return infos
}

// Shutdown drains and shuts down every instance, then releases the engine.
// Cleanup is best-effort: every instance is attempted and the first error is
// returned.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	instances := r.instances
	r.instances = make(map[string]*Instance)
	r.mu.Unlock()

	var firstErr error
	for key, inst := range instances {
		if err := inst.Shutdown(ctx); err != nil {
			r.logger.Warn("instance shutdown failed",
				slog.String("key", key),
				slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if err := r.engine.Close(ctx); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing engine: %w", err)
	}
	if r.cache != nil {
		if err := r.cache.Close(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing compilation cache: %w", err)
		}
	}
	return firstErr
}
