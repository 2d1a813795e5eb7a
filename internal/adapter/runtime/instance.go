package runtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"

	"github.com/ChristianGrete/ai-messenger/internal/adapter"
	"github.com/ChristianGrete/ai-messenger/internal/adapter/wasmabi"
)

// Fuel accounting. wazero has no instruction-level metering, so the budget is
// charged deterministically host-side: a fixed cost per invocation plus one
// unit per byte crossing the sandbox boundary in either direction. The armed
// budget additionally derives a wall-clock ceiling for the call, so a guest
// that spins forever still fails deterministically.
const (
	fuelPerCall = 1_000
	fuelPerByte = 1
)

// Instance owns one sandboxed module: its execution context, fuel budget and
// initialization state. Exactly one logical call is in flight at a time; the
// internal mutex serializes callers because budget accounting assumes
// single-call-at-a-time execution.
//
// Lifecycle: created (compiled, not initialized) -> ready -> shutdown. A call
// that exhausts its budget fails without corrupting the instance; the next
// call re-arms the budget. A wall-clock trap is terminal: the module is
// closed by the engine and the instance stops accepting calls.
type Instance struct {
	mod      api.Module
	provider string
	version  string
	logger   *slog.Logger

	initFuel uint64
	callFuel uint64
	fuelTick time.Duration

	mu        sync.Mutex
	ready     bool
	closed    bool
	remaining uint64
	lastUsed  uint64
}

func newInstance(mod api.Module, provider, version string, cfg EngineConfig, logger *slog.Logger) *Instance {
	return &Instance{
		mod:      mod,
		provider: provider,
		version:  version,
		logger:   logger,
		initFuel: cfg.InitFuel,
		callFuel: cfg.CallFuel,
		fuelTick: cfg.FuelTick,
	}
}

// Provider returns the provider name derived from the module path.
func (in *Instance) Provider() string { return in.provider }

// Version returns the adapter version derived from the module path.
func (in *Instance) Version() string { return in.version }

// Ready reports whether initialization completed and the instance accepts
// calls. False before initialization and after shutdown.
func (in *Instance) Ready() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.ready && !in.closed
}

// RemainingFuel returns the budget left over from the most recent call.
func (in *Instance) RemainingFuel() uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.remaining
}

// LastCallFuel returns the fuel consumed by the most recent call.
func (in *Instance) LastCallFuel() uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.lastUsed
}

// initialize arms the coarse-grained setup budget and runs the module's init
// export with the adapter configuration. Called once, by the loader.
func (in *Instance) initialize(ctx context.Context, configJSON string) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.ready {
		return adapter.Errf(adapter.KindInitializationFailed, "instance already initialized")
	}

	in.remaining = in.initFuel
	if _, err := in.invoke(ctx, wasmabi.FuncInit, []byte(configJSON)); err != nil {
		return &adapter.ServiceError{
			Kind:   adapter.KindInitializationFailed,
			Reason: "init call failed: " + err.Error(),
			Err:    err,
		}
	}

	in.ready = true
	return nil
}

// Call executes a named adapter function with JSON-encoded arguments and
// returns the raw JSON result. The instance is opaque to which domain
// operation the call represents; interpretation belongs to the caller and
// the module. A fresh call budget is armed for every invocation.
func (in *Instance) Call(ctx context.Context, function string, args []byte) ([]byte, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if !in.ready || in.closed {
		return nil, adapter.Errf(adapter.KindServiceUnavailable, "instance %s not initialized", in.provider)
	}

	in.remaining = in.callFuel
	out, err := in.invoke(ctx, function, args)
	in.lastUsed = in.callFuel - in.remaining
	return out, err
}

// invoke is the raw call path. Caller holds in.mu and has armed in.remaining.
func (in *Instance) invoke(ctx context.Context, function string, args []byte) ([]byte, error) {
	fn := in.mod.ExportedFunction(function)
	if fn == nil {
		return nil, adapter.Errf(adapter.KindExecutionError, "module %s does not export %q", in.provider, function)
	}
	alloc := in.mod.ExportedFunction(wasmabi.FuncAlloc)
	free := in.mod.ExportedFunction(wasmabi.FuncFree)
	if alloc == nil || free == nil {
		return nil, adapter.Errf(adapter.KindExecutionError, "module %s does not export the allocator", in.provider)
	}

	if err := in.charge(fuelPerCall + uint64(len(args))*fuelPerByte); err != nil {
		return nil, err
	}

	// Wall-clock ceiling derived from the armed budget. When it trips, the
	// engine closes the module and the instance is terminally failed.
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(in.remaining+fuelPerCall)*in.fuelTick)
	defer cancel()

	argPtr, err := in.allocWrite(callCtx, alloc, args)
	if err != nil {
		return nil, in.callFailed(function, err)
	}

	ret, err := fn.Call(callCtx, uint64(argPtr), uint64(len(args)))
	_, _ = free.Call(callCtx, uint64(argPtr), uint64(len(args)))
	if err != nil {
		return nil, in.callFailed(function, err)
	}
	if len(ret) != 1 {
		return nil, adapter.Errf(adapter.KindExecutionError, "%s: unexpected return arity %d", function, len(ret))
	}

	resPtr, resLen := wasmabi.Unpack(ret[0])
	if err := in.charge(uint64(resLen) * fuelPerByte); err != nil {
		_, _ = free.Call(callCtx, uint64(resPtr), uint64(resLen))
		return nil, err
	}

	data, ok := in.mod.Memory().Read(resPtr, resLen)
	if !ok {
		return nil, adapter.Errf(adapter.KindExecutionError, "%s: result out of memory bounds (ptr=%d len=%d)", function, resPtr, resLen)
	}
	out := make([]byte, len(data))
	copy(out, data)
	_, _ = free.Call(callCtx, uint64(resPtr), uint64(resLen))

	payload, err := wasmabi.Decode(out)
	if err != nil {
		return nil, adapter.Errf(adapter.KindExecutionError, "%s: %w", function, err)
	}
	return payload, nil
}

// allocWrite copies args into guest memory through the module's allocator.
func (in *Instance) allocWrite(ctx context.Context, alloc api.Function, args []byte) (uint32, error) {
	ret, err := alloc.Call(ctx, uint64(len(args)))
	if err != nil {
		return 0, err
	}
	if len(ret) != 1 {
		return 0, adapter.Errf(adapter.KindExecutionError, "%s: unexpected return arity %d", wasmabi.FuncAlloc, len(ret))
	}
	ptr := uint32(ret[0])
	if len(args) > 0 && !in.mod.Memory().Write(ptr, args) {
		return 0, errors.New("argument write out of memory bounds")
	}
	return ptr, nil
}

// charge consumes fuel, failing the call when the armed budget is exhausted.
// Exhaustion does not corrupt the instance.
func (in *Instance) charge(units uint64) error {
	if units > in.remaining {
		in.remaining = 0
		return adapter.Errf(adapter.KindExecutionError, "fuel budget exhausted for %s", in.provider)
	}
	in.remaining -= units
	return nil
}

// callFailed translates guest failures. A deadline or engine-forced exit
// means the module was closed mid-flight: terminal for the instance.
func (in *Instance) callFailed(function string, err error) error {
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) || errors.Is(err, context.DeadlineExceeded) {
		in.closed = true
		in.ready = false
		in.logger.Warn("instance terminated during call",
			slog.String("provider", in.provider),
			slog.String("function", function),
			slog.String("error", err.Error()))
	}
	return &adapter.ServiceError{
		Kind:   adapter.KindExecutionError,
		Reason: function + ": " + err.Error(),
		Err:    err,
	}
}

// Shutdown releases the module's resources. The instance accepts no calls
// afterwards.
func (in *Instance) Shutdown(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return nil
	}
	in.closed = true
	in.ready = false

	if err := in.mod.Close(ctx); err != nil {
		return adapter.Errf(adapter.KindExecutionError, "closing module %s: %w", in.provider, err)
	}
	return nil
}
