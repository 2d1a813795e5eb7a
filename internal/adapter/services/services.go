// Package services multiplexes (service, provider) pairs behind typed
// adapter wrappers. The Registry loads configured adapter modules into the
// sandbox runtime and hands out LLM and storage wrappers that speak domain
// operations instead of raw module calls.
package services

import (
	"context"

	wruntime "github.com/ChristianGrete/ai-messenger/internal/adapter/runtime"
)

// ServiceKind is the closed set of service categories the registry can
// construct wrappers for. Service names are parsed once, at configuration
// time, not re-matched per call.
type ServiceKind int

const (
	ServiceUnknown ServiceKind = iota
	ServiceLLM
	ServiceStorage
)

// Service names as they appear in configuration and on disk.
const (
	ServiceNameLLM     = "llm"
	ServiceNameStorage = "storage"
)

// ParseServiceKind resolves a configured service name.
func ParseServiceKind(name string) (ServiceKind, bool) {
	switch name {
	case ServiceNameLLM:
		return ServiceLLM, true
	case ServiceNameStorage:
		return ServiceStorage, true
	default:
		return ServiceUnknown, false
	}
}

func (k ServiceKind) String() string {
	switch k {
	case ServiceLLM:
		return ServiceNameLLM
	case ServiceStorage:
		return ServiceNameStorage
	default:
		return "unknown"
	}
}

// instance is the narrow sandbox execution surface a wrapper needs.
type instance interface {
	Call(ctx context.Context, function string, args []byte) ([]byte, error)
	LastCallFuel() uint64
	Ready() bool
}

// moduleHost abstracts the sandbox runtime for the registry and wrappers.
// The production implementation wraps *runtime.Runtime; tests substitute
// scripted instances.
type moduleHost interface {
	Load(ctx context.Context, service, path, configJSON string) error
	Lookup(service, provider string) (instance, bool)
	List() []wruntime.AdapterInfo
	Shutdown(ctx context.Context) error
}

// wazeroHost adapts the concrete wazero runtime to moduleHost.
type wazeroHost struct {
	rt *wruntime.Runtime
}

func (h wazeroHost) Load(ctx context.Context, service, path, configJSON string) error {
	_, err := h.rt.LoadAdapter(ctx, service, path, configJSON)
	return err
}

func (h wazeroHost) Lookup(service, provider string) (instance, bool) {
	in, ok := h.rt.Instance(service, provider)
	if !ok {
		return nil, false
	}
	return in, true
}

func (h wazeroHost) List() []wruntime.AdapterInfo { return h.rt.List() }

func (h wazeroHost) Shutdown(ctx context.Context) error { return h.rt.Shutdown(ctx) }
