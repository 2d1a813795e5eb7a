package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/ChristianGrete/ai-messenger/internal/adapter"
	wruntime "github.com/ChristianGrete/ai-messenger/internal/adapter/runtime"
	"github.com/ChristianGrete/ai-messenger/internal/observability"
)

var errNotReady = adapter.Errf(adapter.KindServiceUnavailable, "instance not initialized")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeInstance scripts sandbox calls per function name.
type fakeInstance struct {
	ready bool
	fuel  uint64 // reported as consumed by every call
	calls []string
	fns   map[string]func(args []byte) ([]byte, error)
}

func (f *fakeInstance) Call(_ context.Context, function string, args []byte) ([]byte, error) {
	f.calls = append(f.calls, function)
	if !f.ready {
		return nil, errNotReady
	}
	fn, ok := f.fns[function]
	if !ok {
		return nil, fmt.Errorf("unexpected call to %q", function)
	}
	return fn(args)
}

func (f *fakeInstance) LastCallFuel() uint64 { return f.fuel }

func (f *fakeInstance) Ready() bool { return f.ready }

// fakeHost substitutes the wazero runtime behind the registry.
type fakeHost struct {
	instances map[string]*fakeInstance // keyed service_provider
	loadErr   map[string]error         // keyed service, nil = succeed
	loads     []string
	shutdowns int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		instances: make(map[string]*fakeInstance),
		loadErr:   make(map[string]error),
	}
}

func (h *fakeHost) Load(_ context.Context, service, path, configJSON string) error {
	h.loads = append(h.loads, service)
	if err := h.loadErr[service]; err != nil {
		return err
	}
	return nil
}

func (h *fakeHost) Lookup(service, provider string) (instance, bool) {
	in, ok := h.instances[service+"_"+provider]
	if !ok {
		return nil, false
	}
	return in, true
}

func (h *fakeHost) List() []wruntime.AdapterInfo { return nil }

func (h *fakeHost) Shutdown(context.Context) error {
	h.shutdowns++
	return nil
}

// fuelCounterValue sums the adapter fuel counter across all label sets.
func fuelCounterValue(t *testing.T, m *observability.MetricsCollector) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gathering metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "ai_messenger_adapter_fuel_used_total" {
			continue
		}
		var total float64
		for _, metric := range mf.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
		return total
	}
	return 0
}

func TestParseServiceKind(t *testing.T) {
	tests := []struct {
		name string
		want ServiceKind
		ok   bool
	}{
		{"llm", ServiceLLM, true},
		{"storage", ServiceStorage, true},
		{"imaging", ServiceUnknown, false},
		{"", ServiceUnknown, false},
	}
	for _, tt := range tests {
		kind, ok := ParseServiceKind(tt.name)
		if kind != tt.want || ok != tt.ok {
			t.Errorf("ParseServiceKind(%q) = (%v, %v), want (%v, %v)", tt.name, kind, ok, tt.want, tt.ok)
		}
	}
}

func TestServiceKind_String(t *testing.T) {
	if ServiceLLM.String() != "llm" || ServiceStorage.String() != "storage" {
		t.Error("kind strings must match configured service names")
	}
	if ServiceUnknown.String() != "unknown" {
		t.Errorf("unknown kind = %q", ServiceUnknown.String())
	}
}
