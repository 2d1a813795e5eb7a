package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ChristianGrete/ai-messenger/internal/adapter"
	"github.com/ChristianGrete/ai-messenger/internal/adapter/wasmabi"
)

// StorageAdapter is the typed wrapper around one loaded storage adapter
// module. Keys are opaque non-empty strings; values are raw bytes.
type StorageAdapter struct {
	in       instance
	provider string
	version  string
	reg      *Registry
}

// storageArgs is the wire argument for every storage entry point. Unused
// fields are omitted per operation.
type storageArgs struct {
	Key    string `json:"key,omitempty"`
	Data   []byte `json:"data,omitempty"`
	Prefix string `json:"prefix,omitempty"`
}

func newStorageAdapter(in instance, provider, version string, reg *Registry) *StorageAdapter {
	return &StorageAdapter{in: in, provider: provider, version: version, reg: reg}
}

// Provider returns the provider name.
func (a *StorageAdapter) Provider() string { return a.provider }

// Version returns the configured adapter version.
func (a *StorageAdapter) Version() string { return a.version }

// ServiceName returns the service category this wrapper serves.
func (a *StorageAdapter) ServiceName() string { return ServiceNameStorage }

// Ready reports whether the underlying module can accept calls.
func (a *StorageAdapter) Ready() bool { return a.in.Ready() }

// Store persists data under key, replacing any previous value.
func (a *StorageAdapter) Store(ctx context.Context, key string, data []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	_, err := a.call(ctx, wasmabi.FuncStore, storageArgs{Key: key, Data: data})
	return err
}

// Retrieve returns the value stored under key.
func (a *StorageAdapter) Retrieve(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	out, err := a.call(ctx, wasmabi.FuncRetrieve, storageArgs{Key: key})
	if err != nil {
		return nil, err
	}
	var data []byte
	if err := json.Unmarshal(out, &data); err != nil {
		return nil, adapter.Errf(adapter.KindExecutionError, "decoding stored value for %q: %v", key, err)
	}
	return data, nil
}

// Delete removes the value stored under key. Deleting a missing key is not
// an error.
func (a *StorageAdapter) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	_, err := a.call(ctx, wasmabi.FuncDelete, storageArgs{Key: key})
	return err
}

// Exists reports whether a value is stored under key.
func (a *StorageAdapter) Exists(ctx context.Context, key string) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}
	out, err := a.call(ctx, wasmabi.FuncExists, storageArgs{Key: key})
	if err != nil {
		return false, err
	}
	var exists bool
	if err := json.Unmarshal(out, &exists); err != nil {
		return false, adapter.Errf(adapter.KindExecutionError, "decoding exists result for %q: %v", key, err)
	}
	return exists, nil
}

// ListKeys returns every stored key with the given prefix. An empty prefix
// lists all keys.
func (a *StorageAdapter) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	out, err := a.call(ctx, wasmabi.FuncListKeys, storageArgs{Prefix: prefix})
	if err != nil {
		return nil, err
	}
	var keys []string
	if err := json.Unmarshal(out, &keys); err != nil {
		return nil, adapter.Errf(adapter.KindExecutionError, "decoding key list: %v", err)
	}
	return keys, nil
}

// checkKey rejects empty keys before they reach the sandbox.
func checkKey(key string) error {
	if key == "" {
		return adapter.Errf(adapter.KindExecutionError, "storage key must not be empty")
	}
	return nil
}

func (a *StorageAdapter) call(ctx context.Context, function string, args storageArgs) ([]byte, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, adapter.Errf(adapter.KindExecutionError, "encoding storage arguments: %v", err)
	}

	start := time.Now()
	out, err := a.in.Call(ctx, function, payload)
	status := "ok"
	if err != nil {
		status = adapter.KindOf(err).String()
	}
	a.reg.metrics.RecordAdapterCall(ServiceNameStorage, a.provider, function, status, time.Since(start), a.in.LastCallFuel())
	return out, err
}
