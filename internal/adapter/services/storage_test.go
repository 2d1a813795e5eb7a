package services

import (
	"bytes"
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/ChristianGrete/ai-messenger/internal/adapter"
	"github.com/ChristianGrete/ai-messenger/internal/adapter/wasmabi"
	"github.com/ChristianGrete/ai-messenger/internal/observability"
)

func newTestStorage(in *fakeInstance) *StorageAdapter {
	r := newRegistry(newFakeHost(), discardLogger())
	return newStorageAdapter(in, "filesystem", "v1", r)
}

func TestStorage_StoreRetrieve(t *testing.T) {
	stored := make(map[string][]byte)
	in := &fakeInstance{ready: true, fns: map[string]func([]byte) ([]byte, error){
		wasmabi.FuncStore: func(args []byte) ([]byte, error) {
			var a storageArgs
			if err := json.Unmarshal(args, &a); err != nil {
				return nil, err
			}
			stored[a.Key] = a.Data
			return []byte("true"), nil
		},
		wasmabi.FuncRetrieve: func(args []byte) ([]byte, error) {
			var a storageArgs
			if err := json.Unmarshal(args, &a); err != nil {
				return nil, err
			}
			return json.Marshal(stored[a.Key])
		},
	}}

	s := newTestStorage(in)
	payload := []byte("conversation state")
	if err := s.Store(context.Background(), "conv/1", payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Retrieve(context.Background(), "conv/1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("retrieved = %q, want %q", got, payload)
	}
}

func TestStorage_EmptyKeyNeverReachesSandbox(t *testing.T) {
	in := &fakeInstance{ready: true}
	s := newTestStorage(in)
	ctx := context.Background()

	checks := map[string]func() error{
		"store":    func() error { return s.Store(ctx, "", []byte("x")) },
		"retrieve": func() error { _, err := s.Retrieve(ctx, ""); return err },
		"delete":   func() error { return s.Delete(ctx, "") },
		"exists":   func() error { _, err := s.Exists(ctx, ""); return err },
	}
	for name, call := range checks {
		t.Run(name, func(t *testing.T) {
			err := call()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if adapter.KindOf(err) != adapter.KindExecutionError {
				t.Errorf("kind = %v, want execution_error", adapter.KindOf(err))
			}
		})
	}
	if len(in.calls) != 0 {
		t.Errorf("calls = %v, want none for empty keys", in.calls)
	}
}

func TestStorage_Exists(t *testing.T) {
	in := &fakeInstance{ready: true, fns: map[string]func([]byte) ([]byte, error){
		wasmabi.FuncExists: func(args []byte) ([]byte, error) {
			var a storageArgs
			if err := json.Unmarshal(args, &a); err != nil {
				return nil, err
			}
			return json.Marshal(a.Key == "present")
		},
	}}

	s := newTestStorage(in)
	for key, want := range map[string]bool{"present": true, "absent": false} {
		got, err := s.Exists(context.Background(), key)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("exists(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestStorage_ListKeys(t *testing.T) {
	in := &fakeInstance{ready: true, fns: map[string]func([]byte) ([]byte, error){
		wasmabi.FuncListKeys: func(args []byte) ([]byte, error) {
			var a storageArgs
			if err := json.Unmarshal(args, &a); err != nil {
				return nil, err
			}
			if a.Prefix == "conv/" {
				return json.Marshal([]string{"conv/1", "conv/2"})
			}
			return json.Marshal([]string{"conv/1", "conv/2", "profile"})
		},
	}}

	s := newTestStorage(in)
	keys, err := s.ListKeys(context.Background(), "conv/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"conv/1", "conv/2"}) {
		t.Errorf("keys = %v", keys)
	}

	// Empty prefix lists everything and is not a key, so it is allowed.
	all, err := s.ListKeys(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all keys = %v", all)
	}
}

func TestStorage_CallRecordsFuel(t *testing.T) {
	metrics := observability.NewMetricsCollector()
	r := newRegistry(newFakeHost(), discardLogger(), WithMetrics(metrics))
	in := &fakeInstance{ready: true, fuel: 37, fns: map[string]func([]byte) ([]byte, error){
		wasmabi.FuncExists: func([]byte) ([]byte, error) { return []byte("true"), nil },
	}}

	s := newStorageAdapter(in, "filesystem", "v1", r)
	if _, err := s.Exists(context.Background(), "conv/1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := fuelCounterValue(t, metrics); got != 37 {
		t.Errorf("fuel counter = %v, want 37", got)
	}
}

func TestStorage_Delete(t *testing.T) {
	var deleted string
	in := &fakeInstance{ready: true, fns: map[string]func([]byte) ([]byte, error){
		wasmabi.FuncDelete: func(args []byte) ([]byte, error) {
			var a storageArgs
			if err := json.Unmarshal(args, &a); err != nil {
				return nil, err
			}
			deleted = a.Key
			return []byte("true"), nil
		},
	}}

	s := newTestStorage(in)
	if err := s.Delete(context.Background(), "conv/1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != "conv/1" {
		t.Errorf("deleted = %q", deleted)
	}
}
