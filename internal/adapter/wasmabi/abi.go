// Package wasmabi defines the call convention shared by the host runtime and
// guest adapter modules.
//
// Every adapter export has the signature (ptr u32, len u32) -> u64. The host
// writes JSON-encoded arguments into guest memory through the exported
// allocator, invokes the function, and receives a packed pointer/length pair
// addressing a JSON result envelope, also in guest memory. The package is
// dependency-free so guest binaries can import it when compiled to wasip1.
package wasmabi

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Well-known guest exports.
const (
	FuncAlloc = "adapter_alloc"
	FuncFree  = "adapter_free"
	FuncInit  = "init"
)

// LLM service exports.
const (
	FuncPrepareRequest   = "prepare_request"
	FuncParseResponse    = "parse_response"
	FuncParseStreamChunk = "parse_stream_chunk"
)

// Storage service exports.
const (
	FuncStore    = "store"
	FuncRetrieve = "retrieve"
	FuncDelete   = "delete"
	FuncExists   = "exists"
	FuncListKeys = "list_keys"
)

// Pack encodes a guest memory region as the u64 return value:
// pointer in the high 32 bits, length in the low 32 bits.
func Pack(ptr, size uint32) uint64 {
	return uint64(ptr)<<32 | uint64(size)
}

// Unpack splits a packed u64 return value into pointer and length.
func Unpack(v uint64) (ptr, size uint32) {
	return uint32(v >> 32), uint32(v)
}

// Envelope is the JSON result shape every adapter function returns.
// Exactly one of OK or Err is set.
type Envelope struct {
	OK  json.RawMessage `json:"ok,omitempty"`
	Err string          `json:"err,omitempty"`
}

// OK encodes a success envelope around v.
func OK(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return Error(fmt.Sprintf("encoding result: %v", err))
	}
	out, _ := json.Marshal(Envelope{OK: raw})
	return out
}

// Error encodes a failure envelope carrying msg.
func Error(msg string) []byte {
	out, _ := json.Marshal(Envelope{Err: msg})
	return out
}

// Errorf encodes a failure envelope with a formatted message.
func Errorf(format string, args ...any) []byte {
	return Error(fmt.Sprintf(format, args...))
}

// Decode unwraps a result envelope. A set Err field becomes a Go error; the
// OK payload is returned raw for the caller to interpret.
func Decode(data []byte) (json.RawMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed result envelope: %w", err)
	}
	if env.Err != "" {
		return nil, errors.New(env.Err)
	}
	if env.OK == nil {
		return nil, errors.New("result envelope has neither ok nor err")
	}
	return env.OK, nil
}
