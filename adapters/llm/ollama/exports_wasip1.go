//go:build wasip1

package main

import (
	"unsafe"

	"github.com/ChristianGrete/ai-messenger/internal/adapter/wasmabi"
)

// allocs pins host-visible buffers so the GC cannot move or reclaim them
// between adapter_alloc and adapter_free.
var allocs = make(map[uint32][]byte)

//go:wasmexport adapter_alloc
func adapterAlloc(size uint32) uint32 {
	n := size
	if n == 0 {
		n = 1
	}
	buf := make([]byte, n)
	ptr := uint32(uintptr(unsafe.Pointer(&buf[0])))
	allocs[ptr] = buf
	return ptr
}

//go:wasmexport adapter_free
func adapterFree(ptr, size uint32) {
	_ = size
	delete(allocs, ptr)
}

// readArg returns the argument bytes the host wrote at ptr.
func readArg(ptr, size uint32) []byte {
	if buf, ok := allocs[ptr]; ok {
		return buf[:size]
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(ptr))), size)
}

// ret copies out into a pinned buffer and packs its location for the host.
func ret(out []byte) uint64 {
	ptr := adapterAlloc(uint32(len(out)))
	copy(allocs[ptr], out)
	return wasmabi.Pack(ptr, uint32(len(out)))
}

//go:wasmexport init
func exportInit(ptr, size uint32) uint64 {
	return ret(initAdapter(readArg(ptr, size)))
}

//go:wasmexport prepare_request
func exportPrepareRequest(ptr, size uint32) uint64 {
	return ret(prepareRequest(readArg(ptr, size)))
}

//go:wasmexport parse_response
func exportParseResponse(ptr, size uint32) uint64 {
	return ret(parseResponse(readArg(ptr, size)))
}

//go:wasmexport parse_stream_chunk
func exportParseStreamChunk(ptr, size uint32) uint64 {
	return ret(parseStreamChunk(readArg(ptr, size)))
}
