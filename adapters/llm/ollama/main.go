// Command ollama is the Ollama LLM adapter module. It runs inside the host's
// WASM sandbox and implements the three LLM entry points: prepare_request,
// parse_response and parse_stream_chunk. All translation happens here; the
// host performs the actual network exchange.
//
// Build as a wasip1 reactor:
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared \
//	  -o adapter.wasm ./adapters/llm/ollama
//
// and install under <data_dir>/adapters/llm/ollama/<version>/adapter.wasm.
package main

import (
	"encoding/json"

	"github.com/ChristianGrete/ai-messenger/internal/adapter"
	"github.com/ChristianGrete/ai-messenger/internal/adapter/ollama"
	"github.com/ChristianGrete/ai-messenger/internal/adapter/wasmabi"
)

// cfg is set once by the host's init call before any other entry point runs.
var cfg ollama.Config

func main() {}

func initAdapter(args []byte) []byte {
	if len(args) > 0 {
		if err := json.Unmarshal(args, &cfg); err != nil {
			return wasmabi.Errorf("parsing adapter config: %v", err)
		}
	}
	return wasmabi.OK(true)
}

func prepareRequest(args []byte) []byte {
	var req adapter.ChatRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return wasmabi.Errorf("parsing chat request: %v", err)
	}
	hc, err := ollama.PrepareRequest(cfg, req)
	if err != nil {
		return wasmabi.Error(err.Error())
	}
	return wasmabi.OK(hc)
}

func parseResponse(args []byte) []byte {
	var resp adapter.HTTPResponse
	if err := json.Unmarshal(args, &resp); err != nil {
		return wasmabi.Errorf("parsing transport result: %v", err)
	}
	out, err := ollama.ParseResponse(resp)
	if err != nil {
		return wasmabi.Error(err.Error())
	}
	return wasmabi.OK(out)
}

func parseStreamChunk(args []byte) []byte {
	var chunk string
	if err := json.Unmarshal(args, &chunk); err != nil {
		return wasmabi.Errorf("parsing chunk argument: %v", err)
	}
	sc, err := ollama.ParseStreamChunk(chunk)
	if err != nil {
		return wasmabi.Error(err.Error())
	}
	// nil chunk encodes as JSON null: blank input yields no chunk.
	return wasmabi.OK(sc)
}
