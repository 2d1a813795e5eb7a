package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/ChristianGrete/ai-messenger/internal/adapter"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid config", adapter.Errf(adapter.KindInvalidConfig, "bad"), http.StatusBadRequest},
		{"service unavailable", adapter.Errf(adapter.KindServiceUnavailable, "down"), http.StatusServiceUnavailable},
		{"initialization failed", adapter.Errf(adapter.KindInitializationFailed, "no module"), http.StatusInternalServerError},
		{"execution error", adapter.Errf(adapter.KindExecutionError, "trap"), http.StatusBadGateway},
		{"plain error", errors.New("boom"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorBody(t *testing.T) {
	body := errorBody(adapter.Errf(adapter.KindServiceUnavailable, "no adapter"))

	if body.Success {
		t.Error("error body must carry success=false")
	}
	if body.ErrorType != "service_unavailable" {
		t.Errorf("error_type = %q", body.ErrorType)
	}
	if body.Timestamp == "" {
		t.Error("expected a timestamp")
	}

	// The wire shape is part of the API contract.
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, field := range []string{"success", "error", "error_type", "timestamp"} {
		if _, ok := m[field]; !ok {
			t.Errorf("field %q missing from error body", field)
		}
	}
}

func TestBasePrefix(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/", ""},
		{"api", "/api"},
		{"/api", "/api"},
		{"api/", "/api"},
		{"/api/v2/", "/api/v2"},
	}
	for _, tt := range tests {
		if got := basePrefix(tt.in); got != tt.want {
			t.Errorf("basePrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestChatRequest_Conversion(t *testing.T) {
	req := MessageRequest{
		Model: "llama3.2",
		Messages: []Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hi"},
		},
	}

	cr := chatRequest(req)
	if cr.Model != "llama3.2" {
		t.Errorf("model = %q", cr.Model)
	}
	if len(cr.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(cr.Messages))
	}
	if cr.Messages[0].Role != adapter.RoleSystem || cr.Messages[1].Role != adapter.RoleUser {
		t.Errorf("roles = %v, %v", cr.Messages[0].Role, cr.Messages[1].Role)
	}
	if cr.Stream {
		t.Error("stream must not be preset by conversion")
	}
}
