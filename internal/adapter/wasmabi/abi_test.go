package wasmabi

import (
	"math"
	"testing"
)

func TestPackUnpack(t *testing.T) {
	tests := []struct {
		name      string
		ptr, size uint32
	}{
		{"zero", 0, 0},
		{"typical", 1024, 512},
		{"max", math.MaxUint32, math.MaxUint32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ptr, size := Unpack(Pack(tt.ptr, tt.size))
			if ptr != tt.ptr || size != tt.size {
				t.Errorf("unpack(pack(%d, %d)) = (%d, %d)", tt.ptr, tt.size, ptr, size)
			}
		})
	}
}

func TestDecode_OK(t *testing.T) {
	raw, err := Decode(OK(map[string]string{"content": "hi"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(raw) != `{"content":"hi"}` {
		t.Errorf("payload = %s", raw)
	}
}

func TestDecode_NullPayload(t *testing.T) {
	// A nil value is a valid success payload (e.g. "no chunk decoded").
	raw, err := Decode(OK(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(raw) != "null" {
		t.Errorf("payload = %s, want null", raw)
	}
}

func TestDecode_Err(t *testing.T) {
	_, err := Decode(Errorf("bad %s", "input"))
	if err == nil || err.Error() != "bad input" {
		t.Errorf("error = %v, want bad input", err)
	}
}

func TestDecode_Malformed(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Error("expected error for malformed envelope")
	}
	if _, err := Decode([]byte("{}")); err == nil {
		t.Error("expected error for empty envelope")
	}
}
