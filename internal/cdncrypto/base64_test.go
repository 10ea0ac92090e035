package cdncrypto

import "testing"

func TestEncodeDecodeBase64(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty data", data: []byte{}},
		{name: "simple data", data: []byte("Hello, World!")},
		{name: "binary data", data: []byte{0x00, 0x01, 0x02, 0xFF, 0xFE, 0xFD}},
		{name: "depot key size", data: make([]byte, 32)},
		{name: "chunk sha size", data: make([]byte, 20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := EncodeBase64(tt.data)
			decoded, err := DecodeBase64(encoded)
			if err != nil {
				t.Fatalf("DecodeBase64() error: %v", err)
			}
			if len(decoded) != len(tt.data) {
				t.Fatalf("DecodeBase64() length mismatch: got %d, want %d", len(decoded), len(tt.data))
			}
			for i := range tt.data {
				if decoded[i] != tt.data[i] {
					t.Fatalf("DecodeBase64() data mismatch at index %d", i)
				}
			}
		})
	}
}

func TestDecodeBase64_Invalid(t *testing.T) {
	invalid := []string{"not base64!", "@#$%^&*()"}
	for _, s := range invalid {
		t.Run(s, func(t *testing.T) {
			if _, err := DecodeBase64(s); err == nil {
				t.Errorf("DecodeBase64() expected error for invalid string: %s", s)
			}
		})
	}
}
