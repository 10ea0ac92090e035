package cdncrypto

import (
	"encoding/base64"
	"fmt"
)

// EncodeBase64 encodes a byte slice to base64 string using the standard alphabet.
// A chunk's SHA, base64-encoded this way, is its addressable id on the edge.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 decodes a base64 string to a byte slice using the standard alphabet.
func DecodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 string: %w", err)
	}
	return data, nil
}
