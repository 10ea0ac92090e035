package signing

import (
	"context"
	"testing"
)

func TestNewCosmianKMIPProvider_RequiresEndpoint(t *testing.T) {
	if _, err := NewCosmianKMIPProvider(CosmianKMIPOptions{Keys: []KeyReference{{ID: "k1"}}}); err == nil {
		t.Fatal("expected error for missing endpoint")
	}
}

func TestNewCosmianKMIPProvider_RequiresKeys(t *testing.T) {
	if _, err := NewCosmianKMIPProvider(CosmianKMIPOptions{Endpoint: "kmip://localhost:5696"}); err == nil {
		t.Fatal("expected error for missing keys")
	}
}

func TestPublicKey_UnknownKeyID(t *testing.T) {
	p, err := NewCosmianKMIPProvider(CosmianKMIPOptions{
		Endpoint: "kmip://localhost:5696",
		Keys:     []KeyReference{{ID: "signing-key-1", Version: 1}},
	})
	if err != nil {
		t.Fatalf("NewCosmianKMIPProvider: %v", err)
	}
	if _, err := p.PublicKey(context.Background(), "unknown"); err == nil {
		t.Fatal("expected error for unknown key id")
	}
}
