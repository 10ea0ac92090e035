package cdncrypto

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestDecryptCBCWithEmbeddedIV_TooShort(t *testing.T) {
	var key [KeySize]byte
	if _, err := DecryptCBCWithEmbeddedIV([]byte("short"), key); err == nil {
		t.Fatal("expected error for payload shorter than one block")
	}
}

func TestDecryptCBC_RejectsUnalignedCiphertext(t *testing.T) {
	var key [KeySize]byte
	var iv [blockSize]byte
	if _, err := DecryptCBC(make([]byte, blockSize+1), key, iv); err == nil {
		t.Fatal("expected error for ciphertext not a multiple of the block size")
	}
	if _, err := DecryptCBC(nil, key, iv); err == nil {
		t.Fatal("expected error for empty ciphertext")
	}
}

func TestDecryptCBC_BadPadding(t *testing.T) {
	var key [KeySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	// Random ciphertext decrypts to garbage whose final byte is, with
	// overwhelming probability for 4 blocks, not valid PKCS#7 padding.
	ct := make([]byte, 4*blockSize)
	if _, err := rand.Read(ct); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	var iv [blockSize]byte
	if out, err := DecryptCBC(ct, key, iv); err == nil {
		// The ~1/256 case: padding accidentally validated. The plaintext
		// must then at least be shorter than the ciphertext.
		if len(out) >= len(ct) {
			t.Fatal("padding stripped nothing")
		}
	}
}

func TestUnpadPKCS7(t *testing.T) {
	got, err := unpadPKCS7(append([]byte("data"), bytes.Repeat([]byte{12}, 12)...))
	if err != nil {
		t.Fatalf("unpadPKCS7: %v", err)
	}
	if string(got) != "data" {
		t.Fatalf("got %q, want %q", got, "data")
	}

	if _, err := unpadPKCS7(append(bytes.Repeat([]byte{0}, 15), 17)); err == nil {
		t.Fatal("expected error for pad length over the block size")
	}
	if _, err := unpadPKCS7(append(bytes.Repeat([]byte{9}, 14), 8, 9)); err == nil {
		t.Fatal("expected error for inconsistent padding bytes")
	}
}
