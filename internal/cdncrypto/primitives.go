package cdncrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

const (
	// KeySize is the fixed length of a depot decryption key.
	KeySize   = 32
	blockSize = aes.BlockSize
)

// decryptECBBlock decrypts exactly one AES-256 block (16 bytes) in ECB mode.
// It is used only to recover the embedded IV that precedes each CBC payload;
// it is never used to decrypt bulk data.
func decryptECBBlock(block []byte, key [KeySize]byte) ([]byte, error) {
	if len(block) != blockSize {
		return nil, fmt.Errorf("cdncrypto: ecb block must be %d bytes, got %d", blockSize, len(block))
	}
	c, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cdncrypto: aes cipher: %w", err)
	}
	out := make([]byte, blockSize)
	c.Decrypt(out, block)
	return out, nil
}

// unpadPKCS7 strips PKCS#7 padding from a decrypted buffer.
func unpadPKCS7(data []byte) ([]byte, error) {
	n := len(data)
	if n == 0 || n%blockSize != 0 {
		return nil, fmt.Errorf("cdncrypto: invalid padded length %d", n)
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > blockSize || padLen > n {
		return nil, fmt.Errorf("cdncrypto: invalid PKCS7 padding")
	}
	for _, b := range data[n-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("cdncrypto: malformed PKCS7 padding")
		}
	}
	return data[:n-padLen], nil
}

// DecryptCBC decrypts ciphertext with AES-256-CBC under key and iv, removing
// PKCS#7 padding. ciphertext must be a non-zero multiple of the AES block size.
func DecryptCBC(ciphertext []byte, key [KeySize]byte, iv [blockSize]byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%blockSize != 0 {
		return nil, fmt.Errorf("cdncrypto: ciphertext length %d is not a multiple of block size", len(ciphertext))
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cdncrypto: aes cipher: %w", err)
	}
	mode := cipher.NewCBCDecrypter(block, iv[:])
	out := make([]byte, len(ciphertext))
	mode.CryptBlocks(out, ciphertext)
	return unpadPKCS7(out)
}

// DecryptCBCWithEmbeddedIV decrypts a chunk or manifest-filename payload whose
// first block is the CBC initialization vector, itself AES-256-ECB-encrypted
// under the same key. This is the wire format the edge servers and the depot
// manifest both use for every encrypted blob.
func DecryptCBCWithEmbeddedIV(payload []byte, key [KeySize]byte) ([]byte, error) {
	if len(payload) < blockSize {
		return nil, fmt.Errorf("cdncrypto: payload too short for embedded IV: %d bytes", len(payload))
	}
	ivPlain, err := decryptECBBlock(payload[:blockSize], key)
	if err != nil {
		return nil, fmt.Errorf("cdncrypto: recovering embedded iv: %w", err)
	}
	var iv [blockSize]byte
	copy(iv[:], ivPlain)

	rest := payload[blockSize:]
	if len(rest) == 0 {
		return nil, nil
	}
	return DecryptCBC(rest, key, iv)
}
