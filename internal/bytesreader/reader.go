// Package bytesreader provides a bounded, fail-fast cursor over a byte
// buffer. It underlies the manifest decoder's framed-section parsing.
package bytesreader

import (
	"encoding/binary"
	"fmt"
)

// Reader is a forward-only cursor over a byte slice. All reads are total:
// a short buffer yields an error rather than a partial result.
type Reader struct {
	data []byte
	pos  int
}

// New wraps data in a Reader starting at offset 0.
func New(data []byte) *Reader {
	return &Reader{data: data}
}

// Len returns the total length of the underlying buffer.
func (r *Reader) Len() int {
	return len(r.data)
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Pos returns the current read offset.
func (r *Reader) Pos() int {
	return r.pos
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.Remaining() < 1 {
		return 0, fmt.Errorf("bytesreader: short read: need 1 byte, have %d", r.Remaining())
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes reads exactly n bytes and advances the cursor.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("bytesreader: negative length %d", n)
	}
	if r.Remaining() < n {
		return nil, fmt.Errorf("bytesreader: short read: need %d bytes, have %d", n, r.Remaining())
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

// ReadU32LE reads an unsigned 32-bit little-endian integer.
func (r *Reader) ReadU32LE() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, fmt.Errorf("bytesreader: reading u32: %w", err)
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64LE reads an unsigned 64-bit little-endian integer.
func (r *Reader) ReadU64LE() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, fmt.Errorf("bytesreader: reading u64: %w", err)
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadLengthPrefixed reads a 32-bit little-endian length L followed by L
// bytes, returning the L-byte slice.
func (r *Reader) ReadLengthPrefixed() ([]byte, error) {
	n, err := r.ReadU32LE()
	if err != nil {
		return nil, fmt.Errorf("bytesreader: reading length prefix: %w", err)
	}
	body, err := r.ReadBytes(int(n))
	if err != nil {
		return nil, fmt.Errorf("bytesreader: reading length-prefixed body: %w", err)
	}
	return body, nil
}
