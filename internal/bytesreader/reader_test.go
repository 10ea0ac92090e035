package bytesreader

import "testing"

func TestReadU32LE_ShortRead(t *testing.T) {
	r := New([]byte{0x01, 0x02})
	if _, err := r.ReadU32LE(); err == nil {
		t.Fatal("expected short-read error")
	}
}

func TestReadU32LE_RoundTrip(t *testing.T) {
	r := New([]byte{0xD0, 0x17, 0xF6, 0x71})
	got, err := r.ReadU32LE()
	if err != nil {
		t.Fatalf("ReadU32LE: %v", err)
	}
	if got != 0x71F617D0 {
		t.Fatalf("got %#x, want %#x", got, 0x71F617D0)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected 0 bytes remaining, got %d", r.Remaining())
	}
}

func TestReadLengthPrefixed(t *testing.T) {
	data := []byte{0x03, 0x00, 0x00, 0x00, 'a', 'b', 'c', 0xFF}
	r := New(data)
	body, err := r.ReadLengthPrefixed()
	if err != nil {
		t.Fatalf("ReadLengthPrefixed: %v", err)
	}
	if string(body) != "abc" {
		t.Fatalf("got %q, want %q", body, "abc")
	}
	if r.Remaining() != 1 {
		t.Fatalf("expected 1 byte remaining, got %d", r.Remaining())
	}
}

func TestReadLengthPrefixed_ShortBody(t *testing.T) {
	data := []byte{0x10, 0x00, 0x00, 0x00, 'a', 'b'}
	r := New(data)
	if _, err := r.ReadLengthPrefixed(); err == nil {
		t.Fatal("expected short-read error for truncated body")
	}
}
