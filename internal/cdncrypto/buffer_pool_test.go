package cdncrypto

import (
	"sync"
	"testing"
)

func TestBufferPool_CopyBufferRoundTrip(t *testing.T) {
	p := NewBufferPool()

	buf := p.GetCopyBuffer()
	if len(*buf) != SizeCopyBuffer {
		t.Fatalf("expected %d-byte copy buffer, got %d", SizeCopyBuffer, len(*buf))
	}
	p.PutCopyBuffer(buf)

	again := p.GetCopyBuffer()
	if len(*again) != SizeCopyBuffer {
		t.Fatalf("expected %d-byte copy buffer after reuse, got %d", SizeCopyBuffer, len(*again))
	}

	m := p.GetMetrics()
	if m.CopyGets != 2 {
		t.Errorf("expected 2 copy gets, got %d", m.CopyGets)
	}
	if m.CopyMisses < 1 || m.CopyMisses > 2 {
		t.Errorf("expected 1 or 2 copy misses, got %d", m.CopyMisses)
	}
}

func TestBufferPool_ChunkBufferResetOnGet(t *testing.T) {
	p := NewBufferPool()

	buf := p.GetChunkBuffer()
	*buf = append(*buf, []byte("leftover plaintext")...)
	p.PutChunkBuffer(buf)

	again := p.GetChunkBuffer()
	if len(*again) != 0 {
		t.Fatalf("expected zero-length chunk buffer, got %d bytes", len(*again))
	}
	if cap(*again) < SizeChunk {
		t.Fatalf("expected at least %d capacity, got %d", SizeChunk, cap(*again))
	}
}

func TestBufferPool_OversizedChunkBufferDropped(t *testing.T) {
	p := NewBufferPool()

	huge := make([]byte, 0, 8*SizeChunk)
	p.PutChunkBuffer(&huge)

	got := p.GetChunkBuffer()
	if cap(*got) > 4*SizeChunk {
		t.Fatalf("oversized buffer was pooled: cap %d", cap(*got))
	}
}

func TestBufferPool_WrongSizeCopyBufferDropped(t *testing.T) {
	p := NewBufferPool()

	small := make([]byte, 16)
	p.PutCopyBuffer(&small)

	got := p.GetCopyBuffer()
	if len(*got) != SizeCopyBuffer {
		t.Fatalf("wrong-size buffer was pooled: len %d", len(*got))
	}
}

func TestBufferPool_ConcurrentUse(t *testing.T) {
	p := NewBufferPool()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cb := p.GetCopyBuffer()
				(*cb)[0] = byte(j)
				p.PutCopyBuffer(cb)

				chb := p.GetChunkBuffer()
				*chb = append(*chb, byte(j))
				p.PutChunkBuffer(chb)
			}
		}()
	}
	wg.Wait()

	m := p.GetMetrics()
	if m.CopyGets != 1600 || m.ChunkGets != 1600 {
		t.Errorf("expected 1600 gets per bucket, got copy=%d chunk=%d", m.CopyGets, m.ChunkGets)
	}
	if rate := m.CopyHitRate(); rate < 0 || rate > 1 {
		t.Errorf("copy hit rate out of range: %f", rate)
	}
}

func TestGetGlobalBufferPool_Singleton(t *testing.T) {
	if GetGlobalBufferPool() != GetGlobalBufferPool() {
		t.Fatal("expected the same global pool on every call")
	}
}
